package inet

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// readDeadline paces the connectionless read loop so it can observe
// cancellation without blocking forever in a read.
const readDeadline = 100 * time.Millisecond

// ipEndpointState is the machinery raw and UDP endpoints share: the packet
// socket, its control-message wrappers, interface binding, counters, and the
// reader goroutine lifecycle.
type ipEndpointState struct {
	mu        sync.Mutex
	version   IPVersion
	intf      InterfaceID
	intfName  string
	conn      net.PacketConn
	pc4       *ipv4.PacketConn
	pc6       *ipv6.PacketConn
	localAddr netip.Addr
	localPort uint16
	listening bool
	ctx       context.Context
	cancel    context.CancelFunc

	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
	filtered      atomic.Uint64
}

// bindInterfaceLocked records the interface restriction; it must precede the
// socket's creation so the bind-to-device control can apply it.
func (s *ipEndpointState) bindInterfaceLocked(version IPVersion, intf InterfaceID) error {
	if s.conn != nil {
		return newError("bind interface", "", ErrInvalidState)
	}
	if !version.valid() {
		return newError("bind interface", "", ErrInvalidArgument)
	}
	name := ""
	if intf != 0 {
		var err error
		name, err = InterfaceNameByID(intf)
		if err != nil {
			return err
		}
	}
	s.version = version
	s.intf = intf
	s.intfName = name
	return nil
}

// attachConn adopts the freshly bound socket and wires up the
// control-message layer that populates IPPacketInfo on receives. Control
// message support is best effort; without it packet info carries only the
// source address.
func (s *ipEndpointState) attachConn(conn net.PacketConn) {
	s.conn = conn
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.localAddr, s.localPort = addrFromNet(conn.LocalAddr())

	switch s.version {
	case IPv4:
		s.pc4 = ipv4.NewPacketConn(conn)
		if err := s.pc4.SetControlMessage(ipv4.FlagDst|ipv4.FlagInterface, true); err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "inet",
				"error":     err,
			}).Debug("IPv4 control messages unavailable")
		}
	case IPv6:
		s.pc6 = ipv6.NewPacketConn(conn)
		if err := s.pc6.SetControlMessage(ipv6.FlagDst|ipv6.FlagInterface, true); err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "inet",
				"error":     err,
			}).Debug("IPv6 control messages unavailable")
		}
	}
}

// closeLocked stops the reader and closes the socket. Idempotent.
func (s *ipEndpointState) closeLocked() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
		s.pc4 = nil
		s.pc6 = nil
	}
	s.listening = false
}

// readOnce performs one paced read, returning the payload slice of scratch,
// the populated packet info, and whether the caller should keep looping.
func (s *ipEndpointState) readOnce(scratch []byte) (int, *IPPacketInfo, error) {
	info := &IPPacketInfo{
		DestAddress: s.localAddr,
		DestPort:    s.localPort,
	}
	deadline := time.Now().Add(readDeadline)

	switch {
	case s.pc4 != nil:
		_ = s.pc4.SetReadDeadline(deadline)
		n, cm, src, err := s.pc4.ReadFrom(scratch)
		if err != nil {
			return 0, nil, err
		}
		info.SrcAddress, info.SrcPort = addrFromNet(src)
		if cm != nil {
			if dst, ok := netip.AddrFromSlice(cm.Dst); ok {
				info.DestAddress = dst.Unmap()
			}
			info.Interface = InterfaceID(cm.IfIndex)
		}
		return n, info, nil
	case s.pc6 != nil:
		_ = s.pc6.SetReadDeadline(deadline)
		n, cm, src, err := s.pc6.ReadFrom(scratch)
		if err != nil {
			return 0, nil, err
		}
		info.SrcAddress, info.SrcPort = addrFromNet(src)
		if cm != nil {
			if dst, ok := netip.AddrFromSlice(cm.Dst); ok {
				info.DestAddress = dst
			}
			info.Interface = InterfaceID(cm.IfIndex)
		}
		return n, info, nil
	default:
		_ = s.conn.SetReadDeadline(deadline)
		n, src, err := s.conn.ReadFrom(scratch)
		if err != nil {
			return 0, nil, err
		}
		info.SrcAddress, info.SrcPort = addrFromNet(src)
		return n, info, nil
	}
}

// runReader is the receive loop shared by raw and UDP endpoints. filter, when
// non-nil, decides whether a datagram is delivered; rejected datagrams are
// counted and dropped before any buffer is allocated.
func (s *ipEndpointState) runReader(base *endpointBase, sink messageSink, chunk int, filter func([]byte) bool) {
	scratch := make([]byte, chunk)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		n, info, err := s.readOnce(scratch)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
				return
			}
			base.post(&receiveErrorEvent{sink: sink, err: newError("receive", "", err), info: info})
			continue
		}

		if filter != nil && !filter(scratch[:n]) {
			s.filtered.Add(1)
			continue
		}

		buf, err := base.layer.alloc.New(max(n, 1), 0)
		if err != nil {
			// Out of buffers: surface it and drop the datagram.
			base.post(&receiveErrorEvent{sink: sink, err: err, info: info})
			continue
		}
		if err := buf.Append(scratch[:n]); err != nil {
			buf.Release()
			continue
		}
		s.bytesReceived.Add(uint64(n))
		base.post(&messageReceivedEvent{sink: sink, buf: buf, info: info})
	}
}
