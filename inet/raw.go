package inet

import (
	"context"
	"net"
	"net/netip"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv6"

	"github.com/mlf-haier/openweave-core/buffer"
)

// RawEndpoint is a connectionless endpoint over a raw IP socket, created for
// one (family, protocol) pair. IPv4 receives deliver the datagram with its
// IP header still in front; IPv6 receives deliver the protocol payload only,
// mirroring raw-socket semantics on each family.
type RawEndpoint struct {
	endpointBase

	// OnMessageReceived is invoked once per received datagram.
	OnMessageReceived func(ep *RawEndpoint, buf *buffer.Buffer, info *IPPacketInfo)

	// OnReceiveError is invoked when a receive fails.
	OnReceiveError func(ep *RawEndpoint, err error, info *IPPacketInfo)

	st       ipEndpointState
	version  IPVersion
	protocol IPProtocol

	// allowedICMP, when non-nil, admits only these ICMP message types.
	allowedICMP map[uint8]struct{}
}

// BindInterface restricts the endpoint to one interface. Must be called
// before Bind.
func (e *RawEndpoint) BindInterface(version IPVersion, intf InterfaceID) error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	if version != e.version {
		return newError("bind interface", "", ErrConfiguration)
	}
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	return e.st.bindInterfaceLocked(version, intf)
}

// Bind binds the raw socket to a local address. A zero addr binds the
// wildcard.
func (e *RawEndpoint) Bind(version IPVersion, addr netip.Addr) error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	if version != e.version || !version.matches(addr) {
		return newError("bind", addrPortString(addr, 0), ErrConfiguration)
	}

	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	if e.st.conn != nil {
		return newError("bind", addrPortString(addr, 0), ErrInvalidState)
	}
	e.st.version = version

	local := ""
	if addr.IsValid() {
		local = addr.String()
	}
	lc := net.ListenConfig{Control: e.bindControl()}
	conn, err := lc.ListenPacket(context.Background(), e.protocol.rawNetwork(version), local)
	if err != nil {
		return newError("bind", local, err)
	}
	e.st.attachConn(conn)
	e.applyICMPFilterLocked()

	logrus.WithFields(logrus.Fields{
		"component": "inet.RawEndpoint",
		"network":   e.protocol.rawNetwork(version),
	}).Debug("raw endpoint bound")
	return nil
}

func (e *RawEndpoint) bindControl() func(network, address string, c syscall.RawConn) error {
	name := e.st.intfName
	if name == "" {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		return setBindToDevice(c, name)
	}
}

// SetICMPFilter admits only the given ICMP message types on receive; nil or
// empty clears the filter. May be set before or after Bind.
func (e *RawEndpoint) SetICMPFilter(types []uint8) error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	if e.protocol != ICMPv4 && e.protocol != ICMPv6 {
		return newError("set icmp filter", "", ErrInvalidState)
	}

	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	if len(types) == 0 {
		e.allowedICMP = nil
	} else {
		allowed := make(map[uint8]struct{}, len(types))
		for _, t := range types {
			allowed[t] = struct{}{}
		}
		e.allowedICMP = allowed
	}
	e.applyICMPFilterLocked()
	return nil
}

// applyICMPFilterLocked pushes the filter into the kernel where the family
// supports it (ICMP6_FILTER); IPv4 filtering stays in the receive path.
func (e *RawEndpoint) applyICMPFilterLocked() {
	if e.st.pc6 == nil || e.protocol != ICMPv6 {
		return
	}
	var f ipv6.ICMPFilter
	if e.allowedICMP == nil {
		f.SetAll(false)
	} else {
		f.SetAll(true)
		for t := range e.allowedICMP {
			f.Accept(ipv6.ICMPType(t))
		}
	}
	if err := e.st.pc6.SetICMPFilter(&f); err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "inet.RawEndpoint",
			"error":     err,
		}).Debug("kernel ICMPv6 filter unavailable, filtering in user space")
	}
}

// admit applies the ICMP filter to one received datagram.
func (e *RawEndpoint) admit(datagram []byte) bool {
	e.st.mu.Lock()
	allowed := e.allowedICMP
	e.st.mu.Unlock()
	if allowed == nil {
		return true
	}

	icmpType, ok := icmpTypeOf(datagram, e.version)
	if !ok {
		return false
	}
	_, ok = allowed[icmpType]
	return ok
}

// icmpTypeOf extracts the ICMP message type. IPv4 datagrams carry their IP
// header, so the ICMP header starts after IHL*4 bytes; IPv6 datagrams start
// at the ICMPv6 header.
func icmpTypeOf(datagram []byte, version IPVersion) (uint8, bool) {
	if version == IPv6 {
		if len(datagram) < 1 {
			return 0, false
		}
		return datagram[0], true
	}
	if len(datagram) < 1 {
		return 0, false
	}
	hdrLen := int(datagram[0]&0x0f) * 4
	if hdrLen < 20 || len(datagram) <= hdrLen {
		return 0, false
	}
	return datagram[hdrLen], true
}

// Listen begins asynchronous receive.
func (e *RawEndpoint) Listen() error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	e.st.mu.Lock()
	defer e.st.mu.Unlock()

	if e.st.conn == nil || e.st.listening {
		return newError("listen", "", ErrInvalidState)
	}
	e.st.listening = true
	go e.st.runReader(&e.endpointBase, e, e.layer.opts.ReadChunk, e.admit)
	return nil
}

// SendTo transmits one buffer (or chain) as a single datagram to addr.
// Ownership of buf transfers to the call; it is released on completion or
// failure.
func (e *RawEndpoint) SendTo(addr netip.Addr, buf *buffer.Buffer) error {
	defer buf.Release()
	if !e.alive() {
		return ErrEndpointReleased
	}
	if !addr.IsValid() || !e.version.matches(addr) {
		return newError("send to", "", ErrInvalidArgument)
	}

	e.st.mu.Lock()
	if e.st.conn == nil {
		lc := net.ListenConfig{Control: e.bindControl()}
		conn, err := lc.ListenPacket(context.Background(), e.protocol.rawNetwork(e.version), "")
		if err != nil {
			e.st.mu.Unlock()
			return newError("send to", addr.String(), err)
		}
		e.st.version = e.version
		e.st.attachConn(conn)
		e.applyICMPFilterLocked()
	}
	conn := e.st.conn
	e.st.mu.Unlock()

	payload := flatten(buf)
	dst := &net.IPAddr{IP: addr.AsSlice(), Zone: addr.Zone()}
	n, err := conn.WriteTo(payload, dst)
	if err != nil {
		return newError("send to", dst.String(), err)
	}
	e.st.bytesSent.Add(uint64(n))
	return nil
}

// LocalAddress returns the bound address, once bound.
func (e *RawEndpoint) LocalAddress() netip.Addr {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	return e.st.localAddr
}

// BytesSent returns the cumulative payload bytes transmitted.
func (e *RawEndpoint) BytesSent() uint64 {
	return e.st.bytesSent.Load()
}

// BytesReceived returns the cumulative payload bytes delivered.
func (e *RawEndpoint) BytesReceived() uint64 {
	return e.st.bytesReceived.Load()
}

// FilteredMessages returns how many datagrams the ICMP filter has dropped.
func (e *RawEndpoint) FilteredMessages() uint64 {
	return e.st.filtered.Load()
}

// Free stops the endpoint and returns its slot to the pool.
func (e *RawEndpoint) Free() error {
	e.st.mu.Lock()
	e.st.closeLocked()
	e.st.mu.Unlock()
	return e.releaseSlot()
}

func (e *RawEndpoint) deliverMessage(buf *buffer.Buffer, info *IPPacketInfo) {
	cb := e.OnMessageReceived
	if cb == nil {
		buf.Release()
		return
	}
	cb(e, buf, info)
}

func (e *RawEndpoint) deliverReceiveError(err error, info *IPPacketInfo) {
	if cb := e.OnReceiveError; cb != nil {
		cb(e, err, info)
	}
}
