package inet

import (
	"context"
	"net"
	"net/netip"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/mlf-haier/openweave-core/buffer"
)

// UDPEndpoint is a connectionless datagram endpoint. Every operation is
// independent; there is no connection state.
//
// Callbacks run only inside system.Layer.Service. OnMessageReceived owns the
// buffer it is handed and must release it.
type UDPEndpoint struct {
	endpointBase

	// OnMessageReceived is invoked once per received datagram.
	OnMessageReceived func(ep *UDPEndpoint, buf *buffer.Buffer, info *IPPacketInfo)

	// OnReceiveError is invoked when a receive fails; info may carry
	// partial addressing.
	OnReceiveError func(ep *UDPEndpoint, err error, info *IPPacketInfo)

	st ipEndpointState
}

// BindInterface restricts the endpoint to one interface. Must be called
// before Bind.
func (e *UDPEndpoint) BindInterface(version IPVersion, intf InterfaceID) error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	return e.st.bindInterfaceLocked(version, intf)
}

// Bind binds the endpoint to a local address and port. A zero addr binds the
// wildcard; port zero picks an ephemeral port.
func (e *UDPEndpoint) Bind(version IPVersion, addr netip.Addr, port uint16) error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	e.st.mu.Lock()
	defer e.st.mu.Unlock()

	if e.st.conn != nil {
		return newError("bind", addrPortString(addr, port), ErrInvalidState)
	}
	if !version.valid() || !version.matches(addr) {
		return newError("bind", addrPortString(addr, port), ErrConfiguration)
	}
	if e.st.intf != 0 && e.st.version != version {
		return newError("bind", addrPortString(addr, port), ErrConfiguration)
	}
	e.st.version = version

	lc := net.ListenConfig{Control: e.bindControl()}
	conn, err := lc.ListenPacket(context.Background(), version.udpNetwork(), addrPortString(addr, port))
	if err != nil {
		return newError("bind", addrPortString(addr, port), err)
	}
	e.st.attachConn(conn)

	logrus.WithFields(logrus.Fields{
		"component":  "inet.UDPEndpoint",
		"local_addr": conn.LocalAddr().String(),
	}).Debug("UDP endpoint bound")
	return nil
}

func (e *UDPEndpoint) bindControl() func(network, address string, c syscall.RawConn) error {
	name := e.st.intfName
	if name == "" {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		return setBindToDevice(c, name)
	}
}

// Listen begins asynchronous receive. Each arriving datagram is delivered to
// OnMessageReceived on a Service pass.
func (e *UDPEndpoint) Listen() error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	e.st.mu.Lock()
	defer e.st.mu.Unlock()

	if e.st.conn == nil || e.st.listening {
		return newError("listen", "", ErrInvalidState)
	}
	e.st.listening = true
	go e.st.runReader(&e.endpointBase, e, e.layer.opts.ReadChunk, nil)
	return nil
}

// SendTo transmits one buffer (or chain) as a single datagram. Ownership of
// buf transfers to the call; it is released on completion or failure. An
// unbound endpoint is bound to an ephemeral port of addr's family first.
func (e *UDPEndpoint) SendTo(addr netip.Addr, port uint16, buf *buffer.Buffer) error {
	defer buf.Release()
	if !e.alive() {
		return ErrEndpointReleased
	}
	if !addr.IsValid() {
		return newError("send to", "", ErrInvalidArgument)
	}

	e.st.mu.Lock()
	if e.st.conn == nil {
		version := IPv6
		if addr.Is4() || addr.Is4In6() {
			version = IPv4
		}
		if e.st.intf != 0 && e.st.version != version {
			e.st.mu.Unlock()
			return newError("send to", addrPortString(addr, port), ErrConfiguration)
		}
		e.st.version = version
		lc := net.ListenConfig{Control: e.bindControl()}
		conn, err := lc.ListenPacket(context.Background(), version.udpNetwork(), ":0")
		if err != nil {
			e.st.mu.Unlock()
			return newError("send to", addrPortString(addr, port), err)
		}
		e.st.attachConn(conn)
	}
	conn := e.st.conn
	e.st.mu.Unlock()

	payload := flatten(buf)
	dst := net.UDPAddrFromAddrPort(netip.AddrPortFrom(addr, port))
	n, err := conn.WriteTo(payload, dst)
	if err != nil {
		return newError("send to", dst.String(), err)
	}
	e.st.bytesSent.Add(uint64(n))
	return nil
}

// LocalAddress returns the bound address and port, once bound.
func (e *UDPEndpoint) LocalAddress() (netip.Addr, uint16) {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	return e.st.localAddr, e.st.localPort
}

// BytesSent returns the cumulative payload bytes transmitted.
func (e *UDPEndpoint) BytesSent() uint64 {
	return e.st.bytesSent.Load()
}

// BytesReceived returns the cumulative payload bytes delivered.
func (e *UDPEndpoint) BytesReceived() uint64 {
	return e.st.bytesReceived.Load()
}

// Free stops the endpoint and returns its slot to the pool. The handle is
// unusable afterwards.
func (e *UDPEndpoint) Free() error {
	e.st.mu.Lock()
	e.st.closeLocked()
	e.st.mu.Unlock()
	return e.releaseSlot()
}

func (e *UDPEndpoint) deliverMessage(buf *buffer.Buffer, info *IPPacketInfo) {
	cb := e.OnMessageReceived
	if cb == nil {
		buf.Release()
		return
	}
	cb(e, buf, info)
}

func (e *UDPEndpoint) deliverReceiveError(err error, info *IPPacketInfo) {
	if cb := e.OnReceiveError; cb != nil {
		cb(e, err, info)
	}
}

// flatten serializes a buffer chain into one contiguous datagram payload.
func flatten(buf *buffer.Buffer) []byte {
	if buf.Next() == nil {
		return buf.Data()
	}
	out := make([]byte, 0, buf.TotalLength())
	for seg := buf; seg != nil; seg = seg.Next() {
		out = append(out, seg.Data()...)
	}
	return out
}
