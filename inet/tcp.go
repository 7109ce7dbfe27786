package inet

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"

	"github.com/mlf-haier/openweave-core/buffer"
)

// DefaultListenBacklog bounds accepted connections not yet delivered to
// OnConnectionReceived when Listen is given a non-positive backlog.
const DefaultListenBacklog = 16

// TCPEndpoint is a connection-oriented endpoint with an explicit state
// machine, flow-controlled receive, queued send, keepalive, and graceful or
// abrupt teardown.
//
// Send and receive are asynchronous: Send queues data and OnDataSent reports
// bytes the transport has taken; OnDataReceived hands over a buffer chain
// whose consumption the application acknowledges with AckReceive, or returns
// with PutBackReceivedData. All callbacks run inside system.Layer.Service.
type TCPEndpoint struct {
	endpointBase

	// OnConnectComplete reports the outcome of Connect. On error the
	// endpoint has already been released and must not be reused.
	OnConnectComplete func(ep *TCPEndpoint, err error)

	// OnConnectionReceived delivers a freshly pooled endpoint per
	// accepted connection; the listener stays in StateListening.
	OnConnectionReceived func(listener, conn *TCPEndpoint, peerAddr netip.Addr, peerPort uint16)

	// OnAcceptError reports a failed accept, including pool exhaustion.
	OnAcceptError func(ep *TCPEndpoint, err error)

	// OnConnectionClosed reports the connection reaching StateClosed,
	// with the error that ended it, nil for a clean close. The endpoint
	// is released right after this callback returns.
	OnConnectionClosed func(ep *TCPEndpoint, err error)

	// OnDataSent reports bytes accepted by the transport since the last
	// notification.
	OnDataSent func(ep *TCPEndpoint, n int)

	// OnDataReceived hands over received data. The application owns the
	// buffer: release it and AckReceive the consumed length, or give it
	// back with PutBackReceivedData.
	OnDataReceived func(ep *TCPEndpoint, buf *buffer.Buffer)

	mu    sync.Mutex
	state TCPState

	version   IPVersion
	localAddr netip.Addr
	localPort uint16
	reuseAddr bool
	intf      InterfaceID
	intfName  string

	listener net.Listener
	conn     *net.TCPConn
	peerAddr netip.Addr
	peerPort uint16

	ctx    context.Context
	cancel context.CancelFunc

	sendQueue         *queue.Queue // of *buffer.Buffer segments
	sendPending       int
	sendKick          chan struct{}
	closeAfterSend    bool
	shutdownAfterSend bool
	sentFIN           bool

	rxPending *buffer.Buffer
	rxCredit  int
	rxEnabled bool
	rxKick    chan struct{}

	loopsStarted bool

	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
}

func newTCPEndpoint(l *Layer, slot int, gen uint32) *TCPEndpoint {
	return &TCPEndpoint{
		endpointBase: endpointBase{layer: l, slot: slot, gen: gen},
		state:        StateReady,
		sendQueue:    queue.New(),
		sendKick:     make(chan struct{}, 1),
		rxKick:       make(chan struct{}, 1),
		rxCredit:     l.opts.TCPReceiveWindow,
		rxEnabled:    true,
	}
}

// State returns the current connection state.
func (e *TCPEndpoint) State() TCPState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Bind fixes the local address for a later Listen or Connect. Legal only in
// StateReady.
func (e *TCPEndpoint) Bind(version IPVersion, addr netip.Addr, port uint16, reuseAddress bool) error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateReady {
		return newError("bind", addrPortString(addr, port), ErrInvalidState)
	}
	if !version.valid() || !version.matches(addr) {
		return newError("bind", addrPortString(addr, port), ErrConfiguration)
	}
	e.version = version
	e.localAddr = addr
	e.localPort = port
	e.reuseAddr = reuseAddress
	e.state = StateBound
	return nil
}

// BindInterface restricts the endpoint to one interface for a later Connect.
func (e *TCPEndpoint) BindInterface(version IPVersion, intf InterfaceID) error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady && e.state != StateBound {
		return newError("bind interface", "", ErrInvalidState)
	}
	name := ""
	if intf != 0 {
		var err error
		name, err = InterfaceNameByID(intf)
		if err != nil {
			return err
		}
	}
	e.version = version
	e.intf = intf
	e.intfName = name
	return nil
}

func (e *TCPEndpoint) socketControl() func(network, address string, c syscall.RawConn) error {
	reuse, name := e.reuseAddr, e.intfName
	if !reuse && name == "" {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		if reuse {
			if err := setReuseAddress(c); err != nil {
				return err
			}
		}
		if name != "" {
			return setBindToDevice(c, name)
		}
		return nil
	}
}

// Listen starts accepting connections on the bound address. Each accepted
// connection arrives as a new pooled endpoint via OnConnectionReceived; at
// most backlog accepted connections wait for delivery at once.
func (e *TCPEndpoint) Listen(backlog int) error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateBound {
		return newError("listen", "", ErrInvalidState)
	}
	if backlog <= 0 {
		backlog = DefaultListenBacklog
	}

	lc := net.ListenConfig{Control: e.socketControl()}
	ln, err := lc.Listen(context.Background(), e.version.tcpNetwork(), addrPortString(e.localAddr, e.localPort))
	if err != nil {
		return newError("listen", addrPortString(e.localAddr, e.localPort), err)
	}
	e.listener = ln
	e.localAddr, e.localPort = addrFromNet(ln.Addr())
	e.state = StateListening
	e.ensureContextLocked()

	logrus.WithFields(logrus.Fields{
		"component":  "inet.TCPEndpoint",
		"local_addr": ln.Addr().String(),
		"backlog":    backlog,
	}).Debug("TCP endpoint listening")

	go e.acceptLoop(ln, make(chan struct{}, backlog))
	return nil
}

func (e *TCPEndpoint) acceptLoop(ln net.Listener, tokens chan struct{}) {
	for {
		select {
		case <-e.ctx.Done():
			return
		case tokens <- struct{}{}:
		}

		conn, err := ln.Accept()
		if err != nil {
			<-tokens
			if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
				return
			}
			e.post(&acceptErrorEvent{ep: e, err: newError("accept", "", err)})
			continue
		}

		child, err := e.layer.NewTCPEndpoint()
		if err != nil {
			// Pool exhausted: reject the connection, keep listening.
			_ = conn.Close()
			<-tokens
			e.post(&acceptErrorEvent{ep: e, err: err})
			continue
		}

		tcpConn := conn.(*net.TCPConn)
		child.adopt(tcpConn)
		peerAddr, peerPort := addrFromNet(conn.RemoteAddr())
		e.post(&connectionReceivedEvent{
			listener: e,
			child:    child,
			peerAddr: peerAddr,
			peerPort: peerPort,
			done:     func() { <-tokens },
		})
	}
}

// Connect initiates a connection to addr:port, optionally via a specific
// interface. Legal in StateReady or StateBound. The outcome arrives through
// OnConnectComplete; on failure the endpoint is released by the
// implementation.
func (e *TCPEndpoint) Connect(addr netip.Addr, port uint16, intf InterfaceID) error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	if !addr.IsValid() {
		return newError("connect", "", ErrInvalidArgument)
	}

	e.mu.Lock()
	if e.state != StateReady && e.state != StateBound {
		e.mu.Unlock()
		return newError("connect", addrPortString(addr, port), ErrInvalidState)
	}
	if intf != 0 {
		name, err := InterfaceNameByID(intf)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		e.intf = intf
		e.intfName = name
	}
	if e.state == StateReady {
		if addr.Is4() || addr.Is4In6() {
			e.version = IPv4
		} else {
			e.version = IPv6
		}
	} else if !e.version.matches(addr) {
		e.mu.Unlock()
		return newError("connect", addrPortString(addr, port), ErrConfiguration)
	}

	dialer := net.Dialer{Control: e.socketControl()}
	if e.state == StateBound {
		dialer.LocalAddr = &net.TCPAddr{IP: e.localAddr.AsSlice(), Port: int(e.localPort)}
	}
	network := e.version.tcpNetwork()
	e.state = StateConnecting
	e.ensureContextLocked()
	ctx := e.ctx
	e.mu.Unlock()

	go func() {
		conn, err := dialer.DialContext(ctx, network, addrPortString(addr, port))
		if err != nil {
			e.post(&connectCompleteEvent{ep: e, err: newError("connect", addrPortString(addr, port), err)})
			return
		}
		e.mu.Lock()
		if e.state != StateConnecting {
			// Freed or aborted while dialing.
			e.mu.Unlock()
			_ = conn.Close()
			return
		}
		e.mu.Unlock()

		e.adopt(conn.(*net.TCPConn))
		e.post(&connectCompleteEvent{ep: e, err: nil})
	}()
	return nil
}

// adopt takes ownership of an established connection. Reader and writer
// start later, once the delivering event has given the application a chance
// to set callbacks.
func (e *TCPEndpoint) adopt(conn *net.TCPConn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conn = conn
	e.state = StateConnected
	e.localAddr, e.localPort = addrFromNet(conn.LocalAddr())
	e.peerAddr, e.peerPort = addrFromNet(conn.RemoteAddr())
	e.ensureContextLocked()
}

func (e *TCPEndpoint) ensureContextLocked() {
	if e.ctx == nil {
		e.ctx, e.cancel = context.WithCancel(context.Background())
	}
}

func (e *TCPEndpoint) startLoops() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loopsStarted || e.conn == nil || e.state == StateClosed {
		return
	}
	e.loopsStarted = true
	go e.readLoop(e.conn)
	go e.writeLoop(e.conn)
}

// GetPeerInfo returns the peer address and port of an established
// connection.
func (e *TCPEndpoint) GetPeerInfo() (netip.Addr, uint16, error) {
	if !e.alive() {
		return netip.Addr{}, 0, ErrEndpointReleased
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return netip.Addr{}, 0, newError("peer info", "", ErrInvalidState)
	}
	return e.peerAddr, e.peerPort, nil
}

// LocalAddress returns the endpoint's bound address and port.
func (e *TCPEndpoint) LocalAddress() (netip.Addr, uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localAddr, e.localPort
}

// BytesSent returns cumulative bytes accepted by the transport.
func (e *TCPEndpoint) BytesSent() uint64 {
	return e.bytesSent.Load()
}

// BytesReceived returns cumulative bytes read from the transport.
func (e *TCPEndpoint) BytesReceived() uint64 {
	return e.bytesReceived.Load()
}

// Send queues buf for transmission. Ownership of buf transfers to the call;
// on error it is released. Legal while the state permits sending
// (StateConnected, or StateReceiveShutdown after the peer half-closed).
func (e *TCPEndpoint) Send(buf *buffer.Buffer) error {
	if !e.alive() {
		buf.Release()
		return ErrEndpointReleased
	}
	e.mu.Lock()
	if !e.state.canSend() {
		state := e.state
		e.mu.Unlock()
		buf.Release()
		return newError("send", "", errorWithState(ErrInvalidState, state))
	}
	for seg := buf; seg != nil; {
		next := seg.DetachChain()
		e.sendPending += seg.DataLength()
		e.sendQueue.Add(seg)
		seg = next
	}
	e.mu.Unlock()
	e.kickSend()
	return nil
}

// PendingSendLength returns the bytes queued but not yet accepted by the
// transport.
func (e *TCPEndpoint) PendingSendLength() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sendPending
}

// AckReceive returns n bytes of receive window credit, allowing the
// transport to resume reading once the application has consumed data.
func (e *TCPEndpoint) AckReceive(n int) error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	e.mu.Lock()
	if n <= 0 {
		e.mu.Unlock()
		return newError("ack receive", "", ErrInvalidArgument)
	}
	if !e.state.dataBearing() {
		state := e.state
		e.mu.Unlock()
		return newError("ack receive", "", errorWithState(ErrInvalidState, state))
	}
	e.rxCredit += n
	if e.rxCredit > e.layer.opts.TCPReceiveWindow {
		e.rxCredit = e.layer.opts.TCPReceiveWindow
	}
	e.mu.Unlock()
	e.kickReceive()
	return nil
}

// PutBackReceivedData returns an unconsumed buffer to the front of the
// receive queue for in-order redelivery on a later pass. A nil buf just
// requests redelivery of whatever is queued. On error, ownership of buf
// stays with the caller.
func (e *TCPEndpoint) PutBackReceivedData(buf *buffer.Buffer) error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	e.mu.Lock()
	if e.layer.opts.StrictReceiveStates && !e.state.dataBearing() {
		state := e.state
		e.mu.Unlock()
		return newError("put back", "", errorWithState(ErrInvalidState, state))
	}
	if buf != nil {
		if e.rxPending != nil {
			buf.AppendChain(e.rxPending)
		}
		e.rxPending = buf
	}
	e.mu.Unlock()
	e.post(&dataReceivedEvent{ep: e})
	return nil
}

// PendingReceiveLength returns the bytes received but not yet delivered to
// (or put back by) the application.
func (e *TCPEndpoint) PendingReceiveLength() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rxPending == nil {
		return 0
	}
	return e.rxPending.TotalLength()
}

// DisableReceive holds received data queued instead of delivering it. Data
// is never dropped while disabled.
func (e *TCPEndpoint) DisableReceive() {
	e.mu.Lock()
	e.rxEnabled = false
	e.mu.Unlock()
}

// EnableReceive resumes delivery, redelivering anything queued.
func (e *TCPEndpoint) EnableReceive() {
	e.mu.Lock()
	e.rxEnabled = true
	e.mu.Unlock()
	e.post(&dataReceivedEvent{ep: e})
}

// EnableKeepAlive turns on TCP keepalive probing at the given interval, with
// count unanswered probes declaring the peer dead. Legal only while
// StateConnected.
func (e *TCPEndpoint) EnableKeepAlive(interval time.Duration, count int) error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateConnected || e.conn == nil {
		return newError("enable keepalive", "", errorWithState(ErrInvalidState, e.state))
	}
	return e.conn.SetKeepAliveConfig(net.KeepAliveConfig{
		Enable:   true,
		Idle:     interval,
		Interval: interval,
		Count:    count,
	})
}

// DisableKeepAlive turns keepalive probing off. Legal only while
// StateConnected.
func (e *TCPEndpoint) DisableKeepAlive() error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateConnected || e.conn == nil {
		return newError("disable keepalive", "", errorWithState(ErrInvalidState, e.state))
	}
	return e.conn.SetKeepAliveConfig(net.KeepAliveConfig{Enable: false})
}

// Shutdown half-closes the send direction after flushing queued sends. The
// receive direction stays open.
func (e *TCPEndpoint) Shutdown() error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	e.mu.Lock()
	if !e.state.canSend() {
		state := e.state
		e.mu.Unlock()
		return newError("shutdown", "", errorWithState(ErrInvalidState, state))
	}
	if e.sendPending == 0 {
		e.finishSendShutdownLocked()
		e.mu.Unlock()
		return nil
	}
	e.shutdownAfterSend = true
	e.mu.Unlock()
	e.kickSend()
	return nil
}

// finishSendShutdownLocked sends the FIN and advances the state machine:
// Connected becomes SendShutdown; if the peer already half-closed, both
// directions are now done and the connection closes fully.
func (e *TCPEndpoint) finishSendShutdownLocked() {
	if e.sentFIN || e.conn == nil {
		return
	}
	e.sentFIN = true
	_ = e.conn.CloseWrite()
	switch e.state {
	case StateConnected:
		e.state = StateSendShutdown
	case StateReceiveShutdown, StateClosing:
		e.doCloseLocked(nil)
	}
}

// Close closes the connection gracefully: queued sends are flushed before
// the connection is torn down. The terminal state releases the endpoint
// back to the pool after OnConnectionClosed.
func (e *TCPEndpoint) Close() error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	e.mu.Lock()
	switch e.state {
	case StateReady, StateBound, StateListening, StateConnecting:
		e.teardownLocked()
		e.mu.Unlock()
		return e.releaseSlot()
	case StateConnected, StateSendShutdown, StateReceiveShutdown:
		if e.sendPending == 0 {
			e.doCloseLocked(nil)
			e.mu.Unlock()
			return nil
		}
		e.closeAfterSend = true
		e.state = StateClosing
		e.mu.Unlock()
		e.kickSend()
		return nil
	default:
		state := e.state
		e.mu.Unlock()
		return newError("close", "", errorWithState(ErrInvalidState, state))
	}
}

// Abort tears the connection down immediately, discarding queued sends, and
// releases the endpoint. No callback fires for a locally initiated abort.
func (e *TCPEndpoint) Abort() error {
	if !e.alive() {
		return ErrEndpointReleased
	}
	e.mu.Lock()
	if e.conn != nil {
		_ = e.conn.SetLinger(0)
	}
	e.teardownLocked()
	e.mu.Unlock()
	return e.releaseSlot()
}

// Free releases the endpoint back to the pool, aborting the connection first
// if one is open. The handle is unusable afterwards.
func (e *TCPEndpoint) Free() error {
	return e.Abort()
}

// teardownLocked closes every resource and discards queued data. The state
// becomes Closed; the caller decides whether a callback or slot release
// follows.
func (e *TCPEndpoint) teardownLocked() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.listener != nil {
		_ = e.listener.Close()
		e.listener = nil
	}
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
	for e.sendQueue.Length() > 0 {
		e.sendQueue.Remove().(*buffer.Buffer).Release()
	}
	e.sendPending = 0
	if e.rxPending != nil {
		e.rxPending.Release()
		e.rxPending = nil
	}
	e.state = StateClosed
}

// doCloseLocked finishes an established connection and schedules the closed
// notification; the slot is released after that callback runs.
func (e *TCPEndpoint) doCloseLocked(err error) {
	e.teardownLocked()
	e.post(&connectionClosedEvent{ep: e, err: err})
}

func (e *TCPEndpoint) kickSend() {
	select {
	case e.sendKick <- struct{}{}:
	default:
	}
}

func (e *TCPEndpoint) kickReceive() {
	select {
	case e.rxKick <- struct{}{}:
	default:
	}
}

// readLoop pulls data from the transport while receive window credit
// remains, posting each chunk to the service loop.
func (e *TCPEndpoint) readLoop(conn *net.TCPConn) {
	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		e.mu.Lock()
		credit := e.rxCredit
		e.mu.Unlock()
		if credit <= 0 {
			select {
			case <-e.ctx.Done():
				return
			case <-e.rxKick:
			case <-time.After(readDeadline):
			}
			continue
		}

		n := min(credit, e.layer.opts.ReadChunk)
		buf := e.allocReceiveBuffer(n)
		if buf == nil {
			return // context cancelled while waiting for a buffer
		}

		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		scratch := make([]byte, n)
		m, err := conn.Read(scratch)
		if m > 0 {
			_ = buf.Append(scratch[:m])
			e.mu.Lock()
			e.rxCredit -= m
			e.mu.Unlock()
			e.bytesReceived.Add(uint64(m))
			e.post(&dataReceivedEvent{ep: e, buf: buf})
		} else {
			buf.Release()
		}

		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				continue
			case errors.Is(err, io.EOF):
				e.handlePeerShutdown()
				return
			case errors.Is(err, net.ErrClosed):
				return
			default:
				e.handleConnectionError(err)
				return
			}
		}
	}
}

// allocReceiveBuffer waits out transient buffer exhaustion so reads never
// drop data; it returns nil only when the endpoint is shutting down.
func (e *TCPEndpoint) allocReceiveBuffer(n int) *buffer.Buffer {
	for {
		buf, err := e.layer.alloc.New(n, 0)
		if err == nil {
			return buf
		}
		select {
		case <-e.ctx.Done():
			return nil
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// handlePeerShutdown reacts to the peer's FIN: half-close from Connected,
// full close once our own send direction is already shut.
func (e *TCPEndpoint) handlePeerShutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateConnected:
		e.state = StateReceiveShutdown
	case StateSendShutdown:
		e.doCloseLocked(nil)
	case StateClosing:
		if e.sendPending == 0 {
			e.doCloseLocked(nil)
		}
	}
}

// handleConnectionError tears down after a transport failure (reset, ICMP
// error) and reports it via OnConnectionClosed.
func (e *TCPEndpoint) handleConnectionError(err error) {
	logrus.WithFields(logrus.Fields{
		"component": "inet.TCPEndpoint",
		"error":     err,
	}).Debug("connection failed")

	cause := ErrPeerClosed
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		cause = ErrConnectionAborted
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return
	}
	e.doCloseLocked(newError("connection", "", errors.Join(cause, err)))
}

// writeLoop drains the send queue into the transport, reporting progress
// through OnDataSent and completing deferred shutdown or close once the
// queue is empty.
func (e *TCPEndpoint) writeLoop(conn *net.TCPConn) {
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.sendKick:
		}

		for {
			e.mu.Lock()
			if e.sendQueue.Length() == 0 {
				e.mu.Unlock()
				break
			}
			seg := e.sendQueue.Remove().(*buffer.Buffer)
			e.mu.Unlock()

			n, err := conn.Write(seg.Data())
			seg.Release()
			if n > 0 {
				e.mu.Lock()
				e.sendPending -= n
				e.mu.Unlock()
				e.bytesSent.Add(uint64(n))
				e.post(&dataSentEvent{ep: e, n: n})
			}
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					e.handleConnectionError(err)
				}
				return
			}
		}

		e.mu.Lock()
		if e.sendPending == 0 {
			if e.shutdownAfterSend {
				e.shutdownAfterSend = false
				e.finishSendShutdownLocked()
			}
			if e.closeAfterSend && e.state != StateClosed {
				e.closeAfterSend = false
				e.doCloseLocked(nil)
				e.mu.Unlock()
				return
			}
		}
		done := e.state == StateClosed
		e.mu.Unlock()
		if done {
			return
		}
	}
}

// Event delivery, invoked on the service goroutine.

func (e *TCPEndpoint) deliverConnectComplete(err error) {
	if !e.alive() {
		return
	}
	cb := e.OnConnectComplete
	if err != nil {
		if cb != nil {
			cb(e, err)
		}
		e.mu.Lock()
		e.teardownLocked()
		e.mu.Unlock()
		_ = e.releaseSlot()
		return
	}
	if cb != nil {
		cb(e, nil)
	}
	e.startLoops()
}

func (e *TCPEndpoint) deliverConnectionReceived(child *TCPEndpoint, peerAddr netip.Addr, peerPort uint16) {
	if !e.alive() {
		_ = child.Abort()
		return
	}
	cb := e.OnConnectionReceived
	if cb == nil {
		// Nobody to hand the connection to; reject it.
		_ = child.Abort()
		return
	}
	cb(e, child, peerAddr, peerPort)
	child.startLoops()
}

func (e *TCPEndpoint) deliverData(buf *buffer.Buffer) {
	e.mu.Lock()
	if buf != nil {
		if e.rxPending == nil {
			e.rxPending = buf
		} else {
			e.rxPending.AppendChain(buf)
		}
	}
	var out *buffer.Buffer
	cb := e.OnDataReceived
	if cb != nil && e.rxEnabled && e.state.dataBearing() && e.rxPending != nil {
		out = e.rxPending
		e.rxPending = nil
	}
	e.mu.Unlock()

	if out != nil {
		cb(e, out)
	}
}

func (e *TCPEndpoint) deliverConnectionClosed(err error) {
	if !e.alive() {
		return
	}
	if cb := e.OnConnectionClosed; cb != nil {
		cb(e, err)
	}
	_ = e.releaseSlot()
}

// errorWithState annotates an ErrInvalidState with the state it occurred in.
func errorWithState(base error, state TCPState) error {
	return &stateError{base: base, state: state}
}

type stateError struct {
	base  error
	state TCPState
}

func (e *stateError) Error() string {
	return e.base.Error() + " (" + e.state.String() + ")"
}

func (e *stateError) Unwrap() error {
	return e.base
}
