package inet

import (
	"net/netip"

	"github.com/mlf-haier/openweave-core/buffer"
)

// The closed set of endpoint events. Transport goroutines construct these
// and post them to the system layer; Deliver runs on the service goroutine.
// Every Deliver checks the target's pool generation first, so events queued
// for an endpoint that has since been freed are dropped, payload released.

// messageSink is the receive side of a connectionless endpoint (raw or UDP).
type messageSink interface {
	alive() bool
	deliverMessage(buf *buffer.Buffer, info *IPPacketInfo)
	deliverReceiveError(err error, info *IPPacketInfo)
}

type messageReceivedEvent struct {
	sink messageSink
	buf  *buffer.Buffer
	info *IPPacketInfo
}

func (e *messageReceivedEvent) Deliver() {
	if !e.sink.alive() {
		e.buf.Release()
		return
	}
	e.sink.deliverMessage(e.buf, e.info)
}

type receiveErrorEvent struct {
	sink messageSink
	err  error
	info *IPPacketInfo
}

func (e *receiveErrorEvent) Deliver() {
	if !e.sink.alive() {
		return
	}
	e.sink.deliverReceiveError(e.err, e.info)
}

type connectCompleteEvent struct {
	ep  *TCPEndpoint
	err error
}

func (e *connectCompleteEvent) Deliver() {
	e.ep.deliverConnectComplete(e.err)
}

type connectionReceivedEvent struct {
	listener *TCPEndpoint
	child    *TCPEndpoint
	peerAddr netip.Addr
	peerPort uint16
	done     func() // returns the listener's backlog token
}

func (e *connectionReceivedEvent) Deliver() {
	if e.done != nil {
		e.done()
	}
	e.listener.deliverConnectionReceived(e.child, e.peerAddr, e.peerPort)
}

type acceptErrorEvent struct {
	ep  *TCPEndpoint
	err error
}

func (e *acceptErrorEvent) Deliver() {
	if !e.ep.alive() {
		return
	}
	if cb := e.ep.OnAcceptError; cb != nil {
		cb(e.ep, e.err)
	}
}

type dataSentEvent struct {
	ep *TCPEndpoint
	n  int
}

func (e *dataSentEvent) Deliver() {
	if !e.ep.alive() {
		return
	}
	if cb := e.ep.OnDataSent; cb != nil {
		cb(e.ep, e.n)
	}
}

// dataReceivedEvent carries newly read bytes, or with a nil buf requests
// redelivery of queued data (put-back, EnableReceive).
type dataReceivedEvent struct {
	ep  *TCPEndpoint
	buf *buffer.Buffer
}

func (e *dataReceivedEvent) Deliver() {
	if !e.ep.alive() {
		if e.buf != nil {
			e.buf.Release()
		}
		return
	}
	e.ep.deliverData(e.buf)
}

type connectionClosedEvent struct {
	ep  *TCPEndpoint
	err error
}

func (e *connectionClosedEvent) Deliver() {
	e.ep.deliverConnectionClosed(e.err)
}
