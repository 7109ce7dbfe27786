// Package inet provides asynchronous raw IP, UDP, and TCP endpoints behind a
// uniform callback-driven interface, portable over whatever socket layer the
// host offers.
//
// # Architecture
//
// A Layer owns a fixed-capacity endpoint pool and hands out endpoints of
// three kinds:
//
//	raw, _ := layer.NewRawEndpoint(inet.IPv6, inet.ICMPv6)
//	udp, _ := layer.NewUDPEndpoint()
//	tcp, _ := layer.NewTCPEndpoint()
//
// Applications register callbacks on an endpoint, then issue Bind, Listen,
// Connect, Send, or SendTo. Transport readiness is turned into events on the
// system layer, and every callback runs inside the owner's call to
// system.Layer.Service — never on a hidden goroutine. Payloads travel in
// buffer.Buffer values whose ownership transfers explicitly at each
// callback and send boundary.
//
// Endpoints live in a generation-tagged pool slot. Releasing an endpoint
// (Free, or a TCP endpoint reaching its terminal state) invalidates the
// handle: any later operation fails with ErrEndpointReleased, and events
// still queued for it are quietly dropped.
package inet
