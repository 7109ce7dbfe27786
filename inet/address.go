package inet

import (
	"fmt"
	"net"
	"net/netip"
)

// IPVersion selects the address family an endpoint operates on.
type IPVersion uint8

const (
	// IPv4 selects the IPv4 address family.
	IPv4 IPVersion = iota + 1
	// IPv6 selects the IPv6 address family.
	IPv6
)

func (v IPVersion) String() string {
	switch v {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	default:
		return fmt.Sprintf("IPVersion(%d)", uint8(v))
	}
}

func (v IPVersion) valid() bool {
	return v == IPv4 || v == IPv6
}

// matches reports whether addr belongs to this address family. The
// unspecified zero Addr matches either family.
func (v IPVersion) matches(addr netip.Addr) bool {
	if !addr.IsValid() {
		return true
	}
	if v == IPv4 {
		return addr.Is4() || addr.Is4In6()
	}
	return addr.Is6() && !addr.Is4In6()
}

func (v IPVersion) udpNetwork() string {
	if v == IPv4 {
		return "udp4"
	}
	return "udp6"
}

func (v IPVersion) tcpNetwork() string {
	if v == IPv4 {
		return "tcp4"
	}
	return "tcp6"
}

// IPProtocol identifies the protocol a raw endpoint sends and receives.
type IPProtocol uint8

const (
	// ICMPv4 is the IPv4 ICMP protocol number.
	ICMPv4 IPProtocol = 1
	// ICMPv6 is the IPv6 ICMP protocol number.
	ICMPv6 IPProtocol = 58
)

func (p IPProtocol) rawNetwork(v IPVersion) string {
	if v == IPv4 {
		return fmt.Sprintf("ip4:%d", uint8(p))
	}
	return fmt.Sprintf("ip6:%d", uint8(p))
}

// InterfaceID names a network interface by OS index; zero means unspecified.
type InterfaceID int

// InterfaceIDByName maps a human-readable interface name ("eth0", "lo") to
// its identifier.
func InterfaceIDByName(name string) (InterfaceID, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return 0, newError("interface lookup", name, fmt.Errorf("%w: %v", ErrConfiguration, err))
	}
	return InterfaceID(ifi.Index), nil
}

// InterfaceNameByID is the reverse mapping, for diagnostics.
func InterfaceNameByID(id InterfaceID) (string, error) {
	ifi, err := net.InterfaceByIndex(int(id))
	if err != nil {
		return "", newError("interface lookup", fmt.Sprintf("#%d", id), fmt.Errorf("%w: %v", ErrConfiguration, err))
	}
	return ifi.Name, nil
}

// IPPacketInfo describes one connectionless receive: where the datagram came
// from, where it was addressed, and the interface it arrived on. Immutable
// once delivered.
type IPPacketInfo struct {
	SrcAddress  netip.Addr
	DestAddress netip.Addr
	SrcPort     uint16
	DestPort    uint16
	Interface   InterfaceID
}

// addrPortString renders addr:port for dialing and diagnostics, tolerating
// an invalid (wildcard) address.
func addrPortString(addr netip.Addr, port uint16) string {
	if !addr.IsValid() {
		return fmt.Sprintf(":%d", port)
	}
	return netip.AddrPortFrom(addr, port).String()
}

// addrFromNet converts the net address types the socket layer hands back.
func addrFromNet(addr net.Addr) (netip.Addr, uint16) {
	switch a := addr.(type) {
	case *net.UDPAddr:
		ip, _ := netip.AddrFromSlice(a.IP)
		return ip.Unmap(), uint16(a.Port)
	case *net.TCPAddr:
		ip, _ := netip.AddrFromSlice(a.IP)
		return ip.Unmap(), uint16(a.Port)
	case *net.IPAddr:
		ip, _ := netip.AddrFromSlice(a.IP)
		return ip.Unmap(), 0
	default:
		return netip.Addr{}, 0
	}
}
