// Package hostnet encapsulates every OS-level network change the tunnel
// makes outside the TAP interface itself: routing table surgery, DNS,
// firewall rules, IP forwarding, and NAT. Each semantic operation is one
// method so the tunnel logic never shells out directly and a test backend
// can record calls instead of touching the real network stack.
package hostnet

// HostNet is the host network control surface the tunnel drives during
// bring-up and teardown.
type HostNet interface {
	// DefaultGateway returns the system's current default gateway. The
	// Windows backend skips gateways starting with "10.8." (the default
	// tunnel subnet); the Linux backend returns the gateway of the first
	// default route as is.
	DefaultGateway() (string, error)

	// SetMTU sets iface's link MTU.
	SetMTU(iface string, mtu int) error

	// AddExclusionRoute routes cidr via gateway at the given metric, so
	// that traffic to it bypasses the tunnel's default route. Used for the
	// carrier's own subnets (Telegram/VK) and for resolved API IPs.
	AddExclusionRoute(cidr, gateway string, metric int) error

	// AddDefaultHalves splits 0.0.0.0/0 into its two /1 halves routed via
	// serverIP over iface, overriding the real default route without
	// removing it.
	AddDefaultHalves(serverIP, iface string, metric int) error

	// SetDNS assigns DNS resolvers to iface.
	SetDNS(iface string, servers []string) error

	// AllowFirewall opens inbound/outbound traffic on iface and marks its
	// network category private, matching setup used by both client and
	// server roles.
	AllowFirewall(iface string) error

	// EnableIPForwarding turns on OS-level IP forwarding, required for a
	// server role to relay between the tunnel and the LAN/internet.
	EnableIPForwarding() error

	// EnsureNAT (re)creates a NAT rule named name translating traffic from
	// subnetCIDR, removing any stale rule of the same name first.
	EnsureNAT(name, subnetCIDR string) error

	// Cleanup best-effort removes the two half-default routes added by
	// AddDefaultHalves and, on Windows, the NAT rule named NATRuleName. The
	// Linux backend leaves its NAT rule in place, and no backend removes
	// routes added by AddExclusionRoute. Every step is independent: a
	// failure in one does not stop the rest from running.
	Cleanup(iface string) error
}

var (
	_ HostNet = (*Windows)(nil)
	_ HostNet = (*Linux)(nil)
	_ HostNet = (*Fake)(nil)
)
