package hostnet

import (
	"context"
	"fmt"
	"net"
)

// carrierHostnames lists the public hostnames whose resolved IPv4
// addresses must bypass the tunnel, in addition to the static CIDR list
// already carried in config.TelegramSubnets. The original client resolves
// these via getaddrinfo at bring-up (network_manager.py::_resolve_api_ips);
// an empty list for a transport type is not an error, just nothing to add.
var carrierHostnames = map[string][]string{
	"telegram": {"api.telegram.org", "telegram.org"},
	"vk":       {"api.vk.com", "vk.com", "im.vk.com", "pu.vk.com", "login.vk.com"},
}

// ClientBringup holds everything SetupClient needs to install the split
// tunnel on the client side.
type ClientBringup struct {
	Iface           string
	MTU             int
	ServerIP        string
	TransportType   string
	ExclusionCIDRs  []string
	DNSServers      []string
	ExclusionMetric int
}

// SetupClient installs the client-side split tunnel: carrier traffic keeps
// using the real default route, everything else follows the two half-
// default routes onto the TAP interface.
func SetupClient(hn HostNet, cfg ClientBringup) error {
	gateway, err := hn.DefaultGateway()
	if err != nil {
		return fmt.Errorf("hostnet: no default gateway found: %w", err)
	}

	if err := hn.SetMTU(cfg.Iface, cfg.MTU); err != nil {
		return fmt.Errorf("hostnet: set MTU: %w", err)
	}

	metric := cfg.ExclusionMetric
	if metric == 0 {
		metric = 1
	}

	for _, cidr := range cfg.ExclusionCIDRs {
		if err := hn.AddExclusionRoute(cidr, gateway, metric); err != nil {
			return fmt.Errorf("hostnet: add exclusion route %s: %w", cidr, err)
		}
	}
	for _, ip := range resolveCarrierIPs(cfg.TransportType) {
		if err := hn.AddExclusionRoute(ip+"/32", gateway, metric); err != nil {
			return fmt.Errorf("hostnet: add exclusion route for %s: %w", ip, err)
		}
	}

	if err := hn.AddDefaultHalves(cfg.ServerIP, cfg.Iface, metric); err != nil {
		return fmt.Errorf("hostnet: add default halves: %w", err)
	}

	if len(cfg.DNSServers) > 0 {
		if err := hn.SetDNS(cfg.Iface, cfg.DNSServers); err != nil {
			return fmt.Errorf("hostnet: set DNS: %w", err)
		}
	}

	if err := hn.AllowFirewall(cfg.Iface); err != nil {
		return fmt.Errorf("hostnet: allow firewall: %w", err)
	}

	return nil
}

// ServerBringup holds everything SetupServer needs to NAT tunnel traffic
// to the Internet.
type ServerBringup struct {
	Iface      string
	MTU        int
	SubnetCIDR string
}

// SetupServer installs server-side forwarding and NAT.
func SetupServer(hn HostNet, cfg ServerBringup) error {
	if err := hn.SetMTU(cfg.Iface, cfg.MTU); err != nil {
		return fmt.Errorf("hostnet: set MTU: %w", err)
	}
	if err := hn.EnableIPForwarding(); err != nil {
		return fmt.Errorf("hostnet: enable IP forwarding: %w", err)
	}
	if err := hn.AllowFirewall(cfg.Iface); err != nil {
		return fmt.Errorf("hostnet: allow firewall: %w", err)
	}
	if err := hn.EnsureNAT(NATRuleName, cfg.SubnetCIDR); err != nil {
		return fmt.Errorf("hostnet: ensure NAT rule: %w", err)
	}
	return nil
}

// resolveCarrierIPs resolves the fixed per-transport hostname list to
// IPv4 addresses. Resolution failures for an individual hostname are
// skipped rather than aborting bring-up: a transient DNS hiccup for one
// of several exclusion hosts should not block the whole tunnel from
// starting, since the static CIDR exclusions already cover most traffic.
func resolveCarrierIPs(transportType string) []string {
	hostnames := carrierHostnames[transportType]
	if len(hostnames) == 0 {
		return nil
	}

	var ips []string
	for _, host := range hostnames {
		addrs, err := net.DefaultResolver.LookupIPAddr(context.Background(), host)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if v4 := addr.IP.To4(); v4 != nil {
				ips = append(ips, v4.String())
			}
		}
	}
	return ips
}
