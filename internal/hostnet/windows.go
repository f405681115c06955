package hostnet

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// NATRuleName is the conventional Windows NetNat object name used for the
// server role's address translation. Cleanup only knows how to remove this
// name, so callers should pass it to EnsureNAT rather than inventing one.
const NATRuleName = "TeleVKVPN_NAT"

// Windows drives host network configuration through PowerShell cmdlets and
// the legacy `route`/`reg` tools, exactly as a Windows-targeted VPN client
// must: there is no single netlink-equivalent API surface here.
type Windows struct{}

// NewWindows returns a HostNet backend for the current (Windows) host.
func NewWindows() *Windows { return &Windows{} }

func (w *Windows) runPS(script string) ([]byte, error) {
	out, err := exec.Command("powershell", "-NoProfile", "-ExecutionPolicy", "Bypass", "-Command", script).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("powershell: %w (output: %s)", err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

func (w *Windows) interfaceIndex(iface string) (string, error) {
	out, err := w.runPS(fmt.Sprintf(`(Get-NetAdapter -Name "%s").InterfaceIndex`, iface))
	if err != nil {
		return "", fmt.Errorf("hostnet: resolve interface index for %s: %w", iface, err)
	}
	idx := strings.TrimSpace(string(out))
	if _, err := strconv.Atoi(idx); err != nil {
		return "", fmt.Errorf("hostnet: interface %s not found", iface)
	}
	return idx, nil
}

func (w *Windows) DefaultGateway() (string, error) {
	out, err := exec.Command("route", "print", "0.0.0.0").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("hostnet: route print: %w", err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "0.0.0.0") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		gw := fields[2]
		if strings.HasPrefix(gw, "10.8.") {
			continue // our own tunnel subnet, not the real gateway
		}
		return gw, nil
	}
	return "", fmt.Errorf("hostnet: default gateway not found")
}

func (w *Windows) SetMTU(iface string, mtu int) error {
	idx, err := w.interfaceIndex(iface)
	if err != nil {
		return err
	}
	if _, err := w.runPS(fmt.Sprintf("Set-NetIPInterface -InterfaceIndex %s -NlMtuBytes %d", idx, mtu)); err != nil {
		return fmt.Errorf("hostnet: set MTU on %s: %w", iface, err)
	}
	return nil
}

func (w *Windows) AddExclusionRoute(cidr, gateway string, metric int) error {
	cmd := exec.Command("route", "add", cidr, gateway, "metric", strconv.Itoa(metric))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("hostnet: add exclusion route %s via %s: %w (output: %s)", cidr, gateway, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (w *Windows) AddDefaultHalves(serverIP, iface string, metric int) error {
	idx, err := w.interfaceIndex(iface)
	if err != nil {
		return err
	}

	for _, half := range []string{"0.0.0.0", "128.0.0.0"} {
		cmd := exec.Command("route", "add", half, "mask", "128.0.0.0", serverIP, "metric", strconv.Itoa(metric), "IF", idx)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("hostnet: add default half %s via %s: %w (output: %s)", half, serverIP, err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}

func (w *Windows) SetDNS(iface string, servers []string) error {
	idx, err := w.interfaceIndex(iface)
	if err != nil {
		return err
	}

	quoted := make([]string, len(servers))
	for i, s := range servers {
		quoted[i] = "'" + s + "'"
	}
	script := fmt.Sprintf("Set-DnsClientServerAddress -InterfaceIndex %s -ServerAddresses (%s)", idx, strings.Join(quoted, ","))
	if _, err := w.runPS(script); err != nil {
		return fmt.Errorf("hostnet: set DNS on %s: %w", iface, err)
	}
	return nil
}

func (w *Windows) AllowFirewall(iface string) error {
	script := fmt.Sprintf(`
Set-NetConnectionProfile -InterfaceAlias "%s" -NetworkCategory Private
New-NetFirewallRule -DisplayName "TeleVKVPN_IN" -Direction Inbound -InterfaceAlias "%s" -Action Allow -Enabled True -ErrorAction SilentlyContinue
New-NetFirewallRule -DisplayName "TeleVKVPN_OUT" -Direction Outbound -InterfaceAlias "%s" -Action Allow -Enabled True -ErrorAction SilentlyContinue
`, iface, iface, iface)
	if _, err := w.runPS(script); err != nil {
		return fmt.Errorf("hostnet: configure firewall for %s: %w", iface, err)
	}
	return nil
}

func (w *Windows) EnableIPForwarding() error {
	cmd := exec.Command("reg", "add", `HKLM\SYSTEM\CurrentControlSet\Services\Tcpip\Parameters`,
		"/v", "IPEnableRouter", "/t", "REG_DWORD", "/d", "1", "/f")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("hostnet: enable IP forwarding: %w (output: %s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (w *Windows) EnsureNAT(name, subnetCIDR string) error {
	w.runPS(fmt.Sprintf(`Remove-NetNat -Name '%s' -Confirm:$false -ErrorAction SilentlyContinue`, name))
	if _, err := w.runPS(fmt.Sprintf(`New-NetNat -Name '%s' -InternalIPInterfaceAddressPrefix '%s'`, name, subnetCIDR)); err != nil {
		return fmt.Errorf("hostnet: create NAT rule %s: %w", name, err)
	}
	return nil
}

func (w *Windows) Cleanup(iface string) error {
	w.runPS(fmt.Sprintf(`Remove-NetNat -Name '%s' -Confirm:$false -ErrorAction SilentlyContinue`, NATRuleName))
	exec.Command("route", "delete", "0.0.0.0", "mask", "128.0.0.0").Run()
	exec.Command("route", "delete", "128.0.0.0", "mask", "128.0.0.0").Run()
	return nil
}
