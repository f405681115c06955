package layer2

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// blockedDestinationIPs are exact-match broadcast/discovery destinations
// that never belong on the tunnel.
var blockedDestinationIPs = map[string]bool{
	"255.255.255.255": true,
	"224.0.0.251":     true,
	"224.0.0.252":     true,
	"239.255.255.250": true,
}

// blockedUDPPorts are well-known LAN-discovery/broadcast service ports
// (NetBIOS, SMB, SSDP, mDNS, LLMNR).
var blockedUDPPorts = map[uint16]bool{
	137:  true,
	138:  true,
	139:  true,
	445:  true,
	1900: true,
	5353: true,
	5355: true,
}

// IsGarbage reports whether an IPv4 payload (the bytes after the Ethernet
// header) should be dropped rather than forwarded across the tunnel.
//
// ipPayload must be at least a 20-byte IPv4 header; shorter payloads are
// treated as garbage rather than causing a panic.
func IsGarbage(ipPayload []byte) bool {
	if len(ipPayload) < 20 {
		return true
	}

	dst := ipv4String(ipPayload[16:20])
	if blockedDestinationIPs[dst] {
		return true
	}
	if strings.HasPrefix(dst, "224.") {
		return true
	}
	if strings.HasSuffix(dst, ".255") {
		return true
	}

	proto := ipPayload[9]
	if proto == 17 { // UDP
		ihl := int(ipPayload[0]&0x0F) * 4
		udpStart := ihl
		if udpStart+4 <= len(ipPayload) {
			dstPort := binary.BigEndian.Uint16(ipPayload[udpStart+2 : udpStart+4])
			if blockedUDPPorts[dstPort] {
				return true
			}
		}
	}

	return false
}

func ipv4String(b []byte) string {
	var sb strings.Builder
	for i, octet := range b[:4] {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.Itoa(int(octet)))
	}
	return sb.String()
}
