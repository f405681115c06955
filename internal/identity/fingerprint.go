package identity

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Fingerprint hashes a hybrid public key for compact comparison, the
// identity-keypair analogue of KeyFingerprint below.
func Fingerprint(pub *Keypair) (string, error) {
	if err := pub.validatePublic(); err != nil {
		return "", err
	}
	combined := make([]byte, 0, len(pub.MLDSAPublicKey)+len(pub.Ed25519PublicKey))
	combined = append(combined, pub.MLDSAPublicKey...)
	combined = append(combined, pub.Ed25519PublicKey...)
	sum := sha256.Sum256(combined)
	return formatFingerprint(sum[:]), nil
}

// KeyFingerprint hashes the tunnel's pre-shared Kuznyechik key into a short,
// human-comparable string. Operators read this aloud or paste it into a chat
// to confirm both ends were configured with the same key, without ever
// transmitting the key itself.
func KeyFingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return formatFingerprint(sum[:])
}

// formatFingerprint renders a hash as groups of 4 hex digits separated by
// dashes, truncated to the first 8 groups — long enough to rule out
// collision by eye, short enough to read over a voice call.
func formatFingerprint(sum []byte) string {
	hexStr := fmt.Sprintf("%x", sum)
	var groups []string
	for i := 0; i < len(hexStr) && len(groups) < 8; i += 4 {
		end := i + 4
		if end > len(hexStr) {
			end = len(hexStr)
		}
		groups = append(groups, hexStr[i:end])
	}
	return strings.ToUpper(strings.Join(groups, "-"))
}
