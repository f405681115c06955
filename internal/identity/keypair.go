// Package identity provides the out-of-band operator identity used to
// verify that two ends of a tunnel agree on the same pre-shared
// Kuznyechik key without ever transmitting it. It has no role in
// encrypting tunnel payloads; that remains tunnelcrypto's static-key job.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode5"
)

// Key sizes for the hybrid ML-DSA-87 + Ed25519 identity keypair.
const (
	MLDSAPublicKeySize   = mode5.PublicKeySize
	MLDSAPrivateKeySize  = mode5.PrivateKeySize
	MLDSASignatureSize   = mode5.SignatureSize
	Ed25519PublicKeySize = ed25519.PublicKeySize
	Ed25519PrivateSize   = ed25519.PrivateKeySize
	Ed25519SignatureSize = ed25519.SignatureSize

	// SignatureSize is the size of a hybrid signature: ML-DSA-87 || Ed25519.
	SignatureSize = MLDSASignatureSize + Ed25519SignatureSize
)

var (
	ErrInvalidKeypair     = errors.New("identity: invalid or incomplete keypair")
	ErrVerificationFailed = errors.New("identity: signature verification failed")
	ErrSigningFailed      = errors.New("identity: signing failed")
)

// Keypair is an operator's long-term identity: ML-DSA-87 for post-quantum
// assurance, Ed25519 kept alongside for cheap, fast verification and as a
// classical fallback. Both must sign and both must verify for the hybrid
// signature to be accepted.
type Keypair struct {
	MLDSAPublicKey    []byte
	MLDSAPrivateKey   []byte
	Ed25519PublicKey  []byte
	Ed25519PrivateKey []byte
}

// Generate creates a new hybrid identity keypair.
func Generate() (*Keypair, error) {
	mldsaPub, mldsaPriv, err := mode5.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate ML-DSA-87 key: %w", err)
	}
	edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate Ed25519 key: %w", err)
	}

	mldsaPubBytes, err := mldsaPub.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("identity: marshal ML-DSA-87 public key: %w", err)
	}
	mldsaPrivBytes, err := mldsaPriv.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("identity: marshal ML-DSA-87 private key: %w", err)
	}

	return &Keypair{
		MLDSAPublicKey:    mldsaPubBytes,
		MLDSAPrivateKey:   mldsaPrivBytes,
		Ed25519PublicKey:  []byte(edPub),
		Ed25519PrivateKey: []byte(edPriv),
	}, nil
}

// Public returns a Keypair holding only the public half, suitable for
// sharing with a peer so it can verify signatures.
func (k *Keypair) Public() *Keypair {
	return &Keypair{
		MLDSAPublicKey:   k.MLDSAPublicKey,
		Ed25519PublicKey: k.Ed25519PublicKey,
	}
}

// validatePrivate checks both private halves are present and correctly sized.
func (k *Keypair) validatePrivate() error {
	if k == nil || len(k.MLDSAPrivateKey) != MLDSAPrivateKeySize || len(k.Ed25519PrivateKey) != Ed25519PrivateSize {
		return ErrInvalidKeypair
	}
	return nil
}

// validatePublic checks both public halves are present and correctly sized.
func (k *Keypair) validatePublic() error {
	if k == nil || len(k.MLDSAPublicKey) != MLDSAPublicKeySize || len(k.Ed25519PublicKey) != Ed25519PublicKeySize {
		return ErrInvalidKeypair
	}
	return nil
}

// MarshalText encodes the keypair's four fields as hex, concatenated in a
// fixed order, for writing to an identity file on disk.
func (k *Keypair) MarshalText() ([]byte, error) {
	if err := k.validatePublic(); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(k.MLDSAPublicKey)+len(k.MLDSAPrivateKey)+len(k.Ed25519PublicKey)+len(k.Ed25519PrivateKey))
	buf = append(buf, k.MLDSAPublicKey...)
	buf = append(buf, k.MLDSAPrivateKey...)
	buf = append(buf, k.Ed25519PublicKey...)
	buf = append(buf, k.Ed25519PrivateKey...)
	return []byte(hex.EncodeToString(buf)), nil
}

// UnmarshalKeypair decodes a keypair previously produced by MarshalText. The
// private fields are empty if text was produced by Public().
func UnmarshalKeypair(text []byte) (*Keypair, error) {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return nil, fmt.Errorf("identity: decode keypair: %w", err)
	}

	full := MLDSAPublicKeySize + MLDSAPrivateKeySize + Ed25519PublicKeySize + Ed25519PrivateSize
	pubOnly := MLDSAPublicKeySize + Ed25519PublicKeySize

	switch len(raw) {
	case full:
		return &Keypair{
			MLDSAPublicKey:    raw[0:MLDSAPublicKeySize],
			MLDSAPrivateKey:   raw[MLDSAPublicKeySize : MLDSAPublicKeySize+MLDSAPrivateKeySize],
			Ed25519PublicKey:  raw[MLDSAPublicKeySize+MLDSAPrivateKeySize : MLDSAPublicKeySize+MLDSAPrivateKeySize+Ed25519PublicKeySize],
			Ed25519PrivateKey: raw[MLDSAPublicKeySize+MLDSAPrivateKeySize+Ed25519PublicKeySize:],
		}, nil
	case pubOnly:
		return &Keypair{
			MLDSAPublicKey:   raw[0:MLDSAPublicKeySize],
			Ed25519PublicKey: raw[MLDSAPublicKeySize:],
		}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected encoded length %d", ErrInvalidKeypair, len(raw))
	}
}
