package identity

import (
	"crypto/ed25519"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode5"
)

// Sign produces a hybrid signature over message: ML-DSA-87 signature
// followed by Ed25519 signature. Both require priv's private halves.
func Sign(message []byte, priv *Keypair) ([]byte, error) {
	if err := priv.validatePrivate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	var mldsaPriv mode5.PrivateKey
	if err := mldsaPriv.UnmarshalBinary(priv.MLDSAPrivateKey); err != nil {
		return nil, fmt.Errorf("%w: unmarshal ML-DSA-87 private key: %v", ErrSigningFailed, err)
	}

	mldsaSig := make([]byte, MLDSASignatureSize)
	mode5.SignTo(&mldsaPriv, message, mldsaSig)

	edSig := ed25519.Sign(ed25519.PrivateKey(priv.Ed25519PrivateKey), message)

	sig := make([]byte, 0, SignatureSize)
	sig = append(sig, mldsaSig...)
	sig = append(sig, edSig...)
	return sig, nil
}

// Verify reports whether signature is a valid hybrid signature over message
// under pub's public halves. Both the ML-DSA-87 and the Ed25519 component
// must verify; either failing fails the whole signature.
func Verify(message, signature []byte, pub *Keypair) bool {
	if err := pub.validatePublic(); err != nil {
		return false
	}
	if len(signature) != SignatureSize {
		return false
	}

	var mldsaPub mode5.PublicKey
	if err := mldsaPub.UnmarshalBinary(pub.MLDSAPublicKey); err != nil {
		return false
	}

	mldsaSig := signature[:MLDSASignatureSize]
	edSig := signature[MLDSASignatureSize:]

	if !mode5.Verify(&mldsaPub, message, mldsaSig) {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub.Ed25519PublicKey), message, edSig)
}
