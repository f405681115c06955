// Package tunnelcrypto seals and opens tunnel payloads with GOST R 34.12-2015
// "Kuznyechik" in CBC mode. There is no key exchange here: both endpoints
// hold the same static 256-bit pre-shared key, loaded from configuration.
package tunnelcrypto

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"go.cypherpunks.ru/gogost/v5/gost3412128"
)

// KeySize is the required Kuznyechik key length in bytes (256 bits).
const KeySize = 32

// BlockSize is the Kuznyechik block size in bytes (128 bits).
const BlockSize = gost3412128.BlockSize

// ErrInvalidCiphertext indicates the input is too short to contain an IV
// and at least one ciphertext block.
var ErrInvalidCiphertext = errors.New("tunnelcrypto: ciphertext shorter than IV plus one block")

// Box seals and opens batches with a single static Kuznyechik-CBC key.
// It is safe for concurrent use: every Seal draws a fresh random IV and the
// underlying cipher.Block is stateless between calls.
type Box struct {
	key [KeySize]byte
}

// NewBox constructs a Box from a 32-byte pre-shared key.
func NewBox(key [KeySize]byte) *Box {
	return &Box{key: key}
}

// NewBoxFromSlice validates and wraps a key supplied as a byte slice, e.g.
// one loaded from configuration.
func NewBoxFromSlice(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("tunnelcrypto: key must be %d bytes, got %d", KeySize, len(key))
	}
	var b Box
	copy(b.key[:], key)
	return &b, nil
}

// Seal PKCS7-pads plaintext, encrypts it under a freshly generated random
// IV, and returns iv‖ciphertext.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	block := gost3412128.NewCipher(b.key[:])

	iv := make([]byte, BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("tunnelcrypto: generate iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, len(iv)+len(ciphertext))
	out = append(out, iv...)
	out = append(out, ciphertext...)
	return out, nil
}

// Open reverses Seal: it splits off the leading IV, decrypts the remainder,
// and strips PKCS7 padding. A padding validation failure almost always
// means the wrong key was used.
func (b *Box) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < BlockSize+BlockSize {
		return nil, ErrInvalidCiphertext
	}

	iv := sealed[:BlockSize]
	ciphertext := sealed[BlockSize:]
	if len(ciphertext)%BlockSize != 0 {
		return nil, ErrInvalidCiphertext
	}

	block := gost3412128.NewCipher(b.key[:])

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, BlockSize)
	if err != nil {
		return nil, fmt.Errorf("tunnelcrypto: unpad (likely wrong key): %w", err)
	}

	return plaintext, nil
}
