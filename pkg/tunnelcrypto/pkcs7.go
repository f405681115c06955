package tunnelcrypto

import "fmt"

// pkcs7Pad appends PKCS7 padding to data so its length becomes a multiple of
// blockSize. A full block of padding is added when len(data) is already a
// multiple of blockSize, matching pycryptodome's Padding.pad behaviour.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// pkcs7Unpad strips and validates PKCS7 padding. It rejects padding that is
// missing, zero, longer than blockSize, or whose bytes are not all equal to
// the padding length, since any of those indicate a corrupted or
// wrong-key ciphertext.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("tunnelcrypto: padded data length %d is not a multiple of block size %d", len(data), blockSize)
	}

	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("tunnelcrypto: invalid PKCS7 padding length %d", padLen)
	}

	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("tunnelcrypto: malformed PKCS7 padding")
		}
	}

	return data[:len(data)-padLen], nil
}
