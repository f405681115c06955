package tunnelcrypto

import (
	"bytes"
	"testing"
)

func TestPKCS7PadUnpadRoundtrip(t *testing.T) {
	sizes := []int{0, 1, 15, 16, 17, 31, 32, 100}
	for _, n := range sizes {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i)
		}

		padded := pkcs7Pad(data, BlockSize)
		if len(padded)%BlockSize != 0 {
			t.Fatalf("n=%d: padded length %d not a multiple of %d", n, len(padded), BlockSize)
		}
		if len(padded) <= n && n%BlockSize == 0 {
			// A full block of padding must always be added, even when the
			// input is already block-aligned.
			t.Fatalf("n=%d: expected a full padding block to be appended", n)
		}

		unpadded, err := pkcs7Unpad(padded, BlockSize)
		if err != nil {
			t.Fatalf("n=%d: pkcs7Unpad failed: %v", n, err)
		}
		if !bytes.Equal(unpadded, data) {
			t.Fatalf("n=%d: unpadded data doesn't match original", n)
		}
	}
}

func TestPKCS7UnpadRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"not block-aligned", make([]byte, BlockSize+1)},
		{"zero padding length", append(make([]byte, BlockSize-1), 0x00)},
		{"padding length exceeds block", append(make([]byte, BlockSize-1), 0xFF)},
		{"inconsistent padding bytes", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 0x02, 0x03}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := pkcs7Unpad(tc.data, BlockSize); err == nil {
				t.Errorf("pkcs7Unpad() succeeded, want error")
			}
		})
	}
}
