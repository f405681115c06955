package tunnelcrypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func generateTestKey() [KeySize]byte {
	var key [KeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		panic(err)
	}
	return key
}

func TestSealOpenRoundtrip(t *testing.T) {
	box := NewBox(generateTestKey())

	testCases := []struct {
		name      string
		plaintext []byte
	}{
		{"empty frame", []byte{}},
		{"small frame", []byte("Hello, TeleVK!")},
		{"exactly one block", make([]byte, BlockSize)},
		{"typical Ethernet frame", make([]byte, 1500)},
		{"jumbo-ish frame", make([]byte, 9000)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			plaintext := make([]byte, len(tc.plaintext))
			copy(plaintext, tc.plaintext)
			if len(plaintext) > 0 {
				rand.Read(plaintext)
			}

			sealed, err := box.Seal(plaintext)
			if err != nil {
				t.Fatalf("Seal failed: %v", err)
			}

			// IV + at least one padded block
			if len(sealed) < BlockSize+BlockSize {
				t.Fatalf("sealed length %d too short", len(sealed))
			}
			if len(sealed)%BlockSize != 0 {
				t.Errorf("sealed length %d is not block-aligned", len(sealed))
			}

			opened, err := box.Open(sealed)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}

			if !bytes.Equal(opened, plaintext) {
				t.Errorf("opened plaintext doesn't match original")
			}
		})
	}
}

func TestSealUsesFreshIVEachTime(t *testing.T) {
	box := NewBox(generateTestKey())
	plaintext := []byte("same plaintext every time")

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		sealed, err := box.Seal(plaintext)
		if err != nil {
			t.Fatalf("Seal failed on iteration %d: %v", i, err)
		}
		iv := string(sealed[:BlockSize])
		if seen[iv] {
			t.Fatalf("duplicate IV detected on iteration %d", i)
		}
		seen[iv] = true
	}
}

func TestOpenRejectsTooShort(t *testing.T) {
	box := NewBox(generateTestKey())

	cases := [][]byte{
		{},
		make([]byte, BlockSize),
		make([]byte, BlockSize+1),
	}

	for _, c := range cases {
		if _, err := box.Open(c); err != ErrInvalidCiphertext {
			t.Errorf("Open(%d bytes) error = %v, want ErrInvalidCiphertext", len(c), err)
		}
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	box1 := NewBox(generateTestKey())
	box2 := NewBox(generateTestKey())

	sealed, err := box1.Seal([]byte("secret payload needing more than one block of data"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	if _, err := box2.Open(sealed); err == nil {
		t.Error("Open() with wrong key succeeded, want padding validation error")
	}
}

func TestOpenRejectsCorruptedCiphertext(t *testing.T) {
	box := NewBox(generateTestKey())

	sealed, err := box.Seal([]byte("a payload spanning more than a single cipher block of data"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	corrupted := make([]byte, len(sealed))
	copy(corrupted, sealed)
	corrupted[len(corrupted)-1] ^= 0xFF

	if _, err := box.Open(corrupted); err == nil {
		t.Error("Open() with corrupted final block succeeded, want padding error")
	}
}

func TestNewBoxFromSliceValidatesLength(t *testing.T) {
	if _, err := NewBoxFromSlice(make([]byte, KeySize-1)); err == nil {
		t.Error("NewBoxFromSlice() with short key succeeded, want error")
	}
	if _, err := NewBoxFromSlice(make([]byte, KeySize)); err != nil {
		t.Errorf("NewBoxFromSlice() with valid key failed: %v", err)
	}
}
