package vault

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(bytes.Repeat([]byte{0x42}, KeySize))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return c
}

func TestNewCipherKeySize(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		if _, err := NewCipher(make([]byte, n)); !errors.Is(err, ErrMasterKey) {
			t.Fatalf("key of %d bytes: err = %v, want ErrMasterKey", n, err)
		}
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := testCipher(t)
	plaintext := "sk-" + strings.Repeat("a", 48)

	blob, hash, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if hash != LookupHash(plaintext) {
		t.Fatal("encrypt must return the plaintext's lookup hash")
	}

	got, err := c.Decrypt(blob)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != plaintext {
		t.Fatalf("round trip = %q, want %q", got, plaintext)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	c := testCipher(t)
	plaintext := strings.Repeat("x", 32)

	blob1, hash1, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	blob2, hash2, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if blob1 == blob2 {
		t.Fatal("same plaintext must seal to different blobs")
	}
	if hash1 != hash2 {
		t.Fatal("lookup hash must be deterministic")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	c := testCipher(t)
	blob, _, err := c.Encrypt(strings.Repeat("y", 40))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		t.Fatalf("decode blob: %v", err)
	}
	// Flip one bit per region: salt, nonce, tag, ciphertext.
	for _, offset := range []int{0, 16, 28, len(raw) - 1} {
		mutated := append([]byte(nil), raw...)
		mutated[offset] ^= 0x01
		if _, err := c.Decrypt(base64.StdEncoding.EncodeToString(mutated)); !errors.Is(err, ErrIntegrity) {
			t.Fatalf("bit flip at %d: err = %v, want ErrIntegrity", offset, err)
		}
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	c := testCipher(t)
	for _, blob := range []string{"", "not base64 at all!!!", base64.StdEncoding.EncodeToString(make([]byte, 10))} {
		if _, err := c.Decrypt(blob); !errors.Is(err, ErrIntegrity) {
			t.Fatalf("blob %q: err = %v, want ErrIntegrity", blob, err)
		}
	}
}

func TestDecryptRequiresSameMasterKey(t *testing.T) {
	c := testCipher(t)
	blob, _, err := c.Encrypt(strings.Repeat("z", 24))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	other, err := NewCipher(bytes.Repeat([]byte{0x43}, KeySize))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	if _, err := other.Decrypt(blob); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("err = %v, want ErrIntegrity", err)
	}
}

func TestPreview(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", "********"},
		{"short", "********"},
		{"elevenchars", "********"},
		{"twelve-chars", "twelve...hars"},
		{"sk-abcdef0123456789", "sk-abc...6789"},
	}
	for _, tc := range cases {
		if got := Preview(tc.in); got != tc.want {
			t.Fatalf("Preview(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidateFormat(t *testing.T) {
	cases := []struct {
		name, key, provider string
		want                bool
	}{
		{"openai classic", "sk-" + strings.Repeat("A", 48), ProviderOpenAI, true},
		{"openai project", "sk-proj-" + strings.Repeat("b", 50), ProviderOpenAI, true},
		{"openai too short", "sk-abc", ProviderOpenAI, false},
		{"anthropic", "sk-ant-api03-" + strings.Repeat("c", 95), ProviderAnthropic, true},
		{"anthropic wrong prefix", "sk-" + strings.Repeat("c", 95), ProviderAnthropic, false},
		{"google", "AIza" + strings.Repeat("d", 35), ProviderGoogle, true},
		{"google too long", "AIza" + strings.Repeat("d", 36), ProviderGoogle, false},
		{"unknown provider long enough", strings.Repeat("e", 20), "mystery", true},
		{"unknown provider too short", strings.Repeat("e", 19), "mystery", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidateFormat(tc.key, tc.provider); got != tc.want {
				t.Fatalf("ValidateFormat(%q, %q) = %v, want %v", tc.key, tc.provider, got, tc.want)
			}
		})
	}
}
