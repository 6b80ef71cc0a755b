package vault

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

func testKey() Key {
	// Few iterations keep the test fast; the derivation is the same.
	return DeriveKey("correct horse battery staple", DefaultSalt, 10)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	a := DeriveKey("pass", "salt", 10)
	b := DeriveKey("pass", "salt", 10)
	if a != b {
		t.Error("same inputs produced different keys")
	}
	if DeriveKey("pass", "other", 10) == a {
		t.Error("salt did not affect key")
	}
	if DeriveKey("Pass", "salt", 10) == a {
		t.Error("passphrase did not affect key")
	}
	if DeriveKey("pass", "salt", 0) != DeriveKey("pass", "salt", DefaultIterations) {
		t.Error("non-positive iterations should fall back to the default")
	}
}

func TestEncryptRoundTrip(t *testing.T) {
	k := testKey()
	for _, plain := range [][]byte{nil, []byte("x"), bytes.Repeat([]byte("jpeg"), 10000)} {
		ct, err := Encrypt(plain, k)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		if len(ct) != NonceSize+len(plain)+16 {
			t.Errorf("ciphertext length = %d, want %d", len(ct), NonceSize+len(plain)+16)
		}
		got, err := Decrypt(ct, k)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if !bytes.Equal(got, plain) {
			t.Errorf("round trip mismatch for %d bytes", len(plain))
		}
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	k := testKey()
	a, _ := Encrypt([]byte("same"), k)
	b, _ := Encrypt([]byte("same"), k)
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext are identical")
	}
}

func TestDecryptFailures(t *testing.T) {
	k := testKey()
	ct, err := Encrypt([]byte("secret"), k)
	if err != nil {
		t.Fatal(err)
	}

	tampered := bytes.Clone(ct)
	tampered[len(tampered)-1] ^= 0xff

	tests := []struct {
		name string
		data []byte
		key  Key
	}{
		{"wrong key", ct, DeriveKey("other", DefaultSalt, 10)},
		{"tampered", tampered, k},
		{"truncated", ct[:NonceSize+3], k},
		{"empty", nil, k},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decrypt(tt.data, tt.key); !errors.Is(err, ErrDecrypt) {
				t.Errorf("err = %v, want ErrDecrypt", err)
			}
		})
	}
}

func TestFingerprintVerify(t *testing.T) {
	k := testKey()
	fp := k.Fingerprint()
	if len(fp) != 64 {
		t.Errorf("fingerprint length = %d, want 64", len(fp))
	}
	if err := Verify(k, fp); err != nil {
		t.Errorf("Verify(own fingerprint) = %v", err)
	}
	if err := Verify(DeriveKey("nope", DefaultSalt, 10), fp); !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("Verify(other key) = %v, want ErrWrongPassphrase", err)
	}
}

func TestSession(t *testing.T) {
	var s Session
	if _, ok := s.Key(); ok {
		t.Fatal("zero Session should be locked")
	}

	k := testKey()
	s.Set(k)
	got, ok := s.Key()
	if !ok || got != k {
		t.Error("Key() did not return the installed key")
	}

	s.Clear()
	if got, ok := s.Key(); ok || got != (Key{}) {
		t.Error("Clear() left a key behind")
	}
}

func TestSessionConcurrent(t *testing.T) {
	var s Session
	k := testKey()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); s.Set(k) }()
		go func() { defer wg.Done(); s.Key() }()
	}
	wg.Wait()
	if got, ok := s.Key(); !ok || got != k {
		t.Error("key lost under concurrent use")
	}
}
