package encryption

import (
	"bytes"
	"path/filepath"
	"testing"

	"drivescope/internal/config"
)

func newTestAgeEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	cfg := config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "keys", "drivescope.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "drivescope.key"),
	}
	return NewAgeEncryptor(cfg)
}

func TestAgeEncryptor_IsConfigured_BeforeSetup(t *testing.T) {
	t.Parallel()
	e := newTestAgeEncryptor(t)
	if e.IsConfigured() {
		t.Error("IsConfigured() = true before Setup, want false")
	}
}

func TestAgeEncryptor_Setup_IsConfigured(t *testing.T) {
	t.Parallel()
	e := newTestAgeEncryptor(t)

	if err := e.Setup("test-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if !e.IsConfigured() {
		t.Error("IsConfigured() = false after Setup, want true")
	}
}

func TestAgeEncryptor_EncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "report json", input: []byte(`{"session_id":"abc","summary":"ok"}`)},
		{name: "empty", input: []byte{}},
		{name: "binary data", input: []byte{0x00, 0xff, 0x01, 0xfe}},
		{name: "large data", input: bytes.Repeat([]byte("abcdef"), 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			passphrase := "test-passphrase"
			e := newTestAgeEncryptor(t)
			if err := e.Setup(passphrase); err != nil {
				t.Fatalf("Setup() error = %v", err)
			}

			var ciphertext bytes.Buffer
			if err := e.Encrypt(bytes.NewReader(tt.input), &ciphertext); err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if len(tt.input) > 0 && bytes.Contains(ciphertext.Bytes(), tt.input) {
				t.Error("ciphertext contains plaintext")
			}

			ctx, err := e.Unlock(passphrase)
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}

			var plaintext bytes.Buffer
			if err := ctx.Decrypt(bytes.NewReader(ciphertext.Bytes()), &plaintext); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(plaintext.Bytes(), tt.input) {
				t.Errorf("round trip mismatch: got %d bytes, want %d", plaintext.Len(), len(tt.input))
			}
		})
	}
}

func TestAgeEncryptor_Unlock_WrongPassphrase(t *testing.T) {
	t.Parallel()
	e := newTestAgeEncryptor(t)
	if err := e.Setup("correct-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if _, err := e.Unlock("wrong-passphrase"); err == nil {
		t.Error("Unlock() expected error for wrong passphrase")
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfgType string
		wantErr bool
	}{
		{name: "age", cfgType: "age"},
		{name: "default is age", cfgType: ""},
		{name: "test", cfgType: "test"},
		{name: "unknown", cfgType: "rot13", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.cfgType})
			if tt.wantErr {
				if err == nil {
					t.Error("NewEncryptorFromConfig() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewEncryptorFromConfig() error = %v", err)
			}
			if got == nil {
				t.Error("NewEncryptorFromConfig() returned nil")
			}
		})
	}
}
