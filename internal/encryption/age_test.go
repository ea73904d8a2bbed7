package encryption

import (
	"bytes"
	"path/filepath"
	"testing"

	"cvn-go/internal/config"
	"cvn-go/internal/tracker"
)

func newTestAgeCipher(t *testing.T) *AgeCipher {
	t.Helper()
	dir := t.TempDir()
	cfg := config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "keys", "cvn.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "cvn.key"),
	}
	return NewAgeCipher(cfg)
}

func TestAgeCipher_IsConfigured_BeforeSetup(t *testing.T) {
	t.Parallel()
	c := newTestAgeCipher(t)
	if c.IsConfigured() {
		t.Error("IsConfigured() = true before Setup, want false")
	}
}

func TestAgeCipher_Setup_IsConfigured(t *testing.T) {
	t.Parallel()
	c := newTestAgeCipher(t)

	if err := c.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !c.IsConfigured() {
		t.Error("IsConfigured() = false after Setup, want true")
	}
}

func TestAgeCipher_Setup_RefusesOverwrite(t *testing.T) {
	t.Parallel()
	c := newTestAgeCipher(t)

	if err := c.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := c.Setup(); err == nil {
		t.Error("second Setup() did not fail, want error")
	}
}

func TestAgeCipher_SealOpenRoundTrip(t *testing.T) {
	t.Parallel()
	c := newTestAgeCipher(t)
	if err := c.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	tests := []struct {
		name  string
		creds tracker.Credentials
	}{
		{name: "simple", creds: tracker.Credentials{Username: "6530000021", Password: "hunter2"}},
		{name: "special characters", creds: tracker.Credentials{Username: "user@it.chula", Password: `p"a'ss\w0rd{}`}},
		{name: "empty password", creds: tracker.Credentials{Username: "u", Password: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := c.Seal(tt.creds)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}

			// Sealed blob must not leak the plaintext. Very short strings
			// are skipped: a single byte shows up in ciphertext by chance.
			if len(tt.creds.Username) > 3 && bytes.Contains(blob, []byte(tt.creds.Username)) {
				t.Error("sealed blob contains plaintext username")
			}
			if len(tt.creds.Password) > 3 && bytes.Contains(blob, []byte(tt.creds.Password)) {
				t.Error("sealed blob contains plaintext password")
			}

			got, err := c.Open(blob)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if got != tt.creds {
				t.Errorf("got %+v, want %+v", got, tt.creds)
			}
		})
	}
}

func TestAgeCipher_Open_WrongKey(t *testing.T) {
	t.Parallel()
	c1 := newTestAgeCipher(t)
	c2 := newTestAgeCipher(t)
	if err := c1.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := c2.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	blob, err := c1.Seal(tracker.Credentials{Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	if _, err := c2.Open(blob); err == nil {
		t.Error("Open() with wrong key succeeded, want error")
	}
}

func TestTestCipher_RoundTrip(t *testing.T) {
	t.Parallel()
	c := NewTestCipher()

	creds := tracker.Credentials{Username: "u1", Password: "p1"}
	blob, err := c.Seal(creds)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	got, err := c.Open(blob)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got != creds {
		t.Errorf("got %+v, want %+v", got, creds)
	}

	t.Run("rejects foreign blob", func(t *testing.T) {
		if _, err := c.Open([]byte("not a sealed blob")); err == nil {
			t.Error("Open() accepted a blob without the header")
		}
	})
}
