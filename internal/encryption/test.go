package encryption

import (
	"bytes"
	"encoding/json"
	"fmt"

	"cvn-go/internal/tracker"
)

// testHeader is prepended to blobs by TestCipher to make sealed output
// clearly different from plaintext while remaining deterministic and reversible.
var testHeader = []byte("CVNENC\x00\x00")

// TestCipher is a simple, deterministic cipher for testing. It stores the
// credentials as JSON behind a fixed 8-byte header, so sealed blobs differ
// from plaintext without requiring key material.
type TestCipher struct {
	setupCalled bool
}

var _ tracker.CredentialCipher = (*TestCipher)(nil)

// NewTestCipher creates a new TestCipher.
func NewTestCipher() *TestCipher {
	return &TestCipher{}
}

func (c *TestCipher) Setup() error {
	c.setupCalled = true
	return nil
}

func (c *TestCipher) Seal(creds tracker.Credentials) ([]byte, error) {
	plaintext, err := json.Marshal(credentialBlob{
		Username: creds.Username,
		Password: creds.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding credentials: %w", err)
	}
	return append(append([]byte{}, testHeader...), plaintext...), nil
}

func (c *TestCipher) Open(blob []byte) (tracker.Credentials, error) {
	if !bytes.HasPrefix(blob, testHeader) {
		return tracker.Credentials{}, fmt.Errorf("invalid test cipher header")
	}

	var decoded credentialBlob
	if err := json.Unmarshal(blob[len(testHeader):], &decoded); err != nil {
		return tracker.Credentials{}, fmt.Errorf("decoding credentials: %w", err)
	}
	return tracker.Credentials{Username: decoded.Username, Password: decoded.Password}, nil
}

func (c *TestCipher) IsConfigured() bool {
	return true
}
