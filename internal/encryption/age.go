// Package encryption provides the credential ciphers. Stored credential
// blobs are age-encrypted JSON; only this package touches key material.
package encryption

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"cvn-go/internal/config"
	"cvn-go/internal/tracker"
)

// AgeCipher implements tracker.CredentialCipher using filippo.io/age with
// X25519 keys. The public key is stored in plaintext; the private key file
// is plaintext too but mode 0600, because the batch runs unattended from
// cron and nobody is around to type a passphrase.
type AgeCipher struct {
	publicKeyPath  string
	privateKeyPath string
}

var _ tracker.CredentialCipher = (*AgeCipher)(nil)

// NewAgeCipher creates a new AgeCipher from configuration.
func NewAgeCipher(cfg config.EncryptionConfig) *AgeCipher {
	return &AgeCipher{
		publicKeyPath:  cfg.PublicKeyPath,
		privateKeyPath: cfg.PrivateKeyPath,
	}
}

// credentialBlob is the plaintext layout inside a sealed blob.
type credentialBlob struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Setup generates a new X25519 key pair and writes both halves to disk.
// It refuses to overwrite existing keys: losing the private key makes
// every stored credential blob unreadable.
func (c *AgeCipher) Setup() error {
	if c.IsConfigured() {
		return fmt.Errorf("key pair already exists at %s", c.privateKeyPath)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.publicKeyPath), 0700); err != nil {
		return fmt.Errorf("creating public key directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.privateKeyPath), 0700); err != nil {
		return fmt.Errorf("creating private key directory: %w", err)
	}

	if err := os.WriteFile(c.publicKeyPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	if err := os.WriteFile(c.privateKeyPath, []byte(identity.String()+"\n"), 0600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	return nil
}

// Seal encrypts credentials into an opaque blob using the public key.
func (c *AgeCipher) Seal(creds tracker.Credentials) ([]byte, error) {
	recipient, err := c.loadRecipient()
	if err != nil {
		return nil, fmt.Errorf("loading public key: %w", err)
	}

	plaintext, err := json.Marshal(credentialBlob{
		Username: creds.Username,
		Password: creds.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding credentials: %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypting credentials: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}

	return buf.Bytes(), nil
}

// Open decrypts a stored blob back into credentials using the private key.
func (c *AgeCipher) Open(blob []byte) (tracker.Credentials, error) {
	identity, err := c.loadIdentity()
	if err != nil {
		return tracker.Credentials{}, fmt.Errorf("loading private key: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(blob), identity)
	if err != nil {
		return tracker.Credentials{}, fmt.Errorf("decrypting credential blob: %w", err)
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		return tracker.Credentials{}, fmt.Errorf("reading decrypted credentials: %w", err)
	}

	var decoded credentialBlob
	if err := json.Unmarshal(plaintext, &decoded); err != nil {
		return tracker.Credentials{}, fmt.Errorf("decoding credentials: %w", err)
	}

	return tracker.Credentials{Username: decoded.Username, Password: decoded.Password}, nil
}

// IsConfigured returns true if both key files exist.
func (c *AgeCipher) IsConfigured() bool {
	if _, err := os.Stat(c.publicKeyPath); err != nil {
		return false
	}
	if _, err := os.Stat(c.privateKeyPath); err != nil {
		return false
	}
	return true
}

func (c *AgeCipher) loadRecipient() (age.Recipient, error) {
	pubData, err := os.ReadFile(c.publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}

	recipients, err := age.ParseRecipients(bytes.NewReader(pubData))
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients found in public key file")
	}
	return recipients[0], nil
}

func (c *AgeCipher) loadIdentity() (age.Identity, error) {
	privData, err := os.ReadFile(c.privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(privData))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in private key file")
	}
	return identities[0], nil
}
