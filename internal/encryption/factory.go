package encryption

import (
	"fmt"

	"cvn-go/internal/config"
	"cvn-go/internal/tracker"
)

// NewCipherFromConfig creates a CredentialCipher based on the configuration type.
func NewCipherFromConfig(cfg config.EncryptionConfig) (tracker.CredentialCipher, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeCipher(cfg), nil
	case "test":
		return NewTestCipher(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
