package tracker

// CredentialCipher seals and opens the opaque credential blobs stored per
// user. The tracker core never sees key material; it hands blobs to the
// cipher and receives plaintext credentials back.
type CredentialCipher interface {
	// Setup performs one-time key generation. Called during `cvn keys init`.
	Setup() error

	// Seal encrypts credentials into an opaque blob for storage.
	Seal(creds Credentials) ([]byte, error)

	// Open decrypts a stored blob back into credentials.
	Open(blob []byte) (Credentials, error)

	// IsConfigured returns true if the key material exists.
	IsConfigured() bool
}
