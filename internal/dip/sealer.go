package dip

// Sealer protects the stored access token. Sealing needs only the public
// half of a key pair; opening needs the passphrase.
type Sealer interface {
	// Setup generates the key pair and protects the private half with
	// passphrase. Called once, from `dip auth login`.
	Setup(passphrase string) error

	// Seal encrypts plaintext into an ASCII-armored blob fit for the
	// settings collection.
	Seal(plaintext []byte) (string, error)

	// Unlock opens the private key. A wrong passphrase is an error.
	Unlock(passphrase string) (Opener, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// Opener decrypts blobs produced by Sealer.Seal for the rest of a session.
type Opener interface {
	Open(sealed string) ([]byte, error)
}
