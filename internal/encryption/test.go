package encryption

import (
	"encoding/base64"
	"fmt"
	"strings"

	"dipcp-go/internal/dip"
)

// testPrefix marks values sealed by TestSealer.
const testPrefix = "DIPTEST:"

// TestSealer is a deterministic, reversible Sealer for tests. Sealed values
// are the prefix followed by base64 of the plaintext.
type TestSealer struct {
	setupCalled bool
	passphrase  string
}

var _ dip.Sealer = (*TestSealer)(nil)

func NewTestSealer() *TestSealer {
	return &TestSealer{}
}

func (s *TestSealer) Setup(passphrase string) error {
	s.setupCalled = true
	s.passphrase = passphrase
	return nil
}

func (s *TestSealer) Seal(plaintext []byte) (string, error) {
	return testPrefix + base64.StdEncoding.EncodeToString(plaintext), nil
}

// Unlock accepts any passphrase until Setup has been called, and only the
// Setup passphrase after.
func (s *TestSealer) Unlock(passphrase string) (dip.Opener, error) {
	if s.setupCalled && passphrase != s.passphrase {
		return nil, dip.NewError(dip.ErrPermissionDenied, "unlock", fmt.Errorf("passphrase mismatch"))
	}
	return testOpener{}, nil
}

// IsConfigured reports whether Setup has been called.
func (s *TestSealer) IsConfigured() bool {
	return s.setupCalled
}

type testOpener struct{}

func (testOpener) Open(sealed string) ([]byte, error) {
	rest, ok := strings.CutPrefix(sealed, testPrefix)
	if !ok {
		return nil, fmt.Errorf("invalid test seal")
	}
	return base64.StdEncoding.DecodeString(rest)
}
