package testutil

import (
	"dipcp-go/internal/dip"
	"dipcp-go/internal/encryption"
)

// NewTestSealer returns a reversible sealer that needs no key files.
func NewTestSealer() dip.Sealer {
	return encryption.NewTestSealer()
}
