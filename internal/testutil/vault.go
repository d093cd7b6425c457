package testutil

import (
	"dipcp-go/internal/vault"
)

// NewTestVault creates an empty in-memory snapshot vault.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault("test-vault")
}
