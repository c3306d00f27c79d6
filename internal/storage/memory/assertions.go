package memory

import "github.com/tinoosan/pocketledger/internal/storage"

// Compile-time interface assertions documenting which interfaces Store satisfies.
var (
	_ storage.Store        = (*Store)(nil)
	_ storage.ReadyChecker = (*Store)(nil)
	_ storage.Tx           = (*Tx)(nil)
)
