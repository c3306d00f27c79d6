package postgres

import "github.com/tinoosan/pocketledger/internal/storage"

// Compile-time interface assertions for the Postgres store.
var (
	_ storage.Store        = (*Store)(nil)
	_ storage.ReadyChecker = (*Store)(nil)
	_ storage.Tx           = (*Tx)(nil)
)
