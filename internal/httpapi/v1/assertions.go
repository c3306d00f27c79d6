package v1

import "github.com/tinoosan/pocketledger/internal/auth"

// Compile-time interface assertions for the HTTP API collaborators.
var _ TokenResolver = (*auth.Gateway)(nil)
