package engine

import "github.com/google/uuid"

// TokenGenerator mints unique transition IDs.
// Implemented by UUIDv7Generator (production) and the test package's fixed
// generator (deterministic golden traces).
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 transition IDs. The
// embedded timestamp makes concurrent transitions sort by start time in
// trace dumps, which is handy when debugging interrupted animations.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7 string.
// Panics if generation fails (does not happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
