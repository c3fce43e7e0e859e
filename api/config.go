// Package api provides the HTTP surface of the rewind memory layer: capture,
// context retrieval, session listing, stats, full-text search, and cleanup.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g. ":8090").
	ListenAddr string

	// DefaultTurns is the default limit for /context when the caller does
	// not pass one.
	DefaultTurns int
}
