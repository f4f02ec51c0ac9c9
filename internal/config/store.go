package config

import "sync/atomic"

// Store holds the live configuration. The watcher replaces the whole
// value on reload; readers take an immutable snapshot per event so a
// reload cannot change a deployment mid-flight.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore creates a store seeded with cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Snapshot returns the current configuration. Callers must not mutate
// the result.
func (s *Store) Snapshot() *Config {
	return s.current.Load()
}

// Replace installs cfg as the current configuration.
func (s *Store) Replace(cfg *Config) {
	s.current.Store(cfg)
}
