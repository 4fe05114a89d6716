// ABOUTME: API credential storage with current + legacy key compatibility
// ABOUTME: Writes update both keys; reads fall back current -> legacy -> environment

package auth

import (
	"os"

	"github.com/niushuanan/omnitalk-x/internal/kv"
)

const (
	// currentKey is the canonical kv entry for the API credential.
	currentKey = "omnitalkx_api_key"
	// legacyKey is kept in lockstep for backward compatibility with older
	// installs that still read it.
	legacyKey = "omnitalk9_api_key"
	// envVar is the environment fallback consulted when no key is stored.
	envVar = "OMNITALK_API_KEY"
)

// Store persists the caller-supplied API credential.
type Store struct {
	kv kv.Store
}

// NewStore creates a credential store over the given kv backend.
func NewStore(backend kv.Store) *Store {
	return &Store{kv: backend}
}

// Key returns the API credential, or "" when none is configured.
func (s *Store) Key() string {
	if v, ok, err := s.kv.Get(currentKey); err == nil && ok && v != "" {
		return v
	}
	if v, ok, err := s.kv.Get(legacyKey); err == nil && ok && v != "" {
		return v
	}
	return os.Getenv(envVar)
}

// SetKey stores the credential under both the current and legacy keys.
func (s *Store) SetKey(key string) error {
	if err := s.kv.Set(currentKey, key); err != nil {
		return err
	}
	return s.kv.Set(legacyKey, key)
}

// Remove deletes the credential from both keys.
func (s *Store) Remove() error {
	if err := s.kv.Delete(currentKey); err != nil {
		return err
	}
	return s.kv.Delete(legacyKey)
}
