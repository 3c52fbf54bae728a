// Package credential holds the access/refresh token pair in persistent
// storage. It never validates or decodes tokens on the way in.
package credential

import (
	"context"
	"fmt"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/domain"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/storage"
)

// Kind selects one of the two stored tokens.
type Kind string

const (
	Access  Kind = storage.KeyAccessToken
	Refresh Kind = storage.KeyRefreshToken
)

// Store reads and writes the credential pair.
type Store struct {
	kv storage.Store
}

// NewStore creates a credential store on top of kv.
func NewStore(kv storage.Store) *Store {
	return &Store{kv: kv}
}

// Get returns the stored token of the given kind. An empty stored value is
// reported as absent.
func (s *Store) Get(ctx context.Context, kind Kind) (string, bool, error) {
	v, ok, err := s.kv.Get(ctx, string(kind))
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", kind, err)
	}
	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

// Set stores both tokens together.
func (s *Store) Set(ctx context.Context, pair domain.TokenPair) error {
	err := s.kv.SetMany(ctx, map[string]string{
		string(Access):  pair.Access,
		string(Refresh): pair.Refresh,
	})
	if err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	return nil
}

// SetAccess replaces the access token and leaves the refresh token alone.
func (s *Store) SetAccess(ctx context.Context, access string) error {
	if err := s.kv.SetMany(ctx, map[string]string{string(Access): access}); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	return nil
}

// Clear removes both tokens together.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, string(Access), string(Refresh)); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// HasAccess reports whether an access token is stored. Read errors count as
// no token.
func (s *Store) HasAccess(ctx context.Context) bool {
	_, ok, err := s.Get(ctx, Access)
	return err == nil && ok
}
