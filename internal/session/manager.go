package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/domain"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/storage"
)

// ErrNilUser is returned by UpdateUser when no identity is given.
var ErrNilUser = errors.New("user is required")

// Credentials is the part of the credential store the session writes.
type Credentials interface {
	Set(ctx context.Context, pair domain.TokenPair) error
	Clear(ctx context.Context) error
}

// Listener observes committed state changes. It runs after the mutation,
// outside the manager's lock.
type Listener func(ctx context.Context, prev, next State)

// Manager serializes every session mutation. Credential writes and the state
// swap happen under one lock, so no reader sees fresh credentials paired with
// a stale identity.
type Manager struct {
	mu        sync.RWMutex
	state     State
	kv        storage.Store
	creds     Credentials
	logger    *slog.Logger
	listeners []Listener
}

// NewManager creates a manager with an empty, uninitialized state. Call
// Restore to load the persisted snapshot.
func NewManager(kv storage.Store, creds Credentials, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{kv: kv, creds: creds, logger: logger}
}

// OnChange registers a listener. Register listeners before serving requests.
func (m *Manager) OnChange(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Restore loads the persisted snapshot. A missing or undecodable snapshot
// leaves the state empty; only a storage read failure is returned.
func (m *Manager) Restore(ctx context.Context) error {
	raw, ok, err := m.kv.Get(ctx, storage.KeySnapshot)
	if err != nil {
		return fmt.Errorf("read session snapshot: %w", err)
	}
	if !ok || raw == "" {
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		m.logger.WarnContext(ctx, "ignoring corrupt session snapshot", slog.String("error", err.Error()))
		return nil
	}

	m.mu.Lock()
	restored := FromSnapshot(snap)
	if m.state.IsInitialized {
		restored.IsInitialized = true
	}
	m.state = restored
	m.mu.Unlock()

	m.logger.DebugContext(ctx, "session snapshot restored",
		slog.Bool("authenticated", snap.State.User != nil),
		slog.Bool("initialized", snap.State.IsInitialized),
	)
	return nil
}

// SetUser replaces the identity and marks the session initialized. A nil
// user signs the session out without touching credentials. The loading
// flag is left as it is.
func (m *Manager) SetUser(ctx context.Context, u *domain.User) {
	m.mutate(ctx, func(s *State) error {
		s.User = u.Clone()
		s.IsInitialized = true
		return nil
	})
}

// SetLoading flips the loading flag. It is never persisted.
func (m *Manager) SetLoading(ctx context.Context, loading bool) {
	m.mutate(ctx, func(s *State) error {
		s.IsLoading = loading
		return nil
	})
}

// Login stores the credential pair and the identity together. When the
// credential write fails the state is left unchanged.
func (m *Manager) Login(ctx context.Context, u *domain.User, pair domain.TokenPair) error {
	return m.mutate(ctx, func(s *State) error {
		if err := m.creds.Set(ctx, pair); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		s.User = u.Clone()
		s.IsLoading = false
		s.IsInitialized = true
		return nil
	})
}

// Logout clears the credentials and the identity. The identity is cleared
// even when the credential store fails; that error is returned.
func (m *Manager) Logout(ctx context.Context) error {
	var credErr error
	m.mutate(ctx, func(s *State) error {
		if err := m.creds.Clear(ctx); err != nil {
			credErr = fmt.Errorf("logout: %w", err)
		}
		s.User = nil
		s.IsLoading = false
		s.IsInitialized = true
		return nil
	})
	return credErr
}

// UpdateUser replaces the identity without touching flags or credentials.
func (m *Manager) UpdateUser(ctx context.Context, u *domain.User) error {
	if u == nil {
		return ErrNilUser
	}
	return m.mutate(ctx, func(s *State) error {
		s.User = u.Clone()
		return nil
	})
}

// Clear is the forced sign-out: credentials and identity go, then the
// persisted snapshot is removed.
func (m *Manager) Clear(ctx context.Context) error {
	logoutErr := m.Logout(ctx)
	if err := m.kv.Delete(ctx, storage.KeySnapshot); err != nil {
		return errors.Join(logoutErr, fmt.Errorf("remove session snapshot: %w", err))
	}
	return logoutErr
}

// IsAdmin reports whether the current user is an admin, staff or superuser.
func (m *Manager) IsAdmin() bool { return m.State().IsAdmin() }

// IsDoctor reports whether the current user is a doctor.
func (m *Manager) IsDoctor() bool { return m.State().IsDoctor() }

// IsPatient reports whether the current user is a patient.
func (m *Manager) IsPatient() bool { return m.State().IsPatient() }

// HasActiveSubscription reports whether the current user has an active subscription.
func (m *Manager) HasActiveSubscription() bool { return m.State().HasActiveSubscription() }

// UserID returns the current user's ID as a string, or "" when signed out.
func (m *Manager) UserID(context.Context) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.User == nil {
		return ""
	}
	return fmt.Sprint(m.state.User.ID)
}

// mutate applies fn to a copy of the state under the lock and commits the
// copy when fn succeeds. IsAuthenticated is derived here and IsInitialized
// never goes back to false. Persistence failures are logged, not returned.
func (m *Manager) mutate(ctx context.Context, fn func(*State) error) error {
	m.mu.Lock()
	prev := m.state.clone()
	next := m.state.clone()
	if err := fn(&next); err != nil {
		m.mu.Unlock()
		return err
	}
	next.IsAuthenticated = next.User != nil
	if prev.IsInitialized {
		next.IsInitialized = true
	}
	m.state = next
	m.persistLocked(ctx, next)
	listeners := m.listeners
	m.mu.Unlock()

	for _, l := range listeners {
		l(ctx, prev, next.clone())
	}
	return nil
}

func (m *Manager) persistLocked(ctx context.Context, s State) {
	raw, err := json.Marshal(ToSnapshot(s))
	if err != nil {
		m.logger.ErrorContext(ctx, "encode session snapshot", slog.String("error", err.Error()))
		return
	}
	if err := m.kv.SetMany(ctx, map[string]string{storage.KeySnapshot: string(raw)}); err != nil {
		m.logger.WarnContext(ctx, "persist session snapshot", slog.String("error", err.Error()))
	}
}
