// Package bootstrap resolves the session once per portal process: it
// trusts a restored session, loads the profile for a stored token, or
// settles on signed out.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/credential"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/domain"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/session"
)

// Outcome says how a bootstrap run resolved.
type Outcome string

const (
	OutcomeAlreadyInitialized Outcome = "already_initialized"
	OutcomeNoToken            Outcome = "no_token"
	OutcomeProfileLoaded      Outcome = "profile_loaded"
	OutcomeProfileFailed      Outcome = "profile_failed"
)

// ProfileFetcher loads the signed-in user's profile through the
// authenticated pipeline.
type ProfileFetcher interface {
	Profile(ctx context.Context) (*domain.User, error)
}

// Tokens is the part of the credential store bootstrap reads and clears.
type Tokens interface {
	Get(ctx context.Context, kind credential.Kind) (string, bool, error)
	Clear(ctx context.Context) error
}

// Session is the part of the session manager bootstrap drives.
type Session interface {
	State() session.State
	SetLoading(ctx context.Context, loading bool)
	SetUser(ctx context.Context, u *domain.User)
}

// Sequencer runs the bootstrap state machine at most once.
type Sequencer struct {
	mu      sync.Mutex
	done    bool
	outcome Outcome
	err     error

	tokens  Tokens
	session Session
	profile ProfileFetcher
	logger  *slog.Logger
}

// NewSequencer creates a sequencer.
func NewSequencer(tokens Tokens, sess Session, profile ProfileFetcher, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{tokens: tokens, session: sess, profile: profile, logger: logger}
}

// Run resolves the session. Concurrent and repeated calls wait for and
// return the first run's result. The returned error explains a failed
// profile load; the session is initialized either way.
func (s *Sequencer) Run(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return s.outcome, s.err
	}
	s.outcome, s.err = s.run(ctx)
	s.done = true

	attrs := []any{slog.String("outcome", string(s.outcome))}
	if s.err != nil {
		attrs = append(attrs, slog.String("error", s.err.Error()))
	}
	s.logger.InfoContext(ctx, "session bootstrap resolved", attrs...)
	return s.outcome, s.err
}

// Done reports whether Run has completed.
func (s *Sequencer) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Sequencer) run(ctx context.Context) (Outcome, error) {
	if s.session.State().IsInitialized {
		return OutcomeAlreadyInitialized, nil
	}

	_, ok, err := s.tokens.Get(ctx, credential.Access)
	if err != nil {
		s.logger.WarnContext(ctx, "read access token during bootstrap", slog.String("error", err.Error()))
		ok = false
	}
	if !ok {
		s.session.SetUser(ctx, nil)
		return OutcomeNoToken, nil
	}

	s.session.SetLoading(ctx, true)
	defer s.session.SetLoading(ctx, false)

	user, err := s.profile.Profile(ctx)
	if err != nil {
		var clearErr error
		if cerr := s.tokens.Clear(ctx); cerr != nil {
			clearErr = fmt.Errorf("clear credentials: %w", cerr)
		}
		s.session.SetUser(ctx, nil)
		return OutcomeProfileFailed, errors.Join(fmt.Errorf("load profile: %w", err), clearErr)
	}

	s.session.SetUser(ctx, user)
	return OutcomeProfileLoaded, nil
}
