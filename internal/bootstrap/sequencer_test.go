package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/apiclient"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/credential"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/domain"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/navigation"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/session"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/storage"
	apperrors "github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/errors"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/httpclient"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// profileBackend accepts only validAccess on the profile endpoint and hands
// out newAccess on refresh, or fails refresh when refreshStatus is not 200.
type profileBackend struct {
	validAccess   string
	newAccess     string
	refreshStatus int

	profileCalls atomic.Int32
	refreshCalls atomic.Int32
}

func (b *profileBackend) serve(t *testing.T) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/profile/", func(w http.ResponseWriter, r *http.Request) {
		b.profileCalls.Add(1)
		mu.Lock()
		valid := b.validAccess
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+valid {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"token expired"}`))
			return
		}
		_, _ = w.Write([]byte(`{"user":{"id":5,"email":"d@b.com","user_type":"doctor"}}`))
	})
	mux.HandleFunc("/api/auth/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		if b.refreshStatus != 0 && b.refreshStatus != http.StatusOK {
			w.WriteHeader(b.refreshStatus)
			return
		}
		mu.Lock()
		b.validAccess = b.newAccess
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"access": b.newAccess})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	kv    *storage.MemoryStore
	creds *credential.Store
	sess  *session.Manager
	nav   *navigation.History
	seq   *Sequencer
}

func newFixture(t *testing.T, baseURL string) *fixture {
	t.Helper()
	kv := storage.NewMemoryStore()
	creds := credential.NewStore(kv)
	sess := session.NewManager(kv, creds, discard())
	nav := navigation.NewHistory()
	doer := httpclient.New(httpclient.Config{Timeout: 5 * time.Second, MaxConnsPerHost: 4})
	client := apiclient.New(doer, apiclient.Config{BaseURL: baseURL + "/api"}, creds, sess, nav, discard())
	return &fixture{
		kv:    kv,
		creds: creds,
		sess:  sess,
		nav:   nav,
		seq:   NewSequencer(creds, sess, client.Auth(), discard()),
	}
}

func (f *fixture) storeTokens(t *testing.T, access, refresh string) {
	t.Helper()
	require.NoError(t, f.creds.Set(context.Background(), domain.TokenPair{Access: access, Refresh: refresh}))
}

// ============================================================================
// State machine
// ============================================================================

func TestRun_NoTokenSkipsNetwork(t *testing.T) {
	b := &profileBackend{}
	f := newFixture(t, b.serve(t).URL)

	outcome, err := f.seq.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoToken, outcome)

	st := f.sess.State()
	assert.True(t, st.IsInitialized)
	assert.False(t, st.IsAuthenticated)
	assert.False(t, st.IsLoading)
	assert.Zero(t, b.profileCalls.Load())
}

func TestRun_ValidTokenLoadsProfile(t *testing.T) {
	b := &profileBackend{validAccess: "A1"}
	f := newFixture(t, b.serve(t).URL)
	f.storeTokens(t, "A1", "R1")

	outcome, err := f.seq.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeProfileLoaded, outcome)

	st := f.sess.State()
	require.NotNil(t, st.User)
	assert.Equal(t, 5, st.User.ID)
	assert.True(t, st.IsDoctor())
	assert.True(t, st.IsInitialized)
	assert.False(t, st.IsLoading)
	assert.Equal(t, int32(1), b.profileCalls.Load())
}

func TestRun_ExpiredTokenRefreshSucceeds(t *testing.T) {
	b := &profileBackend{validAccess: "unknown", newAccess: "A2"}
	f := newFixture(t, b.serve(t).URL)
	f.storeTokens(t, "A1", "R1")

	outcome, err := f.seq.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeProfileLoaded, outcome)

	assert.Equal(t, int32(1), b.refreshCalls.Load(), "exactly one refresh")
	assert.Equal(t, int32(2), b.profileCalls.Load(), "one original and exactly one retried profile call")
	assert.True(t, f.sess.State().IsAuthenticated)

	access, _, _ := f.creds.Get(context.Background(), credential.Access)
	assert.Equal(t, "A2", access)
}

func TestRun_ExpiredTokenRefreshFails(t *testing.T) {
	b := &profileBackend{validAccess: "unknown", refreshStatus: http.StatusUnauthorized}
	f := newFixture(t, b.serve(t).URL)
	f.storeTokens(t, "A1", "R1")

	outcome, err := f.seq.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeProfileFailed, outcome)
	assert.ErrorIs(t, err, apperrors.ErrRefreshFailed)

	_, ok, _ := f.creds.Get(context.Background(), credential.Access)
	assert.False(t, ok)
	_, ok, _ = f.creds.Get(context.Background(), credential.Refresh)
	assert.False(t, ok)

	st := f.sess.State()
	assert.Nil(t, st.User)
	assert.True(t, st.IsInitialized)
	assert.False(t, st.IsLoading)
	assert.Equal(t, []string{navigation.LoginPath}, f.nav.Forced())
}

func TestRun_ServerErrorClearsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	f := newFixture(t, srv.URL)
	f.storeTokens(t, "A1", "R1")

	outcome, err := f.seq.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeProfileFailed, outcome)
	assert.Equal(t, apperrors.KindServer, apperrors.Classify(err))
	assert.False(t, f.creds.HasAccess(context.Background()))
	assert.True(t, f.sess.State().IsInitialized)
	assert.Empty(t, f.nav.Forced(), "only refresh failures navigate")
}

func TestRun_AlreadyInitializedIsNoop(t *testing.T) {
	b := &profileBackend{validAccess: "A1"}
	f := newFixture(t, b.serve(t).URL)
	f.storeTokens(t, "A1", "R1")
	f.sess.SetUser(context.Background(), &domain.User{ID: 9, UserType: domain.RolePatient})

	outcome, err := f.seq.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyInitialized, outcome)
	assert.Zero(t, b.profileCalls.Load())
	assert.Equal(t, 9, f.sess.State().User.ID)
}

func TestRun_RestoredSnapshotIsTrusted(t *testing.T) {
	b := &profileBackend{validAccess: "A1"}
	f := newFixture(t, b.serve(t).URL)
	ctx := context.Background()
	f.storeTokens(t, "A1", "R1")
	require.NoError(t, f.kv.SetMany(ctx, map[string]string{
		storage.KeySnapshot: `{"state":{"user":{"id":3,"user_type":"patient"},"isAuthenticated":true,"isInitialized":true},"version":0}`,
	}))
	require.NoError(t, f.sess.Restore(ctx))

	outcome, err := f.seq.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyInitialized, outcome)
	assert.False(t, f.sess.State().IsLoading)
	assert.Zero(t, b.profileCalls.Load())
}

func TestRun_RunsOnce(t *testing.T) {
	b := &profileBackend{validAccess: "A1"}
	f := newFixture(t, b.serve(t).URL)
	f.storeTokens(t, "A1", "R1")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := f.seq.Run(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, OutcomeProfileLoaded, outcome)
		}()
	}
	wg.Wait()

	assert.True(t, f.seq.Done())
	assert.Equal(t, int32(1), b.profileCalls.Load())
}

// ============================================================================
// Loading flag and failure handling with fakes
// ============================================================================

type fakeProfile struct {
	sess   *session.Manager
	user   *domain.User
	err    error
	during session.State
}

func (p *fakeProfile) Profile(context.Context) (*domain.User, error) {
	p.during = p.sess.State()
	return p.user, p.err
}

type failingTokens struct {
	*credential.Store
	getErr   error
	clearErr error
}

func (f failingTokens) Get(ctx context.Context, kind credential.Kind) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.Store.Get(ctx, kind)
}

func (f failingTokens) Clear(ctx context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	return f.Store.Clear(ctx)
}

func TestRun_LoadingWhileProfileInFlight(t *testing.T) {
	kv := storage.NewMemoryStore()
	creds := credential.NewStore(kv)
	sess := session.NewManager(kv, creds, discard())
	require.NoError(t, creds.Set(context.Background(), domain.TokenPair{Access: "A1", Refresh: "R1"}))
	profile := &fakeProfile{sess: sess, user: &domain.User{ID: 1}}

	_, err := NewSequencer(creds, sess, profile, discard()).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, profile.during.IsLoading)
	assert.False(t, profile.during.IsInitialized)
	assert.False(t, sess.State().IsLoading)
}

func TestRun_TokenReadErrorCountsAsNoToken(t *testing.T) {
	kv := storage.NewMemoryStore()
	creds := credential.NewStore(kv)
	sess := session.NewManager(kv, creds, discard())
	profile := &fakeProfile{sess: sess}
	tokens := failingTokens{Store: creds, getErr: errors.New("io")}

	outcome, err := NewSequencer(tokens, sess, profile, discard()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoToken, outcome)
	assert.True(t, sess.State().IsInitialized)
}

func TestRun_ClearFailureIsReported(t *testing.T) {
	kv := storage.NewMemoryStore()
	creds := credential.NewStore(kv)
	sess := session.NewManager(kv, creds, discard())
	require.NoError(t, creds.Set(context.Background(), domain.TokenPair{Access: "A1", Refresh: "R1"}))
	clearErr := errors.New("read-only store")
	profileErr := errors.New("backend down")
	tokens := failingTokens{Store: creds, clearErr: clearErr}

	outcome, err := NewSequencer(tokens, sess, &fakeProfile{sess: sess, err: profileErr}, discard()).Run(context.Background())
	assert.Equal(t, OutcomeProfileFailed, outcome)
	assert.ErrorIs(t, err, profileErr)
	assert.ErrorIs(t, err, clearErr)
	assert.True(t, sess.State().IsInitialized)
	assert.False(t, sess.State().IsAuthenticated)
}
