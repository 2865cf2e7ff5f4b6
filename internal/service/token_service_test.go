package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"taskplanner/internal/config"
	"taskplanner/internal/model"
	"taskplanner/internal/repository"
)

// tokenServer is a fake provider token endpoint.
type tokenServer struct {
	server *httptest.Server
	hits   atomic.Int32
	delay  time.Duration
	status int
	body   string
}

func newTokenServer(t *testing.T, status int, body string, delay time.Duration) *tokenServer {
	t.Helper()
	ts := &tokenServer{status: status, body: body, delay: delay}
	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.hits.Add(1)
		if ts.delay > 0 {
			time.Sleep(ts.delay)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(ts.status)
		_, _ = w.Write([]byte(ts.body))
	}))
	t.Cleanup(ts.server.Close)
	return ts
}

const freshTokenBody = `{"access_token":"access-new","refresh_token":"refresh-rotated","token_type":"Bearer","expires_in":3600}`

func newTestTokenService(t *testing.T, ts *tokenServer) (*TokenService, *repository.TokenRepository) {
	t.Helper()
	repo := repository.NewTokenRepository(openTestDB(t))
	svc := NewTokenService(repo, config.GoogleConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/callback",
	})
	if ts != nil {
		svc.oauth.Endpoint = oauth2.Endpoint{
			AuthURL:  ts.server.URL + "/auth",
			TokenURL: ts.server.URL + "/token",
		}
	}
	return svc, repo
}

func seedToken(t *testing.T, repo *repository.TokenRepository, expiresIn time.Duration) {
	t.Helper()
	require.NoError(t, repo.Save(context.Background(), &model.OAuthToken{
		UserID:       1,
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		ExpiresAt:    time.Now().Add(expiresIn),
		Scope:        "calendar",
	}))
}

func TestEnsureValidWithoutTokenFails(t *testing.T) {
	svc, _ := newTestTokenService(t, nil)

	_, err := svc.EnsureValid(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrNotAuthenticated))
}

func TestEnsureValidFreshTokenSkipsNetwork(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, freshTokenBody, 0)
	svc, repo := newTestTokenService(t, ts)
	seedToken(t, repo, time.Hour)

	token, err := svc.EnsureValid(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "access-old", token)
	assert.Equal(t, int32(0), ts.hits.Load())
}

func TestEnsureValidRefreshesNearExpiry(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, freshTokenBody, 0)
	svc, repo := newTestTokenService(t, ts)
	seedToken(t, repo, time.Minute) // inside the 5 minute skew

	token, err := svc.EnsureValid(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "access-new", token)
	assert.Equal(t, int32(1), ts.hits.Load())

	// Durable before usable: the new token is already in the store.
	stored, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "access-new", stored.AccessToken)
	assert.Equal(t, "refresh-rotated", stored.RefreshToken)
	assert.True(t, stored.ExpiresAt.After(time.Now().Add(30*time.Minute)))
}

func TestConcurrentEnsureValidSharesOneRefresh(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, freshTokenBody, 100*time.Millisecond)
	svc, repo := newTestTokenService(t, ts)
	seedToken(t, repo, time.Minute)

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = svc.EnsureValid(context.Background(), 1)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "access-new", tokens[i])
	}
	// Concurrent callers attach to the single in-flight refresh.
	assert.Equal(t, int32(1), ts.hits.Load())
}

func TestRefreshInvalidGrantMeansReconnect(t *testing.T) {
	ts := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`, 0)
	svc, repo := newTestTokenService(t, ts)
	seedToken(t, repo, time.Minute)

	_, err := svc.EnsureValid(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrAuthExpired))
}

func TestRefreshWithoutRefreshTokenMeansReconnect(t *testing.T) {
	svc, repo := newTestTokenService(t, nil)
	require.NoError(t, repo.Save(context.Background(), &model.OAuthToken{
		UserID:      1,
		AccessToken: "access-old",
		ExpiresAt:   time.Now().Add(time.Minute),
	}))

	_, err := svc.EnsureValid(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrAuthExpired))
}

func TestExchangeCodePersistsTokenPair(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, freshTokenBody, 0)
	svc, repo := newTestTokenService(t, ts)

	require.NoError(t, svc.ExchangeCode(context.Background(), 1, "one-time-code"))

	stored, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "access-new", stored.AccessToken)
	assert.Equal(t, "refresh-rotated", stored.RefreshToken)
}

func TestExchangeCodeReplayFails(t *testing.T) {
	ts := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`, 0)
	svc, _ := newTestTokenService(t, ts)

	err := svc.ExchangeCode(context.Background(), 1, "reused-code")
	assert.True(t, errors.Is(err, ErrExchangeFailed))
}

func TestExchangeCodeKeepsExistingRefreshToken(t *testing.T) {
	// A re-consent can come back without a refresh token; the stored one
	// must survive.
	ts := newTokenServer(t, http.StatusOK, `{"access_token":"access-new","token_type":"Bearer","expires_in":3600}`, 0)
	svc, repo := newTestTokenService(t, ts)
	seedToken(t, repo, time.Hour)

	require.NoError(t, svc.ExchangeCode(context.Background(), 1, "code"))

	stored, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "refresh-old", stored.RefreshToken)
}

func TestDisconnectDropsCredentials(t *testing.T) {
	svc, repo := newTestTokenService(t, nil)
	seedToken(t, repo, time.Hour)

	require.NoError(t, svc.Disconnect(context.Background(), 1))
	_, err := svc.EnsureValid(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrNotAuthenticated))
	assert.False(t, svc.Connected(context.Background(), 1))
}

func TestAuthURLRequestsOfflineAccess(t *testing.T) {
	svc, _ := newTestTokenService(t, nil)
	url := svc.AuthURL("state-123")
	assert.Contains(t, url, "state=state-123")
	assert.Contains(t, url, "access_type=offline")
}
