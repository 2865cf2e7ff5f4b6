package calendar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// fakeTokens is a TokenProvider that hands out canned tokens and counts
// refreshes.
type fakeTokens struct {
	ensureCalls  atomic.Int32
	refreshCalls atomic.Int32
	refreshErr   error
}

func (f *fakeTokens) EnsureValid(ctx context.Context, userID uint) (string, error) {
	f.ensureCalls.Add(1)
	return "token-initial", nil
}

func (f *fakeTokens) Refresh(ctx context.Context, userID uint) (string, error) {
	f.refreshCalls.Add(1)
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	return "token-refreshed", nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *fakeTokens) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	tokens := &fakeTokens{}
	client := NewClient(tokens, option.WithEndpoint(server.URL))
	return client, tokens
}

func TestClientInsertSuccess(t *testing.T) {
	client, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "evt-1"}`))
	})

	created, err := client.Insert(context.Background(), 1, "primary", &gcal.Event{Summary: "x"})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", created.Id)
	assert.Equal(t, int32(0), tokens.refreshCalls.Load())
}

func TestClientRefreshesOnceOn401(t *testing.T) {
	var calls atomic.Int32
	client, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error": {"code": 401, "message": "Invalid Credentials"}}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "evt-2"}`))
	})

	created, err := client.Insert(context.Background(), 1, "primary", &gcal.Event{Summary: "x"})
	require.NoError(t, err)
	assert.Equal(t, "evt-2", created.Id)
	assert.Equal(t, int32(1), tokens.refreshCalls.Load())
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientSecondFailureAfterRefreshIsTerminal(t *testing.T) {
	var calls atomic.Int32
	client, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error": {"code": 401, "message": "Invalid Credentials"}}`, http.StatusUnauthorized)
	})

	_, err := client.Insert(context.Background(), 1, "primary", &gcal.Event{Summary: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRemoteRequestFailed))
	// Exactly one refresh and one retry, then terminal.
	assert.Equal(t, int32(1), tokens.refreshCalls.Load())
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientNon401DoesNotRefresh(t *testing.T) {
	client, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"code": 500, "message": "Backend Error"}}`, http.StatusInternalServerError)
	})

	_, err := client.Insert(context.Background(), 1, "primary", &gcal.Event{Summary: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRemoteRequestFailed))
	assert.Equal(t, int32(0), tokens.refreshCalls.Load())
}

func TestClientDeleteNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"code": 404, "message": "Not Found"}}`, http.StatusNotFound)
	})

	err := client.Delete(context.Background(), 1, "primary", "gone")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestClientRefreshFailurePropagates(t *testing.T) {
	server := httptest.NewServer(func() http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error": {"code": 401, "message": "Invalid Credentials"}}`, http.StatusUnauthorized)
		}
	}())
	t.Cleanup(server.Close)

	wantErr := errors.New("reconnect required")
	tokens := &fakeTokens{refreshErr: wantErr}
	client := NewClient(tokens, option.WithEndpoint(server.URL))

	_, err := client.Insert(context.Background(), 1, "primary", &gcal.Event{Summary: "x"})
	assert.True(t, errors.Is(err, wantErr))
}
