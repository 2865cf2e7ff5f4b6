package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
	gcal "google.golang.org/api/calendar/v3"
	"gorm.io/gorm"

	"taskplanner/internal/config"
	"taskplanner/internal/model"
	"taskplanner/internal/repository"
)

var (
	// ErrNotAuthenticated means no token exists; the user must start OAuth.
	ErrNotAuthenticated = errors.New("calendar not connected")
	// ErrAuthExpired means the refresh grant is dead; the user must reconnect.
	ErrAuthExpired = errors.New("calendar authorization expired, reconnect required")
	// ErrExchangeFailed means the authorization code could not be redeemed.
	ErrExchangeFailed = errors.New("authorization code exchange failed")
)

// refreshSkew is how close to expiry a token triggers a refresh.
const refreshSkew = 5 * time.Minute

// TokenService owns the OAuth token lifecycle for the calendar provider.
// Every token mutation is written through the repository before it counts;
// refreshes are deduplicated per user so concurrent callers share one
// in-flight provider request.
type TokenService struct {
	repo  *repository.TokenRepository
	oauth *oauth2.Config
	group singleflight.Group
	now   func() time.Time
}

func NewTokenService(repo *repository.TokenRepository, cfg config.GoogleConfig) *TokenService {
	return &TokenService{
		repo: repo,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{gcal.CalendarScope},
			Endpoint:     google.Endpoint,
		},
		now: time.Now,
	}
}

// AuthURL builds the provider consent URL. Offline access is requested so the
// provider issues a refresh token.
func (s *TokenService) AuthURL(state string) string {
	return s.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// ExchangeCode redeems a one-time authorization code for the initial token
// pair and persists it. A replayed code is rejected by the provider and
// surfaces as ErrExchangeFailed.
func (s *TokenService) ExchangeCode(ctx context.Context, userID uint, code string) error {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}

	record := &model.OAuthToken{
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		Scope:        strings.Join(s.oauth.Scopes, " "),
	}
	// A re-consent may omit the refresh token; keep the one we have.
	if record.RefreshToken == "" {
		if old, err := s.repo.Get(ctx, userID); err == nil {
			record.RefreshToken = old.RefreshToken
		}
	}
	return s.repo.Save(ctx, record)
}

// EnsureValid returns an access token good for at least refreshSkew, running
// a refresh when the stored one is expired or about to expire.
func (s *TokenService) EnsureValid(ctx context.Context, userID uint) (string, error) {
	record, err := s.repo.Get(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotAuthenticated
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	if record.ExpiresAt.Sub(s.now()) > refreshSkew {
		return record.AccessToken, nil
	}
	return s.Refresh(ctx, userID)
}

// Refresh exchanges the stored refresh token for a fresh access token.
// Concurrent callers for the same user attach to the single in-flight
// refresh; refresh tokens can be invalidated on reuse detection, so issuing
// duplicates would be a correctness bug.
func (s *TokenService) Refresh(ctx context.Context, userID uint) (string, error) {
	token, err, _ := s.group.Do(fmt.Sprintf("refresh:%d", userID), func() (interface{}, error) {
		return s.refresh(ctx, userID)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (s *TokenService) refresh(ctx context.Context, userID uint) (string, error) {
	record, err := s.repo.Get(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotAuthenticated
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	if record.RefreshToken == "" {
		return "", ErrAuthExpired
	}

	token, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: record.RefreshToken}).Token()
	if err != nil {
		if isInvalidGrant(err) {
			return "", fmt.Errorf("%w: %w", ErrAuthExpired, err)
		}
		return "", fmt.Errorf("refresh token: %w", err)
	}

	record.AccessToken = token.AccessToken
	record.ExpiresAt = token.Expiry
	if token.RefreshToken != "" {
		record.RefreshToken = token.RefreshToken
	}
	// Durable before usable: a token only the process memory knows about is
	// lost on restart.
	if err := s.repo.Save(ctx, record); err != nil {
		return "", err
	}
	return record.AccessToken, nil
}

// Disconnect drops the stored credentials entirely. The user must run the
// full authorization flow to reconnect.
func (s *TokenService) Disconnect(ctx context.Context, userID uint) error {
	return s.repo.Delete(ctx, userID)
}

// Connected reports whether credentials exist for the user.
func (s *TokenService) Connected(ctx context.Context, userID uint) bool {
	_, err := s.repo.Get(ctx, userID)
	return err == nil
}

// isInvalidGrant detects provider-reported grant invalidity (revoked or
// reused refresh token), which is not recoverable by retrying.
func isInvalidGrant(err error) bool {
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) {
		return false
	}
	if rerr.ErrorCode == "invalid_grant" {
		return true
	}
	return rerr.Response != nil && rerr.Response.StatusCode == http.StatusUnauthorized
}
