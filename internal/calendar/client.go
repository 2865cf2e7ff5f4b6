package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrRemoteRequestFailed wraps provider errors that are not recoverable by a
// token refresh. Callers surface them; nothing retries automatically.
var ErrRemoteRequestFailed = errors.New("remote calendar request failed")

// TokenProvider supplies a valid access token for a user and performs a
// forced refresh after an authorization failure.
type TokenProvider interface {
	EnsureValid(ctx context.Context, userID uint) (string, error)
	Refresh(ctx context.Context, userID uint) (string, error)
}

// EventsAPI is the remote surface the reconcilers depend on.
type EventsAPI interface {
	Insert(ctx context.Context, userID uint, calendarID string, event *gcal.Event) (*gcal.Event, error)
	Update(ctx context.Context, userID uint, calendarID, eventID string, event *gcal.Event) (*gcal.Event, error)
	Delete(ctx context.Context, userID uint, calendarID, eventID string) error
	Events(ctx context.Context, userID uint, calendarID string, from, to time.Time) ([]*gcal.Event, error)
	Calendars(ctx context.Context, userID uint) ([]*gcal.CalendarListEntry, error)
}

// Client is the Google-backed EventsAPI. Each call obtains a valid token from
// the provider; a 401 triggers exactly one refresh and one retry of the same
// call, after which failure is terminal.
type Client struct {
	tokens TokenProvider
	opts   []option.ClientOption
}

// NewClient builds a calendar client. Extra options are appended to every
// service build (tests pass a custom endpoint here).
func NewClient(tokens TokenProvider, opts ...option.ClientOption) *Client {
	return &Client{tokens: tokens, opts: opts}
}

func (c *Client) Insert(ctx context.Context, userID uint, calendarID string, event *gcal.Event) (*gcal.Event, error) {
	var created *gcal.Event
	err := c.withAuthRetry(ctx, userID, func(svc *gcal.Service) error {
		var err error
		created, err = svc.Events.Insert(calendarID, event).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Client) Update(ctx context.Context, userID uint, calendarID, eventID string, event *gcal.Event) (*gcal.Event, error) {
	var updated *gcal.Event
	err := c.withAuthRetry(ctx, userID, func(svc *gcal.Service) error {
		var err error
		updated, err = svc.Events.Update(calendarID, eventID, event).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (c *Client) Delete(ctx context.Context, userID uint, calendarID, eventID string) error {
	return c.withAuthRetry(ctx, userID, func(svc *gcal.Service) error {
		return svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	})
}

func (c *Client) Events(ctx context.Context, userID uint, calendarID string, from, to time.Time) ([]*gcal.Event, error) {
	var items []*gcal.Event
	err := c.withAuthRetry(ctx, userID, func(svc *gcal.Service) error {
		call := svc.Events.List(calendarID).
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx)
		items = items[:0]
		return call.Pages(ctx, func(page *gcal.Events) error {
			items = append(items, page.Items...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) Calendars(ctx context.Context, userID uint) ([]*gcal.CalendarListEntry, error) {
	var items []*gcal.CalendarListEntry
	err := c.withAuthRetry(ctx, userID, func(svc *gcal.Service) error {
		list, err := svc.CalendarList.List().Context(ctx).Do()
		if err != nil {
			return err
		}
		items = list.Items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// withAuthRetry runs one remote call with a valid token. On a 401 it refreshes
// the token once and retries the same call; any further failure is terminal.
func (c *Client) withAuthRetry(ctx context.Context, userID uint, call func(*gcal.Service) error) error {
	token, err := c.tokens.EnsureValid(ctx, userID)
	if err != nil {
		return err
	}
	svc, err := c.service(ctx, token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteRequestFailed, err)
	}

	err = call(svc)
	if err == nil {
		return nil
	}
	if !isUnauthorized(err) {
		return fmt.Errorf("%w: %w", ErrRemoteRequestFailed, err)
	}

	token, err = c.tokens.Refresh(ctx, userID)
	if err != nil {
		return err
	}
	svc, err = c.service(ctx, token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteRequestFailed, err)
	}
	if err := call(svc); err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteRequestFailed, err)
	}
	return nil
}

func (c *Client) service(ctx context.Context, accessToken string) (*gcal.Service, error) {
	opts := append([]option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})),
	}, c.opts...)
	return gcal.NewService(ctx, opts...)
}

func isUnauthorized(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized
}

// IsNotFound reports whether a provider error means the event is already
// gone. Deleting an absent event counts as success for teardown.
func IsNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone)
}
