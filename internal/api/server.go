// Package api exposes the planner over HTTP. It is a thin layer: every
// decision lives in the services it delegates to.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"taskplanner/internal/calendar"
	"taskplanner/internal/repository"
	"taskplanner/internal/service"
)

// Server wires the HTTP routes to the planner services.
type Server struct {
	engine      *gin.Engine
	users       *repository.UserRepository
	tokens      *service.TokenService
	tasks       *service.TaskService
	occurrences *service.OccurrenceService
	sync        *service.SyncService
	imports     *service.ImportService
	agenda      *service.AgendaService
	remote      calendar.EventsAPI
	loc         *time.Location

	states *stateStore
}

func NewServer(
	users *repository.UserRepository,
	tokens *service.TokenService,
	tasks *service.TaskService,
	occurrences *service.OccurrenceService,
	syncSvc *service.SyncService,
	imports *service.ImportService,
	agenda *service.AgendaService,
	remote calendar.EventsAPI,
	loc *time.Location,
) *Server {
	if loc == nil {
		loc = time.UTC
	}
	s := &Server{
		engine:      gin.Default(),
		users:       users,
		tokens:      tokens,
		tasks:       tasks,
		occurrences: occurrences,
		sync:        syncSvc,
		imports:     imports,
		agenda:      agenda,
		remote:      remote,
		loc:         loc,
		states:      newStateStore(10 * time.Minute),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r := s.engine.Group("/", s.withUser())

	r.GET("/auth/google/connect", s.handleConnect)
	r.GET("/auth/google/callback", s.handleCallback)
	r.GET("/auth/google/status", s.handleAuthStatus)
	r.DELETE("/auth/google", s.handleDisconnect)

	r.POST("/tasks", s.handleCreateTask)
	r.GET("/tasks/:id", s.handleGetTask)
	r.PUT("/tasks/:id", s.handleUpdateTask)
	r.DELETE("/tasks/:id", s.handleDeleteTask)
	r.POST("/tasks/:id/occurrences/complete", s.handleCompleteOccurrence)
	r.POST("/tasks/:id/occurrences/incomplete", s.handleUncompleteOccurrence)

	r.GET("/occurrences", s.handleOccurrences)
	r.GET("/agenda", s.handleAgenda)

	r.POST("/sync/run", s.handleManualSync)
	r.GET("/import/preview", s.handleImportPreview)
	r.POST("/import/confirm", s.handleImportConfirm)
	r.GET("/calendars", s.handleCalendars)
}

// Handler exposes the underlying handler for tests and custom servers.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// withUser resolves the acting user from the X-User-ID header (default 1) and
// makes sure the row exists. Authentication proper is out of scope here.
func (s *Server) withUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := uint(1)
		if raw := c.GetHeader("X-User-ID"); raw != "" {
			parsed, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || parsed == 0 {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid X-User-ID"})
				return
			}
			userID = uint(parsed)
		}
		if _, err := s.users.EnsureExists(c.Request.Context(), userID); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) uint {
	return c.GetUint("userID")
}

// respondError maps service errors onto HTTP statuses. Auth failures carry an
// explicit reconnect flag so "sync stopped working" is never silent.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotAuthenticated), errors.Is(err, service.ErrAuthExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "reconnectRequired": true})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case isMappingError(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, calendar.ErrRemoteRequestFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func isMappingError(err error) bool {
	var merr *calendar.MappingError
	return errors.As(err, &merr)
}

// stateStore tracks issued OAuth state values until the callback consumes
// them.
type stateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]stateEntry
}

type stateEntry struct {
	userID  uint
	expires time.Time
}

func newStateStore(ttl time.Duration) *stateStore {
	return &stateStore{ttl: ttl, entries: make(map[string]stateEntry)}
}

func (s *stateStore) Issue(userID uint) string {
	state := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, k)
		}
	}
	s.entries[state] = stateEntry{userID: userID, expires: now.Add(s.ttl)}
	return state
}

func (s *stateStore) Consume(state string) (uint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[state]
	if !ok {
		return 0, false
	}
	delete(s.entries, state)
	if time.Now().After(entry.expires) {
		return 0, false
	}
	return entry.userID, true
}
