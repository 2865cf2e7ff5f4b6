package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"taskplanner/internal/model"
	"taskplanner/internal/service"
)

type taskRequest struct {
	Title         string            `json:"title" binding:"required"`
	Description   string            `json:"description"`
	Board         string            `json:"board"`
	BoardColor    string            `json:"boardColor"`
	Priority      string            `json:"priority"`
	Category      string            `json:"category"`
	Tags          string            `json:"tags"`
	TimeEstimate  int               `json:"timeEstimate" binding:"gte=0"`
	ScheduledDate *string           `json:"scheduledDate"`
	StartDate     *string           `json:"startDate"`
	DueDate       *string           `json:"dueDate"`
	Recurring     *model.Recurrence `json:"recurring"`
}

type occurrenceRequest struct {
	InstanceDate string `json:"instanceDate" binding:"required"`
}

type importConfirmRequest struct {
	Candidates []service.ImportCandidate `json:"candidates" binding:"required"`
}

func (r taskRequest) toInput() (service.TaskInput, error) {
	input := service.TaskInput{
		Title:        r.Title,
		Description:  r.Description,
		Board:        r.Board,
		BoardColor:   r.BoardColor,
		Priority:     r.Priority,
		Category:     r.Category,
		Tags:         r.Tags,
		TimeEstimate: r.TimeEstimate,
		Recurring:    r.Recurring,
	}
	var err error
	if input.ScheduledDate, err = parseOptionalDate(r.ScheduledDate); err != nil {
		return input, err
	}
	if input.StartDate, err = parseOptionalDate(r.StartDate); err != nil {
		return input, err
	}
	if input.DueDate, err = parseOptionalDate(r.DueDate); err != nil {
		return input, err
	}
	return input, nil
}

func (s *Server) handleConnect(c *gin.Context) {
	state := s.states.Issue(currentUser(c))
	c.Redirect(http.StatusFound, s.tokens.AuthURL(state))
}

func (s *Server) handleCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code and state are required"})
		return
	}
	userID, ok := s.states.Consume(state)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown or expired state"})
		return
	}
	if err := s.tokens.ExchangeCode(c.Request.Context(), userID, code); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true})
}

func (s *Server) handleAuthStatus(c *gin.Context) {
	connected := s.tokens.Connected(c.Request.Context(), currentUser(c))
	c.JSON(http.StatusOK, gin.H{"connected": connected})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	if err := s.tokens.Disconnect(c.Request.Context(), currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": false})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := s.tasks.Create(c.Request.Context(), currentUser(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleGetTask(c *gin.Context) {
	taskID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := s.tasks.Get(c.Request.Context(), currentUser(c), taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	taskID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := s.tasks.Update(c.Request.Context(), currentUser(c), taskID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	taskID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.tasks.Delete(c.Request.Context(), currentUser(c), taskID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCompleteOccurrence(c *gin.Context) {
	s.setOccurrenceState(c, true)
}

func (s *Server) handleUncompleteOccurrence(c *gin.Context) {
	s.setOccurrenceState(c, false)
}

func (s *Server) setOccurrenceState(c *gin.Context, completed bool) {
	taskID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req occurrenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if completed {
		err = s.occurrences.Complete(c.Request.Context(), currentUser(c), taskID, req.InstanceDate)
	} else {
		err = s.occurrences.Uncomplete(c.Request.Context(), currentUser(c), taskID, req.InstanceDate)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": completed})
}

func (s *Server) handleOccurrences(c *gin.Context) {
	from, to, err := windowParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	occs, err := s.occurrences.Window(c.Request.Context(), currentUser(c), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, occs)
}

func (s *Server) handleAgenda(c *gin.Context) {
	day, err := agendaDay(c.Query("date"), s.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	text, err := s.agenda.DailyAgenda(c.Request.Context(), model.User{ID: currentUser(c)}, day)
	if err != nil {
		respondError(c, err)
		return
	}
	c.String(http.StatusOK, text)
}

func (s *Server) handleManualSync(c *gin.Context) {
	report, err := s.sync.ManualSync(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleImportPreview(c *gin.Context) {
	from, to, err := windowParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter := service.ImportFilter{Search: c.Query("search")}
	candidates, err := s.imports.Preview(c.Request.Context(), currentUser(c), from, to, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, candidates)
}

func (s *Server) handleImportConfirm(c *gin.Context) {
	var req importConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := s.imports.Confirm(c.Request.Context(), currentUser(c), req.Candidates)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleCalendars(c *gin.Context) {
	calendars, err := s.remote.Calendars(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, calendars)
}

func pathID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid task id %q", c.Param("id"))
	}
	return uint(id), nil
}

func windowParams(c *gin.Context) (time.Time, time.Time, error) {
	from, err := time.Parse(time.DateOnly, c.Query("from"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("from must be YYYY-MM-DD")
	}
	to, err := time.Parse(time.DateOnly, c.Query("to"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("to must be YYYY-MM-DD")
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to must not be before from")
	}
	return from, to, nil
}

// agendaDay resolves the requested agenda date, defaulting to today in the
// planning timezone.
func agendaDay(raw string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Now().In(loc), nil
	}
	return time.Parse(time.DateOnly, raw)
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.DateOnly, *raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or RFC3339", *raw)
	}
	return &t, nil
}
