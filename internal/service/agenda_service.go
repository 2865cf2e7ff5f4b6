package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"taskplanner/internal/model"
	"taskplanner/internal/repository"
)

// AgendaService builds human-readable daily summaries from the occurrence
// view.
type AgendaService struct {
	occurrences *OccurrenceService
	tasks       *repository.TaskRepository
}

func NewAgendaService(occurrences *OccurrenceService, tasks *repository.TaskRepository) *AgendaService {
	return &AgendaService{occurrences: occurrences, tasks: tasks}
}

// DailyAgenda renders the occurrences falling on the given day.
func (s *AgendaService) DailyAgenda(ctx context.Context, user model.User, day time.Time) (string, error) {
	occs, err := s.occurrences.Window(ctx, user.ID, day, day)
	if err != nil {
		return "", err
	}

	var pending, done []model.TaskOccurrence
	for _, occ := range occs {
		if occ.Completed {
			done = append(done, occ)
		} else {
			pending = append(pending, occ)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Title < pending[j].Title })
	sort.SliceStable(done, func(i, j int) bool { return done[i].Title < done[j].Title })

	boardNames := s.boardNames(ctx, occs)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Agenda for %s\n", day.Format(time.DateOnly)))

	if len(occs) == 0 {
		builder.WriteString("Nothing scheduled.\n")
		return strings.TrimSpace(builder.String()), nil
	}

	for _, occ := range pending {
		builder.WriteString(formatAgendaLine(occ, boardNames, false))
	}
	for _, occ := range done {
		builder.WriteString(formatAgendaLine(occ, boardNames, true))
	}
	return strings.TrimSpace(builder.String()), nil
}

func (s *AgendaService) boardNames(ctx context.Context, occs []model.TaskOccurrence) map[uint]string {
	names := make(map[uint]string)
	for _, occ := range occs {
		if occ.BoardID == nil {
			continue
		}
		if _, ok := names[*occ.BoardID]; ok {
			continue
		}
		if board, err := s.tasks.FindBoard(ctx, *occ.BoardID); err == nil {
			names[*occ.BoardID] = board.Name
		}
	}
	return names
}

func formatAgendaLine(occ model.TaskOccurrence, boardNames map[uint]string, done bool) string {
	mark := " "
	if done {
		mark = "x"
	}
	line := fmt.Sprintf("- [%s] %s", mark, strings.TrimSpace(occ.Title))
	if occ.BoardID != nil {
		if name := strings.TrimSpace(boardNames[*occ.BoardID]); name != "" {
			line += fmt.Sprintf(" (%s)", name)
		}
	}
	if occ.TimeEstimate > 0 {
		line += fmt.Sprintf(" · %dm", occ.TimeEstimate)
	}
	return line + "\n"
}
