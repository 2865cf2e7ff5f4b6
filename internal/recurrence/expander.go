// Package recurrence expands recurring task templates into concrete,
// date-bound occurrences for a bounded window. Expansion is pure: the same
// inputs always produce the same occurrences, and nothing here reads the
// clock or touches storage.
package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"taskplanner/internal/model"
)

// ErrInvalidRule marks a malformed recurrence configuration. Callers fall
// back to treating the template as a single non-recurring occurrence.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// DefaultMaxInstances bounds expansion when the caller passes no cap.
const DefaultMaxInstances = 100

// Expand materializes the occurrences of a recurring template that fall
// inside [windowStart, windowEnd]. Occurrences start at the template's anchor
// date, stop at the rule's end date if set, and never exceed maxInstances.
func Expand(task model.Task, windowStart, windowEnd time.Time, maxInstances int) ([]model.TaskOccurrence, error) {
	if task.Recurring == nil {
		return nil, fmt.Errorf("%w: task %d has no recurrence", ErrInvalidRule, task.ID)
	}

	anchor := task.AnchorDate()
	if anchor == nil {
		return nil, fmt.Errorf("%w: task %d has no anchor date", ErrInvalidRule, task.ID)
	}

	rule, err := normalize(*task.Recurring)
	if err != nil {
		return nil, err
	}

	if maxInstances <= 0 {
		maxInstances = DefaultMaxInstances
	}

	start := dateOnly(*anchor)
	lower := dateOnly(windowStart)
	if lower.Before(start) {
		lower = start
	}
	upper := dateOnly(windowEnd)
	if rule.EndDate != nil {
		if end := dateOnly(*rule.EndDate); end.Before(upper) {
			upper = end
		}
	}
	if upper.Before(lower) {
		return nil, nil
	}

	var dates []time.Time
	add := func(d time.Time) bool {
		if d.Before(lower) || d.After(upper) {
			return true
		}
		dates = append(dates, d)
		return len(dates) < maxInstances
	}

	switch rule.Pattern {
	case model.PatternDaily:
		expandDaily(start, lower, upper, rule.Interval, add)
	case model.PatternWeekly:
		expandWeekly(start, lower, upper, rule, add)
	case model.PatternMonthly:
		expandMonthly(start, lower, upper, rule, add)
	case model.PatternYearly:
		expandYearly(start, upper, rule, add)
	}

	occurrences := make([]model.TaskOccurrence, 0, len(dates))
	for _, d := range dates {
		occurrences = append(occurrences, newOccurrence(task, d))
	}
	return occurrences, nil
}

// normalize validates a rule and returns a copy safe to expand: interval
// clamped to at least 1, day/month sets checked and sorted.
func normalize(rule model.Recurrence) (model.Recurrence, error) {
	switch rule.Pattern {
	case model.PatternDaily, model.PatternWeekly, model.PatternMonthly, model.PatternYearly:
	default:
		return rule, fmt.Errorf("%w: unknown pattern %q", ErrInvalidRule, rule.Pattern)
	}

	if rule.Interval < 1 {
		rule.Interval = 1
	}

	var err error
	if rule.DaysOfWeek, err = checkSet(rule.DaysOfWeek, 0, 6, "daysOfWeek"); err != nil {
		return rule, err
	}
	if rule.DaysOfMonth, err = checkSet(rule.DaysOfMonth, 1, 31, "daysOfMonth"); err != nil {
		return rule, err
	}
	if rule.MonthsOfYear, err = checkSet(rule.MonthsOfYear, 1, 12, "monthsOfYear"); err != nil {
		return rule, err
	}
	return rule, nil
}

func checkSet(values []int, min, max int, field string) ([]int, error) {
	if len(values) == 0 {
		return nil, nil
	}
	sorted := make([]int, 0, len(values))
	seen := make(map[int]bool, len(values))
	for _, v := range values {
		if v < min || v > max {
			return nil, fmt.Errorf("%w: %s value %d out of range [%d, %d]", ErrInvalidRule, field, v, min, max)
		}
		if !seen[v] {
			seen[v] = true
			sorted = append(sorted, v)
		}
	}
	sort.Ints(sorted)
	return sorted, nil
}

func expandDaily(anchor, lower, upper time.Time, interval int, add func(time.Time) bool) {
	first := anchor
	if anchor.Before(lower) {
		gap := daysBetween(anchor, lower)
		steps := gap / interval
		if gap%interval != 0 {
			steps++
		}
		first = anchor.AddDate(0, 0, steps*interval)
	}
	for d := first; !d.After(upper); d = d.AddDate(0, 0, interval) {
		if !add(d) {
			return
		}
	}
}

func expandWeekly(anchor, lower, upper time.Time, rule model.Recurrence, add func(time.Time) bool) {
	days := rule.DaysOfWeek
	if len(days) == 0 {
		days = []int{int(anchor.Weekday())}
	}

	step := 7 * rule.Interval
	week := anchor.AddDate(0, 0, -int(anchor.Weekday())) // back to Sunday
	if gap := daysBetween(week, lower); gap > step {
		week = week.AddDate(0, 0, (gap/step)*step)
	}

	for ; !week.After(upper); week = week.AddDate(0, 0, step) {
		for _, dow := range days {
			d := week.AddDate(0, 0, dow)
			if d.Before(anchor) || d.After(upper) {
				continue
			}
			if !add(d) {
				return
			}
		}
	}
}

func expandMonthly(anchor, lower, upper time.Time, rule model.Recurrence, add func(time.Time) bool) {
	doms := rule.DaysOfMonth
	if len(doms) == 0 {
		doms = []int{anchor.Day()}
	}

	mi := monthIndex(anchor)
	if gap := monthIndex(lower) - mi; gap > rule.Interval {
		mi += (gap / rule.Interval) * rule.Interval
	}

	lastMI := monthIndex(upper)
	for ; mi <= lastMI; mi += rule.Interval {
		year, month := mi/12, time.Month(mi%12+1)
		for _, dom := range doms {
			d := time.Date(year, month, dom, 0, 0, 0, 0, time.UTC)
			// A day the month does not have rolls over; skip it, never clamp.
			if d.Day() != dom || d.Month() != month {
				continue
			}
			if d.Before(anchor) || d.After(upper) {
				continue
			}
			if !add(d) {
				return
			}
		}
	}
}

func expandYearly(anchor, upper time.Time, rule model.Recurrence, add func(time.Time) bool) {
	months := rule.MonthsOfYear
	if len(months) == 0 {
		months = []int{int(anchor.Month())}
	}
	day := anchor.Day()

	for year := anchor.Year(); year <= upper.Year(); year += rule.Interval {
		for _, mo := range months {
			d := time.Date(year, time.Month(mo), day, 0, 0, 0, 0, time.UTC)
			if d.Day() != day || int(d.Month()) != mo {
				continue
			}
			if d.Before(anchor) || d.After(upper) {
				continue
			}
			if !add(d) {
				return
			}
		}
	}
}

func newOccurrence(task model.Task, date time.Time) model.TaskOccurrence {
	occ := model.TaskOccurrence{
		Task:                task,
		InstanceDate:        date.Format(time.DateOnly),
		RecurringInstanceID: model.InstanceID(task.ID, date),
	}
	d := date
	occ.ScheduledDate = &d
	return occ
}

// dateOnly strips the time component, mapping any instant to its calendar
// date at UTC midnight.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}
