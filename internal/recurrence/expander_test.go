package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskplanner/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func template(id uint, anchor time.Time, rule model.Recurrence) model.Task {
	a := anchor
	return model.Task{
		ID:            id,
		Title:         "water the plants",
		ScheduledDate: &a,
		Recurring:     &rule,
	}
}

func TestExpandDailyFillsWindow(t *testing.T) {
	task := template(1, date(2026, time.March, 1), model.Recurrence{
		Pattern:  model.PatternDaily,
		Interval: 1,
	})

	occs, err := Expand(task, date(2026, time.March, 1), date(2026, time.March, 10), 100)
	require.NoError(t, err)
	require.Len(t, occs, 10)

	for i, occ := range occs {
		want := date(2026, time.March, 1+i)
		assert.Equal(t, want.Format(time.DateOnly), occ.InstanceDate)
		require.NotNil(t, occ.ScheduledDate)
		assert.True(t, occ.ScheduledDate.Equal(want))
		assert.Equal(t, model.InstanceID(1, want), occ.RecurringInstanceID)
	}
}

func TestExpandDailyIntervalAndFastForward(t *testing.T) {
	// Anchor far in the past; expansion must land on the interval grid
	// inside the window without scanning year by year.
	task := template(2, date(2020, time.January, 1), model.Recurrence{
		Pattern:  model.PatternDaily,
		Interval: 3,
	})

	occs, err := Expand(task, date(2026, time.January, 1), date(2026, time.January, 12), 100)
	require.NoError(t, err)
	require.NotEmpty(t, occs)

	for _, occ := range occs {
		d, err := time.Parse(time.DateOnly, occ.InstanceDate)
		require.NoError(t, err)
		gap := int(d.Sub(date(2020, time.January, 1)).Hours() / 24)
		assert.Zero(t, gap%3, "occurrence %s off the interval grid", occ.InstanceDate)
	}
}

func TestExpandWeeklyMonWedFri(t *testing.T) {
	// 2026-03-02 is a Monday.
	task := template(3, date(2026, time.March, 2), model.Recurrence{
		Pattern:    model.PatternWeekly,
		Interval:   1,
		DaysOfWeek: []int{1, 3, 5},
	})

	occs, err := Expand(task, date(2026, time.March, 2), date(2026, time.March, 15), 100)
	require.NoError(t, err)
	require.Len(t, occs, 6)

	for _, occ := range occs {
		d, err := time.Parse(time.DateOnly, occ.InstanceDate)
		require.NoError(t, err)
		assert.Contains(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, d.Weekday())
	}
}

func TestExpandWeeklyDefaultsToAnchorWeekday(t *testing.T) {
	// 2026-03-05 is a Thursday.
	task := template(4, date(2026, time.March, 5), model.Recurrence{
		Pattern:  model.PatternWeekly,
		Interval: 2,
	})

	occs, err := Expand(task, date(2026, time.March, 1), date(2026, time.April, 4), 100)
	require.NoError(t, err)
	require.Len(t, occs, 3)
	assert.Equal(t, "2026-03-05", occs[0].InstanceDate)
	assert.Equal(t, "2026-03-19", occs[1].InstanceDate)
	assert.Equal(t, "2026-04-02", occs[2].InstanceDate)
}

func TestExpandMonthlySkipsMissingDays(t *testing.T) {
	task := template(5, date(2026, time.January, 31), model.Recurrence{
		Pattern:     model.PatternMonthly,
		Interval:    1,
		DaysOfMonth: []int{31},
	})

	occs, err := Expand(task, date(2026, time.January, 1), date(2026, time.April, 30), 100)
	require.NoError(t, err)

	var dates []string
	for _, occ := range occs {
		dates = append(dates, occ.InstanceDate)
	}
	// February and April have no 31st: skipped, not clamped.
	assert.Equal(t, []string{"2026-01-31", "2026-03-31"}, dates)
}

func TestExpandYearly(t *testing.T) {
	task := template(6, date(2024, time.June, 15), model.Recurrence{
		Pattern:  model.PatternYearly,
		Interval: 2,
	})

	occs, err := Expand(task, date(2024, time.January, 1), date(2030, time.December, 31), 100)
	require.NoError(t, err)

	var dates []string
	for _, occ := range occs {
		dates = append(dates, occ.InstanceDate)
	}
	assert.Equal(t, []string{"2024-06-15", "2026-06-15", "2028-06-15", "2030-06-15"}, dates)
}

func TestExpandStopsAtEndDate(t *testing.T) {
	end := date(2026, time.March, 5)
	task := template(7, date(2026, time.March, 1), model.Recurrence{
		Pattern:  model.PatternDaily,
		Interval: 1,
		EndDate:  &end,
	})

	occs, err := Expand(task, date(2026, time.March, 1), date(2026, time.March, 31), 100)
	require.NoError(t, err)
	require.Len(t, occs, 5)
	assert.Equal(t, "2026-03-05", occs[len(occs)-1].InstanceDate)
}

func TestExpandHonorsMaxInstances(t *testing.T) {
	task := template(8, date(2026, time.January, 1), model.Recurrence{
		Pattern:  model.PatternDaily,
		Interval: 1,
	})

	occs, err := Expand(task, date(2026, time.January, 1), date(2026, time.December, 31), 7)
	require.NoError(t, err)
	assert.Len(t, occs, 7)
}

func TestExpandZeroIntervalNeverLoops(t *testing.T) {
	task := template(9, date(2026, time.March, 1), model.Recurrence{
		Pattern:  model.PatternDaily,
		Interval: 0,
	})

	occs, err := Expand(task, date(2026, time.March, 1), date(2026, time.March, 5), 100)
	require.NoError(t, err)
	// Treated as interval 1.
	assert.Len(t, occs, 5)
}

func TestExpandRejectsMalformedRules(t *testing.T) {
	anchor := date(2026, time.March, 1)

	for name, rule := range map[string]model.Recurrence{
		"unknown pattern":      {Pattern: "fortnightly", Interval: 1},
		"weekday out of range": {Pattern: model.PatternWeekly, Interval: 1, DaysOfWeek: []int{7}},
		"day out of range":     {Pattern: model.PatternMonthly, Interval: 1, DaysOfMonth: []int{0}},
		"month out of range":   {Pattern: model.PatternYearly, Interval: 1, MonthsOfYear: []int{13}},
	} {
		t.Run(name, func(t *testing.T) {
			task := template(10, anchor, rule)
			_, err := Expand(task, anchor, date(2026, time.March, 31), 100)
			assert.True(t, errors.Is(err, ErrInvalidRule))
		})
	}
}

func TestExpandRequiresAnchor(t *testing.T) {
	task := model.Task{ID: 11, Recurring: &model.Recurrence{Pattern: model.PatternDaily, Interval: 1}}
	_, err := Expand(task, date(2026, time.March, 1), date(2026, time.March, 5), 100)
	assert.True(t, errors.Is(err, ErrInvalidRule))
}

func TestExpandIsDeterministic(t *testing.T) {
	task := template(12, date(2026, time.February, 1), model.Recurrence{
		Pattern:     model.PatternMonthly,
		Interval:    1,
		DaysOfMonth: []int{5, 20, 31},
	})

	first, err := Expand(task, date(2026, time.January, 1), date(2026, time.December, 31), 100)
	require.NoError(t, err)
	second, err := Expand(task, date(2026, time.January, 1), date(2026, time.December, 31), 100)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExpandDoesNotMutateTemplate(t *testing.T) {
	anchor := date(2026, time.March, 1)
	task := template(13, anchor, model.Recurrence{Pattern: model.PatternDaily, Interval: 1})

	_, err := Expand(task, date(2026, time.March, 1), date(2026, time.March, 10), 100)
	require.NoError(t, err)
	assert.True(t, task.ScheduledDate.Equal(anchor))
}

func TestExpandOrderedAscending(t *testing.T) {
	task := template(14, date(2026, time.January, 1), model.Recurrence{
		Pattern:     model.PatternMonthly,
		Interval:    1,
		DaysOfMonth: []int{20, 5}, // unsorted input
	})

	occs, err := Expand(task, date(2026, time.January, 1), date(2026, time.March, 31), 100)
	require.NoError(t, err)
	require.NotEmpty(t, occs)
	for i := 1; i < len(occs); i++ {
		assert.Less(t, occs[i-1].InstanceDate, occs[i].InstanceDate)
	}
}
