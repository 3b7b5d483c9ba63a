package entity

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDuplicateKey(t *testing.T) {
	tests := []struct {
		entry TimeEntry
		want  string
	}{
		{TimeEntry{ProjectID: "p1", TaskID: "t1", Date: day("2024-01-02")}, "p1/t1/2024-01-02"},
		{TimeEntry{ProjectID: "p1", Date: day("2024-01-02")}, "p1/N/A/2024-01-02"},
		{TimeEntry{EntryType: EntryTypeCustomTask, Date: day("2024-01-02")}, "N/A/N/A/2024-01-02"},
		{TimeEntry{ProjectID: "p1", TaskID: "t1"}, "p1/t1/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.entry.DuplicateKey())
	}
}

func TestSumHours(t *testing.T) {
	deleted := time.Now()
	entries := []TimeEntry{
		{Hours: 8},
		{Hours: 1.5},
		{Hours: -3},
		{Hours: math.NaN()},
		{Hours: math.Inf(1)},
		{Hours: 4, DeletedAt: &deleted},
	}
	assert.Equal(t, 9.5, SumHours(entries))
	assert.Equal(t, 0.0, SumHours(nil))
}

func TestProjectIDs(t *testing.T) {
	entries := []TimeEntry{
		{EntryType: EntryTypeProjectTask, ProjectID: "p2"},
		{EntryType: EntryTypeCustomTask, ProjectID: "p9"},
		{EntryType: EntryTypeProjectTask, ProjectID: "p1"},
		{EntryType: EntryTypeProjectTask, ProjectID: "p2"},
		{EntryType: EntryTypeProjectTask},
	}
	assert.Equal(t, []string{"p2", "p1"}, ProjectIDs(entries))
	assert.Nil(t, ProjectIDs(nil))
}

func TestWeekBounds(t *testing.T) {
	start := day("2024-01-01")
	ts := &Timesheet{WeekStart: start, WeekEnd: WeekEndFor(start)}

	assert.Equal(t, day("2024-01-07"), ts.WeekEnd)
	assert.True(t, ts.ContainsDate(day("2024-01-01")))
	assert.True(t, ts.ContainsDate(day("2024-01-07").Add(23*time.Hour)))
	assert.False(t, ts.ContainsDate(day("2023-12-31")))
	assert.False(t, ts.ContainsDate(day("2024-01-08")))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, d.Location())

	_, err = ParseDate("2024-02-30")
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	frozen := time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC)
	original := &Timesheet{ID: "ts-1", FrozenAt: &frozen}

	c := original.Clone()
	*c.FrozenAt = c.FrozenAt.Add(time.Hour)
	c.ID = "ts-2"

	assert.Equal(t, frozen, *original.FrozenAt)
	assert.Equal(t, "ts-1", original.ID)

	var none *Timesheet
	assert.Nil(t, none.Clone())
}

func TestRole(t *testing.T) {
	assert.True(t, RoleBilling.IsValid())
	assert.False(t, Role("ceo").IsValid())
	assert.Equal(t, Actor{ID: BillingSystemActorID, Role: RoleBilling}, BillingActor())
}
