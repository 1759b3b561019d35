package scheduling

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// monday is 2025-06-02 10:00 UTC.
var monday = time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newScheduler(max int) *SchedulerService {
	s := NewSchedulerService(NewCalendarService(time.UTC), max, discard())
	s.now = func() time.Time { return monday }
	return s
}

func at(t time.Time) *time.Time { return &t }

func TestScheduler_CreateDefaults(t *testing.T) {
	s := newScheduler(10)

	sc, err := s.Create(ScheduleRequest{ContentID: "c-1"})
	require.NoError(t, err)
	assert.Equal(t, PlatformWordPress, sc.Platform)
	assert.Equal(t, StatusPending, sc.Status)
	assert.Equal(t, time.Date(2025, time.June, 3, 9, 0, 0, 0, time.UTC), sc.PublishTime)

	got, err := s.Get(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, sc, got)
}

func TestScheduler_CreateRejects(t *testing.T) {
	s := newScheduler(1)

	_, err := s.Create(ScheduleRequest{})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	_, err = s.Create(ScheduleRequest{ContentID: "c", Platform: "myspace"})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	_, err = s.Create(ScheduleRequest{ContentID: "c", PublishTime: at(monday.Add(-time.Minute))})
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = s.Create(ScheduleRequest{ContentID: "c"})
	require.NoError(t, err)
	_, err = s.Create(ScheduleRequest{ContentID: "d"})
	assert.ErrorIs(t, err, ErrScheduleFull)
}

func TestScheduler_Lifecycle(t *testing.T) {
	s := newScheduler(10)
	sc, err := s.Create(ScheduleRequest{ContentID: "c", PublishTime: at(monday.Add(2 * time.Hour))})
	require.NoError(t, err)

	moved, err := s.Reschedule(sc.ID, monday.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, monday.Add(time.Hour), moved.PublishTime)
	_, err = s.Reschedule(sc.ID, monday.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	assert.Empty(t, s.Due(monday))
	due := s.Due(monday.Add(time.Hour))
	require.Len(t, due, 1)
	assert.Equal(t, StatusDispatched, due[0].Status)
	assert.Empty(t, s.Due(monday.Add(time.Hour)))

	_, err = s.Cancel(sc.ID)
	assert.ErrorIs(t, err, ErrNotPending)

	require.NoError(t, s.MarkPublished(sc.ID, map[string]any{"post_id": "42"}))
	got, _ := s.Get(sc.ID)
	assert.Equal(t, StatusPublished, got.Status)
	assert.Equal(t, "42", got.Result["post_id"])
	require.NotNil(t, got.PublishedAt)

	assert.ErrorIs(t, s.MarkFailed("missing", "boom"), ErrScheduleNotFound)
	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestScheduler_ListAndCounts(t *testing.T) {
	s := newScheduler(10)
	late, _ := s.Create(ScheduleRequest{ContentID: "late", PublishTime: at(monday.Add(48 * time.Hour))})
	early, _ := s.Create(ScheduleRequest{ContentID: "early", PublishTime: at(monday.Add(time.Hour))})
	gone, _ := s.Create(ScheduleRequest{ContentID: "gone", PublishTime: at(monday.Add(2 * time.Hour))})
	_, err := s.Cancel(gone.ID)
	require.NoError(t, err)

	all := s.List("")
	require.Len(t, all, 3)
	assert.Equal(t, early.ID, all[0].ID)
	assert.Equal(t, late.ID, all[2].ID)

	pending := s.List(StatusPending)
	assert.Len(t, pending, 2)

	between := s.Between(monday, monday.Add(24*time.Hour))
	require.Len(t, between, 1)
	assert.Equal(t, early.ID, between[0].ID)

	counts := s.Counts()
	assert.Equal(t, 2, counts[StatusPending])
	assert.Equal(t, 1, counts[StatusCancelled])
	assert.Zero(t, counts[StatusPublished])
}

func TestScheduler_ClaimSkipsTime(t *testing.T) {
	s := newScheduler(10)
	sc, _ := s.Create(ScheduleRequest{ContentID: "c", PublishTime: at(monday.Add(72 * time.Hour))})

	claimed, err := s.Claim(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDispatched, claimed.Status)
	_, err = s.Claim(sc.ID)
	assert.ErrorIs(t, err, ErrNotPending)
}
