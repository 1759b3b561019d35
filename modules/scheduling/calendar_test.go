package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendar_OptimalTime(t *testing.T) {
	c := NewCalendarService(time.UTC)
	day := func(d, h int) time.Time { return time.Date(2025, time.June, d, h, 0, 0, 0, time.UTC) }

	tests := []struct {
		platform, contentType string
		want                  time.Time
	}{
		{PlatformWordPress, "", day(3, 9)},
		{PlatformLinkedIn, "", day(2, 12)},
		{PlatformLinkedIn, "social_media", day(2, 11)},
		{PlatformWordPress, "newsletter", day(4, 9)},
		{PlatformWordPress, "product_launch", day(5, 11)},
		{PlatformFacebook, "", day(4, 13)},
		{"myspace", "", day(3, 9)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.OptimalTime(tt.platform, tt.contentType, monday), "%s/%s", tt.platform, tt.contentType)
	}
}

func TestCalendar_SlotsStrictlyAfter(t *testing.T) {
	c := NewCalendarService(time.UTC)
	from := time.Date(2025, time.June, 3, 9, 0, 0, 0, time.UTC)

	slots := c.Slots(PlatformWordPress, "", from, 3)
	require.Len(t, slots, 3)
	assert.Equal(t, 11, slots[0].Hour())
	assert.Equal(t, 14, slots[1].Hour())
	assert.Equal(t, 16, slots[2].Hour())

	assert.Len(t, c.Slots(PlatformWordPress, "", from, 1000), 4*4*2-1)
}

func TestCalendar_WindowFor(t *testing.T) {
	c := NewCalendarService(nil)
	assert.Equal(t, time.UTC, c.Location())

	w := c.WindowFor(PlatformTwitter, "social_media")
	assert.Equal(t, []int{7, 11, 14, 17}, w.Hours)

	w = c.WindowFor(PlatformWordPress, "product_launch")
	assert.Equal(t, []time.Weekday{time.Thursday, time.Friday, time.Saturday, time.Sunday}, w.Days)
}

func TestCalendar_LocalZone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	c := NewCalendarService(loc)

	got := c.OptimalTime(PlatformWordPress, "", monday)
	assert.Equal(t, loc, got.Location())
	assert.Equal(t, 9, got.Hour())
	assert.Equal(t, time.Tuesday, got.Weekday())
}

func TestCalendar_Grouping(t *testing.T) {
	s := newScheduler(10)
	c := s.calendar
	_, _ = s.Create(ScheduleRequest{ContentID: "a", PublishTime: at(monday.Add(time.Hour))})
	_, _ = s.Create(ScheduleRequest{ContentID: "b", PublishTime: at(monday.Add(26 * time.Hour))})
	_, _ = s.Create(ScheduleRequest{ContentID: "c", PublishTime: at(monday.Add(30 * 24 * time.Hour))})

	days, err := c.Calendar(s, monday, 7)
	require.NoError(t, err)
	require.Len(t, days, 7)
	assert.Equal(t, "2025-06-02", days[0].Date)
	require.Len(t, days[0].Schedules, 1)
	assert.Equal(t, "a", days[0].Schedules[0].ContentID)
	require.Len(t, days[1].Schedules, 1)
	assert.Equal(t, "b", days[1].Schedules[0].ContentID)
	assert.Empty(t, days[6].Schedules)

	_, err = c.Calendar(s, monday, 0)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	_, err = c.Calendar(s, monday, 91)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}
