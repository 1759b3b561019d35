package scheduling

import (
	"fmt"
	"slices"
	"sort"
	"time"
)

const (
	PlatformWordPress = "wordpress"
	PlatformLinkedIn  = "linkedin"
	PlatformFacebook  = "facebook"
	PlatformTwitter   = "twitter"
	PlatformInstagram = "instagram"

	// searchHorizon bounds the optimal-slot search.
	searchHorizon = 14 * 24 * time.Hour
)

// Window is a platform's engagement peak.
type Window struct {
	Hours []int          `json:"hours"`
	Days  []time.Weekday `json:"days"`
}

var weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

var windows = map[string]Window{
	PlatformWordPress: {Hours: []int{9, 11, 14, 16}, Days: []time.Weekday{time.Tuesday, time.Wednesday, time.Thursday, time.Friday}},
	PlatformLinkedIn:  {Hours: []int{8, 12, 17}, Days: weekdays},
	PlatformFacebook:  {Hours: []int{13, 15, 19}, Days: []time.Weekday{time.Wednesday, time.Thursday, time.Saturday, time.Sunday}},
	PlatformTwitter:   {Hours: []int{8, 12, 15, 18}, Days: weekdays},
	PlatformInstagram: {Hours: []int{11, 13, 17, 19}, Days: []time.Weekday{time.Wednesday, time.Thursday, time.Saturday, time.Sunday}},
}

// adjustment shifts a platform window for a content type.
type adjustment struct {
	Hours int
	Days  int
}

var adjustments = map[string]adjustment{
	"social_media":   {Hours: -1},
	"newsletter":     {Days: 1},
	"product_launch": {Hours: 2, Days: 2},
	"case_study":     {Days: 1},
}

// Platforms lists the platforms with a known window, sorted.
func Platforms() []string {
	out := make([]string, 0, len(windows))
	for p := range windows {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// CalendarService computes publish slots in the configured time zone.
type CalendarService struct {
	loc *time.Location
}

func NewCalendarService(loc *time.Location) *CalendarService {
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarService{loc: loc}
}

func (c *CalendarService) Location() *time.Location { return c.loc }

// WindowFor returns the platform window after content-type adjustment.
// Unknown platforms use the WordPress window.
func (c *CalendarService) WindowFor(platform, contentType string) Window {
	w, ok := windows[platform]
	if !ok {
		w = windows[PlatformWordPress]
	}
	adj := adjustments[contentType]
	out := Window{Hours: make([]int, 0, len(w.Hours)), Days: make([]time.Weekday, 0, len(w.Days))}
	for _, h := range w.Hours {
		out.Hours = append(out.Hours, min(23, max(0, h+adj.Hours)))
	}
	for _, d := range w.Days {
		out.Days = append(out.Days, time.Weekday((int(d)+adj.Days)%7))
	}
	slices.Sort(out.Hours)
	out.Hours = slices.Compact(out.Hours)
	return out
}

// Slots returns the next n slots strictly after from.
func (c *CalendarService) Slots(platform, contentType string, from time.Time, n int) []time.Time {
	w := c.WindowFor(platform, contentType)
	from = from.In(c.loc)
	t := time.Date(from.Year(), from.Month(), from.Day(), from.Hour(), 0, 0, 0, c.loc)
	if !t.After(from) {
		t = t.Add(time.Hour)
	}
	var out []time.Time
	for end := from.Add(searchHorizon); t.Before(end) && len(out) < n; t = t.Add(time.Hour) {
		if slices.Contains(w.Days, t.Weekday()) && slices.Contains(w.Hours, t.Hour()) {
			out = append(out, t)
		}
	}
	return out
}

// OptimalTime returns the next slot after from, or from plus one hour when
// the window is empty.
func (c *CalendarService) OptimalTime(platform, contentType string, from time.Time) time.Time {
	if s := c.Slots(platform, contentType, from, 1); len(s) > 0 {
		return s[0]
	}
	return from.In(c.loc).Add(time.Hour)
}

// Day groups the schedules publishing on one calendar date.
type Day struct {
	Date      string     `json:"date"`
	Schedules []Schedule `json:"schedules"`
}

// Calendar lays out schedules over days starting at from's date.
func (c *CalendarService) Calendar(s *SchedulerService, from time.Time, days int) ([]Day, error) {
	if days < 1 || days > 90 {
		return nil, fmt.Errorf("%w: days must be between 1 and 90", ErrInvalidSchedule)
	}
	from = from.In(c.loc)
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, c.loc)
	out := make([]Day, days)
	index := make(map[string]int, days)
	for i := range out {
		date := start.AddDate(0, 0, i).Format(time.DateOnly)
		out[i] = Day{Date: date, Schedules: []Schedule{}}
		index[date] = i
	}
	for _, sc := range s.Between(start, start.AddDate(0, 0, days)) {
		if i, ok := index[sc.PublishTime.In(c.loc).Format(time.DateOnly)]; ok {
			out[i].Schedules = append(out[i].Schedules, sc)
		}
	}
	return out, nil
}
