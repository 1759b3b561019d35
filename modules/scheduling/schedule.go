package scheduling

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrInvalidSchedule  = errors.New("invalid schedule")
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrScheduleFull     = errors.New("scheduled post limit reached")
	ErrNotPending       = errors.New("schedule is not pending")
)

const (
	StatusPending    = "pending"
	StatusDispatched = "dispatched"
	StatusPublished  = "published"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// ScheduleRequest asks for one platform publish. PublishTime defaults to
// the platform's next optimal slot.
type ScheduleRequest struct {
	ContentID     string     `json:"content_id" validate:"required"`
	Platform      string     `json:"platform" validate:"omitempty,oneof=wordpress linkedin facebook twitter instagram"`
	ContentType   string     `json:"content_type"`
	PublishTime   *time.Time `json:"publish_time"`
	AutoScheduled bool       `json:"-"`
}

type Schedule struct {
	ID            string         `json:"schedule_id"`
	ContentID     string         `json:"content_id"`
	Platform      string         `json:"platform"`
	ContentType   string         `json:"content_type,omitempty"`
	PublishTime   time.Time      `json:"publish_time"`
	Status        string         `json:"status"`
	AutoScheduled bool           `json:"auto_scheduled"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	PublishedAt   *time.Time     `json:"published_at,omitempty"`
	Result        map[string]any `json:"result,omitempty"`
	Error         string         `json:"error,omitempty"`
}

func (s *Schedule) clone() Schedule {
	c := *s
	c.Result = maps.Clone(s.Result)
	return c
}

// SchedulerService stores publish schedules and hands out the ones that come
// due.
type SchedulerService struct {
	calendar *CalendarService
	max      int
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	schedules map[string]*Schedule
}

func NewSchedulerService(calendar *CalendarService, maxPending int, logger *slog.Logger) *SchedulerService {
	return &SchedulerService{
		calendar:  calendar,
		max:       maxPending,
		validate:  validator.New(),
		logger:    logger.With("service", SchedulerServiceName),
		now:       time.Now,
		schedules: make(map[string]*Schedule),
	}
}

func (s *SchedulerService) pendingLocked() int {
	n := 0
	for _, sc := range s.schedules {
		if sc.Status == StatusPending {
			n++
		}
	}
	return n
}

func (s *SchedulerService) Create(req ScheduleRequest) (Schedule, error) {
	if err := s.validate.Struct(req); err != nil {
		return Schedule{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	if req.Platform == "" {
		req.Platform = PlatformWordPress
	}
	now := s.now()
	publish := s.calendar.OptimalTime(req.Platform, req.ContentType, now)
	if req.PublishTime != nil {
		if req.PublishTime.Before(now) {
			return Schedule{}, fmt.Errorf("%w: publish_time %s is in the past", ErrInvalidSchedule, req.PublishTime.Format(time.RFC3339))
		}
		publish = *req.PublishTime
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingLocked() >= s.max {
		return Schedule{}, fmt.Errorf("%w: %d pending", ErrScheduleFull, s.max)
	}
	sc := &Schedule{
		ID:            uuid.NewString(),
		ContentID:     req.ContentID,
		Platform:      req.Platform,
		ContentType:   req.ContentType,
		PublishTime:   publish.In(s.calendar.Location()),
		Status:        StatusPending,
		AutoScheduled: req.AutoScheduled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.schedules[sc.ID] = sc
	s.logger.Info("content scheduled", "schedule_id", sc.ID, "content_id", sc.ContentID, "platform", sc.Platform, "publish_time", sc.PublishTime)
	return sc.clone(), nil
}

func (s *SchedulerService) Get(id string) (Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return Schedule{}, fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	return sc.clone(), nil
}

// List returns schedules by publish time, optionally filtered by status.
func (s *SchedulerService) List(status string) []Schedule {
	return s.filter(func(sc *Schedule) bool { return status == "" || sc.Status == status })
}

// Between returns schedules publishing in [from, to).
func (s *SchedulerService) Between(from, to time.Time) []Schedule {
	return s.filter(func(sc *Schedule) bool {
		return !sc.PublishTime.Before(from) && sc.PublishTime.Before(to) && sc.Status != StatusCancelled
	})
}

func (s *SchedulerService) filter(keep func(*Schedule) bool) []Schedule {
	s.mu.Lock()
	out := []Schedule{}
	for _, sc := range s.schedules {
		if keep(sc) {
			out = append(out, sc.clone())
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishTime.Equal(out[j].PublishTime) {
			return out[i].PublishTime.Before(out[j].PublishTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// pending runs fn on a pending schedule under the lock.
func (s *SchedulerService) pending(id string, fn func(*Schedule) error) (Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return Schedule{}, fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	if sc.Status != StatusPending {
		return Schedule{}, fmt.Errorf("%w: %s is %s", ErrNotPending, id, sc.Status)
	}
	if err := fn(sc); err != nil {
		return Schedule{}, err
	}
	sc.UpdatedAt = s.now()
	return sc.clone(), nil
}

func (s *SchedulerService) Reschedule(id string, at time.Time) (Schedule, error) {
	if at.Before(s.now()) {
		return Schedule{}, fmt.Errorf("%w: publish_time %s is in the past", ErrInvalidSchedule, at.Format(time.RFC3339))
	}
	return s.pending(id, func(sc *Schedule) error {
		sc.PublishTime = at.In(s.calendar.Location())
		return nil
	})
}

func (s *SchedulerService) Cancel(id string) (Schedule, error) {
	return s.pending(id, func(sc *Schedule) error {
		sc.Status = StatusCancelled
		return nil
	})
}

// Claim marks a pending schedule dispatched regardless of its publish time.
func (s *SchedulerService) Claim(id string) (Schedule, error) {
	return s.pending(id, func(sc *Schedule) error {
		sc.Status = StatusDispatched
		return nil
	})
}

// Due claims every pending schedule whose publish time is not after now.
func (s *SchedulerService) Due(now time.Time) []Schedule {
	s.mu.Lock()
	var out []Schedule
	for _, sc := range s.schedules {
		if sc.Status == StatusPending && !sc.PublishTime.After(now) {
			sc.Status = StatusDispatched
			sc.UpdatedAt = now
			out = append(out, sc.clone())
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PublishTime.Before(out[j].PublishTime) })
	return out
}

func (s *SchedulerService) settle(id string, fn func(*Schedule)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	fn(sc)
	sc.UpdatedAt = s.now()
	return nil
}

func (s *SchedulerService) MarkPublished(id string, result map[string]any) error {
	return s.settle(id, func(sc *Schedule) {
		now := s.now()
		sc.Status = StatusPublished
		sc.PublishedAt = &now
		sc.Result = maps.Clone(result)
		sc.Error = ""
	})
}

func (s *SchedulerService) MarkFailed(id, reason string) error {
	return s.settle(id, func(sc *Schedule) {
		sc.Status = StatusFailed
		sc.Error = reason
	})
}

// Counts reports schedules per status.
func (s *SchedulerService) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]int{
		StatusPending: 0, StatusDispatched: 0, StatusPublished: 0, StatusFailed: 0, StatusCancelled: 0,
	}
	for _, sc := range s.schedules {
		out[sc.Status]++
	}
	return out
}
