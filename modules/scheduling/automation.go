package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

var (
	ErrInvalidWorkflow  = errors.New("invalid workflow")
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrUnknownTemplate  = errors.New("unknown workflow template")
)

const (
	ActionGenerateContent = "generate_content"
	ActionNotify          = "notify"

	TriggerSchedule = "schedule"
	TriggerManual   = "manual"

	StatusCompleted = "completed"

	maxExecutions = 50
)

type Action struct {
	Type         string         `json:"type" validate:"oneof=generate_content notify"`
	DelaySeconds int            `json:"delay_seconds" validate:"min=0,max=86400"`
	Params       map[string]any `json:"params,omitempty"`
}

type WorkflowRequest struct {
	Name string `json:"name" validate:"required"`
	// Schedule is a standard five-field cron spec or descriptor.
	Schedule string         `json:"schedule"`
	Params   map[string]any `json:"params"`
	Actions  []Action       `json:"actions" validate:"required,min=1,dive"`
}

type Workflow struct {
	ID        string         `json:"workflow_id"`
	Name      string         `json:"name"`
	Template  string         `json:"template,omitempty"`
	Schedule  string         `json:"schedule,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Actions   []Action       `json:"actions"`
	Active    bool           `json:"active"`
	CreatedAt time.Time      `json:"created_at"`
	LastRun   *time.Time     `json:"last_run,omitempty"`
	NextRun   *time.Time     `json:"next_run,omitempty"`
	Runs      int            `json:"runs"`

	entry cron.EntryID
	sched cron.Schedule
}

func (w *Workflow) clone() Workflow {
	c := *w
	c.Params = maps.Clone(w.Params)
	c.Actions = append([]Action(nil), w.Actions...)
	return c
}

type Step struct {
	Action string `json:"action"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type Execution struct {
	ID         string    `json:"execution_id"`
	WorkflowID string    `json:"workflow_id"`
	Trigger    string    `json:"trigger"`
	Status     string    `json:"status"`
	Steps      []Step    `json:"steps"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// WorkflowTemplate is a preset workflow a user instantiates with params.
type WorkflowTemplate struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Schedule    string   `json:"schedule"`
	Actions     []Action `json:"actions"`
}

var workflowTemplates = []WorkflowTemplate{
	{
		Key:         "blog_automation",
		Name:        "Blog Automation",
		Description: "Generate a blog post every Monday and schedule it for WordPress",
		Schedule:    "0 9 * * 1",
		Actions: []Action{{Type: ActionGenerateContent, Params: map[string]any{
			"content_type":     "blog_post",
			"auto_schedule":    true,
			"target_platforms": []string{PlatformWordPress},
		}}},
	},
	{
		Key:         "social_media_automation",
		Name:        "Social Media Automation",
		Description: "Generate a daily social post for LinkedIn and Twitter",
		Schedule:    "0 12 * * *",
		Actions: []Action{{Type: ActionGenerateContent, Params: map[string]any{
			"content_type":     "social_media",
			"auto_schedule":    true,
			"target_platforms": []string{PlatformLinkedIn, PlatformTwitter},
		}}},
	},
	{
		Key:         "daily_content",
		Name:        "Daily Content",
		Description: "Generate one piece of content every morning",
		Schedule:    "0 9 * * *",
		Actions: []Action{
			{Type: ActionGenerateContent, Params: map[string]any{"content_type": "blog_post"}},
			{Type: ActionNotify, Params: map[string]any{"message": "daily content generated"}},
		},
	},
}

// EmitFunc publishes a module event.
type EmitFunc func(ctx context.Context, event string, data map[string]any)

// AutomationService runs workflows on cron schedules or on demand.
type AutomationService struct {
	cron     *cron.Cron
	loc      *time.Location
	emit     EmitFunc
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	workflows  map[string]*Workflow
	executions map[string][]Execution
}

func NewAutomationService(c *cron.Cron, loc *time.Location, emit EmitFunc, logger *slog.Logger) *AutomationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &AutomationService{
		cron:       c,
		loc:        loc,
		emit:       emit,
		validate:   validator.New(),
		logger:     logger.With("service", AutomationServiceName),
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		workflows:  make(map[string]*Workflow),
		executions: make(map[string][]Execution),
	}
}

func Templates() []WorkflowTemplate { return workflowTemplates }

func (s *AutomationService) Create(req WorkflowRequest) (Workflow, error) {
	return s.create(req, "")
}

// FromTemplate instantiates a preset; params fill in the keyword and
// anything else the actions need.
func (s *AutomationService) FromTemplate(key string, params map[string]any) (Workflow, error) {
	for _, t := range workflowTemplates {
		if t.Key == key {
			actions := make([]Action, len(t.Actions))
			for i, a := range t.Actions {
				actions[i] = Action{Type: a.Type, DelaySeconds: a.DelaySeconds, Params: maps.Clone(a.Params)}
			}
			return s.create(WorkflowRequest{Name: t.Name, Schedule: t.Schedule, Params: params, Actions: actions}, key)
		}
	}
	return Workflow{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, key)
}

func (s *AutomationService) create(req WorkflowRequest, template string) (Workflow, error) {
	if err := s.validate.Struct(req); err != nil {
		return Workflow{}, fmt.Errorf("%w: %v", ErrInvalidWorkflow, err)
	}
	w := &Workflow{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Template:  template,
		Schedule:  req.Schedule,
		Params:    maps.Clone(req.Params),
		Actions:   req.Actions,
		Active:    true,
		CreatedAt: s.now(),
	}
	for _, a := range req.Actions {
		if a.Type == ActionGenerateContent && param(w, a, "primary_keyword") == nil {
			return Workflow{}, fmt.Errorf("%w: %s needs a primary_keyword param", ErrInvalidWorkflow, ActionGenerateContent)
		}
	}
	if req.Schedule != "" {
		sched, err := cron.ParseStandard(req.Schedule)
		if err != nil {
			return Workflow{}, fmt.Errorf("%w: schedule %q: %v", ErrInvalidWorkflow, req.Schedule, err)
		}
		w.sched = sched
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[w.ID] = w
	s.activateLocked(w)
	s.logger.Info("workflow created", "workflow_id", w.ID, "name", w.Name, "schedule", w.Schedule)
	return w.clone(), nil
}

func param(w *Workflow, a Action, key string) any {
	if v, ok := a.Params[key]; ok {
		return v
	}
	return w.Params[key]
}

func (s *AutomationService) activateLocked(w *Workflow) {
	w.Active = true
	if w.sched == nil {
		return
	}
	id := w.ID
	w.entry = s.cron.Schedule(w.sched, cron.FuncJob(func() { s.Trigger(id, TriggerSchedule) }))
	next := w.sched.Next(s.now().In(s.loc))
	w.NextRun = &next
}

func (s *AutomationService) Get(id string) (Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return Workflow{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return w.clone(), nil
}

func (s *AutomationService) List() []Workflow {
	s.mu.Lock()
	out := make([]Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, w.clone())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *AutomationService) modify(id string, fn func(*Workflow)) (Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return Workflow{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	fn(w)
	return w.clone(), nil
}

// Pause removes the workflow's cron entry; manual runs still work.
func (s *AutomationService) Pause(id string) (Workflow, error) {
	return s.modify(id, func(w *Workflow) {
		if !w.Active {
			return
		}
		w.Active = false
		if w.entry != 0 {
			s.cron.Remove(w.entry)
			w.entry = 0
		}
		w.NextRun = nil
	})
}

func (s *AutomationService) Resume(id string) (Workflow, error) {
	return s.modify(id, func(w *Workflow) {
		if !w.Active {
			s.activateLocked(w)
		}
	})
}

func (s *AutomationService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	if w.entry != 0 {
		s.cron.Remove(w.entry)
	}
	delete(s.workflows, id)
	delete(s.executions, id)
	return nil
}

// Trigger runs a workflow in the background until Stop.
func (s *AutomationService) Trigger(id, trigger string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.Run(s.ctx, id, trigger); err != nil {
			s.logger.Error("workflow run failed", "workflow_id", id, "trigger", trigger, "error", err)
		}
	}()
}

// Run executes the workflow's actions in order, waiting out each action's
// delay. A cancelled context stops the run at the next delay.
func (s *AutomationService) Run(ctx context.Context, id, trigger string) (Execution, error) {
	w, err := s.Get(id)
	if err != nil {
		return Execution{}, err
	}
	exec := Execution{
		ID:         uuid.NewString(),
		WorkflowID: id,
		Trigger:    trigger,
		Status:     StatusCompleted,
		StartedAt:  s.now(),
	}
	for _, a := range w.Actions {
		step := Step{Action: a.Type, Status: StatusCompleted}
		if err := s.wait(ctx, a.DelaySeconds); err != nil {
			step.Status, step.Error = StatusFailed, err.Error()
			exec.Steps = append(exec.Steps, step)
			exec.Status = StatusFailed
			break
		}
		if err := s.perform(ctx, &w, a); err != nil {
			step.Status, step.Error = StatusFailed, err.Error()
			exec.Status = StatusFailed
		}
		exec.Steps = append(exec.Steps, step)
	}
	exec.FinishedAt = s.now()

	s.mu.Lock()
	if live, ok := s.workflows[id]; ok {
		live.Runs++
		started := exec.StartedAt
		live.LastRun = &started
		if live.Active && live.sched != nil {
			next := live.sched.Next(exec.FinishedAt.In(s.loc))
			live.NextRun = &next
		}
		hist := append(s.executions[id], exec)
		if over := len(hist) - maxExecutions; over > 0 {
			hist = append([]Execution(nil), hist[over:]...)
		}
		s.executions[id] = hist
	}
	s.mu.Unlock()

	s.logger.Info("workflow executed", "workflow_id", id, "trigger", trigger, "status", exec.Status)
	return exec, nil
}

func (s *AutomationService) wait(ctx context.Context, seconds int) error {
	if seconds <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(seconds) * time.Second)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *AutomationService) perform(ctx context.Context, w *Workflow, a Action) error {
	switch a.Type {
	case ActionGenerateContent:
		data := maps.Clone(w.Params)
		if data == nil {
			data = map[string]any{}
		}
		maps.Copy(data, a.Params)
		data["workflow_id"] = w.ID
		s.emit(ctx, EventContentGenerationRequested, data)
		return nil
	case ActionNotify:
		s.logger.Info("workflow notification", "workflow_id", w.ID, "message", param(w, a, "message"))
		return nil
	default:
		return fmt.Errorf("unknown action %q", a.Type)
	}
}

// History returns a workflow's executions, newest first.
func (s *AutomationService) History(id string) ([]Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	hist := s.executions[id]
	out := make([]Execution, 0, len(hist))
	for i := len(hist) - 1; i >= 0; i-- {
		out = append(out, hist[i])
	}
	return out, nil
}

func (s *AutomationService) Counts() (total, active int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workflows {
		total++
		if w.Active {
			active++
		}
	}
	return total, active
}

// Stop cancels background runs and waits for them.
func (s *AutomationService) Stop() {
	s.cancel()
	s.wg.Wait()
}
