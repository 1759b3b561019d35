package keywordresearch

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var ErrInvalidRequest = errors.New("invalid research request")

const (
	IntentInformational = "informational"
	IntentCommercial    = "commercial"
	IntentTransactional = "transactional"

	defaultRelated = 10
	maxHistory     = 100
)

type Keyword struct {
	Term         string  `json:"keyword"`
	SearchVolume int     `json:"search_volume"`
	Difficulty   int     `json:"difficulty"`
	CPC          float64 `json:"cpc"`
	Intent       string  `json:"intent"`
	Trend        string  `json:"trend"`
}

type Request struct {
	Keyword             string `json:"keyword" validate:"required,max=200"`
	Limit               int    `json:"limit" validate:"min=0,max=50"`
	Location            string `json:"location"`
	ContentType         string `json:"content_type"`
	TargetAudience      string `json:"target_audience"`
	AutoGenerateContent bool   `json:"auto_generate_content"`
	// Passed through to generated content.
	AutoSchedule    bool     `json:"auto_schedule"`
	TargetPlatforms []string `json:"target_platforms"`
	RequestID       string   `json:"request_id"`
}

type Result struct {
	RequestID    string    `json:"request_id"`
	Primary      Keyword   `json:"primary"`
	Related      []Keyword `json:"related"`
	Questions    []string  `json:"questions"`
	Location     string    `json:"location"`
	Source       string    `json:"source"`
	ResearchedAt time.Time `json:"researched_at"`

	request Request
}

// EventData is the research_data payload of keyword_research_completed.
func (r *Result) EventData() map[string]any {
	related := make([]string, len(r.Related))
	for i, k := range r.Related {
		related[i] = k.Term
	}
	platforms := r.request.TargetPlatforms
	if platforms == nil {
		platforms = []string{}
	}
	return map[string]any{
		"primary_keyword":       r.Primary.Term,
		"related_keywords":      related,
		"search_volume":         r.Primary.SearchVolume,
		"difficulty":            r.Primary.Difficulty,
		"intent":                r.Primary.Intent,
		"content_type":          r.request.ContentType,
		"target_audience":       r.request.TargetAudience,
		"auto_generate_content": r.request.AutoGenerateContent,
		"auto_schedule":         r.request.AutoSchedule,
		"target_platforms":      platforms,
	}
}

// Service estimates keyword metrics. Figures are derived from a hash of the
// term, so the same keyword always reports the same numbers.
type Service struct {
	source   string
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	history []*Result
}

func NewService(source string, logger *slog.Logger) *Service {
	return &Service{
		source:   source,
		validate: validator.New(),
		logger:   logger.With("service", ServiceName),
		now:      time.Now,
	}
}

func (s *Service) Source() string { return s.source }

var modifiers = []string{
	"best %s",
	"%s guide",
	"how to use %s",
	"%s tips",
	"%s for beginners",
	"%s tools",
	"%s examples",
	"what is %s",
	"%s checklist",
	"%s strategy",
	"%s vs alternatives",
	"cheap %s",
	"%s pricing",
	"%s trends",
	"%s case study",
}

var (
	commercialWords    = []string{"best", "top", "review", "vs", "alternatives", "compare"}
	transactionalWords = []string{"buy", "price", "pricing", "cheap", "deal", "discount"}
	trends             = []string{"rising", "stable", "declining"}
)

func hashOf(term string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(term)))
	return h.Sum32()
}

func intentOf(term string) string {
	for _, w := range strings.Fields(strings.ToLower(term)) {
		for _, t := range transactionalWords {
			if w == t {
				return IntentTransactional
			}
		}
		for _, c := range commercialWords {
			if w == c {
				return IntentCommercial
			}
		}
	}
	return IntentInformational
}

// Metrics returns the estimate for a single term.
func Metrics(term string) Keyword {
	h := hashOf(term)
	// Longer phrases search less and rank easier.
	words := float64(len(strings.Fields(term)))
	return Keyword{
		Term:         term,
		SearchVolume: int(float64(100+h%9900) / math.Max(1, words/2)),
		Difficulty:   int(h>>8%90) + 5,
		CPC:          float64(h>>16%500) / 100,
		Intent:       intentOf(term),
		Trend:        trends[h%uint32(len(trends))],
	}
}

// Suggestions returns related phrasings for keyword, sorted by estimated
// search volume.
func Suggestions(keyword string, limit int) []Keyword {
	keyword = strings.TrimSpace(strings.ToLower(keyword))
	if limit <= 0 || limit > len(modifiers) {
		limit = len(modifiers)
	}
	out := make([]Keyword, 0, len(modifiers))
	for _, m := range modifiers {
		out = append(out, Metrics(fmt.Sprintf(m, keyword)))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SearchVolume != out[j].SearchVolume {
			return out[i].SearchVolume > out[j].SearchVolume
		}
		return out[i].Term < out[j].Term
	})
	return out[:limit]
}

func questions(keyword string) []string {
	return []string{
		fmt.Sprintf("What is %s?", keyword),
		fmt.Sprintf("How does %s work?", keyword),
		fmt.Sprintf("Why is %s important?", keyword),
		fmt.Sprintf("How do I get started with %s?", keyword),
	}
}

func (s *Service) Research(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req.Keyword = strings.TrimSpace(req.Keyword)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Limit == 0 {
		req.Limit = defaultRelated
	}
	if req.Location == "" {
		req.Location = "United States"
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	res := &Result{
		RequestID:    req.RequestID,
		Primary:      Metrics(req.Keyword),
		Related:      Suggestions(req.Keyword, req.Limit),
		Questions:    questions(req.Keyword),
		Location:     req.Location,
		Source:       s.source,
		ResearchedAt: s.now().UTC(),
		request:      req,
	}

	s.mu.Lock()
	s.history = append(s.history, res)
	if over := len(s.history) - maxHistory; over > 0 {
		s.history = append([]*Result(nil), s.history[over:]...)
	}
	s.mu.Unlock()

	s.logger.Info("keyword researched", "keyword", req.Keyword, "related", len(res.Related), "request_id", req.RequestID)
	return res, nil
}

// History returns recent results, newest first.
func (s *Service) History(limit int) []*Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*Result{}
	for i := len(s.history) - 1; i >= 0; i-- {
		out = append(out, s.history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Trending ranks researched primary keywords by volume, "rising" first.
func (s *Service) Trending(limit int) []Keyword {
	s.mu.Lock()
	seen := map[string]Keyword{}
	for _, r := range s.history {
		seen[r.Primary.Term] = r.Primary
	}
	s.mu.Unlock()

	out := make([]Keyword, 0, len(seen))
	for _, k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Trend == "rising", out[j].Trend == "rising"
		if ri != rj {
			return ri
		}
		if out[i].SearchVolume != out[j].SearchVolume {
			return out[i].SearchVolume > out[j].SearchVolume
		}
		return out[i].Term < out[j].Term
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
