package contentgeneration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/skekre98/contentagent/config"
	"github.com/skekre98/contentagent/metrics"
)

var (
	ErrInvalidRequest = errors.New("invalid content request")
	ErrNotFound       = errors.New("content not found")
)

// Generation phases, in order.
var Phases = []string{"research", "outline", "content", "seo", "review"}

const (
	QualityStandard = "standard"
	QualityPremium  = "premium"

	wordsPerMinute  = 200
	minSectionWords = 20
)

type Request struct {
	PrimaryKeyword     string         `json:"primary_keyword" validate:"required"`
	RelatedKeywords    []string       `json:"related_keywords"`
	ContentType        string         `json:"content_type"`
	Template           string         `json:"template"`
	TargetLength       int            `json:"target_length" validate:"min=100,max=5000"`
	Tone               string         `json:"tone"`
	TargetAudience     string         `json:"target_audience"`
	QualityLevel       string         `json:"quality_level" validate:"oneof=standard premium"`
	CompanyInfo        map[string]any `json:"company_info"`
	CustomInstructions string         `json:"custom_instructions"`

	// ResearchFirst hands the keyword to keyword research, which generates
	// once the research completes.
	ResearchFirst bool `json:"research_first"`

	// Passed through to the content_generated event.
	AutoSchedule    bool     `json:"auto_schedule"`
	TargetPlatforms []string `json:"target_platforms"`
	RequestID       string   `json:"request_id"`
}

type Content struct {
	ID              string    `json:"content_id"`
	Title           string    `json:"title"`
	Body            string    `json:"content"`
	MetaDescription string    `json:"meta_description"`
	SEOTitle        string    `json:"seo_title"`
	PrimaryKeyword  string    `json:"primary_keyword"`
	RelatedKeywords []string  `json:"related_keywords,omitempty"`
	ContentType     string    `json:"content_type"`
	Tone            string    `json:"tone"`
	TargetAudience  string    `json:"target_audience"`
	Outline         []string  `json:"outline"`
	WordCount       int       `json:"word_count"`
	ReadingTime     int       `json:"reading_time"`
	SEOScore        float64   `json:"seo_score"`
	Readability     float64   `json:"readability"`
	KeywordDensity  float64   `json:"keyword_density"`
	ModelsUsed      []string  `json:"models_used"`
	TotalCost       float64   `json:"total_cost"`
	PhasesCompleted []string  `json:"phases_completed"`
	GenerationTime  float64   `json:"generation_time"`
	GeneratedAt     time.Time `json:"generated_at"`
}

type Stats struct {
	Total     int            `json:"total"`
	ByType    map[string]int `json:"by_type"`
	TotalCost float64        `json:"total_cost"`
	LLMCalls  int            `json:"llm_calls"`
}

// ContentService runs the generation pipeline and keeps generated content
// in memory.
type ContentService struct {
	llm       *LLMService
	templates *TemplateService
	metrics   metrics.Registry
	cfg       config.ContentConfig
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.RWMutex
	items map[string]*Content
	order []string
}

func NewContentService(llm *LLMService, templates *TemplateService, reg metrics.Registry, cfg config.ContentConfig, logger *slog.Logger) *ContentService {
	return &ContentService{
		llm:       llm,
		templates: templates,
		metrics:   reg,
		cfg:       cfg,
		validate:  validator.New(),
		logger:    logger.With("service", ContentServiceName),
		now:       time.Now,
		items:     make(map[string]*Content),
	}
}

func (s *ContentService) applyDefaults(req *Request) {
	if req.ContentType == "" {
		req.ContentType = "blog_post"
	}
	if req.Template == "" {
		req.Template = req.ContentType
	}
	if req.TargetLength == 0 {
		req.TargetLength = s.cfg.DefaultLength
	}
	if req.Tone == "" {
		req.Tone = s.cfg.DefaultTone
	}
	if req.TargetAudience == "" {
		req.TargetAudience = "general audience"
	}
	if req.QualityLevel == "" {
		req.QualityLevel = QualityStandard
	}
}

// Validate applies defaults and checks the request.
func (s *ContentService) Validate(req *Request) (Template, error) {
	s.applyDefaults(req)
	if err := s.validate.Struct(req); err != nil {
		return Template{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.TargetLength > s.cfg.MaxLength {
		return Template{}, fmt.Errorf("%w: target_length %d exceeds maximum %d", ErrInvalidRequest, req.TargetLength, s.cfg.MaxLength)
	}
	tmpl, ok := s.templates.Get(req.Template)
	if !ok {
		return Template{}, fmt.Errorf("%w: %w %q", ErrInvalidRequest, ErrUnknownTemplate, req.Template)
	}
	return tmpl, nil
}

type run struct {
	models map[string]bool
	cost   float64
	phases []string
}

func (r *run) add(c Completion) {
	r.models[c.Model] = true
	r.cost += c.Cost
}

// Generate runs research, outline, content, seo and review, then stores
// the result.
func (s *ContentService) Generate(ctx context.Context, req Request) (*Content, error) {
	tmpl, err := s.Validate(&req)
	if err != nil {
		return nil, err
	}
	start := s.now()
	r := &run{models: map[string]bool{}}

	sections := make([]string, len(tmpl.Structure))
	for i, sec := range tmpl.Structure {
		sections[i] = sec.Name
	}
	data := PromptData{
		Keyword:      req.PrimaryKeyword,
		Related:      req.RelatedKeywords,
		TemplateName: tmpl.Name,
		Sections:     sections,
		Tone:         req.Tone,
		Audience:     req.TargetAudience,
		Instructions: req.CustomInstructions,
		Company:      companyName(req.CompanyInfo),
	}

	phase := func(name, prompt string, tier Tier) (Completion, error) {
		p, err := s.templates.Prompt(prompt, data)
		if err != nil {
			return Completion{}, err
		}
		c, err := s.llm.Generate(ctx, p, tier)
		if err != nil {
			return Completion{}, fmt.Errorf("%s phase: %w", name, err)
		}
		r.add(c)
		return c, nil
	}

	if _, err := phase("research", PromptResearch, TierResearch); err != nil {
		return nil, err
	}
	r.phases = append(r.phases, "research")

	if _, err := phase("outline", PromptOutline, TierResearch); err != nil {
		return nil, err
	}
	r.phases = append(r.phases, "outline")

	title := titleFor(req.PrimaryKeyword, tmpl.Key)
	var body strings.Builder
	fmt.Fprintf(&body, "# %s\n\n", title)
	var intro string
	scale := float64(req.TargetLength) / float64(tmpl.WordCount())
	for _, sec := range tmpl.Structure {
		data.Section = sec
		data.Words = max(minSectionWords, int(math.Round(float64(sec.WordCount)*scale)))
		c, err := phase("content", PromptSection, TierDraft)
		if err != nil {
			return nil, err
		}
		if intro == "" {
			intro = c.Text
		}
		fmt.Fprintf(&body, "## %s\n\n%s\n\n", headingFor(sec.Name), c.Text)
	}
	r.phases = append(r.phases, "content")

	if _, err := phase("seo", PromptSEO, TierDraft); err != nil {
		return nil, err
	}
	r.phases = append(r.phases, "seo")

	reviewTier := TierDraft
	if req.QualityLevel == QualityPremium {
		reviewTier = TierFinal
	}
	if _, err := phase("review", PromptReview, reviewTier); err != nil {
		return nil, err
	}
	r.phases = append(r.phases, "review")

	text := strings.TrimSpace(body.String())
	words := countWords(text)
	density := KeywordDensity(text, req.PrimaryKeyword)
	readability := Readability(text)

	models := make([]string, 0, len(r.models))
	for m := range r.models {
		models = append(models, m)
	}
	sort.Strings(models)

	now := s.now()
	c := &Content{
		ID:              uuid.NewString(),
		Title:           title,
		Body:            text,
		MetaDescription: truncate(intro, 160),
		SEOTitle:        truncate(title, 60),
		PrimaryKeyword:  req.PrimaryKeyword,
		RelatedKeywords: req.RelatedKeywords,
		ContentType:     req.ContentType,
		Tone:            req.Tone,
		TargetAudience:  req.TargetAudience,
		Outline:         sections,
		WordCount:       words,
		ReadingTime:     max(1, int(math.Ceil(float64(words)/wordsPerMinute))),
		SEOScore:        SEOScore(text, density, readability),
		Readability:     readability,
		KeywordDensity:  density,
		ModelsUsed:      models,
		TotalCost:       r.cost,
		PhasesCompleted: r.phases,
		GenerationTime:  now.Sub(start).Seconds(),
		GeneratedAt:     now,
	}

	s.mu.Lock()
	s.items[c.ID] = c
	s.order = append(s.order, c.ID)
	s.mu.Unlock()

	s.metrics.IncContentGenerated(c.ContentType)
	s.logger.Info("content generated", "content_id", c.ID, "content_type", c.ContentType, "words", words, "cost", c.TotalCost)
	return c, nil
}

func (s *ContentService) Get(id string) (*Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

// List returns up to limit items, newest first, optionally by content type.
// A non-positive limit returns everything.
func (s *ContentService) List(limit int, contentType string) []*Content {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Content{}
	for i := len(s.order) - 1; i >= 0; i-- {
		c := s.items[s.order[i]]
		if contentType != "" && c.ContentType != contentType {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (s *ContentService) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *ContentService) Stats() Stats {
	s.mu.RLock()
	st := Stats{Total: len(s.items), ByType: map[string]int{}}
	for _, c := range s.items {
		st.ByType[c.ContentType]++
		st.TotalCost += c.TotalCost
	}
	s.mu.RUnlock()
	st.LLMCalls, _ = s.llm.Usage()
	return st
}

var titleFormats = map[string]string{
	"blog_post":           "%s: A Practical Guide",
	"social_media":        "Why %s Matters",
	"website_copy":        "%s Made Simple",
	"product_description": "%s",
	"email_newsletter":    "This Week in %s",
}

func titleFor(keyword, key string) string {
	f, ok := titleFormats[key]
	if !ok {
		f = "%s"
	}
	return fmt.Sprintf(f, titleCase(keyword))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func headingFor(section string) string {
	return titleCase(strings.ReplaceAll(section, "_", " "))
}

func companyName(info map[string]any) string {
	if name, ok := info["name"].(string); ok {
		return name
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := strings.LastIndexByte(s[:n-3], ' ')
	if cut <= 0 {
		cut = n - 3
	}
	return strings.TrimSpace(s[:cut]) + "..."
}

// prose drops markdown heading lines.
func prose(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		b.WriteString(line)
		b.WriteByte(' ')
	}
	return b.String()
}

func countWords(text string) int { return len(strings.Fields(prose(text))) }

// KeywordDensity is keyword phrase occurrences per hundred words of prose.
func KeywordDensity(text, keyword string) float64 {
	body := strings.ToLower(prose(text))
	words := len(strings.Fields(body))
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if words == 0 || keyword == "" {
		return 0
	}
	n := strings.Count(body, keyword)
	return math.Round(float64(n)/float64(words)*10000) / 100
}

// Readability scores 0-100 from average sentence length; shorter reads
// easier.
func Readability(text string) float64 {
	body := prose(text)
	words := len(strings.Fields(body))
	sentences := strings.Count(body, ".") + strings.Count(body, "!") + strings.Count(body, "?")
	if words == 0 || sentences == 0 {
		return 0
	}
	avg := float64(words) / float64(sentences)
	return math.Max(0, math.Min(100, math.Round(100-2*avg)))
}

// SEOScore combines keyword density (up to 30), readability (up to 30)
// and heading structure (up to 40).
func SEOScore(text string, density, readability float64) float64 {
	score := 0.0
	switch {
	case density >= 1 && density <= 3:
		score += 30
	case density > 0:
		score += 15
	}
	score += readability * 0.3
	headings := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "## ") {
			headings++
		}
	}
	score += math.Min(40, float64(headings)*10)
	return math.Round(score)
}
