package contentgeneration

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/skekre98/contentagent/config"
)

// Tier selects a model by cost: research is cheapest, final the most
// capable.
type Tier string

const (
	TierResearch Tier = "research"
	TierDraft    Tier = "draft"
	TierFinal    Tier = "final"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"

	mockModel     = "mock-writer"
	cheapestModel = "gpt-4o-mini"
)

type tierConfig struct {
	Primary     string
	Fallback    string
	MaxTokens   int
	Temperature float64
}

var tiers = map[Tier]tierConfig{
	TierResearch: {Primary: "gpt-4o-mini", Fallback: "claude-3-haiku", MaxTokens: 2000, Temperature: 0.7},
	TierDraft:    {Primary: "claude-3-haiku", Fallback: "gpt-4o-mini", MaxTokens: 4000, Temperature: 0.8},
	TierFinal:    {Primary: "gpt-4o", Fallback: "claude-3-sonnet", MaxTokens: 4000, Temperature: 0.7},
}

// USD per 1k tokens.
var modelCosts = map[string]struct{ Input, Output float64 }{
	"gpt-4o-mini":     {Input: 0.00015, Output: 0.0006},
	"gpt-4o":          {Input: 0.005, Output: 0.015},
	"claude-3-haiku":  {Input: 0.00025, Output: 0.00125},
	"claude-3-sonnet": {Input: 0.003, Output: 0.015},
}

func providerOf(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-"):
		return ProviderOpenAI
	case strings.HasPrefix(model, "claude-"):
		return ProviderAnthropic
	default:
		return ProviderMock
	}
}

// Cost prices a completion; unknown models are free.
func Cost(model string, inputTokens, outputTokens int) float64 {
	c, ok := modelCosts[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000*c.Input + float64(outputTokens)/1000*c.Output
}

// EstimateTokens approximates token count from words.
func EstimateTokens(text string) int {
	return len(strings.Fields(text)) * 13 / 10
}

// CompletionRequest is what a Generator receives.
type CompletionRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Generator produces text for a prompt. The default restates the prompt's
// topic; remote providers plug in here.
type Generator func(ctx context.Context, req CompletionRequest) (string, error)

type Completion struct {
	Text         string  `json:"text"`
	Model        string  `json:"model"`
	Provider     string  `json:"provider"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// LLMService picks a model per tier from the configured providers and
// tracks usage.
type LLMService struct {
	available map[string]bool
	generate  Generator
	logger    *slog.Logger

	mu    sync.Mutex
	calls int
	spent float64
}

func NewLLMService(p config.ProvidersConfig, logger *slog.Logger) *LLMService {
	s := &LLMService{
		available: map[string]bool{
			ProviderOpenAI:    p.OpenAIKey != "",
			ProviderAnthropic: p.AnthropicKey != "",
		},
		generate: MockGenerator,
		logger:   logger.With("service", "llm_service"),
	}
	if s.MockMode() {
		s.logger.Info("no LLM provider configured, using mock generator")
	}
	return s
}

// WithGenerator replaces the text generator.
func (s *LLMService) WithGenerator(g Generator) *LLMService {
	s.generate = g
	return s
}

// Providers lists configured providers, sorted.
func (s *LLMService) Providers() []string {
	var out []string
	for p, ok := range s.available {
		if ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (s *LLMService) MockMode() bool { return len(s.Providers()) == 0 }

// SelectModel returns the tier's primary model when its provider is
// configured, else the fallback, else the cheapest model, else the mock.
func (s *LLMService) SelectModel(t Tier) string {
	if s.MockMode() {
		return mockModel
	}
	cfg, ok := tiers[t]
	if !ok {
		cfg = tiers[TierDraft]
	}
	for _, m := range []string{cfg.Primary, cfg.Fallback, cheapestModel} {
		if s.available[providerOf(m)] {
			return m
		}
	}
	return mockModel
}

func (s *LLMService) Generate(ctx context.Context, prompt string, t Tier) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}
	model := s.SelectModel(t)
	cfg, ok := tiers[t]
	if !ok {
		cfg = tiers[TierDraft]
	}
	text, err := s.generate(ctx, CompletionRequest{
		Model:       model,
		Prompt:      prompt,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("generate with %s: %w", model, err)
	}
	in, out := EstimateTokens(prompt), EstimateTokens(text)
	c := Completion{
		Text:         text,
		Model:        model,
		Provider:     providerOf(model),
		InputTokens:  in,
		OutputTokens: out,
		Cost:         Cost(model, in, out),
	}

	s.mu.Lock()
	s.calls++
	s.spent += c.Cost
	s.mu.Unlock()
	s.logger.Debug("completion", "model", model, "tier", t, "tokens", in+out, "cost", c.Cost)
	return c, nil
}

// Usage reports call count and total spend.
func (s *LLMService) Usage() (calls int, cost float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.spent
}

var mockSentences = []string{
	"%s matters because readers look for it every day.",
	"A clear approach to %s starts with the fundamentals.",
	"Teams that invest in %s see measurable results over time.",
	"The most common mistake with %s is skipping the basics.",
	"Start small with %s and build on what works.",
	"Good %s content answers the question before it is asked.",
}

// MockGenerator writes deterministic sentences about the prompt's
// "Topic:" line until the "Words:" budget (default 50) is met.
func MockGenerator(_ context.Context, req CompletionRequest) (string, error) {
	topic, words := "this topic", 50
	for _, line := range strings.Split(req.Prompt, "\n") {
		if v, ok := strings.CutPrefix(line, "Topic: "); ok && strings.TrimSpace(v) != "" {
			topic = strings.TrimSpace(v)
		}
		if v, ok := strings.CutPrefix(line, "Words: "); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				words = n
			}
		}
	}
	var b strings.Builder
	count := 0
	for i := 0; count < words; i++ {
		s := fmt.Sprintf(mockSentences[i%len(mockSentences)], topic)
		if i == 0 {
			s = strings.ToUpper(s[:1]) + s[1:]
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
		count += len(strings.Fields(s))
	}
	return b.String(), nil
}
