package webscraping

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
)

var ErrNoPages = errors.New("no competitor page could be scraped")

const (
	maxAnalyses       = 20
	maxCommonHeadings = 10
	minRecommended    = 300
)

// Analysis summarizes the pages ranking for a keyword.
type Analysis struct {
	Keyword           string    `json:"keyword"`
	Pages             []Page    `json:"pages"`
	Analyzed          int       `json:"analyzed"`
	Failed            int       `json:"failed"`
	AverageWordCount  int       `json:"average_word_count"`
	AverageHeadings   float64   `json:"average_headings"`
	AverageSEOScore   int       `json:"average_seo_score"`
	KeywordInTitle    int       `json:"keyword_in_title"`
	KeywordMentions   float64   `json:"average_keyword_mentions"`
	MissingMeta       int       `json:"missing_meta_description"`
	CommonHeadings    []string  `json:"common_headings"`
	RecommendedLength int       `json:"recommended_length"`
	Opportunities     []string  `json:"opportunities"`
	AnalyzedAt        time.Time `json:"analyzed_at"`
}

// CompetitorService compares competitor pages for a keyword.
type CompetitorService struct {
	scraper *ScrapingService
	logger  *slog.Logger

	mu     sync.Mutex
	recent []Analysis
}

func NewCompetitorService(scraper *ScrapingService, logger *slog.Logger) *CompetitorService {
	return &CompetitorService{scraper: scraper, logger: logger.With("service", CompetitorServiceName)}
}

func (s *CompetitorService) Analyze(ctx context.Context, keyword string, urls []string) (Analysis, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return Analysis{}, fmt.Errorf("%w: keyword is required", ErrInvalidRequest)
	}
	pages, err := s.scraper.ScrapeMany(ctx, urls)
	if err != nil {
		return Analysis{}, err
	}
	a := summarize(keyword, pages)
	a.AnalyzedAt = time.Now().UTC()
	if a.Analyzed == 0 {
		return a, ErrNoPages
	}

	s.mu.Lock()
	s.recent = append(s.recent, a)
	if over := len(s.recent) - maxAnalyses; over > 0 {
		s.recent = append([]Analysis(nil), s.recent[over:]...)
	}
	s.mu.Unlock()
	s.logger.Info("competitor analysis completed", "keyword", keyword, "analyzed", a.Analyzed, "failed", a.Failed)
	return a, nil
}

// Recent returns stored analyses, newest first.
func (s *CompetitorService) Recent() []Analysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Analysis, 0, len(s.recent))
	for i := len(s.recent) - 1; i >= 0; i-- {
		out = append(out, s.recent[i])
	}
	return out
}

func summarize(keyword string, pages []Page) Analysis {
	a := Analysis{Keyword: keyword, Pages: pages, CommonHeadings: []string{}, Opportunities: []string{}}
	kw := strings.ToLower(keyword)
	var words, headings, seo, mentions int
	seen := map[string]int{}
	for _, p := range pages {
		if p.Status != StatusSuccess {
			a.Failed++
			continue
		}
		a.Analyzed++
		words += p.WordCount
		headings += len(p.Headings)
		seo += p.SEO.Score
		mentions += p.Mentions(kw)
		if strings.Contains(strings.ToLower(p.Title), kw) {
			a.KeywordInTitle++
		}
		if p.MetaDescription == "" {
			a.MissingMeta++
		}
		onPage := map[string]bool{}
		for _, h := range p.Headings {
			if h.Level == 2 || h.Level == 3 {
				onPage[strings.ToLower(h.Text)] = true
			}
		}
		for h := range onPage {
			seen[h]++
		}
	}
	if a.Analyzed == 0 {
		return a
	}
	n := float64(a.Analyzed)
	a.AverageWordCount = int(math.Round(float64(words) / n))
	a.AverageHeadings = math.Round(float64(headings)/n*10) / 10
	a.AverageSEOScore = int(math.Round(float64(seo) / n))
	a.KeywordMentions = math.Round(float64(mentions)/n*10) / 10
	a.RecommendedLength = max(minRecommended, int(math.Ceil(float64(a.AverageWordCount)*1.2/100))*100)

	for h, c := range seen {
		if c >= 2 {
			a.CommonHeadings = append(a.CommonHeadings, h)
		}
	}
	sort.Slice(a.CommonHeadings, func(i, j int) bool {
		hi, hj := a.CommonHeadings[i], a.CommonHeadings[j]
		if seen[hi] != seen[hj] {
			return seen[hi] > seen[hj]
		}
		return hi < hj
	})
	if len(a.CommonHeadings) > maxCommonHeadings {
		a.CommonHeadings = a.CommonHeadings[:maxCommonHeadings]
	}
	a.Opportunities = opportunities(a)
	return a
}

func opportunities(a Analysis) []string {
	out := []string{}
	if a.KeywordInTitle < a.Analyzed {
		out = append(out, fmt.Sprintf("Only %d of %d competitors use %q in the title; lead with it.", a.KeywordInTitle, a.Analyzed, a.Keyword))
	}
	if a.MissingMeta > 0 {
		out = append(out, fmt.Sprintf("%d competitors have no meta description.", a.MissingMeta))
	}
	if a.AverageSEOScore < 70 {
		out = append(out, fmt.Sprintf("Competitor on-page SEO averages %d/100; a well-structured page can outrank it.", a.AverageSEOScore))
	}
	if a.AverageHeadings < 5 {
		out = append(out, "Competitors use shallow structure; cover the topic with more H2 and H3 sections.")
	}
	out = append(out, fmt.Sprintf("Aim for about %d words to match competitor depth.", a.RecommendedLength))
	return out
}
