package webscraping

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/web"
)

func (m *Module) RegisterRoutes(r core.Router) {
	g := r.Group("/api/scraping")
	g.POST("/scrape", m.handleScrape)
	g.POST("/scrape-batch", m.handleScrapeBatch)
	g.POST("/sitemap", m.handleSitemap)
	g.POST("/competitor-analysis", m.handleCompetitorAnalysis)
	g.GET("/history", m.handleHistory)
	g.GET("/stats", m.handleStats)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidURL), errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrFetch), errors.Is(err, ErrNoPages):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (m *Module) handleScrape(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		web.Error(c, http.StatusBadRequest, err)
		return
	}
	p, err := m.scraper.Scrape(c.Request.Context(), req.URL)
	if p.URL != "" {
		m.announce(c.Request.Context(), p)
	}
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (m *Module) handleScrapeBatch(c *gin.Context) {
	var req struct {
		URLs []string `json:"urls" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		web.Error(c, http.StatusBadRequest, err)
		return
	}
	pages, err := m.scraper.ScrapeMany(c.Request.Context(), req.URLs)
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	failed := 0
	for _, p := range pages {
		m.announce(c.Request.Context(), p)
		if p.Status != StatusSuccess {
			failed++
		}
	}
	c.JSON(http.StatusOK, gin.H{"pages": pages, "count": len(pages), "failed": failed})
}

func (m *Module) handleSitemap(c *gin.Context) {
	var req struct {
		URL     string `json:"url" binding:"required"`
		MaxURLs int    `json:"max_urls" binding:"min=0,max=1000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		web.Error(c, http.StatusBadRequest, err)
		return
	}
	urls, err := m.scraper.Sitemap(c.Request.Context(), req.URL, req.MaxURLs)
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"urls": urls, "count": len(urls)})
}

func (m *Module) handleCompetitorAnalysis(c *gin.Context) {
	var req struct {
		Keyword string   `json:"keyword" binding:"required"`
		URLs    []string `json:"urls" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		web.Error(c, http.StatusBadRequest, err)
		return
	}
	a, err := m.competitors.Analyze(c.Request.Context(), req.Keyword, req.URLs)
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	m.EmitEvent(c.Request.Context(), EventCompetitorAnalysisCompleted, map[string]any{
		"keyword":            a.Keyword,
		"analyzed":           a.Analyzed,
		"recommended_length": a.RecommendedLength,
		"common_headings":    a.CommonHeadings,
		"opportunities":      a.Opportunities,
	})
	c.JSON(http.StatusOK, a)
}

func (m *Module) handleHistory(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			web.Error(c, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	pages := m.scraper.History(limit)
	c.JSON(http.StatusOK, gin.H{"pages": pages, "count": len(pages)})
}

func (m *Module) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"scraping": m.scraper.Stats(), "analyses": len(m.competitors.Recent())})
}
