package contentgeneration

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/web"
)

const defaultHistoryLimit = 50

func (m *Module) RegisterRoutes(r core.Router) {
	g := r.Group("/api/content")
	g.POST("/generate", m.handleGenerate)
	g.GET("/templates", m.handleTemplates)
	g.POST("/templates", m.handleAddTemplate)
	g.GET("/templates/:key", m.handleTemplate)
	g.GET("/history", m.handleHistory)
	g.GET("/stats", m.handleStats)
	g.GET("/:id", m.handleGet)
	g.DELETE("/:id", m.handleDelete)
}

func (m *Module) handleGenerate(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		web.Error(c, http.StatusBadRequest, err)
		return
	}
	if req.ResearchFirst {
		m.requestResearch(c, req)
		return
	}
	content, err := m.generate(c.Request.Context(), req, nil)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		web.Error(c, status, err)
		return
	}
	c.JSON(http.StatusCreated, content)
}

// requestResearch validates the request and emits keyword_needed; the
// content arrives later as a content_generated event.
func (m *Module) requestResearch(c *gin.Context, req Request) {
	if _, err := m.content.Validate(&req); err != nil {
		web.Error(c, http.StatusBadRequest, err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	m.EmitEvent(c.Request.Context(), EventKeywordNeeded, map[string]any{
		"keyword":               req.PrimaryKeyword,
		"content_type":          req.ContentType,
		"target_audience":       req.TargetAudience,
		"auto_generate_content": true,
		"auto_schedule":         req.AutoSchedule,
		"target_platforms":      req.TargetPlatforms,
		"request_id":            req.RequestID,
	})
	c.JSON(http.StatusAccepted, gin.H{"status": "researching", "request_id": req.RequestID})
}

func (m *Module) handleTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"templates": m.templates.List()})
}

func (m *Module) handleAddTemplate(c *gin.Context) {
	var t Template
	if err := c.ShouldBindJSON(&t); err != nil {
		web.Error(c, http.StatusBadRequest, err)
		return
	}
	if err := validator.New().Struct(t); err != nil {
		web.Error(c, http.StatusBadRequest, err)
		return
	}
	m.templates.Add(t)
	c.JSON(http.StatusCreated, t)
}

func (m *Module) handleTemplate(c *gin.Context) {
	t, ok := m.templates.Get(c.Param("key"))
	if !ok {
		web.Error(c, http.StatusNotFound, ErrUnknownTemplate)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (m *Module) handleHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			web.Error(c, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	items := m.content.List(limit, c.Query("content_type"))
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (m *Module) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, m.content.Stats())
}

func (m *Module) handleGet(c *gin.Context) {
	content, err := m.content.Get(c.Param("id"))
	if err != nil {
		web.Error(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, content)
}

func (m *Module) handleDelete(c *gin.Context) {
	if !m.content.Delete(c.Param("id")) {
		web.Error(c, http.StatusNotFound, ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}
