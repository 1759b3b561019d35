package wordpress

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/web"
)

func (m *Module) RegisterRoutes(r core.Router) {
	g := r.Group("/api/wordpress")
	g.POST("/publish", m.handlePublish)
	g.POST("/preview", m.handlePreview)
	g.GET("/posts", m.handlePosts)
	g.GET("/posts/:id", m.handlePost)
	g.GET("/connection-test", m.handleConnectionTest)
}

type publishRequest struct {
	ContentID  string `json:"content_id" binding:"required"`
	ScheduleID string `json:"schedule_id"`
	FormatOptions
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrContentNotFound), errors.Is(err, ErrPostNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrPublish):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (m *Module) handlePublish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		web.Error(c, http.StatusBadRequest, err)
		return
	}
	rec, err := m.publish(c.Request.Context(), req.ContentID, req.ScheduleID, req.FormatOptions)
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (m *Module) handlePreview(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		web.Error(c, http.StatusBadRequest, err)
		return
	}
	p, err := m.publisher.Preview(req.ContentID, req.FormatOptions)
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (m *Module) handlePosts(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			web.Error(c, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	recs := m.publisher.Records(limit)
	c.JSON(http.StatusOK, gin.H{"posts": recs, "count": len(recs), "dry_run": m.publisher.DryRun()})
}

func (m *Module) handlePost(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		web.Error(c, http.StatusBadRequest, errors.New("post id must be a positive integer"))
		return
	}
	p, err := m.publisher.Post(c.Request.Context(), id)
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (m *Module) handleConnectionTest(c *gin.Context) {
	c.JSON(http.StatusOK, m.publisher.TestConnection(c.Request.Context()))
}
