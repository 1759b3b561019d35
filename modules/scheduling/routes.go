package scheduling

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/web"
)

func (m *Module) RegisterRoutes(r core.Router) {
	g := r.Group("/api/scheduling")
	g.POST("/schedule", m.handleCreate)
	g.GET("/schedule", m.handleList)
	g.GET("/schedule/:id", m.handleGet)
	g.PUT("/schedule/:id", m.handleReschedule)
	g.DELETE("/schedule/:id", m.handleCancel)
	g.POST("/publish/:id", m.handlePublishNow)

	g.GET("/calendar", m.handleCalendar)
	g.GET("/optimal-times", m.handleOptimalTimes)

	g.GET("/workflows", m.handleWorkflows)
	g.POST("/workflows", m.handleCreateWorkflow)
	g.GET("/workflows/templates", m.handleWorkflowTemplates)
	g.POST("/workflows/templates/:template", m.handleFromTemplate)
	g.GET("/workflows/:id", m.handleWorkflow)
	g.DELETE("/workflows/:id", m.handleDeleteWorkflow)
	g.POST("/workflows/:id/execute", m.handleExecute)
	g.POST("/workflows/:id/pause", m.handlePause)
	g.POST("/workflows/:id/resume", m.handleResume)
	g.GET("/workflows/:id/history", m.handleWorkflowHistory)

	g.GET("/stats", m.handleStats)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrScheduleNotFound), errors.Is(err, ErrWorkflowNotFound), errors.Is(err, ErrUnknownTemplate):
		return http.StatusNotFound
	case errors.Is(err, ErrNotPending), errors.Is(err, ErrScheduleFull):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidSchedule), errors.Is(err, ErrInvalidWorkflow):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (m *Module) handleCreate(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		web.Error(c, http.StatusBadRequest, err)
		return
	}
	sc, err := m.scheduler.Create(req)
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	m.EmitEvent(c.Request.Context(), EventContentScheduled, map[string]any{
		"schedule_id":  sc.ID,
		"content_id":   sc.ContentID,
		"platform":     sc.Platform,
		"publish_time": sc.PublishTime.Format(time.RFC3339),
		"auto":         false,
	})
	c.JSON(http.StatusCreated, sc)
}

func (m *Module) handleList(c *gin.Context) {
	items := m.scheduler.List(c.Query("status"))
	c.JSON(http.StatusOK, gin.H{"schedules": items, "count": len(items)})
}

func (m *Module) handleGet(c *gin.Context) {
	sc, err := m.scheduler.Get(c.Param("id"))
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (m *Module) handleReschedule(c *gin.Context) {
	var body struct {
		PublishTime time.Time `json:"publish_time" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		web.Error(c, http.StatusBadRequest, err)
		return
	}
	sc, err := m.scheduler.Reschedule(c.Param("id"), body.PublishTime)
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (m *Module) handleCancel(c *gin.Context) {
	sc, err := m.scheduler.Cancel(c.Param("id"))
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (m *Module) handlePublishNow(c *gin.Context) {
	sc, err := m.scheduler.Claim(c.Param("id"))
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	m.dispatch(c.Request.Context(), sc)
	// Subscribers settle the schedule synchronously; report where it landed.
	if latest, err := m.scheduler.Get(sc.ID); err == nil {
		sc = latest
	}
	c.JSON(http.StatusAccepted, sc)
}

func (m *Module) handleCalendar(c *gin.Context) {
	from := m.scheduler.now()
	if v := c.Query("from"); v != "" {
		t, err := time.ParseInLocation(time.DateOnly, v, m.calendar.Location())
		if err != nil {
			web.Error(c, http.StatusBadRequest, fmt.Errorf("from must be YYYY-MM-DD: %w", err))
			return
		}
		from = t
	}
	days := 7
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			web.Error(c, http.StatusBadRequest, errors.New("days must be an integer"))
			return
		}
		days = n
	}
	cal, err := m.calendar.Calendar(m.scheduler, from, days)
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timezone": m.calendar.Location().String(), "days": cal})
}

func (m *Module) handleOptimalTimes(c *gin.Context) {
	platform := c.DefaultQuery("platform", PlatformWordPress)
	if _, ok := windows[platform]; !ok {
		web.Error(c, http.StatusBadRequest, fmt.Errorf("unknown platform %q", platform))
		return
	}
	count := 5
	if v := c.Query("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 50 {
			web.Error(c, http.StatusBadRequest, errors.New("count must be between 1 and 50"))
			return
		}
		count = n
	}
	contentType := c.Query("content_type")
	c.JSON(http.StatusOK, gin.H{
		"platform":     platform,
		"content_type": contentType,
		"window":       m.calendar.WindowFor(platform, contentType),
		"slots":        m.calendar.Slots(platform, contentType, m.scheduler.now(), count),
	})
}

func (m *Module) handleWorkflows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"workflows": m.automation.List()})
}

func (m *Module) handleCreateWorkflow(c *gin.Context) {
	var req WorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		web.Error(c, http.StatusBadRequest, err)
		return
	}
	w, err := m.automation.Create(req)
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (m *Module) handleWorkflowTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"templates": Templates()})
}

func (m *Module) handleFromTemplate(c *gin.Context) {
	var body struct {
		Params map[string]any `json:"params"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		web.Error(c, http.StatusBadRequest, err)
		return
	}
	w, err := m.automation.FromTemplate(c.Param("template"), body.Params)
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (m *Module) handleWorkflow(c *gin.Context) {
	w, err := m.automation.Get(c.Param("id"))
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (m *Module) handleDeleteWorkflow(c *gin.Context) {
	if err := m.automation.Delete(c.Param("id")); err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (m *Module) handleExecute(c *gin.Context) {
	id := c.Param("id")
	if _, err := m.automation.Get(id); err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	m.automation.Trigger(id, TriggerManual)
	c.JSON(http.StatusAccepted, gin.H{"workflow_id": id, "status": "started"})
}

func (m *Module) handlePause(c *gin.Context) {
	w, err := m.automation.Pause(c.Param("id"))
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (m *Module) handleResume(c *gin.Context) {
	w, err := m.automation.Resume(c.Param("id"))
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (m *Module) handleWorkflowHistory(c *gin.Context) {
	hist, err := m.automation.History(c.Param("id"))
	if err != nil {
		web.Error(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": hist})
}

func (m *Module) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, m.Stats())
}
