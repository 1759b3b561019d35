package actuator

import (
	"net/http"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skekre98/contentagent/config"
	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/metrics"
	"github.com/skekre98/contentagent/web"
)

const Name = "actuator"

// ModuleView is one row of the /modules listing.
type ModuleView struct {
	core.Descriptor
	Initialized bool   `json:"initialized"`
	State       string `json:"state"`
	Error       string `json:"error,omitempty"`
}

// Routes mounts the operational endpoints under cfg.BasePath. The metrics
// endpoint is only mounted when reg exposes a handler.
func Routes(cfg config.ActuatorConfig, info config.AppInfo, reg metrics.Registry) web.RouteFunc {
	return func(r web.Router, app *core.App) {
		group := r.Group(cfg.BasePath)

		group.GET("/health", health(app))
		group.GET("/info", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"app": gin.H{
					"name":    info.Name,
					"version": info.Version,
				},
				"modules": gin.H{
					"loaded": len(app.Registry.LoadOrder()),
					"failed": len(app.Registry.FailedModules()),
				},
				"runtime": gin.H{
					"go":           runtime.Version(),
					"numGoroutine": runtime.NumGoroutine(),
					"time":         time.Now().UTC().Format(time.RFC3339),
					"pid":          os.Getpid(),
				},
			})
		})
		group.GET("/modules", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"modules": moduleViews(app.Registry)})
		})
		group.GET("/services", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"services": app.Container.ListServices()})
		})
		group.GET("/ui", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"components": uiListing(app.Registry)})
		})
		group.GET("/ui/:module/:component", renderUI(app))

		if reg != nil {
			if h := reg.GetHandler(); h != nil {
				group.GET(metrics.Path, gin.WrapH(h))
			}
		}
	}
}

// health fans out to every loaded module. The aggregate is degraded when
// any module reports anything other than healthy.
func health(app *core.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := app.Registry.HealthCheckAll(c.Request.Context())
		status := core.StatusHealthy
		for _, hs := range checks {
			if hs.Status != core.StatusHealthy {
				status = core.StatusDegraded
				break
			}
		}
		failed := map[string]string{}
		for _, name := range app.Registry.FailedModules() {
			if err := app.Registry.FailureReason(name); err != nil {
				failed[name] = err.Error()
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"modules":   checks,
			"failed":    failed,
		})
	}
}

func moduleViews(reg *core.Registry) []ModuleView {
	discovered := reg.Discovered()
	names := make([]string, 0, len(discovered))
	for name := range discovered {
		names = append(names, name)
	}
	sort.Strings(names)

	views := make([]ModuleView, 0, len(names))
	for _, name := range names {
		v := ModuleView{Descriptor: discovered[name]}
		if m, ok := reg.GetModule(name); ok {
			v.Descriptor = m.Info()
			v.Initialized = m.IsInitialized()
		}
		if st, ok := reg.State(name); ok {
			v.State = string(st)
		}
		if err := reg.FailureReason(name); err != nil {
			v.Error = err.Error()
		}
		views = append(views, v)
	}
	return views
}

func uiListing(reg *core.Registry) map[string][]string {
	out := map[string][]string{}
	for name, m := range reg.GetAllModules() {
		comps := m.UIComponents()
		if len(comps) == 0 {
			continue
		}
		keys := make([]string, 0, len(comps))
		for k := range comps {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out[name] = keys
	}
	return out
}

func renderUI(app *core.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := app.Registry.GetModule(c.Param("module"))
		if !ok {
			web.Problem(c, http.StatusNotFound, "module not loaded")
			return
		}
		comp, ok := m.UIComponents()[c.Param("component")]
		if !ok {
			web.Problem(c, http.StatusNotFound, "unknown component")
			return
		}
		view, err := comp(c.Request.Context())
		if err != nil {
			web.Problem(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, view)
	}
}
