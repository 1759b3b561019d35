package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/skekre98/contentagent/config"
	"github.com/skekre98/contentagent/core"
	"github.com/skekre98/contentagent/metrics"
)

const Name = "web"

// Server is the HTTP runner. Its engine is built at Start, after modules
// have loaded, so every loaded module's routes are mounted.
type Server struct {
	cfg    config.ServerConfig
	info   config.AppInfo
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	srv  *http.Server
	addr string
}

func New(cfg config.ServerConfig, info config.AppInfo, logger *slog.Logger, opts ...Option) *Server {
	var options Options
	for _, o := range opts {
		o(&options)
	}
	return &Server{
		cfg:    cfg,
		info:   info,
		opts:   options,
		logger: logger.With("component", Name),
	}
}

func (s *Server) Name() string { return Name }

// Handler builds the gin engine for app: middleware, the root banner,
// module routes in load order, then host routes.
func (s *Server) Handler(app *core.App) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(RequestID())
	r.Use(RecoveryProblem(s.logger))
	if s.opts.Metrics != nil {
		r.Use(metrics.GinMiddleware(s.opts.Metrics))
	}
	r.Use(AccessLog(s.logger))
	r.Use(s.opts.Middlewares...)

	r.GET("/", s.banner(app))
	MountModules(r, app.Registry, s.logger)
	for _, reg := range s.opts.Routes {
		reg(r, app)
	}
	return r
}

func (s *Server) banner(app *core.App) Handler {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": s.info.Name + " API",
			"version": s.info.Version,
			"modules": app.Registry.LoadOrder(),
		})
	}
}

// MountModules calls RegisterRoutes on every loaded module. A module whose
// registration panics is logged and skipped; routes it added before the
// panic stay mounted.
func MountModules(r Router, reg *core.Registry, l *slog.Logger) {
	for _, name := range reg.LoadOrder() {
		m, ok := reg.GetModule(name)
		if !ok {
			continue
		}
		mountModule(r, name, m, l)
	}
}

func mountModule(r Router, name string, m core.Module, l *slog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			l.Error("failed to register module routes", "module", name, "error", rec)
		}
	}()
	m.RegisterRoutes(r)
	l.Debug("registered module routes", "module", name)
}

// Start binds the listener synchronously so address errors surface here,
// then serves in the background.
func (s *Server) Start(_ context.Context, app *core.App) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", s.cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:      s.Handler(app),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.mu.Lock()
	s.srv = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		s.logger.Info("http server starting", "addr", ln.Addr().String(), "tls", s.cfg.TLS.Enabled)
		var err error
		if s.cfg.TLS.Enabled {
			err = srv.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// Addr is the bound listen address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
