// Package api exposes the operator workflow over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"Prospector/internal/domain"
	"Prospector/internal/infrastructure/maps"
	"Prospector/internal/logging"
	"Prospector/internal/ports"
	"Prospector/internal/usecase"
)

// Deps wires the use cases into the HTTP surface.
type Deps struct {
	Controller *usecase.Controller
	Discovery  *usecase.Discovery
	Notices    *usecase.NoticeFeed
	Locations  ports.LocationSuggester
	Cache      ports.BundleCache
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger
}

// Server is the gin router plus its collaborators.
type Server struct {
	deps   Deps
	router *gin.Engine
	logger *slog.Logger
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{deps: deps, router: router, logger: logger}
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) routes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	r.GET("/locations/suggest", s.suggestLocations)
	r.GET("/locations/regions", s.suggestRegions)

	r.POST("/sessions", s.discover)
	r.GET("/businesses", s.listBusinesses)
	r.POST("/businesses/:id/enrich", s.enrich)
	r.GET("/businesses/:id/notices", s.listNotices)
	r.DELETE("/businesses/:id/notices", s.clearNotices)

	p := r.Group("/businesses/:id/pipeline")
	p.POST("", s.openPipeline)
	p.GET("", s.getPipeline)
	p.DELETE("", s.closePipeline)
	p.POST("/blueprint", s.draftBlueprint)
	p.POST("/blueprint/revise", s.reviseBlueprint)
	p.POST("/blueprint/approve", s.approveBlueprint)
	p.POST("/site", s.generateSite)
	p.POST("/site/revise", s.reviseSite)
	p.POST("/site/url", s.setURL)
	p.POST("/site/screenshot", s.attachScreenshot)
	p.POST("/site/capture", s.captureScreenshot)
	p.POST("/review/submit", s.submitForReview)
	p.POST("/review/critique", s.critique)
	p.POST("/review/fixes", s.autoApplyFixes)
	p.POST("/review/approve", s.approveReview)
	p.POST("/outreach", s.draftOutreach)
	p.POST("/outreach/revise", s.reviseOutreachSection)
	p.POST("/finalize", s.finalize)
	p.POST("/stage", s.navigate)
	p.POST("/save", s.save)

	r.GET("/sites/:id", s.previewSite)
}

// view is the pipeline representation returned by every pipeline route.
type view struct {
	Bundle       domain.Bundle `json:"bundle"`
	Completeness int           `json:"completeness"`
	Busy         string        `json:"busy,omitempty"`
}

func viewOf(p *usecase.Pipeline) view {
	b := p.Snapshot()
	return view{Bundle: b, Completeness: b.Completeness(), Busy: p.Busy()}
}

func (s *Server) suggestLocations(c *gin.Context) {
	if s.deps.Locations == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "location suggestions are not configured"})
		return
	}
	suggestions, err := s.deps.Locations.Suggest(c.Request.Context(), c.Query("q"))
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (s *Server) suggestRegions(c *gin.Context) {
	regions, err := s.deps.Discovery.SuggestRegions(c.Request.Context(), c.Query("q"))
	if err != nil {
		s.fail(c, err, regions)
		return
	}
	c.JSON(http.StatusOK, gin.H{"regions": regions})
}

func (s *Server) discover(c *gin.Context) {
	var params usecase.SearchParams
	if !bind(c, &params) {
		return
	}
	res, err := s.deps.Discovery.Run(c.Request.Context(), params)
	if err != nil {
		s.fail(c, err, res)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) listBusinesses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"businesses": s.deps.Discovery.Directory().Businesses(c.Query("session"))})
}

func (s *Server) enrich(c *gin.Context) {
	b, err := s.deps.Discovery.Enrich(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err, b)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) listNotices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notices": s.deps.Notices.List(c.Param("id"))})
}

func (s *Server) clearNotices(c *gin.Context) {
	s.deps.Notices.Clear(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) openPipeline(c *gin.Context) {
	p, err := s.deps.Controller.Open(c.Param("id"))
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, viewOf(p))
}

func (s *Server) getPipeline(c *gin.Context) {
	if p, ok := s.pipeline(c); ok {
		c.JSON(http.StatusOK, viewOf(p))
	}
}

func (s *Server) closePipeline(c *gin.Context) {
	if !s.deps.Controller.Close(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "pipeline not open"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) draftBlueprint(c *gin.Context) {
	s.act(c, func(ctx context.Context, p *usecase.Pipeline) (any, error) {
		return p.DraftBlueprint(ctx)
	})
}

func (s *Server) reviseBlueprint(c *gin.Context) {
	var req struct {
		Feedback string `json:"feedback"`
	}
	if !bind(c, &req) {
		return
	}
	s.act(c, func(ctx context.Context, p *usecase.Pipeline) (any, error) {
		return p.ReviseBlueprint(ctx, req.Feedback)
	})
}

func (s *Server) approveBlueprint(c *gin.Context) {
	s.act(c, func(ctx context.Context, p *usecase.Pipeline) (any, error) {
		return nil, p.ApproveBlueprint(ctx)
	})
}

func (s *Server) generateSite(c *gin.Context) {
	var style ports.StyleOptions
	if !bind(c, &style) {
		return
	}
	s.act(c, func(ctx context.Context, p *usecase.Pipeline) (any, error) {
		return p.GenerateSite(ctx, style)
	})
}

func (s *Server) reviseSite(c *gin.Context) {
	var req struct {
		Instructions string `json:"instructions"`
	}
	if !bind(c, &req) {
		return
	}
	s.act(c, func(ctx context.Context, p *usecase.Pipeline) (any, error) {
		return p.ReviseSite(ctx, req.Instructions)
	})
}

func (s *Server) setURL(c *gin.Context) {
	var req struct {
		URL string `json:"url"`
	}
	if !bind(c, &req) {
		return
	}
	s.act(c, func(ctx context.Context, p *usecase.Pipeline) (any, error) {
		return nil, p.SetURL(ctx, req.URL)
	})
}

func (s *Server) attachScreenshot(c *gin.Context) {
	var req struct {
		Screenshot string `json:"screenshot"`
	}
	if !bind(c, &req) {
		return
	}
	s.act(c, func(ctx context.Context, p *usecase.Pipeline) (any, error) {
		return nil, p.AttachScreenshot(ctx, req.Screenshot)
	})
}

func (s *Server) captureScreenshot(c *gin.Context) {
	s.act(c, func(ctx context.Context, p *usecase.Pipeline) (any, error) {
		_, err := p.CaptureScreenshot(ctx)
		return nil, err
	})
}

func (s *Server) submitForReview(c *gin.Context) {
	s.act(c, func(ctx context.Context, p *usecase.Pipeline) (any, error) {
		return p.SubmitForReview(ctx)
	})
}

func (s *Server) critique(c *gin.Context) {
	var req struct {
		Source usecase.CritiqueSource `json:"source"`
	}
	if !bind(c, &req) {
		return
	}
	s.act(c, func(ctx context.Context, p *usecase.Pipeline) (any, error) {
		return p.Critique(ctx, req.Source)
	})
}

func (s *Server) autoApplyFixes(c *gin.Context) {
	var req struct {
		Rounds int `json:"rounds"`
	}
	if !bind(c, &req) {
		return
	}
	s.act(c, func(ctx context.Context, p *usecase.Pipeline) (any, error) {
		return p.AutoApplyFixes(ctx, req.Rounds)
	})
}

func (s *Server) approveReview(c *gin.Context) {
	var opts ports.OutreachOptions
	if !bind(c, &opts) {
		return
	}
	s.act(c, func(ctx context.Context, p *usecase.Pipeline) (any, error) {
		return p.ApproveReview(ctx, opts)
	})
}

func (s *Server) draftOutreach(c *gin.Context) {
	var opts ports.OutreachOptions
	if !bind(c, &opts) {
		return
	}
	s.act(c, func(ctx context.Context, p *usecase.Pipeline) (any, error) {
		return p.DraftOutreach(ctx, opts)
	})
}

func (s *Server) reviseOutreachSection(c *gin.Context) {
	var req struct {
		Section  string `json:"section"`
		Index    int    `json:"index"`
		Feedback string `json:"feedback"`
	}
	if !bind(c, &req) {
		return
	}
	section, err := domain.ParseOutreachSection(req.Section)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.act(c, func(ctx context.Context, p *usecase.Pipeline) (any, error) {
		return p.ReviseOutreachSection(ctx, section, req.Index, req.Feedback)
	})
}

func (s *Server) finalize(c *gin.Context) {
	s.act(c, func(ctx context.Context, p *usecase.Pipeline) (any, error) {
		report, err := p.Finalize(ctx)
		return saveStatus(report), err
	})
}

func (s *Server) navigate(c *gin.Context) {
	var req struct {
		Stage string `json:"stage"`
	}
	if !bind(c, &req) {
		return
	}
	stage, err := domain.ParseStage(req.Stage)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.act(c, func(_ context.Context, p *usecase.Pipeline) (any, error) {
		return nil, p.Navigate(stage)
	})
}

func (s *Server) save(c *gin.Context) {
	s.act(c, func(ctx context.Context, p *usecase.Pipeline) (any, error) {
		report, err := p.Save(ctx)
		return saveStatus(report), err
	})
}

func (s *Server) previewSite(c *gin.Context) {
	id := c.Param("id")
	var doc string
	if p, ok := s.deps.Controller.Get(id); ok {
		doc = p.Snapshot().Markup
	} else if s.deps.Cache != nil {
		b, found, err := s.deps.Cache.Get(id)
		if err != nil {
			s.fail(c, err, nil)
			return
		}
		if found {
			doc = b.Markup
		}
	}
	if doc == "" {
		c.String(http.StatusNotFound, "no website generated for %s", id)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc))
}

type saveResult struct {
	LocalOnly bool              `json:"local_only"`
	Status    map[string]string `json:"status"`
}

func saveStatus(r usecase.SaveReport) saveResult {
	return saveResult{LocalOnly: r.LocalOnly(), Status: r.Status()}
}

// act runs one pipeline action and renders its result with the pipeline view.
func (s *Server) act(c *gin.Context, run func(ctx context.Context, p *usecase.Pipeline) (any, error)) {
	p, ok := s.pipeline(c)
	if !ok {
		return
	}
	result, err := run(c.Request.Context(), p)
	if err != nil {
		s.fail(c, err, result)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result, "pipeline": viewOf(p)})
}

func (s *Server) pipeline(c *gin.Context) (*usecase.Pipeline, bool) {
	p, ok := s.deps.Controller.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "pipeline not open"})
	}
	return p, ok
}

// fail maps use-case errors onto HTTP statuses. Generation failures carry the
// fallback value so the operator still sees what was produced.
func (s *Server) fail(c *gin.Context, err error, fallback any) {
	status, body := errorResponse(err)
	if status == http.StatusBadGateway && fallback != nil {
		body["fallback"] = fallback
	}
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, body)
}

func errorResponse(err error) (int, gin.H) {
	body := gin.H{"error": err.Error()}
	var (
		pe *usecase.PreconditionError
		ge *usecase.GenerationError
	)
	switch {
	case errors.As(err, &pe):
		body["missing"] = pe.Missing
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &ge):
		body["step"] = ge.Step
		return http.StatusBadGateway, body
	case errors.Is(err, usecase.ErrNotFound):
		return http.StatusNotFound, body
	case errors.Is(err, usecase.ErrBusy):
		return http.StatusConflict, body
	case errors.Is(err, usecase.ErrStaleResponse):
		return http.StatusGone, body
	case errors.Is(err, maps.ErrNotConfigured):
		return http.StatusServiceUnavailable, body
	default:
		return http.StatusInternalServerError, body
	}
}

// bind decodes an optional JSON body; an empty body leaves dst untouched.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
