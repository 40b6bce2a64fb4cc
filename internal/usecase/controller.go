package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"Prospector/internal/domain"
	"Prospector/internal/logging"
	"Prospector/internal/metrics"
	"Prospector/internal/ports"
)

// ControllerDeps wires all driven adapters into the stage pipeline.
type ControllerDeps struct {
	Gateway        ports.Gateway
	Persister      *Persister
	Cache          ports.BundleCache
	Notifier       ports.Notifier
	Screenshots    ports.ScreenshotCapturer
	Directory      *Directory
	Metrics        *metrics.Collectors
	Logger         *slog.Logger
	PreviewBaseURL string
}

// Controller owns the open pipelines, one per business.
type Controller struct {
	gateway     ports.Gateway
	persister   *Persister
	cache       ports.BundleCache
	notifier    ports.Notifier
	screenshots ports.ScreenshotCapturer
	directory   *Directory
	metrics     *metrics.Collectors
	logger      *slog.Logger
	previewBase string

	mu        sync.Mutex
	pipelines map[string]*Pipeline
	refreshMu sync.Mutex
}

// NewController constructs the stage pipeline controller.
func NewController(deps ControllerDeps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	persister := deps.Persister
	if persister == nil {
		persister = NewPersister(PersisterDeps{Cache: deps.Cache, Notifier: deps.Notifier, Metrics: deps.Metrics, Logger: logger})
	}
	directory := deps.Directory
	if directory == nil {
		directory = NewDirectory()
	}
	return &Controller{
		gateway:     deps.Gateway,
		persister:   persister,
		cache:       deps.Cache,
		notifier:    deps.Notifier,
		screenshots: deps.Screenshots,
		directory:   directory,
		metrics:     deps.Metrics,
		logger:      logger,
		previewBase: strings.TrimRight(deps.PreviewBaseURL, "/"),
		pipelines:   map[string]*Pipeline{},
	}
}

// Restore registers the businesses of every cached bundle in the directory so
// they can be resumed after a restart.
func (c *Controller) Restore() (int, error) {
	if c.cache == nil {
		return 0, nil
	}
	bundles, err := c.cache.List()
	if err != nil {
		return 0, fmt.Errorf("restore cached bundles: %w", err)
	}
	c.directory.Seed(bundles)
	return len(bundles), nil
}

// Open returns the pipeline of a business. An already open pipeline is
// returned as is; otherwise the cached bundle is resumed at its last stage,
// or a fresh bundle starts at PROMPT.
func (c *Controller) Open(businessID string) (*Pipeline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pipelines[businessID]; ok {
		return p, nil
	}

	var (
		bundle domain.Bundle
		found  bool
	)
	if c.cache != nil {
		cached, ok, err := c.cache.Get(businessID)
		if err != nil {
			c.logger.Warn("cached bundle unreadable, starting fresh", "business_id", businessID, "error", err)
		} else if ok {
			bundle, found = cached, true
			if b, known := c.directory.Business(businessID); known {
				bundle.Business = b
			}
		}
	}
	if !found {
		b, ok := c.directory.Business(businessID)
		if !ok {
			return nil, fmt.Errorf("business %s: %w", businessID, ErrNotFound)
		}
		bundle = domain.NewBundle(b)
		if err := c.persister.SaveLocal(bundle); err != nil {
			return nil, err
		}
	}

	p := newPipeline(c, bundle)
	c.pipelines[businessID] = p
	c.logger.Debug("pipeline opened", "business_id", businessID, "stage", bundle.Stage, "resumed", found)
	return p, nil
}

// Get returns an open pipeline.
func (c *Controller) Get(businessID string) (*Pipeline, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pipelines[businessID]
	return p, ok
}

// Close detaches a pipeline. Generation results still in flight for it are
// discarded when they arrive.
func (c *Controller) Close(businessID string) bool {
	c.mu.Lock()
	p, ok := c.pipelines[businessID]
	delete(c.pipelines, businessID)
	c.mu.Unlock()
	if ok {
		p.close()
	}
	return ok
}

// OpenIDs lists the businesses with an open pipeline, sorted.
func (c *Controller) OpenIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.pipelines))
	for id := range c.pipelines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SyncAll saves every open pipeline to both tiers using its current values.
func (c *Controller) SyncAll(ctx context.Context) map[string]SaveReport {
	reports := map[string]SaveReport{}
	for _, id := range c.OpenIDs() {
		p, ok := c.Get(id)
		if !ok {
			continue
		}
		reports[id] = c.persister.Save(ctx, "sync", p.Snapshot())
	}
	return reports
}

// RefreshBusiness propagates an updated business snapshot into its open
// pipeline, or into its cached bundle.
func (c *Controller) RefreshBusiness(b domain.Business) error {
	if p, ok := c.Get(b.ID); ok {
		return p.setBusiness(b)
	}
	if c.cache == nil {
		return nil
	}
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	bundle, ok, err := c.cache.Get(b.ID)
	if err != nil || !ok {
		return err
	}
	bundle.Business = keepEnrichment(bundle.Business, b)
	return c.persister.SaveLocal(bundle)
}

// keepEnrichment returns next with prev's enriched data merged under it, so a
// refresh that arrives out of order cannot erase fields.
func keepEnrichment(prev, next domain.Business) domain.Business {
	if next.Enriched == nil {
		next.Enriched = prev.Enriched
		return next
	}
	merged := prev.Enriched.Merge(*next.Enriched)
	next.Enriched = &merged
	return next
}

// Directory exposes the business directory.
func (c *Controller) Directory() *Directory {
	return c.directory
}

// Persister exposes the persister.
func (c *Controller) Persister() *Persister {
	return c.persister
}

func (c *Controller) previewURL(businessID string) string {
	if c.previewBase == "" {
		return "/sites/" + businessID
	}
	return c.previewBase + "/" + businessID
}

func (c *Controller) notify(ctx context.Context, n domain.Notice) {
	if c.notifier == nil {
		return
	}
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	_ = c.notifier.Notify(ctx, n)
}
