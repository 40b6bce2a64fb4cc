package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"Prospector/internal/domain"
	"Prospector/internal/logging"
	"Prospector/internal/metrics"
	"Prospector/internal/ports"
)

// SearchParams describe one discovery query.
type SearchParams struct {
	Category      string               `json:"category"`
	Location      string               `json:"location"`
	MinRating     float64              `json:"min_rating"`
	MaxRating     float64              `json:"max_rating"`
	WebsiteFilter domain.WebsiteFilter `json:"website_filter"`
	MinReviews    int                  `json:"min_reviews"`
	IncludeMedia  bool                 `json:"include_media"`
}

// Result is the session created by a discovery run and the businesses it owns.
type Result struct {
	Session    domain.Session    `json:"session"`
	Businesses []domain.Business `json:"businesses"`
}

// DiscoveryDeps wires the initializer.
type DiscoveryDeps struct {
	Gateway    ports.Gateway
	Remote     ports.RemoteStore
	Notifier   ports.Notifier
	Directory  *Directory
	Controller *Controller
	Metrics    *metrics.Collectors
	Logger     *slog.Logger
}

// Discovery creates sessions from search parameters and enriches businesses.
type Discovery struct {
	gateway    ports.Gateway
	remote     ports.RemoteStore
	notifier   ports.Notifier
	directory  *Directory
	controller *Controller
	metrics    *metrics.Collectors
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// NewDiscovery constructs the initializer.
func NewDiscovery(deps DiscoveryDeps) *Discovery {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	directory := deps.Directory
	if directory == nil && deps.Controller != nil {
		directory = deps.Controller.Directory()
	}
	if directory == nil {
		directory = NewDirectory()
	}
	return &Discovery{
		gateway:    deps.Gateway,
		remote:     deps.Remote,
		notifier:   deps.Notifier,
		directory:  directory,
		controller: deps.Controller,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Run discovers businesses, filters them and records a new session owning
// them. The remote store assigns the session id; when it is unavailable a
// local id is used. Remote failures degrade to a notice; the session stays
// usable.
func (d *Discovery) Run(ctx context.Context, params SearchParams) (Result, error) {
	params.Category = strings.TrimSpace(params.Category)
	params.Location = strings.TrimSpace(params.Location)
	if params.WebsiteFilter == "" {
		params.WebsiteFilter = domain.FilterAny
	}
	if err := validateSearch(params); err != nil {
		return Result{}, err
	}

	found, err := d.gateway.DiscoverBusinesses(ctx, params.Category, params.Location, params.MinRating)
	if err != nil {
		d.notify(ctx, domain.Notice{
			Level:    domain.NoticeError,
			Step:     "discover_businesses",
			Message:  fmt.Sprintf("Discovery failed: %v", err),
			Blocking: true,
		})
		return Result{Businesses: []domain.Business{}}, &GenerationError{Step: "discover_businesses", Err: err}
	}

	now := d.now().UTC()
	session := domain.Session{
		CreatedAt:     now,
		Category:      params.Category,
		Location:      params.Location,
		MinRating:     params.MinRating,
		MaxRating:     params.MaxRating,
		WebsiteFilter: params.WebsiteFilter,
		MinReviews:    params.MinReviews,
		IncludeMedia:  params.IncludeMedia,
		Status:        domain.SessionActive,
	}
	if d.remote != nil {
		id, err := d.remote.CreateSession(ctx, session)
		d.metrics.RemoteWrite("session", err)
		if err != nil {
			d.warnRemote(ctx, "session", err)
		} else {
			session.ID = id
		}
	}
	if session.ID == "" {
		session.ID = d.newID()
	}

	businesses := make([]domain.Business, 0, len(found))
	for _, b := range found {
		if !keep(b, params) {
			continue
		}
		b.ID = d.newID()
		b.SessionID = session.ID
		b.CreatedAt = now
		businesses = append(businesses, b)
	}
	if d.remote != nil && len(businesses) > 0 {
		err := d.remote.CreateBusinesses(ctx, businesses)
		d.metrics.RemoteWrite("business", err)
		if err != nil {
			d.warnRemote(ctx, "business", err)
		}
	}

	d.directory.AddSession(session, businesses)
	d.logger.Info("discovery finished",
		"session_id", session.ID, "found", len(found), "kept", len(businesses))
	return Result{Session: session, Businesses: businesses}, nil
}

// Enrich gathers extra details for a business and merges them additively.
func (d *Discovery) Enrich(ctx context.Context, businessID string) (domain.Business, error) {
	b, ok := d.directory.Business(businessID)
	if !ok {
		return domain.Business{}, fmt.Errorf("business %s: %w", businessID, ErrNotFound)
	}

	data, err := d.gateway.EnrichBusiness(ctx, b)
	if err != nil {
		d.notify(ctx, domain.Notice{
			BusinessID: businessID,
			Level:      domain.NoticeError,
			Step:       "enrich_business",
			Message:    fmt.Sprintf("Enrichment failed: %v", err),
			Blocking:   true,
		})
		return b, &GenerationError{Step: "enrich_business", Err: err}
	}

	b, ok = d.directory.Enrich(businessID, data)
	if !ok {
		return domain.Business{}, fmt.Errorf("business %s: %w", businessID, ErrNotFound)
	}
	if d.controller != nil {
		if err := d.controller.RefreshBusiness(b); err != nil {
			d.logger.Warn("cached bundle not refreshed", "business_id", businessID, "error", err)
		}
	}
	if d.remote != nil {
		err := d.remote.UpdateBusiness(ctx, b)
		d.metrics.RemoteWrite("business", err)
		if err != nil {
			d.warnRemote(ctx, "business", err)
		}
	}
	return b, nil
}

// SuggestRegions proposes sub-areas for a broad location.
func (d *Discovery) SuggestRegions(ctx context.Context, location string) ([]string, error) {
	location = strings.TrimSpace(location)
	if err := precondition("suggest regions", need(location != "", "location")); err != nil {
		return nil, err
	}
	regions, err := d.gateway.SuggestRegions(ctx, location)
	if err != nil {
		return regions, &GenerationError{Step: "suggest_regions", Err: err}
	}
	return regions, nil
}

// Directory exposes the business directory.
func (d *Discovery) Directory() *Directory {
	return d.directory
}

func validateSearch(p SearchParams) error {
	return precondition("discover businesses",
		need(p.Category != "", "category"),
		need(p.Location != "", "location"),
		need(p.MinRating >= 0 && p.MinRating <= 5, "minimum rating between 0 and 5"),
		need(p.MaxRating == 0 || p.MaxRating >= p.MinRating && p.MaxRating <= 5, "maximum rating between minimum and 5"),
		need(p.MinReviews >= 0, "non-negative review count"),
		need(validFilter(p.WebsiteFilter), "website filter NONE, POOR or ANY"))
}

func validFilter(f domain.WebsiteFilter) bool {
	switch f {
	case domain.FilterNone, domain.FilterPoor, domain.FilterAny:
		return true
	}
	return false
}

func keep(b domain.Business, p SearchParams) bool {
	if b.Rating < p.MinRating {
		return false
	}
	if p.MaxRating > 0 && b.Rating > p.MaxRating {
		return false
	}
	if b.ReviewCount < p.MinReviews {
		return false
	}
	return p.WebsiteFilter.Accepts(b.WebsiteStatus)
}

func (d *Discovery) warnRemote(ctx context.Context, kind string, err error) {
	d.logger.Warn("remote write failed", "kind", kind, "error", err)
	d.notify(ctx, domain.Notice{
		Level:   domain.NoticeWarn,
		Step:    "save",
		Message: fmt.Sprintf("Saved locally only: remote %s write failed", kind),
	})
}

func (d *Discovery) notify(ctx context.Context, n domain.Notice) {
	if d.notifier == nil {
		return
	}
	_ = d.notifier.Notify(ctx, n)
}
