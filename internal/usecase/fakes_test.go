package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"Prospector/internal/domain"
	"Prospector/internal/gateway"
	"Prospector/internal/infrastructure/cache"
	"Prospector/internal/metrics"
	"Prospector/internal/normalize"
	"Prospector/internal/ports"
)

var errUnreachable = errors.New("connection refused")

// fakeGateway returns canned answers. fail maps an operation to the error it
// returns alongside the documented fallback.
type fakeGateway struct {
	mu        sync.Mutex
	calls     []string
	critiques []ports.CritiqueInput
	fail      map[string]error

	discover  []domain.Business
	enriched  domain.EnrichedData
	enrichQ   []domain.EnrichedData
	blueprint string
	markup    string
	review    domain.WebsiteReview
	outreach  domain.OutreachPackage
	patch     domain.OutreachPatch

	started chan struct{}
	release chan struct{}
}

var _ ports.Gateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	subject := "A website for Joe's Cafe"
	return &fakeGateway{
		fail:      map[string]error{},
		blueprint: "One page with hero, menu and contact sections.",
		markup:    "<!DOCTYPE html><html><body><h1>Joe's Cafe</h1></body></html>",
		review: domain.WebsiteReview{
			DesignScore: 60, UsabilityScore: 65, VisualScore: 55,
			Issues:          []string{"Hero text is hard to read"},
			Recommendations: []string{"Add a call to action"},
		},
		outreach: domain.OutreachPackage{
			ColdEmail:  domain.Email{Subject: subject, Body: "Hi Joe"},
			WhatsApp:   "Hi Joe!",
			CallScript: "Hello, is this Joe?",
			FollowUps:  []domain.FollowUp{{Subject: "Following up", Body: "Any thoughts?", Delay: "3 days"}},
		},
		patch: domain.OutreachPatch{CallScript: &subject},
	}
}

func (g *fakeGateway) record(ctx context.Context, op string) error {
	g.mu.Lock()
	g.calls = append(g.calls, op)
	started, release := g.started, g.release
	err := g.fail[op]
	g.mu.Unlock()

	if release != nil {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (g *fakeGateway) setFail(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[op] = err
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *fakeGateway) DiscoverBusinesses(ctx context.Context, _, _ string, _ float64) ([]domain.Business, error) {
	if err := g.record(ctx, "discover_businesses"); err != nil {
		return []domain.Business{}, err
	}
	return append([]domain.Business(nil), g.discover...), nil
}

func (g *fakeGateway) EnrichBusiness(ctx context.Context, _ domain.Business) (domain.EnrichedData, error) {
	if err := g.record(ctx, "enrich_business"); err != nil {
		return domain.EnrichedData{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.enrichQ) > 0 {
		next := g.enrichQ[0]
		g.enrichQ = g.enrichQ[1:]
		return next, nil
	}
	return g.enriched, nil
}

func (g *fakeGateway) SuggestRegions(ctx context.Context, location string) ([]string, error) {
	if err := g.record(ctx, "suggest_regions"); err != nil {
		return []string{}, err
	}
	return []string{location + " North", location + " South"}, nil
}

func (g *fakeGateway) DraftWebsiteBlueprint(ctx context.Context, b domain.Business) (string, error) {
	if err := g.record(ctx, "draft_blueprint"); err != nil {
		return gateway.PlaceholderBlueprint(b), err
	}
	return g.blueprint, nil
}

func (g *fakeGateway) ReviseBlueprint(ctx context.Context, current, feedback string) (string, error) {
	if err := g.record(ctx, "revise_blueprint"); err != nil {
		return current, err
	}
	return current + "\n" + feedback, nil
}

func (g *fakeGateway) GenerateSiteMarkup(ctx context.Context, b domain.Business, _ string, _ ports.StyleOptions) (string, error) {
	if err := g.record(ctx, "generate_site_markup"); err != nil {
		return gateway.PlaceholderMarkup(b), err
	}
	return g.markup, nil
}

func (g *fakeGateway) ReviseSiteMarkup(ctx context.Context, current, instructions string) (string, error) {
	if err := g.record(ctx, "revise_site_markup"); err != nil {
		return current, err
	}
	return current + "<!-- revised -->", nil
}

func (g *fakeGateway) CritiqueWebsite(ctx context.Context, in ports.CritiqueInput) (domain.WebsiteReview, error) {
	g.mu.Lock()
	g.critiques = append(g.critiques, in)
	g.mu.Unlock()
	if err := g.record(ctx, "critique_website"); err != nil {
		return normalize.FallbackReview(), err
	}
	return g.review, nil
}

func (g *fakeGateway) DraftOutreach(ctx context.Context, _ domain.Business, _ string, _ ports.OutreachOptions) (domain.OutreachPackage, error) {
	if err := g.record(ctx, "draft_outreach"); err != nil {
		return normalize.FallbackOutreach(), err
	}
	return g.outreach, nil
}

func (g *fakeGateway) ReviseOutreachSection(ctx context.Context, _, _ string, _ domain.OutreachSection) (domain.OutreachPatch, error) {
	if err := g.record(ctx, "revise_outreach_section"); err != nil {
		return domain.OutreachPatch{}, err
	}
	return g.patch, nil
}

// fakeRemote records upserts and fails the kinds listed in fail. failAll
// fails every call.
type fakeRemote struct {
	mu       sync.Mutex
	failAll  bool
	fail     map[string]bool
	writes   map[string]int
	sessions []domain.Session
	rows     []domain.Business
	reviews  map[string]domain.WebsiteReview
}

var _ ports.RemoteStore = (*fakeRemote)(nil)

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		fail:    map[string]bool{},
		writes:  map[string]int{},
		reviews: map[string]domain.WebsiteReview{},
	}
}

func (r *fakeRemote) Enabled() bool { return true }

func (r *fakeRemote) hit(kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll || r.fail[kind] {
		return errUnreachable
	}
	r.writes[kind]++
	return nil
}

func (r *fakeRemote) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes[kind]
}

func (r *fakeRemote) CreateSession(_ context.Context, s domain.Session) (string, error) {
	if err := r.hit("session"); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = fmt.Sprintf("remote-%d", len(r.sessions)+1)
	r.sessions = append(r.sessions, s)
	return s.ID, nil
}

func (r *fakeRemote) CreateBusinesses(_ context.Context, bs []domain.Business) error {
	if err := r.hit("business"); err != nil {
		return err
	}
	r.mu.Lock()
	r.rows = append(r.rows, bs...)
	r.mu.Unlock()
	return nil
}

func (r *fakeRemote) UpdateBusiness(context.Context, domain.Business) error {
	return r.hit("business")
}

func (r *fakeRemote) UpsertPrompt(context.Context, domain.PromptRecord) error {
	return r.hit(string(domain.KindPrompt))
}

func (r *fakeRemote) UpsertWebsite(context.Context, domain.WebsiteRecord) error {
	return r.hit(string(domain.KindWebsite))
}

func (r *fakeRemote) UpsertReview(_ context.Context, id string, review domain.WebsiteReview) error {
	if err := r.hit(string(domain.KindReview)); err != nil {
		return err
	}
	r.mu.Lock()
	r.reviews[id] = review
	r.mu.Unlock()
	return nil
}

func (r *fakeRemote) UpsertOutreach(context.Context, string, domain.OutreachPackage) error {
	return r.hit(string(domain.KindOutreach))
}

type harness struct {
	gateway    *fakeGateway
	remote     *fakeRemote
	cache      *cache.SQLiteCache
	feed       *NoticeFeed
	metrics    *metrics.Collectors
	persister  *Persister
	controller *Controller
	discovery  *Discovery
}

func newHarness(t *testing.T, gw *fakeGateway, remote *fakeRemote) *harness {
	t.Helper()
	c, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return newHarnessWithCache(t, gw, remote, c)
}

func newHarnessWithCache(t *testing.T, gw *fakeGateway, remote *fakeRemote, c *cache.SQLiteCache) *harness {
	t.Helper()
	h := &harness{
		gateway: gw,
		remote:  remote,
		cache:   c,
		feed:    NewNoticeFeed(nil),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	var store ports.RemoteStore
	if remote != nil {
		store = remote
	}
	h.persister = NewPersister(PersisterDeps{
		Cache:    c,
		Remote:   store,
		Notifier: h.feed,
		Metrics:  h.metrics,
	})
	h.controller = NewController(ControllerDeps{
		Gateway:        gw,
		Persister:      h.persister,
		Cache:          c,
		Notifier:       h.feed,
		Metrics:        h.metrics,
		PreviewBaseURL: "http://localhost:8080/sites/",
	})
	h.discovery = NewDiscovery(DiscoveryDeps{
		Gateway:    gw,
		Remote:     store,
		Notifier:   h.feed,
		Controller: h.controller,
		Metrics:    h.metrics,
	})
	t.Cleanup(func() {
		h.persister.Wait()
		h.feed.Wait()
	})
	return h
}

var joe = domain.Business{
	ID:            "b1",
	SessionID:     "s1",
	Name:          "Joe's Cafe",
	Rating:        4.5,
	WebsiteStatus: domain.WebsiteNone,
}

// open registers joe and opens the pipeline for it.
func (h *harness) open(t *testing.T) *Pipeline {
	t.Helper()
	h.controller.Directory().AddSession(domain.Session{ID: "s1"}, []domain.Business{joe})
	p, err := h.controller.Open(joe.ID)
	require.NoError(t, err)
	return p
}

// walkToReview drives a fresh pipeline to REVIEW.
func walkToReview(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx := t.Context()
	_, err := p.DraftBlueprint(ctx)
	require.NoError(t, err)
	require.NoError(t, p.ApproveBlueprint(ctx))
	_, err = p.GenerateSite(ctx, ports.StyleOptions{Theme: "light"})
	require.NoError(t, err)
	_, err = p.SubmitForReview(ctx)
	require.NoError(t, err)
}
