package usecase

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Prospector/internal/domain"
	"Prospector/internal/gateway"
	"Prospector/internal/infrastructure/storage"
	"Prospector/internal/metrics"
)

func discovered() []domain.Business {
	return []domain.Business{
		{Name: "Joe's Cafe", Rating: 4.5, ReviewCount: 120, WebsiteStatus: domain.WebsiteNone},
		{Name: "Bean There", Rating: 4.2, ReviewCount: 15, WebsiteStatus: domain.WebsitePoor},
		{Name: "Grand Roast", Rating: 4.9, ReviewCount: 900, WebsiteStatus: domain.WebsiteGood},
		{Name: "Meh Mugs", Rating: 3.1, ReviewCount: 40, WebsiteStatus: domain.WebsiteNone},
	}
}

func names(bs []domain.Business) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Name
	}
	return out
}

func TestDiscoveryFiltersAndOwnsBusinesses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params SearchParams
		want   []string
	}{
		{
			name:   "any website",
			params: SearchParams{MinRating: 4},
			want:   []string{"Joe's Cafe", "Bean There", "Grand Roast"},
		},
		{
			name:   "no website only",
			params: SearchParams{WebsiteFilter: domain.FilterNone},
			want:   []string{"Joe's Cafe", "Meh Mugs"},
		},
		{
			name:   "poor accepts none",
			params: SearchParams{MinRating: 4, WebsiteFilter: domain.FilterPoor},
			want:   []string{"Joe's Cafe", "Bean There"},
		},
		{
			name:   "rating window and reviews",
			params: SearchParams{MinRating: 4, MaxRating: 4.6, MinReviews: 20},
			want:   []string{"Joe's Cafe"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gw := newFakeGateway()
			gw.discover = discovered()
			remote := newFakeRemote()
			h := newHarness(t, gw, remote)

			tt.params.Category, tt.params.Location = "cafe", "Austin"
			res, err := h.discovery.Run(t.Context(), tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(res.Businesses))
			assert.Equal(t, domain.SessionActive, res.Session.Status)

			for _, b := range res.Businesses {
				assert.NotEmpty(t, b.ID)
				assert.Equal(t, res.Session.ID, b.SessionID)
				_, ok := h.controller.Directory().Business(b.ID)
				assert.True(t, ok)
			}
			assert.Equal(t, names(res.Businesses), names(h.controller.Directory().Businesses(res.Session.ID)))
			assert.Equal(t, 1, remote.count("session"))
			assert.Len(t, remote.rows, len(tt.want))
		})
	}
}

func TestDiscoverySessionIDComesFromStore(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.discover = discovered()[:1]
	remote := newFakeRemote()
	h := newHarness(t, gw, remote)

	res, err := h.discovery.Run(t.Context(), SearchParams{Category: "cafe", Location: "Austin"})
	require.NoError(t, err)
	assert.Equal(t, "remote-1", res.Session.ID)
	assert.Equal(t, "remote-1", res.Businesses[0].SessionID)

	offline := NewDiscovery(DiscoveryDeps{Gateway: gw, Remote: storage.OfflineStore{}})
	res, err = offline.Run(t.Context(), SearchParams{Category: "cafe", Location: "Austin"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Session.ID, storage.LocalIDPrefix), res.Session.ID)

	remote.failAll = true
	res, err = h.discovery.Run(t.Context(), SearchParams{Category: "cafe", Location: "Austin"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Session.ID)
	assert.False(t, strings.HasPrefix(res.Session.ID, "remote-"))
}

func TestDiscoveryValidatesBeforeCalling(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	h := newHarness(t, gw, nil)

	_, err := h.discovery.Run(t.Context(), SearchParams{Location: "Austin", MinRating: 7, WebsiteFilter: "SOME"})
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []string{"category", "minimum rating between 0 and 5", "website filter NONE, POOR or ANY"}, pe.Missing)
	assert.Zero(t, gw.callCount())
}

func TestDiscoveryFailureIsBlockingAndCreatesNothing(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.setFail("discover_businesses", fmt.Errorf("discover_businesses: %w: %w", gateway.ErrGeneration, errUnreachable))
	remote := newFakeRemote()
	h := newHarness(t, gw, remote)

	res, err := h.discovery.Run(t.Context(), SearchParams{Category: "cafe", Location: "Austin"})
	assert.ErrorIs(t, err, gateway.ErrGeneration)
	assert.NotNil(t, res.Businesses)
	assert.Empty(t, res.Businesses)
	assert.Zero(t, remote.count("session"))

	notices := h.feed.List("")
	require.Len(t, notices, 1)
	assert.True(t, notices[0].Blocking)
}

func TestDiscoveryDegradesOnRemoteOutage(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.discover = discovered()[:1]
	remote := newFakeRemote()
	remote.failAll = true
	h := newHarness(t, gw, remote)

	res, err := h.discovery.Run(t.Context(), SearchParams{Category: "cafe", Location: "Austin"})
	require.NoError(t, err)
	require.Len(t, res.Businesses, 1)
	assert.NotEmpty(t, res.Session.ID)

	notices := h.feed.List("")
	require.Len(t, notices, 2)
	assert.Equal(t, domain.NoticeWarn, notices[0].Level)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RemoteWrites.WithLabelValues("session", metrics.OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RemoteWrites.WithLabelValues("business", metrics.OutcomeError)))
}

func TestEnrichMergesAdditively(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.enriched = domain.EnrichedData{Services: []string{"A"}, Emails: []string{"joe@example.com"}}
	remote := newFakeRemote()
	h := newHarness(t, gw, remote)
	p := h.open(t)
	ctx := t.Context()

	b, err := h.discovery.Enrich(ctx, joe.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, b.Enriched.Services)

	gw.mu.Lock()
	gw.enriched = domain.EnrichedData{Services: []string{}, Phones: []string{"555-0100"}}
	gw.mu.Unlock()

	b, err = h.discovery.Enrich(ctx, joe.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, b.Enriched.Services)
	assert.Equal(t, []string{"joe@example.com"}, b.Enriched.Emails)
	assert.Equal(t, []string{"555-0100"}, b.Enriched.Phones)

	assert.Equal(t, b, p.Snapshot().Business)
	stored, ok := h.controller.Directory().Business(joe.ID)
	require.True(t, ok)
	assert.Equal(t, b, stored)
	assert.Equal(t, 2, remote.count("business"))
	assert.Equal(t, 20, p.Completeness())
}

func TestConcurrentEnrichKeepsEveryField(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.enrichQ = []domain.EnrichedData{
		{Services: []string{"A"}},
		{Emails: []string{"joe@example.com"}},
	}
	gw.started = make(chan struct{})
	gw.release = make(chan struct{})
	h := newHarness(t, gw, nil)
	p := h.open(t)
	ctx := t.Context()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.discovery.Enrich(ctx, joe.ID)
			errs <- err
		}()
	}
	<-gw.started
	<-gw.started
	close(gw.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	want := &domain.EnrichedData{Services: []string{"A"}, Emails: []string{"joe@example.com"}}
	stored, ok := h.controller.Directory().Business(joe.ID)
	require.True(t, ok)
	assert.Equal(t, want, stored.Enriched)
	assert.Equal(t, want, p.Snapshot().Business.Enriched)
}

func TestEnrichRefreshesCachedBundleOfClosedPipeline(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.enriched = domain.EnrichedData{ExtraDetails: "Family run since 1998"}
	h := newHarness(t, gw, nil)
	h.open(t)
	require.True(t, h.controller.Close(joe.ID))

	_, err := h.discovery.Enrich(t.Context(), joe.ID)
	require.NoError(t, err)

	cached, ok, err := h.cache.Get(joe.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, cached.Business.Enriched)
	assert.Equal(t, "Family run since 1998", cached.Business.Enriched.ExtraDetails)
}

func TestEnrichUnknownBusiness(t *testing.T) {
	t.Parallel()

	h := newHarness(t, newFakeGateway(), nil)
	_, err := h.discovery.Enrich(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSuggestRegions(t *testing.T) {
	t.Parallel()

	h := newHarness(t, newFakeGateway(), nil)
	regions, err := h.discovery.SuggestRegions(t.Context(), "Austin")
	require.NoError(t, err)
	assert.Equal(t, []string{"Austin North", "Austin South"}, regions)

	_, err = h.discovery.SuggestRegions(t.Context(), " ")
	assert.ErrorIs(t, err, ErrPrecondition)
}
