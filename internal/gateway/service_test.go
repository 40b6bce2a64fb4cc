package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Prospector/internal/domain"
	"Prospector/internal/metrics"
	"Prospector/internal/normalize"
	"Prospector/internal/ports"
)

type stubGenerator struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []ports.GenerationRequest
}

func (s *stubGenerator) Name() string { return "stub" }

func (s *stubGenerator) Generate(_ context.Context, req ports.GenerationRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.reply, s.err
}

func (s *stubGenerator) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func newService(gen ports.Generator) (*Service, *metrics.Collectors) {
	m := metrics.New(prometheus.NewRegistry())
	return New(gen, Options{Model: "gemini-2.5-flash", CodeModel: "gemini-2.5-pro"}, m, nil), m
}

var joe = domain.Business{ID: "b1", Name: "Joe's Cafe", Rating: 4.5, WebsiteStatus: domain.WebsiteNone}

func TestDiscoverBusinessesUsesSearchTools(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{reply: "Here you go:\n```json\n[{\"name\":\"Joe's Cafe\",\"rating\":4.5,\"website_status\":\"none\"}]\n```"}
	svc, m := newService(gen)

	got, err := svc.DiscoverBusinesses(t.Context(), "cafe", "Austin", 4)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Joe's Cafe", got[0].Name)
	assert.Equal(t, domain.WebsiteNone, got[0].WebsiteStatus)

	require.Len(t, gen.requests, 1)
	assert.Equal(t, []ports.Tool{ports.ToolWebSearch, ports.ToolMapSearch}, gen.requests[0].Tools)
	assert.Contains(t, gen.requests[0].Prompt, "Austin")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayCalls.WithLabelValues(opDiscover, metrics.OutcomeOK)))
}

func TestFallbacksOnTransportFailure(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{err: errors.New("connection reset")}
	svc, m := newService(gen)
	ctx := t.Context()

	businesses, err := svc.DiscoverBusinesses(ctx, "cafe", "Austin", 4)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.NotNil(t, businesses)
	assert.Empty(t, businesses)

	enriched, err := svc.EnrichBusiness(ctx, joe)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.True(t, enriched.Empty())

	blueprint, err := svc.DraftWebsiteBlueprint(ctx, joe)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.NotEmpty(t, blueprint)
	assert.Contains(t, blueprint, "Joe's Cafe")

	revised, err := svc.ReviseBlueprint(ctx, "original", "more colour")
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Equal(t, "original", revised)

	site, err := svc.GenerateSiteMarkup(ctx, joe, "blueprint", ports.StyleOptions{})
	assert.ErrorIs(t, err, ErrGeneration)
	assert.True(t, strings.HasPrefix(site, "<!--"))

	markupRevision, err := svc.ReviseSiteMarkup(ctx, "<html></html>", "fix")
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Equal(t, "<html></html>", markupRevision)

	review, err := svc.CritiqueWebsite(ctx, ports.CritiqueInput{Markup: "<html></html>"})
	assert.ErrorIs(t, err, ErrGeneration)
	assert.True(t, review.Fallback)

	pkg, err := svc.DraftOutreach(ctx, joe, "https://joe.example", ports.OutreachOptions{})
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Equal(t, normalize.FallbackOutreach(), pkg)

	patch, err := svc.ReviseOutreachSection(ctx, "hi", "shorter", domain.SectionWhatsApp)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.True(t, patch.Empty())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayCalls.WithLabelValues(opCritique, metrics.OutcomeError)))
}

func TestCritiqueRejectsMissingOrDoubleInput(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{reply: `{"design_score": 90}`}
	svc, _ := newService(gen)

	review, err := svc.CritiqueWebsite(t.Context(), ports.CritiqueInput{URL: "https://joe.example"})
	assert.ErrorIs(t, err, ErrNoContent)
	assert.True(t, review.Fallback)

	_, err = svc.CritiqueWebsite(t.Context(), ports.CritiqueInput{Screenshot: "AQID", Markup: "<html></html>"})
	assert.ErrorIs(t, err, ErrNoContent)

	assert.Zero(t, gen.calls())
}

func TestCritiqueMarkupKeepsOnlyLiteralSnippets(t *testing.T) {
	t.Parallel()

	source := "<html><body><h1>Joe's Cafe</h1></body></html>"
	gen := &stubGenerator{reply: `{
		"visual_design_score": 80,
		"critique_points": [
			{"point": "Heading is plain", "related_code_snippet": "<h1>Joe's Cafe</h1>", "bounding_box": [0, 0, 100, 12]},
			{"point": "Footer missing", "related_code_snippet": "<footer>"}
		]
	}`}
	svc, _ := newService(gen)

	review, err := svc.CritiqueWebsite(t.Context(), ports.CritiqueInput{URL: "https://joe.example", Markup: source})
	require.NoError(t, err)
	assert.Equal(t, 80.0, review.VisualScore)
	require.Len(t, review.CritiquePoints, 2)
	assert.Equal(t, "<h1>Joe's Cafe</h1>", review.CritiquePoints[0].CodeSnippet)
	assert.Equal(t, domain.BoundingBox{Width: 100, Height: 12}, review.CritiquePoints[0].Box)
	assert.Empty(t, review.CritiquePoints[1].CodeSnippet)
	assert.Contains(t, gen.requests[0].Prompt, source)
	assert.Nil(t, gen.requests[0].Image)
}

func TestCritiqueScreenshotSendsInlineImage(t *testing.T) {
	t.Parallel()

	png := []byte("\x89PNG\r\n\x1a\n0000")
	gen := &stubGenerator{reply: `{"design_score": 7, "usability_score": 8, "visual_design_score": 9}`}
	svc, _ := newService(gen)

	shot := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	review, err := svc.CritiqueWebsite(t.Context(), ports.CritiqueInput{Screenshot: shot})
	require.NoError(t, err)
	assert.Equal(t, 70.0, review.DesignScore)
	assert.Equal(t, 90.0, review.VisualScore)

	require.NotNil(t, gen.requests[0].Image)
	assert.Equal(t, "image/png", gen.requests[0].Image.MIMEType)
	assert.Equal(t, png, gen.requests[0].Image.Data)
}

func TestCritiqueUnparseableReturnsFallbackReview(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{reply: "I cannot review this page."}
	svc, m := newService(gen)

	review, err := svc.CritiqueWebsite(t.Context(), ports.CritiqueInput{Markup: "<html></html>"})
	assert.ErrorIs(t, err, ErrUnparseable)
	assert.Equal(t, normalize.FallbackReview(), review)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayCalls.WithLabelValues(opCritique, metrics.OutcomeUnparseable)))
}

func TestGenerateSiteMarkupCleansFences(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{reply: "Sure!\n```html\n<!DOCTYPE html><html><head><title>Joe</title></head><body></body></html>\n```\nEnjoy."}
	svc, _ := newService(gen)

	site, err := svc.GenerateSiteMarkup(t.Context(), joe, "A cosy cafe site", ports.StyleOptions{Theme: "warm"})
	require.NoError(t, err)
	assert.Equal(t, "<!DOCTYPE html><html><head><title>Joe</title></head><body></body></html>", site)
	assert.Equal(t, "gemini-2.5-pro", gen.requests[0].Model)
	assert.Contains(t, gen.requests[0].Prompt, "theme warm")
}

func TestGenerateSiteMarkupWithoutDocumentFallsBack(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{reply: "I would suggest a hero section."}
	svc, _ := newService(gen)

	site, err := svc.GenerateSiteMarkup(t.Context(), joe, "bp", ports.StyleOptions{})
	assert.ErrorIs(t, err, ErrUnparseable)
	assert.Equal(t, PlaceholderMarkup(joe), site)

	revised, err := svc.ReviseSiteMarkup(t.Context(), "<html>old</html>", "fix")
	assert.ErrorIs(t, err, ErrUnparseable)
	assert.Equal(t, "<html>old</html>", revised)
}

func TestDraftBlueprintEmptyAnswerUsesPlaceholder(t *testing.T) {
	t.Parallel()

	svc, _ := newService(&stubGenerator{reply: "   "})
	text, err := svc.DraftWebsiteBlueprint(t.Context(), joe)
	assert.ErrorIs(t, err, ErrUnparseable)
	assert.Equal(t, PlaceholderBlueprint(joe), text)
}

func TestDraftOutreachAndSectionRevision(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{reply: `{"cold_email":{"subject":"A site for Joe's Cafe","body":"Hi Joe"},"whatsapp":{"message":"hi"},"call_script":"Hello"}`}
	svc, _ := newService(gen)

	pkg, err := svc.DraftOutreach(t.Context(), joe, "https://joe.example", ports.OutreachOptions{IncludeFollowUps: true})
	require.NoError(t, err)
	assert.Equal(t, "A site for Joe's Cafe", pkg.ColdEmail.Subject)
	assert.Equal(t, "hi", pkg.WhatsApp)
	assert.Contains(t, gen.requests[0].Prompt, "follow_ups")

	gen.reply = `{"whatsapp": "Hey Joe, quick one"}`
	patch, err := svc.ReviseOutreachSection(t.Context(), pkg.WhatsApp, "more casual", domain.SectionWhatsApp)
	require.NoError(t, err)
	require.NotNil(t, patch.WhatsApp)
	assert.Equal(t, "Hey Joe, quick one", *patch.WhatsApp)

	_, err = svc.ReviseOutreachSection(t.Context(), "", "", domain.OutreachSection("fax"))
	assert.Error(t, err)
}

func TestNilGeneratorFailsSoft(t *testing.T) {
	t.Parallel()

	svc := New(nil, Options{}, nil, nil)
	regions, err := svc.SuggestRegions(t.Context(), "Austin")
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Equal(t, []string{}, regions)
}

func TestDecodeScreenshot(t *testing.T) {
	t.Parallel()

	img, err := DecodeScreenshot(base64.StdEncoding.EncodeToString([]byte("\xff\xd8\xff\xe0jpeg")))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)

	_, err = DecodeScreenshot("data:image/png;base64")
	assert.Error(t, err)

	_, err = DecodeScreenshot("not base64 !!")
	assert.Error(t, err)
}
