// Package gateway issues generation requests for every pipeline step and
// reshapes the answers into domain values. Every operation fails soft: on
// error it still returns its documented fallback value.
package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"Prospector/internal/domain"
	"Prospector/internal/infrastructure/markup"
	"Prospector/internal/logging"
	"Prospector/internal/metrics"
	"Prospector/internal/normalize"
	"Prospector/internal/ports"
)

var (
	// ErrGeneration marks a failed round trip to the generation back end.
	ErrGeneration = errors.New("generation failed")
	// ErrUnparseable marks a response that could not be reshaped.
	ErrUnparseable = errors.New("unparseable generation response")
	// ErrNoContent is returned when a critique has no single source to review.
	ErrNoContent = errors.New("no content to review")
)

const (
	opDiscover        = "discover_businesses"
	opEnrich          = "enrich_business"
	opRegions         = "suggest_regions"
	opBlueprint       = "draft_blueprint"
	opReviseBlueprint = "revise_blueprint"
	opMarkup          = "generate_site_markup"
	opReviseMarkup    = "revise_site_markup"
	opCritique        = "critique_website"
	opOutreach        = "draft_outreach"
	opReviseSection   = "revise_outreach_section"
)

// Options tune throttling and model selection.
type Options struct {
	RequestsPerMinute int
	Timeout           time.Duration
	Model             string
	CodeModel         string
}

// Service implements ports.Gateway on top of a Generator.
type Service struct {
	gen       ports.Generator
	limiter   *rate.Limiter
	timeout   time.Duration
	model     string
	codeModel string
	metrics   *metrics.Collectors
	logger    *slog.Logger
}

var _ ports.Gateway = (*Service)(nil)

// New builds a gateway. A zero RequestsPerMinute disables throttling.
func New(gen ports.Generator, opts Options, m *metrics.Collectors, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), 1)
	}
	codeModel := opts.CodeModel
	if codeModel == "" {
		codeModel = opts.Model
	}
	return &Service{
		gen:       gen,
		limiter:   limiter,
		timeout:   opts.Timeout,
		model:     opts.Model,
		codeModel: codeModel,
		metrics:   m,
		logger:    logger,
	}
}

// DiscoverBusinesses searches for prospects. Fallback: empty list.
func (s *Service) DiscoverBusinesses(ctx context.Context, category, location string, minRating float64) ([]domain.Business, error) {
	raw, err := s.generate(ctx, opDiscover, ports.GenerationRequest{
		Model:  s.model,
		Prompt: fmt.Sprintf(discoverPrompt, category, location, minRating),
		Format: ports.FormatJSON,
		Tools:  []ports.Tool{ports.ToolWebSearch, ports.ToolMapSearch},
	})
	if err != nil {
		return []domain.Business{}, s.finish(opDiscover, "", err)
	}
	businesses, ok := normalize.Businesses(raw)
	if !ok {
		return []domain.Business{}, s.finish(opDiscover, "", ErrUnparseable)
	}
	return businesses, s.finish(opDiscover, "", nil)
}

// EnrichBusiness gathers extra details. Fallback: empty partial.
func (s *Service) EnrichBusiness(ctx context.Context, business domain.Business) (domain.EnrichedData, error) {
	raw, err := s.generate(ctx, opEnrich, ports.GenerationRequest{
		Model:  s.model,
		Prompt: fmt.Sprintf(enrichPrompt, describeBusiness(business)),
		Format: ports.FormatJSON,
		Tools:  []ports.Tool{ports.ToolWebSearch},
	})
	if err != nil {
		return domain.EnrichedData{}, s.finish(opEnrich, business.ID, err)
	}
	data, ok := normalize.Enrichment(raw)
	if !ok {
		return domain.EnrichedData{}, s.finish(opEnrich, business.ID, ErrUnparseable)
	}
	return data, s.finish(opEnrich, business.ID, nil)
}

// SuggestRegions splits a broad location into searchable sub-areas.
// Fallback: empty list.
func (s *Service) SuggestRegions(ctx context.Context, location string) ([]string, error) {
	raw, err := s.generate(ctx, opRegions, ports.GenerationRequest{
		Model:  s.model,
		Prompt: fmt.Sprintf(regionsPrompt, location),
		Format: ports.FormatJSON,
	})
	if err != nil {
		return []string{}, s.finish(opRegions, "", err)
	}
	regions, ok := normalize.Regions(raw)
	if !ok {
		return []string{}, s.finish(opRegions, "", ErrUnparseable)
	}
	return regions, s.finish(opRegions, "", nil)
}

// DraftWebsiteBlueprint writes a textual blueprint. Fallback: an explanatory
// placeholder, never empty.
func (s *Service) DraftWebsiteBlueprint(ctx context.Context, business domain.Business) (string, error) {
	raw, err := s.generate(ctx, opBlueprint, ports.GenerationRequest{
		Model:  s.model,
		Prompt: fmt.Sprintf(blueprintPrompt, describeBusiness(business)),
		Format: ports.FormatText,
	})
	if err == nil && strings.TrimSpace(raw) == "" {
		err = ErrUnparseable
	}
	if err != nil {
		return PlaceholderBlueprint(business), s.finish(opBlueprint, business.ID, err)
	}
	return strings.TrimSpace(raw), s.finish(opBlueprint, business.ID, nil)
}

// ReviseBlueprint applies feedback. Fallback: current, unchanged.
func (s *Service) ReviseBlueprint(ctx context.Context, current, feedback string) (string, error) {
	raw, err := s.generate(ctx, opReviseBlueprint, ports.GenerationRequest{
		Model:  s.model,
		Prompt: fmt.Sprintf(reviseBlueprintPrompt, current, feedback),
		Format: ports.FormatText,
	})
	if err == nil && strings.TrimSpace(raw) == "" {
		err = ErrUnparseable
	}
	if err != nil {
		return current, s.finish(opReviseBlueprint, "", err)
	}
	return strings.TrimSpace(raw), s.finish(opReviseBlueprint, "", nil)
}

// GenerateSiteMarkup builds the website. The answer must contain an HTML
// document. Fallback: a comment-only placeholder.
func (s *Service) GenerateSiteMarkup(ctx context.Context, business domain.Business, blueprint string, style ports.StyleOptions) (string, error) {
	raw, err := s.generate(ctx, opMarkup, ports.GenerationRequest{
		Model:  s.codeModel,
		Prompt: fmt.Sprintf(markupPrompt, describeBusiness(business), blueprint, describeStyle(style)),
		Format: ports.FormatText,
	})
	if err != nil {
		return PlaceholderMarkup(business), s.finish(opMarkup, business.ID, err)
	}
	doc := markup.Clean(raw)
	if !markup.HasDocument(doc) {
		return PlaceholderMarkup(business), s.finish(opMarkup, business.ID, ErrUnparseable)
	}
	if report, err := markup.Inspect(doc); err == nil {
		s.logger.Debug("site markup generated", "business_id", business.ID,
			"title", report.Title, "sections", report.Sections, "images", report.Images)
	}
	return doc, s.finish(opMarkup, business.ID, nil)
}

// ReviseSiteMarkup applies instructions. Fallback: current, unchanged.
func (s *Service) ReviseSiteMarkup(ctx context.Context, current, instructions string) (string, error) {
	raw, err := s.generate(ctx, opReviseMarkup, ports.GenerationRequest{
		Model:  s.codeModel,
		Prompt: fmt.Sprintf(reviseMarkupPrompt, instructions, current),
		Format: ports.FormatText,
	})
	if err != nil {
		return current, s.finish(opReviseMarkup, "", err)
	}
	doc := markup.Clean(raw)
	if !markup.HasDocument(doc) {
		return current, s.finish(opReviseMarkup, "", ErrUnparseable)
	}
	return doc, s.finish(opReviseMarkup, "", nil)
}

// CritiqueWebsite reviews exactly one of a screenshot or markup. Supplying
// neither or both is rejected before any request. Fallback: FallbackReview.
func (s *Service) CritiqueWebsite(ctx context.Context, in ports.CritiqueInput) (domain.WebsiteReview, error) {
	hasShot, hasMarkup := strings.TrimSpace(in.Screenshot) != "", strings.TrimSpace(in.Markup) != ""
	if hasShot == hasMarkup {
		if hasShot {
			return normalize.FallbackReview(), fmt.Errorf("%w: supply a screenshot or markup, not both", ErrNoContent)
		}
		return normalize.FallbackReview(), ErrNoContent
	}

	req := ports.GenerationRequest{
		Model:  s.model,
		Prompt: critiqueRequest(in),
		Format: ports.FormatJSON,
	}
	if hasShot {
		image, err := DecodeScreenshot(in.Screenshot)
		if err != nil {
			return normalize.FallbackReview(), fmt.Errorf("%w: %v", ErrNoContent, err)
		}
		req.Image = image
	}

	raw, err := s.generate(ctx, opCritique, req)
	if err != nil {
		return normalize.FallbackReview(), s.finish(opCritique, "", err)
	}
	review, ok := normalize.Review(raw)
	if !ok {
		return review, s.finish(opCritique, "", ErrUnparseable)
	}
	if hasMarkup {
		dropForeignSnippets(&review, in.Markup)
	}
	return review, s.finish(opCritique, "", nil)
}

// DraftOutreach writes sales copy. Fallback: FallbackOutreach.
func (s *Service) DraftOutreach(ctx context.Context, business domain.Business, websiteURL string, opts ports.OutreachOptions) (domain.OutreachPackage, error) {
	raw, err := s.generate(ctx, opOutreach, ports.GenerationRequest{
		Model:  s.model,
		Prompt: outreachRequest(business, websiteURL, opts),
		Format: ports.FormatJSON,
	})
	if err != nil {
		return normalize.FallbackOutreach(), s.finish(opOutreach, business.ID, err)
	}
	pkg, ok := normalize.Outreach(raw)
	if !ok {
		return pkg, s.finish(opOutreach, business.ID, ErrUnparseable)
	}
	return pkg, s.finish(opOutreach, business.ID, nil)
}

// ReviseOutreachSection rewrites one section. Fallback: empty patch.
func (s *Service) ReviseOutreachSection(ctx context.Context, current, feedback string, section domain.OutreachSection) (domain.OutreachPatch, error) {
	shape, known := sectionShapes[section]
	if !known {
		return domain.OutreachPatch{}, fmt.Errorf("unknown outreach section %q", section)
	}
	raw, err := s.generate(ctx, opReviseSection, ports.GenerationRequest{
		Model:  s.model,
		Prompt: fmt.Sprintf(reviseSectionPrompt, shape.label, shape.label, current, feedback, shape.shape),
		Format: ports.FormatJSON,
	})
	if err != nil {
		return domain.OutreachPatch{}, s.finish(opReviseSection, "", err)
	}
	patch, ok := normalize.OutreachSection(raw, section)
	if !ok {
		return domain.OutreachPatch{}, s.finish(opReviseSection, "", ErrUnparseable)
	}
	return patch, s.finish(opReviseSection, "", nil)
}

func (s *Service) generate(ctx context.Context, op string, req ports.GenerationRequest) (string, error) {
	if s.gen == nil {
		return "", fmt.Errorf("%s: %w: no generator configured", op, ErrGeneration)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%s: %w: rate limiter: %w", op, ErrGeneration, err)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	raw, err := s.gen.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrGeneration, err)
	}
	return raw, nil
}

// finish records the outcome of op and passes err through.
func (s *Service) finish(op, businessID string, err error) error {
	switch {
	case err == nil:
		s.metrics.GatewayCall(op, metrics.OutcomeOK)
		return nil
	case errors.Is(err, ErrUnparseable):
		s.metrics.GatewayCall(op, metrics.OutcomeUnparseable)
		err = fmt.Errorf("%s: %w", op, err)
	default:
		s.metrics.GatewayCall(op, metrics.OutcomeError)
	}
	s.logger.Warn("generation step failed", "operation", op, "business_id", businessID, "error", err)
	return err
}

// dropForeignSnippets clears code references that do not occur in the
// reviewed source, so highlighting never points at invented code.
func dropForeignSnippets(review *domain.WebsiteReview, source string) {
	for i := range review.CritiquePoints {
		if !markup.ContainsSnippet(source, review.CritiquePoints[i].CodeSnippet) {
			review.CritiquePoints[i].CodeSnippet = ""
		}
	}
}

// DecodeScreenshot accepts raw base64 or a data URL.
func DecodeScreenshot(encoded string) (*ports.InlineImage, error) {
	encoded = strings.TrimSpace(encoded)
	mimeType := ""
	if strings.HasPrefix(encoded, "data:") {
		header, payload, found := strings.Cut(encoded, ",")
		if !found {
			return nil, fmt.Errorf("malformed data url")
		}
		mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		encoded = payload
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return &ports.InlineImage{MIMEType: mimeType, Data: data}, nil
}

// PlaceholderBlueprint is the text stored when a blueprint cannot be drafted.
func PlaceholderBlueprint(b domain.Business) string {
	return fmt.Sprintf("Blueprint generation failed for %s. Write the blueprint manually or retry the draft.", b.Name)
}

// PlaceholderMarkup is the comment-only document stored when markup cannot be
// generated.
func PlaceholderMarkup(b domain.Business) string {
	name := strings.ReplaceAll(b.Name, "--", "-")
	return fmt.Sprintf("<!-- Website generation failed for %s. Revise the blueprint and retry. -->", name)
}
