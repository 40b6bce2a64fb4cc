package ports

import (
	"context"
	"time"

	"Prospector/internal/domain"
)

// ResponseFormat hints how the model should shape its answer.
type ResponseFormat string

const (
	FormatText ResponseFormat = "text"
	FormatJSON ResponseFormat = "json"
)

// Tool enables a model-side augmentation.
type Tool string

const (
	ToolWebSearch Tool = "web_search"
	ToolMapSearch Tool = "map_search"
)

// InlineImage is binary content sent alongside a prompt.
type InlineImage struct {
	MIMEType string
	Data     []byte
}

// GenerationRequest is one call to a text-generation back end.
type GenerationRequest struct {
	Model  string
	Prompt string
	Image  *InlineImage
	Format ResponseFormat
	Tools  []Tool
}

// Generator sends prompts to an LLM back end and returns its raw text.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// StyleOptions steer markup generation.
type StyleOptions struct {
	Theme        string `json:"theme"`
	PrimaryColor string `json:"primary_color"`
	Font         string `json:"font"`
	IncludeMedia bool   `json:"include_media"`
}

// OutreachOptions steer outreach copywriting.
type OutreachOptions struct {
	SenderName        string `json:"sender_name"`
	Tone              string `json:"tone"`
	Language          string `json:"language"`
	IncludeFollowUps  bool   `json:"include_follow_ups"`
	IncludeObjections bool   `json:"include_objections"`
}

// CritiqueInput carries exactly one of Screenshot (base64 image) or Markup.
type CritiqueInput struct {
	URL        string
	Screenshot string
	Markup     string
}

// Gateway exposes every generation step of the pipeline. Each method returns
// its documented fallback value together with a non-nil error on failure.
type Gateway interface {
	DiscoverBusinesses(ctx context.Context, category, location string, minRating float64) ([]domain.Business, error)
	EnrichBusiness(ctx context.Context, business domain.Business) (domain.EnrichedData, error)
	SuggestRegions(ctx context.Context, location string) ([]string, error)
	DraftWebsiteBlueprint(ctx context.Context, business domain.Business) (string, error)
	ReviseBlueprint(ctx context.Context, current, feedback string) (string, error)
	GenerateSiteMarkup(ctx context.Context, business domain.Business, blueprint string, style StyleOptions) (string, error)
	ReviseSiteMarkup(ctx context.Context, current, instructions string) (string, error)
	CritiqueWebsite(ctx context.Context, in CritiqueInput) (domain.WebsiteReview, error)
	DraftOutreach(ctx context.Context, business domain.Business, websiteURL string, opts OutreachOptions) (domain.OutreachPackage, error)
	ReviseOutreachSection(ctx context.Context, current, feedback string, section domain.OutreachSection) (domain.OutreachPatch, error)
}

// BundleCache is the local tier. Writes are synchronous.
type BundleCache interface {
	Put(bundle domain.Bundle) error
	Get(businessID string) (domain.Bundle, bool, error)
	List() ([]domain.Bundle, error)
	Delete(businessID string) error
}

// RemoteStore is the remote tier. Per-business records are upserted keyed by
// business id.
type RemoteStore interface {
	Enabled() bool
	CreateSession(ctx context.Context, session domain.Session) (string, error)
	CreateBusinesses(ctx context.Context, businesses []domain.Business) error
	UpdateBusiness(ctx context.Context, business domain.Business) error
	UpsertPrompt(ctx context.Context, rec domain.PromptRecord) error
	UpsertWebsite(ctx context.Context, rec domain.WebsiteRecord) error
	UpsertReview(ctx context.Context, businessID string, review domain.WebsiteReview) error
	UpsertOutreach(ctx context.Context, businessID string, pkg domain.OutreachPackage) error
}

// Notifier delivers operator notices.
type Notifier interface {
	Notify(ctx context.Context, notice domain.Notice) error
}

// ScreenshotCapturer renders a URL into a base64-encoded image.
type ScreenshotCapturer interface {
	Capture(ctx context.Context, url string) (string, error)
}

// LocationSuggester proposes locations for a partially typed query.
type LocationSuggester interface {
	Suggest(ctx context.Context, input string) ([]string, error)
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
