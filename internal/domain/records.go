package domain

import "time"

// RecordKind names a per-business record persisted to the remote tier.
type RecordKind string

const (
	KindPrompt   RecordKind = "prompt"
	KindWebsite  RecordKind = "website"
	KindReview   RecordKind = "review"
	KindOutreach RecordKind = "outreach"
)

// RecordKinds lists the upserted kinds in pipeline order.
func RecordKinds() []RecordKind {
	return []RecordKind{KindPrompt, KindWebsite, KindReview, KindOutreach}
}

// PromptRecord is the remote row for a blueprint.
type PromptRecord struct {
	BusinessID string
	Blueprint  string
	Approved   bool
}

// WebsiteRecord is the remote row for a generated site.
type WebsiteRecord struct {
	BusinessID string
	URL        string
	Markup     string
	Screenshot string
}

// NoticeLevel grades operator notices.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeWarn  NoticeLevel = "warn"
	NoticeError NoticeLevel = "error"
)

// Notice is an operator-facing message. Blocking notices must be acknowledged
// before the operator continues.
type Notice struct {
	BusinessID string      `json:"business_id,omitempty"`
	Level      NoticeLevel `json:"level"`
	Step       string      `json:"step"`
	Message    string      `json:"message"`
	Blocking   bool        `json:"blocking"`
	At         time.Time   `json:"at"`
}
