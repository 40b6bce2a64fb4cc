package domain

import "time"

// WebsiteStatus classifies the web presence found for a business.
type WebsiteStatus string

const (
	WebsiteNone    WebsiteStatus = "NONE"
	WebsitePoor    WebsiteStatus = "POOR"
	WebsiteGood    WebsiteStatus = "GOOD"
	WebsiteUnknown WebsiteStatus = "UNKNOWN"
)

// ParseWebsiteStatus maps loosely formatted model output onto the enumeration.
func ParseWebsiteStatus(value string) WebsiteStatus {
	switch WebsiteStatus(upper(value)) {
	case WebsiteNone:
		return WebsiteNone
	case WebsitePoor:
		return WebsitePoor
	case WebsiteGood:
		return WebsiteGood
	default:
		return WebsiteUnknown
	}
}

// WebsiteFilter is the website-presence filter applied to a discovery search.
type WebsiteFilter string

const (
	FilterNone WebsiteFilter = "NONE"
	FilterPoor WebsiteFilter = "POOR"
	FilterAny  WebsiteFilter = "ANY"
)

// Accepts reports whether a business with the given status passes the filter.
// POOR accepts businesses without any website as well.
func (f WebsiteFilter) Accepts(status WebsiteStatus) bool {
	switch f {
	case FilterNone:
		return status == WebsiteNone
	case FilterPoor:
		return status == WebsiteNone || status == WebsitePoor
	default:
		return true
	}
}

// SessionStatus is the lifecycle state of a discovery session.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionArchived SessionStatus = "archived"
)

// Session represents one discovery query.
type Session struct {
	ID            string        `json:"id"`
	CreatedAt     time.Time     `json:"created_at"`
	Category      string        `json:"category"`
	Location      string        `json:"location"`
	MinRating     float64       `json:"min_rating"`
	MaxRating     float64       `json:"max_rating"`
	WebsiteFilter WebsiteFilter `json:"website_filter"`
	MinReviews    int           `json:"min_reviews"`
	IncludeMedia  bool          `json:"include_media"`
	Status        SessionStatus `json:"status"`
}

// Business is one discovered prospect.
type Business struct {
	ID            string        `json:"id"`
	SessionID     string        `json:"session_id"`
	Name          string        `json:"name"`
	Address       string        `json:"address"`
	Rating        float64       `json:"rating"`
	ReviewCount   int           `json:"review_count"`
	WebsiteStatus WebsiteStatus `json:"website_status"`
	Description   string        `json:"description"`
	Phone         string        `json:"phone,omitempty"`
	MapsURI       string        `json:"maps_uri,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	Enriched      *EnrichedData `json:"enriched_data,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// EnrichedData holds contact, service and media details gathered after discovery.
type EnrichedData struct {
	SocialLinks  []string `json:"social_links,omitempty"`
	Emails       []string `json:"emails,omitempty"`
	Phones       []string `json:"phones,omitempty"`
	Services     []string `json:"services,omitempty"`
	Media        []string `json:"media,omitempty"`
	ExtraDetails string   `json:"extra_details,omitempty"`
}

// Empty reports whether no field carries data.
func (e *EnrichedData) Empty() bool {
	if e == nil {
		return true
	}
	return len(e.SocialLinks) == 0 && len(e.Emails) == 0 && len(e.Phones) == 0 &&
		len(e.Services) == 0 && len(e.Media) == 0 && e.ExtraDetails == ""
}

// Merge returns a copy of e with every non-empty field of next applied.
// A populated field is never replaced by an empty one.
func (e *EnrichedData) Merge(next EnrichedData) EnrichedData {
	var merged EnrichedData
	if e != nil {
		merged = *e
	}
	merged.SocialLinks = pickList(next.SocialLinks, merged.SocialLinks)
	merged.Emails = pickList(next.Emails, merged.Emails)
	merged.Phones = pickList(next.Phones, merged.Phones)
	merged.Services = pickList(next.Services, merged.Services)
	merged.Media = pickList(next.Media, merged.Media)
	if next.ExtraDetails != "" {
		merged.ExtraDetails = next.ExtraDetails
	}
	return merged
}

// ApplyEnrichment merges next into the business' enriched data.
func (b *Business) ApplyEnrichment(next EnrichedData) {
	merged := b.Enriched.Merge(next)
	b.Enriched = &merged
}

func pickList(next, prev []string) []string {
	if len(next) > 0 {
		return append([]string(nil), next...)
	}
	return prev
}
