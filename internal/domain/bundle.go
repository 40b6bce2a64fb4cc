package domain

import "time"

// Bundle aggregates the pipeline artifacts of one business. It is the unit
// written to the local cache.
type Bundle struct {
	BusinessID        string           `json:"business_id"`
	Stage             Stage            `json:"stage"`
	Reached           Stage            `json:"reached"`
	Blueprint         string           `json:"blueprint"`
	BlueprintApproved bool             `json:"blueprint_approved"`
	Markup            string           `json:"markup"`
	URL               string           `json:"url"`
	Screenshot        string           `json:"screenshot,omitempty"`
	Review            *WebsiteReview   `json:"review,omitempty"`
	Outreach          *OutreachPackage `json:"outreach,omitempty"`
	Business          Business         `json:"business"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// NewBundle starts a business at PROMPT.
func NewBundle(b Business) Bundle {
	return Bundle{
		BusinessID: b.ID,
		Stage:      StagePrompt,
		Reached:    StagePrompt,
		Business:   b,
	}
}

// Advance moves the bundle to stage s and extends the furthest-reached stage.
func (b *Bundle) Advance(s Stage) {
	b.Stage = s
	if s > b.Reached {
		b.Reached = s
	}
}

// HasSite reports whether a website exists either as markup or as a URL.
func (b Bundle) HasSite() bool {
	return b.Markup != "" || b.URL != ""
}

// Clone returns a deep copy safe to hand to other goroutines.
func (b Bundle) Clone() Bundle {
	out := b
	if b.Review != nil {
		r := *b.Review
		r.Strengths = append([]string(nil), b.Review.Strengths...)
		r.Issues = append([]string(nil), b.Review.Issues...)
		r.Recommendations = append([]string(nil), b.Review.Recommendations...)
		r.CritiquePoints = append([]CritiquePoint(nil), b.Review.CritiquePoints...)
		out.Review = &r
	}
	if b.Outreach != nil {
		o := *b.Outreach
		o.FollowUps = append([]FollowUp(nil), b.Outreach.FollowUps...)
		o.Objections = append([]Objection(nil), b.Outreach.Objections...)
		out.Outreach = &o
	}
	if b.Business.Enriched != nil {
		e := *b.Business.Enriched
		out.Business.Enriched = &e
	}
	return out
}

// Completeness is an informational score: 20 points each for enriched data,
// blueprint, site, review and outreach.
func (b Bundle) Completeness() int {
	score := 0
	if !b.Business.Enriched.Empty() {
		score += 20
	}
	if b.Blueprint != "" {
		score += 20
	}
	if b.HasSite() {
		score += 20
	}
	if b.Review != nil {
		score += 20
	}
	if b.Outreach != nil {
		score += 20
	}
	return score
}
