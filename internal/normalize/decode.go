package normalize

import (
	"sort"
	"strings"

	"Prospector/internal/domain"
)

// Businesses decodes a discovery response. Elements without a name are dropped.
func Businesses(raw string) ([]domain.Business, bool) {
	items, ok := Array(raw)
	out := make([]domain.Business, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			if name := strings.TrimSpace(t); name != "" {
				out = append(out, domain.Business{Name: name, WebsiteStatus: domain.WebsiteUnknown})
			}
		case map[string]any:
			b := business(t)
			if b.Name != "" {
				out = append(out, b)
			}
		}
	}
	return out, ok
}

func business(obj map[string]any) domain.Business {
	b := domain.Business{
		Name:          Text(Field(obj, "name", "business_name", "title")),
		Address:       Text(Field(obj, "address", "formatted_address", "location")),
		Rating:        Number(Field(obj, "rating", "stars")),
		ReviewCount:   Integer(Field(obj, "review_count", "reviewCount", "reviews", "user_ratings_total")),
		WebsiteStatus: domain.ParseWebsiteStatus(Text(Field(obj, "website_status", "websiteStatus"))),
		Description:   Text(Field(obj, "description", "summary")),
		Phone:         Text(Field(obj, "phone", "phone_number", "phoneNumber")),
		MapsURI:       Text(Field(obj, "maps_uri", "google_maps_uri", "mapsUri", "maps_url")),
		Notes:         Text(Field(obj, "notes")),
	}
	if nested, ok := Field(obj, "enriched_data", "enrichedData").(map[string]any); ok {
		data := enrichment(nested)
		if !data.Empty() {
			b.Enriched = &data
		}
	}
	return b
}

// Enrichment decodes an enrichment response into a partial EnrichedData.
func Enrichment(raw string) (domain.EnrichedData, bool) {
	obj, ok := Object(raw)
	if !ok {
		return domain.EnrichedData{}, false
	}
	return enrichment(obj), true
}

func enrichment(obj map[string]any) domain.EnrichedData {
	return domain.EnrichedData{
		SocialLinks:  links(Field(obj, "social_links", "socialLinks", "social_media", "socials")),
		Emails:       Strings(Field(obj, "emails", "email")),
		Phones:       Strings(Field(obj, "phones", "phone_numbers", "phone")),
		Services:     Strings(Field(obj, "services", "offerings")),
		Media:        links(Field(obj, "media", "media_urls", "images", "photos")),
		ExtraDetails: Text(Field(obj, "extra_details", "extraDetails", "additional_info", "details")),
	}
}

// links accepts either a list or a platform->url object.
func links(v any) []string {
	m, ok := v.(map[string]any)
	if !ok {
		list, isList := v.([]any)
		if !isList {
			return Strings(v)
		}
		out := make([]string, 0, len(list))
		for _, el := range list {
			if obj, isObj := el.(map[string]any); isObj {
				if u := Text(Field(obj, "url", "link", "href")); !blank(u) {
					out = append(out, u)
					continue
				}
			}
			if s := element(el); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if s := Text(m[k]); !blank(s) {
			out = append(out, s)
		}
	}
	return out
}

// Regions decodes a list of region names.
func Regions(raw string) ([]string, bool) {
	items, ok := Array(raw)
	return Strings(items), ok
}

var reviewKeys = []string{
	"design_score", "usability_score", "visual_design_score", "visual_score", "scores",
	"strengths", "issues", "recommendations", "critique_points", "approved",
}

// Review decodes a critique response. Unparseable payloads yield FallbackReview.
func Review(raw string) (domain.WebsiteReview, bool) {
	obj, ok := Object(raw)
	if !ok || !hasAny(obj, reviewKeys) {
		return FallbackReview(), false
	}

	scores := Nested(obj, "scores")
	review := domain.WebsiteReview{
		DesignScore:     Number(firstOf(obj, scores, "design_score", "design")),
		UsabilityScore:  Number(firstOf(obj, scores, "usability_score", "usability")),
		VisualScore:     Number(firstOf(obj, scores, "visual_design_score", "visual_score", "visual")),
		Summary:         Text(Field(obj, "summary", "overall", "verdict")),
		Strengths:       Strings(Field(obj, "strengths")),
		Issues:          Strings(Field(obj, "issues", "weaknesses")),
		Recommendations: Strings(Field(obj, "recommendations", "suggestions")),
		CritiquePoints:  critiquePoints(Field(obj, "critique_points", "critiquePoints", "points")),
	}
	normalizeScale(&review)

	if approved, has := Boolean(Field(obj, "approved", "is_approved")); has {
		review.Approved = approved
	} else {
		review.Approved = review.AverageScore() >= domain.ApprovalThreshold
	}
	return review, true
}

func firstOf(obj, nested map[string]any, keys ...string) any {
	if v := Field(obj, keys...); v != nil {
		return v
	}
	return Field(nested, keys...)
}

// normalizeScale lifts 0-10 scores onto the 0-100 scale and clamps.
func normalizeScale(r *domain.WebsiteReview) {
	scores := []*float64{&r.DesignScore, &r.UsabilityScore, &r.VisualScore}
	small, positive := true, false
	for _, s := range scores {
		if *s > 10 {
			small = false
		}
		if *s > 0 {
			positive = true
		}
	}
	for _, s := range scores {
		if small && positive {
			*s *= 10
		}
		*s = clamp(*s)
	}
}

func critiquePoints(v any) []domain.CritiquePoint {
	list, ok := v.([]any)
	if !ok {
		return []domain.CritiquePoint{}
	}
	out := make([]domain.CritiquePoint, 0, len(list))
	for _, el := range list {
		switch t := el.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, domain.CritiquePoint{Point: s})
			}
		case map[string]any:
			p := domain.CritiquePoint{
				Point:       element(t),
				Severity:    Text(Field(t, "severity", "priority")),
				Box:         box(Field(t, "bounding_box", "boundingBox", "box", "region")),
				CodeSnippet: Text(Field(t, "related_code_snippet", "code_snippet", "codeSnippet")),
			}
			if p.Point != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// box accepts {x,y,width,height}, {left,top,width,height} or a four element
// array and clamps every coordinate to 0-100.
func box(v any) domain.BoundingBox {
	var b domain.BoundingBox
	switch t := v.(type) {
	case []any:
		if len(t) != 4 {
			return b
		}
		b = domain.BoundingBox{X: Number(t[0]), Y: Number(t[1]), Width: Number(t[2]), Height: Number(t[3])}
	case map[string]any:
		b = domain.BoundingBox{
			X:      Number(Field(t, "x", "left")),
			Y:      Number(Field(t, "y", "top")),
			Width:  Number(Field(t, "width", "w")),
			Height: Number(Field(t, "height", "h")),
		}
	default:
		return b
	}
	b.X, b.Y, b.Width, b.Height = clamp(b.X), clamp(b.Y), clamp(b.Width), clamp(b.Height)
	return b
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// Outreach decodes an outreach response. Unparseable payloads yield
// FallbackOutreach.
func Outreach(raw string) (domain.OutreachPackage, bool) {
	obj, ok := Object(raw)
	if !ok {
		return FallbackOutreach(), false
	}
	pkg := domain.OutreachPackage{
		ColdEmail:  email(Field(obj, "cold_email", "coldEmail", "email")),
		WhatsApp:   Text(Field(obj, "whatsapp", "whatsapp_message", "whatsappMessage")),
		CallScript: Text(Field(obj, "call_script", "callScript", "phone_script")),
		FollowUps:  followUps(Field(obj, "follow_ups", "followUps", "follow_up_emails", "followups")),
		Objections: objections(Field(obj, "objections", "objection_handling", "objectionHandling")),
	}
	if pkg.ColdEmail.Subject == "" && pkg.ColdEmail.Body == "" && pkg.WhatsApp == "" && pkg.CallScript == "" {
		return FallbackOutreach(), false
	}
	return pkg, true
}

func email(v any) domain.Email {
	switch t := v.(type) {
	case map[string]any:
		return domain.Email{
			Subject: Text(Field(t, "subject", "title")),
			Body:    Text(Field(t, "body", "content", "text", "message")),
		}
	case string:
		return domain.Email{Body: strings.TrimSpace(t)}
	}
	return domain.Email{}
}

func followUps(v any) []domain.FollowUp {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]domain.FollowUp, 0, len(list))
	for _, el := range list {
		obj, isObj := el.(map[string]any)
		if !isObj {
			if s := Text(el); !blank(s) {
				out = append(out, domain.FollowUp{Body: s})
			}
			continue
		}
		f := followUp(obj)
		if f.Subject != "" || f.Body != "" {
			out = append(out, f)
		}
	}
	return out
}

func followUp(obj map[string]any) domain.FollowUp {
	return domain.FollowUp{
		Subject: Text(Field(obj, "subject", "title")),
		Body:    Text(Field(obj, "body", "content", "message")),
		Delay:   Text(Field(obj, "delay", "timing", "send_after", "day")),
	}
}

func objections(v any) []domain.Objection {
	switch t := v.(type) {
	case []any:
		out := make([]domain.Objection, 0, len(t))
		for _, el := range t {
			obj, ok := el.(map[string]any)
			if !ok {
				continue
			}
			o := domain.Objection{
				Objection: Text(Field(obj, "objection", "question")),
				Response:  Text(Field(obj, "response", "answer", "reply")),
			}
			if o.Objection != "" {
				out = append(out, o)
			}
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]domain.Objection, 0, len(keys))
		for _, k := range keys {
			out = append(out, domain.Objection{Objection: k, Response: Text(t[k])})
		}
		return out
	}
	return nil
}

// OutreachSection decodes a single-section revision into a patch. The patch
// is empty when nothing usable was returned.
func OutreachSection(raw string, section domain.OutreachSection) (domain.OutreachPatch, bool) {
	obj, ok := Object(raw)
	if !ok {
		return domain.OutreachPatch{}, false
	}

	var patch domain.OutreachPatch
	switch section {
	case domain.SectionEmail:
		e := email(Field(obj, "cold_email", "coldEmail", "email"))
		if e.Subject == "" && e.Body == "" {
			e = email(obj)
		}
		if e.Subject != "" || e.Body != "" {
			patch.ColdEmail = &e
		}
	case domain.SectionWhatsApp:
		if s := Text(Field(obj, "whatsapp", "message", "text", "content")); !blank(s) {
			patch.WhatsApp = &s
		}
	case domain.SectionCallScript:
		if s := Text(Field(obj, "call_script", "callScript", "script", "text", "content")); !blank(s) {
			patch.CallScript = &s
		}
	case domain.SectionFollowUp:
		src := Nested(obj, "follow_up", "followUp")
		if len(src) == 0 {
			src = obj
		}
		f := followUp(src)
		if f.Subject != "" || f.Body != "" {
			patch.FollowUp = &f
		}
	}
	return patch, !patch.Empty()
}

func hasAny(obj map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}
