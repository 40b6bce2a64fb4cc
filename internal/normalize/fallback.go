package normalize

import "Prospector/internal/domain"

// FallbackReview is returned when a critique cannot be parsed.
func FallbackReview() domain.WebsiteReview {
	return domain.WebsiteReview{
		Summary:         "The critique could not be parsed.",
		Strengths:       []string{},
		Issues:          []string{"Parsing error: the review response was not valid JSON. Manual review recommended."},
		Recommendations: []string{},
		CritiquePoints:  []domain.CritiquePoint{},
		Fallback:        true,
	}
}

// FallbackOutreach is returned when outreach copy cannot be generated or parsed.
func FallbackOutreach() domain.OutreachPackage {
	return domain.OutreachPackage{
		ColdEmail: domain.Email{
			Subject: "Error generating email",
			Body:    "The outreach email could not be generated. Please try again.",
		},
		WhatsApp:   "Error generating WhatsApp message. Please try again.",
		CallScript: "Error generating call script. Please try again.",
		Fallback:   true,
	}
}
