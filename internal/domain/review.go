package domain

// BoundingBox locates a critique point on a screenshot as percentages (0-100)
// of the image size. The zero box means "no specific location".
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsZero reports whether the box carries no location.
func (b BoundingBox) IsZero() bool {
	return b == BoundingBox{}
}

// CritiquePoint is a single located remark about the website.
type CritiquePoint struct {
	Point       string      `json:"point"`
	Severity    string      `json:"severity,omitempty"`
	Box         BoundingBox `json:"bounding_box"`
	CodeSnippet string      `json:"related_code_snippet,omitempty"`
}

// WebsiteReview is the structured critique of a generated website.
// Scores use the 0-100 scale.
type WebsiteReview struct {
	DesignScore     float64         `json:"design_score"`
	UsabilityScore  float64         `json:"usability_score"`
	VisualScore     float64         `json:"visual_design_score"`
	Summary         string          `json:"summary,omitempty"`
	Strengths       []string        `json:"strengths"`
	Issues          []string        `json:"issues"`
	Recommendations []string        `json:"recommendations"`
	CritiquePoints  []CritiquePoint `json:"critique_points"`
	Approved        bool            `json:"approved"`
	Fallback        bool            `json:"fallback,omitempty"`
}

// ApprovalThreshold is the average score at which a review without an explicit
// verdict counts as approved.
const ApprovalThreshold = 70

// AverageScore returns the mean of the three scores.
func (r WebsiteReview) AverageScore() float64 {
	return (r.DesignScore + r.UsabilityScore + r.VisualScore) / 3
}

// FixInstructions renders the issues and recommendations as revision
// instructions for the markup generator.
func (r WebsiteReview) FixInstructions() string {
	var out []byte
	appendList := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		out = append(out, title...)
		out = append(out, ":\n"...)
		for _, item := range items {
			out = append(out, "- "...)
			out = append(out, item...)
			out = append(out, '\n')
		}
	}
	appendList("Fix these issues", r.Issues)
	appendList("Apply these recommendations", r.Recommendations)
	points := make([]string, 0, len(r.CritiquePoints))
	for _, p := range r.CritiquePoints {
		if p.Point != "" {
			points = append(points, p.Point)
		}
	}
	appendList("Address these critique points", points)
	return string(out)
}
