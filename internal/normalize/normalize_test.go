package normalize

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Prospector/internal/domain"
)

func TestExtractJSONPrefersFirstOpener(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		raw   string
		span  string
		shape Shape
	}{
		{"object in prose", `Sure! Here you go: {"a": [1, 2]} Hope it helps.`, `{"a": [1, 2]}`, ShapeObject},
		{"array first", `Result: [{"a": 1}, {"b": 2}] done`, `[{"a": 1}, {"b": 2}]`, ShapeArray},
		{"fenced", "```json\n{\"x\": 1}\n```", `{"x": 1}`, ShapeObject},
		{"no json", "nothing to see", "", ShapeNone},
		{"unterminated", `{"x": 1`, "", ShapeNone},
		{"closer before opener", `} oops {`, "", ShapeNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			span, shape := ExtractJSON(tc.raw)
			assert.Equal(t, tc.span, span)
			assert.Equal(t, tc.shape, shape)
		})
	}
}

func TestObjectMatchesDirectParseOnCanonicalInput(t *testing.T) {
	t.Parallel()

	inputs := []string{
		`{}`,
		`{"name":"Joe's Cafe","rating":4.5,"tags":["coffee","brunch"],"nested":{"ok":true,"n":null}}`,
		`{"code":"<div class=\"hero\">{x}</div>","list":[[1],[2,[3]]]}`,
	}
	for _, in := range inputs {
		var want map[string]any
		require.NoError(t, json.Unmarshal([]byte(in), &want))

		got, ok := Object(in)
		require.True(t, ok, in)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("Object(%s) mismatch (-want +got):\n%s", in, diff)
		}
	}
}

func TestArrayMatchesDirectParseOnCanonicalInput(t *testing.T) {
	t.Parallel()

	inputs := []string{
		`[]`,
		`["North","South"]`,
		`[{"name":"A","rating":4},{"name":"B","tags":["x"]}]`,
	}
	for _, in := range inputs {
		var want []any
		require.NoError(t, json.Unmarshal([]byte(in), &want))

		got, ok := Array(in)
		require.True(t, ok, in)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("Array(%s) mismatch (-want +got):\n%s", in, diff)
		}
	}
}

func TestFallbackTotality(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"   ",
		"I could not find any businesses.",
		`{"truncated": [1, 2`,
		`[{"name": "A"}, {"name": `,
		"```json\n```",
		`{"a": }`,
		"\x00\xff",
	}
	for _, in := range inputs {
		obj, okObj := Object(in)
		require.NotNil(t, obj)
		assert.False(t, okObj, in)
		assert.Empty(t, obj)

		arr, okArr := Array(in)
		require.NotNil(t, arr)
		assert.False(t, okArr, in)
		assert.Empty(t, arr)

		review, _ := Review(in)
		assert.True(t, review.Fallback)

		pkg, _ := Outreach(in)
		assert.True(t, pkg.Fallback)
		assert.NotEmpty(t, pkg.ColdEmail.Subject)

		businesses, _ := Businesses(in)
		assert.NotNil(t, businesses)
	}
}

func TestArrayUnwrapsSingleFieldObject(t *testing.T) {
	t.Parallel()

	got, ok := Array(`{"businesses": [{"name": "A"}]}`)
	require.True(t, ok)
	assert.Len(t, got, 1)
}

func TestTextCoercion(t *testing.T) {
	t.Parallel()

	obj, ok := Object(`{"whatsapp": {"message": "hi"}}`)
	require.True(t, ok)
	assert.Equal(t, "hi", Text(obj["whatsapp"]))

	obj, ok = Object(`{"whatsapp": "hi"}`)
	require.True(t, ok)
	assert.Equal(t, "hi", Text(obj["whatsapp"]))

	obj, ok = Object(`{"whatsapp": " hi ", "nested": {"text": "  hello  "}}`)
	require.True(t, ok)
	assert.Equal(t, " hi ", Text(obj["whatsapp"]))
	assert.Equal(t, "hello", Text(obj["nested"]))

	assert.Equal(t, "opening line", Text(map[string]any{"content": "opening line"}))
	assert.Equal(t, `{"greeting":"hello"}`, Text(map[string]any{"greeting": "hello"}))
	assert.Equal(t, "", Text(nil))
	assert.Equal(t, "4.5", Text(4.5))
}

func TestStringsCoercion(t *testing.T) {
	t.Parallel()

	in := []any{
		"plain",
		map[string]any{"issue": "low contrast"},
		map[string]any{"region": "Downtown", "population": 1000.0},
		map[string]any{"severity": "high", "description": "slow hero image"},
		map[string]any{"other": "x"},
		"",
	}
	got := Strings(in)
	assert.Equal(t, []string{"plain", "low contrast", "Downtown", "slow hero image", `{"other":"x"}`}, got)
	assert.Equal(t, []string{"solo"}, Strings("solo"))
	assert.Equal(t, []string{}, Strings(nil))
}

func TestNumberAndIntegerCoercion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 4.5, Number("4.5"))
	assert.Equal(t, 80.0, Number("80%"))
	assert.Equal(t, 7.0, Number(map[string]any{"score": 7.0}))
	assert.Equal(t, 0.0, Number("n/a"))
	assert.Equal(t, 1204, Integer("1,204"))
	assert.Equal(t, 12, Integer(12.9))
}

func TestRegionsCoercesObjects(t *testing.T) {
	t.Parallel()

	got, ok := Regions(`Here: [{"name": "Soho"}, "Camden", {"region": "Brixton"}]`)
	require.True(t, ok)
	assert.Equal(t, []string{"Soho", "Camden", "Brixton"}, got)
}

func TestBusinessesDecode(t *testing.T) {
	t.Parallel()

	raw := "```json\n" + `[
	  {"name": "Joe's Cafe", "rating": 4.5, "review_count": "1,204", "website_status": "none", "address": "1 Main St"},
	  {"title": "Bob's Bikes", "rating": "4.1", "websiteStatus": "POOR", "phone": "555-0100",
	   "enriched_data": {"services": ["repairs"]}},
	  {"rating": 5},
	  "Corner Deli"
	]` + "\n```"

	got, ok := Businesses(raw)
	require.True(t, ok)
	require.Len(t, got, 3)

	assert.Equal(t, "Joe's Cafe", got[0].Name)
	assert.Equal(t, 4.5, got[0].Rating)
	assert.Equal(t, 1204, got[0].ReviewCount)
	assert.Equal(t, domain.WebsiteNone, got[0].WebsiteStatus)

	assert.Equal(t, "Bob's Bikes", got[1].Name)
	assert.Equal(t, domain.WebsitePoor, got[1].WebsiteStatus)
	require.NotNil(t, got[1].Enriched)
	assert.Equal(t, []string{"repairs"}, got[1].Enriched.Services)

	assert.Equal(t, "Corner Deli", got[2].Name)
	assert.Equal(t, domain.WebsiteUnknown, got[2].WebsiteStatus)
}

func TestEnrichmentDecodeSocialMap(t *testing.T) {
	t.Parallel()

	got, ok := Enrichment(`{"social_links": {"instagram": "https://ig/joes", "facebook": "https://fb/joes"},
		"emails": "hello@joes.test", "media": [{"url": "https://img/1.jpg"}], "extra_details": {"text": "open late"}}`)
	require.True(t, ok)
	assert.Equal(t, []string{"https://fb/joes", "https://ig/joes"}, got.SocialLinks)
	assert.Equal(t, []string{"hello@joes.test"}, got.Emails)
	assert.Equal(t, []string{"https://img/1.jpg"}, got.Media)
	assert.Equal(t, "open late", got.ExtraDetails)
}

func TestReviewDecode(t *testing.T) {
	t.Parallel()

	raw := `{
	  "design_score": 82, "usability_score": 75, "visual_design_score": 80,
	  "strengths": ["clear menu"],
	  "issues": [{"issue": "low contrast footer"}],
	  "recommendations": "add booking button",
	  "critique_points": [
	    {"point": "Hero text is hard to read", "bounding_box": {"x": 10, "y": 5, "width": 120, "height": -3},
	     "related_code_snippet": "<h1 class=\"hero\">"},
	    {"description": "Footer links cramped", "bounding_box": [0, 0, 0, 0]},
	    "Spacing is inconsistent"
	  ]
	}`
	got, ok := Review(raw)
	require.True(t, ok)
	assert.False(t, got.Fallback)
	assert.Equal(t, 80.0, got.VisualScore)
	assert.Equal(t, []string{"low contrast footer"}, got.Issues)
	assert.Equal(t, []string{"add booking button"}, got.Recommendations)
	require.Len(t, got.CritiquePoints, 3)
	assert.Equal(t, domain.BoundingBox{X: 10, Y: 5, Width: 100, Height: 0}, got.CritiquePoints[0].Box)
	assert.Equal(t, `<h1 class="hero">`, got.CritiquePoints[0].CodeSnippet)
	assert.True(t, got.CritiquePoints[1].Box.IsZero())
	assert.Equal(t, "Spacing is inconsistent", got.CritiquePoints[2].Point)
	assert.True(t, got.Approved)
}

func TestReviewDecodeLiftsTenPointScale(t *testing.T) {
	t.Parallel()

	got, ok := Review(`{"scores": {"design": 8, "usability": 6.5, "visual": 7}, "approved": "no"}`)
	require.True(t, ok)
	assert.Equal(t, 80.0, got.DesignScore)
	assert.Equal(t, 65.0, got.UsabilityScore)
	assert.Equal(t, 70.0, got.VisualScore)
	assert.False(t, got.Approved)
}

func TestReviewDecodeUnknownObjectFallsBack(t *testing.T) {
	t.Parallel()

	got, ok := Review(`{"message": "I cannot view images"}`)
	assert.False(t, ok)
	assert.True(t, got.Fallback)
	assert.Zero(t, got.DesignScore)
	require.Len(t, got.Issues, 1)
}

func TestOutreachDecode(t *testing.T) {
	t.Parallel()

	raw := `{
	  "cold_email": {"subject": "A website for Joe's Cafe", "body": {"text": "Hi Joe"}},
	  "whatsapp": {"message": "Hi Joe, quick idea"},
	  "call_script": {"opening": "Hello", "close": "Thanks"},
	  "follow_ups": [{"subject": "Checking in", "body": "Any thoughts?", "delay": "3 days"}],
	  "objections": {"Too expensive": "We start small."}
	}`
	got, ok := Outreach(raw)
	require.True(t, ok)
	assert.Equal(t, "A website for Joe's Cafe", got.ColdEmail.Subject)
	assert.Equal(t, "Hi Joe", got.ColdEmail.Body)
	assert.Equal(t, "Hi Joe, quick idea", got.WhatsApp)
	assert.JSONEq(t, `{"opening":"Hello","close":"Thanks"}`, got.CallScript)
	require.Len(t, got.FollowUps, 1)
	assert.Equal(t, "3 days", got.FollowUps[0].Delay)
	assert.Equal(t, []domain.Objection{{Objection: "Too expensive", Response: "We start small."}}, got.Objections)
}

func TestOutreachSectionDecode(t *testing.T) {
	t.Parallel()

	patch, ok := OutreachSection(`{"whatsapp": {"text": "new message"}}`, domain.SectionWhatsApp)
	require.True(t, ok)
	require.NotNil(t, patch.WhatsApp)
	assert.Equal(t, "new message", *patch.WhatsApp)
	assert.Nil(t, patch.ColdEmail)

	patch, ok = OutreachSection(`{"subject": "Re: site", "body": "shorter"}`, domain.SectionEmail)
	require.True(t, ok)
	assert.Equal(t, "Re: site", patch.ColdEmail.Subject)

	patch, ok = OutreachSection(`{"follow_up": {"subject": "Last note", "delay": "1 week"}}`, domain.SectionFollowUp)
	require.True(t, ok)
	assert.Equal(t, "1 week", patch.FollowUp.Delay)

	patch, ok = OutreachSection("no json here", domain.SectionCallScript)
	assert.False(t, ok)
	assert.True(t, patch.Empty())
}
