package gateway

import (
	"fmt"
	"strings"

	"Prospector/internal/domain"
	"Prospector/internal/ports"
)

const discoverPrompt = `You are a local market researcher for a web design agency.
Find real %s businesses in %s with a rating of at least %.1f.
For each business report whether it has a website: NONE when it has none, POOR when the site is outdated or broken, GOOD otherwise.

Respond ONLY with a JSON array. Each element is an object with the fields:
"name", "address", "rating" (number), "review_count" (integer), "website_status" (NONE, POOR, GOOD or UNKNOWN),
"description", "phone", "maps_uri".`

const enrichPrompt = `Research the business below and gather public contact and marketing details.

%s

Respond ONLY with a JSON object with the fields:
"social_links" (array of URLs), "emails" (array), "phones" (array), "services" (array),
"media" (array of image URLs), "extra_details" (string).
Leave a field empty when nothing reliable is found.`

const regionsPrompt = `List the main neighbourhoods, districts or suburbs of %s that are useful for a local business search.
Respond ONLY with a JSON array of names.`

const blueprintPrompt = `You are a senior web designer. Write a website blueprint for the business below.
Describe the sections, the copy for each section, the branding (colours, typography, tone) and the calls to action.
Write plain text, not code.

%s`

const reviseBlueprintPrompt = `Revise the website blueprint below according to the feedback. Return the full revised blueprint as plain text.

Blueprint:
%s

Feedback:
%s`

const markupPrompt = `You are an expert front-end developer. Build a complete single-file HTML website for the business below.
Use inline CSS and no external JavaScript frameworks. Return ONLY the HTML document starting with <!DOCTYPE html>.

%s

Blueprint:
%s

Style:
%s`

const reviseMarkupPrompt = `Apply the instructions to the HTML document below. Return ONLY the complete revised HTML document.

Instructions:
%s

Document:
%s`

const critiquePrompt = `You are a strict web design reviewer. Critique the %s of the website%s.
Score design, usability and visual design from 0 to 100.

Respond ONLY with a JSON object with the fields:
"design_score", "usability_score", "visual_design_score" (numbers 0-100),
"summary" (string), "strengths", "issues", "recommendations" (arrays of strings),
"critique_points" (array of objects with "point", "severity" (low, medium or high),
"bounding_box" ({"x","y","width","height"} as percentages of the page, all zero when not located)%s),
"approved" (boolean).%s`

const outreachPrompt = `You are a sales copywriter for a web design agency. Write outreach copy offering the demo website below to the business.

%s

Demo website: %s
Sender: %s
Tone: %s
Language: %s

Respond ONLY with a JSON object with the fields:
"cold_email" ({"subject","body"}), "whatsapp" (string), "call_script" (string)%s.`

const reviseSectionPrompt = `Revise this %s according to the feedback.

Current %s:
%s

Feedback:
%s

Respond ONLY with a JSON object: %s`

func describeBusiness(b domain.Business) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Name: %s\n", b.Name)
	if b.Address != "" {
		fmt.Fprintf(&sb, "Address: %s\n", b.Address)
	}
	if b.Rating > 0 {
		fmt.Fprintf(&sb, "Rating: %.1f (%d reviews)\n", b.Rating, b.ReviewCount)
	}
	if b.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", b.Description)
	}
	if b.Phone != "" {
		fmt.Fprintf(&sb, "Phone: %s\n", b.Phone)
	}
	if e := b.Enriched; !e.Empty() {
		writeList(&sb, "Services", e.Services)
		writeList(&sb, "Emails", e.Emails)
		writeList(&sb, "Social links", e.SocialLinks)
		writeList(&sb, "Media", e.Media)
		if e.ExtraDetails != "" {
			fmt.Fprintf(&sb, "Details: %s\n", e.ExtraDetails)
		}
	}
	return strings.TrimSpace(sb.String())
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) > 0 {
		fmt.Fprintf(sb, "%s: %s\n", label, strings.Join(items, ", "))
	}
}

func describeStyle(style ports.StyleOptions) string {
	var parts []string
	if style.Theme != "" {
		parts = append(parts, "theme "+style.Theme)
	}
	if style.PrimaryColor != "" {
		parts = append(parts, "primary colour "+style.PrimaryColor)
	}
	if style.Font != "" {
		parts = append(parts, "font "+style.Font)
	}
	if style.IncludeMedia {
		parts = append(parts, "use the media URLs listed above as images")
	} else {
		parts = append(parts, "use neutral placeholder imagery")
	}
	return strings.Join(parts, ", ")
}

func critiqueRequest(in ports.CritiqueInput) string {
	subject, source, snippet, body := "screenshot", "", "", ""
	if in.URL != "" {
		source = " at " + in.URL
	}
	if in.Markup != "" {
		subject = "HTML source"
		snippet = `, "related_code_snippet" (an exact substring of the source the point refers to)`
		body = "\n\nSource:\n" + in.Markup
	}
	return fmt.Sprintf(critiquePrompt, subject, source, snippet, body)
}

func outreachRequest(b domain.Business, url string, opts ports.OutreachOptions) string {
	var extra string
	if opts.IncludeFollowUps {
		extra += `, "follow_ups" (array of {"subject","body","delay"})`
	}
	if opts.IncludeObjections {
		extra += `, "objections" (array of {"objection","response"})`
	}
	return fmt.Sprintf(outreachPrompt, describeBusiness(b), url,
		orDefault(opts.SenderName, "the agency team"),
		orDefault(opts.Tone, "friendly and professional"),
		orDefault(opts.Language, "English"),
		extra)
}

var sectionShapes = map[domain.OutreachSection]struct{ label, shape string }{
	domain.SectionEmail:      {"cold email", `{"subject": "...", "body": "..."}`},
	domain.SectionWhatsApp:   {"WhatsApp message", `{"whatsapp": "..."}`},
	domain.SectionCallScript: {"call script", `{"call_script": "..."}`},
	domain.SectionFollowUp:   {"follow-up email", `{"subject": "...", "body": "...", "delay": "..."}`},
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
