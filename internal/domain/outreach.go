package domain

import "fmt"

// Email is a subject/body pair.
type Email struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// FollowUp is a follow-up email sent after a human-readable delay.
type FollowUp struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Delay   string `json:"delay"`
}

// Objection pairs a likely objection with a response.
type Objection struct {
	Objection string `json:"objection"`
	Response  string `json:"response"`
}

// OutreachPackage is the sales copy produced for one business.
type OutreachPackage struct {
	ColdEmail  Email       `json:"cold_email"`
	WhatsApp   string      `json:"whatsapp"`
	CallScript string      `json:"call_script"`
	FollowUps  []FollowUp  `json:"follow_ups,omitempty"`
	Objections []Objection `json:"objections,omitempty"`
	Fallback   bool        `json:"fallback,omitempty"`
}

// OutreachSection names a revisable part of an outreach package.
type OutreachSection string

const (
	SectionEmail      OutreachSection = "email"
	SectionWhatsApp   OutreachSection = "whatsapp"
	SectionCallScript OutreachSection = "call_script"
	SectionFollowUp   OutreachSection = "follow_up"
)

// ParseOutreachSection validates a section name.
func ParseOutreachSection(value string) (OutreachSection, error) {
	switch s := OutreachSection(value); s {
	case SectionEmail, SectionWhatsApp, SectionCallScript, SectionFollowUp:
		return s, nil
	default:
		return "", fmt.Errorf("unknown outreach section %q", value)
	}
}

// OutreachPatch is the partial result of a section revision. Nil fields are
// left untouched by Apply.
type OutreachPatch struct {
	ColdEmail  *Email
	WhatsApp   *string
	CallScript *string
	FollowUp   *FollowUp
}

// Empty reports whether the patch changes nothing.
func (p OutreachPatch) Empty() bool {
	return p.ColdEmail == nil && p.WhatsApp == nil && p.CallScript == nil && p.FollowUp == nil
}

// Apply merges the patch into the package. index selects the follow-up to
// replace; an out-of-range index appends.
func (o *OutreachPackage) Apply(p OutreachPatch, index int) {
	if p.ColdEmail != nil {
		o.ColdEmail = *p.ColdEmail
	}
	if p.WhatsApp != nil {
		o.WhatsApp = *p.WhatsApp
	}
	if p.CallScript != nil {
		o.CallScript = *p.CallScript
	}
	if p.FollowUp != nil {
		if index >= 0 && index < len(o.FollowUps) {
			o.FollowUps[index] = *p.FollowUp
		} else {
			o.FollowUps = append(o.FollowUps, *p.FollowUp)
		}
	}
}

// SectionContent returns the current text of a section for revision prompts.
func (o OutreachPackage) SectionContent(section OutreachSection, index int) string {
	switch section {
	case SectionEmail:
		return fmt.Sprintf("Subject: %s\n\n%s", o.ColdEmail.Subject, o.ColdEmail.Body)
	case SectionWhatsApp:
		return o.WhatsApp
	case SectionCallScript:
		return o.CallScript
	case SectionFollowUp:
		if index >= 0 && index < len(o.FollowUps) {
			f := o.FollowUps[index]
			return fmt.Sprintf("Delay: %s\nSubject: %s\n\n%s", f.Delay, f.Subject, f.Body)
		}
	}
	return ""
}
