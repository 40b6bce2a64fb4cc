package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"Prospector/internal/domain"
	"Prospector/internal/gateway"
	"Prospector/internal/ports"
)

// MaxFixRounds bounds one AutoApplyFixes call.
const MaxFixRounds = 3

// CritiqueSource selects what a critique looks at.
type CritiqueSource string

const (
	SourceAuto       CritiqueSource = ""
	SourceScreenshot CritiqueSource = "screenshot"
	SourceMarkup     CritiqueSource = "markup"
)

// FixReport summarises an AutoApplyFixes run.
type FixReport struct {
	Rounds int                  `json:"rounds"`
	Markup string               `json:"markup"`
	Review domain.WebsiteReview `json:"review"`
}

// Pipeline drives one business through PROMPT, BUILD, REVIEW, OUTREACH and
// SUMMARY. State is guarded by mu; generation calls run without holding it so
// navigation and snapshots stay responsive. One generation step may run at a
// time.
type Pipeline struct {
	ctrl *Controller
	id   string

	mu     sync.Mutex
	bundle domain.Bundle
	busy   string
	closed bool
}

func newPipeline(ctrl *Controller, bundle domain.Bundle) *Pipeline {
	return &Pipeline{ctrl: ctrl, id: bundle.BusinessID, bundle: bundle}
}

// ID returns the business id.
func (p *Pipeline) ID() string {
	return p.id
}

// Snapshot returns a deep copy of the current bundle.
func (p *Pipeline) Snapshot() domain.Bundle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bundle.Clone()
}

// Completeness returns the informational completeness score (0-100).
func (p *Pipeline) Completeness() int {
	return p.Snapshot().Completeness()
}

// Busy returns the step in flight, if any.
func (p *Pipeline) Busy() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// DraftBlueprint asks for a website blueprint and stores it unapproved.
func (p *Pipeline) DraftBlueprint(ctx context.Context) (string, error) {
	const step = "draft_blueprint"
	snap, err := p.begin(step, func(b *domain.Bundle) error {
		return precondition("draft a blueprint", atStage(b, domain.StagePrompt))
	})
	if err != nil {
		return "", err
	}
	defer p.end()

	text, err := p.ctrl.gateway.DraftWebsiteBlueprint(ctx, snap.Business)
	if err != nil {
		return text, p.fail(ctx, step, err)
	}
	return text, p.commit(ctx, func(b *domain.Bundle) []domain.RecordKind {
		b.Blueprint = text
		b.BlueprintApproved = false
		return []domain.RecordKind{domain.KindPrompt}
	})
}

// ReviseBlueprint applies operator feedback to the blueprint.
func (p *Pipeline) ReviseBlueprint(ctx context.Context, feedback string) (string, error) {
	const step = "revise_blueprint"
	snap, err := p.begin(step, func(b *domain.Bundle) error {
		return precondition("revise the blueprint",
			atStage(b, domain.StagePrompt),
			need(b.Blueprint != "", "blueprint"),
			need(strings.TrimSpace(feedback) != "", "feedback"))
	})
	if err != nil {
		return "", err
	}
	defer p.end()

	text, err := p.ctrl.gateway.ReviseBlueprint(ctx, snap.Blueprint, feedback)
	if err != nil {
		return text, p.fail(ctx, step, err)
	}
	return text, p.commit(ctx, func(b *domain.Bundle) []domain.RecordKind {
		b.Blueprint = text
		b.BlueprintApproved = false
		return []domain.RecordKind{domain.KindPrompt}
	})
}

// ApproveBlueprint approves the blueprint and moves to BUILD.
func (p *Pipeline) ApproveBlueprint(ctx context.Context) error {
	return p.update(ctx, func(b *domain.Bundle) error {
		return precondition("approve the blueprint",
			atStage(b, domain.StagePrompt),
			need(b.Blueprint != "", "blueprint"))
	}, func(b *domain.Bundle) []domain.RecordKind {
		b.BlueprintApproved = true
		p.advance(b, domain.StagePrompt, domain.StageBuild)
		return []domain.RecordKind{domain.KindPrompt}
	})
}

// GenerateSite builds markup from the blueprint and synthesizes a preview URL.
func (p *Pipeline) GenerateSite(ctx context.Context, style ports.StyleOptions) (string, error) {
	const step = "generate_site"
	snap, err := p.begin(step, func(b *domain.Bundle) error {
		return precondition("generate the website",
			atStage(b, domain.StageBuild),
			need(b.Blueprint != "", "blueprint"))
	})
	if err != nil {
		return "", err
	}
	defer p.end()

	doc, err := p.ctrl.gateway.GenerateSiteMarkup(ctx, snap.Business, snap.Blueprint, style)
	if err != nil {
		return doc, p.fail(ctx, step, err)
	}
	preview := p.ctrl.previewURL(p.id)
	return doc, p.commit(ctx, func(b *domain.Bundle) []domain.RecordKind {
		b.Markup = doc
		b.Screenshot = ""
		if b.URL == "" {
			b.URL = preview
		}
		return []domain.RecordKind{domain.KindWebsite}
	})
}

// ReviseSite applies free-form instructions to the markup.
func (p *Pipeline) ReviseSite(ctx context.Context, instructions string) (string, error) {
	const step = "revise_site"
	snap, err := p.begin(step, func(b *domain.Bundle) error {
		return precondition("revise the website",
			atStage(b, domain.StageBuild),
			need(b.Markup != "", "website markup"),
			need(strings.TrimSpace(instructions) != "", "instructions"))
	})
	if err != nil {
		return "", err
	}
	defer p.end()

	doc, err := p.ctrl.gateway.ReviseSiteMarkup(ctx, snap.Markup, instructions)
	if err != nil {
		return doc, p.fail(ctx, step, err)
	}
	return doc, p.commit(ctx, func(b *domain.Bundle) []domain.RecordKind {
		b.Markup = doc
		b.Screenshot = ""
		return []domain.RecordKind{domain.KindWebsite}
	})
}

// SetURL records the address of the website under review.
func (p *Pipeline) SetURL(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	return p.update(ctx, func(b *domain.Bundle) error {
		return precondition("set the website URL",
			siteStage(b),
			need(validURL(raw), "valid http(s) URL"))
	}, func(b *domain.Bundle) []domain.RecordKind {
		b.URL = raw
		return []domain.RecordKind{domain.KindWebsite}
	})
}

// AttachScreenshot stores a base64 (or data URL) screenshot of the website.
func (p *Pipeline) AttachScreenshot(ctx context.Context, encoded string) error {
	encoded = strings.TrimSpace(encoded)
	_, decodeErr := gateway.DecodeScreenshot(encoded)
	return p.update(ctx, func(b *domain.Bundle) error {
		return precondition("attach a screenshot",
			siteStage(b),
			need(encoded != "" && decodeErr == nil, "base64 screenshot"))
	}, func(b *domain.Bundle) []domain.RecordKind {
		b.Screenshot = encoded
		return []domain.RecordKind{domain.KindWebsite}
	})
}

// CaptureScreenshot renders the website URL through the screenshot service.
func (p *Pipeline) CaptureScreenshot(ctx context.Context) (string, error) {
	const step = "capture_screenshot"
	snap, err := p.begin(step, func(b *domain.Bundle) error {
		return precondition("capture a screenshot",
			siteStage(b),
			need(b.URL != "", "website URL"),
			need(p.ctrl.screenshots != nil, "screenshot service"))
	})
	if err != nil {
		return "", err
	}
	defer p.end()

	shot, err := p.ctrl.screenshots.Capture(ctx, snap.URL)
	if err != nil {
		return "", p.fail(ctx, step, err)
	}
	return shot, p.commit(ctx, func(b *domain.Bundle) []domain.RecordKind {
		b.Screenshot = shot
		return []domain.RecordKind{domain.KindWebsite}
	})
}

// SubmitForReview requires a URL and a screenshot or markup. It persists the
// website, critiques it and moves to REVIEW once a review is stored.
func (p *Pipeline) SubmitForReview(ctx context.Context) (domain.WebsiteReview, error) {
	const step = "critique_website"
	snap, err := p.begin(step, func(b *domain.Bundle) error {
		return precondition("submit for review",
			atStage(b, domain.StageBuild),
			need(b.URL != "", "website URL"),
			need(b.Screenshot != "" || b.Markup != "", "screenshot or website markup"))
	})
	if err != nil {
		return domain.WebsiteReview{}, err
	}
	defer p.end()

	p.ctrl.persister.Dispatch(ctx, domain.KindWebsite, snap)
	return p.critique(ctx, step, snap, SourceAuto, domain.StageBuild)
}

// Critique re-runs the critique from REVIEW.
func (p *Pipeline) Critique(ctx context.Context, source CritiqueSource) (domain.WebsiteReview, error) {
	const step = "critique_website"
	snap, err := p.begin(step, func(b *domain.Bundle) error {
		checks := []check{atStage(b, domain.StageReview)}
		switch source {
		case SourceScreenshot:
			checks = append(checks, need(b.Screenshot != "", "screenshot"))
		case SourceMarkup:
			checks = append(checks, need(b.Markup != "", "website markup"))
		case SourceAuto:
			checks = append(checks, need(b.Screenshot != "" || b.Markup != "", "screenshot or website markup"))
		default:
			checks = append(checks, need(false, "known critique source"))
		}
		return precondition("critique the website", checks...)
	})
	if err != nil {
		return domain.WebsiteReview{}, err
	}
	defer p.end()

	return p.critique(ctx, step, snap, source, domain.StageReview)
}

// AutoApplyFixes revises the markup with the review's issues and
// recommendations, then critiques the result again. It repeats until the
// review approves or rounds are used up. The stage does not change.
func (p *Pipeline) AutoApplyFixes(ctx context.Context, rounds int) (FixReport, error) {
	const step = "auto_apply_fixes"
	snap, err := p.begin(step, func(b *domain.Bundle) error {
		instructions := ""
		if b.Review != nil {
			instructions = b.Review.FixInstructions()
		}
		return precondition("apply fixes",
			atStage(b, domain.StageReview),
			need(b.Review != nil, "review"),
			need(b.Markup != "", "website markup"),
			need(instructions != "", "issues or recommendations"))
	})
	if err != nil {
		return FixReport{}, err
	}
	defer p.end()

	rounds = min(max(rounds, 1), MaxFixRounds)
	report := FixReport{Markup: snap.Markup, Review: *snap.Review}
	for report.Rounds < rounds {
		doc, err := p.ctrl.gateway.ReviseSiteMarkup(ctx, report.Markup, report.Review.FixInstructions())
		if err != nil {
			return report, p.fail(ctx, step, err)
		}
		if err := p.commit(ctx, func(b *domain.Bundle) []domain.RecordKind {
			b.Markup = doc
			b.Screenshot = ""
			return []domain.RecordKind{domain.KindWebsite}
		}); err != nil {
			return report, err
		}
		report.Rounds++
		report.Markup = doc

		current := snap
		current.Markup, current.Screenshot = doc, ""
		review, err := p.critique(ctx, "critique_website", current, SourceMarkup, domain.StageReview)
		if err != nil {
			return report, err
		}
		report.Review = review
		if review.Approved || review.Fallback || review.FixInstructions() == "" {
			break
		}
	}
	return report, nil
}

// ApproveReview approves the review, persists it, drafts outreach copy and
// moves to OUTREACH once the package is stored.
func (p *Pipeline) ApproveReview(ctx context.Context, opts ports.OutreachOptions) (domain.OutreachPackage, error) {
	const step = "draft_outreach"
	snap, err := p.begin(step, func(b *domain.Bundle) error {
		return precondition("approve the review",
			atStage(b, domain.StageReview),
			need(b.Review != nil, "review"),
			need(b.HasSite(), "website URL or markup"))
	})
	if err != nil {
		return domain.OutreachPackage{}, err
	}
	defer p.end()

	if err := p.commit(ctx, func(b *domain.Bundle) []domain.RecordKind {
		b.Review.Approved = true
		return []domain.RecordKind{domain.KindReview}
	}); err != nil {
		return domain.OutreachPackage{}, err
	}
	return p.draftOutreach(ctx, step, snap, opts, domain.StageReview)
}

// DraftOutreach redrafts the outreach package from OUTREACH.
func (p *Pipeline) DraftOutreach(ctx context.Context, opts ports.OutreachOptions) (domain.OutreachPackage, error) {
	const step = "draft_outreach"
	snap, err := p.begin(step, func(b *domain.Bundle) error {
		return precondition("draft outreach",
			atStage(b, domain.StageOutreach),
			need(b.HasSite(), "website URL or markup"))
	})
	if err != nil {
		return domain.OutreachPackage{}, err
	}
	defer p.end()

	return p.draftOutreach(ctx, step, snap, opts, domain.StageOutreach)
}

// ReviseOutreachSection rewrites one section. index selects a follow-up; an
// index equal to the number of follow-ups adds a new one.
func (p *Pipeline) ReviseOutreachSection(ctx context.Context, section domain.OutreachSection, index int, feedback string) (domain.OutreachPackage, error) {
	const step = "revise_outreach_section"
	snap, err := p.begin(step, func(b *domain.Bundle) error {
		checks := []check{
			atStage(b, domain.StageOutreach),
			need(b.Outreach != nil, "outreach package"),
			need(strings.TrimSpace(feedback) != "", "feedback"),
		}
		if section == domain.SectionFollowUp && b.Outreach != nil {
			checks = append(checks, need(index >= 0 && index <= len(b.Outreach.FollowUps), "follow-up index"))
		}
		return precondition("revise the outreach "+string(section), checks...)
	})
	if err != nil {
		return domain.OutreachPackage{}, err
	}
	defer p.end()

	current := snap.Outreach.SectionContent(section, index)
	patch, err := p.ctrl.gateway.ReviseOutreachSection(ctx, current, feedback, section)
	if err != nil {
		return *snap.Outreach, p.fail(ctx, step, err)
	}

	var updated domain.OutreachPackage
	err = p.commit(ctx, func(b *domain.Bundle) []domain.RecordKind {
		b.Outreach.Apply(patch, index)
		updated = *b.Outreach
		return []domain.RecordKind{domain.KindOutreach}
	})
	return updated, err
}

// Finalize moves to SUMMARY and saves every record to both tiers.
func (p *Pipeline) Finalize(ctx context.Context) (SaveReport, error) {
	var snap domain.Bundle
	err := p.update(ctx, func(b *domain.Bundle) error {
		return precondition("finalize",
			atStage(b, domain.StageOutreach),
			need(b.Outreach != nil, "outreach package"))
	}, func(b *domain.Bundle) []domain.RecordKind {
		p.advance(b, domain.StageOutreach, domain.StageSummary)
		snap = b.Clone()
		return nil
	})
	if err != nil {
		return SaveReport{}, err
	}
	return p.ctrl.persister.Save(ctx, "save", snap), nil
}

// Navigate moves to any stage already reached. Later artifacts are kept.
func (p *Pipeline) Navigate(stage domain.Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("pipeline %s: %w", p.id, ErrNotFound)
	}
	if err := precondition("navigate to "+stage.String(),
		need(stage.Valid() && stage <= p.bundle.Reached, "stage reached")); err != nil {
		return err
	}
	p.bundle.Stage = stage
	return p.ctrl.persister.SaveLocal(p.bundle)
}

// Save writes the current bundle to both tiers.
func (p *Pipeline) Save(ctx context.Context) (SaveReport, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return SaveReport{}, fmt.Errorf("pipeline %s: %w", p.id, ErrNotFound)
	}
	snap := p.bundle.Clone()
	p.mu.Unlock()
	return p.ctrl.persister.Save(ctx, "save", snap), nil
}

func (p *Pipeline) critique(ctx context.Context, step string, snap domain.Bundle, source CritiqueSource, from domain.Stage) (domain.WebsiteReview, error) {
	in := ports.CritiqueInput{URL: snap.URL}
	switch {
	case source == SourceScreenshot, source == SourceAuto && snap.Screenshot != "":
		in.Screenshot = snap.Screenshot
	default:
		in.Markup = snap.Markup
	}

	review, err := p.ctrl.gateway.CritiqueWebsite(ctx, in)
	if err != nil && !errors.Is(err, gateway.ErrUnparseable) {
		return review, p.fail(ctx, step, err)
	}
	if cerr := p.commit(ctx, func(b *domain.Bundle) []domain.RecordKind {
		stored := review
		b.Review = &stored
		p.advance(b, from, domain.StageReview)
		return []domain.RecordKind{domain.KindReview}
	}); cerr != nil {
		return review, cerr
	}
	if err != nil {
		p.warnParse(ctx, step)
	}
	return review, nil
}

func (p *Pipeline) draftOutreach(ctx context.Context, step string, snap domain.Bundle, opts ports.OutreachOptions, from domain.Stage) (domain.OutreachPackage, error) {
	siteURL := snap.URL
	if siteURL == "" {
		siteURL = p.ctrl.previewURL(p.id)
	}
	pkg, err := p.ctrl.gateway.DraftOutreach(ctx, snap.Business, siteURL, opts)
	if err != nil && !errors.Is(err, gateway.ErrUnparseable) {
		return pkg, p.fail(ctx, step, err)
	}
	if cerr := p.commit(ctx, func(b *domain.Bundle) []domain.RecordKind {
		stored := pkg
		b.Outreach = &stored
		p.advance(b, from, domain.StageOutreach)
		return []domain.RecordKind{domain.KindOutreach}
	}); cerr != nil {
		return pkg, cerr
	}
	if err != nil {
		p.warnParse(ctx, step)
	}
	return pkg, nil
}

// begin checks the guard and claims the pipeline for one generation step.
// It returns a snapshot to build the request from.
func (p *Pipeline) begin(step string, guard func(b *domain.Bundle) error) (domain.Bundle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return domain.Bundle{}, fmt.Errorf("pipeline %s: %w", p.id, ErrNotFound)
	}
	if p.busy != "" {
		return domain.Bundle{}, fmt.Errorf("%w: %s", ErrBusy, p.busy)
	}
	if err := guard(&p.bundle); err != nil {
		return domain.Bundle{}, err
	}
	p.busy = step
	return p.bundle.Clone(), nil
}

func (p *Pipeline) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = ""
}

// commit applies a generation result unless the pipeline was closed in the
// meantime, saves locally and dispatches the returned record kinds.
func (p *Pipeline) commit(ctx context.Context, apply func(b *domain.Bundle) []domain.RecordKind) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.ctrl.logger.Debug("late generation result discarded", "business_id", p.id)
		return ErrStaleResponse
	}
	kinds := apply(&p.bundle)
	snap := p.bundle.Clone()
	p.mu.Unlock()
	return p.persist(ctx, snap, kinds)
}

// update runs a synchronous action under the lock.
func (p *Pipeline) update(ctx context.Context, guard func(b *domain.Bundle) error, apply func(b *domain.Bundle) []domain.RecordKind) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("pipeline %s: %w", p.id, ErrNotFound)
	}
	if p.busy != "" {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBusy, p.busy)
	}
	if err := guard(&p.bundle); err != nil {
		p.mu.Unlock()
		return err
	}
	kinds := apply(&p.bundle)
	snap := p.bundle.Clone()
	p.mu.Unlock()
	return p.persist(ctx, snap, kinds)
}

func (p *Pipeline) persist(ctx context.Context, snap domain.Bundle, kinds []domain.RecordKind) error {
	if err := p.ctrl.persister.SaveLocal(snap); err != nil {
		p.ctrl.notify(ctx, domain.Notice{
			BusinessID: p.id,
			Level:      domain.NoticeError,
			Step:       "save",
			Message:    "Local save failed: " + err.Error(),
		})
	}
	for _, kind := range kinds {
		p.ctrl.persister.Dispatch(ctx, kind, snap)
	}
	return nil
}

// advance moves b from one stage to the next. It does nothing when the
// operator navigated elsewhere while the step ran.
func (p *Pipeline) advance(b *domain.Bundle, from, to domain.Stage) {
	if b.Stage != from || from == to {
		return
	}
	b.Advance(to)
	p.ctrl.metrics.StageTransition(to.String())
	p.ctrl.logger.Debug("stage advanced", "business_id", p.id, "stage", to)
}

// fail surfaces a blocking notice for a failed step. Nothing was stored and
// the stage is unchanged.
func (p *Pipeline) fail(ctx context.Context, step string, err error) error {
	p.ctrl.notify(ctx, domain.Notice{
		BusinessID: p.id,
		Level:      domain.NoticeError,
		Step:       step,
		Message:    fmt.Sprintf("%s failed: %v", stepLabel(step), err),
		Blocking:   true,
	})
	return &GenerationError{Step: step, Err: err}
}

func (p *Pipeline) warnParse(ctx context.Context, step string) {
	p.ctrl.notify(ctx, domain.Notice{
		BusinessID: p.id,
		Level:      domain.NoticeWarn,
		Step:       step,
		Message:    stepLabel(step) + ": parsing error, manual review recommended",
	})
}

func (p *Pipeline) setBusiness(b domain.Business) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.bundle.Business = keepEnrichment(p.bundle.Business, b)
	snap := p.bundle.Clone()
	p.mu.Unlock()
	return p.ctrl.persister.SaveLocal(snap)
}

func (p *Pipeline) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func atStage(b *domain.Bundle, s domain.Stage) check {
	return need(b.Stage == s, "stage "+s.String())
}

func siteStage(b *domain.Bundle) check {
	return need(b.Stage == domain.StageBuild || b.Stage == domain.StageReview, "stage BUILD or REVIEW")
}

func validURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func stepLabel(step string) string {
	label := strings.ReplaceAll(step, "_", " ")
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
