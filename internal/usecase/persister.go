package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"Prospector/internal/domain"
	"Prospector/internal/logging"
	"Prospector/internal/metrics"
	"Prospector/internal/ports"
)

const defaultRemoteTimeout = 30 * time.Second

// PersisterDeps wires both tiers into the persister.
type PersisterDeps struct {
	Cache    ports.BundleCache
	Remote   ports.RemoteStore
	Notifier ports.Notifier
	Metrics  *metrics.Collectors
	Logger   *slog.Logger
	Timeout  time.Duration
}

// Persister writes bundles to the local tier synchronously and to the remote
// tier with independent per-kind upserts.
type Persister struct {
	cache    ports.BundleCache
	remote   ports.RemoteStore
	notifier ports.Notifier
	metrics  *metrics.Collectors
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time

	wg sync.WaitGroup
}

// NewPersister constructs the persister. A nil remote store behaves as a
// disabled remote tier.
func NewPersister(deps PersisterDeps) *Persister {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &Persister{
		cache:    deps.Cache,
		remote:   deps.Remote,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   logger,
		timeout:  timeout,
		now:      time.Now,
	}
}

// SaveReport is the outcome of a save. Remote failures never fail the save
// as a whole.
type SaveReport struct {
	Local         error
	Remote        map[domain.RecordKind]error
	RemoteEnabled bool
}

// LocalOnly reports whether the bundle reached the local tier but at least
// one remote write failed.
func (r SaveReport) LocalOnly() bool {
	if r.Local != nil {
		return false
	}
	for _, err := range r.Remote {
		if err != nil {
			return true
		}
	}
	return false
}

// FailedKinds lists the remote kinds that failed, sorted.
func (r SaveReport) FailedKinds() []domain.RecordKind {
	var out []domain.RecordKind
	for kind, err := range r.Remote {
		if err != nil {
			out = append(out, kind)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Err joins every failure of the save.
func (r SaveReport) Err() error {
	errs := []error{r.Local}
	for _, kind := range r.FailedKinds() {
		errs = append(errs, fmt.Errorf("%s: %w", kind, r.Remote[kind]))
	}
	return errors.Join(errs...)
}

// Status renders the report for the operator.
func (r SaveReport) Status() map[string]string {
	out := map[string]string{"local": "ok"}
	if r.Local != nil {
		out["local"] = r.Local.Error()
	}
	if !r.RemoteEnabled {
		out["remote"] = "disabled"
		return out
	}
	for kind, err := range r.Remote {
		if err != nil {
			out[string(kind)] = err.Error()
		} else {
			out[string(kind)] = "ok"
		}
	}
	return out
}

// SaveLocal writes the bundle to the local cache.
func (p *Persister) SaveLocal(bundle domain.Bundle) error {
	if p.cache == nil {
		return nil
	}
	bundle.UpdatedAt = p.now().UTC()
	if err := p.cache.Put(bundle); err != nil {
		p.logger.Error("local save failed", "business_id", bundle.BusinessID, "error", err)
		return fmt.Errorf("save local: %w", err)
	}
	return nil
}

// Dispatch starts an asynchronous remote write of one record kind and
// returns without waiting for it.
func (p *Persister) Dispatch(ctx context.Context, kind domain.RecordKind, bundle domain.Bundle) {
	if !p.remoteEnabled() || !hasRecord(kind, bundle) {
		return
	}
	bundle = bundle.Clone()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		if err := p.write(writeCtx, kind, bundle); err != nil {
			p.notify(ctx, bundle.BusinessID, "save", []domain.RecordKind{kind})
		}
	}()
}

// Save writes the bundle locally and attempts every present record kind
// remotely. Each remote write runs independently; partial success is kept.
// step names the trigger in notices ("save" or "sync").
func (p *Persister) Save(ctx context.Context, step string, bundle domain.Bundle) SaveReport {
	report := SaveReport{
		Local:         p.SaveLocal(bundle),
		Remote:        map[domain.RecordKind]error{},
		RemoteEnabled: p.remoteEnabled(),
	}
	if !report.RemoteEnabled {
		return report
	}

	bundle = bundle.Clone()
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, kind := range domain.RecordKinds() {
		if !hasRecord(kind, bundle) {
			continue
		}
		g.Go(func() error {
			writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			err := p.write(writeCtx, kind, bundle)
			mu.Lock()
			report.Remote[kind] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if report.LocalOnly() {
		p.notify(ctx, bundle.BusinessID, step, report.FailedKinds())
	} else {
		p.logger.Debug("bundle saved", "business_id", bundle.BusinessID, "step", step)
	}
	return report
}

// Wait blocks until dispatched writes finished.
func (p *Persister) Wait() {
	p.wg.Wait()
}

func (p *Persister) remoteEnabled() bool {
	return p.remote != nil && p.remote.Enabled()
}

func (p *Persister) write(ctx context.Context, kind domain.RecordKind, b domain.Bundle) error {
	var err error
	switch kind {
	case domain.KindPrompt:
		err = p.remote.UpsertPrompt(ctx, domain.PromptRecord{
			BusinessID: b.BusinessID,
			Blueprint:  b.Blueprint,
			Approved:   b.BlueprintApproved,
		})
	case domain.KindWebsite:
		err = p.remote.UpsertWebsite(ctx, domain.WebsiteRecord{
			BusinessID: b.BusinessID,
			URL:        b.URL,
			Markup:     b.Markup,
			Screenshot: b.Screenshot,
		})
	case domain.KindReview:
		err = p.remote.UpsertReview(ctx, b.BusinessID, *b.Review)
	case domain.KindOutreach:
		err = p.remote.UpsertOutreach(ctx, b.BusinessID, *b.Outreach)
	default:
		err = fmt.Errorf("unknown record kind %q", kind)
	}
	p.metrics.RemoteWrite(string(kind), err)
	if err != nil {
		p.logger.Warn("remote write failed", "kind", kind, "business_id", b.BusinessID, "error", err)
	}
	return err
}

func (p *Persister) notify(ctx context.Context, businessID, step string, failed []domain.RecordKind) {
	if p.notifier == nil {
		return
	}
	names := make([]string, len(failed))
	for i, k := range failed {
		names[i] = string(k)
	}
	_ = p.notifier.Notify(ctx, domain.Notice{
		BusinessID: businessID,
		Level:      domain.NoticeWarn,
		Step:       step,
		Message:    "Saved locally only: remote sync failed for " + strings.Join(names, ", "),
	})
}

func hasRecord(kind domain.RecordKind, b domain.Bundle) bool {
	switch kind {
	case domain.KindPrompt:
		return b.Blueprint != ""
	case domain.KindWebsite:
		return b.HasSite()
	case domain.KindReview:
		return b.Review != nil
	case domain.KindOutreach:
		return b.Outreach != nil
	}
	return false
}
