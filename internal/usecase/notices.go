package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"Prospector/internal/domain"
	"Prospector/internal/logging"
	"Prospector/internal/ports"
)

const defaultNoticeLimit = 50

// NoticeFeed keeps the latest notices per business, logs every notice and
// forwards it to the configured sinks in the background.
type NoticeFeed struct {
	logger *slog.Logger
	sinks  []ports.Notifier
	limit  int
	now    func() time.Time

	mu    sync.Mutex
	items map[string][]domain.Notice
	wg    sync.WaitGroup
}

var _ ports.Notifier = (*NoticeFeed)(nil)

// NewNoticeFeed builds a feed. Nil sinks are skipped.
func NewNoticeFeed(logger *slog.Logger, sinks ...ports.Notifier) *NoticeFeed {
	if logger == nil {
		logger = logging.Discard()
	}
	f := &NoticeFeed{
		logger: logger,
		limit:  defaultNoticeLimit,
		now:    time.Now,
		items:  map[string][]domain.Notice{},
	}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Notify records the notice. Sink failures are logged, never returned.
func (f *NoticeFeed) Notify(ctx context.Context, n domain.Notice) error {
	if n.At.IsZero() {
		n.At = f.now().UTC()
	}

	f.mu.Lock()
	list := append(f.items[n.BusinessID], n)
	if len(list) > f.limit {
		list = list[len(list)-f.limit:]
	}
	f.items[n.BusinessID] = list
	f.mu.Unlock()

	f.logger.Log(ctx, noticeLevel(n.Level), n.Message,
		"business_id", n.BusinessID, "step", n.Step, "blocking", n.Blocking)

	for _, sink := range f.sinks {
		f.wg.Add(1)
		go func(sink ports.Notifier) {
			defer f.wg.Done()
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := sink.Notify(sendCtx, n); err != nil {
				f.logger.Warn("notice delivery failed", "step", n.Step, "error", err)
			}
		}(sink)
	}
	return nil
}

// List returns the notices kept for a business, oldest first. The empty id
// holds notices not tied to a business.
func (f *NoticeFeed) List(businessID string) []domain.Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Notice(nil), f.items[businessID]...)
}

// Clear drops the notices of a business once the operator acknowledged them.
func (f *NoticeFeed) Clear(businessID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, businessID)
}

// Wait blocks until background deliveries finished.
func (f *NoticeFeed) Wait() {
	f.wg.Wait()
}

func noticeLevel(level domain.NoticeLevel) slog.Level {
	switch level {
	case domain.NoticeError:
		return slog.LevelError
	case domain.NoticeWarn:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
