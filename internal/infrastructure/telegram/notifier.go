package telegram

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"Prospector/internal/domain"
	"Prospector/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier sends operator notices to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	minLevel domain.NoticeLevel
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier. Only warnings and
// errors are forwarded.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		minLevel: domain.NoticeWarn,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify posts the notice as an HTML message. Notices below the minimum
// level are dropped.
func (n *Notifier) Notify(ctx context.Context, notice domain.Notice) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	if rank(notice.Level) < rank(n.minLevel) {
		return nil
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", formatNotice(notice))
	form.Set("parse_mode", "HTML")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

// formatNotice renders the notice for parse_mode=HTML. Every dynamic part is
// escaped; only the level tag is markup.
func formatNotice(n domain.Notice) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b> %s", strings.ToUpper(string(n.Level)), html.EscapeString(n.Step))
	if n.BusinessID != "" {
		fmt.Fprintf(&sb, " (business %s)", html.EscapeString(n.BusinessID))
	}
	sb.WriteString("\n")
	sb.WriteString(html.EscapeString(n.Message))
	return sb.String()
}

func rank(level domain.NoticeLevel) int {
	switch level {
	case domain.NoticeError:
		return 2
	case domain.NoticeWarn:
		return 1
	default:
		return 0
	}
}
