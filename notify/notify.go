// Package notify delivers change reports to downstream consumers. The
// detection core knows nothing about transports; it hands a Change to a
// Notifier and moves on.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Change describes newly detected content on a monitored page.
type Change struct {
	Site       string    `json:"site"`
	URL        string    `json:"url"`
	Added      []string  `json:"added"`
	AddedChars int       `json:"added_chars"`
	Preview    string    `json:"preview,omitempty"` // markdown rendering of the current page
	DetectedAt time.Time `json:"detected_at"`
}

// Notifier delivers one change report.
type Notifier interface {
	Notify(ctx context.Context, ch *Change) error
}

// Multi fans a change out to several notifiers. Delivery failures are
// independent: every notifier is attempted, the first error is returned.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, ch *Change) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, ch); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Log writes change reports to structured logs. Always-on default sink.
type Log struct {
	Logger *slog.Logger
}

// NewLog creates a Log notifier.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{Logger: logger}
}

// Notify implements Notifier.
func (l *Log) Notify(_ context.Context, ch *Change) error {
	l.Logger.Info("new content detected",
		"site", ch.Site,
		"url", ch.URL,
		"added_sentences", len(ch.Added),
		"added_chars", ch.AddedChars,
	)
	for i, s := range ch.Added {
		l.Logger.Info("added", "site", ch.Site, "n", i+1, "sentence", s)
	}
	return nil
}
