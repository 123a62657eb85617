// Package alert tells ledger operators when background verification finds
// the chain broken.
package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Integrity describes a failed chain verification.
type Integrity struct {
	Root    string
	Entries int
	Err     error
	At      time.Time
}

// Subject is the one-line summary used as an email subject.
func (a Integrity) Subject() string {
	return fmt.Sprintf("[AyuTrack] ledger integrity degraded (%d entries)", a.Entries)
}

// Body is the plain-text alert body.
func (a Integrity) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Background verification of the AyuTrack ledger failed at %s.\n\n", a.At.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Entries: %d\n", a.Entries)
	if a.Root != "" {
		fmt.Fprintf(&b, "Root:    %s\n", a.Root)
	}
	if a.Err != nil {
		fmt.Fprintf(&b, "Error:   %v\n", a.Err)
	}
	b.WriteString("\nInspect the store before accepting further appends.\n")
	return b.String()
}

// Notifier delivers integrity alerts.
type Notifier interface {
	Notify(ctx context.Context, a Integrity) error
}

// LogNotifier writes alerts to zap instead of delivering them.
// Use in development or when SMTP is not configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier backed by the given logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the alert and returns nil.
func (n *LogNotifier) Notify(_ context.Context, a Integrity) error {
	n.logger.Warn("integrity alert (not mailed)",
		zap.String("subject", a.Subject()),
		zap.Int("entries", a.Entries),
		zap.String("root", a.Root),
		zap.Error(a.Err),
	)
	return nil
}
