// Package notify defines the notification sender used for license emails.
// Rendering and delivery belong to the Sender implementation.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/xraph/licensor/license"
)

// Kind names a notification template.
type Kind string

const (
	KindLicenseIssued   Kind = "license_issued"
	KindLicenseUpgraded Kind = "license_upgraded"
	KindCreditsAdded    Kind = "credits_added"
)

// Result is the outcome of a send. Err is set when Success is false.
type Result struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Err     error  `json:"-"`
}

// Sender delivers a templated notification.
type Sender interface {
	Send(ctx context.Context, email string, kind Kind, data map[string]any) Result
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, email string, kind Kind, data map[string]any) Result

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, email string, kind Kind, data map[string]any) Result {
	return f(ctx, email, kind, data)
}

// LogSender writes notifications to a logger instead of delivering them.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements Sender.
func (s LogSender) Send(ctx context.Context, email string, kind Kind, data map[string]any) Result {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	msgID := uuid.NewString()
	logger.InfoContext(ctx, "notification",
		"id", msgID,
		"email", email,
		"kind", string(kind),
		"fields", len(data),
	)
	return Result{Success: true, ID: msgID}
}

// LicenseData returns the template data for a license notification.
func LicenseData(l *license.License) map[string]any {
	return map[string]any{
		"license_key":      l.Key,
		"plan":             string(l.Plan),
		"service":          string(l.Service),
		"token_limit":      l.TokenLimit,
		"tokens_remaining": l.TokensRemaining,
		"site_url":         l.SiteURL,
	}
}
