package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/plan"
)

// Plugin sends the plan-change notification after a license is upgraded.
// License-issued mail is sent by the engine itself, only when requested. The
// plugin runs on the engine's registry, so a failed send is logged there and
// never fails the license write.
type Plugin struct {
	sender Sender
	logger *slog.Logger
}

// NewPlugin returns a notification plugin backed by sender.
func NewPlugin(sender Sender, logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Plugin{sender: sender, logger: logger}
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return "notify" }

// OnLicenseUpgraded implements plugin.OnLicenseUpgraded.
func (p *Plugin) OnLicenseUpgraded(ctx context.Context, l *license.License, from plan.Plan) error {
	if l.Email == "" {
		return nil
	}
	data := LicenseData(l)
	data["previous_plan"] = string(from)
	return p.send(ctx, l.Email, KindLicenseUpgraded, data)
}

func (p *Plugin) send(ctx context.Context, email string, kind Kind, data map[string]any) error {
	res := p.sender.Send(ctx, email, kind, data)
	if res.Success {
		p.logger.Debug("notification sent", "kind", string(kind), "id", res.ID)
		return nil
	}
	if res.Err != nil {
		return fmt.Errorf("notify: send %s: %w", kind, res.Err)
	}
	return fmt.Errorf("notify: send %s failed", kind)
}
