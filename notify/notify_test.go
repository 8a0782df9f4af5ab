package notify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/notify"
	"github.com/xraph/licensor/plan"
)

type recorded struct {
	email string
	kind  notify.Kind
	data  map[string]any
}

func recorder(out *[]recorded, fail error) notify.Sender {
	return notify.SenderFunc(func(_ context.Context, email string, kind notify.Kind, data map[string]any) notify.Result {
		*out = append(*out, recorded{email, kind, data})
		if fail != nil {
			return notify.Result{Err: fail}
		}
		return notify.Result{Success: true, ID: "msg-1"}
	})
}

func TestPluginSendsLicenseUpgraded(t *testing.T) {
	var sent []recorded
	p := notify.NewPlugin(recorder(&sent, nil), nil)

	l := &license.License{Key: "k-1", Plan: plan.Pro, Email: "a@example.com", TokenLimit: 1000}
	require.NoError(t, p.OnLicenseUpgraded(context.Background(), l, plan.Free))

	require.Len(t, sent, 1)
	assert.Equal(t, notify.KindLicenseUpgraded, sent[0].kind)
	assert.Equal(t, "k-1", sent[0].data["license_key"])
	assert.Equal(t, "a@example.com", sent[0].email)
}

func TestPluginSkipsWithoutEmail(t *testing.T) {
	var sent []recorded
	p := notify.NewPlugin(recorder(&sent, nil), nil)

	require.NoError(t, p.OnLicenseUpgraded(context.Background(), &license.License{Key: "k"}, plan.Free))
	assert.Empty(t, sent)
}

func TestPluginReportsFailure(t *testing.T) {
	var sent []recorded
	smtp := errors.New("smtp down")
	p := notify.NewPlugin(recorder(&sent, smtp), nil)

	err := p.OnLicenseUpgraded(context.Background(), &license.License{Email: "a@example.com"}, plan.Free)
	assert.ErrorIs(t, err, smtp)
	assert.Equal(t, "free", sent[0].data["previous_plan"])
}

func TestLogSender(t *testing.T) {
	s := notify.LogSender{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	res := s.Send(context.Background(), "a@example.com", notify.KindCreditsAdded, nil)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.ID)
}
