package plugin_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/plugin"
)

type countingPlugin struct {
	name  string
	calls atomic.Int32
	err   error
}

func (p *countingPlugin) Name() string { return p.name }

func (p *countingPlugin) OnLicenseCreated(context.Context, *license.License) error {
	p.calls.Add(1)
	return p.err
}

type panickingPlugin struct{}

func (panickingPlugin) Name() string { return "panics" }

func (panickingPlugin) OnLicenseCreated(context.Context, *license.License) error {
	panic("boom")
}

type slowPlugin struct{}

func (slowPlugin) Name() string { return "slow" }

func (slowPlugin) OnLicenseCreated(ctx context.Context, _ *license.License) error {
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
	}
	return nil
}

func quietRegistry() *plugin.Registry {
	return plugin.NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := quietRegistry()
	require.NoError(t, r.Register(&countingPlugin{name: "a"}))
	assert.Error(t, r.Register(&countingPlugin{name: "a"}))
	assert.Equal(t, 1, r.Count())
	assert.NotNil(t, r.Get("a"))
	assert.Nil(t, r.Get("b"))
}

func TestEmitSwallowsFailures(t *testing.T) {
	r := quietRegistry().WithTimeout(20 * time.Millisecond)

	failing := &countingPlugin{name: "failing", err: errors.New("smtp down")}
	after := &countingPlugin{name: "after"}
	require.NoError(t, r.Register(failing))
	require.NoError(t, r.Register(panickingPlugin{}))
	require.NoError(t, r.Register(slowPlugin{}))
	require.NoError(t, r.Register(after))

	r.EmitLicenseCreated(context.Background(), &license.License{Key: "k"})

	assert.Equal(t, int32(1), failing.calls.Load())
	assert.Equal(t, int32(1), after.calls.Load())
	assert.Len(t, r.List(), 4)
}
