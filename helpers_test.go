package licensor_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/notify"
	"github.com/xraph/licensor/store"
	"github.com/xraph/licensor/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sentMail records notifications instead of delivering them.
type sentMail struct {
	mu   sync.Mutex
	sent []notify.Kind
	to   []string
	fail error
}

func (m *sentMail) Send(_ context.Context, email string, kind notify.Kind, _ map[string]any) notify.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, kind)
	m.to = append(m.to, email)
	if m.fail != nil {
		return notify.Result{Err: m.fail}
	}
	return notify.Result{Success: true, ID: "msg"}
}

func (m *sentMail) count(kind notify.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range m.sent {
		if k == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	l     *licensor.Licensor
	store store.Store
	mem   *memory.Store
	mail  *sentMail
}

func newFixture(t *testing.T, wrap func(store.Store) store.Store, opts ...licensor.Option) *fixture {
	t.Helper()

	mem := memory.New()
	var s store.Store = mem
	if wrap != nil {
		s = wrap(s)
	}
	mail := &sentMail{}
	opts = append([]licensor.Option{
		licensor.WithLogger(quietLogger()),
		licensor.WithSender(mail),
	}, opts...)

	return &fixture{l: licensor.New(s, opts...), store: s, mem: mem, mail: mail}
}
