package engine

import (
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/roach88/actionbus/internal/ir"
)

type greeting struct {
	Text string
}

type invoice struct {
	Total int
}

// newTestBuilder returns a builder with test logging, deterministic run
// ids and a private metrics registry.
func newTestBuilder(t *testing.T, cfg Config) *Builder {
	t.Helper()
	return NewBuilder(cfg,
		WithLogger(slogt.New(t)),
		WithRunIDGenerator(NewSequenceGenerator("run")),
		WithMetrics(NewMetrics(prometheus.NewRegistry())),
	)
}

func mustBuild(t *testing.T, b *Builder) *Bus {
	t.Helper()
	bus, err := b.Build()
	require.NoError(t, err)
	return bus
}

// noop completes with Success and no data.
func noop(*ActionContext) (any, error) {
	return nil, nil
}

// returns completes with Success and data.
func returns(data any) HandlerFunc {
	return func(*ActionContext) (any, error) {
		return data, nil
	}
}

// fails completes with Fail and no data.
func fails(*ActionContext) (any, error) {
	return ir.Fail(nil), nil
}

// recorder collects strings in call order.
type recorder struct {
	calls []string
}

func (r *recorder) add(s string) {
	r.calls = append(r.calls, s)
}

// handler records the action id and completes with Success.
func (r *recorder) handler(ctx *ActionContext) (any, error) {
	r.add(ctx.ActionID())
	return nil, nil
}

// rollback records "rollback:<id>".
func (r *recorder) rollback(rb Rollback) error {
	r.add("rollback:" + rb.ActionID)
	return nil
}
