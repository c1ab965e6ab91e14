package httpx

import (
	"context"
	"sync/atomic"
)

// attemptTrail counts the transport attempts made on behalf of one logical
// call, across every per-call retry.
type attemptTrail struct {
	attempts  atomic.Int64
	exhausted atomic.Bool
}

type trailKey struct{}

func withTrail(ctx context.Context, tr *attemptTrail) context.Context {
	return context.WithValue(ctx, trailKey{}, tr)
}

func trailFrom(ctx context.Context) *attemptTrail {
	tr, _ := ctx.Value(trailKey{}).(*attemptTrail)
	return tr
}

// record adds one transport sequence to the trail. exhausted reports whether
// that sequence ended with its budget spent.
func (t *attemptTrail) record(attempts int, exhausted bool) {
	if t == nil {
		return
	}

	t.attempts.Add(int64(attempts))
	t.exhausted.Store(exhausted)
}

func (t *attemptTrail) total() int {
	return int(t.attempts.Load())
}
