package resilient

import "time"

// Layer names the retry layer that emitted an event.
type Layer string

const (
	// LayerTransport is the client-wide layer wrapping the HTTP transport.
	LayerTransport Layer = "transport"
	// LayerCall is the optional per-call layer on top of the transport.
	LayerCall Layer = "call"
)

// RetryEvent describes a retryable failure about to be followed by a sleep
// and another attempt.
type RetryEvent struct {
	Err     error
	Layer   Layer
	Attempt int // 1-indexed attempt that failed
	Delay   time.Duration
}

// ExhaustedEvent describes a call whose retry budget ran out while only
// retryable failures were observed.
type ExhaustedEvent struct {
	Err      error
	Layer    Layer
	Attempts int
}

// Hooks holds optional callbacks for retry lifecycle events. All fields are
// nil by default; callers set only the hooks they care about. Once
// constructed, a Hooks value must not be mutated — emit methods read the
// function fields without synchronisation.
//
// Pattern: Observer — decouples event emission from consumers (logging,
// metrics) without the retry loop knowing about them.
type Hooks struct {
	OnRetry     func(RetryEvent)
	OnExhausted func(ExhaustedEvent)
	OnTimeout   func(elapsed time.Duration)
}

// JoinHooks returns Hooks that call every non-nil callback of hs in order.
func JoinHooks(hs ...Hooks) Hooks {
	var joined Hooks

	for _, h := range hs {
		if h.OnRetry != nil {
			prev, next := joined.OnRetry, h.OnRetry
			joined.OnRetry = func(ev RetryEvent) {
				if prev != nil {
					prev(ev)
				}
				next(ev)
			}
		}

		if h.OnExhausted != nil {
			prev, next := joined.OnExhausted, h.OnExhausted
			joined.OnExhausted = func(ev ExhaustedEvent) {
				if prev != nil {
					prev(ev)
				}
				next(ev)
			}
		}

		if h.OnTimeout != nil {
			prev, next := joined.OnTimeout, h.OnTimeout
			joined.OnTimeout = func(elapsed time.Duration) {
				if prev != nil {
					prev(elapsed)
				}
				next(elapsed)
			}
		}
	}

	return joined
}

func (h *Hooks) emitRetry(ev RetryEvent) {
	if h != nil && h.OnRetry != nil {
		h.OnRetry(ev)
	}
}

func (h *Hooks) emitExhausted(ev ExhaustedEvent) {
	if h != nil && h.OnExhausted != nil {
		h.OnExhausted(ev)
	}
}

func (h *Hooks) emitTimeout(elapsed time.Duration) {
	if h != nil && h.OnTimeout != nil {
		h.OnTimeout(elapsed)
	}
}
