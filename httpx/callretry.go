package httpx

import (
	"errors"
	"net/http"

	"github.com/byte4ever/resilient"
)

// callLayer returns the per-call retry middleware. Without a predicate it
// returns nil, which [resilient.Chain] skips: the call goes straight to the
// transport layer.
//
// With a predicate, only a [StatusError] that the transport layer did not
// consider retryable, and whose status pred accepts, is retried. A status in
// the transient set or the client-wide predicate already had the whole
// budget below; it is surfaced as is. Transport errors were retried below
// and permanent errors never are.
func (c *Client) callLayer(pred StatusPredicate, hooks *resilient.Hooks) resilient.Middleware[*http.Response] {
	if pred == nil {
		return nil
	}

	return resilient.RetryMiddleware[*http.Response](resilient.RetryParams{
		Strategy: c.strategy,
		RetryIf: func(err error) bool {
			var se *StatusError
			if !errors.As(err, &se) {
				return false
			}

			if IsRetryable(Outcome{StatusCode: se.StatusCode}, c.cfg.RetryIf) {
				return false
			}

			return pred(se.StatusCode)
		},
		Hooks:      hooks,
		Clock:      c.cfg.Clock,
		Layer:      resilient.LayerCall,
		MaxRetries: c.cfg.MaxRetries,
	})
}
