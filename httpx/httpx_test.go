package httpx_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/byte4ever/resilient"
	"github.com/byte4ever/resilient/httpx"
)

// newTestClient returns a client with millisecond backoff and a silent
// logger; opts are applied last.
func newTestClient(t *testing.T, opts ...httpx.Option) *httpx.Client {
	t.Helper()

	all := append([]httpx.Option{
		httpx.WithBaseDelay(time.Millisecond),
		httpx.WithLogger(zap.NewNop()),
	}, opts...)

	client, err := httpx.NewClient(all...)
	require.NoError(t, err)

	return client
}

// statusSequence serves the given statuses in order, repeating the last one,
// and counts hits.
type statusSequence struct {
	statuses []int
	body     string
	hits     atomic.Int32
}

func (s *statusSequence) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)

	n := int(s.hits.Add(1))
	if n > len(s.statuses) {
		n = len(s.statuses)
	}

	status := s.statuses[n-1]
	if status == http.StatusOK && s.body != "" {
		w.Header().Set("Content-Type", "application/json")
	}

	w.WriteHeader(status)

	if s.body != "" {
		_, _ = io.WriteString(w, s.body)
	}
}

func serveSequence(t *testing.T, body string, statuses ...int) (*statusSequence, string) {
	t.Helper()

	seq := &statusSequence{statuses: statuses, body: body}
	srv := httptest.NewServer(seq)
	t.Cleanup(srv.Close)

	return seq, srv.URL
}

// retryRecorder collects retry events.
type retryRecorder struct {
	mu     sync.Mutex
	events []resilient.RetryEvent
}

func (r *retryRecorder) hooks() resilient.Hooks {
	return resilient.Hooks{
		OnRetry: func(ev resilient.RetryEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()

			r.events = append(r.events, ev)
		},
	}
}

func (r *retryRecorder) count(layer resilient.Layer) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ev := range r.events {
		if ev.Layer == layer {
			n++
		}
	}

	return n
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := httpx.DefaultConfig()

	require.Equal(t, 3, cfg.MaxRetries)
	require.Equal(t, 200*time.Millisecond, cfg.BaseDelay)
	require.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()

	client, err := httpx.NewClient()

	require.NoError(t, err)
	require.NotNil(t, client)
	require.NotNil(t, client.StandardClient())
}

func TestNewClientRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opt  httpx.Option
	}{
		{name: "negative retries", opt: httpx.WithMaxRetries(-1)},
		{name: "zero base delay", opt: httpx.WithBaseDelay(0)},
		{name: "negative max delay", opt: httpx.WithMaxDelay(-time.Second)},
		{name: "negative timeout", opt: httpx.WithTimeout(-time.Second)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, err := httpx.NewClient(tt.opt)

			require.Nil(t, client)
			require.ErrorIs(t, err, httpx.ErrInvalidConfig)
		})
	}
}

// ---------------------------------------------------------------------------
// Transport layer
// ---------------------------------------------------------------------------

func TestAlwaysUnavailableConsumesBudget(t *testing.T) {
	t.Parallel()

	seq, url := serveSequence(t, `{"error":"down"}`, http.StatusServiceUnavailable)
	rec := &retryRecorder{}
	client := newTestClient(t, httpx.WithHooks(rec.hooks()))

	_, err := httpx.Get[map[string]any](context.Background(), client, url)

	var se *httpx.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	require.JSONEq(t, `{"error":"down"}`, string(se.Body))
	require.ErrorIs(t, err, resilient.ErrRetriesExhausted)
	require.Equal(t, int32(4), seq.hits.Load())
	require.Equal(t, 3, rec.count(resilient.LayerTransport))
	require.Equal(t, httpx.KindTransientStatus, httpx.KindOf(err))

	attempts, ok := resilient.Attempts(err)
	require.True(t, ok)
	require.Equal(t, 4, attempts)
}

func TestTransientThenSuccess(t *testing.T) {
	t.Parallel()

	seq, url := serveSequence(t, `{"name":"ok"}`,
		http.StatusTooManyRequests, http.StatusBadGateway, http.StatusOK)
	client := newTestClient(t)

	got, err := httpx.Get[struct {
		Name string `json:"name"`
	}](context.Background(), client, url)

	require.NoError(t, err)
	require.Equal(t, "ok", got.Name)
	require.Equal(t, int32(3), seq.hits.Load())
}

func TestPermanentStatusIsNotRetried(t *testing.T) {
	t.Parallel()

	seq, url := serveSequence(t, "missing", http.StatusNotFound)
	client := newTestClient(t)

	_, err := client.GetText(context.Background(), url)

	var se *httpx.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusNotFound, se.StatusCode)
	require.Equal(t, "missing", string(se.Body))
	require.NotErrorIs(t, err, resilient.ErrRetriesExhausted)
	require.Equal(t, int32(1), seq.hits.Load())
	require.Equal(t, httpx.KindPermanentStatus, httpx.KindOf(err))
}

func TestZeroRetriesAttemptsOnce(t *testing.T) {
	t.Parallel()

	seq, url := serveSequence(t, "", http.StatusServiceUnavailable)
	client := newTestClient(t, httpx.WithMaxRetries(0))

	err := client.Delete(context.Background(), url)

	var se *httpx.StatusError
	require.ErrorAs(t, err, &se)
	require.NotErrorIs(t, err, resilient.ErrRetriesExhausted)
	require.Equal(t, int32(1), seq.hits.Load())
}

func TestTransportErrorIsRetried(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec := &retryRecorder{}
	client := newTestClient(t, httpx.WithMaxRetries(2), httpx.WithHooks(rec.hooks()))

	_, err := client.GetText(context.Background(), url)

	require.Error(t, err)
	require.ErrorIs(t, err, resilient.ErrRetriesExhausted)
	require.Equal(t, 2, rec.count(resilient.LayerTransport))
	require.Equal(t, httpx.KindTransientTransport, httpx.KindOf(err))

	attempts, ok := resilient.Attempts(err)
	require.True(t, ok)
	require.Equal(t, 3, attempts)
}

func TestClientWideRetryStatus(t *testing.T) {
	t.Parallel()

	seq, url := serveSequence(t, "done", http.StatusConflict, http.StatusConflict, http.StatusOK)
	client := newTestClient(t, httpx.WithTransportRetryStatus(http.StatusConflict))

	got, err := client.GetText(context.Background(), url)

	require.NoError(t, err)
	require.Equal(t, "done", got)
	require.Equal(t, int32(3), seq.hits.Load())
}

func TestDeleteRetriedThenSucceeds(t *testing.T) {
	t.Parallel()

	seq, url := serveSequence(t, "",
		http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusOK)
	client := newTestClient(t)

	err := client.Delete(context.Background(), url)

	require.NoError(t, err)
	require.Equal(t, int32(3), seq.hits.Load())
}

// ---------------------------------------------------------------------------
// Per-call layer
// ---------------------------------------------------------------------------

func TestPerCallPredicateRetriesUpToBudget(t *testing.T) {
	t.Parallel()

	seq, url := serveSequence(t, "", http.StatusConflict)
	rec := &retryRecorder{}
	client := newTestClient(t, httpx.WithHooks(rec.hooks()))

	err := client.Delete(context.Background(), url, httpx.WithRetryStatus(http.StatusConflict))

	var se *httpx.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusConflict, se.StatusCode)
	require.ErrorIs(t, err, resilient.ErrRetriesExhausted)
	require.Equal(t, int32(4), seq.hits.Load())
	require.Equal(t, 3, rec.count(resilient.LayerCall))
	require.Equal(t, 0, rec.count(resilient.LayerTransport))

	attempts, ok := resilient.Attempts(err)
	require.True(t, ok)
	require.Equal(t, 4, attempts)
}

func TestPerCallPredicateOverlappingTransientSetKeepsBudget(t *testing.T) {
	t.Parallel()

	seq, url := serveSequence(t, "", http.StatusServiceUnavailable)
	rec := &retryRecorder{}
	client := newTestClient(t, httpx.WithHooks(rec.hooks()))

	err := client.Delete(context.Background(), url,
		httpx.WithRetryStatus(http.StatusServiceUnavailable, http.StatusConflict))

	var se *httpx.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	require.ErrorIs(t, err, resilient.ErrRetriesExhausted)
	require.Equal(t, int32(4), seq.hits.Load())
	require.Equal(t, 3, rec.count(resilient.LayerTransport))
	require.Equal(t, 0, rec.count(resilient.LayerCall))

	attempts, ok := resilient.Attempts(err)
	require.True(t, ok)
	require.Equal(t, 4, attempts)
}

func TestPerCallPredicateOverlappingClientWideKeepsBudget(t *testing.T) {
	t.Parallel()

	seq, url := serveSequence(t, "", http.StatusConflict)
	rec := &retryRecorder{}
	client := newTestClient(t,
		httpx.WithTransportRetryStatus(http.StatusConflict),
		httpx.WithHooks(rec.hooks()),
	)

	err := client.Delete(context.Background(), url, httpx.WithRetryStatus(http.StatusConflict))

	var se *httpx.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusConflict, se.StatusCode)
	require.ErrorIs(t, err, resilient.ErrRetriesExhausted)
	require.Equal(t, int32(4), seq.hits.Load())
	require.Equal(t, 3, rec.count(resilient.LayerTransport))
	require.Equal(t, 0, rec.count(resilient.LayerCall))
}

func TestWithoutPredicatePermanentStatusFailsOnce(t *testing.T) {
	t.Parallel()

	seq, url := serveSequence(t, "", http.StatusConflict)
	client := newTestClient(t)

	err := client.Delete(context.Background(), url)

	require.Error(t, err)
	require.Equal(t, int32(1), seq.hits.Load())
}

func TestPerCallPredicateIgnoresOtherStatuses(t *testing.T) {
	t.Parallel()

	seq, url := serveSequence(t, "", http.StatusBadRequest)
	client := newTestClient(t)

	err := client.Delete(context.Background(), url, httpx.WithRetryStatus(http.StatusConflict))

	require.Error(t, err)
	require.Equal(t, int32(1), seq.hits.Load())
}

func TestPerCallRetryRecovers(t *testing.T) {
	t.Parallel()

	seq, url := serveSequence(t, `{"id":7}`, http.StatusConflict, http.StatusOK)
	client := newTestClient(t)

	got, err := httpx.PostJSON[map[string]string, map[string]int](
		context.Background(), client, url,
		map[string]string{"name": "x"},
		httpx.WithRetryIf(func(code int) bool { return code == http.StatusConflict }),
	)

	require.NoError(t, err)
	require.Equal(t, 7, got["id"])
	require.Equal(t, int32(2), seq.hits.Load())
}

// ---------------------------------------------------------------------------
// Cancellation and timeout
// ---------------------------------------------------------------------------

func TestCancelBeforeFirstAttempt(t *testing.T) {
	t.Parallel()

	seq, url := serveSequence(t, "", http.StatusOK)
	client := newTestClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetText(ctx, url)

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int32(0), seq.hits.Load())
	require.Equal(t, httpx.KindCanceled, httpx.KindOf(err))
}

func TestCancelDuringBackoffStopsRetrying(t *testing.T) {
	t.Parallel()

	seq, url := serveSequence(t, "", http.StatusServiceUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newTestClient(t,
		httpx.WithBackoff(resilient.ConstantBackoff(time.Hour)),
		httpx.WithHooks(resilient.Hooks{
			OnRetry: func(resilient.RetryEvent) { cancel() },
		}),
	)

	err := client.Delete(ctx, url)

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int32(1), seq.hits.Load())
}

func TestHardTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	var timeouts atomic.Int32

	client := newTestClient(t,
		httpx.WithTimeout(50*time.Millisecond),
		httpx.WithHooks(resilient.Hooks{
			OnTimeout: func(time.Duration) { timeouts.Add(1) },
		}),
	)

	_, err := client.GetText(context.Background(), srv.URL)

	require.ErrorIs(t, err, resilient.ErrTimeout)
	require.Equal(t, httpx.KindTimeout, httpx.KindOf(err))
	require.Equal(t, int32(1), timeouts.Load())
}

// ---------------------------------------------------------------------------
// Verbs
// ---------------------------------------------------------------------------

func TestJSONVerbs(t *testing.T) {
	t.Parallel()

	type item struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" ||
			r.Header.Get("Accept") != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}

		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"method":"`+r.Method+`","echo":`+string(body)+`}`)
	}))
	t.Cleanup(srv.Close)

	type reply struct {
		Method string `json:"method"`
		Echo   item   `json:"echo"`
	}

	client := newTestClient(t)
	ctx := context.Background()

	posted, err := httpx.PostJSON[item, reply](ctx, client, srv.URL, item{Name: "a", Count: 1})
	require.NoError(t, err)
	require.Equal(t, reply{Method: http.MethodPost, Echo: item{Name: "a", Count: 1}}, posted)

	put, err := httpx.PutJSON[item, reply](ctx, client, srv.URL, item{Name: "b", Count: 2})
	require.NoError(t, err)
	require.Equal(t, reply{Method: http.MethodPut, Echo: item{Name: "b", Count: 2}}, put)
}

func TestGetEmptyBodyYieldsZeroValue(t *testing.T) {
	t.Parallel()

	_, url := serveSequence(t, "", http.StatusNoContent)
	client := newTestClient(t)

	got, err := httpx.Get[map[string]int](context.Background(), client, url)

	require.NoError(t, err)
	require.Nil(t, got)
}

func TestGetInvalidJSON(t *testing.T) {
	t.Parallel()

	seq, url := serveSequence(t, "{not json", http.StatusOK)
	client := newTestClient(t)

	_, err := httpx.Get[map[string]int](context.Background(), client, url)

	require.ErrorIs(t, err, httpx.ErrInvalidResponse)
	require.Equal(t, httpx.KindInvalidResponse, httpx.KindOf(err))
	require.Equal(t, int32(1), seq.hits.Load())
}

func TestDoSendsRawBody(t *testing.T) {
	t.Parallel()

	type received struct {
		method string
		body   string
	}

	got := make(chan received, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{method: r.Method, body: string(body)}
		_, _ = io.WriteString(w, "patched")
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t)

	resp, err := client.Do(context.Background(), http.MethodPatch, srv.URL, []byte("delta"),
		httpx.WithHeader("Content-Type", "text/plain"))
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "patched", string(body))
	require.Equal(t, received{method: http.MethodPatch, body: "delta"}, <-got)
}

func TestMalformedTargetIsPermanent(t *testing.T) {
	t.Parallel()

	rec := &retryRecorder{}
	client := newTestClient(t, httpx.WithHooks(rec.hooks()))

	_, err := client.GetText(context.Background(), "http://[::1]:namedport")

	require.Error(t, err)
	require.True(t, resilient.IsPermanent(err))
	require.Equal(t, 0, rec.count(resilient.LayerTransport))
	require.Equal(t, httpx.KindLocalPrecondition, httpx.KindOf(err))
}

func TestConcurrentCalls(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.URL.Query().Get("n"))
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t)

	var wg sync.WaitGroup

	errs := make(chan error, 16)

	for i := range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			n := strings.Repeat("x", i)

			got, err := client.GetText(context.Background(), srv.URL+"?n="+n)
			if err == nil && got != n {
				err = errors.New("unexpected body " + got)
			}

			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}

// ---------------------------------------------------------------------------
// Logging
// ---------------------------------------------------------------------------

func TestRetriesAreLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	_, url := serveSequence(t, "", http.StatusServiceUnavailable, http.StatusOK)

	client := newTestClient(t, httpx.WithLogger(zap.New(core)))

	require.NoError(t, client.Delete(context.Background(), url))

	retries := logs.FilterMessage("retrying after failure").All()
	require.Len(t, retries, 1)

	fields := retries[0].ContextMap()
	require.Equal(t, "transport", fields["layer"])
	require.Equal(t, http.MethodDelete, fields["method"])
	require.Equal(t, int64(1), fields["attempt"])
}

func TestExhaustionIsLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	_, url := serveSequence(t, "", http.StatusConflict)

	client := newTestClient(t, httpx.WithLogger(zap.New(core)), httpx.WithMaxRetries(1))

	err := client.Delete(context.Background(), url, httpx.WithRetryStatus(http.StatusConflict))
	require.Error(t, err)

	exhausted := logs.FilterMessage("retry budget exhausted").All()
	require.Len(t, exhausted, 1)
	require.Equal(t, zapcore.ErrorLevel, exhausted[0].Level)
	require.Equal(t, "call", exhausted[0].ContextMap()["layer"])
}
