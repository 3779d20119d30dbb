package usefetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hook manages the request lifecycle of one consumer: it merges the
// Provider's Config with its Options, executes requests through a Fetcher and
// keeps the latest outcome in State. Only the most recently started execution
// may commit; earlier ones are cancelled and their results dropped.
//
// A Hook is bound to the context passed to New. Cancelling that context, or
// calling Close, tears it down.
type Hook[T any] struct {
	fetcher  Fetcher
	provider *Provider
	logger   *zap.Logger
	metrics  *Metrics

	life      context.Context
	endLife   context.CancelFunc
	stopOwner func() bool
	unwatch   func()

	mu          sync.Mutex
	state       State[T]
	opts        Options
	token       tokenSlot
	timer       *time.Timer
	effectKey   string
	effectGen   uint64
	closed      bool
	subscribers map[int]func(State[T])
	nextSubID   int

	// snapshots waiting for delivery, in commit order
	pending    []State[T]
	delivering bool
}

// HookOption is a func to configure optional Hook settings
type HookOption func(c context.Context, s *hookSettings) error

type hookSettings struct {
	logger  *zap.Logger
	metrics *Metrics
}

// WithLogger sends hook diagnostics to the supplied logger
func WithLogger(logger *zap.Logger) HookOption {
	return func(c context.Context, s *hookSettings) error {
		if logger == nil {
			return errors.New("usefetch: nil logger")
		}
		s.logger = logger
		return nil
	}
}

// WithMetrics records every execution in m
func WithMetrics(m *Metrics) HookOption {
	return func(c context.Context, s *hookSettings) error {
		s.metrics = m
		return nil
	}
}

// New returns a Hook bound to ctx, reading its Config from the nearest
// Provider attached to ctx. A nil Fetcher gets a default Client. If auto-fetch
// is enabled by opts or the Config and a URL resolves, the Hook starts in the
// loading state and schedules its first execution.
func New[T any](ctx context.Context, f Fetcher, opts Options, hookOpts ...HookOption) (*Hook[T], error) {
	s := hookSettings{logger: zap.NewNop()}
	for _, opt := range hookOpts {
		if err := opt(ctx, &s); err != nil {
			return nil, err
		}
	}

	if f == nil {
		cl, err := NewClient(ctx, ClientWithLogger(s.logger))
		if err != nil {
			return nil, fmt.Errorf("default client: %w", err)
		}
		f = cl
	}

	life, endLife := context.WithCancel(ctx)
	h := &Hook[T]{
		fetcher:     f,
		provider:    ProviderFrom(ctx),
		logger:      s.logger,
		metrics:     s.metrics,
		life:        life,
		endLife:     endLife,
		opts:        opts,
		subscribers: map[int]func(State[T]){},
	}

	cfg := h.provider.Config()
	if (opts.AutoFetch || cfg.AutoFetch) && ResolveURL(cfg.BaseURL, opts.URL) != "" {
		h.state = State[T]{IsLoading: true, Status: StatusLoading}
	}

	h.unwatch = h.provider.Watch(func(Config) { h.reevaluate() })
	h.mu.Lock()
	h.stopOwner = context.AfterFunc(ctx, h.Close)
	h.mu.Unlock()
	h.reevaluate()

	return h, nil
}

// State returns a snapshot of the current state
func (h *Hook[T]) State() State[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Options returns the instance options
func (h *Hook[T]) Options() Options {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opts
}

// Subscribe registers fn to receive every state change. The returned func
// unregisters it.
func (h *Hook[T]) Subscribe(fn func(State[T])) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return func() {}
	}
	id := h.nextSubID
	h.nextSubID++
	h.subscribers[id] = fn
	return func() {
		h.mu.Lock()
		delete(h.subscribers, id)
		h.mu.Unlock()
	}
}

// SetOptions replaces the instance options. The auto-fetch effect re-runs if
// their serialized form changed.
func (h *Hook[T]) SetOptions(opts Options) {
	h.mu.Lock()
	h.opts = opts
	h.mu.Unlock()
	h.reevaluate()
}

// Mutate replaces the data in State without making a request
func (h *Hook[T]) Mutate(data *T) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.state.Data = data
	h.publishLocked()
	h.mu.Unlock()
	h.deliver()
}

// Execute runs one request using the instance options overridden by any
// field set in override, and returns the decoded data. It returns nil when
// no URL resolves, when the request fails (see State().Err) and when the
// execution is superseded or cancelled.
func (h *Hook[T]) Execute(ctx context.Context, override Options) *T {
	return h.execute(ctx, override, 0)
}

// Get executes a GET request
func (h *Hook[T]) Get(ctx context.Context, url string, headers map[string]string) *T {
	return h.Execute(ctx, Options{URL: url, Method: http.MethodGet, Headers: headers})
}

// Post executes a POST request with body
func (h *Hook[T]) Post(ctx context.Context, url string, body any, headers map[string]string) *T {
	return h.Execute(ctx, Options{URL: url, Method: http.MethodPost, Body: body, Headers: headers})
}

// Put executes a PUT request with body
func (h *Hook[T]) Put(ctx context.Context, url string, body any, headers map[string]string) *T {
	return h.Execute(ctx, Options{URL: url, Method: http.MethodPut, Body: body, Headers: headers})
}

// Patch executes a PATCH request with body
func (h *Hook[T]) Patch(ctx context.Context, url string, body any, headers map[string]string) *T {
	return h.Execute(ctx, Options{URL: url, Method: http.MethodPatch, Body: body, Headers: headers})
}

// Remove executes a DELETE request
func (h *Hook[T]) Remove(ctx context.Context, url string, headers map[string]string) *T {
	return h.Execute(ctx, Options{URL: url, Method: http.MethodDelete, Headers: headers})
}

// Upload sends files as a multipart payload. files may be a *Form, which is
// sent untouched, or a File, *File, []File or []*File appended under
// fieldName ("file" when empty). method defaults to POST.
func (h *Hook[T]) Upload(ctx context.Context, url string, files any, fieldName string, headers map[string]string, method string) *T {
	form, err := newUploadForm(files, fieldName)
	if err != nil {
		h.logger.Error("upload skipped", zap.String("url", url), zap.Error(err))
		return nil
	}
	if method == "" {
		method = http.MethodPost
	}
	return h.Execute(ctx, Options{URL: url, Method: method, Body: form, Headers: headers})
}

// Close tears the hook down: the pending auto-fetch and the outstanding
// request are cancelled and later executions become no-ops.
func (h *Hook[T]) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.cleanupLocked()
	h.subscribers = map[int]func(State[T]){}
	stopOwner := h.stopOwner
	h.mu.Unlock()

	h.unwatch()
	stopOwner()
	h.endLife()
}

// reevaluate is the auto-fetch effect. It re-runs whenever the serialized
// options or the Config's AutoFetch flag differ from the previous run.
func (h *Hook[T]) reevaluate() {
	cfg := h.provider.Config()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	key := h.opts.fingerprint() + "|" + strconv.FormatBool(cfg.AutoFetch)
	if key == h.effectKey {
		return
	}
	h.effectKey = key

	// cleanup of the previous run
	h.cleanupLocked()
	h.effectGen++

	if !(h.opts.AutoFetch || cfg.AutoFetch) || h.opts.URL == "" {
		return
	}

	gen := h.effectGen
	h.timer = time.AfterFunc(h.opts.Debounce, func() {
		h.execute(h.life, Options{}, gen)
	})
}

// cleanupLocked stops the pending debounce timer and cancels the outstanding request
func (h *Hook[T]) cleanupLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.token.cancelCurrent()
}

func (h *Hook[T]) execute(ctx context.Context, override Options, effectGen uint64) *T {
	cfg := h.provider.Config()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.logger.Debug("execute on closed hook ignored")
		return nil
	}
	// a debounced call whose effect run was superseded
	if effectGen != 0 && effectGen != h.effectGen {
		h.mu.Unlock()
		return nil
	}

	opts := h.opts.merge(override)
	url := ResolveURL(cfg.BaseURL, opts.URL)
	if url == "" {
		h.mu.Unlock()
		h.logger.Warn("request skipped", zap.String("method", opts.Method), zap.Error(ErrNoURL))
		h.metrics.skipped(opts.Method)
		return nil
	}

	reqCtx, cancel, gen := h.token.replace(ctx)
	defer cancel()

	h.state = State[T]{Data: h.state.Data, IsLoading: true, Status: StatusLoading}
	h.publishLocked()
	h.mu.Unlock()
	h.deliver()

	id := uuid.NewString()
	logger := h.logger.With(
		zap.String("execution_id", id),
		zap.String("method", opts.Method),
		zap.String("url", url),
	)

	spanCtx, span := startSpan(reqCtx, id, opts.Method, url)
	start := time.Now()
	h.metrics.started()

	data, err := h.roundTrip(spanCtx, cfg, opts, url, id)

	outcome := outcomeSuccess
	switch {
	case !h.commit(gen, reqCtx, data, err):
		outcome = outcomeCancelled
		logger.Debug("result discarded", zap.NamedError("cause", err))
		data = nil
	case err != nil:
		outcome = outcomeFailure
		logger.Info("request failed", zap.Error(err))
		if cfg.OnError != nil {
			cfg.OnError(err)
		}
	default:
		logger.Debug("request succeeded")
		if cfg.OnSuccess != nil {
			cfg.OnSuccess(data)
		}
	}

	h.metrics.finished(opts.Method, outcome, time.Since(start))
	endSpan(span, outcome, err)

	return data
}

func (h *Hook[T]) roundTrip(ctx context.Context, cfg Config, opts Options, url, id string) (*T, error) {
	req, err := buildRequest(ctx, cfg, opts, url, id)
	if err != nil {
		return nil, err
	}

	if cfg.Interceptors.Request != nil {
		if req, err = cfg.Interceptors.Request(ctx, req); err != nil {
			return nil, fmt.Errorf("request interceptor: %w", err)
		}
		if req == nil {
			return nil, errors.New("request interceptor returned no request")
		}
	}

	resp, err := h.fetcher.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	if cfg.Interceptors.Response != nil {
		intercepted, err := cfg.Interceptors.Response(ctx, resp)
		if err != nil {
			resp.Close()
			return nil, fmt.Errorf("response interceptor: %w", err)
		}
		if intercepted == nil {
			resp.Close()
			return nil, errors.New("response interceptor returned no response")
		}
		if intercepted != resp {
			resp.Close()
		}
		resp = intercepted
	}
	defer resp.Close()

	if !resp.OK() {
		return nil, &StatusError{StatusCode: resp.StatusCode(), Status: resp.Status(), URL: url}
	}

	data := new(T)
	if err = resp.Decode(ctx, data, DecodeWithJSON()); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return data, nil
}

// buildRequest layers the headers (JSON content type, Config headers, call
// headers) and encodes the body. Multipart bodies carry no Content-Type here.
func buildRequest(ctx context.Context, cfg Config, opts Options, url, id string) (*Request, error) {
	ropts := []RequestOption{WithRequestID(id)}
	if _, isForm := opts.Body.(*Form); !isForm {
		ropts = append(ropts, WithHeader(ContentTypeHeader, ContentTypeJSON))
	}
	ropts = append(ropts, WithHeaders(cfg.Headers), WithHeaders(opts.Headers))
	if opts.Method != http.MethodGet {
		ropts = append(ropts, WithBody(opts.Body))
	}
	return NewRequest(ctx, opts.Method, url, ropts...)
}

// commit stores the outcome of execution gen. Superseded and cancelled
// executions are dropped and commit reports false.
func (h *Hook[T]) commit(gen uint64, reqCtx context.Context, data *T, err error) bool {
	h.mu.Lock()
	if h.closed || !h.token.current(gen) || errors.Is(reqCtx.Err(), context.Canceled) || isCanceled(err) {
		h.mu.Unlock()
		return false
	}
	if err != nil {
		h.state = State[T]{Err: err, Status: StatusFailed}
	} else {
		h.state = State[T]{Data: data, Status: StatusSucceeded}
	}
	h.publishLocked()
	h.mu.Unlock()
	h.deliver()
	return true
}

// publishLocked queues the current state for subscribers
func (h *Hook[T]) publishLocked() {
	h.pending = append(h.pending, h.state)
}

// deliver hands queued snapshots to subscribers in the order they were
// published. One goroutine delivers at a time; the others only enqueue, so a
// subscriber may call back into the hook.
func (h *Hook[T]) deliver() {
	h.mu.Lock()
	if h.delivering {
		h.mu.Unlock()
		return
	}
	h.delivering = true
	for len(h.pending) > 0 {
		batch := h.pending
		h.pending = nil
		subs := make([]func(State[T]), 0, len(h.subscribers))
		for _, fn := range h.subscribers {
			subs = append(subs, fn)
		}
		h.mu.Unlock()

		for _, st := range batch {
			for _, fn := range subs {
				fn(st)
			}
		}

		h.mu.Lock()
	}
	h.delivering = false
	h.mu.Unlock()
}

// tokenSlot holds the cancellation token of the one outstanding execution.
// Replacing it cancels the previous token and makes the new one current.
type tokenSlot struct {
	gen    uint64
	cancel context.CancelFunc
}

func (s *tokenSlot) replace(parent context.Context) (context.Context, context.CancelFunc, uint64) {
	s.cancelCurrent()
	ctx, cancel := context.WithCancel(parent)
	s.gen++
	s.cancel = cancel
	return ctx, cancel, s.gen
}

func (s *tokenSlot) cancelCurrent() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *tokenSlot) current(gen uint64) bool {
	return s.gen == gen
}
