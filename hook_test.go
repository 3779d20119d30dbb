package usefetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type payload struct {
	V string `json:"v"`
}

// fakeFetcher records every request and answers through handler
type fakeFetcher struct {
	mu       sync.Mutex
	requests []*Request
	handler  func(ctx context.Context, req *Request) (*Response, error)
}

func (f *fakeFetcher) Do(ctx context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.handler(ctx, req)
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeFetcher) request(i int) *Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func jsonResponse(ctx context.Context, req *Request, status int, body string) *Response {
	return NewResponse(ctx, req, &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{ContentTypeHeader: {ContentTypeJSON}},
		Body:       io.NopCloser(strings.NewReader(body)),
	})
}

func okFetcher(body string) *fakeFetcher {
	return &fakeFetcher{handler: func(ctx context.Context, req *Request) (*Response, error) {
		return jsonResponse(ctx, req, http.StatusOK, body), nil
	}}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestHook[T any](t *testing.T, ctx context.Context, f Fetcher, opts Options, hookOpts ...HookOption) *Hook[T] {
	t.Helper()
	// background executions may log after the test returns; keep debug out of t.Log
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	hookOpts = append([]HookOption{WithLogger(logger)}, hookOpts...)
	h, err := New[T](ctx, f, opts, hookOpts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(h.Close)
	return h
}

func TestHookGetResolvesAgainstConfig(t *testing.T) {
	ctx, _ := Provide(context.Background(), Config{
		BaseURL: "https://api.x.com/",
		Headers: map[string]string{"Authorization": "Bearer t"},
	})
	f := okFetcher(`{"v":"user"}`)
	h := newTestHook[payload](t, ctx, f, Options{})

	got := h.Get(ctx, "/users/1", nil)
	if got == nil || got.V != "user" {
		t.Fatalf("Get() = %+v, want user", got)
	}

	req := f.request(0)
	if req.Method != http.MethodGet {
		t.Errorf("method = %s, want GET", req.Method)
	}
	if req.URL != "https://api.x.com/users/1" {
		t.Errorf("url = %s, want https://api.x.com/users/1", req.URL)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer t" {
		t.Errorf("Authorization = %q, want Bearer t", got)
	}
	if req.Body != nil {
		t.Errorf("GET body = %q, want none", req.Body)
	}
	if req.ID == "" {
		t.Error("request carries no execution id")
	}

	st := h.State()
	if st.Status != StatusSucceeded || st.IsLoading || st.Err != nil || st.Data.V != "user" {
		t.Errorf("State() = %+v", st)
	}
}

func TestHookPostEncodesJSON(t *testing.T) {
	ctx := context.Background()
	f := okFetcher(`{"v":"created"}`)
	h := newTestHook[payload](t, ctx, f, Options{})

	if got := h.Post(ctx, "https://api.x.com/posts", map[string]string{"title": "a"}, nil); got == nil {
		t.Fatalf("Post() = nil, err %v", h.State().Err)
	}

	req := f.request(0)
	if req.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", req.Method)
	}
	if string(req.Body) != `{"title":"a"}` {
		t.Errorf("body = %s, want {\"title\":\"a\"}", req.Body)
	}
	if got := req.Header.Get(ContentTypeHeader); got != ContentTypeJSON {
		t.Errorf("Content-Type = %q, want %q", got, ContentTypeJSON)
	}
}

func TestHookVerbs(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name       string
		call       func(h *Hook[payload]) *payload
		wantMethod string
		wantBody   string
	}{
		{"Get", func(h *Hook[payload]) *payload { return h.Get(ctx, "https://x.com/a", nil) }, http.MethodGet, ""},
		{"Post", func(h *Hook[payload]) *payload { return h.Post(ctx, "https://x.com/a", payload{V: "1"}, nil) }, http.MethodPost, `{"v":"1"}`},
		{"Put", func(h *Hook[payload]) *payload { return h.Put(ctx, "https://x.com/a", payload{V: "2"}, nil) }, http.MethodPut, `{"v":"2"}`},
		{"Patch", func(h *Hook[payload]) *payload { return h.Patch(ctx, "https://x.com/a", payload{V: "3"}, nil) }, http.MethodPatch, `{"v":"3"}`},
		{"Remove", func(h *Hook[payload]) *payload { return h.Remove(ctx, "https://x.com/a", nil) }, http.MethodDelete, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := okFetcher(`{"v":"ok"}`)
			h := newTestHook[payload](t, ctx, f, Options{})
			if got := tt.call(h); got == nil || got.V != "ok" {
				t.Fatalf("%s() = %+v", tt.name, got)
			}
			req := f.request(0)
			if req.Method != tt.wantMethod {
				t.Errorf("method = %s, want %s", req.Method, tt.wantMethod)
			}
			if string(req.Body) != tt.wantBody {
				t.Errorf("body = %q, want %q", req.Body, tt.wantBody)
			}
		})
	}
}

func TestHookHeaderLayering(t *testing.T) {
	ctx, _ := Provide(context.Background(), Config{
		Headers: map[string]string{"X-Layer": "config", "X-Config": "1"},
	})
	f := okFetcher(`{}`)
	h := newTestHook[payload](t, ctx, f, Options{Headers: map[string]string{"X-Instance": "1"}})

	h.Execute(ctx, Options{
		URL:     "https://x.com",
		Method:  http.MethodPost,
		Body:    payload{},
		Headers: map[string]string{"X-Layer": "call", ContentTypeHeader: "application/vnd.api+json"},
	})

	req := f.request(0)
	want := map[string]string{
		"X-Layer":         "call",
		"X-Config":        "1",
		ContentTypeHeader: "application/vnd.api+json",
	}
	for k, v := range want {
		if got := req.Header.Get(k); got != v {
			t.Errorf("header %s = %q, want %q", k, got, v)
		}
	}
	// call headers replace instance headers as a whole
	if got := req.Header.Get("X-Instance"); got != "" {
		t.Errorf("X-Instance = %q, want it replaced by call headers", got)
	}
}

func TestHookStatusError(t *testing.T) {
	var onError []error
	ctx, _ := Provide(context.Background(), Config{
		OnError:   func(err error) { onError = append(onError, err) },
		OnSuccess: func(any) { t.Error("OnSuccess called on failure") },
	})
	f := &fakeFetcher{handler: func(ctx context.Context, req *Request) (*Response, error) {
		return jsonResponse(ctx, req, http.StatusNotFound, `{"message":"missing"}`), nil
	}}
	h := newTestHook[payload](t, ctx, f, Options{})

	if got := h.Get(ctx, "https://x.com/missing", nil); got != nil {
		t.Fatalf("Get() = %+v, want nil", got)
	}

	st := h.State()
	if st.Data != nil || st.IsLoading || st.Status != StatusFailed {
		t.Errorf("State() = %+v", st)
	}
	var se *StatusError
	if !errors.As(st.Err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("State().Err = %v, want status 404", st.Err)
	}
	if !IsStatus(st.Err, 404) {
		t.Error("IsStatus(err, 404) = false")
	}
	if len(onError) != 1 || onError[0] != st.Err {
		t.Errorf("OnError calls = %v, want exactly the state error", onError)
	}
}

func TestHookParseAndTransportErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		handler func(ctx context.Context, req *Request) (*Response, error)
	}{
		{"invalid json", func(ctx context.Context, req *Request) (*Response, error) {
			return jsonResponse(ctx, req, http.StatusOK, `({"v":"x"}`), nil
		}},
		{"trailing data", func(ctx context.Context, req *Request) (*Response, error) {
			return jsonResponse(ctx, req, http.StatusOK, `{"v":"x"} garbage`), nil
		}},
		{"empty body", func(ctx context.Context, req *Request) (*Response, error) {
			return jsonResponse(ctx, req, http.StatusOK, ``), nil
		}},
		{"network failure", func(ctx context.Context, req *Request) (*Response, error) {
			return nil, errors.New("connection refused")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHook[payload](t, ctx, &fakeFetcher{handler: tt.handler}, Options{URL: "https://x.com"})
			if got := h.Execute(ctx, Options{}); got != nil {
				t.Fatalf("Execute() = %+v, want nil", got)
			}
			st := h.State()
			if st.Err == nil || st.Status != StatusFailed || st.IsLoading {
				t.Errorf("State() = %+v, want failure", st)
			}
		})
	}
}

func TestHookSuccessCallbackAndErrorCleared(t *testing.T) {
	var succeeded []any
	ctx, _ := Provide(context.Background(), Config{OnSuccess: func(d any) { succeeded = append(succeeded, d) }})

	fail := true
	f := &fakeFetcher{handler: func(ctx context.Context, req *Request) (*Response, error) {
		if fail {
			return jsonResponse(ctx, req, http.StatusInternalServerError, `{}`), nil
		}
		return jsonResponse(ctx, req, http.StatusOK, `{"v":"ok"}`), nil
	}}
	h := newTestHook[payload](t, ctx, f, Options{URL: "https://x.com"})

	h.Execute(ctx, Options{})
	if h.State().Err == nil {
		t.Fatal("first execution should fail")
	}

	var seenLoading bool
	h.Subscribe(func(s State[payload]) {
		if s.IsLoading {
			seenLoading = true
			if s.Err != nil {
				t.Error("loading state kept the previous error")
			}
		}
	})

	fail = false
	got := h.Execute(ctx, Options{})
	if !seenLoading {
		t.Error("subscriber never saw the loading state")
	}
	if got == nil || h.State().Err != nil {
		t.Fatalf("second execution = %+v, err %v", got, h.State().Err)
	}
	if len(succeeded) != 1 {
		t.Fatalf("OnSuccess calls = %d, want 1", len(succeeded))
	}
	if d, ok := succeeded[0].(*payload); !ok || d.V != "ok" {
		t.Errorf("OnSuccess data = %#v", succeeded[0])
	}
}

func TestHookSupersededResultIsDropped(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	f := &fakeFetcher{handler: func(ctx context.Context, req *Request) (*Response, error) {
		if strings.HasSuffix(req.URL, "/slow") {
			// the response is already on the wire, ignore cancellation
			<-release
			return jsonResponse(ctx, req, http.StatusOK, `{"v":"slow"}`), nil
		}
		return jsonResponse(ctx, req, http.StatusOK, `{"v":"fast"}`), nil
	}}
	h := newTestHook[payload](t, ctx, f, Options{})

	var mu sync.Mutex
	var seen []string
	h.Subscribe(func(s State[payload]) {
		mu.Lock()
		defer mu.Unlock()
		if s.Data != nil {
			seen = append(seen, s.Data.V)
		}
	})

	slow := make(chan *payload, 1)
	go func() { slow <- h.Get(ctx, "https://x.com/slow", nil) }()
	waitFor(t, "slow request", func() bool { return f.count() == 1 })

	if got := h.Get(ctx, "https://x.com/fast", nil); got == nil || got.V != "fast" {
		t.Fatalf("fast Get() = %+v", got)
	}

	close(release)
	if got := <-slow; got != nil {
		t.Errorf("superseded Get() = %+v, want nil", got)
	}

	st := h.State()
	if st.Data == nil || st.Data.V != "fast" || st.Status != StatusSucceeded {
		t.Errorf("State() = %+v, want fast", st)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, v := range seen {
		if v == "slow" {
			t.Error("superseded result reached subscribers")
		}
	}
}

func TestHookSupersedeCancelsToken(t *testing.T) {
	ctx := context.Background()
	cancelled := make(chan error, 1)
	f := &fakeFetcher{handler: func(ctx context.Context, req *Request) (*Response, error) {
		if strings.HasSuffix(req.URL, "/first") {
			<-ctx.Done()
			cancelled <- ctx.Err()
			return nil, ctx.Err()
		}
		return jsonResponse(ctx, req, http.StatusOK, `{"v":"second"}`), nil
	}}
	h := newTestHook[payload](t, ctx, f, Options{})

	first := make(chan *payload, 1)
	go func() { first <- h.Get(ctx, "https://x.com/first", nil) }()
	waitFor(t, "first request", func() bool { return f.count() == 1 })

	h.Get(ctx, "https://x.com/second", nil)

	if err := <-cancelled; !errors.Is(err, context.Canceled) {
		t.Errorf("first token err = %v, want canceled", err)
	}
	if got := <-first; got != nil {
		t.Errorf("first Get() = %+v, want nil", got)
	}
	if st := h.State(); st.Err != nil || st.Data == nil || st.Data.V != "second" {
		t.Errorf("State() = %+v", st)
	}
}

func TestHookUploadMultipart(t *testing.T) {
	ctx, _ := Provide(context.Background(), Config{Headers: map[string]string{"Authorization": "Bearer t"}})
	f := okFetcher(`{"v":"uploaded"}`)
	h := newTestHook[payload](t, ctx, f, Options{})

	file := File{Name: "a.txt", Data: strings.NewReader("x")}
	got := h.Upload(ctx, "https://x.com/upload", file, "", map[string]string{ContentTypeHeader: "text/plain"}, "")
	if got == nil {
		t.Fatalf("Upload() = nil, err %v", h.State().Err)
	}

	req := f.request(0)
	if req.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", req.Method)
	}
	if req.Form == nil || req.Body != nil {
		t.Fatalf("request carries form=%v body=%q, want form only", req.Form, req.Body)
	}
	if ct := req.Header.Get(ContentTypeHeader); ct != "" {
		t.Errorf("Content-Type = %q, want none so the transport sets the boundary", ct)
	}
	if req.Header.Get("Authorization") != "Bearer t" {
		t.Error("config headers dropped on upload")
	}
	if fields := req.Form.Fields(); len(fields) != 1 || fields[0] != "file" {
		t.Errorf("form fields = %v, want [file]", fields)
	}

	h.Upload(ctx, "https://x.com/upload", NewForm().Append("k", "v"), "ignored", nil, http.MethodPut)
	if req = f.request(1); req.Method != http.MethodPut || req.Form.Fields()[0] != "k" {
		t.Errorf("prebuilt form upload = %s", req)
	}
}

func TestHookUploadNilFile(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	ctx := context.Background()
	f := okFetcher(`{}`)
	h := newTestHook[payload](t, ctx, f, Options{}, WithLogger(zap.New(core)))

	var nilFile *File
	tests := []struct {
		name  string
		files any
	}{
		{"nil file", nilFile},
		{"nil element", []*File{{Name: "a.txt", Data: strings.NewReader("x")}, nil}},
	}
	for _, tt := range tests {
		if got := h.Upload(ctx, "https://x.com/upload", tt.files, "", nil, ""); got != nil {
			t.Errorf("Upload(%s) = %+v, want nil", tt.name, got)
		}
	}

	if f.count() != 0 {
		t.Errorf("fetcher called %d times", f.count())
	}
	if st := h.State(); st.Status != StatusIdle || st.Err != nil {
		t.Errorf("State() = %+v, want untouched", st)
	}
	if n := logs.FilterMessage("upload skipped").Len(); n != len(tests) {
		t.Errorf("upload skipped logged %d times, want %d", n, len(tests))
	}
}

func TestHookSubscribersSeeStatesInOrder(t *testing.T) {
	ctx := context.Background()
	h := newTestHook[payload](t, ctx, okFetcher(`{}`), Options{})

	var mu sync.Mutex
	var last *payload
	h.Subscribe(func(s State[payload]) {
		mu.Lock()
		last = s.Data
		mu.Unlock()
	})

	// a subscriber calling back into the hook must not deadlock
	h.Subscribe(func(s State[payload]) {
		if s.Data != nil && s.Data.V == "echo" {
			h.Mutate(&payload{V: "echoed"})
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Mutate(&payload{V: strconv.Itoa(i)})
		}(i)
	}
	wg.Wait()

	mu.Lock()
	got := last
	mu.Unlock()
	if want := h.State().Data; got != want {
		t.Errorf("last delivered data = %+v, State().Data = %+v", got, want)
	}

	h.Mutate(&payload{V: "echo"})
	if st := h.State(); st.Data.V != "echoed" {
		t.Errorf("State().Data = %+v, want the subscriber's mutation", st.Data)
	}
	mu.Lock()
	defer mu.Unlock()
	if last.V != "echoed" {
		t.Errorf("last delivered data = %+v, want echoed", last)
	}
}

func TestHookNoURL(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ctx := context.Background()
	f := okFetcher(`{}`)
	h, err := New[payload](ctx, f, Options{AutoFetch: true}, WithLogger(zap.New(core)))
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if st := h.State(); st.Status != StatusIdle || st.IsLoading {
		t.Errorf("initial State() = %+v, want idle without a URL", st)
	}
	if got := h.Execute(ctx, Options{}); got != nil {
		t.Errorf("Execute() = %+v, want nil", got)
	}
	if st := h.State(); st.Status != StatusIdle || st.Err != nil {
		t.Errorf("State() = %+v, want untouched", st)
	}
	if f.count() != 0 {
		t.Errorf("fetcher called %d times", f.count())
	}
	if n := logs.FilterMessage("request skipped").Len(); n != 1 {
		t.Errorf("diagnostic logged %d times, want 1", n)
	}
}

func TestHookInterceptors(t *testing.T) {
	ctx, _ := Provide(context.Background(), Config{
		Interceptors: Interceptors{
			Request: func(ctx context.Context, req *Request) (*Request, error) {
				time.Sleep(5 * time.Millisecond)
				req.Header.Set("X-Intercepted", "yes")
				return req, nil
			},
			Response: func(ctx context.Context, resp *Response) (*Response, error) {
				if resp.StatusCode() != http.StatusInternalServerError {
					return resp, nil
				}
				return jsonResponse(ctx, resp.Request(), http.StatusOK, `{"v":"recovered"}`), nil
			},
		},
	})
	f := &fakeFetcher{handler: func(ctx context.Context, req *Request) (*Response, error) {
		return jsonResponse(ctx, req, http.StatusInternalServerError, `{}`), nil
	}}
	h := newTestHook[payload](t, ctx, f, Options{})

	got := h.Get(ctx, "https://x.com", nil)
	if got == nil || got.V != "recovered" {
		t.Fatalf("Get() = %+v, err %v", got, h.State().Err)
	}
	if f.request(0).Header.Get("X-Intercepted") != "yes" {
		t.Error("request interceptor result not sent")
	}
}

func TestHookInterceptorError(t *testing.T) {
	boom := errors.New("token expired")
	ctx, _ := Provide(context.Background(), Config{
		Interceptors: Interceptors{Request: func(ctx context.Context, req *Request) (*Request, error) {
			return nil, boom
		}},
	})
	f := okFetcher(`{}`)
	h := newTestHook[payload](t, ctx, f, Options{})

	h.Get(ctx, "https://x.com", nil)
	if err := h.State().Err; !errors.Is(err, boom) {
		t.Errorf("State().Err = %v, want %v", err, boom)
	}
	if f.count() != 0 {
		t.Error("request sent despite interceptor error")
	}
}

func TestHookAutoFetch(t *testing.T) {
	release := make(chan struct{})
	f := &fakeFetcher{handler: func(ctx context.Context, req *Request) (*Response, error) {
		<-release
		return jsonResponse(ctx, req, http.StatusOK, `{"v":"auto"}`), nil
	}}
	ctx, _ := Provide(context.Background(), Config{BaseURL: "https://api.x.com"})
	h := newTestHook[payload](t, ctx, f, Options{URL: "/items", AutoFetch: true})

	if st := h.State(); !st.IsLoading || st.Status != StatusLoading {
		t.Errorf("initial State() = %+v, want loading", st)
	}
	waitFor(t, "auto fetch", func() bool { return f.count() == 1 })
	close(release)
	waitFor(t, "commit", func() bool { return h.State().Status == StatusSucceeded })

	if got := f.request(0).URL; got != "https://api.x.com/items" {
		t.Errorf("url = %s", got)
	}
	if h.State().Data.V != "auto" {
		t.Errorf("State().Data = %+v", h.State().Data)
	}

	// an unchanged option set does not refetch
	h.SetOptions(Options{URL: "/items", AutoFetch: true})
	time.Sleep(50 * time.Millisecond)
	if f.count() != 1 {
		t.Errorf("fetch count = %d after identical options, want 1", f.count())
	}
}

func TestHookDebounce(t *testing.T) {
	ctx := context.Background()
	f := okFetcher(`{"v":"x"}`)
	debounce := 100 * time.Millisecond
	h := newTestHook[payload](t, ctx, f, Options{URL: "https://x.com/a", AutoFetch: true, Debounce: debounce})

	h.SetOptions(Options{URL: "https://x.com/b", AutoFetch: true, Debounce: debounce})
	h.SetOptions(Options{URL: "https://x.com/c", AutoFetch: true, Debounce: debounce})

	waitFor(t, "debounced fetch", func() bool { return f.count() >= 1 })
	time.Sleep(3 * debounce)

	if n := f.count(); n != 1 {
		t.Fatalf("fetch count = %d, want 1", n)
	}
	if got := f.request(0).URL; got != "https://x.com/c" {
		t.Errorf("url = %s, want the latest options", got)
	}
}

func TestHookProviderToggle(t *testing.T) {
	ctx, p := Provide(context.Background(), Config{})
	f := okFetcher(`{"v":"x"}`)
	h := newTestHook[payload](t, ctx, f, Options{URL: "https://x.com"})

	time.Sleep(20 * time.Millisecond)
	if f.count() != 0 || h.State().Status != StatusIdle {
		t.Fatalf("auto fetch ran while disabled")
	}

	p.Set(Config{AutoFetch: true})
	waitFor(t, "fetch after enabling auto fetch", func() bool { return h.State().Status == StatusSucceeded })
}

func TestHookClose(t *testing.T) {
	ctx := context.Background()
	cancelled := make(chan struct{})
	f := &fakeFetcher{handler: func(ctx context.Context, req *Request) (*Response, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	}}
	h, err := New[payload](ctx, f, Options{URL: "https://x.com", AutoFetch: true}, WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "auto fetch", func() bool { return f.count() == 1 })

	h.Close()
	<-cancelled

	if st := h.State(); st.Err != nil || st.Status != StatusLoading {
		t.Errorf("State() = %+v, want no commit after teardown", st)
	}
	if got := h.Execute(ctx, Options{}); got != nil || f.count() != 1 {
		t.Errorf("Execute() after Close = %+v, fetches %d", got, f.count())
	}
	h.Close()
}

func TestHookOwnerContextTeardown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := okFetcher(`{}`)
	h := newTestHook[payload](t, ctx, f, Options{URL: "https://x.com", Debounce: time.Hour, AutoFetch: true})

	cancel()
	waitFor(t, "teardown", func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.closed
	})
	if f.count() != 0 {
		t.Error("pending debounce fired after teardown")
	}
}

func TestHookMutate(t *testing.T) {
	ctx := context.Background()
	h := newTestHook[payload](t, ctx, okFetcher(`{}`), Options{})

	var got State[payload]
	h.Subscribe(func(s State[payload]) { got = s })
	h.Mutate(&payload{V: "local"})

	if got.Data == nil || got.Data.V != "local" || h.State().Data.V != "local" {
		t.Errorf("Mutate() not reflected: %+v", got)
	}
}

func TestHookMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)
	ctx := context.Background()
	f := &fakeFetcher{handler: func(ctx context.Context, req *Request) (*Response, error) {
		if strings.HasSuffix(req.URL, "/missing") {
			return jsonResponse(ctx, req, http.StatusNotFound, `{}`), nil
		}
		return jsonResponse(ctx, req, http.StatusOK, `{}`), nil
	}}
	h := newTestHook[payload](t, ctx, f, Options{}, WithMetrics(m))

	h.Get(ctx, "https://x.com/ok", nil)
	h.Get(ctx, "https://x.com/missing", nil)
	h.Get(ctx, "", nil)

	tests := []struct {
		outcome string
		want    float64
	}{
		{outcomeSuccess, 1},
		{outcomeFailure, 1},
		{outcomeNoURL, 1},
		{outcomeCancelled, 0},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.executionsTotal.WithLabelValues(http.MethodGet, tt.outcome)); got != tt.want {
			t.Errorf("executions{outcome=%s} = %v, want %v", tt.outcome, got, tt.want)
		}
	}
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
}

func TestHookWithClientEndToEnd(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		body, _ := io.ReadAll(r.Body)
		w.Header().Set(ContentTypeHeader, ContentTypeJSON)
		switch {
		case r.URL.Path == "/echo" && r.Header.Get(ContentTypeHeader) == ContentTypeJSON:
			w.Write(body)
		case r.URL.Path == "/upload" && strings.HasPrefix(r.Header.Get(ContentTypeHeader), "multipart/form-data"):
			w.Write([]byte(`{"v":"stored"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{}`))
		}
	}))
	defer ts.Close()

	ctx, _ := Provide(context.Background(), Config{BaseURL: ts.URL + "/"})
	cl, err := NewClient(ctx, ClientWithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatal(err)
	}
	h := newTestHook[payload](t, ctx, cl, Options{})

	if got := h.Post(ctx, "/echo", payload{V: "round trip"}, nil); got == nil || got.V != "round trip" {
		t.Fatalf("Post() = %+v, err %v", got, h.State().Err)
	}
	if got := h.Upload(ctx, "upload", []File{{Name: "a.txt", Data: strings.NewReader("x")}}, "", nil, ""); got == nil || got.V != "stored" {
		t.Fatalf("Upload() = %+v, err %v", got, h.State().Err)
	}
	if got := h.Get(ctx, "/nothing", nil); got != nil || !IsStatus(h.State().Err, http.StatusBadRequest) {
		t.Fatalf("Get() = %+v, err %v", got, h.State().Err)
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Errorf("server hits = %d, want 3", hits)
	}
}
