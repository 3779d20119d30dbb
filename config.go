package usefetch

import (
	"context"
	"sync"
)

// RequestInterceptor receives the fully built request before it is sent and
// returns the request to send. It may block; ctx is the execution's token.
type RequestInterceptor func(ctx context.Context, req *Request) (*Request, error)

// ResponseInterceptor receives the raw response before its status is checked
// and returns the response to use.
type ResponseInterceptor func(ctx context.Context, resp *Response) (*Response, error)

// Interceptors are the optional request and response hooks of a Config.
type Interceptors struct {
	Request  RequestInterceptor
	Response ResponseInterceptor
}

// Config is shared, read-only configuration for every Hook below a Provider.
type Config struct {
	BaseURL   string
	Headers   map[string]string
	AutoFetch bool

	// OnSuccess is called with the decoded data of every committed success.
	OnSuccess func(data any)
	// OnError is called with the error of every committed failure.
	OnError func(err error)

	Interceptors Interceptors
}

// Provider holds the Config for a subtree of work. The owner may replace the
// value with Set; hooks only read and watch it.
type Provider struct {
	mu       sync.RWMutex
	cfg      Config
	watchers map[int]func(Config)
	nextID   int
}

type providerKey struct{}

// Provide attaches cfg to a new context. Descendant contexts see the nearest
// Provider, so nested calls shadow outer ones.
func Provide(ctx context.Context, cfg Config) (context.Context, *Provider) {
	p := &Provider{cfg: cfg, watchers: map[int]func(Config){}}
	return context.WithValue(ctx, providerKey{}, p), p
}

// ProviderFrom returns the nearest Provider attached to ctx, or nil.
func ProviderFrom(ctx context.Context) *Provider {
	p, _ := ctx.Value(providerKey{}).(*Provider)
	return p
}

// ConfigFrom returns the nearest Provider's Config, or the zero Config.
func ConfigFrom(ctx context.Context) Config {
	return ProviderFrom(ctx).Config()
}

// Config returns the current value. A nil Provider returns the zero Config.
func (p *Provider) Config() Config {
	if p == nil {
		return Config{}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Set replaces the Config and notifies watchers.
func (p *Provider) Set(cfg Config) {
	p.mu.Lock()
	p.cfg = cfg
	watchers := make([]func(Config), 0, len(p.watchers))
	for _, fn := range p.watchers {
		watchers = append(watchers, fn)
	}
	p.mu.Unlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

// Watch registers fn to be called after every Set. The returned func
// unregisters it. Watching a nil Provider is a no-op.
func (p *Provider) Watch(fn func(Config)) (cancel func()) {
	if p == nil {
		return func() {}
	}
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.watchers, id)
		p.mu.Unlock()
	}
}
