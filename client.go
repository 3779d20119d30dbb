package usefetch

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opencensus.io/plugin/ochttp"
	"go.uber.org/zap"
)

var _ Fetcher = (*Client)(nil)

// Client implements Fetcher on top of resty and is the default network
// primitive for a Hook
type Client struct {
	resty *resty.Client

	httpClient       *http.Client
	keepAlive        time.Duration
	handshakeTimeout time.Duration
	timeout          time.Duration
	tracing          bool

	logger *zap.Logger
}

// NewClient returns a new Client with the given options executed
func NewClient(c context.Context, opts ...ClientOption) (*Client, error) {
	cl := &Client{
		keepAlive:        60 * time.Second,
		handshakeTimeout: 10 * time.Second,
		logger:           zap.NewNop(),
	}

	// execute all options
	for _, opt := range opts {
		if err := opt(c, cl); err != nil {
			return nil, err
		}
	}

	cl.setClient()

	return cl, nil
}

// Do uses the client receiver to execute the provided request
// The response body is left unread; the caller owns Response.Close
func (cl *Client) Do(c context.Context, req *Request) (*Response, error) {
	// if the context has been canceled or the deadline exceeded, don't start the request
	if c.Err() != nil {
		return nil, c.Err()
	}

	logger := req.loggerOr(cl.logger)

	r := cl.resty.R().
		SetContext(c).
		SetDoNotParseResponse(true)

	if len(req.Header) > 0 {
		r.SetHeaderMultiValues(req.Header)
	}
	if len(req.cookies) > 0 {
		r.SetCookies(req.cookies)
	}
	if req.optBasicAuth {
		r.SetBasicAuth(req.username, req.password)
	}

	switch {
	case req.Form != nil:
		body, contentType := req.Form.encode(logger)
		r.SetHeader(ContentTypeHeader, contentType)
		r.SetBody(body)
	case req.Body != nil:
		r.SetBody(req.Body)
	}

	logger.Debug("sending request")
	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		if resp != nil && resp.RawResponse != nil {
			resp.RawBody().Close()
		}
		logger.Debug("request failed", zap.Error(err))
		return nil, err
	}

	logger.Debug("response received", zap.Int("status", resp.StatusCode()))
	return NewResponse(c, req, resp.RawResponse), nil
}

// ClientOption is a func to configure optional Client settings
type ClientOption func(c context.Context, cl *Client) error

// ClientWithKeepAlive is a ClientOption that sets the cl.keepAlive field to the given duration
func ClientWithKeepAlive(dur time.Duration) ClientOption {
	return func(c context.Context, cl *Client) error {
		cl.keepAlive = dur
		return nil
	}
}

// ClientWithHandshakeTimeout is a ClientOption that sets the cl.handshakeTimeout field to the given duration
func ClientWithHandshakeTimeout(dur time.Duration) ClientOption {
	return func(c context.Context, cl *Client) error {
		cl.handshakeTimeout = dur
		return nil
	}
}

// ClientWithTimeout bounds every request made by the client, zero means no limit
func ClientWithTimeout(dur time.Duration) ClientOption {
	return func(c context.Context, cl *Client) error {
		cl.timeout = dur
		return nil
	}
}

// ClientWithTracing wraps the transport with opencensus HTTP instrumentation
func ClientWithTracing() ClientOption {
	return func(c context.Context, cl *Client) error {
		cl.tracing = true
		return nil
	}
}

// ClientWithHTTPClient uses the given http.Client instead of building one,
// keepAlive/handshakeTimeout/tracing are ignored
func ClientWithHTTPClient(hc *http.Client) ClientOption {
	return func(c context.Context, cl *Client) error {
		cl.httpClient = hc
		return nil
	}
}

// setClient creates the resty client using the settings in the given Client
func (cl *Client) setClient() {
	hc := cl.httpClient
	if hc == nil {
		var transport http.RoundTripper = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				KeepAlive: cl.keepAlive,
			}).DialContext,
			TLSHandshakeTimeout: cl.handshakeTimeout,
		}
		if cl.tracing {
			transport = &ochttp.Transport{Base: transport}
		}
		hc = &http.Client{Transport: transport}
	}

	cl.resty = resty.NewWithClient(hc).SetLogger(cl.logger.Sugar())
	if cl.timeout > 0 {
		cl.resty.SetTimeout(cl.timeout)
	}
}
