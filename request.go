package usefetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/nozzle/usefetch/internal/json"
	"go.uber.org/zap"
)

const (
	// ContentTypeJSON = "application/json"
	ContentTypeJSON = "application/json"

	// ContentTypeHeader = "Content-Type"
	ContentTypeHeader = "Content-Type"

	// AcceptHeader = "Accept"
	AcceptHeader = "Accept"
)

// Request is a fully built request as seen by a request interceptor and the
// Fetcher. Interceptors may modify any exported field.
type Request struct {
	// ID identifies the Hook execution that built the request. It is not sent.
	ID     string
	Method string
	URL    string
	Header http.Header

	// Body holds the encoded payload. It is ignored when Form is set.
	Body []byte

	// Form is a multipart payload, encoded by the transport together with
	// its boundary-bearing Content-Type.
	Form *Form

	cookies []*http.Cookie

	// BasicAuth options
	optBasicAuth bool
	username     string
	password     string

	logger *zap.Logger
}

// NewRequest returns a new Request with the given method/url and options executed
func NewRequest(c context.Context, method, url string, opts ...RequestOption) (*Request, error) {
	if method == "" {
		method = http.MethodGet
	}
	req := &Request{
		Method: method,
		URL:    url,
		Header: http.Header{},
	}

	// execute all options
	for _, opt := range opts {
		if err := opt(c, req); err != nil {
			return nil, err
		}
	}

	// GET never carries a payload
	if req.Method == http.MethodGet {
		req.Body = nil
		req.Form = nil
	}

	return req, nil
}

// String is a stringer for Request
func (req Request) String() string {
	return fmt.Sprintf("method:%s | url:%s | headers:%s | bodyBytes:%d | form:%t",
		req.Method,
		req.URL,
		req.Header,
		len(req.Body),
		req.Form != nil,
	)
}

// Equal compares the request with another request
// If not equal, a string is returned with first field found different
// Headers and body are only compared when set on the receiver, used by fetchermock
func (req *Request) Equal(reqComp *Request) (bool, string) {
	if reqComp == nil {
		return false, "comparison Request is nil"
	}
	if req.Method != reqComp.Method {
		return false, fmt.Sprintf("method: %s != %s", req.Method, reqComp.Method)
	}
	if req.URL != reqComp.URL {
		return false, fmt.Sprintf("url: %s != %s", req.URL, reqComp.URL)
	}
	for key := range req.Header {
		if _, ok := reqComp.Header[key]; !ok {
			return false, fmt.Sprintf("headers-key: '%s' not found", key)
		}
		if req.Header.Get(key) != reqComp.Header.Get(key) {
			return false, fmt.Sprintf("headers-value: key '%s' | %s != %s", key, req.Header.Get(key), reqComp.Header.Get(key))
		}
	}
	if req.Body != nil && !bytes.Equal(req.Body, reqComp.Body) {
		return false, fmt.Sprintf("body: %s != %s", req.Body, reqComp.Body)
	}
	if req.Form != nil && reqComp.Form == nil {
		return false, "form: expected multipart payload"
	}
	return true, ""
}

// RequestOption is a func to configure optional Request settings
type RequestOption func(c context.Context, req *Request) error

// WithJSONPayload json marshals the payload for the Request
// and sets the content-type and accept headers to application/json
func WithJSONPayload(payload interface{}) RequestOption {
	return func(c context.Context, req *Request) error {
		if payload == nil {
			return nil
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode json payload: %w", err)
		}
		req.Header.Set(AcceptHeader, ContentTypeJSON)
		req.Header.Set(ContentTypeHeader, ContentTypeJSON)
		req.Body = b
		return nil
	}
}

// WithBody sets the payload the way a Hook does: a *Form is passed through
// untouched and any Content-Type header is dropped so the transport can set
// the multipart one; any other non-nil value is JSON encoded without touching
// the headers.
func WithBody(body interface{}) RequestOption {
	return func(c context.Context, req *Request) error {
		switch b := body.(type) {
		case nil:
			return nil
		case *Form:
			req.Form = b
			req.Header.Del(ContentTypeHeader)
			return nil
		default:
			enc, err := json.Marshal(b)
			if err != nil {
				return fmt.Errorf("encode json payload: %w", err)
			}
			req.Body = enc
			return nil
		}
	}
}

// WithBytesPayload sets the given payload for the Request
func WithBytesPayload(payload []byte) RequestOption {
	return func(c context.Context, req *Request) error {
		req.Body = payload
		return nil
	}
}

// WithFormPayload sets a multipart payload for the Request
func WithFormPayload(form *Form) RequestOption {
	return func(c context.Context, req *Request) error {
		req.Form = form
		return nil
	}
}

// WithHeader sets the given key/value combo on the Request headers
func WithHeader(key, value string) RequestOption {
	return func(c context.Context, req *Request) error {
		req.Header.Set(key, value)
		return nil
	}
}

// WithHeaders sets every key/value pair on the Request headers, replacing
// values already present under the same key
func WithHeaders(headers map[string]string) RequestOption {
	return func(c context.Context, req *Request) error {
		for key, value := range headers {
			req.Header.Set(key, value)
		}
		return nil
	}
}

// WithAcceptJSONHeader adds Accept: application/json to the Request headers
func WithAcceptJSONHeader() RequestOption {
	return func(c context.Context, req *Request) error {
		req.Header.Set(AcceptHeader, ContentTypeJSON)
		return nil
	}
}

// WithRequestID sets the execution ID carried by the Request
func WithRequestID(id string) RequestOption {
	return func(c context.Context, req *Request) error {
		req.ID = id
		return nil
	}
}

// WithCookie adds a single cookie to the request
func WithCookie(cookie *http.Cookie) RequestOption {
	return func(c context.Context, req *Request) error {
		req.cookies = append(req.cookies, cookie)
		return nil
	}
}

// WithBasicAuth sets HTTP Basic Authentication authorization header
func WithBasicAuth(username, password string) RequestOption {
	return func(c context.Context, req *Request) error {
		req.optBasicAuth = true
		req.username = username
		req.password = password
		return nil
	}
}
