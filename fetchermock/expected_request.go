package fetchermock

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/nozzle/usefetch"
)

// ExpectedRequest is a request the Client expects to receive, with the
// response it answers with
type ExpectedRequest struct {
	requestOptions []usefetch.RequestOption
	request        *usefetch.Request
	err            error

	wasMet bool

	// gate holds the response back until closed
	gate        <-chan struct{}
	honorCancel bool

	// response
	responseBody       []byte
	responseStatusCode int
	responseStatus     string
	responseHeaders    map[string]string
}

// ExpectRequest creates an ExpectedRequest and adds it to the cl.expectedRequests
// Only the headers and body set through WithRequestOptions are compared
func (cl *Client) ExpectRequest(c context.Context, method, url string, opts ...ExpectedRequestOption) error {
	expReq := &ExpectedRequest{
		responseStatusCode: http.StatusOK,
		responseHeaders:    map[string]string{},
	}

	// execute all options
	for _, opt := range opts {
		if err := opt(c, expReq); err != nil {
			return err
		}
	}

	// create the request that will be matched with the executed request
	var err error
	expReq.request, err = usefetch.NewRequest(c, method, url, expReq.requestOptions...)
	if err != nil {
		return err
	}

	cl.mu.Lock()
	cl.expectedRequests = append(cl.expectedRequests, expReq)
	cl.mu.Unlock()

	return nil
}

// String describes the expected request
func (expReq *ExpectedRequest) String() string {
	return expReq.request.String()
}

// ExpectedRequestOption is a func to configure optional settings for an ExpectedRequest
type ExpectedRequestOption func(c context.Context, expReq *ExpectedRequest) error

// WithRequestOptions sets the headers and payload the request must carry
func WithRequestOptions(opts ...usefetch.RequestOption) ExpectedRequestOption {
	return func(c context.Context, expReq *ExpectedRequest) error {
		expReq.requestOptions = opts
		return nil
	}
}

func WithResponseStatusCode(code int) ExpectedRequestOption {
	return func(c context.Context, expReq *ExpectedRequest) error {
		expReq.responseStatusCode = code
		return nil
	}
}

func WithResponseStatus(status string) ExpectedRequestOption {
	return func(c context.Context, expReq *ExpectedRequest) error {
		expReq.responseStatus = status
		return nil
	}
}

func WithResponseBodyBytes(b []byte) ExpectedRequestOption {
	return func(c context.Context, expReq *ExpectedRequest) error {
		expReq.responseBody = b
		return nil
	}
}

func WithResponseHeader(key, value string) ExpectedRequestOption {
	return func(c context.Context, expReq *ExpectedRequest) error {
		expReq.responseHeaders[key] = value
		return nil
	}
}

func WithResponseError(err error) ExpectedRequestOption {
	return func(c context.Context, expReq *ExpectedRequest) error {
		expReq.err = err
		return nil
	}
}

// WithResponseGate holds the response until gate is closed, even if the
// request context is cancelled in the meantime. This mimics a response that
// was already on the wire when the request was superseded.
func WithResponseGate(gate <-chan struct{}) ExpectedRequestOption {
	return func(c context.Context, expReq *ExpectedRequest) error {
		expReq.gate = gate
		expReq.honorCancel = false
		return nil
	}
}

// WithCancellableGate holds the response until gate is closed or the request
// context is cancelled, whichever comes first.
func WithCancellableGate(gate <-chan struct{}) ExpectedRequestOption {
	return func(c context.Context, expReq *ExpectedRequest) error {
		expReq.gate = gate
		expReq.honorCancel = true
		return nil
	}
}

func mockHTTPResponse(expReq *ExpectedRequest) *http.Response {
	status := expReq.responseStatus
	if status == "" {
		status = http.StatusText(expReq.responseStatusCode)
	}
	resp := &http.Response{
		StatusCode: expReq.responseStatusCode,
		Status:     status,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewReader(expReq.responseBody)),
	}
	for key, value := range expReq.responseHeaders {
		resp.Header.Set(key, value)
	}
	return resp
}
