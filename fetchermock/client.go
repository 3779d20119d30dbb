package fetchermock

import (
	"context"
	"fmt"
	"sync"

	"github.com/nozzle/usefetch"
)

var _ usefetch.Fetcher = (*Client)(nil)

// Client is a usefetch.Fetcher that answers requests from a list of
// expectations instead of the network
type Client struct {
	mu               sync.Mutex
	expectedRequests []*ExpectedRequest
	received         []*usefetch.Request

	withExpectationsInOrder bool
}

// NewClient returns a new Client with the given options executed
func NewClient(c context.Context, opts ...ClientOption) (*Client, error) {
	cl := &Client{
		expectedRequests:        []*ExpectedRequest{},
		withExpectationsInOrder: true,
	}

	// execute all options
	for _, opt := range opts {
		if err := opt(c, cl); err != nil {
			return nil, err
		}
	}

	return cl, nil
}

// Do mocks the execution of a request by matching it up with an expectedRequest
// If no matching expectedRequests are found, an error is returned
func (cl *Client) Do(c context.Context, req *usefetch.Request) (*usefetch.Response, error) {
	// if the context has been canceled or the deadline exceeded, don't start the request
	if c.Err() != nil {
		return nil, c.Err()
	}

	expReq, err := cl.match(req)
	if err != nil {
		return nil, err
	}

	if expReq.gate != nil {
		if expReq.honorCancel {
			select {
			case <-expReq.gate:
			case <-c.Done():
				return nil, c.Err()
			}
		} else {
			<-expReq.gate
		}
	}

	if expReq.err != nil {
		return nil, expReq.err
	}
	return usefetch.NewResponse(c, req, mockHTTPResponse(expReq)), nil
}

// match finds the expected request in cl.expectedRequests and marks it met
func (cl *Client) match(req *usefetch.Request) (*ExpectedRequest, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cl.received = append(cl.received, req)

	var info string
	for i := range cl.expectedRequests {
		if cl.expectedRequests[i].wasMet {
			continue
		}

		// compare the expectations to the actual request
		var equal bool
		equal, info = cl.expectedRequests[i].request.Equal(req)
		if equal {
			cl.expectedRequests[i].wasMet = true
			return cl.expectedRequests[i], nil
		}

		// if the expectations are to be in order, and this expectation wasn't met, error out
		if cl.withExpectationsInOrder {
			return nil, fmt.Errorf("ExpectedRequest did not match usefetch.Request | info: %s", info)
		}
	}

	return nil, fmt.Errorf("Request did not match any ExpectedRequests | %s", req.String())
}

// Received returns every request passed to Do, in order
func (cl *Client) Received() []*usefetch.Request {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return append([]*usefetch.Request(nil), cl.received...)
}

// UnmetExpectations returns the slice of ExpectedRequests that were not met in execution
func (cl *Client) UnmetExpectations() []*ExpectedRequest {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	unmet := make([]*ExpectedRequest, 0, len(cl.expectedRequests))
	for i := range cl.expectedRequests {
		if !cl.expectedRequests[i].wasMet {
			unmet = append(unmet, cl.expectedRequests[i])
		}
	}
	return unmet
}

// ClientOption is a func to configure optional Client settings
type ClientOption func(c context.Context, cl *Client) error

// WithExpectationsInOrder sets the cl.withExpectationsInOrder value
func WithExpectationsInOrder(inOrder bool) ClientOption {
	return func(c context.Context, cl *Client) error {
		cl.withExpectationsInOrder = inOrder
		return nil
	}
}
