package usefetch

import "context"

// Fetcher is the network primitive a Hook executes its requests through.
// Client is the production implementation; fetchermock provides one for tests.
type Fetcher interface {
	Do(c context.Context, req *Request) (*Response, error)
}
