package usefetch

import (
	"context"

	"go.uber.org/zap"
)

// ClientWithLogger sends all client and transport logs to the supplied logger
// All requests from this client inherit this logger
func ClientWithLogger(logger *zap.Logger) ClientOption {
	return func(c context.Context, cl *Client) error {
		if logger != nil {
			cl.logger = logger
		}
		return nil
	}
}

// WithRequestLogger sends logs for a single request to the supplied logger
// This overrides and replaces the inherited client logger
func WithRequestLogger(logger *zap.Logger) RequestOption {
	return func(c context.Context, req *Request) error {
		req.logger = logger
		return nil
	}
}

// loggerOr returns the request logger if one was set, otherwise fallback,
// annotated with the request's identity
func (req *Request) loggerOr(fallback *zap.Logger) *zap.Logger {
	logger := req.logger
	if logger == nil {
		logger = fallback
	}
	if logger == nil {
		return zap.NewNop()
	}
	return logger.With(
		zap.String("request_id", req.ID),
		zap.String("method", req.Method),
		zap.String("url", req.URL),
	)
}
