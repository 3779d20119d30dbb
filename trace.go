package usefetch

import (
	"context"

	"go.opencensus.io/trace"
)

func startSpan(ctx context.Context, id, method, url string) (context.Context, *trace.Span) {
	ctx, span := trace.StartSpan(ctx, "usefetch.Execute", trace.WithSpanKind(trace.SpanKindClient))
	span.AddAttributes(
		trace.StringAttribute("usefetch.execution_id", id),
		trace.StringAttribute("http.method", method),
		trace.StringAttribute("http.url", url),
	)
	return ctx, span
}

func endSpan(span *trace.Span, outcome string, err error) {
	span.AddAttributes(trace.StringAttribute("usefetch.outcome", outcome))
	switch {
	case outcome == outcomeCancelled:
		span.SetStatus(trace.Status{Code: trace.StatusCodeCancelled, Message: "superseded or torn down"})
	case err != nil:
		span.SetStatus(trace.Status{Code: trace.StatusCodeUnknown, Message: err.Error()})
	}
	span.End()
}
