package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/astro-web3/function-gateway/pkg/tracer"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultTimeout = 60 * time.Second

// Client is a thin traced wrapper over resty. It sets no default headers so
// callers fully control what goes on the wire. Retries are off.
type Client struct {
	resty *resty.Client
}

type ClientOption func(*resty.Client)

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *resty.Client) {
		if timeout > 0 {
			c.SetTimeout(timeout)
		}
	}
}

func NewClient(opts ...ClientOption) *Client {
	rc := resty.New().
		SetTimeout(DefaultTimeout).
		SetRetryCount(0).
		SetPreRequestHook(attachRawBody)

	for _, opt := range opts {
		opt(rc)
	}

	return &Client{resty: rc}
}

type RequestOption func(*resty.Request)

// WithHeaders copies every header, joining repeated values with ", ".
func WithHeaders(headers http.Header) RequestOption {
	return func(r *resty.Request) {
		r.SetHeaderMultiValues(headers)
	}
}

// WithRawBody sends body untouched for any method, OPTIONS included, and
// without a content type guessed on the caller's behalf. A nil body sends
// no payload.
func WithRawBody(body []byte) RequestOption {
	return func(r *resty.Request) {
		if body != nil {
			r.SetContext(context.WithValue(r.Context(), rawBodyKey{}, body))
		}
	}
}

func WithQueryParam(key, value string) RequestOption {
	return func(r *resty.Request) {
		r.SetQueryParam(key, value)
	}
}

type rawBodyKey struct{}

// attachRawBody runs after resty has built the *http.Request. resty skips
// payloads for HEAD and OPTIONS and infers a Content-Type for others, so
// raw bodies bypass its body handling entirely.
func attachRawBody(_ *resty.Client, req *http.Request) error {
	body, ok := req.Context().Value(rawBodyKey{}).([]byte)
	if !ok {
		return nil
	}
	req.ContentLength = int64(len(body))
	if len(body) == 0 {
		req.Body = http.NoBody
		req.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
		return nil
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return nil
}

func (c *Client) Request(ctx context.Context, method, url string, opts ...RequestOption) (*resty.Response, error) {
	ctx, span := startClientSpan(ctx, "http.Request", method, url)
	defer span.End()

	request := c.resty.R().SetContext(ctx)

	for _, opt := range opts {
		opt(request)
	}

	injectTracingHeaders(ctx, request)

	resp, err := request.Execute(method, url)

	recordSpan(span, resp, err)
	return resp, err
}

func startClientSpan(
	ctx context.Context,
	spanName string,
	method string,
	url string,
) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", redactQuery(url)),
		),
	)
}

func recordSpan(span trace.Span, resp *resty.Response, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if resp == nil {
		return
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))
	if resp.IsError() {
		span.SetStatus(codes.Error, resp.Status())
		return
	}
	span.SetStatus(codes.Ok, "")
}
