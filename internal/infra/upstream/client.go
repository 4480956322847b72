package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/astro-web3/function-gateway/internal/domain/gateway"
	httpclient "github.com/astro-web3/function-gateway/pkg/http"
	"github.com/astro-web3/function-gateway/pkg/logger"
)

// hopHeaders are connection-scoped and never forwarded. Accept-Encoding is
// left to the transport so compressed replies are decoded before passthrough.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
	"Accept-Encoding",
}

type functionClient struct {
	scheme string
	host   string
	http   *httpclient.Client
}

// NewFunctionClient forwards to <scheme>://<host>/api/<function>?code=<secret>.
func NewFunctionClient(scheme, host string, client *httpclient.Client) gateway.Forwarder {
	if scheme == "" {
		scheme = "https"
	}
	return &functionClient{
		scheme: scheme,
		host:   strings.TrimSuffix(host, "/"),
		http:   client,
	}
}

func (c *functionClient) Forward(ctx context.Context, req *gateway.ForwardRequest) (*gateway.Response, error) {
	target := c.targetURL(req.Function)

	resp, err := c.http.Request(ctx, req.Method, target,
		httpclient.WithHeaders(forwardHeaders(req.Header)),
		httpclient.WithQueryParam("code", req.Secret),
		httpclient.WithRawBody(req.Body),
	)
	if err != nil {
		return nil, fmt.Errorf("request to function %s failed: %w", req.Function, err)
	}

	logger.DebugContext(ctx, "function responded",
		slog.String("function", req.Function),
		slog.Int("status", resp.StatusCode()),
		slog.Int("bytes", len(resp.Body())),
	)

	return &gateway.Response{
		Status: resp.StatusCode(),
		Body:   resp.Body(),
	}, nil
}

func (c *functionClient) targetURL(function string) string {
	u := url.URL{
		Scheme: c.scheme,
		Host:   c.host,
		Path:   "/api/" + function,
	}
	return u.String()
}

func forwardHeaders(in http.Header) http.Header {
	out := in.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, h := range hopHeaders {
		out.Del(h)
	}
	return out
}
