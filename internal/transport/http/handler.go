package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	gatewayapp "github.com/astro-web3/function-gateway/internal/app/gateway"
	"github.com/astro-web3/function-gateway/internal/domain/gateway"
	"github.com/astro-web3/function-gateway/pkg/logger"
	"github.com/astro-web3/function-gateway/pkg/tracer"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const contentTypeText = "text/plain; charset=utf-8"

type Handler struct {
	appService gatewayapp.Service
}

func NewHandler(appService gatewayapp.Service) *Handler {
	return &Handler{
		appService: appService,
	}
}

// Invoke authenticates the caller, checks the tenant allow-list and
// relays the request to the named function. Upstream status and body are
// returned as-is; upstream headers are not.
func (h *Handler) Invoke(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.Invoke")
	defer span.End()

	function := c.Param("func")
	span.SetAttributes(attribute.String("gateway.function", function))

	resp, err := h.appService.Invoke(ctx, &gateway.Request{
		Authorization: c.GetHeader("Authorization"),
		Function:      function,
		Method:        c.Request.Method,
		Header:        c.Request.Header,
		Body:          c.Request.Body,
	})
	if err != nil {
		span.RecordError(err)
		status, body := errorResponse(err, function)
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status == http.StatusUnauthorized {
			logUnauthorized(ctx, function, err)
		}
		c.Data(status, contentTypeText, []byte(body))
		return
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.Status))
	c.Data(resp.Status, contentTypeText, resp.Body)
}

// logUnauthorized records the real cause behind a 401. Token problems are
// expected traffic; anything else (body read, upstream transport) is not.
func logUnauthorized(ctx context.Context, function string, err error) {
	if errors.Is(err, gateway.ErrUnauthenticated) {
		logger.WarnContext(ctx, "request not authenticated", slog.String("error", err.Error()))
		return
	}
	logger.ErrorContext(ctx, "failed to invoke function",
		slog.String("function", function),
		slog.String("error", err.Error()),
	)
}

// errorResponse maps a failed invocation to the status and body returned
// to the caller. Anything that is neither a denial nor an unknown function
// is reported as 401.
func errorResponse(err error, function string) (int, string) {
	switch {
	case errors.Is(err, gateway.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, gateway.ErrFunctionNotFound):
		return http.StatusNotFound, fmt.Sprintf("unknown function %s", function)
	default:
		return http.StatusUnauthorized, "Unauthorized"
	}
}

// recoverUnauthorized answers a panic like any other failed call: 401.
func recoverUnauthorized(c *gin.Context, recovered any) {
	logger.ErrorContext(c.Request.Context(), "panic while handling request",
		slog.String("path", c.Request.URL.Path),
		slog.Any("panic", recovered),
	)
	c.Data(http.StatusUnauthorized, contentTypeText, []byte("Unauthorized"))
	c.Abort()
}
