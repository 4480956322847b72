package gateway

import (
	"context"
	"errors"

	"github.com/astro-web3/function-gateway/internal/domain/gateway"
	"github.com/astro-web3/function-gateway/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Service interface {
	Invoke(ctx context.Context, req *gateway.Request) (*gateway.Response, error)
}

type service struct {
	domainService gateway.Service
}

func NewService(domainService gateway.Service) Service {
	return &service{
		domainService: domainService,
	}
}

func (s *service) Invoke(ctx context.Context, req *gateway.Request) (*gateway.Response, error) {
	ctx, span := tracer.Start(ctx, "app.gateway.Invoke")
	defer span.End()

	span.SetAttributes(
		attribute.String("gateway.function", req.Function),
		attribute.String("http.method", req.Method),
	)

	resp, err := s.domainService.Invoke(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("gateway.outcome", outcome(err)))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("gateway.outcome", "forwarded"),
		attribute.Int("gateway.upstream_status", resp.Status),
	)

	return resp, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, gateway.ErrForbidden):
		return "forbidden"
	case errors.Is(err, gateway.ErrFunctionNotFound):
		return "not_found"
	case errors.Is(err, gateway.ErrUnauthenticated):
		return "unauthenticated"
	default:
		return "error"
	}
}
