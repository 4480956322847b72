package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	gatewayapp "github.com/astro-web3/function-gateway/internal/app/gateway"
	"github.com/astro-web3/function-gateway/internal/config"
	"github.com/astro-web3/function-gateway/internal/domain/gateway"
	"github.com/astro-web3/function-gateway/internal/infra/cache"
	"github.com/astro-web3/function-gateway/internal/infra/credential"
	"github.com/astro-web3/function-gateway/internal/infra/token"
	"github.com/astro-web3/function-gateway/internal/infra/upstream"
	httpclient "github.com/astro-web3/function-gateway/pkg/http"
	"github.com/astro-web3/function-gateway/pkg/logger"
	"github.com/astro-web3/function-gateway/pkg/otel"
	"github.com/astro-web3/function-gateway/pkg/tracer"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	httpServer  *http.Server
	redisClient *redis.Client
}

const (
	idleTimeoutMultiplier = 2
	serviceName           = "function-gateway"
)

func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	logger.InitLogger(cfg.Observability.LogLevel, cfg.Observability.Format, cfg.Observability.LogSource)

	otelCfg := otel.DefaultConfig(serviceName)
	otelCfg.EndpointURL = cfg.Observability.TracingEndpointURL
	otelCfg.Enabled = cfg.Observability.TraceEnabled
	otelCfg.Insecure = true
	for k, v := range cfg.Observability.TracingHeaders {
		otelCfg.Headers[k] = v
	}
	if err := tracer.InitTracer(otelCfg); err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	srv := &Server{}

	var claimsCache gateway.ClaimsCache
	if cfg.Redis.URL != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis.URL, cfg.Redis.PoolSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		srv.redisClient = redisClient
		claimsCache = cache.NewClaimsCache(redisClient)
		logger.InfoContext(ctx, "claims cache enabled", slog.Duration("ttl", cfg.Auth.CacheTTL))
	}

	appService, err := NewGatewayService(ctx, cfg, claimsCache)
	if err != nil {
		return nil, errors.Join(err, srv.closeRedis())
	}

	handler := NewHandler(appService)
	router := NewRouter(handler, cfg)

	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout * idleTimeoutMultiplier,
	}

	return srv, nil
}

// NewGatewayService wires the verifier, ACL, credential lookup and
// forwarder described by cfg. claimsCache may be nil.
func NewGatewayService(
	ctx context.Context,
	cfg *config.Config,
	claimsCache gateway.ClaimsCache,
) (gatewayapp.Service, error) {
	verifier, err := NewTokenVerifier(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Gateway.Host == "" {
		logger.WarnContext(ctx, "no upstream host configured, forwarded calls will fail")
	}

	acl := gateway.LoadACL(ctx, cfg.Gateway.ACL)
	credentials := credential.Chain(
		credential.NewEnvResolver(cfg.Gateway.FunctionKeyPrefix),
		credential.NewMapResolver(cfg.FunctionKeyMap()),
	)

	client := httpclient.NewClient(httpclient.WithTimeout(cfg.Gateway.ForwardTimeout))
	forwarder := upstream.NewFunctionClient(cfg.Gateway.Scheme, cfg.Gateway.Host, client)

	opts := gateway.DefaultOptions()
	if len(cfg.Auth.TenantClaims) > 0 {
		opts.TenantClaims = cfg.Auth.TenantClaims
	}
	if cfg.Gateway.TenantHeader != "" {
		opts.TenantHeader = cfg.Gateway.TenantHeader
	}
	if cfg.Auth.CacheTTL > 0 {
		opts.CacheTTL = cfg.Auth.CacheTTL
	}

	var domainService gateway.Service
	if claimsCache != nil {
		domainService = gateway.NewServiceWithClaimsCache(verifier, claimsCache, acl, credentials, forwarder, opts)
	} else {
		domainService = gateway.NewService(verifier, acl, credentials, forwarder, opts)
	}

	return gatewayapp.NewService(domainService), nil
}

// NewTokenVerifier builds the bearer token verifier from the auth section.
func NewTokenVerifier(ctx context.Context, cfg *config.Config) (gateway.TokenVerifier, error) {
	publicKey, err := cfg.PublicKeyPEM()
	if err != nil {
		return nil, err
	}

	verifier, err := token.NewVerifier(ctx, token.Config{
		PublicKeyPEM: publicKey,
		JWKSURL:      cfg.Auth.JWKSURL,
		Audience:     cfg.Auth.Audience,
		Algorithms:   cfg.Auth.Algorithms,
		Leeway:       cfg.Auth.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token verifier: %w", err)
	}
	return verifier, nil
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Join(s.httpServer.Shutdown(ctx), s.closeRedis())
}

func (s *Server) closeRedis() error {
	if s.redisClient == nil {
		return nil
	}
	if err := s.redisClient.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}
