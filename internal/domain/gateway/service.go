package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/astro-web3/function-gateway/pkg/logger"
)

// TokenVerifier checks a bearer token and returns its claims. Every
// failure is reported as ErrUnauthenticated.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// ClaimsCache stores verified claims by token hash. Get returns nil, nil on a miss.
type ClaimsCache interface {
	Get(ctx context.Context, tokenHash string) (Claims, error)
	Set(ctx context.Context, tokenHash string, claims Claims, ttl time.Duration) error
}

// CredentialResolver looks up the secret of an internal function.
type CredentialResolver interface {
	Resolve(function string) (string, bool)
}

// Forwarder sends a request to an internal function.
type Forwarder interface {
	Forward(ctx context.Context, req *ForwardRequest) (*Response, error)
}

type Service interface {
	Invoke(ctx context.Context, req *Request) (*Response, error)
}

type Options struct {
	TenantClaims []string
	TenantHeader string
	CacheTTL     time.Duration
}

func DefaultOptions() Options {
	return Options{
		TenantClaims: []string{"tid", "tenantId"},
		TenantHeader: "x-tenantid",
		CacheTTL:     5 * time.Minute,
	}
}

type service struct {
	verifier    TokenVerifier
	claimsCache ClaimsCache
	acl         ACL
	credentials CredentialResolver
	forwarder   Forwarder
	opts        Options
}

func NewService(
	verifier TokenVerifier,
	acl ACL,
	credentials CredentialResolver,
	forwarder Forwarder,
	opts Options,
) Service {
	return &service{
		verifier:    verifier,
		acl:         acl,
		credentials: credentials,
		forwarder:   forwarder,
		opts:        opts,
	}
}

func NewServiceWithClaimsCache(
	verifier TokenVerifier,
	claimsCache ClaimsCache,
	acl ACL,
	credentials CredentialResolver,
	forwarder Forwarder,
	opts Options,
) Service {
	return &service{
		verifier:    verifier,
		claimsCache: claimsCache,
		acl:         acl,
		credentials: credentials,
		forwarder:   forwarder,
		opts:        opts,
	}
}

func (s *service) Invoke(ctx context.Context, req *Request) (*Response, error) {
	token := BearerToken(req.Authorization)
	if token == "" {
		return nil, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}

	claims, err := s.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	tenant := claims.Tenant(s.opts.TenantClaims)
	if !s.acl.Allows(tenant, req.Function) {
		logger.WarnContext(ctx, "tenant not allowed to call function",
			slog.String("tenant", tenant),
			slog.String("function", req.Function),
		)
		return nil, ErrForbidden
	}

	secret, ok := s.credentials.Resolve(req.Function)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, req.Function)
	}

	fwd := &ForwardRequest{
		Function: req.Function,
		Secret:   secret,
		Method:   req.Method,
		Header:   withTenant(req.Header, s.opts.TenantHeader, tenant),
	}

	if !IsBodyless(req.Method) && req.Body != nil {
		body, readErr := io.ReadAll(req.Body)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read request body: %w", readErr)
		}
		fwd.Body = body
	}

	resp, err := s.forwarder.Forward(ctx, fwd)
	if err != nil {
		return nil, fmt.Errorf("failed to forward to %s: %w", req.Function, err)
	}

	return resp, nil
}

func (s *service) authenticate(ctx context.Context, token string) (Claims, error) {
	if s.claimsCache == nil {
		return s.verifier.Verify(ctx, token)
	}

	tokenHash := hashToken(token)
	cached, err := s.claimsCache.Get(ctx, tokenHash)
	if err != nil {
		logger.WarnContext(ctx, "failed to get claims from cache, verifying token", slog.String("error", err.Error()))
	}
	if err == nil && cached != nil {
		return cached, nil
	}

	claims, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	if ttl := s.cacheTTL(claims, time.Now()); ttl > 0 {
		if setErr := s.claimsCache.Set(ctx, tokenHash, claims, ttl); setErr != nil {
			logger.WarnContext(ctx, "failed to set claims cache", slog.String("error", setErr.Error()))
		}
	}

	return claims, nil
}

// cacheTTL never lets a cached entry outlive the token itself.
func (s *service) cacheTTL(claims Claims, now time.Time) time.Duration {
	ttl := s.opts.CacheTTL
	if exp, ok := claims.ExpiresAt(); ok {
		if remaining := exp.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}
	return ttl
}

var bearerPrefix = regexp.MustCompile(`(?i)^bearer\s+`)

// BearerToken strips an optional, case-insensitive "Bearer" prefix.
func BearerToken(authorization string) string {
	return strings.TrimSpace(bearerPrefix.ReplaceAllString(strings.TrimSpace(authorization), ""))
}

// withTenant returns a copy of header with the tenant header set.
func withTenant(header http.Header, name, tenant string) http.Header {
	out := header.Clone()
	if out == nil {
		out = http.Header{}
	}
	out.Set(name, tenant)
	return out
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
