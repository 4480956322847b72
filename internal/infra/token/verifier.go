package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/astro-web3/function-gateway/internal/domain/gateway"
	"github.com/astro-web3/function-gateway/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
)

// ErrNoVerificationKey is the cause behind every rejection when neither a
// public key nor a JWKS URL is configured.
var ErrNoVerificationKey = errors.New("no token verification key configured")

type Config struct {
	PublicKeyPEM string
	JWKSURL      string
	Audience     string
	Algorithms   []string
	Leeway       time.Duration
}

type verifier struct {
	keyFunc    jwt.Keyfunc
	audience   string
	algorithms []string
	leeway     time.Duration
}

// NewVerifier builds a verifier from a PEM public key or, when no key is
// configured, from a JWKS endpoint. With neither, the verifier rejects
// every token.
func NewVerifier(ctx context.Context, cfg Config) (gateway.TokenVerifier, error) {
	keyFunc, err := newKeyFunc(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newVerifier(keyFunc, cfg), nil
}

func newVerifier(keyFunc jwt.Keyfunc, cfg Config) *verifier {
	algorithms := cfg.Algorithms
	if len(algorithms) == 0 {
		algorithms = []string{jwt.SigningMethodRS256.Alg()}
	}
	return &verifier{
		keyFunc:    keyFunc,
		audience:   cfg.Audience,
		algorithms: algorithms,
		leeway:     cfg.Leeway,
	}
}

func newKeyFunc(ctx context.Context, cfg Config) (jwt.Keyfunc, error) {
	switch {
	case cfg.PublicKeyPEM != "":
		key, err := ParsePublicKey([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, err
		}
		return func(_ *jwt.Token) (any, error) {
			return key, nil
		}, nil
	case cfg.JWKSURL != "":
		kf, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("fetch jwks from %s: %w", cfg.JWKSURL, err)
		}
		return kf.Keyfunc, nil
	default:
		logger.WarnContext(ctx, "no token verification key configured, every request will be rejected")
		return func(_ *jwt.Token) (any, error) {
			return nil, ErrNoVerificationKey
		}, nil
	}
}

// ParsePublicKey accepts RSA, ECDSA or Ed25519 public keys in PEM form.
func ParsePublicKey(pem []byte) (any, error) {
	if key, err := jwt.ParseRSAPublicKeyFromPEM(pem); err == nil {
		return key, nil
	}
	if key, err := jwt.ParseECPublicKeyFromPEM(pem); err == nil {
		return key, nil
	}
	if key, err := jwt.ParseEdPublicKeyFromPEM(pem); err == nil {
		return key, nil
	}
	return nil, errors.New("unsupported or malformed public key")
}

func (v *verifier) Verify(_ context.Context, raw string) (gateway.Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", gateway.ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.algorithms),
		jwt.WithJSONNumber(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	if v.leeway > 0 {
		opts = append(opts, jwt.WithLeeway(v.leeway))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, v.keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gateway.ErrUnauthenticated, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: token is not valid", gateway.ErrUnauthenticated)
	}

	return gateway.Claims(claims), nil
}
