package token

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/astro-web3/function-gateway/internal/domain/gateway"
	"github.com/golang-jwt/jwt/v5"
)

const testAudience = "poool-users"

func generateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}

func publicKeyPEM(t *testing.T, pub any) string {
	t.Helper()

	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims, kid string) string {
	t.Helper()

	token := jwt.NewWithClaims(method, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func makeClaims(audience any) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub": "user-1",
		"tid": "acme",
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

func newPEMVerifier(t *testing.T, key *rsa.PrivateKey) gateway.TokenVerifier {
	t.Helper()

	v, err := NewVerifier(context.Background(), Config{
		PublicKeyPEM: publicKeyPEM(t, &key.PublicKey),
		Audience:     testAudience,
		Algorithms:   []string{"RS256"},
	})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestVerifier_ReturnsClaims(t *testing.T) {
	key := generateRSAKey(t)
	v := newPEMVerifier(t, key)

	claims, err := v.Verify(context.Background(), signToken(t, jwt.SigningMethodRS256, key, makeClaims(testAudience), ""))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if claims["tid"] != "acme" {
		t.Fatalf("unexpected tid: %v", claims["tid"])
	}
	if claims.Tenant([]string{"tid"}) != "acme" {
		t.Fatalf("unexpected tenant: %v", claims.Tenant([]string{"tid"}))
	}
}

func TestVerifier_AcceptsAudienceList(t *testing.T) {
	key := generateRSAKey(t)
	v := newPEMVerifier(t, key)

	_, err := v.Verify(context.Background(), signToken(t, jwt.SigningMethodRS256, key, makeClaims([]string{"other", testAudience}), ""))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	key := generateRSAKey(t)
	otherKey := generateRSAKey(t)
	v := newPEMVerifier(t, key)

	expired := makeClaims(testAudience)
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	notYet := makeClaims(testAudience)
	notYet["nbf"] = time.Now().Add(time.Hour).Unix()

	cases := map[string]string{
		"empty":          "",
		"garbage":        "not-a-jwt",
		"wrong audience": signToken(t, jwt.SigningMethodRS256, key, makeClaims("other-api"), ""),
		"no audience":    signToken(t, jwt.SigningMethodRS256, key, jwt.MapClaims{"tid": "acme"}, ""),
		"expired":        signToken(t, jwt.SigningMethodRS256, key, expired, ""),
		"not yet valid":  signToken(t, jwt.SigningMethodRS256, key, notYet, ""),
		"wrong key":      signToken(t, jwt.SigningMethodRS256, otherKey, makeClaims(testAudience), ""),
		"hmac":           signToken(t, jwt.SigningMethodHS256, []byte("secret"), makeClaims(testAudience), ""),
		"wrong rsa alg":  signToken(t, jwt.SigningMethodRS512, key, makeClaims(testAudience), ""),
	}

	for name, raw := range cases {
		_, err := v.Verify(context.Background(), raw)
		if !errors.Is(err, gateway.ErrUnauthenticated) {
			t.Errorf("%s: expected ErrUnauthenticated, got %v", name, err)
		}
	}
}

func TestVerifier_Leeway(t *testing.T) {
	key := generateRSAKey(t)
	v, err := NewVerifier(context.Background(), Config{
		PublicKeyPEM: publicKeyPEM(t, &key.PublicKey),
		Audience:     testAudience,
		Leeway:       time.Minute,
	})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	claims := makeClaims(testAudience)
	claims["exp"] = time.Now().Add(-10 * time.Second).Unix()

	if _, err := v.Verify(context.Background(), signToken(t, jwt.SigningMethodRS256, key, claims, "")); err != nil {
		t.Fatalf("expected token within leeway to verify, got %v", err)
	}
}

func TestVerifier_ECDSAKey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ec key: %v", err)
	}

	v, err := NewVerifier(context.Background(), Config{
		PublicKeyPEM: publicKeyPEM(t, &key.PublicKey),
		Audience:     testAudience,
		Algorithms:   []string{"ES256"},
	})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	if _, err := v.Verify(context.Background(), signToken(t, jwt.SigningMethodES256, key, makeClaims(testAudience), "")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestNewVerifier_NoKeySourceRejectsEverything(t *testing.T) {
	v, err := NewVerifier(context.Background(), Config{Audience: testAudience})
	if err != nil {
		t.Fatalf("expected a verifier without any key source, got %v", err)
	}

	token := signToken(t, jwt.SigningMethodRS256, generateRSAKey(t), makeClaims(testAudience), "")
	_, err = v.Verify(context.Background(), token)
	if !errors.Is(err, gateway.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if !errors.Is(err, ErrNoVerificationKey) {
		t.Errorf("expected the missing key to be the cause, got %v", err)
	}
}

func TestVerifier_NumericTenantKeepsDigits(t *testing.T) {
	key := generateRSAKey(t)
	v := newPEMVerifier(t, key)

	claims := makeClaims(testAudience)
	claims["tid"] = 12345678
	got, err := v.Verify(context.Background(), signToken(t, jwt.SigningMethodRS256, key, claims, ""))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tenant := got.Tenant([]string{"tid"}); tenant != "12345678" {
		t.Errorf("expected tenant 12345678, got %q", tenant)
	}
}

func TestNewVerifier_ConfigErrors(t *testing.T) {
	if _, err := NewVerifier(context.Background(), Config{PublicKeyPEM: "not a pem"}); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestVerifier_JWKS(t *testing.T) {
	key := generateRSAKey(t)

	jwks := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "k1",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v, err := NewVerifier(ctx, Config{JWKSURL: server.URL, Audience: testAudience})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	claims, err := v.Verify(ctx, signToken(t, jwt.SigningMethodRS256, key, makeClaims(testAudience), "k1"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if claims["sub"] != "user-1" {
		t.Fatalf("unexpected subject: %v", claims["sub"])
	}
}
