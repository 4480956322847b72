package upstream

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/astro-web3/function-gateway/internal/domain/gateway"
	httpclient "github.com/astro-web3/function-gateway/pkg/http"
)

type capturedRequest struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   string
}

func newFunctionServer(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()

	got := &capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.Query()
		got.header = r.Header.Clone()
		got.body = string(b)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, got
}

func hostOf(t *testing.T, server *httptest.Server) string {
	t.Helper()

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	return u.Host
}

func TestFunctionClient_Forward(t *testing.T) {
	server, got := newFunctionServer(t, http.StatusAccepted, `{"ok":true}`)
	client := NewFunctionClient("http", hostOf(t, server), httpclient.NewClient())

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Tenantid", "acme")
	header.Set("Connection", "keep-alive")

	resp, err := client.Forward(context.Background(), &gateway.ForwardRequest{
		Function: "syncCompany",
		Secret:   "s3cret",
		Method:   http.MethodPost,
		Header:   header,
		Body:     []byte(`{"id":1}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Status != http.StatusAccepted || string(resp.Body) != `{"ok":true}` {
		t.Errorf("expected passthrough, got %d %q", resp.Status, resp.Body)
	}
	if got.method != http.MethodPost {
		t.Errorf("expected POST, got %s", got.method)
	}
	if got.path != "/api/syncCompany" {
		t.Errorf("expected /api/syncCompany, got %s", got.path)
	}
	if got.query.Get("code") != "s3cret" {
		t.Errorf("expected code query param, got %v", got.query)
	}
	if got.header.Get("X-Tenantid") != "acme" {
		t.Errorf("expected tenant header, got %v", got.header)
	}
	if got.header.Get("Content-Type") != "application/json" {
		t.Errorf("expected content type copied, got %q", got.header.Get("Content-Type"))
	}
	if got.body != `{"id":1}` {
		t.Errorf("expected raw body, got %q", got.body)
	}
	if header.Get("Connection") != "keep-alive" {
		t.Error("forward must not mutate the caller's header")
	}
}

func TestFunctionClient_Forward_NoBody(t *testing.T) {
	server, got := newFunctionServer(t, http.StatusOK, "sunny")
	client := NewFunctionClient("http", hostOf(t, server), httpclient.NewClient())

	resp, err := client.Forward(context.Background(), &gateway.ForwardRequest{
		Function: "checkWeather",
		Secret:   "k",
		Method:   http.MethodGet,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != "sunny" {
		t.Errorf("expected body 'sunny', got %q", resp.Body)
	}
	if got.body != "" {
		t.Errorf("expected no body, got %q", got.body)
	}
}

func TestFunctionClient_Forward_DecodesCompressedReplies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Encoding") != "gzip" {
			_, _ = w.Write([]byte("plain"))
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte("plain"))
		_ = gz.Close()
	}))
	defer server.Close()

	client := NewFunctionClient("http", hostOf(t, server), httpclient.NewClient())

	header := http.Header{}
	header.Set("Accept-Encoding", "gzip, br")

	resp, err := client.Forward(context.Background(), &gateway.ForwardRequest{
		Function: "checkWeather",
		Secret:   "k",
		Method:   http.MethodGet,
		Header:   header,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != "plain" {
		t.Errorf("expected decoded body, got %q", resp.Body)
	}
}

func TestFunctionClient_Forward_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	host := hostOf(t, server)
	server.Close()

	client := NewFunctionClient("http", host, httpclient.NewClient())
	_, err := client.Forward(context.Background(), &gateway.ForwardRequest{
		Function: "checkWeather",
		Secret:   "k",
		Method:   http.MethodGet,
	})
	if err == nil {
		t.Fatal("expected error for unreachable function host")
	}
}

func TestTargetURL(t *testing.T) {
	c := &functionClient{scheme: "https", host: "fn.example.net"}
	if got := c.targetURL("checkWeather"); got != "https://fn.example.net/api/checkWeather" {
		t.Errorf("unexpected target %q", got)
	}
}
