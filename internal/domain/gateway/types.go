package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Claims is the decoded payload of a verified bearer token.
type Claims map[string]any

// Tenant returns the first non-empty value among names. Numeric ids are
// rendered in plain decimal, never in exponent form.
func (c Claims) Tenant(names []string) string {
	for _, name := range names {
		if s := claimString(c[name]); s != "" {
			return s
		}
	}
	return ""
}

func claimString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

// ExpiresAt returns the exp claim, if present and numeric.
func (c Claims) ExpiresAt() (time.Time, bool) {
	var secs float64
	switch v := c["exp"].(type) {
	case float64:
		secs = v
	case int64:
		secs = float64(v)
	case int:
		secs = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		secs = f
	default:
		return time.Time{}, false
	}
	return time.Unix(int64(secs), 0), true
}

// Request is an inbound gateway call. Body is only read when the method
// carries one.
type Request struct {
	Authorization string
	Function      string
	Method        string
	Header        http.Header
	Body          io.Reader
}

// ForwardRequest is what goes to the internal function.
type ForwardRequest struct {
	Function string
	Secret   string
	Method   string
	Header   http.Header
	Body     []byte
}

// Response is an upstream reply, passed through unchanged.
type Response struct {
	Status int
	Body   []byte
}

// IsBodyless reports whether method never carries a forwarded body.
// The match is case-sensitive.
func IsBodyless(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}
