package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/astro-web3/function-gateway/pkg/logger"
)

// ACL maps a tenant to the functions it may invoke. It is built once and
// only read afterwards.
type ACL map[string][]string

// ParseACL decodes a JSON object of tenant -> function names. A tenant
// whose entry is not a list of strings is left out and reported in the
// returned error; the other tenants are kept. If the document itself is not
// an object, the ACL is empty.
func ParseACL(raw string) (ACL, error) {
	acl := ACL{}
	if strings.TrimSpace(raw) == "" {
		return acl, nil
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return acl, fmt.Errorf("failed to parse function ACL: %w", err)
	}

	var errs []error
	for tenant, entry := range entries {
		var functions []string
		if err := json.Unmarshal(entry, &functions); err != nil {
			errs = append(errs, fmt.Errorf("invalid ACL entry for tenant %q: %w", tenant, err))
			continue
		}
		acl[tenant] = functions
	}

	return acl, errors.Join(errs...)
}

// LoadACL is ParseACL that never fails: malformed parts are logged and
// dropped, so at worst every tenant is denied.
func LoadACL(ctx context.Context, raw string) ACL {
	acl, err := ParseACL(raw)
	if err != nil {
		logger.WarnContext(ctx, "function ACL has malformed entries, they deny access",
			slog.Int("tenants", len(acl)),
			slog.String("error", err.Error()),
		)
		return acl
	}
	logger.InfoContext(ctx, "function ACL loaded", slog.Int("tenants", len(acl)))
	return acl
}

// Allows reports whether tenant may call function. Unknown tenants get false.
func (a ACL) Allows(tenant, function string) bool {
	return slices.Contains(a[tenant], function)
}
