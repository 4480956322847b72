package cli

import (
	"encoding/json"
	"fmt"

	"github.com/astro-web3/function-gateway/internal/config"
	"github.com/astro-web3/function-gateway/internal/domain/gateway"
	httptransport "github.com/astro-web3/function-gateway/internal/transport/http"
	"github.com/spf13/cobra"
)

type tokenReport struct {
	Tenant    string         `json:"tenant"`
	Functions []string       `json:"functions"`
	Claims    gateway.Claims `json:"claims"`
}

// NewVerifyTokenCmd checks a token the same way the gateway does and
// prints the tenant, the functions that tenant may call and the claims.
func NewVerifyTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-token <token>",
		Short: "Verify a bearer token with the configured key and audience",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			verifier, err := httptransport.NewTokenVerifier(ctx, cfg)
			if err != nil {
				return err
			}

			claims, err := verifier.Verify(ctx, gateway.BearerToken(args[0]))
			if err != nil {
				return err
			}

			tenantClaims := cfg.Auth.TenantClaims
			if len(tenantClaims) == 0 {
				tenantClaims = gateway.DefaultOptions().TenantClaims
			}
			tenant := claims.Tenant(tenantClaims)

			functions := gateway.LoadACL(ctx, cfg.Gateway.ACL)[tenant]
			if functions == nil {
				functions = []string{}
			}

			out, err := json.MarshalIndent(tokenReport{
				Tenant:    tenant,
				Functions: functions,
				Claims:    claims,
			}, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode claims: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}
