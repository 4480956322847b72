// Package credential resolves the per-function secrets the gateway sends
// to internal functions.
package credential

import (
	"os"

	"github.com/astro-web3/function-gateway/internal/domain/gateway"
)

const DefaultPrefix = "KEY_"

type envResolver struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvResolver reads <prefix><function> from the process environment on
// every call, so rotated secrets apply without a restart.
func NewEnvResolver(prefix string) gateway.CredentialResolver {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &envResolver{prefix: prefix, lookup: os.LookupEnv}
}

func (r *envResolver) Resolve(function string) (string, bool) {
	if function == "" {
		return "", false
	}
	v, ok := r.lookup(r.prefix + function)
	return v, ok && v != ""
}

type mapResolver map[string]string

// NewMapResolver serves secrets from a fixed table.
func NewMapResolver(keys map[string]string) gateway.CredentialResolver {
	m := make(mapResolver, len(keys))
	for k, v := range keys {
		m[k] = v
	}
	return m
}

func (m mapResolver) Resolve(function string) (string, bool) {
	v, ok := m[function]
	return v, ok && v != ""
}

type chain []gateway.CredentialResolver

// Chain returns the first secret any resolver finds.
func Chain(resolvers ...gateway.CredentialResolver) gateway.CredentialResolver {
	return chain(resolvers)
}

func (c chain) Resolve(function string) (string, bool) {
	for _, r := range c {
		if v, ok := r.Resolve(function); ok {
			return v, true
		}
	}
	return "", false
}
