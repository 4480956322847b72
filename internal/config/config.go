package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "GATEWAY"

type Config struct {
	Server struct {
		Addr         string        `mapstructure:"addr"`
		Mode         string        `mapstructure:"mode"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"server"`

	Redis struct {
		URL      string `mapstructure:"url"`
		PoolSize int    `mapstructure:"pool_size"`
	} `mapstructure:"redis"`

	Auth struct {
		PublicKey     string        `mapstructure:"public_key"`
		PublicKeyFile string        `mapstructure:"public_key_file"`
		JWKSURL       string        `mapstructure:"jwks_url"`
		Audience      string        `mapstructure:"audience"`
		Algorithms    []string      `mapstructure:"algorithms"`
		Leeway        time.Duration `mapstructure:"leeway"`
		TenantClaims  []string      `mapstructure:"tenant_claims"`
		CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"auth"`

	Gateway struct {
		Host              string        `mapstructure:"host"`
		Scheme            string        `mapstructure:"scheme"`
		ACL               string        `mapstructure:"acl"`
		TenantHeader      string        `mapstructure:"tenant_header"`
		FunctionKeyPrefix string        `mapstructure:"function_key_prefix"`
		FunctionKeys      []FunctionKey `mapstructure:"function_keys"`
		ForwardTimeout    time.Duration `mapstructure:"forward_timeout"`
	} `mapstructure:"gateway"`

	Observability struct {
		TraceEnabled       bool              `mapstructure:"trace_enabled"`
		TracingEndpointURL string            `mapstructure:"tracing_endpoint_url"`
		TracingHeaders     map[string]string `mapstructure:"tracing_headers"`
		LogLevel           string            `mapstructure:"log_level"`
		Format             string            `mapstructure:"log_format"`
		LogSource          bool              `mapstructure:"log_source"`
	} `mapstructure:"observability"`
}

// FunctionKey is one configured function secret. Function names are
// case-sensitive, so keys are a list rather than a map: viper lowercases
// map keys.
type FunctionKey struct {
	Name string `mapstructure:"name"`
	Key  string `mapstructure:"key"`
}

// legacyEnv maps keys to the unprefixed variable names the function host
// already provides.
var legacyEnv = map[string]string{
	"gateway.acl":     "FUNCTION_ACL_JSON",
	"auth.public_key": "JWT_PUBLIC_KEY",
	"gateway.host":    "WEBSITE_HOSTNAME",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)

	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("auth.audience", "poool-users")
	v.SetDefault("auth.algorithms", []string{"RS256"})
	v.SetDefault("auth.tenant_claims", []string{"tid", "tenantId"})
	v.SetDefault("auth.cache_ttl", 5*time.Minute)

	v.SetDefault("gateway.scheme", "https")
	v.SetDefault("gateway.acl", "{}")
	v.SetDefault("gateway.tenant_header", "x-tenantid")
	v.SetDefault("gateway.function_key_prefix", "KEY_")
	v.SetDefault("gateway.forward_timeout", 60*time.Second)

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
}

// Load reads defaults, then the optional config file (path, or config.yaml
// in ./config or .), then the APP_ENV overlay, then the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	logger := slog.Default()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, name := range legacyEnv {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), name); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.Info("No config file found, using defaults and environment")
	}

	if env := os.Getenv("APP_ENV"); env != "" && path == "" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		if err := v.MergeInConfig(); err != nil {
			logger.Info("No environment-specific config (optional)", slog.String("env", env))
		} else {
			logger.Info("Environment-specific config loaded", slog.String("env", env))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// FunctionKeyMap returns the configured function secrets by function name.
// Entries without a name or key are skipped.
func (c *Config) FunctionKeyMap() map[string]string {
	keys := make(map[string]string, len(c.Gateway.FunctionKeys))
	for _, fk := range c.Gateway.FunctionKeys {
		if fk.Name == "" || fk.Key == "" {
			continue
		}
		keys[fk.Name] = fk.Key
	}
	return keys
}

// PublicKeyPEM returns the configured verification key, reading the key
// file when no inline key is set. Escaped "\n" sequences are expanded
// since single-line environment values are common.
func (c *Config) PublicKeyPEM() (string, error) {
	key := c.Auth.PublicKey
	if key == "" && c.Auth.PublicKeyFile != "" {
		b, err := os.ReadFile(c.Auth.PublicKeyFile)
		if err != nil {
			return "", fmt.Errorf("failed to read public key file: %w", err)
		}
		key = string(b)
	}
	return strings.ReplaceAll(key, `\n`, "\n"), nil
}
