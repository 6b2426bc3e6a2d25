// Package config loads service configuration from a YAML file with flag
// overrides, and sources exchange credentials from the environment.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raeendev/portfolio-doctor/internal/domain"
)

const (
	defaultListenAddr   = ":8085"
	defaultWALDir       = "./wal/portfolio"
	defaultAPIKeyEnv    = "LBANK_API_KEY"
	defaultAPISecretEnv = "LBANK_API_SECRET"

	defaultGeneralLimit = 200
	defaultOrderLimit   = 500
	defaultLimitWindow  = 10 * time.Second
	defaultPriceTTL     = 5 * time.Second
	defaultFetchTimeout = 30 * time.Second
)

// Config is the validated runtime configuration.
type Config struct {
	ListenAddr    string
	Hosts         []string
	ContractHosts []string
	GeneralLimit  int
	OrderLimit    int
	LimitWindow   time.Duration
	PriceCacheTTL time.Duration
	FetchTimeout  time.Duration
	WALDir        string
	APIKeyEnv     string
	APISecretEnv  string
}

// ConfigTmp mirrors the YAML file shape; durations are strings so configs
// can say "10s" rather than nanosecond integers.
type ConfigTmp struct {
	ListenAddr       string   `yaml:"listen_addr,omitempty"`
	Hosts            []string `yaml:"hosts,omitempty"`
	ContractHosts    []string `yaml:"contract_hosts,omitempty"`
	GeneralLimit     int      `yaml:"general_rate_limit,omitempty"`
	OrderLimit       int      `yaml:"order_rate_limit,omitempty"`
	LimitWindowStr   string   `yaml:"rate_limit_window,omitempty"`
	PriceCacheTTLStr string   `yaml:"price_cache_ttl,omitempty"`
	FetchTimeoutStr  string   `yaml:"fetch_timeout,omitempty"`
	WALDir           string   `yaml:"wal_dir,omitempty"`
	APIKeyEnv        string   `yaml:"api_key_env,omitempty"`
	APISecretEnv     string   `yaml:"api_secret_env,omitempty"`
}

// Get reads flags and, when -config is provided, the YAML file behind it.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	listen := flag.String("listen", "", "listen address, overrides config")
	walDir := flag.String("waldir", "", "snapshot WAL directory, overrides config")
	flag.Parse()

	cfg := defaults()
	if *configPath != "" {
		loaded, err := FromYaml(*configPath)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	if *walDir != "" {
		cfg.WALDir = *walDir
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromYaml loads and validates a config file.
func FromYaml(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(raw, &tmp); err != nil {
		return Config{}, fmt.Errorf("parse yaml config: %w", err)
	}

	cfg := defaults()
	if tmp.ListenAddr != "" {
		cfg.ListenAddr = tmp.ListenAddr
	}
	if len(tmp.Hosts) > 0 {
		cfg.Hosts = tmp.Hosts
	}
	if len(tmp.ContractHosts) > 0 {
		cfg.ContractHosts = tmp.ContractHosts
	}
	if tmp.GeneralLimit > 0 {
		cfg.GeneralLimit = tmp.GeneralLimit
	}
	if tmp.OrderLimit > 0 {
		cfg.OrderLimit = tmp.OrderLimit
	}
	if tmp.LimitWindowStr != "" {
		d, err := time.ParseDuration(tmp.LimitWindowStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'rate_limit_window' param in yaml config: %w", err)
		}
		cfg.LimitWindow = d
	}
	if tmp.PriceCacheTTLStr != "" {
		d, err := time.ParseDuration(tmp.PriceCacheTTLStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'price_cache_ttl' param in yaml config: %w", err)
		}
		cfg.PriceCacheTTL = d
	}
	if tmp.FetchTimeoutStr != "" {
		d, err := time.ParseDuration(tmp.FetchTimeoutStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'fetch_timeout' param in yaml config: %w", err)
		}
		cfg.FetchTimeout = d
	}
	if tmp.WALDir != "" {
		cfg.WALDir = tmp.WALDir
	}
	if tmp.APIKeyEnv != "" {
		cfg.APIKeyEnv = tmp.APIKeyEnv
	}
	if tmp.APISecretEnv != "" {
		cfg.APISecretEnv = tmp.APISecretEnv
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Credentials reads the API key pair from the configured environment
// variables. The values themselves never enter the config file.
func (c Config) Credentials() (domain.Credentials, error) {
	key := os.Getenv(c.APIKeyEnv)
	secret := os.Getenv(c.APISecretEnv)
	if key == "" || secret == "" {
		return domain.Credentials{}, fmt.Errorf("exchange credentials missing: set %s and %s", c.APIKeyEnv, c.APISecretEnv)
	}
	return domain.Credentials{APIKey: key, APISecret: secret}, nil
}

func defaults() Config {
	return Config{
		ListenAddr:    defaultListenAddr,
		GeneralLimit:  defaultGeneralLimit,
		OrderLimit:    defaultOrderLimit,
		LimitWindow:   defaultLimitWindow,
		PriceCacheTTL: defaultPriceTTL,
		FetchTimeout:  defaultFetchTimeout,
		WALDir:        defaultWALDir,
		APIKeyEnv:     defaultAPIKeyEnv,
		APISecretEnv:  defaultAPISecretEnv,
	}
}

func (c Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.GeneralLimit <= 0 || c.OrderLimit <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.LimitWindow <= 0 {
		return fmt.Errorf("rate_limit_window must be positive")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive")
	}
	if c.APIKeyEnv == "" || c.APISecretEnv == "" {
		return fmt.Errorf("credential env var names are required")
	}
	return nil
}
