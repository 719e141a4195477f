package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// HTTPAddr is the listen address for the popup/page message endpoint.
	HTTPAddr string `koanf:"http_addr" validate:"required,hostname_port"`

	// DBPath is the filesystem path of the bbolt store backing synced and
	// local state.
	DBPath string `koanf:"db_path" validate:"required"`

	// VerdictCacheSize bounds the per-host verdict LRU in the decision
	// service. Zero disables caching.
	VerdictCacheSize int `koanf:"verdict_cache_size" validate:"gte=0"`

	// BloomFPRate is the target false-positive rate for the rule-domain
	// bloom pre-filter.
	BloomFPRate float64 `koanf:"bloom_fp_rate" validate:"gt=0,lt=1"`
}

// envLoader loads environment variables with the prefix "FOCUSGATE_",
// lowercasing keys and stripping the prefix. Replaceable in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "FOCUSGATE_",
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, "FOCUSGATE_")), value
		},
	}), nil)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	// Load default values using structs provider.
	k.Load(structs.Provider(AppConfig{
		Env:              "prod",
		LogLevel:         "info",
		HTTPAddr:         "127.0.0.1:8377",
		DBPath:           "focusgate.db",
		VerdictCacheSize: 1024,
		BloomFPRate:      0.01,
	}, "koanf"), nil)

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
