package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	oerrors "github.com/rocketdoo/rkd/internal/errors"
)

// Environment variable prefix for rkd configuration.
const envPrefix = "RKD"

// Loader reads deploy.yaml and applies environment overrides.
type Loader struct {
	v      *viper.Viper
	lookup LookupFunc
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLookup sets the variable source for ${VAR} placeholders.
func WithLookup(fn LookupFunc) LoaderOption {
	return func(l *Loader) {
		l.lookup = fn
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...LoaderOption) *Loader {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("modules.base_path", "RKD_MODULES_BASE_PATH")
	_ = v.BindEnv("backup.enabled", "RKD_BACKUP_ENABLED")
	_ = v.BindEnv("backup.keep_last", "RKD_BACKUP_KEEP_LAST")
	_ = v.BindEnv("backup.path", "RKD_BACKUP_PATH")

	l := &Loader{v: v}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the configuration at path. A missing file yields the default
// configuration with Loaded set to false. Schema violations are returned as
// a validation error listing every problem.
func (l *Loader) Load(path string) (*DeployConfig, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expanding config path: %w", err)
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		cfg := DefaultConfig()
		cfg.Path = expanded
		ResolvePlaceholders(cfg, l.lookup)
		return cfg, nil
	}

	cfg, err := l.parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Path = expanded
	cfg.Loaded = true
	return cfg, nil
}

// LoadRequired is Load but fails when the file does not exist.
func (l *Loader) LoadRequired(path string) (*DeployConfig, error) {
	cfg, err := l.Load(path)
	if err != nil {
		return nil, err
	}
	if !cfg.Loaded {
		return nil, oerrors.NewNotFoundError(
			"deployment configuration not found",
			cfg.Path,
			"run 'rkd deploy init' to create one",
		)
	}
	return cfg, nil
}

// Parse builds a configuration from YAML bytes.
func (l *Loader) Parse(data []byte) (*DeployConfig, error) {
	return l.parse(data)
}

func (l *Loader) parse(data []byte) (*DeployConfig, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, oerrors.NewValidationError(err.Error(), "", "", "check the YAML syntax of the configuration file")
	}
	if raw == nil {
		raw = map[string]any{}
	}

	schema, err := NewValidator()
	if err != nil {
		return nil, err
	}
	if err := schema.ValidateRaw(raw); err != nil {
		return nil, err
	}

	l.v.SetConfigType("yaml")
	if err := l.v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg DeployConfig
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	keepEmptyPolicies(&cfg, raw)
	cfg.WithDefaults()
	ResolvePlaceholders(&cfg, l.lookup)
	return &cfg, nil
}

// keepEmptyPolicies restores explicitly empty validation maps, which viper
// drops, so that "validations: {}" disables every check.
func keepEmptyPolicies(cfg *DeployConfig, raw map[string]any) {
	if isEmptyMap(raw["validations"]) {
		cfg.Validations = ValidationPolicy{}
	}
	targets, _ := raw["targets"].(map[string]any)
	for name, body := range targets {
		t, ok := cfg.Targets[strings.ToLower(name)]
		if !ok || t == nil {
			continue
		}
		fields, _ := body.(map[string]any)
		if isEmptyMap(fields["validations"]) {
			t.Validations = ValidationPolicy{}
		}
	}
}

func isEmptyMap(v any) bool {
	m, ok := v.(map[string]any)
	return ok && len(m) == 0
}

// WriteFile writes configuration bytes, creating the parent directory.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
