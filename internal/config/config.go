// Package config loads CaseCraft's run configuration: the OpenAPI spec
// location, the configured provider list, the assignment strategy, and the
// output directory — from defaults, then an optional YAML file, then
// environment variable overrides, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is CaseCraft's complete run configuration.
type Config struct {
	// Spec names the OpenAPI/Swagger document to load: a local path or a URL.
	Spec SpecConfig `yaml:"spec" env:"SPEC"`

	// Providers lists every configured LLM backend by name.
	Providers []ProviderConfig `yaml:"providers" env:"-"`

	// Assignment controls which provider serves which endpoint.
	Assignment AssignmentConfig `yaml:"assignment" env:"ASSIGNMENT"`

	// Output controls where generated test-case artifacts are written.
	Output OutputConfig `yaml:"output" env:"OUTPUT"`

	// Log controls structured-logging verbosity and format.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// SpecConfig names the document to load and any path/tag filters.
type SpecConfig struct {
	// Location is a local file path or an http(s) URL.
	Location string `yaml:"location" env:"LOCATION"`
	// IncludeTags restricts generation to endpoints carrying one of these tags.
	IncludeTags []string `yaml:"include_tags" env:"INCLUDE_TAGS"`
	// ExcludeTags drops endpoints carrying one of these tags, applied after IncludeTags.
	ExcludeTags []string `yaml:"exclude_tags" env:"EXCLUDE_TAGS"`
	// IncludePaths restricts generation to paths matching these glob patterns.
	IncludePaths []string `yaml:"include_paths" env:"INCLUDE_PATHS"`
	// ExcludePaths drops paths matching these glob patterns, applied after IncludePaths.
	ExcludePaths []string `yaml:"exclude_paths" env:"EXCLUDE_PATHS"`
}

// ProviderConfig is one configured LLM backend.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Kind        string        `yaml:"kind"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Stream      bool          `yaml:"stream"`
	MaxWorkers  int           `yaml:"max_workers"`
	Role        string        `yaml:"role"`
	// RateLimit caps outbound requests per second against this provider,
	// independent of its own 429 responses. Zero disables the limiter.
	RateLimit float64 `yaml:"rate_limit"`
}

// AssignmentConfig selects the strategy that maps endpoints to providers.
type AssignmentConfig struct {
	// Strategy is one of round_robin, random, complexity, manual.
	Strategy string `yaml:"strategy" env:"STRATEGY"`
	// Rules is the manual strategy's ordered pattern:provider list.
	Rules []string `yaml:"rules" env:"RULES"`
	// Fallback orders providers to retry through after the assigned one fails.
	Fallback []string `yaml:"fallback" env:"FALLBACK"`
}

// OutputConfig controls artifact placement.
type OutputConfig struct {
	Dir       string `yaml:"dir" env:"DIR"`
	TagNested bool   `yaml:"tag_nested" env:"TAG_NESTED"`
	StateFile string `yaml:"state_file" env:"STATE_FILE"`
}

// LogConfig controls structured-logging output.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// DefaultConfig returns CaseCraft's zero-configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Assignment: AssignmentConfig{Strategy: "round_robin"},
		Output: OutputConfig{
			Dir:       "./casecraft-output",
			StateFile: "./casecraft-output/.casecraft-state.json",
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Loader loads a Config from defaults, an optional YAML file, then
// environment variables, in that order (builder pattern).
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "CASECRAFT",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a post-load validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load runs the full defaults -> file -> env precedence chain.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// loadFromEnv walks exported struct fields by their env tag. Providers is
// tagged env:"-" since a slice of distinct named backends does not fit the
// single-value-per-key override model; it is only ever sourced from YAML.
func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads a Config, panicking on failure. Intended for cmd/casecraft's
// wiring, not for library code.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks invariants Load cannot enforce on its own (cross-field
// constraints, non-empty requirements).
func (c *Config) Validate() error {
	var errs []string

	if c.Spec.Location == "" {
		errs = append(errs, "spec.location is required")
	}
	if len(c.Providers) == 0 {
		errs = append(errs, "at least one provider must be configured")
	}
	switch c.Assignment.Strategy {
	case "round_robin", "random", "complexity", "manual":
	default:
		errs = append(errs, "assignment.strategy must be one of round_robin, random, complexity, manual")
	}
	if c.Assignment.Strategy == "manual" && len(c.Assignment.Rules) == 0 {
		errs = append(errs, "assignment.rules is required when strategy is manual")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
