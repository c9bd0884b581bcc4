// Package config loads the YAML configuration file.
//
// The raw document is checked against the embedded CUE schema (schema.cue)
// before it is decoded, so unknown keys and out-of-range values are rejected
// with the offending path.
//
// Example:
//
//	namespace: "myapp:"
//	history_limit: 100
//	persist_debounce: 500ms
//	database: state.db
//	remote:
//	  endpoint: https://api.example.com
//	  timeout: 5s
//	  retries: 2
//	connectivity:
//	  address: api.example.com:443
//	  interval: 10s
//	cache:
//	  default_ttl: 1m
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is the effective configuration.
type Config struct {
	Namespace       string             `yaml:"namespace" json:"namespace"`
	HistoryLimit    int                `yaml:"history_limit" json:"history_limit"`
	PersistDebounce Duration           `yaml:"persist_debounce" json:"persist_debounce"`
	Database        string             `yaml:"database" json:"database"`
	Remote          RemoteConfig       `yaml:"remote" json:"remote"`
	Connectivity    ConnectivityConfig `yaml:"connectivity" json:"connectivity"`
	Cache           CacheConfig        `yaml:"cache" json:"cache"`
}

// RemoteConfig configures the HTTP dispatcher.
// An empty Endpoint disables remote calls.
type RemoteConfig struct {
	Endpoint string   `yaml:"endpoint" json:"endpoint"`
	Timeout  Duration `yaml:"timeout" json:"timeout"`
	Retries  int      `yaml:"retries" json:"retries"`
}

// ConnectivityConfig configures the polling probe.
// An empty Address disables probing; the device is then assumed online.
type ConnectivityConfig struct {
	Address  string   `yaml:"address" json:"address"`
	Interval Duration `yaml:"interval" json:"interval"`
}

// CacheConfig configures cache defaults.
type CacheConfig struct {
	DefaultTTL Duration `yaml:"default_ttl" json:"default_ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Namespace:       "snapstate:",
		HistoryLimit:    50,
		PersistDebounce: Duration(250 * time.Millisecond),
		Database:        "snapstate.db",
		Remote: RemoteConfig{
			Timeout: Duration(10 * time.Second),
			Retries: 2,
		},
		Connectivity: ConnectivityConfig{
			Interval: Duration(5 * time.Second),
		},
		Cache: CacheConfig{
			DefaultTTL: Duration(time.Minute),
		},
	}
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates data against the schema and decodes it over Default().
// An empty document yields the defaults.
func Parse(data []byte) (Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	if raw == nil {
		return Default(), nil
	}
	if err := validate(raw); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// ValidationError describes a schema violation.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "invalid config: " + e.Message
	}
	return fmt.Sprintf("invalid config: %s: %s", e.Path, e.Message)
}

// validate unifies the raw document with #Config.
func validate(raw any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return &ValidationError{Message: err.Error()}
	}

	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		errs := cueerrors.Errors(err)
		if len(errs) == 0 {
			return &ValidationError{Message: err.Error()}
		}
		first := errs[0]
		format, args := first.Msg()
		return &ValidationError{
			Path:    strings.TrimPrefix(strings.Join(first.Path(), "."), "#Config."),
			Message: fmt.Sprintf(format, args...),
		}
	}
	return nil
}

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the Go duration string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// MarshalJSON writes the duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
