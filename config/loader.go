package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. FLOWCANVAS_ENGINE_URL.
const EnvPrefix = "FLOWCANVAS"

// Duration fields, addressed by their JSON path. Files may write them as
// Go duration strings ("30s") or as nanoseconds.
var durationPaths = [][]string{
	{"engine", "timeout"},
	{"engine", "poll_interval"},
	{"engine", "retry", "initial_delay"},
	{"engine", "retry", "max_delay"},
	{"store", "nats", "reconnect_wait"},
	{"store", "nats", "drain_timeout"},
	{"gateway", "ping_interval"},
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a loader with validation enabled.
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  EnvPrefix,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier
// ones field by field.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load starts from Default, merges every layer, applies environment
// overrides and validates.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg, err = mergeFromMap(cfg, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", path, err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadRaw reads a JSON or YAML file into a map.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	default:
		if err := checkJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}

	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// parseDurations converts duration strings to nanoseconds for json
// unmarshaling.
func parseDurations(data map[string]any) error {
	for _, path := range durationPaths {
		parent := data
		for _, key := range path[:len(path)-1] {
			next, ok := parent[key].(map[string]any)
			if !ok {
				parent = nil
				break
			}
			parent = next
		}
		if parent == nil {
			continue
		}
		leaf := path[len(path)-1]
		s, ok := parent[leaf].(string)
		if !ok {
			continue
		}
		d, err := parseDurationWithDays(s)
		if err != nil {
			return fmt.Errorf("%s: %w", strings.Join(path, "."), err)
		}
		parent[leaf] = d.Nanoseconds()
	}
	return nil
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// mergeFromMap merges configuration from a raw map, only overriding fields
// present in the map.
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}
	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	env := func(name string) (string, bool, error) {
		key := l.envPrefix + "_" + name
		val, ok := os.LookupEnv(key)
		if !ok || val == "" {
			return "", false, nil
		}
		if err := checkEnvValue(key, val); err != nil {
			return "", false, err
		}
		return val, true, nil
	}

	strs := []struct {
		name   string
		target *string
	}{
		{"ENGINE_URL", &cfg.Engine.BaseURL},
		{"STORE_BACKEND", &cfg.Store.Backend},
		{"SQLITE_PATH", &cfg.Store.SQLitePath},
		{"NATS_URL", &cfg.Store.NATS.URL},
		{"NATS_BUCKET", &cfg.Store.NATS.Bucket},
		{"NATS_USERNAME", &cfg.Store.NATS.Username},
		{"NATS_PASSWORD", &cfg.Store.NATS.Password},
		{"NATS_TOKEN", &cfg.Store.NATS.Token},
		{"CATALOGUE_SOURCE", &cfg.Catalogue.Source},
		{"CATALOGUE_PATH", &cfg.Catalogue.Path},
		{"GATEWAY_ADDR", &cfg.Gateway.Addr},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FORMAT", &cfg.Log.Format},
	}
	for _, s := range strs {
		val, ok, err := env(s.name)
		if err != nil {
			return err
		}
		if ok {
			*s.target = val
		}
	}

	durations := []struct {
		name   string
		target *time.Duration
	}{
		{"ENGINE_TIMEOUT", &cfg.Engine.Timeout},
		{"ENGINE_POLL_INTERVAL", &cfg.Engine.PollInterval},
	}
	for _, d := range durations {
		val, ok, err := env(d.name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		parsed, err := parseDurationWithDays(val)
		if err != nil {
			return fmt.Errorf("%s_%s: %w", l.envPrefix, d.name, err)
		}
		*d.target = parsed
	}

	bools := []struct {
		name   string
		target *bool
	}{
		{"GATEWAY_ENABLED", &cfg.Gateway.Enabled},
		{"GATEWAY_PUBLISH_NATS", &cfg.Gateway.PublishNATS},
		{"METRICS_ENABLED", &cfg.Metrics.Enabled},
	}
	for _, b := range bools {
		val, ok, err := env(b.name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%s_%s: %w", l.envPrefix, b.name, err)
		}
		*b.target = parsed
	}

	if val, ok, err := env("ENGINE_RATE_LIMIT"); err != nil {
		return err
	} else if ok {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("%s_ENGINE_RATE_LIMIT: %w", l.envPrefix, err)
		}
		cfg.Engine.RateLimit = parsed
	}
	if val, ok, err := env("METRICS_PORT"); err != nil {
		return err
	} else if ok {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s_METRICS_PORT: %w", l.envPrefix, err)
		}
		cfg.Metrics.Port = parsed
	}
	return nil
}
