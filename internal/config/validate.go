package config

import (
	"fmt"
	"strings"
)

// validate checks the Config for invalid or out-of-range values.
// It returns a combined error if any checks fail.
func validate(cfg *Config) error {
	var errs []string

	// Log validation
	if !isValidEnum(cfg.Log.Level, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("log.level must be one of %v, got %q", ValidLogLevels, cfg.Log.Level))
	}

	// Cache validation
	if cfg.Cache.Enabled && cfg.Cache.Size < 1 {
		errs = append(errs, fmt.Sprintf("cache.size must be at least 1 when the cache is enabled, got %d", cfg.Cache.Size))
	}

	if cfg.Cache.TTLSeconds < 0 {
		errs = append(errs, fmt.Sprintf("cache.ttl_seconds must be non-negative, got %d", cfg.Cache.TTLSeconds))
	}

	// Tracing validation
	if cfg.Tracing.Enabled {
		if !isValidEnum(cfg.Tracing.Exporter, ValidExporters) {
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of %v, got %q", ValidExporters, cfg.Tracing.Exporter))
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
		}
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %f", cfg.Tracing.SampleRate))
	}

	// Format validation
	for name, f := range cfg.Formats {
		if name == "" {
			errs = append(errs, "formats: name must not be empty")
		}
		if !isValidEnum(f.Case, ValidCases) {
			errs = append(errs, fmt.Sprintf("formats.%s.case must be one of %q, got %q", name, ValidCases, f.Case))
		}
	}

	errs = append(errs, validateScopes(cfg.Scopes)...)

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// validateScopes checks that scope names are unique, parents exist and the
// parent relation has no cycles.
func validateScopes(scopes []ScopeConfig) []string {
	var errs []string

	parents := make(map[string]string, len(scopes))
	for i, s := range scopes {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("scopes[%d].name must not be empty", i))
			continue
		}
		if _, dup := parents[s.Name]; dup {
			errs = append(errs, fmt.Sprintf("scopes[%d].name %q is not unique", i, s.Name))
			continue
		}
		parents[s.Name] = s.Parent
		for j, m := range s.Middleware {
			if m.Name == "" {
				errs = append(errs, fmt.Sprintf("scopes.%s.middleware[%d].name must not be empty", s.Name, j))
			}
		}
	}

	for name, parent := range parents {
		if parent == "" {
			continue
		}
		if _, ok := parents[parent]; !ok {
			errs = append(errs, fmt.Sprintf("scopes.%s.parent %q is not a configured scope", name, parent))
		}
	}

	for name := range parents {
		seen := map[string]bool{name: true}
		for p := parents[name]; p != ""; p = parents[p] {
			if seen[p] {
				errs = append(errs, fmt.Sprintf("scopes.%s: parent chain contains a cycle", name))
				break
			}
			seen[p] = true
		}
	}

	return errs
}

// isValidEnum returns true if val is in the allowed list (case-insensitive).
func isValidEnum(val string, allowed []string) bool {
	lower := strings.ToLower(val)
	for _, a := range allowed {
		if strings.ToLower(a) == lower {
			return true
		}
	}
	return false
}

// Order returns the scopes sorted so that every parent precedes its children,
// keeping the declared order otherwise. The config must be valid.
func Order(scopes []ScopeConfig) []ScopeConfig {
	placed := make(map[string]bool, len(scopes))
	out := make([]ScopeConfig, 0, len(scopes))
	for len(out) < len(scopes) {
		progress := false
		for _, s := range scopes {
			if placed[s.Name] {
				continue
			}
			if s.Parent == "" || placed[s.Parent] {
				out = append(out, s)
				placed[s.Name] = true
				progress = true
			}
		}
		if !progress {
			break
		}
	}
	return out
}
