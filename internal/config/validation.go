package config

import (
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strings"
)

// ValidationError represents a configuration validation error with suggestions.
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation.
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors.
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted list of all validation issues.
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}
	write("Validation errors", vr.Errors)
	write("Validation warnings", vr.Warnings)

	return builder.String()
}

// ValidateConfigWithDetails validates every section and collects all issues.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateComponentsConfigDetails(&config.Components, result)
	validateRenderConfigDetails(&config.Render, result)
	validateServerConfigDetails(&config.Server, result)
	validateCacheConfigDetails(&config.Cache, result)
	validateLoggingConfigDetails(&config.Logging, result)

	result.Valid = !result.HasErrors()
	return result
}

func validateComponentsConfigDetails(config *ComponentsConfig, result *ValidationResult) {
	for _, path := range config.ScanPaths {
		if err := validatePath(path); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:       "components.scan_paths",
				Value:       path,
				Message:     err.Error(),
				Suggestions: []string{"Use a relative path inside the project, e.g. ./components"},
			})
		}
	}
	for _, url := range config.Remote {
		if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "components.remote",
				Value:   url,
				Message: "remote definitions must be http(s) URLs",
			})
		} else if strings.HasPrefix(url, "http://") {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:       "components.remote",
				Value:       url,
				Message:     "remote definition fetched over plain http",
				Suggestions: []string{"Serve definitions over https"},
			})
		}
	}
}

func validateRenderConfigDetails(config *RenderConfig, result *ValidationResult) {
	if config.MaxDepth < 1 || config.MaxDepth > 64 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "render.max_depth",
			Value:   config.MaxDepth,
			Message: fmt.Sprintf("nesting depth %d is not in range 1-64", config.MaxDepth),
		})
	}
	if config.MaxRenderDepth < 1 || config.MaxRenderDepth > 1024 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "render.max_render_depth",
			Value:   config.MaxRenderDepth,
			Message: fmt.Sprintf("re-render depth %d is not in range 1-1024", config.MaxRenderDepth),
		})
	}
	if config.Style != "shadow" && config.Style != "scoped" {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "render.style",
			Value:       config.Style,
			Message:     fmt.Sprintf("unknown style mode %q", config.Style),
			Suggestions: []string{"Use 'shadow' for declarative shadow DOM", "Use 'scoped' to prefix selectors with the component tag"},
		})
	}
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			Suggestions: []string{
				"Use a port between 1024-65535 for non-privileged access",
				"Port 0 allows the system to assign an available port",
			},
		})
	} else if config.Port > 0 && config.Port < 1024 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: "port below 1024 requires elevated privileges",
		})
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.host",
				Value:   config.Host,
				Message: err.Error(),
				Suggestions: []string{
					"Use 'localhost' for local development",
					"Use '0.0.0.0' to bind to all interfaces",
				},
			})
		}
	}

	for _, origin := range config.AllowedOrigins {
		if origin != "*" && !strings.Contains(origin, "://") {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   "server.allowed_origins",
				Value:   origin,
				Message: "origin without scheme never matches a browser Origin header",
			})
		}
	}
}

func validateCacheConfigDetails(config *CacheConfig, result *ValidationResult) {
	if config.Path != "" {
		if err := validatePath(config.Path); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "cache.path",
				Value:   config.Path,
				Message: err.Error(),
			})
		}
	}
	if config.TTL < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "cache.ttl",
			Value:   config.TTL,
			Message: "ttl must not be negative",
		})
	}
}

func validateLoggingConfigDetails(config *LoggingConfig, result *ValidationResult) {
	if !contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(config.Level)) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "logging.level",
			Value:   config.Level,
			Message: fmt.Sprintf("unknown level %q", config.Level),
		})
	}
	if !contains([]string{"auto", "text", "json"}, strings.ToLower(config.Format)) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "logging.format",
			Value:   config.Format,
			Message: fmt.Sprintf("unknown format %q", config.Format),
		})
	}
}

var hostnameRe = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9\-\.]*[A-Za-z0-9])?$`)

func validateHostname(host string) error {
	if net.ParseIP(host) != nil {
		return nil
	}
	if len(host) > 253 || !hostnameRe.MatchString(host) {
		return fmt.Errorf("invalid hostname %q", host)
	}
	return nil
}

// validatePath rejects empty paths, traversal and shell metacharacters.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}
	for _, char := range []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"} {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}
	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
