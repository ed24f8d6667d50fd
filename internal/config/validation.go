package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.Origin == "" {
		return fmt.Errorf("origin is required")
	}
	parsed, err := url.Parse(c.Origin)
	if err != nil {
		return fmt.Errorf("origin: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("origin scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("origin must include a host")
	}

	switch c.Storage.Backend {
	case "memory":
	case "disk":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the disk backend")
		}
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("storage.backend must be memory, disk or redis, got %q", c.Storage.Backend)
	}

	for _, res := range c.CriticalResources {
		if !strings.HasPrefix(res, "/") {
			return fmt.Errorf("critical resource %q must be an absolute path", res)
		}
	}
	if c.OfflineDocument != "" && !strings.HasPrefix(c.OfflineDocument, "/") {
		return fmt.Errorf("offline_document %q must be an absolute path", c.OfflineDocument)
	}
	for _, prefix := range c.APIPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("api prefix %q must be an absolute path", prefix)
		}
	}
	for _, pattern := range c.APICachePatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("api cache pattern %q: %v", pattern, err)
		}
	}
	for _, ext := range c.StaticExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("static extension %q must start with a dot", ext)
		}
	}

	if c.Sync.MaxAttempts < 0 {
		return fmt.Errorf("sync.max_attempts must be non-negative")
	}
	if c.Limits.MaxHeaderBytes < 0 {
		return fmt.Errorf("limits.max_header_bytes must be non-negative")
	}
	return nil
}

// CompiledAPICachePatterns returns the cacheable-API matchers; Validate has
// already rejected bad patterns.
func (c *Config) CompiledAPICachePatterns() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(c.APICachePatterns))
	for _, pattern := range c.APICachePatterns {
		if compiled, err := regexp.Compile(pattern); err == nil {
			patterns = append(patterns, compiled)
		}
	}
	return patterns
}
