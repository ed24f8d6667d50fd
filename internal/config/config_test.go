package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
origin: "https://backend.example.org"
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.ListenAddr != "127.0.0.1:8080" {
		t.Errorf("listen_addr = %s", cfg.ListenAddr)
	}
	if cfg.ControlAddr != "127.0.0.1:9090" {
		t.Errorf("control_addr = %s", cfg.ControlAddr)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("storage.backend = %s", cfg.Storage.Backend)
	}
	if cfg.OfflineDocument != "/offline.html" {
		t.Errorf("offline_document = %s", cfg.OfflineDocument)
	}
	if cfg.APIMaxAge() != 5*time.Minute {
		t.Errorf("api max age = %v", cfg.APIMaxAge())
	}
	if cfg.FetchTimeout() != 8*time.Second {
		t.Errorf("fetch timeout = %v", cfg.FetchTimeout())
	}
	if len(cfg.PreservePrefixes) != 1 || cfg.PreservePrefixes[0] != "lcmtv-offline-" {
		t.Errorf("preserve_prefixes = %v", cfg.PreservePrefixes)
	}
	if len(cfg.APICachePatterns) == 0 {
		t.Error("api_cache_patterns should default to the API prefixes")
	}
}

func TestParseFullConfig(t *testing.T) {
	cfg, err := Parse([]byte(`
listen_addr: ":8443"
origin: "https://backend.example.org/app"
app_name: churchtv
version: v2.3.0
storage:
  backend: disk
  path: /var/lib/gateway/cache
critical_resources:
  - /
  - /offline.html
api_prefixes:
  - /api/
api_cache_patterns:
  - ^/api/videos
  - ^/api/news
sync:
  path: /var/lib/gateway/syncq
  max_attempts: 5
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Storage.Backend != "disk" || cfg.Storage.Path != "/var/lib/gateway/cache" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Sync.MaxAttempts != 5 {
		t.Fatalf("sync.max_attempts = %d", cfg.Sync.MaxAttempts)
	}
	patterns := cfg.CompiledAPICachePatterns()
	if len(patterns) != 2 {
		t.Fatalf("compiled %d patterns, want 2", len(patterns))
	}
	if !patterns[0].MatchString("/api/videos?limit=10") {
		t.Fatal("pattern does not match video listing")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing origin", `listen_addr: ":8080"`, "origin is required"},
		{"bad origin scheme", `origin: "ftp://x.example.org"`, "scheme"},
		{"origin without host", `origin: "http://"`, "host"},
		{"unknown backend", "origin: http://x.example.org\nstorage:\n  backend: s3", "backend"},
		{"redis without url", "origin: http://x.example.org\nstorage:\n  backend: redis", "redis_url"},
		{"relative critical resource", "origin: http://x.example.org\ncritical_resources:\n  - index.html", "absolute"},
		{"bad cache pattern", "origin: http://x.example.org\napi_cache_patterns:\n  - '['", "pattern"},
		{"extension without dot", "origin: http://x.example.org\nstatic_extensions:\n  - js", "dot"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Origin != "https://backend.example.org" {
		t.Fatalf("origin = %s", cfg.Origin)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
