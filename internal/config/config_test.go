package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalYAML = `
http:
  port: 8080
scene:
  path: testdata/scene.json
`

func writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o750); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "test.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Chdir(dir)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	writeConfig(t, minimalYAML)

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("Port = %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.ReadTimeoutSec != 10 || cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("http defaults not applied: %+v", cfg.HTTP)
	}
	if cfg.Cache.Driver != "memory" {
		t.Errorf("Cache.Driver = %q", cfg.Cache.Driver)
	}
	if cfg.Search.Weights.Label == 0 || cfg.Search.MinQueryLength == 0 {
		t.Errorf("search defaults not applied: %+v", cfg.Search)
	}
	if cfg.Dispatch.Retry.MaxAttempts == 0 {
		t.Errorf("dispatch defaults not applied: %+v", cfg.Dispatch)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TOURDEX_TEST_PORT", "9999")
	writeConfig(t, strings.Replace(minimalYAML, "8080", "${TOURDEX_TEST_PORT}", 1))

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9999 {
		t.Errorf("Port = %d, want env expansion", cfg.HTTP.Port)
	}
}

func TestLoad_EnvVarDefault(t *testing.T) {
	writeConfig(t, strings.Replace(minimalYAML, "8080", "${TOURDEX_UNSET_PORT:-7777}", 1))

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 7777 {
		t.Errorf("Port = %d, want ${VAR:-default} expansion", cfg.HTTP.Port)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		var c Config
		c.HTTP.Port = 8080
		c.Scene.Path = "scene.json"
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"missing scene", func(c *Config) { c.Scene.Path = "" }, "scene.path"},
		{"redis without addrs", func(c *Config) { c.Cache.Driver = "redis" }, "cache.addrs"},
		{"unknown driver", func(c *Config) { c.Cache.Driver = "etcd" }, "cache.driver"},
		{"dataset without source", func(c *Config) { c.Dataset.Enabled = true }, "dataset.url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestMerge_PatchKeepsUnrelatedSections(t *testing.T) {
	var cfg Config
	cfg.HTTP.Port = 8080
	cfg.Scene.Path = "scene.json"
	cfg.Content.Containers = []string{"Menu"}
	cfg.ApplyDefaults()

	merged, err := cfg.Merge([]byte("labels:\n  kind_as_label: true\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !merged.Labels.KindAsLabel {
		t.Error("patched section not applied")
	}
	if merged.HTTP.Port != 8080 || len(merged.Content.Containers) != 1 {
		t.Errorf("unrelated sections changed: %+v", merged)
	}
}

func TestMerge_InvalidPatchRejected(t *testing.T) {
	var cfg Config
	cfg.HTTP.Port = 8080
	cfg.Scene.Path = "scene.json"
	cfg.ApplyDefaults()

	if _, err := cfg.Merge([]byte("http:\n  port: -1\n")); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRequiresRebuild(t *testing.T) {
	var base Config
	base.HTTP.Port = 8080
	base.Scene.Path = "scene.json"
	base.ApplyDefaults()

	membership := base
	membership.Filter.MinLabelLength = 3
	if !RequiresRebuild(base, membership) {
		t.Error("filter change must trigger a rebuild")
	}

	presentation := base
	presentation.Group.ByExternalKind = true
	presentation.HTTP.Port = 9090
	if RequiresRebuild(base, presentation) {
		t.Error("presentation change must not trigger a rebuild")
	}
}
