package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"liffsurvey/internal/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := config.Default()
	schema, err := cfg.Schema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	for _, name := range cfg.Validation.RequiredFields {
		if !schema.Required(name) {
			t.Fatalf("expected %s to be required", name)
		}
	}
	if cfg.HasRealEndpoint() {
		t.Fatalf("default config should not have a real endpoint")
	}
	if cfg.Timeout() != 15*time.Second {
		t.Fatalf("timeout = %s", cfg.Timeout())
	}
	if cfg.LIFFID() != "" {
		t.Fatalf("placeholder liff id should read as empty, got %q", cfg.LIFFID())
	}
	if cfg.Location().String() != "Asia/Taipei" {
		t.Fatalf("location = %s", cfg.Location())
	}
}

func TestTargetPrefersProxy(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Apply(config.Overrides{UpstreamURL: "https://script.google.com/macros/s/abc/exec"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := cfg.Target(); got != "https://script.google.com/macros/s/abc/exec" {
		t.Fatalf("target = %s", got)
	}
	if err := cfg.Apply(config.Overrides{APIBaseURL: "https://proxy.example/"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := cfg.Target(); got != "https://proxy.example/liff/survey" {
		t.Fatalf("target = %s", got)
	}
	if !cfg.UsesProxy() {
		t.Fatalf("expected proxy mode")
	}
}

func TestRealEndpoint(t *testing.T) {
	cases := []struct {
		name     string
		upstream string
		base     string
		want     bool
	}{
		{"nothing", "", "", false},
		{"placeholder upstream", config.PlaceholderUpstreamURL, "", false},
		{"upstream only", "https://script.google.com/macros/s/abc/exec", "", true},
		{"proxy only", "", "https://proxy.example", true},
		{"proxy with placeholder upstream", config.PlaceholderUpstreamURL, "https://proxy.example", true},
	}
	for _, c := range cases {
		cfg := config.Default()
		cfg.Upstream.URL = c.upstream
		cfg.API.BaseURL = c.base
		if got := cfg.HasRealEndpoint(); got != c.want {
			t.Fatalf("%s: HasRealEndpoint = %v, want %v (target %q)", c.name, got, c.want, cfg.Target())
		}
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	debug := true
	err := cfg.Apply(config.Overrides{
		LIFFID:         "2007891693-KAARXOLV",
		AllowedOrigins: " https://liff.line.me, ,https://example.com ",
		Port:           8081,
		Debug:          &debug,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.LIFFID() != "2007891693-KAARXOLV" {
		t.Fatalf("liff id = %q", cfg.LIFFID())
	}
	if strings.Join(cfg.Proxy.AllowedOrigins, "|") != "https://liff.line.me|https://example.com" {
		t.Fatalf("origins = %v", cfg.Proxy.AllowedOrigins)
	}
	if cfg.ListenAddr() != ":8081" {
		t.Fatalf("addr = %s", cfg.ListenAddr())
	}
	if !cfg.App.Debug {
		t.Fatalf("debug override not applied")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"upstream scheme": func(c *config.Config) { c.Upstream.URL = "ftp://example.com/x" },
		"api no host":     func(c *config.Config) { c.API.BaseURL = "https://" },
		"origin path":     func(c *config.Config) { c.Proxy.AllowedOrigins = []string{"https://a.example/path"} },
		"phone pattern":   func(c *config.Config) { c.Validation.PhonePattern = "(" },
		"time zone":       func(c *config.Config) { c.App.TimeZone = "Mars/Olympus" },
		"required":        func(c *config.Config) { c.Validation.RequiredFields = append(c.Validation.RequiredFields, "nope") },
		"port":            func(c *config.Config) { c.Proxy.Port = 70000 },
	}
	for name, mutate := range cases {
		cfg := config.Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if _, err := config.Load(dir); err == nil {
		t.Fatalf("expected error for missing config")
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	cfg.Upstream.URL = "https://script.google.com/macros/s/xyz/exec"
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, config.FileName), data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Upstream.URL != cfg.Upstream.URL {
		t.Fatalf("upstream url = %q", loaded.Upstream.URL)
	}
	if len(loaded.Survey.Fields) != len(cfg.Survey.Fields) {
		t.Fatalf("fields = %d, want %d", len(loaded.Survey.Fields), len(cfg.Survey.Fields))
	}
	if !loaded.PhonePattern().MatchString("0912345678") {
		t.Fatalf("phone pattern lost in round trip")
	}
}

func TestFromYAMLRejectsUnknownKeys(t *testing.T) {
	if _, err := config.FromYAML([]byte("liff:\n  id: x\nbogus: 1\n")); err == nil {
		t.Fatalf("expected unknown key error")
	}
}
