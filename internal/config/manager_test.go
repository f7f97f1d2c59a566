package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
service:
  api_key: key
  secret: shhh
  public_key: ab12
  default_endpoint: default
http:
  addr: "127.0.0.1:0"
  rate_per_sec: 5
logging:
  level: debug
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.APIKey != "key" || cfg.Service.Secret != "shhh" {
		t.Fatalf("unexpected service config: %+v", cfg.Service)
	}
	if cfg.HTTP.RatePerSec != 5 {
		t.Fatalf("rate_per_sec = %v", cfg.HTTP.RatePerSec)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{
		"service": {"api_key":"k","secret":"s","public_key":"ab","default_endpoint":"d"},
		"http": {}, "logging": {}
	}`))
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", validYAML+"\nsurprise: true\n"))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestLoadRejectsIncomplete(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{name: "missing api key", body: `{"service":{"secret":"s","public_key":"ab","default_endpoint":"d"}}`},
		{name: "missing secret", body: `{"service":{"api_key":"k","public_key":"ab","default_endpoint":"d"}}`},
		{name: "bad duration", body: `{"service":{"api_key":"k","secret":"s","public_key":"ab","default_endpoint":"d"},"http":{"read_timeout":"soon"}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewManager(writeConfig(t, "config.json", tt.body))
			if _, err := m.Load(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	if got := cfg.ListenAddr(); got != "127.0.0.1:8377" {
		t.Fatalf("ListenAddr = %q", got)
	}
	if got := cfg.Webhook(); got != "/webhook" {
		t.Fatalf("Webhook = %q", got)
	}
	if !cfg.Logging.ConsoleEnabled() {
		t.Fatal("console should default to enabled")
	}
	off := false
	cfg.Logging.Console = &off
	if cfg.Logging.ConsoleEnabled() {
		t.Fatal("explicit console=false ignored")
	}
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{}
	second := &Config{}
	m.publish(first)
	m.publish(second)

	got := <-ch
	if got != second {
		t.Fatal("expected the newest config to win")
	}
}
