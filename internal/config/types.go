package config

import "time"

// Config is the daemon configuration, loaded from a YAML or JSON file.
// Unknown fields are rejected so typos fail loudly at startup.
type Config struct {
	Service ServiceConfig  `json:"service"`
	HTTP    HTTPConfig     `json:"http"`
	Logging LoggingConfig  `json:"logging"`
	Storage *StorageConfig `json:"storage,omitempty"`

	// Reminder configures the sample Telegram reminder handler. Optional;
	// when omitted the handler set is not registered.
	Reminder *ReminderConfig `json:"reminder,omitempty"`
}

// ServiceConfig holds the clocktick credentials and routing defaults.
type ServiceConfig struct {
	APIKey          string `json:"api_key"`
	Secret          string `json:"secret"`
	PublicKey       string `json:"public_key"` // hex-encoded ed25519 trust anchor
	DefaultEndpoint string `json:"default_endpoint"`
	BaseURL         string `json:"base_url,omitempty"` // default: production API
}

// HTTPConfig controls the webhook listener.
//
// All timeouts are Go duration strings (e.g. "5s", "1m").
type HTTPConfig struct {
	Addr        string `json:"addr,omitempty"`         // default "127.0.0.1:8377"
	WebhookPath string `json:"webhook_path,omitempty"` // default "/webhook"

	// RatePerSec limits inbound callbacks per client IP (token bucket).
	// 0 disables limiting.
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// LoggingConfig mirrors logx.Config.
//
// Console is a pointer so "omitted" (default true) and an explicit false are
// distinguishable.
type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console *bool         `json:"console,omitempty"`
	File    FileLogConfig `json:"file,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the optional local job ledger.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl journal)
//   - "sqlite": SQLite database file (sqlite build tag)
//
// If Driver is empty or "none", the ledger is disabled.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ReminderConfig wires the Telegram reminder handler.
type ReminderConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// ConsoleEnabled resolves the Console pointer.
func (l LoggingConfig) ConsoleEnabled() bool {
	return l.Console == nil || *l.Console
}

// Validate rejects configs that cannot possibly serve.
func (c *Config) Validate() error {
	if c.Service.APIKey == "" {
		return errMissing("service.api_key")
	}
	if c.Service.Secret == "" {
		return errMissing("service.secret")
	}
	if c.Service.PublicKey == "" {
		return errMissing("service.public_key")
	}
	if c.Service.DefaultEndpoint == "" {
		return errMissing("service.default_endpoint")
	}
	if _, err := ParseDurationOrDefault("http.read_timeout", c.HTTP.ReadTimeout, 0); err != nil {
		return err
	}
	if _, err := ParseDurationOrDefault("http.write_timeout", c.HTTP.WriteTimeout, 0); err != nil {
		return err
	}
	if _, err := ParseDurationOrDefault("http.idle_timeout", c.HTTP.IdleTimeout, 0); err != nil {
		return err
	}
	if c.Storage != nil {
		if _, err := ParseDurationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, 0); err != nil {
			return err
		}
	}
	if c.Reminder != nil && c.Reminder.Token == "" {
		return errMissing("reminder.token")
	}
	return nil
}

// ListenAddr resolves the HTTP bind address.
func (c *Config) ListenAddr() string {
	if c.HTTP.Addr != "" {
		return c.HTTP.Addr
	}
	return "127.0.0.1:8377"
}

// Webhook resolves the webhook mount path.
func (c *Config) Webhook() string {
	if c.HTTP.WebhookPath != "" {
		return c.HTTP.WebhookPath
	}
	return "/webhook"
}

// Timeout reads one of the http.* duration fields, already validated.
func (h HTTPConfig) Timeout(raw string) time.Duration {
	d, _ := ParseDurationOrDefault("", raw, 0)
	return d
}
