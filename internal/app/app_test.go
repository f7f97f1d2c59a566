package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clocktick/internal/config"
	"clocktick/internal/handlers/echo"
	logx "clocktick/pkg/logx"
	"clocktick/pkg/route"
)

func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := `
service:
  api_key: key
  secret: shhh
  public_key: ` + strings.Repeat("ab", 32) + `
  default_endpoint: default
http:
  addr: "127.0.0.1:0"
logging:
  level: error
  console: false
storage:
  driver: file
  path: ` + filepath.Join(dir, "ledger") + `
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestAppLifecycle(t *testing.T) {
	path := writeTestConfig(t, t.TempDir())

	a, err := New(path, func(cfg *config.Config, log logx.Logger) (route.Group, error) {
		return echo.Routes(log), nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(context.Background())

	routes := a.SDK().Routes()
	found := false
	for _, r := range routes {
		if r == "echo.say" {
			found = true
		}
	}
	if !found {
		t.Fatalf("echo.say not registered: %v", routes)
	}

	resp, err := http.Get("http://" + a.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	if _, err := a.Jobs(context.Background()); err != nil {
		t.Fatalf("Jobs: %v", err)
	}
}

func TestNewPropagatesRouteBuilderError(t *testing.T) {
	path := writeTestConfig(t, t.TempDir())

	want := errors.New("no credentials")
	_, err := New(path, func(cfg *config.Config, log logx.Logger) (route.Group, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("service: {}\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := New(path, func(*config.Config, logx.Logger) (route.Group, error) {
		return route.Group{}, nil
	}); err == nil {
		t.Fatal("expected error for incomplete config")
	}
}
