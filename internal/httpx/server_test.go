package httpx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"clocktick/internal/config"
	"clocktick/internal/storage"
	clocktick "clocktick/pkg/clocktick"
	logx "clocktick/pkg/logx"
)

func TestServerHealthz(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.HTTP.Addr = "127.0.0.1:0"

	webhook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv, err := New(cfg, webhook, nil, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.Start()
	defer srv.Stop(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "ok") {
		t.Fatalf("body = %q", body)
	}
}

func TestServerWebhookMethodRestriction(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.HTTP.Addr = "127.0.0.1:0"

	webhook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv, err := New(cfg, webhook, nil, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.Start()
	defer srv.Stop(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/webhook")
	if err != nil {
		t.Fatalf("GET /webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d, want 405", resp.StatusCode)
	}

	resp, err = http.Post("http://"+srv.Addr()+"/webhook", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("POST status = %d, want 204", resp.StatusCode)
	}
}

func TestRateLimitPerClient(t *testing.T) {
	t.Parallel()

	mw := RateLimit(1, 1, logx.Nop())
	if mw == nil {
		t.Fatal("middleware is nil")
	}
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := send("10.0.0.1:1234"); got != http.StatusNoContent {
		t.Fatalf("first request: status = %d", got)
	}
	if got := send("10.0.0.1:5678"); got != http.StatusTooManyRequests {
		t.Fatalf("burst exceeded: status = %d, want 429", got)
	}
	// A different client has its own bucket.
	if got := send("10.0.0.2:1234"); got != http.StatusNoContent {
		t.Fatalf("other client: status = %d", got)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	t.Parallel()
	if RateLimit(0, 0, logx.Nop()) != nil {
		t.Fatal("expected nil middleware for zero rate")
	}
}

func TestDedupSuppressesReplay(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "ledger")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer st.Close()

	var calls atomic.Int64
	mw := Dedup(st, logx.Nop())
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(sig string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
		if sig != "" {
			req.Header.Set(clocktick.HeaderSignature, sig)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := send("sig-1"); got != http.StatusNoContent {
		t.Fatalf("first delivery: status = %d", got)
	}
	if got := send("sig-1"); got != http.StatusNoContent {
		t.Fatalf("replay: status = %d", got)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("handler ran %d times, want 1", n)
	}

	// A different signature dispatches normally.
	if got := send("sig-2"); got != http.StatusNoContent {
		t.Fatalf("second delivery: status = %d", got)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("handler ran %d times, want 2", n)
	}
}

func TestDedupFailuresAreNotSuppressed(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "ledger")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer st.Close()

	var calls atomic.Int64
	mw := Dedup(st, logx.Nop())
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "handler failed", http.StatusInternalServerError)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
		req.Header.Set(clocktick.HeaderSignature, "sig-err")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("attempt %d: status = %d", i, rec.Code)
		}
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("handler ran %d times, want 2 (failures must be retryable)", n)
	}
}

func TestDedupNilStore(t *testing.T) {
	t.Parallel()
	if Dedup(nil, logx.Nop()) != nil {
		t.Fatal("expected nil middleware for nil store")
	}
}
