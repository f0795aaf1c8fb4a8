package bootstrap

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artpar/quotamon/app"
	"github.com/artpar/quotamon/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Store.Backend = "memory"
	cfg.Metrics.Backend = "prometheus"
	cfg.Notify.Backend = "noop"
	cfg.Logging.Level = "error"
	cfg.Resources = []config.ResourceConfig{
		{Name: "AdobeAPI", Limit: 500, WarningThreshold: 0.80, CriticalThreshold: 0.95},
	}
	return cfg
}

func TestNew_MemoryBackend(t *testing.T) {
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Shutdown()

	if a.Monitor == nil {
		t.Error("Monitor should be initialized")
	}
	if a.HTTPServer == nil {
		t.Error("HTTPServer should be initialized")
	}
	if a.DB != nil {
		t.Error("DB should be nil for the memory backend")
	}

	// Wiring check: admission goes through the real store and metrics
	d, err := a.Monitor.CheckAvailable(context.Background(), "AdobeAPI")
	if err != nil {
		t.Fatalf("CheckAvailable failed: %v", err)
	}
	if !d.Allowed {
		t.Error("call should be allowed on a fresh store")
	}
}

func TestNew_SQLiteBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = "sqlite"
	cfg.Store.SQLite.Path = filepath.Join(t.TempDir(), "quota.db")

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Shutdown()

	if a.DB == nil {
		t.Fatal("DB should be set for the sqlite backend")
	}

	// The migrated store must accept a recorded call and read it back
	ctx := context.Background()
	a.Monitor.RecordCall(ctx, "AdobeAPI", app.Outcome{Succeeded: true})
	snap, err := a.Monitor.Usage(ctx, "AdobeAPI")
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if snap.Count != 1 {
		t.Errorf("expected count 1, got %d", snap.Count)
	}
}

func TestNew_NoopBackends(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Backend = "noop"
	cfg.Notify.Backend = "noop"

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Shutdown()

	// Recording must go through the noop sink and notifier without issue.
	a.Monitor.RecordCall(context.Background(), "AdobeAPI", app.Outcome{Succeeded: true})
	snap, err := a.Monitor.Usage(context.Background(), "AdobeAPI")
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if snap.Count != 1 {
		t.Errorf("expected count 1, got %d", snap.Count)
	}
}

func TestNew_WebhookNotifier(t *testing.T) {
	cfg := testConfig()
	cfg.Notify.Backend = "webhook"
	cfg.Notify.Webhook.URL = "http://alerts.internal/hook"
	cfg.Notify.Webhook.Secret = "s3cret"

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Shutdown()
}

func TestNew_UnknownStoreBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = "bogus"

	_, err := New(cfg)
	if err == nil {
		t.Fatal("expected error for unknown store backend")
	}
	if !strings.Contains(err.Error(), "init store") {
		t.Errorf("error should mention init store, got: %v", err)
	}
}

func TestNew_UnknownMetricsBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Backend = "statsd"

	_, err := New(cfg)
	if err == nil {
		t.Fatal("expected error for unknown metrics backend")
	}
	if !strings.Contains(err.Error(), "init metrics") {
		t.Errorf("error should mention init metrics, got: %v", err)
	}
}

func TestNew_UnknownNotifyBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Notify.Backend = "pager"

	_, err := New(cfg)
	if err == nil {
		t.Fatal("expected error for unknown notify backend")
	}
	if !strings.Contains(err.Error(), "init notifier") {
		t.Errorf("error should mention init notifier, got: %v", err)
	}
}

func TestNew_EmailNotifierIncomplete(t *testing.T) {
	cfg := testConfig()
	cfg.Notify.Backend = "email"
	// Host intentionally absent

	_, err := New(cfg)
	if err == nil {
		t.Fatal("expected error for incomplete email settings")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := a.Shutdown(); err != nil {
		t.Errorf("first Shutdown failed: %v", err)
	}
	if err := a.Shutdown(); err != nil {
		t.Errorf("second Shutdown failed: %v", err)
	}
}

func TestResourceQuotas(t *testing.T) {
	cfg := testConfig()
	cfg.Resources = append(cfg.Resources, config.ResourceConfig{
		Name: "BedrockAPI", Limit: 0, WarningThreshold: 0.50, CriticalThreshold: 0.75,
	})

	quotas := resourceQuotas(cfg)
	if len(quotas) != 2 {
		t.Fatalf("expected 2 quotas, got %d", len(quotas))
	}
	if quotas["AdobeAPI"].Limit != 500 {
		t.Errorf("AdobeAPI limit should be 500, got %d", quotas["AdobeAPI"].Limit)
	}
	if quotas["BedrockAPI"].WarningThreshold != 0.50 {
		t.Errorf("BedrockAPI warning threshold should be 0.50, got %v", quotas["BedrockAPI"].WarningThreshold)
	}
}
