// Package e2e provides end-to-end tests for the complete quota monitor flow.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/quotamon/adapters/hasher"
	"github.com/artpar/quotamon/bootstrap"
	"github.com/artpar/quotamon/config"
)

// TestE2E_QuotaLifecycle drives a resource through its full lifecycle over
// the real HTTP server:
// 1. Admission check on a fresh store
// 2. Record calls up to the warning threshold
// 3. Record up to the limit
// 4. Verify admission is denied with 429
// 5. Restart on the same database and verify counters survived
func TestE2E_QuotaLifecycle(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, 10)

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	app, err := bootstrap.New(cfg)
	if err != nil {
		t.Fatalf("create app: %v", err)
	}

	addr := startServer(t, app)
	client := &http.Client{Timeout: 5 * time.Second}

	// 1. Fresh store: admission allowed
	meta := postCheck(t, client, addr, "TestAPI", 200)
	if meta["allowed"] != true {
		t.Errorf("fresh check allowed = %v, want true", meta["allowed"])
	}

	// 2. Record 5 successful calls (50% of limit 10, warning threshold)
	for i := 0; i < 5; i++ {
		postRecord(t, client, addr, "TestAPI", true)
	}

	attrs := getUsage(t, client, addr, "TestAPI")
	if attrs["count"] != float64(5) {
		t.Errorf("count = %v, want 5", attrs["count"])
	}
	if attrs["level"] != "warning" {
		t.Errorf("level = %v, want warning", attrs["level"])
	}

	// 3. Record up to the limit
	for i := 0; i < 5; i++ {
		postRecord(t, client, addr, "TestAPI", true)
	}

	attrs = getUsage(t, client, addr, "TestAPI")
	if attrs["count"] != float64(10) {
		t.Errorf("count = %v, want 10", attrs["count"])
	}
	if attrs["level"] != "exceeded" {
		t.Errorf("level = %v, want exceeded", attrs["level"])
	}
	if attrs["percent"] != float64(100) {
		t.Errorf("percent = %v, want 100", attrs["percent"])
	}

	// 4. Admission now denied
	postCheck(t, client, addr, "TestAPI", 429)

	// 5. Metrics endpoint reflects the recorded calls
	resp, err := client.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != 200 {
		t.Fatalf("metrics status = %d, body: %s", resp.StatusCode, body)
	}
	if !bytes.Contains(body, []byte("quotamon_api_calls_total")) {
		t.Error("metrics output missing quotamon_api_calls_total")
	}

	if err := app.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// 6. Restart on the same database: counters must survive
	app2, err := bootstrap.New(cfg)
	if err != nil {
		t.Fatalf("create app after restart: %v", err)
	}
	defer app2.Shutdown()

	addr2 := startServer(t, app2)

	attrs = getUsage(t, client, addr2, "TestAPI")
	if attrs["count"] != float64(10) {
		t.Errorf("count after restart = %v, want 10", attrs["count"])
	}
	postCheck(t, client, addr2, "TestAPI", 429)
}

// TestE2E_FailedCallsNotCounted verifies failed calls hit the failure
// metric but never the usage counter.
func TestE2E_FailedCallsNotCounted(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, 100)

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	app, err := bootstrap.New(cfg)
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	defer app.Shutdown()

	addr := startServer(t, app)
	client := &http.Client{Timeout: 5 * time.Second}

	postRecord(t, client, addr, "TestAPI", true)
	postRecord(t, client, addr, "TestAPI", false)
	postRecord(t, client, addr, "TestAPI", false)

	attrs := getUsage(t, client, addr, "TestAPI")
	if attrs["count"] != float64(1) {
		t.Errorf("count = %v, want 1 (failures must not count)", attrs["count"])
	}
}

// TestE2E_BearerAuth verifies the admin token gate on /v1 while /healthz
// stays open for probes.
func TestE2E_BearerAuth(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, 10)

	token := "e2e-secret-token"
	hash, err := hasher.NewBcrypt(4).Hash(token)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	os.Setenv("QUOTAMON_ADMIN_TOKEN_HASH", string(hash))
	defer os.Unsetenv("QUOTAMON_ADMIN_TOKEN_HASH")

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	app, err := bootstrap.New(cfg)
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	defer app.Shutdown()

	addr := startServer(t, app)
	client := &http.Client{Timeout: 5 * time.Second}

	// Without token: 401
	req, _ := http.NewRequest("GET", "http://"+addr+"/v1/usage", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 401 {
		t.Errorf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	// With token: 200
	req, _ = http.NewRequest("GET", "http://"+addr+"/v1/usage", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("authenticated status = %d, want 200", resp.StatusCode)
	}

	// Health stays open
	resp, err = client.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}
}

// ----- Harness -----

func writeConfig(t *testing.T, dir string, limit int) string {
	t.Helper()

	configPath := filepath.Join(dir, "config.yaml")
	dbPath := filepath.Join(dir, "test.db")

	configContent := fmt.Sprintf(`
resources:
  - name: TestAPI
    limit: %d
    warning_threshold: 0.5
    critical_threshold: 0.8

store:
  backend: sqlite
  sqlite:
    path: "%s"

metrics:
  backend: prometheus

notify:
  backend: noop

server:
  host: "127.0.0.1"
  port: 0

logging:
  level: error
  format: json
`, limit, dbPath)

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func startServer(t *testing.T, app *bootstrap.App) string {
	t.Helper()

	// Find free port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	addr := listener.Addr().String()

	// Update server address
	app.HTTPServer.Addr = addr

	// Close the listener so server can use the port
	listener.Close()

	go func() {
		if err := app.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Server might be shutting down
		}
	}()

	waitForServer(t, addr)

	return addr
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	client := &http.Client{Timeout: 100 * time.Millisecond}

	for i := 0; i < 50; i++ {
		resp, err := client.Get("http://" + addr + "/healthz")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}

	t.Fatalf("server at %s did not become ready", addr)
}

func postCheck(t *testing.T, client *http.Client, addr, resource string, wantStatus int) map[string]any {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"resource": resource})
	resp, err := client.Post("http://"+addr+"/v1/check", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("check request failed: %v", err)
	}

	respBody := readBody(t, resp)
	if resp.StatusCode != wantStatus {
		t.Fatalf("check status = %d, want %d, body: %s", resp.StatusCode, wantStatus, respBody)
	}

	var doc struct {
		Meta map[string]any `json:"meta"`
	}
	if err := json.Unmarshal(respBody, &doc); err != nil {
		t.Fatalf("decode check response: %v", err)
	}
	return doc.Meta
}

func postRecord(t *testing.T, client *http.Client, addr, resource string, success bool) {
	t.Helper()

	body, _ := json.Marshal(map[string]any{
		"resource":  resource,
		"operation": "generate_image",
		"success":   success,
	})
	resp, err := client.Post("http://"+addr+"/v1/record", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("record request failed: %v", err)
	}
	respBody := readBody(t, resp)
	if resp.StatusCode != 202 {
		t.Fatalf("record status = %d, want 202, body: %s", resp.StatusCode, respBody)
	}
}

func getUsage(t *testing.T, client *http.Client, addr, resource string) map[string]any {
	t.Helper()

	resp, err := client.Get("http://" + addr + "/v1/usage/" + resource)
	if err != nil {
		t.Fatalf("usage request failed: %v", err)
	}
	respBody := readBody(t, resp)
	if resp.StatusCode != 200 {
		t.Fatalf("usage status = %d, body: %s", resp.StatusCode, respBody)
	}

	var doc struct {
		Data struct {
			Attributes map[string]any `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &doc); err != nil {
		t.Fatalf("decode usage response: %v", err)
	}
	return doc.Data.Attributes
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return buf.Bytes()
}
