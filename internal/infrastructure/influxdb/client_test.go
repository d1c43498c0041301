package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-media/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-media/internal/infrastructure/influxdb"
)

const testUDN = "uuid:7d8f0c6e-1b1e-4a59-9a3c-5e1f2c4d6b70"

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "graymedia-dev-token",
		Org:           "graylogic",
		Bucket:        "media",
		BatchSize:     100,
		FlushInterval: 1, // 1 second for faster test feedback
	}
}

// skipIfNoInfluxDB skips the test if InfluxDB is not running.
func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		client, err := influxdb.Connect(testConfig(), testUDN)
		if err != nil {
			t.Skip("InfluxDB not available, skipping integration test")
		}
		client.Close()
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg, testUDN)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.InfluxDBConfig)
	}{
		{"missing url", func(c *config.InfluxDBConfig) { c.URL = "" }},
		{"missing org", func(c *config.InfluxDBConfig) { c.Org = "" }},
		{"missing bucket", func(c *config.InfluxDBConfig) { c.Bucket = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := influxdb.Connect(cfg, testUDN)
			if !errors.Is(err, influxdb.ErrInvalidConfig) {
				t.Errorf("Connect() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

// fakeInfluxServer answers pings and records the line protocol bodies
// posted to the write endpoint.
type fakeInfluxServer struct {
	*httptest.Server

	mu     sync.Mutex
	bodies []string
}

func newFakeInfluxServer(t *testing.T) *fakeInfluxServer {
	t.Helper()
	f := &fakeInfluxServer{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.bodies = append(f.bodies, string(body))
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInfluxServer) written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.bodies, "\n")
}

// TestClose_FlushesTaggedPoints verifies buffered points reach the server
// on Close and carry the device udn tag.
func TestClose_FlushesTaggedPoints(t *testing.T) {
	srv := newFakeInfluxServer(t)
	cfg := testConfig()
	cfg.URL = srv.URL
	cfg.FlushInterval = 3600 // only Close may send

	client, err := influxdb.Connect(cfg, testUDN)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.WriteCatalogChange(7, 2)
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.written() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	got := srv.written()
	if !strings.Contains(got, "catalog_change") {
		t.Fatalf("written = %q, want a catalog_change point", got)
	}
	if !strings.Contains(got, "udn="+testUDN) {
		t.Errorf("written = %q, want udn tag %s", got, testUDN)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999" // Non-existent port

	_, err := influxdb.Connect(cfg, testUDN)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	skipIfNoInfluxDB(t)
	cfg := testConfig()
	cfg.BatchSize = 0
	cfg.FlushInterval = -1

	client, err := influxdb.Connect(cfg, testUDN)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect() with default batch settings")
	}
}

func TestHealthCheck(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(testConfig(), testUDN)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if err := client.HealthCheck(cancelled); err == nil {
		t.Error("HealthCheck() should fail for a cancelled context")
	}
}

func TestWriteDispatch(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(testConfig(), testUDN)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	var mu sync.Mutex
	var writeErrs []error
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErrs = append(writeErrs, err)
		mu.Unlock()
	})

	client.WriteDispatch(influxdb.DispatchRecord{
		Event:    "action_request",
		Service:  "ContentDirectory",
		Action:   "Browse",
		Duration: 3 * time.Millisecond,
	})
	client.WriteCatalogChange(5, 2)
	client.Flush()

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(writeErrs) > 0 {
		t.Errorf("write errors: %v", writeErrs)
	}
}

func TestClose(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(testConfig(), testUDN)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.WriteCatalogChange(1, 1)
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	// Writes and flushes after close are dropped.
	client.WriteDispatch(influxdb.DispatchRecord{Event: "action_request"})
	client.Flush()
}
