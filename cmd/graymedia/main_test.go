package main

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-media/internal/catalog"
	"github.com/nerrad567/gray-logic-media/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-media/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-media/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-media/internal/server"
	"github.com/nerrad567/gray-logic-media/internal/services"
	"github.com/nerrad567/gray-logic-media/internal/upnp"
)

const testConfigTemplate = `
server:
  udn: "uuid:7d8f0c6e-1b1e-4a59-9a3c-5e1f2c4d6b70"
  friendly_name: "Test Media"
  interface: "%INTERFACE%"
  ip: "%IP%"
  port: 0
  webroot: "%WEBROOT%"
  bookmark_path: "%BOOKMARK%"

database:
  path: "%DATABASE%"
  wal_mode: true
  busy_timeout: 5

cache:
  size: 64

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`

type testPaths struct {
	iface    string
	ip       string
	database string
	webroot  string
	bookmark string
}

// writeTestConfig writes a config file into a temp dir and points
// GRAYMEDIA_CONFIG at it.
func writeTestConfig(t *testing.T, p testPaths) string {
	t.Helper()

	dir := t.TempDir()
	if p.webroot == "" {
		p.webroot = filepath.Join(dir, "web")
		if err := os.MkdirAll(p.webroot, 0o755); err != nil {
			t.Fatalf("creating webroot: %v", err)
		}
	}
	if p.bookmark == "" {
		p.bookmark = filepath.Join(dir, "graymedia.html")
	}

	content := strings.NewReplacer(
		"%INTERFACE%", p.iface,
		"%IP%", p.ip,
		"%WEBROOT%", p.webroot,
		"%BOOKMARK%", p.bookmark,
		"%DATABASE%", p.database,
	).Replace(testConfigTemplate)

	configPath := filepath.Join(dir, "test-config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRAYMEDIA_CONFIG", configPath)
	return dir
}

func loopbackName(t *testing.T) string {
	t.Helper()
	ifaces, err := net.Interfaces()
	if err != nil {
		t.Skipf("listing interfaces: %v", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback == 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return iface.Name
			}
		}
	}
	t.Skip("no IPv4 loopback interface")
	return ""
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYMEDIA_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want a config loading error", err)
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	t.Setenv("GRAYMEDIA_DATABASE_PATH", "")
	writeTestConfig(t, testPaths{database: ""})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with empty database path")
	}
	if !strings.Contains(err.Error(), "database.path") {
		t.Errorf("run() error = %v, want it to name database.path", err)
	}
}

// TestRun_InterfaceAndIPConflict verifies startup stops before binding
// when both the interface and the address are configured.
func TestRun_InterfaceAndIPConflict(t *testing.T) {
	t.Setenv("GRAYMEDIA_DATABASE_PATH", "")
	dir := t.TempDir()
	bookmark := filepath.Join(dir, "bookmark.html")
	writeTestConfig(t, testPaths{
		iface:    "lo",
		ip:       "127.0.0.1",
		database: filepath.Join(dir, "graymedia.db"),
		bookmark: bookmark,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if !errors.Is(err, server.ErrInvalidConfig) {
		t.Fatalf("run() error = %v, want ErrInvalidConfig", err)
	}
	if _, statErr := os.Stat(bookmark); !os.IsNotExist(statErr) {
		t.Errorf("bookmark written although startup failed: %v", statErr)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("GRAYMEDIA_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	customPath := "/custom/path/config.yaml"
	t.Setenv("GRAYMEDIA_CONFIG", customPath)

	if path := getConfigPath(); path != customPath {
		t.Errorf("getConfigPath() = %q, want %q", path, customPath)
	}
}

func TestServerName(t *testing.T) {
	name := serverName()
	if !strings.Contains(name, "UPnP/1.0") {
		t.Errorf("serverName() = %q, want a UPnP/1.0 token", name)
	}
	if !strings.HasSuffix(name, "GrayMedia/"+version) {
		t.Errorf("serverName() = %q, want GrayMedia/%s product token", name, version)
	}
}

func TestHealthCheck_SkipsDisabledClients(t *testing.T) {
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "health.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := healthCheck(context.Background(), db, nil, nil); err != nil {
		t.Errorf("healthCheck() error = %v", err)
	}
}

// TestCatalogChanged_BeforeStart verifies a change committed before the
// device is active is dropped quietly when no bus or telemetry is wired.
func TestCatalogChanged_BeforeStart(t *testing.T) {
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "catalog.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	cache, err := catalog.NewCache(16)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	store := catalog.NewStore(catalog.NewSQLiteRepository(db.DB), cache)
	cd := services.NewContentDirectory(store)

	ctrl, err := server.New(server.Deps{
		Config: config.ServerConfig{
			UDN:          "uuid:7d8f0c6e-1b1e-4a59-9a3c-5e1f2c4d6b70",
			FriendlyName: "Test Media",
			VirtualDir:   "content",
		},
		Stack: upnp.NewHTTPStack(upnp.Options{ServerName: serverName()}),
		Services: server.Services{
			ContentDirectory:       cd,
			ConnectionManager:      services.NewConnectionManager(nil),
			MediaReceiverRegistrar: services.NewMediaReceiverRegistrar(),
		},
	})
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}

	ctx := context.Background()
	store.OnChange(catalogChanged(ctx, logging.Default(), ctrl, cd, nil, nil))

	if _, err := store.Add(ctx, &catalog.Container{Base: catalog.Base{
		ID:        catalog.InvalidID,
		ParentID:  catalog.RootID,
		RefID:     catalog.InvalidID,
		Title:     "Music",
		UpnpClass: "object.container.storageFolder",
	}}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
}

// TestRun_SuccessfulStartupAndShutdown runs the full startup on the
// loopback interface. SSDP needs multicast, which some sandboxes lack, so
// a startup error is logged rather than failed.
func TestRun_SuccessfulStartupAndShutdown(t *testing.T) {
	t.Setenv("GRAYMEDIA_DATABASE_PATH", "")
	dir := t.TempDir()
	bookmark := filepath.Join(dir, "bookmark.html")
	writeTestConfig(t, testPaths{
		iface:    loopbackName(t),
		database: filepath.Join(dir, "graymedia.db"),
		bookmark: bookmark,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Logf("run() returned error (may be expected without multicast): %v", err)
		return
	}

	data, err := os.ReadFile(bookmark)
	if err != nil {
		t.Fatalf("reading bookmark: %v", err)
	}
	if !strings.Contains(string(data), "http://") {
		t.Errorf("bookmark does not redirect to the presentation URL:\n%s", data)
	}
}

// TestRun_ContextCancelledDuringStartup verifies run exits cleanly when
// the context is already cancelled.
func TestRun_ContextCancelledDuringStartup(t *testing.T) {
	t.Setenv("GRAYMEDIA_DATABASE_PATH", "")
	dir := t.TempDir()
	writeTestConfig(t, testPaths{
		iface:    loopbackName(t),
		database: filepath.Join(dir, "graymedia.db"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	select {
	case err := <-done:
		t.Logf("run() with cancelled context returned: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}
}
