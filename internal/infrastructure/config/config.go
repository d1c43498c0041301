package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Presentation URL append policies.
const (
	AppendToNone = "none"
	AppendToIP   = "ip"
	AppendToPort = "port"
)

// Config is the root configuration structure for Gray Logic Media.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains the UPnP media server device settings.
type ServerConfig struct {
	// UDN is the unique device name ("uuid:..."). Derived from the
	// hostname and friendly name when empty.
	UDN string `yaml:"udn"`

	FriendlyName string `yaml:"friendly_name"`
	Manufacturer string `yaml:"manufacturer"`
	ModelName    string `yaml:"model_name"`
	ModelNumber  string `yaml:"model_number"`
	SerialNumber string `yaml:"serial_number"`

	// Interface and IP select the bind address. Setting both is an error
	// reported at startup.
	Interface string `yaml:"interface"`
	IP        string `yaml:"ip"`
	Port      int    `yaml:"port"`

	// WebRoot is the directory served at the HTTP root.
	WebRoot string `yaml:"webroot"`

	// VirtualDir is the path segment under which catalog content is served.
	VirtualDir string `yaml:"virtual_dir"`

	// CustomHTTPHeaders are "Name: value" lines added to every HTTP response.
	CustomHTTPHeaders []string `yaml:"custom_http_headers"`

	PresentationURL string `yaml:"presentation_url"`
	// AppendPresentationURLTo is one of "none", "ip" or "port".
	AppendPresentationURLTo string `yaml:"append_presentation_url_to"`

	// AliveInterval is the SSDP advertisement max-age in seconds.
	AliveInterval int `yaml:"alive_interval"`

	// BookmarkPath is where the reachable address is written after startup.
	BookmarkPath string `yaml:"bookmark_path"`

	// ProtocolInfo lists the source protocols reported by the connection manager.
	ProtocolInfo []string `yaml:"protocol_info"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// CacheConfig contains catalog cache settings.
type CacheConfig struct {
	// Size is the maximum number of catalog entries held in memory.
	Size int `yaml:"size"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//  4. Derived values (UDN when not configured)
//
// Environment variables follow the pattern: GRAYMEDIA_SECTION_KEY
// For example: GRAYMEDIA_DATABASE_PATH, GRAYMEDIA_SERVER_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Server.UDN == "" {
		cfg.Server.UDN = DeriveUDN(hostname(), cfg.Server.FriendlyName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			FriendlyName:            "Gray Logic Media",
			Manufacturer:            "Gray Logic",
			ModelName:               "Gray Logic Media Server",
			ModelNumber:             "1",
			Port:                    49152,
			WebRoot:                 "./web",
			VirtualDir:              "content",
			AppendPresentationURLTo: AppendToNone,
			AliveInterval:           180,
			BookmarkPath:            "./data/graymedia.html",
			ProtocolInfo: []string{
				"http-get:*:audio/mpeg:*",
				"http-get:*:audio/flac:*",
				"http-get:*:video/mp4:*",
				"http-get:*:video/x-matroska:*",
				"http-get:*:image/jpeg:*",
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/graymedia.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Cache: CacheConfig{
			Size: 4096,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graymedia",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYMEDIA_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("GRAYMEDIA_SERVER_UDN"); v != "" {
		cfg.Server.UDN = v
	}
	if v := os.Getenv("GRAYMEDIA_SERVER_INTERFACE"); v != "" {
		cfg.Server.Interface = v
	}
	if v := os.Getenv("GRAYMEDIA_SERVER_IP"); v != "" {
		cfg.Server.IP = v
	}
	if v := os.Getenv("GRAYMEDIA_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Database
	if v := os.Getenv("GRAYMEDIA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYMEDIA_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYMEDIA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYMEDIA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYMEDIA_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Mutually exclusive network options (interface and IP) are not checked
// here; the device controller reports them when it binds.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Server.UDN == "" {
		errs = append(errs, "server.udn is required")
	} else if !strings.HasPrefix(c.Server.UDN, "uuid:") {
		errs = append(errs, "server.udn must start with \"uuid:\"")
	}

	if c.Server.FriendlyName == "" {
		errs = append(errs, "server.friendly_name is required")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}

	if c.Server.VirtualDir == "" || strings.Contains(c.Server.VirtualDir, "/") {
		errs = append(errs, "server.virtual_dir must be a single non-empty path segment")
	}

	switch c.Server.AppendPresentationURLTo {
	case "", AppendToNone, AppendToIP, AppendToPort:
	default:
		errs = append(errs, "server.append_presentation_url_to must be none, ip or port")
	}

	if c.Server.AliveInterval <= 0 {
		errs = append(errs, "server.alive_interval must be positive")
	}

	for _, h := range c.Server.CustomHTTPHeaders {
		if _, _, err := ParseHeader(h); err != nil {
			errs = append(errs, fmt.Sprintf("server.custom_http_headers: %v", err))
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Cache.Size <= 0 {
		errs = append(errs, "cache.size must be positive")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// AliveIntervalDuration returns the advertisement interval as a Duration.
func (s ServerConfig) AliveIntervalDuration() time.Duration {
	return time.Duration(s.AliveInterval) * time.Second
}

// ParseHeader splits a "Name: value" header line.
func ParseHeader(line string) (name, value string, err error) {
	name, value, ok := strings.Cut(line, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.ContainsAny(name, " \t\r\n") {
		return "", "", fmt.Errorf("invalid header %q (want \"Name: value\")", line)
	}
	return name, strings.TrimSpace(value), nil
}

// DeriveUDN returns a stable name-based UDN for a host and friendly name,
// so control points keep seeing the same device across restarts.
func DeriveUDN(host, friendlyName string) string {
	return "uuid:" + uuid.NewSHA1(uuid.NameSpaceDNS, []byte(host+"/"+friendlyName)).String()
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}
