package config

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// Fully-qualified A records kept in sync with the primary IP
	Records []string `yaml:"records"`

	// Reload the records list when the config file changes
	WatchConfig bool `yaml:"watch_config"`

	Server     ServerConfig     `yaml:"server"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Observer   ObserverConfig   `yaml:"observer"`
	Cloudflare CloudflareConfig `yaml:"cloudflare"`
	Notify     NotifyConfig     `yaml:"notify"`
	Storage    StorageConfig    `yaml:"storage"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`

	// VPN reporter client
	Client ClientConfig `yaml:"client"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Telemetry (OTEL)
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddress string        `yaml:"listen_address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

// ScheduleConfig controls the reconciliation and polling cadence
type ScheduleConfig struct {
	ReconcileInterval   time.Duration `yaml:"reconcile_interval"`
	PrimaryPollInterval time.Duration `yaml:"primary_poll_interval"`
	// Upper bound for every outbound call (IP lookup, provider, webhook)
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Observer modes
const (
	ObserverHTTP = "http"
	ObserverDNS  = "dns"
)

// ObserverConfig selects how the public IP is discovered
type ObserverConfig struct {
	Mode      string `yaml:"mode"`       // http, dns
	URL       string `yaml:"url"`        // if mode=http, must return {"ip": "..."}
	DNSServer string `yaml:"dns_server"` // if mode=dns
	DNSName   string `yaml:"dns_name"`   // if mode=dns
}

// CloudflareConfig holds DNS provider credentials
type CloudflareConfig struct {
	APIToken string `yaml:"api_token"`
	TTL      int    `yaml:"ttl"` // 1 means automatic
	BaseURL  string `yaml:"base_url"`
}

// NotifyConfig holds notification sink settings
type NotifyConfig struct {
	DiscordWebhookURL string `yaml:"discord_webhook_url"`
}

// Storage backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// StorageConfig holds persistence settings for last-known IPs
type StorageConfig struct {
	Backend     string `yaml:"backend"` // file, sqlite
	PrimaryFile string `yaml:"primary_file"`
	VPNFile     string `yaml:"vpn_file"`
	SQLitePath  string `yaml:"sqlite_path"`
}

// RateLimitConfig limits how often a client may hit the report endpoint
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	LogViolations     bool          `yaml:"log_violations"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	MaxTrackedClients int           `yaml:"max_tracked_clients"`
	// Only requests from these CIDRs may set X-Forwarded-For / X-Real-IP
	TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
}

// ClientConfig configures the VPN reporter
type ClientConfig struct {
	ServerURL       string        `yaml:"server_url"`
	CheckInterval   time.Duration `yaml:"check_interval"`
	RunContinuously bool          `yaml:"run_continuously"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level     string `yaml:"level"`      // debug, info, warn, error
	Format    string `yaml:"format"`     // json, text
	Output    string `yaml:"output"`     // stdout, stderr, file
	FilePath  string `yaml:"file_path"`  // if output=file
	AddSource bool   `yaml:"add_source"` // include source file/line
}

// TelemetryConfig holds OpenTelemetry settings
type TelemetryConfig struct {
	Enabled           bool   `yaml:"enabled"`
	ServiceName       string `yaml:"service_name"`
	ServiceVersion    string `yaml:"service_version"`
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusPort    int    `yaml:"prometheus_port"`
	TracingEnabled    bool   `yaml:"tracing_enabled"`
}

// Load loads the configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults creates a configuration with sensible defaults
func LoadWithDefaults() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadWithEnv builds a configuration from defaults and environment
// overrides only, for running without a config file
func LoadWithEnv() (*Config, error) {
	cfg := LoadWithDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// applyDefaults sets default values for unset configuration fields
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":3000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}

	// Schedule defaults
	if c.Schedule.ReconcileInterval == 0 {
		c.Schedule.ReconcileInterval = 15 * time.Minute
	}
	if c.Schedule.PrimaryPollInterval == 0 {
		c.Schedule.PrimaryPollInterval = 5 * time.Minute
	}
	if c.Schedule.RequestTimeout == 0 {
		c.Schedule.RequestTimeout = 5 * time.Second
	}

	// Observer defaults
	if c.Observer.Mode == "" {
		c.Observer.Mode = ObserverHTTP
	}
	if c.Observer.URL == "" {
		c.Observer.URL = "https://api.ipify.org?format=json"
	}
	if c.Observer.DNSServer == "" {
		c.Observer.DNSServer = "resolver1.opendns.com:53"
	}
	if c.Observer.DNSName == "" {
		c.Observer.DNSName = "myip.opendns.com"
	}

	if c.Cloudflare.TTL == 0 {
		c.Cloudflare.TTL = 1
	}

	// Storage defaults mirror the file names older deployments already have on disk
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendFile
	}
	if c.Storage.PrimaryFile == "" {
		c.Storage.PrimaryFile = "./last-ip.txt"
	}
	if c.Storage.VPNFile == "" {
		c.Storage.VPNFile = "./vpn-ip.txt"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./bt-dns-manager.db"
	}

	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 1
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 5
	}
	if c.RateLimit.CleanupInterval == 0 {
		c.RateLimit.CleanupInterval = 10 * time.Minute
	}
	if c.RateLimit.MaxTrackedClients == 0 {
		c.RateLimit.MaxTrackedClients = 1024
	}

	// Client defaults
	if c.Client.ServerURL == "" {
		c.Client.ServerURL = "http://localhost:3000"
	}
	if c.Client.CheckInterval == 0 {
		c.Client.CheckInterval = 10 * time.Minute
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	// Telemetry defaults
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "bt-dns-manager"
	}
	if c.Telemetry.ServiceVersion == "" {
		c.Telemetry.ServiceVersion = "dev"
	}
	if c.Telemetry.PrometheusPort == 0 {
		c.Telemetry.PrometheusPort = 9090
	}
}

// applyEnv lets secrets and the port come from the environment instead of the file
func (c *Config) applyEnv() {
	if token := os.Getenv("CLOUDFLARE_API_TOKEN"); token != "" {
		c.Cloudflare.APIToken = token
	}
	if hook := os.Getenv("DISCORD_WEBHOOK_URL"); hook != "" {
		c.Notify.DiscordWebhookURL = hook
	}
	if port := os.Getenv("PORT"); port != "" {
		host, _, err := net.SplitHostPort(c.Server.ListenAddress)
		if err != nil {
			host = ""
		}
		c.Server.ListenAddress = net.JoinHostPort(host, port)
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address cannot be empty")
	}

	for _, r := range c.Records {
		if !strings.Contains(strings.Trim(r, "."), ".") {
			return fmt.Errorf("invalid record %q: must have at least two labels", r)
		}
	}

	if c.Schedule.ReconcileInterval < 0 || c.Schedule.PrimaryPollInterval < 0 {
		return fmt.Errorf("schedule intervals cannot be negative")
	}
	if c.Schedule.RequestTimeout <= 0 {
		return fmt.Errorf("schedule.request_timeout must be positive")
	}

	switch c.Observer.Mode {
	case ObserverHTTP:
		if c.Observer.URL == "" {
			return fmt.Errorf("observer.url must be set when mode is 'http'")
		}
	case ObserverDNS:
		if c.Observer.DNSServer == "" || c.Observer.DNSName == "" {
			return fmt.Errorf("observer.dns_server and observer.dns_name must be set when mode is 'dns'")
		}
	default:
		return fmt.Errorf("invalid observer mode: %s (must be http or dns)", c.Observer.Mode)
	}

	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.PrimaryFile == "" || c.Storage.VPNFile == "" {
			return fmt.Errorf("storage.primary_file and storage.vpn_file must be set for the file backend")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path must be set for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be file or sqlite)", c.Storage.Backend)
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate_limit.requests_per_second and rate_limit.burst must be positive")
	}
	for _, cidr := range c.RateLimit.TrustedProxyCIDRs {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			return fmt.Errorf("invalid rate_limit.trusted_proxy_cidrs entry %q: %w", cidr, err)
		}
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	// Validate logging format
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid logging format: %s (must be json or text)", c.Logging.Format)
	}

	// Validate logging output
	validOutputs := map[string]bool{
		"stdout": true,
		"stderr": true,
		"file":   true,
	}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid logging output: %s (must be stdout, stderr, or file)", c.Logging.Output)
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging.file_path must be set when output is 'file'")
	}

	return nil
}
