// Package config loads and validates hostenum configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/hostenum/internal/logging"
	"github.com/anstrom/hostenum/internal/profiles"
)

const (
	configDirPerm  = 0750
	configFilePerm = 0600
)

// Config represents the complete hostenum configuration
type Config struct {
	// Enumeration behaviour
	Enumeration EnumerationConfig `yaml:"enumeration" json:"enumeration"`

	// Paths of external tools
	Tools ToolsConfig `yaml:"tools" json:"tools"`

	// Per-tool time budgets
	Timeouts TimeoutsConfig `yaml:"timeouts" json:"timeouts"`

	// Retry configuration for failed tool runs
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// DNS resolution of target names
	DNS DNSConfig `yaml:"dns" json:"dns"`

	// Report output
	Report ReportConfig `yaml:"report" json:"report"`

	// Logging configuration
	Logging logging.Config `yaml:"logging" json:"logging"`

	// Prometheus metrics
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// EnumerationConfig holds enumeration-related settings
type EnumerationConfig struct {
	// Scan profile name (quick, full, thorough)
	Profile string `yaml:"profile" json:"profile" validate:"required,oneof=quick full thorough"`

	// Number of hosts enumerated concurrently
	Concurrency int `yaml:"concurrency" json:"concurrency" validate:"min=1,max=256"`

	// Custom TCP port list; overrides the profile's port selection
	Ports string `yaml:"ports" json:"ports"`

	// Windows enumeration stages
	Windows WindowsConfig `yaml:"windows" json:"windows"`

	// SNMP probe
	SNMP SNMPConfig `yaml:"snmp" json:"snmp"`
}

// WindowsConfig controls the conditional Windows stages
type WindowsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// LDAP is queried only when one of these ports is open
	LDAPPorts []int `yaml:"ldap_ports" json:"ldap_ports" validate:"dive,min=1,max=65535"`
}

// SNMPConfig controls the SNMP system-group probe
type SNMPConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	Community string        `yaml:"community" json:"community" validate:"required_if=Enabled true"`
	Port      int           `yaml:"port" json:"port" validate:"min=1,max=65535"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	Retries   int           `yaml:"retries" json:"retries" validate:"min=0,max=10"`
}

// ToolsConfig holds binary names or paths of external tools
type ToolsConfig struct {
	Nmap       string `yaml:"nmap" json:"nmap" validate:"required"`
	Enum4linux string `yaml:"enum4linux" json:"enum4linux" validate:"required"`
	Smbclient  string `yaml:"smbclient" json:"smbclient" validate:"required"`
	Nmblookup  string `yaml:"nmblookup" json:"nmblookup" validate:"required"`
	Nbtscan    string `yaml:"nbtscan" json:"nbtscan" validate:"required"`
	Ldapsearch string `yaml:"ldapsearch" json:"ldapsearch" validate:"required"`
}

// Binaries returns the configured tools keyed by tool name.
func (t ToolsConfig) Binaries() map[string]string {
	return map[string]string{
		"nmap":       t.Nmap,
		"enum4linux": t.Enum4linux,
		"smbclient":  t.Smbclient,
		"nmblookup":  t.Nmblookup,
		"nbtscan":    t.Nbtscan,
		"ldapsearch": t.Ldapsearch,
	}
}

// TimeoutsConfig holds per-stage time budgets
type TimeoutsConfig struct {
	TCPQuick    time.Duration `yaml:"tcp_quick" json:"tcp_quick" validate:"gt=0"`
	TCPFull     time.Duration `yaml:"tcp_full" json:"tcp_full" validate:"gt=0"`
	OSDetection time.Duration `yaml:"os_detection" json:"os_detection" validate:"gt=0"`
	UDP         time.Duration `yaml:"udp" json:"udp" validate:"gt=0"`
	SMB         time.Duration `yaml:"smb" json:"smb" validate:"gt=0"`
	NetBIOS     time.Duration `yaml:"netbios" json:"netbios" validate:"gt=0"`
	LDAP        time.Duration `yaml:"ldap" json:"ldap" validate:"gt=0"`
}

// RetryConfig holds retry settings for failed tool runs
type RetryConfig struct {
	// Maximum number of retries
	MaxRetries int `yaml:"max_retries" json:"max_retries" validate:"min=0,max=10"`

	// Delay between retries
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay" validate:"gte=0"`

	// Exponential backoff multiplier
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" validate:"gte=1"`
}

// DNSConfig controls resolution of DNS target names
type DNSConfig struct {
	// Explicit server (host:port); empty means the first resolv.conf nameserver
	Server     string        `yaml:"server" json:"server"`
	ResolvConf string        `yaml:"resolv_conf" json:"resolv_conf"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
}

// ReportConfig controls report output
type ReportConfig struct {
	Format    string `yaml:"format" json:"format" validate:"oneof=markdown json yaml"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// Explicit file name; empty means the timestamped default
	Filename string `yaml:"filename" json:"filename"`
}

// MetricsConfig controls Prometheus exposition
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr" json:"listen_addr" validate:"omitempty,hostname_port"`
	Path       string `yaml:"path" json:"path" validate:"omitempty,startswith=/"`

	// node_exporter textfile written at the end of a run
	Textfile string `yaml:"textfile" json:"textfile"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Enumeration: EnumerationConfig{
			Profile:     "quick",
			Concurrency: 1,
			Windows: WindowsConfig{
				Enabled:   true,
				LDAPPorts: []int{389, 636},
			},
			SNMP: SNMPConfig{
				Enabled:   true,
				Community: "public",
				Port:      161,
				Timeout:   5 * time.Second,
				Retries:   1,
			},
		},
		Tools: ToolsConfig{
			Nmap:       "nmap",
			Enum4linux: "enum4linux",
			Smbclient:  "smbclient",
			Nmblookup:  "nmblookup",
			Nbtscan:    "nbtscan",
			Ldapsearch: "ldapsearch",
		},
		Timeouts: TimeoutsConfig{
			TCPQuick:    10 * time.Minute,
			TCPFull:     30 * time.Minute,
			OSDetection: 5 * time.Minute,
			UDP:         10 * time.Minute,
			SMB:         5 * time.Minute,
			NetBIOS:     30 * time.Second,
			LDAP:        time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries:        0,
			RetryDelay:        5 * time.Second,
			BackoffMultiplier: 2.0,
		},
		DNS: DNSConfig{
			ResolvConf: "/etc/resolv.conf",
			Timeout:    5 * time.Second,
		},
		Report: ReportConfig{
			Format:    "markdown",
			OutputDir: ".",
		},
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9108",
			Path:       "/metrics",
		},
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Start with defaults
	config := Default()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		config.applyEnv(newEnv())
		return config, nil // Return defaults if no config file
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// JSON is a subset of YAML, so one decoder serves both extensions.
	switch filepath.Ext(path) {
	case ".json":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	config.applyEnv(newEnv())

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HOSTENUM"

// envKeys maps overridable config keys to their variable name after the prefix.
var envKeys = map[string]string{
	"enumeration.profile":        "PROFILE",
	"enumeration.concurrency":    "CONCURRENCY",
	"enumeration.ports":          "PORTS",
	"enumeration.snmp.community": "SNMP_COMMUNITY",
	"dns.server":                 "DNS_SERVER",
	"logging.level":              "LOG_LEVEL",
	"report.output_dir":          "REPORT_DIR",
}

// newEnv returns a viper instance bound to the HOSTENUM_* variables.
func newEnv() *viper.Viper {
	v := viper.New()
	for key, name := range envKeys {
		_ = v.BindEnv(key, EnvPrefix+"_"+name)
	}
	return v
}

// applyEnv overrides selected settings from the bound environment.
// Malformed numeric values are ignored.
func (c *Config) applyEnv(v *viper.Viper) {
	if v.IsSet("enumeration.profile") {
		c.Enumeration.Profile = v.GetString("enumeration.profile")
	}
	if v.IsSet("enumeration.concurrency") {
		if n, err := cast.ToIntE(v.Get("enumeration.concurrency")); err == nil {
			c.Enumeration.Concurrency = n
		}
	}
	if v.IsSet("enumeration.ports") {
		c.Enumeration.Ports = v.GetString("enumeration.ports")
	}
	if v.IsSet("enumeration.snmp.community") {
		c.Enumeration.SNMP.Community = v.GetString("enumeration.snmp.community")
	}
	if v.IsSet("dns.server") {
		c.DNS.Server = v.GetString("dns.server")
	}
	if v.IsSet("logging.level") {
		c.Logging.Level = logging.LogLevel(v.GetString("logging.level"))
	}
	if v.IsSet("report.output_dir") {
		c.Report.OutputDir = v.GetString("report.output_dir")
	}
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, configFilePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validate = validator.New()

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if c.Enumeration.Ports != "" && len(c.Enumeration.Ports) > maxPortSpecLength {
		return fmt.Errorf("port list too long: %d characters", len(c.Enumeration.Ports))
	}

	if c.Metrics.Enabled {
		if c.Metrics.ListenAddr == "" {
			return fmt.Errorf("metrics listen address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return fmt.Errorf("metrics path is required when metrics are enabled")
		}
	}

	return nil
}

const maxPortSpecLength = 1024

// TimeoutForProfile returns the general scan budget for profile. Only the
// fast port scope without a custom port list gets the quick budget.
func (c *Config) TimeoutForProfile(profile profiles.Profile) time.Duration {
	if profile.PortScope == profiles.PortsFast && c.Enumeration.Ports == "" {
		return c.Timeouts.TCPQuick
	}
	return c.Timeouts.TCPFull
}
