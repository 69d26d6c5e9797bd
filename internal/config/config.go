// Package config loads casefile settings from a YAML (or JSON) file, expands
// ${VAR} references, applies environment overrides for secrets and fills
// defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/casefile/pkg/gateway"
	"github.com/aretw0/casefile/pkg/smswait"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. A missing default file
// is not an error.
const DefaultPath = "casefile.yaml"

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverFile   = "file"
)

// Config is the full casefile configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Cache   CacheConfig   `yaml:"cache" json:"cache"`
	Engine  EngineConfig  `yaml:"engine" json:"engine"`
	Vendors VendorConfig  `yaml:"vendors" json:"vendors"`
	Log     LogConfig     `yaml:"log" json:"log"`
}

// ServerConfig covers the HTTP listener and the SMS form link.
type ServerConfig struct {
	Port    int    `yaml:"port" json:"port"`
	MCPPort int    `yaml:"mcp_port" json:"mcp_port"`
	FormURL string `yaml:"form_url" json:"form_url"`
}

// StorageConfig selects where callers, consent and call state live.
// Consent always uses SQLite unless Driver is memory. The redis driver keeps
// callers, call state and locks in Redis; the file driver keeps call state as
// JSON files under StateDir.
type StorageConfig struct {
	Driver        string        `yaml:"driver" json:"driver"`
	SQLitePath    string        `yaml:"sqlite_path" json:"sqlite_path"`
	RedisAddr     string        `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" json:"redis_password"`
	RedisDB       int           `yaml:"redis_db" json:"redis_db"`
	StateDir      string        `yaml:"state_dir" json:"state_dir"`
	SinkDir       string        `yaml:"sink_dir" json:"sink_dir"`
	Retention     time.Duration `yaml:"retention" json:"retention"`
	PruneEvery    time.Duration `yaml:"prune_every" json:"prune_every"`

	// EncryptionKey (base64, 32 bytes) seals call state at rest.
	// FallbackKeys are still accepted for reads during a rotation.
	EncryptionKey string   `yaml:"encryption_key" json:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys" json:"fallback_keys"`

	// RedactFields are key patterns masked in post-call payloads before
	// they are logged or written.
	RedactFields []string `yaml:"redact_fields" json:"redact_fields"`
}

// CacheConfig holds the enrichment TTLs in days.
type CacheConfig struct {
	TTLAddressDays  int `yaml:"ttl_address_days" json:"ttl_address_days"`
	TTLEmailDays    int `yaml:"ttl_email_days" json:"ttl_email_days"`
	TTLLineTypeDays int `yaml:"ttl_line_type_days" json:"ttl_line_type_days"`
}

// EngineConfig holds the call-flow limits.
type EngineConfig struct {
	GatewayTimeout   time.Duration `yaml:"gateway_timeout" json:"gateway_timeout"`
	SMSWait          time.Duration `yaml:"sms_wait" json:"sms_wait"`
	SpellingFailures int           `yaml:"spelling_failures" json:"spelling_failures"`
	EmailInvalid     int           `yaml:"email_invalid" json:"email_invalid"`
	AddressInvalid   int           `yaml:"address_invalid" json:"address_invalid"`
	DisableSMS       bool          `yaml:"disable_sms" json:"disable_sms"`
	DisableAddress   bool          `yaml:"disable_address" json:"disable_address"`
}

// VendorConfig holds the credentials of every validator.
type VendorConfig struct {
	TrestleAPIKey       string `yaml:"trestle_api_key" json:"trestle_api_key"`
	TrestleBaseURL      string `yaml:"trestle_base_url" json:"trestle_base_url"`
	ZeroBounceAPIKey    string `yaml:"zerobounce_api_key" json:"zerobounce_api_key"`
	ZeroBounceBaseURL   string `yaml:"zerobounce_base_url" json:"zerobounce_base_url"`
	GoogleMapsAPIKey    string `yaml:"google_maps_api_key" json:"google_maps_api_key"`
	SmartyAuthID        string `yaml:"smarty_auth_id" json:"smarty_auth_id"`
	SmartyAuthToken     string `yaml:"smarty_auth_token" json:"smarty_auth_token"`
	PostmarkServerToken string `yaml:"postmark_server_token" json:"postmark_server_token"`
	PostmarkFromEmail   string `yaml:"postmark_from_email" json:"postmark_from_email"`
	SignalWireProjectID string `yaml:"signalwire_project_id" json:"signalwire_project_id"`
	SignalWireToken     string `yaml:"signalwire_token" json:"signalwire_token"`
	SignalWireSpace     string `yaml:"signalwire_space" json:"signalwire_space"`
	SignalWirePhone     string `yaml:"signalwire_phone_number" json:"signalwire_phone_number"`
}

// LogConfig selects level and format (text or json).
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:    8080,
			MCPPort: 8081,
			FormURL: "https://forms.casefile.local/email",
		},
		Storage: StorageConfig{
			Driver:     DriverSQLite,
			SQLitePath: "casefile.db",
			StateDir:   ".casefile/state",
			SinkDir:    "calls",
			Retention:  24 * time.Hour,
			PruneEvery: time.Hour,
		},
		Cache: CacheConfig{
			TTLAddressDays:  90,
			TTLEmailDays:    180,
			TTLLineTypeDays: 180,
		},
		Engine: EngineConfig{
			GatewayTimeout:   gateway.DefaultTimeout,
			SMSWait:          smswait.DefaultTimeout,
			SpellingFailures: 3,
			EmailInvalid:     2,
			AddressInvalid:   2,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path means DefaultPath, which may be absent.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, []byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return Config{}, err
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides secrets and TTLs from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"TRESTLE_API_KEY":         &c.Vendors.TrestleAPIKey,
		"TRESTLE_BASE_URL":        &c.Vendors.TrestleBaseURL,
		"ZEROBOUNCE_API_KEY":      &c.Vendors.ZeroBounceAPIKey,
		"ZEROBOUNCE_BASE_URL":     &c.Vendors.ZeroBounceBaseURL,
		"GOOGLE_MAPS_API_KEY":     &c.Vendors.GoogleMapsAPIKey,
		"SMARTY_AUTH_ID":          &c.Vendors.SmartyAuthID,
		"SMARTY_AUTH_TOKEN":       &c.Vendors.SmartyAuthToken,
		"POSTMARK_SERVER_TOKEN":   &c.Vendors.PostmarkServerToken,
		"POSTMARK_FROM_EMAIL":     &c.Vendors.PostmarkFromEmail,
		"SIGNALWIRE_PROJECT_ID":   &c.Vendors.SignalWireProjectID,
		"SIGNALWIRE_TOKEN":        &c.Vendors.SignalWireToken,
		"SIGNALWIRE_SPACE":        &c.Vendors.SignalWireSpace,
		"SIGNALWIRE_PHONE_NUMBER": &c.Vendors.SignalWirePhone,
		"CASEFILE_REDIS_ADDR":     &c.Storage.RedisAddr,
		"CASEFILE_ENCRYPTION_KEY": &c.Storage.EncryptionKey,
		"CASEFILE_LOG_LEVEL":      &c.Log.Level,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"TTL_ADDRESS_DAYS":   &c.Cache.TTLAddressDays,
		"TTL_EMAIL_DAYS":     &c.Cache.TTLEmailDays,
		"TTL_LINE_TYPE_DAYS": &c.Cache.TTLLineTypeDays,
		"PORT":               &c.Server.Port,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
	}
	return nil
}

// fillDefaults restores defaults for zero values a file may have blanked.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.FormURL == "" {
		c.Server.FormURL = d.Server.FormURL
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = d.Storage.Driver
	}
	if c.Storage.SinkDir == "" {
		c.Storage.SinkDir = d.Storage.SinkDir
	}
	if c.Storage.Retention <= 0 {
		c.Storage.Retention = d.Storage.Retention
	}
	if c.Storage.PruneEvery <= 0 {
		c.Storage.PruneEvery = d.Storage.PruneEvery
	}
	if c.Engine.GatewayTimeout <= 0 {
		c.Engine.GatewayTimeout = d.Engine.GatewayTimeout
	}
	if c.Engine.SMSWait <= 0 {
		c.Engine.SMSWait = d.Engine.SMSWait
	}
	if c.Cache.TTLAddressDays <= 0 {
		c.Cache.TTLAddressDays = d.Cache.TTLAddressDays
	}
	if c.Cache.TTLEmailDays <= 0 {
		c.Cache.TTLEmailDays = d.Cache.TTLEmailDays
	}
	if c.Cache.TTLLineTypeDays <= 0 {
		c.Cache.TTLLineTypeDays = d.Cache.TTLLineTypeDays
	}
}

// Days converts a day count to a duration.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// Validate returns an error for settings the server cannot run with, and
// warnings for missing vendor credentials. A capability without credentials
// degrades to unknown at runtime.
func (c Config) Validate() (warnings []string, err error) {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverFile:
		if c.Storage.SQLitePath == "" {
			return nil, fmt.Errorf("storage.sqlite_path is required for the %s driver", c.Storage.Driver)
		}
	case DriverRedis:
		if c.Storage.RedisAddr == "" {
			return nil, fmt.Errorf("storage.redis_addr is required for the redis driver")
		}
		if c.Storage.SQLitePath == "" {
			return nil, fmt.Errorf("storage.sqlite_path is required for callers and consent")
		}
	default:
		return nil, fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	v := c.Vendors
	missing := func(name string, values ...string) {
		for _, s := range values {
			if s == "" {
				warnings = append(warnings, fmt.Sprintf("%s not configured", name))
				return
			}
		}
	}
	missing("TRESTLE_API_KEY", v.TrestleAPIKey)
	missing("ZEROBOUNCE_API_KEY", v.ZeroBounceAPIKey)
	missing("GOOGLE_MAPS_API_KEY", v.GoogleMapsAPIKey)
	missing("SMARTY_AUTH_ID/SMARTY_AUTH_TOKEN", v.SmartyAuthID, v.SmartyAuthToken)
	missing("POSTMARK_SERVER_TOKEN/POSTMARK_FROM_EMAIL", v.PostmarkServerToken, v.PostmarkFromEmail)
	missing("SIGNALWIRE_PHONE_NUMBER", v.SignalWireProjectID, v.SignalWireToken, v.SignalWireSpace, v.SignalWirePhone)
	return warnings, nil
}
