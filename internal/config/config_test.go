package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, 90, cfg.Cache.TTLAddressDays)
	assert.Equal(t, 180, cfg.Cache.TTLEmailDays)
	assert.Equal(t, 180, cfg.Cache.TTLLineTypeDays)
	assert.Equal(t, 10*time.Second, cfg.Engine.GatewayTimeout)
	assert.Equal(t, 120*time.Second, cfg.Engine.SMSWait)
	assert.Equal(t, 3, cfg.Engine.SpellingFailures)
	assert.Equal(t, 2, cfg.Engine.EmailInvalid)
	assert.Equal(t, 2, cfg.Engine.AddressInvalid)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_YAMLWithEnvExpansion(t *testing.T) {
	t.Setenv("MY_ZB_KEY", "zb-from-env")
	path := writeFile(t, "casefile.yaml", `
server:
  port: 9090
storage:
  driver: redis
  redis_addr: localhost:6379
  sqlite_path: /tmp/casefile.db
engine:
  sms_wait: 30s
  spelling_failures: 4
vendors:
  zerobounce_api_key: ${MY_ZB_KEY}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, DriverRedis, cfg.Storage.Driver)
	assert.Equal(t, 30*time.Second, cfg.Engine.SMSWait)
	assert.Equal(t, 4, cfg.Engine.SpellingFailures)
	assert.Equal(t, "zb-from-env", cfg.Vendors.ZeroBounceAPIKey)
	assert.Equal(t, 10*time.Second, cfg.Engine.GatewayTimeout, "untouched values keep defaults")
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "casefile.json", `{"server":{"port":7070},"log":{"level":"debug"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TRESTLE_API_KEY", "trestle-secret")
	t.Setenv("TTL_ADDRESS_DAYS", "30")
	path := writeFile(t, "casefile.yaml", "vendors:\n  trestle_api_key: from-file\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "trestle-secret", cfg.Vendors.TrestleAPIKey)
	assert.Equal(t, 30, cfg.Cache.TTLAddressDays)
	assert.Equal(t, 30*24*time.Hour, Days(cfg.Cache.TTLAddressDays))
}

func TestLoad_BadEnvInt(t *testing.T) {
	t.Setenv("TTL_EMAIL_DAYS", "soon")
	t.Chdir(t.TempDir())

	_, err := Load("")
	assert.ErrorContains(t, err, "TTL_EMAIL_DAYS")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Contains(t, warnings, "TRESTLE_API_KEY not configured")
	assert.Contains(t, warnings, "SIGNALWIRE_PHONE_NUMBER not configured")

	cfg.Vendors = VendorConfig{
		TrestleAPIKey: "a", ZeroBounceAPIKey: "b", GoogleMapsAPIKey: "c",
		SmartyAuthID: "d", SmartyAuthToken: "e",
		PostmarkServerToken: "f", PostmarkFromEmail: "g",
		SignalWireProjectID: "h", SignalWireToken: "i", SignalWireSpace: "j", SignalWirePhone: "k",
	}
	warnings, err = cfg.Validate()
	require.NoError(t, err)
	assert.Empty(t, warnings)

	cfg.Storage.Driver = "postgres"
	_, err = cfg.Validate()
	assert.Error(t, err)

	cfg.Storage.Driver = DriverRedis
	cfg.Storage.RedisAddr = ""
	_, err = cfg.Validate()
	assert.Error(t, err)
}
