package app

import (
	"github.com/caarlos0/env/v11"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/gacha-arena/arena"
	"github.com/lefinal/gacha-arena/errors"
	"github.com/lefinal/gacha-arena/portal"
	"github.com/lefinal/gacha-arena/webserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func parseTestConfig(t *testing.T, environment map[string]string) (Config, error) {
	t.Helper()
	return parseConfig(env.Options{Prefix: EnvPrefix, Environment: environment})
}

func requiredEnv() map[string]string {
	return map[string]string{
		EnvPrefix + "DB_CONN":   "postgres://arena@localhost/arena",
		EnvPrefix + "MQTT_ADDR": "mqtt://localhost:1883",
	}
}

func TestParseConfigDefaults(t *testing.T) {
	config, err := parseTestConfig(t, requiredEnv())
	require.NoError(t, err, "should not fail")
	assert.Equal(t, "postgres://arena@localhost/arena", config.DBConn, "should set db conn")
	assert.Equal(t, "mqtt://localhost:1883", config.MQTTAddr, "should set mqtt addr")
	assert.EqualValues(t, defaultMaxDBConnections, config.MaxDBConnections, "should use default max db connections")
	assert.Equal(t, portal.DefaultClientID, config.MQTTClientID, "should use default client id")
	assert.Equal(t, webserver.DefaultServeAddr, config.WebServer.ServeAddr, "should use default serve addr")
	assert.Equal(t, zap.InfoLevel, config.Log.StdoutLogLevel, "should use default log level")
	assert.False(t, config.Log.HighPriorityOutput.Valid, "should not set high priority output")
	assert.False(t, config.SystemDebugStatsInterval.Valid, "should not set debug stats interval")
	assert.Equal(t, arena.DefaultConfig(), config.Arena, "should use default arena config")
	assert.NoError(t, ValidateConfig(config), "defaults should be valid")
}

func TestParseConfigOverrides(t *testing.T) {
	environment := requiredEnv()
	environment[EnvPrefix+"LOG_STDOUT_LEVEL"] = "debug"
	environment[EnvPrefix+"LOG_DEBUG_OUTPUT"] = "/var/log/arena/debug.log"
	environment[EnvPrefix+"LOG_SYSTEM_DEBUG_STATS_INTERVAL_MINUTES"] = "5"
	environment[EnvPrefix+"PACING_DELAY"] = "500ms"
	environment[EnvPrefix+"FEAR_DEBUFF"] = "true"
	environment[EnvPrefix+"WIN_DELTA"] = "30"
	environment[EnvPrefix+"SERVE_ADDR"] = ":9090"

	config, err := parseTestConfig(t, environment)
	require.NoError(t, err, "should not fail")
	assert.Equal(t, zap.DebugLevel, config.Log.StdoutLogLevel, "should set log level")
	assert.Equal(t, nulls.NewString("/var/log/arena/debug.log"), config.Log.DebugOutput, "should set debug output")
	assert.Equal(t, nulls.NewInt(5), config.SystemDebugStatsInterval, "should set debug stats interval")
	assert.Equal(t, 500*time.Millisecond, config.Arena.PacingDelay, "should set pacing delay")
	assert.True(t, config.Arena.FearDebuff, "should enable fear")
	assert.Equal(t, 30, config.Arena.WinDelta, "should set win delta")
	assert.Equal(t, ":9090", config.WebServer.ServeAddr, "should set serve addr")
}

func TestParseConfigMissingRequired(t *testing.T) {
	_, err := parseTestConfig(t, map[string]string{})
	require.Error(t, err, "should fail")
	assert.True(t, errors.HasKind(err, errors.KindInvalidConfig), "should fail with invalid config")
}

func TestParseConfigInvalidValue(t *testing.T) {
	environment := requiredEnv()
	environment[EnvPrefix+"PACING_DELAY"] = "meow"
	_, err := parseTestConfig(t, environment)
	assert.Error(t, err, "should fail")
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		EnvPrefix+"DB_CONN=postgres://file@localhost/arena\n"+
			EnvPrefix+"MQTT_ADDR=mqtt://file:1883\n"), 0600))
	t.Setenv(EnvPrefix+"MQTT_ADDR", "mqtt://env:1883")
	// Make sure the variable from the file is unset afterwards.
	t.Setenv(EnvPrefix+"DB_CONN", "")
	require.NoError(t, os.Unsetenv(EnvPrefix+"DB_CONN"))

	config, err := LoadConfig(envFile, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err, "should not fail")
	assert.Equal(t, "postgres://file@localhost/arena", config.DBConn, "should load from file")
	assert.Equal(t, "mqtt://env:1883", config.MQTTAddr, "should not override existing env")
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		config, err := parseTestConfig(t, requiredEnv())
		require.NoError(t, err, "parsing config should not fail")
		return config
	}
	tests := []struct {
		name   string
		modify func(c *Config)
		ok     bool
	}{
		{name: "ok", modify: func(_ *Config) {}, ok: true},
		{name: "missing db conn", modify: func(c *Config) { c.DBConn = "" }},
		{name: "no db connections", modify: func(c *Config) { c.MaxDBConnections = 0 }},
		{name: "missing mqtt addr", modify: func(c *Config) { c.MQTTAddr = "" }},
		{name: "missing serve addr", modify: func(c *Config) { c.WebServer.ServeAddr = "" }},
		{name: "log file without max size", modify: func(c *Config) {
			c.Log.DebugOutput = nulls.NewString("debug.log")
			c.Log.MaxSize = 0
		}},
		{name: "invalid arena", modify: func(c *Config) { c.Arena.MaxLogEntries = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.modify(&config)
			err := ValidateConfig(config)
			if tt.ok {
				assert.NoError(t, err, "should not fail")
				return
			}
			assert.True(t, errors.HasKind(err, errors.KindInvalidConfig), "should fail with invalid config")
		})
	}
}
