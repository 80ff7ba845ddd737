package app

import (
	nativeerrors "errors"
	"github.com/caarlos0/env/v11"
	"github.com/gobuffalo/nulls"
	"github.com/joho/godotenv"
	"github.com/lefinal/gacha-arena/arena"
	"github.com/lefinal/gacha-arena/errors"
	"github.com/lefinal/gacha-arena/logging"
	"github.com/lefinal/gacha-arena/portal"
	"github.com/lefinal/gacha-arena/webserver"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"io/fs"
	"time"
)

// EnvPrefix is the prefix for all environment variables of the Config.
const EnvPrefix = "GACHA_ARENA_"

// Config is the configuration needed in order to boot an App.
type Config struct {
	// DBConn is the connection string for the PostgreSQL database.
	DBConn string
	// MaxDBConnections is the maximum number of pooled database connections.
	MaxDBConnections int32
	// MQTTAddr is the address of the MQTT server.
	MQTTAddr string
	// MQTTClientID is the client id used for connecting to the MQTT server.
	MQTTClientID string
	// WebServer is the config for the spectator feed and API.
	WebServer webserver.Config
	// Log is the config for logging.
	Log logging.Config
	// SystemDebugStatsInterval is the interval for logging system stats. Not set
	// disables logging system stats.
	SystemDebugStatsInterval nulls.Int
	// Arena is the config for matchmaking and battles.
	Arena arena.Config
}

// configEnv holds the raw values parsed from the environment.
type configEnv struct {
	DBConn                   string        `env:"DB_CONN,required"`
	MaxDBConnections         int32         `env:"MAX_DB_CONNECTIONS"`
	MQTTAddr                 string        `env:"MQTT_ADDR,required"`
	MQTTClientID             string        `env:"MQTT_CLIENT_ID"`
	ServeAddr                string        `env:"SERVE_ADDR"`
	WriteTimeout             time.Duration `env:"WRITE_TIMEOUT"`
	ReadTimeout              time.Duration `env:"READ_TIMEOUT"`
	StdoutLogLevel           zapcore.Level `env:"LOG_STDOUT_LEVEL"`
	PublishLogLevel          zapcore.Level `env:"LOG_PUBLISH_LEVEL"`
	HighPriorityOutput       string        `env:"LOG_HIGH_PRIORITY_OUTPUT"`
	DebugOutput              string        `env:"LOG_DEBUG_OUTPUT"`
	LogMaxSize               int           `env:"LOG_MAX_SIZE"`
	LogKeepDays              int           `env:"LOG_KEEP_DAYS"`
	SystemDebugStatsInterval int           `env:"LOG_SYSTEM_DEBUG_STATS_INTERVAL_MINUTES"`
	PacingDelay              time.Duration `env:"PACING_DELAY"`
	MaxLogEntries            int           `env:"MAX_LOG_ENTRIES"`
	PrivilegedTop            int           `env:"PRIVILEGED_TOP"`
	ResweepInterval          time.Duration `env:"RESWEEP_INTERVAL"`
	FearDebuff               bool          `env:"FEAR_DEBUFF"`
	WinDelta                 int           `env:"WIN_DELTA"`
	LossDelta                int           `env:"LOSS_DELTA"`
	RatingFloor              int           `env:"RATING_FLOOR"`
}

// defaultConfigEnv returns a configEnv with all default values. They are kept
// for unset environment variables.
func defaultConfigEnv() configEnv {
	arenaDefaults := arena.DefaultConfig()
	return configEnv{
		MaxDBConnections: defaultMaxDBConnections,
		MQTTClientID:     portal.DefaultClientID,
		ServeAddr:        webserver.DefaultServeAddr,
		WriteTimeout:     webserver.DefaultWriteTimeout,
		ReadTimeout:      webserver.DefaultReadTimeout,
		StdoutLogLevel:   zap.InfoLevel,
		PublishLogLevel:  zap.InfoLevel,
		LogMaxSize:       defaultLogMaxSize,
		LogKeepDays:      defaultLogKeepDays,
		PacingDelay:      arenaDefaults.PacingDelay,
		MaxLogEntries:    arenaDefaults.MaxLogEntries,
		PrivilegedTop:    arenaDefaults.PrivilegedTop,
		ResweepInterval:  arenaDefaults.ResweepInterval,
		FearDebuff:       arenaDefaults.FearDebuff,
		WinDelta:         arenaDefaults.WinDelta,
		LossDelta:        arenaDefaults.LossDelta,
		RatingFloor:      arenaDefaults.RatingFloor,
	}
}

const (
	// defaultLogMaxSize is the default size in megabytes after which log files
	// are rotated.
	defaultLogMaxSize = 64
	// defaultLogKeepDays is the default number of days to keep rotated log files.
	defaultLogKeepDays = 14
)

// LoadConfig loads the given .env files into the environment and parses the
// Config from it. Missing .env files are skipped.
func LoadConfig(envFiles ...string) (Config, error) {
	for _, envFile := range envFiles {
		err := godotenv.Load(envFile)
		if err != nil && !nativeerrors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Error{
				Code:    errors.ErrInternal,
				Kind:    errors.KindInvalidConfig,
				Err:     err,
				Message: "load env file",
				Details: errors.Details{"file": envFile},
			}
		}
	}
	return parseConfig(env.Options{Prefix: EnvPrefix})
}

// parseConfig parses the Config using the given env.Options.
func parseConfig(opts env.Options) (Config, error) {
	raw := defaultConfigEnv()
	err := env.ParseWithOptions(&raw, opts)
	if err != nil {
		return Config{}, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindInvalidConfig,
			Err:     err,
			Message: "parse env",
		}
	}
	config := Config{
		DBConn:           raw.DBConn,
		MaxDBConnections: raw.MaxDBConnections,
		MQTTAddr:         raw.MQTTAddr,
		MQTTClientID:     raw.MQTTClientID,
		WebServer: webserver.Config{
			ServeAddr:    raw.ServeAddr,
			WriteTimeout: raw.WriteTimeout,
			ReadTimeout:  raw.ReadTimeout,
		},
		Log: logging.Config{
			StdoutLogLevel:  raw.StdoutLogLevel,
			MaxSize:         raw.LogMaxSize,
			KeepDays:        raw.LogKeepDays,
			PublishLogLevel: raw.PublishLogLevel,
		},
		Arena: arena.Config{
			PacingDelay:     raw.PacingDelay,
			MaxLogEntries:   raw.MaxLogEntries,
			PrivilegedTop:   raw.PrivilegedTop,
			ResweepInterval: raw.ResweepInterval,
			FearDebuff:      raw.FearDebuff,
			WinDelta:        raw.WinDelta,
			LossDelta:       raw.LossDelta,
			RatingFloor:     raw.RatingFloor,
		},
	}
	if raw.HighPriorityOutput != "" {
		config.Log.HighPriorityOutput = nulls.NewString(raw.HighPriorityOutput)
	}
	if raw.DebugOutput != "" {
		config.Log.DebugOutput = nulls.NewString(raw.DebugOutput)
	}
	if raw.SystemDebugStatsInterval > 0 {
		config.SystemDebugStatsInterval = nulls.NewInt(raw.SystemDebugStatsInterval)
	}
	return config, nil
}

// ValidateConfig assures that the given Config is valid.
func ValidateConfig(config Config) error {
	if config.DBConn == "" {
		return errors.NewBadRequestError(errors.KindInvalidConfig, "missing db connection string", nil)
	}
	if config.MaxDBConnections <= 0 {
		return errors.NewBadRequestError(errors.KindInvalidConfig, "max db connections must be positive",
			errors.Details{"was": config.MaxDBConnections})
	}
	if config.MQTTAddr == "" {
		return errors.NewBadRequestError(errors.KindInvalidConfig, "missing mqtt addr", nil)
	}
	if config.WebServer.ServeAddr == "" {
		return errors.NewBadRequestError(errors.KindInvalidConfig, "missing serve addr", nil)
	}
	if (config.Log.HighPriorityOutput.Valid || config.Log.DebugOutput.Valid) && config.Log.MaxSize <= 0 {
		return errors.NewBadRequestError(errors.KindInvalidConfig, "log max size must be positive",
			errors.Details{"was": config.Log.MaxSize})
	}
	err := config.Arena.Validate()
	if err != nil {
		return errors.Wrap(err, "validate arena config", nil)
	}
	return nil
}
