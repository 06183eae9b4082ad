package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard"`
}

// DataConfig points at the dataset file (.csv or .xlsx).
type DataConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`
	Sheet   string `yaml:"sheet" mapstructure:"sheet"`
	Workers int    `yaml:"workers" mapstructure:"workers"`
	// DistributeEU copies EU aggregate rows onto their member countries at load time.
	DistributeEU bool `yaml:"distribute_eu" mapstructure:"distribute_eu"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json, console
	Output string `yaml:"output" mapstructure:"output"` // stderr, stdout or a file path
}

// DashboardConfig holds the selections used when a request leaves them empty.
type DashboardConfig struct {
	DefaultMeasure   string   `yaml:"default_measure" mapstructure:"default_measure"`
	DefaultCountries []string `yaml:"default_countries" mapstructure:"default_countries"`
	DefaultNutrient  string   `yaml:"default_nutrient" mapstructure:"default_nutrient"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("AGRIDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.path", "data/cleaned_arg_env_data.csv")
	v.SetDefault("data.sheet", "")
	v.SetDefault("data.workers", 0)
	v.SetDefault("data.distribute_eu", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("dashboard.default_measure", "Producer Nominal Protection Coefficient")
	v.SetDefault("dashboard.default_countries", []string{"ARG"})
	v.SetDefault("dashboard.default_nutrient", "Nitrogen")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger installs the global zap logger, named "agridash". Every entry carries the
// dataset path it was started with.
func InitLogger(cfg LogConfig, dataset string) error {
	var zapCfg zap.Config
	switch cfg.Format {
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	case "json", "":
		zapCfg = zap.NewProductionConfig()
	default:
		return eris.Errorf("config: unknown log format %q", cfg.Format)
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	if cfg.Output != "" {
		zapCfg.OutputPaths = []string{cfg.Output}
	}
	zapCfg.InitialFields = map[string]interface{}{"dataset": dataset}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger.Named("agridash"))

	return nil
}
