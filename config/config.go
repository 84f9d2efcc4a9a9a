package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const EnvPrefix = "ETA"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Predictor PredictorConfig `mapstructure:"predictor"`
	Form      FormConfig      `mapstructure:"form"`
	Gallery   GalleryConfig   `mapstructure:"gallery"`
	Session   SessionConfig   `mapstructure:"session"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	PublicURL string `mapstructure:"public_url"`
}

type PredictorConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type FormConfig struct {
	StrictInput bool `mapstructure:"strict_input"`
}

type GalleryConfig struct {
	// Manifest is a path to a manifest file; empty means the bundled one.
	Manifest string `mapstructure:"manifest"`
	AssetDir string `mapstructure:"asset_dir"`
}

type SessionConfig struct {
	Cookie        string        `mapstructure:"cookie"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5173)
	v.SetDefault("server.public_url", "http://localhost:5173")
	v.SetDefault("predictor.url", "http://localhost:8000/predict")
	v.SetDefault("predictor.timeout", time.Duration(0))
	v.SetDefault("form.strict_input", false)
	v.SetDefault("gallery.manifest", "")
	v.SetDefault("gallery.asset_dir", "./public")
	v.SetDefault("session.cookie", "eta_session")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.sweep_interval", 10*time.Minute)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"host":          "server.host",
	"port":          "server.port",
	"predictor-url": "predictor.url",
	"strict-input":  "form.strict_input",
	"manifest":      "gallery.manifest",
	"asset-dir":     "gallery.asset_dir",
	"log-level":     "log.level",
	"log-encoding":  "log.encoding",
}

// Load merges defaults, the optional yaml file at path, ETA_* environment
// variables and any flags in fs that were set, in increasing precedence.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// NewLogger builds a zap logger. "json" encoding selects the production
// config, anything else the development console config.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	var zc zap.Config
	if cfg.Encoding == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
