package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration knobs for the alarm daemon and the
// verification backend.
type Config struct {
	HTTP struct {
		Addr         string        `mapstructure:"addr"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"http"`
	Storage struct {
		Driver string `mapstructure:"driver"`
		Path   string `mapstructure:"path"`
	} `mapstructure:"storage"`
	Bark struct {
		BaseURL        string        `mapstructure:"base_url"`
		Token          string        `mapstructure:"token"`
		DeviceKey      string        `mapstructure:"device_key"`
		EncodeKey      string        `mapstructure:"encode_key"`
		IV             string        `mapstructure:"iv"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
	} `mapstructure:"bark"`
	Verifier struct {
		BaseURL        string        `mapstructure:"base_url"`
		Token          string        `mapstructure:"token"`
		Email          string        `mapstructure:"email"`
		Password       string        `mapstructure:"password"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
	} `mapstructure:"verifier"`
	Alarm struct {
		SnoozeInterval time.Duration `mapstructure:"snooze_interval"`
	} `mapstructure:"alarm"`
	Sound struct {
		Command string `mapstructure:"command"`
	} `mapstructure:"sound"`
	Backend struct {
		Addr         string        `mapstructure:"addr"`
		DatabasePath string        `mapstructure:"database_path"`
		JWTSecret    string        `mapstructure:"jwt_secret"`
		TokenTTL     time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"backend"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// Load reads the configuration from disk/environment using Viper.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("qr_alarm")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// a missing file is fine, env and defaults still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !isNotExist(err) {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", "127.0.0.1:8095")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "30s")

	v.SetDefault("storage.driver", "bolt")
	v.SetDefault("storage.path", "./data/alarms.db")

	v.SetDefault("bark.base_url", "")
	v.SetDefault("bark.request_timeout", "10s")

	v.SetDefault("verifier.base_url", "http://127.0.0.1:8096")
	v.SetDefault("verifier.request_timeout", "10s")

	v.SetDefault("alarm.snooze_interval", "2m")

	v.SetDefault("sound.command", "")

	v.SetDefault("backend.addr", ":8096")
	v.SetDefault("backend.database_path", "./data/profiles.db")
	v.SetDefault("backend.jwt_secret", "")
	v.SetDefault("backend.token_ttl", "720h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
