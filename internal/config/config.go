package config

import (
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // "postgres" or "sqlite"
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BillingConfig configures the upstream billing-platform API client.
type BillingConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PackageName    string        `mapstructure:"package_name"`
	AccessToken    string        `mapstructure:"access_token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// TrialOfferTag marks an offer as a free trial when present on a line item.
	TrialOfferTag string `mapstructure:"trial_offer_tag"`
}

type SweepConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
	RetentionDays int           `mapstructure:"retention_days"`
}

type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Billing     BillingConfig  `mapstructure:"billing"`
	Sweep       SweepConfig    `mapstructure:"sweep"`
}

var Module = fx.Module("config",
	fx.Provide(Load),
)

// Load reads configuration from famly.yaml (when present) and FAMLY_* env vars.
// Env vars win over the file; defaults keep a bare checkout runnable against
// sqlite without any configuration at all.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("famly")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/famly")

	v.SetEnvPrefix("FAMLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	} else {
		v.OnConfigChange(func(fsnotify.Event) {
			// Hot reload is limited to re-reading the file; consumers take
			// values at construction time, so a restart is still required
			// for anything other than log inspection.
			_ = v.ReadInConfig()
		})
		v.WatchConfig()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:famly.db?cache=shared")
	v.SetDefault("redis.addr", "")
	v.SetDefault("billing.base_url", "")
	v.SetDefault("billing.request_timeout", 10*time.Second)
	v.SetDefault("billing.trial_offer_tag", "free-trial")
	v.SetDefault("sweep.interval", 5*time.Minute)
	v.SetDefault("sweep.lock_ttl", 4*time.Minute)
	v.SetDefault("sweep.retention_days", 90)
}
