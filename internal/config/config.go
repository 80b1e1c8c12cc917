package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

const envPrefix = "BULLION"

var Module = fx.Module("config",
	fx.Provide(Load),
)

type Config struct {
	AppName    string `mapstructure:"app_name"`
	AppVersion string `mapstructure:"app_version"`
	Env        string `mapstructure:"env"`

	HTTP          HTTPConfig          `mapstructure:"http"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Commerce      CommerceConfig      `mapstructure:"commerce"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Quota         QuotaConfig         `mapstructure:"quota"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	RateCacheTTL time.Duration `mapstructure:"rate_cache_ttl"`
}

type CommerceConfig struct {
	DefaultCurrency string   `mapstructure:"default_currency"`
	Materials       []string `mapstructure:"materials"`
}

type PaymentConfig struct {
	Provider       string       `mapstructure:"provider"`
	// MockSettlement is "immediate" or "pending".
	MockSettlement string       `mapstructure:"mock_settlement"`
	Xendit         XenditConfig `mapstructure:"xendit"`
}

type XenditConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SchedulerConfig struct {
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ReconcileGrace    time.Duration `mapstructure:"reconcile_grace"`
	ReconcileBatch    int           `mapstructure:"reconcile_batch"`
}

// QuotaConfig limits how often one user may place orders and payments.
// Counting needs redis; without it every request is allowed.
type QuotaConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	OrdersPerMinute   int  `mapstructure:"orders_per_minute"`
	PaymentsPerMinute int  `mapstructure:"payments_per_minute"`
}

type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	LogLevel       string `mapstructure:"log_level"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "bullion")
	v.SetDefault("app_version", "dev")
	v.SetDefault("env", "development")

	v.SetDefault("http.port", 5000)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:bullion.db?cache=shared")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.rate_cache_ttl", 5*time.Minute)

	v.SetDefault("commerce.default_currency", "INR")
	v.SetDefault("commerce.materials", []string{"gold", "silver", "diamond"})

	v.SetDefault("payment.provider", "mock")
	v.SetDefault("payment.mock_settlement", "immediate")
	v.SetDefault("payment.xendit.api_key", "")
	v.SetDefault("payment.xendit.base_url", "https://api.xendit.co")
	v.SetDefault("payment.xendit.timeout", 10*time.Second)

	v.SetDefault("scheduler.reconcile_interval", time.Minute)
	v.SetDefault("scheduler.reconcile_grace", 30*time.Second)
	v.SetDefault("scheduler.reconcile_batch", 100)

	v.SetDefault("quota.enabled", true)
	v.SetDefault("quota.orders_per_minute", 30)
	v.SetDefault("quota.payments_per_minute", 20)

	v.SetDefault("observability.service_name", "bullion")
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.otlp_endpoint", "")
}

// Load reads .env (if present), an optional config file and BULLION_* env vars,
// in increasing order of precedence.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/bullion")
	if path := strings.TrimSpace(os.Getenv(envPrefix + "_CONFIG")); path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.OnConfigChange(func(e fsnotify.Event) {
			fmt.Fprintf(os.Stderr, "config file %s changed (%s); restart to apply\n", e.Name, e.Op)
		})
		v.WatchConfig()
	}

	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	// comma separated lists from env arrive as a single element
	if len(cfg.Commerce.Materials) == 1 && strings.Contains(cfg.Commerce.Materials[0], ",") {
		cfg.Commerce.Materials = strings.Split(cfg.Commerce.Materials[0], ",")
	}
	for i, m := range cfg.Commerce.Materials {
		cfg.Commerce.Materials[i] = strings.ToLower(strings.TrimSpace(m))
	}
	cfg.Commerce.DefaultCurrency = strings.ToUpper(strings.TrimSpace(cfg.Commerce.DefaultCurrency))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http.port %d", c.HTTP.Port)
	}
	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if len(c.Commerce.Materials) == 0 {
		return errors.New("commerce.materials must not be empty")
	}
	if c.Commerce.DefaultCurrency == "" {
		return errors.New("commerce.default_currency is required")
	}
	switch c.Payment.MockSettlement {
	case "immediate", "pending":
	default:
		return fmt.Errorf("invalid payment.mock_settlement %q", c.Payment.MockSettlement)
	}
	return nil
}
