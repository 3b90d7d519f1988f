package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
)

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Config struct {
	AppEnv  string `mapstructure:"APP_ENV"`
	AppName string `mapstructure:"APP_NAME"`
	TLS     struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBName         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConn     int           `mapstructure:"MAX_OPEN_CONN"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Scoring struct {
		// NumericTolerance is the maximum absolute delta between a numeric
		// prediction and the recorded outcome that still counts as correct.
		NumericTolerance float64 `mapstructure:"NUMERIC_TOLERANCE"`
	} `mapstructure:"SCORING"`
	Distribution struct {
		Workers int `mapstructure:"WORKERS"`
	} `mapstructure:"DISTRIBUTION"`
	Metrics struct {
		Enable bool `mapstructure:"ENABLE"`
	} `mapstructure:"METRICS"`
}

// LoadConfig reads config.yaml from the working directory when present and
// lets environment variables override every key.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "contestplane")
	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.HOST", "127.0.0.1")
	v.SetDefault("DATABASE.PORT", "5432")
	v.SetDefault("DATABASE.DBNAME", "contestplane")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 5)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONN", 25)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 30*time.Minute)
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 4*time.Second)
	v.SetDefault("SCORING.NUMERIC_TOLERANCE", 0.0)
	v.SetDefault("DISTRIBUTION.WORKERS", 8)
	v.SetDefault("METRICS.ENABLE", false)
}
