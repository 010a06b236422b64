package app

import (
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"3000"`
	GRPCPort string `envconfig:"GRPC_PORT" default:":9090"`

	DBDriver     string `envconfig:"DB_DRIVER" default:"postgres"`
	DBURL        string `envconfig:"DB_URL" required:"true"`
	DBKey        string `envconfig:"DB_KEY"`
	DBInitSchema bool   `envconfig:"DB_INIT_SCHEMA" default:"false"`

	StoreTimeout  time.Duration `envconfig:"STORE_TIMEOUT" default:"10s"`
	StatsSchedule string        `envconfig:"STATS_SCHEDULE" default:"@every 1m"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`
}

// NewConfigFromEnv loads an optional .env file and then reads the process environment.
func NewConfigFromEnv() (cfg Config, err error) {
	// a missing .env is the normal case outside local development
	_ = godotenv.Load()
	err = envconfig.Process("", &cfg)
	return cfg, err
}

// HTTPAddr accepts both "3000" and ":3000".
func (c Config) HTTPAddr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// DataSourceName returns DBURL with DBKey set as the password of postgres URLs.
func (c Config) DataSourceName() (string, error) {
	if c.DBKey == "" || c.DBDriver != "postgres" {
		return c.DBURL, nil
	}
	u, err := url.Parse(c.DBURL)
	if err != nil {
		return "", errors.Wrap(err, "could not parse DB_URL")
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", errors.Errorf("DB_KEY needs a postgres:// DB_URL, got scheme %q", u.Scheme)
	}
	user := "postgres"
	if u.User != nil && u.User.Username() != "" {
		user = u.User.Username()
	}
	u.User = url.UserPassword(user, c.DBKey)
	return u.String(), nil
}
