package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env               string
	Port              string
	SessionSecret     string
	DatabaseURL       string
	RedisURL          string
	FrontendURL       string
	AllowCrossSiteDev bool
}

// IsDevelopment reports whether internal error detail may be exposed.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "3001"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	frontend := viper.GetString("FRONTEND_URL")
	if frontend == "" {
		frontend = "http://localhost:5173"
	}

	return &Config{
		Env:               env,
		Port:              port,
		SessionSecret:     viper.GetString("SESSION_SECRET"),
		DatabaseURL:       viper.GetString("DATABASE_URL"),
		RedisURL:          viper.GetString("REDIS_URL"),
		FrontendURL:       frontend,
		AllowCrossSiteDev: strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
	}, nil
}
