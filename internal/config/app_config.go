package config

import (
	"time"
)

const (
	EnvLocal = "local"
	EnvProd  = "prod"
)

type AppConfig struct {
	Env             string        `yaml:"env" env:"APP_ENV" env-default:"local"`
	Port            int           `yaml:"port" env:"APP_PORT" env-default:"8080"`
	DefaultTimeout  time.Duration `yaml:"default_timeout" env-default:"5s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"10s"`
}
