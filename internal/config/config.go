package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string        `yaml:"env" env-default:"local"`
	Storage     string        `yaml:"storage" env-default:"sqlite"`
	StoragePath string        `yaml:"storage_path"`
	Ledger      string        `yaml:"ledger" env-default:"storage"`
	Mongo       MongoConfig   `yaml:"mongo"`
	Redis       RedisConfig   `yaml:"redis"`
	HTTP        HTTPConfig    `yaml:"http"`
	Auth        AuthConfig    `yaml:"auth"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" env:"MONGO_URI"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port" env-default:"3001"`
	Timeout         time.Duration `yaml:"timeout" env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"10s"`
}

type AuthConfig struct {
	AccessSecret  string        `yaml:"access_secret" env:"ACCESS_TOKEN_SECRET_KEY" env-required:"true"`
	RefreshSecret string        `yaml:"refresh_secret" env:"REFRESH_TOKEN_SECRET_KEY" env-required:"true"`
	AccessTTL     time.Duration `yaml:"access_ttl" env-default:"12h"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" env-default:"168h"`
	GraceWindow   time.Duration `yaml:"grace_window" env-default:"300s"`
	AdminEmail    string        `yaml:"admin_email"`
}

func LoadConfig(path string) *Config {
	var cfg Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file not found: " + path)
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}

	return &cfg
}
