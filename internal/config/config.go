package config

import (
	"os"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// defaultRefreshTokenDays is used when the configured value is missing or
// not a number.
const defaultRefreshTokenDays = 7

type Config struct {
	Env         string      `yaml:"env" env:"ENV" env-default:"local"`
	StoragePath string      `yaml:"storage_path" env:"STORAGE_PATH" env-required:"true"`
	HTTP        HTTPConfig  `yaml:"http"`
	JWT         JWTConfig   `yaml:"jwt"`
	Mongo       MongoConfig `yaml:"mongo"`
}

type HTTPConfig struct {
	Port    int           `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	Timeout time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"10s"`
}

type JWTConfig struct {
	Secret           string        `yaml:"secret" env:"JWT_SECRET" env-required:"true"`
	Issuer           string        `yaml:"issuer" env:"JWT_ISSUER"`
	Audience         string        `yaml:"audience" env:"JWT_AUDIENCE"`
	AccessTokenTTL   time.Duration `yaml:"access_token_ttl" env:"JWT_ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenDays string        `yaml:"refresh_token_days" env:"JWT_REFRESH_TOKEN_DAYS"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" env:"MONGO_URI"`
	Database string `yaml:"database" env:"MONGO_DATABASE"`
}

// RefreshTokenTTL returns the configured refresh-token lifetime. A missing
// or unparseable day count falls back to the default rather than failing.
func (c JWTConfig) RefreshTokenTTL() time.Duration {
	days, err := strconv.Atoi(c.RefreshTokenDays)
	if err != nil || days <= 0 {
		days = defaultRefreshTokenDays
	}
	return time.Duration(days) * 24 * time.Hour
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
