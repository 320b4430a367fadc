package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	SecurityConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Tokens
	Security
	Store
}

func New() Config {
	return mainConfig{}
}

// Load reads an optional .env file into the process environment and returns
// the configuration, failing when the signing secrets are unusable.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	c := New()
	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

var (
	ErrMissingAccessSecret  = errors.New(accessTokenSecretVar + " is required")
	ErrMissingRefreshSecret = errors.New(refreshTokenSecretVar + " is required")
	ErrSharedSecrets        = errors.New(accessTokenSecretVar + " and " + refreshTokenSecretVar + " must differ")
)

func Validate(c TokenConfig) error {
	access, refresh := c.GetAccessTokenSecret(), c.GetRefreshTokenSecret()
	switch {
	case access == "":
		return ErrMissingAccessSecret
	case refresh == "":
		return ErrMissingRefreshSecret
	case access == refresh:
		return ErrSharedSecrets
	}
	return nil
}
