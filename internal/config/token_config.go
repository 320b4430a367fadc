package config

import "time"

const (
	accessTokenSecretVar  = "ACCESS_TOKEN_SECRET"
	refreshTokenSecretVar = "REFRESH_TOKEN_SECRET"
)

type TokenConfig interface {
	GetAccessTokenSecret() string
	GetRefreshTokenSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
}

type Tokens struct{}

var _ TokenConfig = Tokens{}

func (Tokens) GetAccessTokenSecret() string {
	return GetEnv(accessTokenSecretVar, "")
}

func (Tokens) GetRefreshTokenSecret() string {
	return GetEnv(refreshTokenSecretVar, "")
}

func (Tokens) GetAccessTokenExpiry() time.Duration {
	return 300 * time.Second
}

func (Tokens) GetRefreshTokenExpiry() time.Duration {
	return 24 * time.Hour // also the refresh cookie max-age
}
