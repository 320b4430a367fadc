package config

import (
	"strconv"
	"time"
)

const bcryptCostVar = "BCRYPT_COST"

type SecurityConfig interface {
	GetBcryptCost() int
	GetLockWait() time.Duration
	GetSecureCookies() bool
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetBcryptCost() int {
	cost, err := strconv.Atoi(GetEnv(bcryptCostVar, "12"))
	if err != nil {
		return 12
	}
	return cost
}

// GetLockWait bounds how long a request waits for another request touching
// the same user's sessions.
func (Security) GetLockWait() time.Duration {
	return 5 * time.Second
}

func (Security) GetSecureCookies() bool {
	return true
}
