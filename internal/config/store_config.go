package config

const (
	databaseURLVar = "DATABASE_URL"
	redisAddrVar   = "REDIS_ADDR"
)

// StoreConfig selects the backing services. Empty values fall back to
// in-process implementations.
type StoreConfig interface {
	GetDatabaseURL() string
	GetRedisAddr() string
}

type Store struct{}

var _ StoreConfig = Store{}

func (Store) GetDatabaseURL() string {
	return GetEnv(databaseURLVar, "")
}

func (Store) GetRedisAddr() string {
	return GetEnv(redisAddrVar, "")
}
