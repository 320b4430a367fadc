package main

import (
	"context"
	"database/sql"

	"github.com/jrsteele09/carnotes-server/auth"
	"github.com/jrsteele09/carnotes-server/internal/config"
	"github.com/jrsteele09/carnotes-server/token"
	"github.com/jrsteele09/carnotes-server/users"
	"github.com/jrsteele09/carnotes-server/users/postgres"
	fakeuserrepo "github.com/jrsteele09/carnotes-server/users/repofake"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// deps holds the long lived collaborators of the serve command.
type deps struct {
	codec    *token.Codec
	sessions *auth.SessionService
	closers  []func() error
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
}

func buildDeps(ctx context.Context, c config.Config, migrate bool) (*deps, error) {
	d := &deps{}

	repo, err := d.openRepo(ctx, c, migrate)
	if err != nil {
		d.Close()
		return nil, err
	}

	locker, err := d.openLocker(ctx, c)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.codec = token.NewCodec(
		token.NewHMACSigner(c.GetAccessTokenSecret()),
		token.NewHMACSigner(c.GetRefreshTokenSecret()),
		token.WithTokenExpiry(c.GetAccessTokenExpiry(), c.GetRefreshTokenExpiry()),
	)

	d.sessions, err = auth.NewSessionService(repo, d.codec,
		auth.WithHasher(users.NewBcryptHasher(c.GetBcryptCost())),
		auth.WithLocker(locker),
		auth.WithLockWait(c.GetLockWait()),
	)
	if err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *deps) openRepo(ctx context.Context, c config.Config, migrate bool) (users.Repo, error) {
	dsn := c.GetDatabaseURL()
	if dsn == "" {
		log.Warn().Msg("DATABASE_URL not set, using in-memory user store")
		return fakeuserrepo.NewFakeUserRepo(), nil
	}

	db, err := openDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, db.Close)

	if migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		log.Info().Msg("database migrations applied")
	}
	return postgres.NewRepo(db), nil
}

func (d *deps) openLocker(ctx context.Context, c config.Config) (auth.Locker, error) {
	addr := c.GetRedisAddr()
	if addr == "" {
		return auth.NewLocalLocker(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	d.closers = append(d.closers, client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "[openLocker] redis ping")
	}
	log.Info().Str("addr", addr).Msg("using redis user locks")
	return auth.NewRedisLocker(client), nil
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("connected to postgres")
	return db, nil
}
