// Package postgres is the PostgreSQL credential store. Users and their refresh
// tokens live in two tables; token sets are replaced inside one transaction.
package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jrsteele09/carnotes-server/internal/dbx"
	"github.com/jrsteele09/carnotes-server/migrations"
	"github.com/jrsteele09/carnotes-server/users"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

const userColumns = `u.id, u.username, u.email, u.password_hash, u.roles, u.created_at`

var _ users.Repo = (*Repo)(nil)

type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Open connects through the pgx stdlib driver and pings the server.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[postgres.Open] open")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[postgres.Open] ping")
	}
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return errors.Wrap(err, "[postgres.Migrate] dialect")
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return errors.Wrap(err, "[postgres.Migrate] up")
	}
	return nil
}

func (r *Repo) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE lower(u.email) = lower($1)`
	return r.findOne(ctx, query, email)
}

func (r *Repo) FindByID(ctx context.Context, id string) (*users.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, users.ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.id = $1`
	return r.findOne(ctx, query, id)
}

func (r *Repo) FindByRefreshToken(ctx context.Context, token string) (*users.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u
		JOIN refresh_tokens t ON t.user_id = u.id
		WHERE t.token = $1`
	return r.findOne(ctx, query, token)
}

func (r *Repo) InsertUser(ctx context.Context, username, email, passwordHash string) (*users.User, error) {
	user := &users.User{
		ID:            uuid.New().String(),
		Username:      username,
		Email:         email,
		PasswordHash:  passwordHash,
		Roles:         []users.RoleType{users.RoleUser},
		RefreshTokens: []string{},
	}

	query := `INSERT INTO users (id, username, email, password_hash, roles)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		user.ID, username, email, passwordHash, joinRoles(user.Roles)).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, users.ErrDuplicateEmail
		}
		return nil, errors.Wrap(err, "[postgres.InsertUser] db error")
	}
	return user, nil
}

func (r *Repo) ReplaceRefreshTokens(ctx context.Context, userID string, tokens []string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return users.ErrNotFound
	}
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		return writeTokens(ctx, tx, userID, tokens)
	})
}

func (r *Repo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return users.ErrNotFound
	}
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, userID)
		if err := affectedOne(res, err); err != nil {
			return errors.Wrap(err, "[postgres.UpdatePassword]")
		}
		return writeTokens(ctx, tx, userID, nil)
	})
}

func (r *Repo) SetRoles(ctx context.Context, userID string, roles []users.RoleType) error {
	if _, err := uuid.Parse(userID); err != nil {
		return users.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `UPDATE users SET roles = $1 WHERE id = $2`, joinRoles(roles), userID)
	return errors.Wrap(affectedOne(res, err), "[postgres.SetRoles]")
}

// DeleteUser relies on ON DELETE CASCADE to drop the user's refresh tokens.
func (r *Repo) DeleteUser(ctx context.Context, userID string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return users.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	return errors.Wrap(affectedOne(res, err), "[postgres.DeleteUser]")
}

func (r *Repo) findOne(ctx context.Context, query string, arg any) (*users.User, error) {
	var (
		user  users.User
		roles string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &roles, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, errors.Wrap(err, "[postgres.findOne] db error")
	}
	user.Roles = splitRoles(roles)

	user.RefreshTokens, err = r.loadTokens(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repo) loadTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT token FROM refresh_tokens WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[postgres.loadTokens] db error")
	}
	defer rows.Close()

	tokens := []string{}
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, errors.Wrap(err, "[postgres.loadTokens] scan")
		}
		tokens = append(tokens, token)
	}
	return tokens, errors.Wrap(rows.Err(), "[postgres.loadTokens] rows")
}

func lockUser(ctx context.Context, tx dbx.DBTX, userID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return users.ErrNotFound
	}
	return errors.Wrap(err, "[postgres.lockUser] db error")
}

func writeTokens(ctx context.Context, tx dbx.DBTX, userID string, tokens []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return errors.Wrap(err, "[postgres.writeTokens] delete")
	}
	for _, token := range tokens {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO refresh_tokens (token, user_id) VALUES ($1, $2) ON CONFLICT (token) DO NOTHING`,
			token, userID)
		if err != nil {
			return errors.Wrap(err, "[postgres.writeTokens] insert")
		}
	}
	return nil
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return users.ErrNotFound
	}
	return nil
}

func joinRoles(roles []users.RoleType) string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	return strings.Join(names, ",")
}

func splitRoles(s string) []users.RoleType {
	roles := []users.RoleType{}
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			roles = append(roles, users.RoleType(name))
		}
	}
	return roles
}
