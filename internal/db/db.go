package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"go-messenger/internal/apperr"
)

// Postgres error codes we translate into application errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type Database struct {
	Conn *sql.DB
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func NewDatabase(ctx context.Context, dsn string, pool PoolConfig) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetMaxOpenConns(pool.MaxOpenConns)
	conn.SetMaxIdleConns(pool.MaxIdleConns)
	conn.SetConnMaxLifetime(pool.ConnMaxLifetime)
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

// Querier is satisfied by both *sql.DB and *sql.Tx, so repository helpers
// can run inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Contains returns an ILIKE pattern matching q anywhere in the text. q's
// wildcards are matched literally; use it with ESCAPE '\'.
func Contains(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

// WithTx runs fn in a transaction, committing if it returns nil.
func WithTx(ctx context.Context, conn *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Persistence("begin tx", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Persistence("commit tx", err)
	}
	return nil
}

// Err translates a driver error into an application error. notFound is the
// message used when the query matched no row.
func Err(op string, err error, notFound string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(notFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return apperr.Conflict(conflictMessage(pgErr.ConstraintName))
		case codeForeignKeyViolation:
			return apperr.NotFound("referenced record does not exist")
		}
	}
	return apperr.Persistence(op, err)
}

func conflictMessage(constraint string) string {
	switch constraint {
	case "users_username_key", "admins_username_key":
		return "username is already taken"
	case "users_email_key":
		return "email is already registered"
	case "contacts_pair_key":
		return "contact already exists"
	case "channel_follows_pkey":
		return "you already follow this channel"
	}
	return "record already exists"
}

func (d *Database) AutoMigrate(ctx context.Context) error {
	for _, query := range schema {
		if _, err := d.Conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(50) NOT NULL,
		email VARCHAR(255) NOT NULL,
		password VARCHAR(255) NOT NULL,
		profile_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT users_username_key UNIQUE (username),
		CONSTRAINT users_email_key UNIQUE (email)
	)`,

	`CREATE TABLE IF NOT EXISTS admins (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(50) NOT NULL,
		password VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT admins_username_key UNIQUE (username)
	)`,

	`CREATE TABLE IF NOT EXISTS contacts (
		id BIGSERIAL PRIMARY KEY,
		first_person_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		second_person_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (first_person_id <> second_person_id)
	)`,
	// One contact per pair of users, whichever of them started it.
	`CREATE UNIQUE INDEX IF NOT EXISTS contacts_pair_key ON contacts
		(LEAST(first_person_id, second_person_id), GREATEST(first_person_id, second_person_id))`,

	`CREATE TABLE IF NOT EXISTS chat_contents (
		id BIGSERIAL PRIMARY KEY,
		chat_id BIGINT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
		sender_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL DEFAULT '',
		is_edited BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS chat_contents_chat_created_idx ON chat_contents (chat_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS chat_groups (
		id BIGSERIAL PRIMARY KEY,
		group_name VARCHAR(100) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		profile_url TEXT NOT NULL DEFAULT '',
		admin_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS group_members (
		group_id BIGINT NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (group_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS group_messages (
		id BIGSERIAL PRIMARY KEY,
		group_id BIGINT NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
		sender_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
		content TEXT NOT NULL DEFAULT '',
		is_edited BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS group_messages_group_created_idx ON group_messages (group_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS channels (
		id BIGSERIAL PRIMARY KEY,
		channel_name VARCHAR(100) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		profile_url TEXT NOT NULL DEFAULT '',
		super_admin_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS channel_admins (
		channel_id BIGINT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (channel_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS channel_follows (
		channel_id BIGINT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		followed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (channel_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS channel_contents (
		id BIGSERIAL PRIMARY KEY,
		channel_id BIGINT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		sender_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
		content TEXT NOT NULL DEFAULT '',
		is_edited BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS channel_contents_channel_created_idx ON channel_contents (channel_id, created_at)`,

	// Attachments for all three message tables. owner_kind says which
	// table owner_id points into, so there is no foreign key; repositories
	// delete attachments together with their messages.
	`CREATE TABLE IF NOT EXISTS media (
		id BIGSERIAL PRIMARY KEY,
		owner_kind VARCHAR(10) NOT NULL CHECK (owner_kind IN ('chat', 'group', 'channel')),
		owner_id BIGINT NOT NULL,
		kind VARCHAR(10) NOT NULL CHECK (kind IN ('image', 'video', 'audio', 'file')),
		url TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS media_owner_idx ON media (owner_kind, owner_id)`,
	`CREATE INDEX IF NOT EXISTS media_url_idx ON media (url)`,

	// Every stored file and its uploader. Attachments and profile pictures
	// may only use URLs their author uploaded.
	`CREATE TABLE IF NOT EXISTS uploads (
		url TEXT PRIMARY KEY,
		owner_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		kind VARCHAR(10) NOT NULL CHECK (kind IN ('image', 'video', 'audio', 'file')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS uploads_owner_idx ON uploads (owner_id)`,
}
