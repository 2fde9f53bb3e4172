package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"go-messenger/internal/apperr"
)

func TestErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
		msg  string
	}{
		{"no rows", sql.ErrNoRows, apperr.KindNotFound, "user not found"},
		{"wrapped no rows", fmt.Errorf("scan: %w", sql.ErrNoRows), apperr.KindNotFound, "user not found"},
		{"unique username", &pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"}, apperr.KindConflict, "username is already taken"},
		{"unique email", &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}, apperr.KindConflict, "email is already registered"},
		{"unique other", &pgconn.PgError{Code: "23505", ConstraintName: "x"}, apperr.KindConflict, "record already exists"},
		{"foreign key", &pgconn.PgError{Code: "23503"}, apperr.KindNotFound, "referenced record does not exist"},
		{"other pg error", &pgconn.PgError{Code: "40001"}, apperr.KindPersistence, "something went wrong"},
		{"plain error", errors.New("connection reset"), apperr.KindPersistence, "something went wrong"},
		{"already classified", apperr.Forbidden("nope"), apperr.KindAuthorization, "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Err("op", tt.err, "user not found")
			if apperr.KindOf(err) != tt.want {
				t.Errorf("kind = %s, want %s", apperr.KindOf(err), tt.want)
			}
			if got := apperr.PublicMessage(err); got != tt.msg {
				t.Errorf("message = %q, want %q", got, tt.msg)
			}
		})
	}
	if Err("op", nil, "x") != nil {
		t.Error("nil error should stay nil")
	}
}

func TestContains(t *testing.T) {
	tests := map[string]string{
		"hello":      `%hello%`,
		"100%":       `%100\%%`,
		"snake_case": `%snake\_case%`,
		`C:\dir`:     `%C:\\dir%`,
		"":           `%%`,
	}
	for in, want := range tests {
		if got := Contains(in); got != want {
			t.Errorf("Contains(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestAutoMigrate runs against a real Postgres when TEST_DB_DSN is set.
func TestAutoMigrate(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	ctx := context.Background()
	d, err := NewDatabase(ctx, dsn, PoolConfig{MaxOpenConns: 2, MaxIdleConns: 2, ConnMaxLifetime: time.Minute})
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	defer d.Close()

	// Twice, to prove the migration is idempotent.
	for i := 0; i < 2; i++ {
		if err := d.AutoMigrate(ctx); err != nil {
			t.Fatalf("AutoMigrate() run %d error = %v", i+1, err)
		}
	}
}
