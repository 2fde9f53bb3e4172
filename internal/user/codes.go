package user

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"go-messenger/internal/logging"
)

// RedisCodeStore keeps one pending password-reset code per email.
type RedisCodeStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCodeStore(client *redis.Client, ttl time.Duration) *RedisCodeStore {
	return &RedisCodeStore{client: client, ttl: ttl}
}

func codeKey(email string) string {
	return "reset-code:" + strings.ToLower(email)
}

func (s *RedisCodeStore) Save(ctx context.Context, email, code string) error {
	return s.client.Set(ctx, codeKey(email), code, s.ttl).Err()
}

func (s *RedisCodeStore) Check(ctx context.Context, email, code string) (bool, error) {
	stored, err := s.client.Get(ctx, codeKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1, nil
}

// Consume checks the code and, if it matches, deletes it so it cannot be
// used twice.
func (s *RedisCodeStore) Consume(ctx context.Context, email, code string) (bool, error) {
	ok, err := s.Check(ctx, email, code)
	if err != nil || !ok {
		return ok, err
	}
	n, err := s.client.Del(ctx, codeKey(email)).Result()
	if err != nil {
		return false, err
	}
	// Someone else consumed it between the read and the delete.
	return n == 1, nil
}

// LogSender hands reset codes to the log instead of a mail server.
type LogSender struct{}

func (LogSender) SendResetCode(_ context.Context, email, code string) error {
	logging.Info().Str("email", email).Str("code", code).Msg("password reset code issued")
	return nil
}

// newCode returns a uniformly random six-digit code.
func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
