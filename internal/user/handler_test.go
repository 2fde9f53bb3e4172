package user

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"go-messenger/internal/auth"
	"go-messenger/internal/web"
)

func TestHandlerSignUpValidation(t *testing.T) {
	h := NewHandler(newFixture().svc)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"ok", `{"username":"alice","email":"alice@example.com","password":"password123"}`, http.StatusCreated},
		{"short password", `{"username":"bob","email":"bob@example.com","password":"short"}`, http.StatusBadRequest},
		{"bad email", `{"username":"bob","email":"bob","password":"password123"}`, http.StatusBadRequest},
		{"not json", `username=bob`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/users/sign-up", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.SignUp(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}
}

func TestHandlerMe(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	u := f.signUp(t, "alice", "alice@example.com").User

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{ID: u.ID, Role: auth.RoleUser}))
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var body struct {
		Data Profile `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Data.User == nil || body.Data.User.Username != "alice" {
		t.Errorf("profile = %+v", body.Data)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response must not contain the password hash")
	}
}

func TestHandlerSignInWrongPassword(t *testing.T) {
	f := newFixture()
	f.signUp(t, "alice", "alice@example.com")
	h := NewHandler(f.svc)

	req := httptest.NewRequest(http.MethodPost, "/api/users/sign-in", strings.NewReader(`{"username":"alice","password":"wrong-one"}`))
	rec := httptest.NewRecorder()
	h.SignIn(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	var body web.ErrorBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error.Kind != "invalid_credential" {
		t.Errorf("kind = %q", body.Error.Kind)
	}
}

// TestRedisCodeStore runs against a real Redis when TEST_REDIS_ADDR is set.
func TestRedisCodeStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()

	store := NewRedisCodeStore(client, time.Minute)
	email := "codes-" + time.Now().Format("150405.000") + "@example.com"
	if err := store.Save(ctx, email, "123456"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if ok, _ := store.Check(ctx, strings.ToUpper(email), "123456"); !ok {
		t.Error("Check() should be case-insensitive on email")
	}
	if ok, _ := store.Consume(ctx, email, "654321"); ok {
		t.Error("wrong code consumed")
	}
	if ok, _ := store.Consume(ctx, email, "123456"); !ok {
		t.Error("right code not consumed")
	}
	if ok, _ := store.Check(ctx, email, "123456"); ok {
		t.Error("code still valid after consume")
	}
}
