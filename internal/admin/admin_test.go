package admin

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"go-messenger/internal/apperr"
	"go-messenger/internal/auth"
	"go-messenger/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

type memStore struct {
	admins map[int64]*Admin
	nextID int64
}

func (m *memStore) Count(context.Context) (int, error) { return len(m.admins), nil }

func (m *memStore) Create(_ context.Context, a *Admin) (*Admin, error) {
	for _, existing := range m.admins {
		if existing.Username == a.Username {
			return nil, apperr.Conflict("username is already taken")
		}
	}
	m.nextID++
	c := *a
	c.ID = m.nextID
	m.admins[c.ID] = &c
	return &c, nil
}

func (m *memStore) ByID(_ context.Context, id int64) (*Admin, error) {
	a, ok := m.admins[id]
	if !ok {
		return nil, apperr.NotFound(notFound)
	}
	c := *a
	return &c, nil
}

func (m *memStore) ByUsername(_ context.Context, username string) (*Admin, error) {
	for _, a := range m.admins {
		if a.Username == username {
			c := *a
			return &c, nil
		}
	}
	return nil, apperr.NotFound(notFound)
}

func (m *memStore) List(context.Context) ([]Admin, error) {
	out := []Admin{}
	for _, a := range m.admins {
		out = append(out, *a)
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, a *Admin) (*Admin, error) {
	c := *a
	m.admins[a.ID] = &c
	return &c, nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	if _, ok := m.admins[id]; !ok {
		return apperr.NotFound(notFound)
	}
	delete(m.admins, id)
	return nil
}

func newTestService() (*Service, *auth.TokenService) {
	tokens := auth.NewTokenService("secret", time.Hour)
	svc := NewService(&memStore{admins: map[int64]*Admin{}}, tokens)
	svc.hashCost = bcrypt.MinCost
	return svc, tokens
}

func TestSignUpBootstrap(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	root, err := svc.SignUp(ctx, nil, &Credentials{Username: "root", Password: "password123"})
	if err != nil {
		t.Fatalf("first admin sign-up error = %v", err)
	}

	_, err = svc.SignUp(ctx, nil, &Credentials{Username: "intruder", Password: "password123"})
	if apperr.KindOf(err) != apperr.KindAuthorization {
		t.Errorf("anonymous second sign-up err = %v, want forbidden", err)
	}
	_, err = svc.SignUp(ctx, &auth.Identity{ID: 1, Role: auth.RoleUser}, &Credentials{Username: "user", Password: "password123"})
	if apperr.KindOf(err) != apperr.KindAuthorization {
		t.Errorf("user-token sign-up err = %v, want forbidden", err)
	}

	caller := &auth.Identity{ID: root.ID, Role: auth.RoleAdmin}
	if _, err := svc.SignUp(ctx, caller, &Credentials{Username: "ops", Password: "password123"}); err != nil {
		t.Errorf("admin-created sign-up error = %v", err)
	}
	admins, _ := svc.List(ctx)
	if len(admins) != 2 {
		t.Errorf("admins = %d, want 2", len(admins))
	}
}

func TestSignInIssuesAdminToken(t *testing.T) {
	svc, tokens := newTestService()
	ctx := context.Background()
	svc.SignUp(ctx, nil, &Credentials{Username: "root", Password: "password123"})

	res, err := svc.SignIn(ctx, &Credentials{Username: "root", Password: "password123"})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	id, err := tokens.Verify(res.Token)
	if err != nil || id.Role != auth.RoleAdmin {
		t.Errorf("token identity = %+v, %v", id, err)
	}

	if _, err := svc.SignIn(ctx, &Credentials{Username: "root", Password: "wrong-password"}); apperr.KindOf(err) != apperr.KindCredential {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := svc.SignIn(ctx, &Credentials{Username: "nobody", Password: "password123"}); apperr.KindOf(err) != apperr.KindCredential {
		t.Errorf("unknown admin err = %v", err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	a, _ := svc.SignUp(ctx, nil, &Credentials{Username: "root", Password: "password123"})

	name, pw := "superuser", "another-password"
	updated, err := svc.Update(ctx, a.ID, &UpdateRequest{Username: &name, Password: &pw})
	if err != nil || updated.Username != "superuser" {
		t.Fatalf("Update() = %+v, %v", updated, err)
	}
	if _, err := svc.SignIn(ctx, &Credentials{Username: "superuser", Password: pw}); err != nil {
		t.Errorf("sign in after update: %v", err)
	}

	if err := svc.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.Get(ctx, a.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("Get() after delete err = %v", err)
	}
}

func TestHandlerSignUpForbidden(t *testing.T) {
	svc, _ := newTestService()
	svc.SignUp(context.Background(), nil, &Credentials{Username: "root", Password: "password123"})
	h := NewHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/admins/sign-up", strings.NewReader(`{"username":"eve","password":"password123"}`))
	rec := httptest.NewRecorder()
	h.SignUp(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}
