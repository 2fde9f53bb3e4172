package user

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"go-messenger/internal/apperr"
	"go-messenger/internal/auth"
	"go-messenger/internal/logging"
	"go-messenger/internal/media"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

type memStore struct {
	mu     sync.Mutex
	users  map[int64]*User
	nextID int64
}

func newMemStore() *memStore {
	return &memStore{users: make(map[int64]*User)}
}

func (m *memStore) Create(_ context.Context, u *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return nil, apperr.Conflict("username is already taken")
		}
		if existing.Email == u.Email {
			return nil, apperr.Conflict("email is already registered")
		}
	}
	m.nextID++
	c := *u
	c.ID = m.nextID
	c.CreatedAt = time.Now()
	m.users[c.ID] = &c
	out := c
	return &out, nil
}

func (m *memStore) ByID(_ context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound(notFound)
	}
	c := *u
	return &c, nil
}

func (m *memStore) ByLogin(_ context.Context, username, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if (username != "" && u.Username == username) || (username == "" && strings.EqualFold(u.Email, email)) {
			c := *u
			return &c, nil
		}
	}
	return nil, apperr.NotFound(notFound)
}

func (m *memStore) Search(_ context.Context, q string, limit int) ([]Public, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Public{}
	for _, u := range m.users {
		if strings.Contains(strings.ToLower(u.Username), strings.ToLower(q)) && len(out) < limit {
			out = append(out, Public{ID: u.ID, Username: u.Username})
		}
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, u *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *u
	m.users[u.ID] = &c
	out := c
	return &out, nil
}

func (m *memStore) UpdatePasswordByEmail(_ context.Context, email, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			u.Password = hash
			return nil
		}
	}
	return apperr.NotFound(notFound)
}

func (m *memStore) Delete(_ context.Context, id int64) ([]media.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return nil, apperr.NotFound(notFound)
	}
	delete(m.users, id)
	return []media.Attachment{{Kind: media.KindImage, URL: "/uploads/images/chat.png"}}, nil
}

func (m *memStore) Profile(ctx context.Context, id int64) (*Profile, error) {
	u, err := m.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Profile{User: u}, nil
}

type memCodes struct {
	codes map[string]string
}

func (m *memCodes) Save(_ context.Context, email, code string) error {
	m.codes[email] = code
	return nil
}

func (m *memCodes) Check(_ context.Context, email, code string) (bool, error) {
	return m.codes[email] == code && code != "", nil
}

func (m *memCodes) Consume(ctx context.Context, email, code string) (bool, error) {
	ok, _ := m.Check(ctx, email, code)
	if ok {
		delete(m.codes, email)
	}
	return ok, nil
}

type sentCode struct{ email, code string }

type recordingSender struct{ sent []sentCode }

func (r *recordingSender) SendResetCode(_ context.Context, email, code string) error {
	r.sent = append(r.sent, sentCode{email, code})
	return nil
}

// recordingFiles lets anyone claim a URL missing from owners.
type recordingFiles struct {
	owners  map[string]int64
	removed []string
}

func (r *recordingFiles) Claim(_ context.Context, ownerID int64, urls ...string) error {
	for _, u := range urls {
		if id, ok := r.owners[u]; ok && id != ownerID {
			return apperr.Forbidden("attachment " + u + " is not one of your uploads")
		}
	}
	return nil
}

func (r *recordingFiles) Release(_ context.Context, urls ...string) {
	for _, u := range urls {
		if u != "" {
			r.removed = append(r.removed, u)
		}
	}
}

type fixture struct {
	svc    *Service
	store  *memStore
	codes  *memCodes
	sender *recordingSender
	files  *recordingFiles
	tokens *auth.TokenService
}

func newFixture() *fixture {
	f := &fixture{
		store:  newMemStore(),
		codes:  &memCodes{codes: map[string]string{}},
		sender: &recordingSender{},
		files:  &recordingFiles{},
		tokens: auth.NewTokenService("test-secret", time.Hour),
	}
	f.svc = NewService(f.store, f.tokens, f.codes, f.sender, f.files)
	f.svc.hashCost = bcrypt.MinCost
	return f
}

func (f *fixture) signUp(t *testing.T, username, email string) *SignUpResponse {
	t.Helper()
	res, err := f.svc.SignUp(context.Background(), &SignUpRequest{Username: username, Email: email, Password: "password123"})
	if err != nil {
		t.Fatalf("SignUp(%s) error = %v", username, err)
	}
	return res
}

func TestSignUpAndSignIn(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res := f.signUp(t, "alice", "Alice@Example.com")
	if res.User.Email != "alice@example.com" {
		t.Errorf("email not normalised: %q", res.User.Email)
	}
	if res.User.Password == "password123" {
		t.Fatal("password stored in plain text")
	}
	id, err := f.tokens.Verify(res.Token)
	if err != nil || id.ID != res.User.ID || id.Role != auth.RoleUser {
		t.Errorf("sign-up token identity = %+v, %v", id, err)
	}

	byName, err := f.svc.SignIn(ctx, &SignInRequest{Username: "alice", Password: "password123"})
	if err != nil {
		t.Fatalf("SignIn(username) error = %v", err)
	}
	if byName.Profile.User.ID != res.User.ID {
		t.Errorf("profile user = %d", byName.Profile.User.ID)
	}
	if _, err := f.svc.SignIn(ctx, &SignInRequest{Email: "alice@example.com", Password: "password123"}); err != nil {
		t.Errorf("SignIn(email) error = %v", err)
	}
}

func TestSignUpDuplicate(t *testing.T) {
	f := newFixture()
	f.signUp(t, "alice", "alice@example.com")
	_, err := f.svc.SignUp(context.Background(), &SignUpRequest{Username: "alice", Email: "other@example.com", Password: "password123"})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("err = %v, want conflict", err)
	}
}

func TestSignInFailures(t *testing.T) {
	f := newFixture()
	f.signUp(t, "alice", "alice@example.com")

	tests := map[string]SignInRequest{
		"wrong password": {Username: "alice", Password: "nope-nope"},
		"unknown user":   {Username: "bob", Password: "password123"},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.SignIn(context.Background(), &req)
			if apperr.KindOf(err) != apperr.KindCredential {
				t.Errorf("err = %v, want invalid credential", err)
			}
			if apperr.PublicMessage(err) != "invalid username or password" {
				t.Errorf("message leaks which part was wrong: %q", apperr.PublicMessage(err))
			}
		})
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.signUp(t, "alice", "alice@example.com").User

	first := "/uploads/images/a.png"
	if _, err := f.svc.Update(ctx, u.ID, &UpdateRequest{ProfileURL: &first}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	second := "/uploads/images/b.png"
	name := "alice2"
	pw := "new-password"
	updated, err := f.svc.Update(ctx, u.ID, &UpdateRequest{ProfileURL: &second, Username: &name, Password: &pw})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Username != "alice2" || updated.ProfileURL != second {
		t.Errorf("updated = %+v", updated)
	}
	if len(f.files.removed) != 1 || f.files.removed[0] != first {
		t.Errorf("removed files = %v, want old profile picture", f.files.removed)
	}
	if _, err := f.svc.SignIn(ctx, &SignInRequest{Username: "alice2", Password: "new-password"}); err != nil {
		t.Errorf("sign in with new password: %v", err)
	}
}

func TestUpdateProfileRejectsForeignPicture(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.signUp(t, "alice", "alice@example.com").User
	bob := f.signUp(t, "bob", "bob@example.com").User

	bobs := "/uploads/images/bob.png"
	f.files.owners = map[string]int64{bobs: bob.ID}
	if _, err := f.svc.Update(ctx, bob.ID, &UpdateRequest{ProfileURL: &bobs}); err != nil {
		t.Fatalf("Update() with own upload error = %v", err)
	}

	_, err := f.svc.Update(ctx, alice.ID, &UpdateRequest{ProfileURL: &bobs})
	if apperr.KindOf(err) != apperr.KindAuthorization {
		t.Fatalf("Update() with another user's upload error = %v, want authorization error", err)
	}
	if err := f.svc.Delete(ctx, alice.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	for _, u := range f.files.removed {
		if u == bobs {
			t.Fatalf("bob's picture was released: %v", f.files.removed)
		}
	}
}

func TestDeleteRemovesFiles(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u := f.signUp(t, "alice", "alice@example.com").User
	pic := "/uploads/images/me.png"
	f.svc.Update(ctx, u.ID, &UpdateRequest{ProfileURL: &pic})

	if err := f.svc.Delete(ctx, u.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(f.files.removed) != 2 {
		t.Errorf("removed = %v, want message media and profile picture", f.files.removed)
	}
	if err := f.svc.Delete(ctx, u.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("second delete err = %v", err)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture()
	f.signUp(t, "alice", "alice@example.com")
	f.signUp(t, "malik", "malik@example.com")
	f.signUp(t, "bob", "bob@example.com")

	got, err := f.svc.Search(context.Background(), "ali")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Search(ali) = %+v, want alice and malik", got)
	}
	if _, err := f.svc.Search(context.Background(), "  "); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("empty query err = %v", err)
	}
}

func TestPasswordReset(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.signUp(t, "alice", "alice@example.com")

	if err := f.svc.ForgotPassword(ctx, &ForgotPasswordRequest{Email: "nobody@example.com"}); err != nil {
		t.Fatalf("unknown email should look like success, got %v", err)
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("no code should be sent for an unknown email")
	}

	if err := f.svc.ForgotPassword(ctx, &ForgotPasswordRequest{Email: "alice@example.com"}); err != nil {
		t.Fatalf("ForgotPassword() error = %v", err)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("sent = %v", f.sender.sent)
	}
	code := f.sender.sent[0].code
	if len(code) != 6 {
		t.Errorf("code %q is not six digits", code)
	}

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	if err := f.svc.VerifyCode(ctx, &VerifyCodeRequest{Email: "alice@example.com", Code: wrong}); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("wrong code err = %v", err)
	}
	if err := f.svc.VerifyCode(ctx, &VerifyCodeRequest{Email: "alice@example.com", Code: code}); err != nil {
		t.Errorf("VerifyCode() error = %v", err)
	}

	reset := &ResetPasswordRequest{Email: "alice@example.com", Code: code, Password: "brand-new-pass"}
	if err := f.svc.ResetPassword(ctx, reset); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	if err := f.svc.ResetPassword(ctx, reset); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("reusing a code should fail, got %v", err)
	}

	stored, _ := f.store.ByLogin(ctx, "alice", "")
	if stored.Password == "brand-new-pass" {
		t.Fatal("reset password stored in plain text")
	}
	if _, err := f.svc.SignIn(ctx, &SignInRequest{Username: "alice", Password: "brand-new-pass"}); err != nil {
		t.Errorf("sign in after reset: %v", err)
	}
}

func TestNewCode(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := newCode()
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != 6 || strings.Trim(code, "0123456789") != "" {
			t.Fatalf("newCode() = %q", code)
		}
	}
}
