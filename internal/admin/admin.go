// Package admin manages operator accounts. Admins authenticate separately
// from users and carry ADMIN tokens.
package admin

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"go-messenger/internal/apperr"
	"go-messenger/internal/auth"
	"go-messenger/internal/db"
)

const notFound = "admin not found"

type Admin struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

type Credentials struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type UpdateRequest struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=50"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
}

type SignInResponse struct {
	Token string `json:"token"`
	Admin *Admin `json:"admin"`
}

// Repository

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const adminColumns = "id, username, password, created_at"

func scanAdmin(row interface{ Scan(...any) error }) (*Admin, error) {
	a := &Admin{}
	err := row.Scan(&a.ID, &a.Username, &a.Password, &a.CreatedAt)
	return a, err
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM admins").Scan(&n)
	return n, db.Err("count admins", err, notFound)
}

func (r *Repository) Create(ctx context.Context, a *Admin) (*Admin, error) {
	query := "INSERT INTO admins (username, password) VALUES ($1, $2) RETURNING " + adminColumns
	created, err := scanAdmin(r.db.QueryRowContext(ctx, query, a.Username, a.Password))
	if err != nil {
		return nil, db.Err("create admin", err, notFound)
	}
	return created, nil
}

func (r *Repository) ByID(ctx context.Context, id int64) (*Admin, error) {
	a, err := scanAdmin(r.db.QueryRowContext(ctx, "SELECT "+adminColumns+" FROM admins WHERE id = $1", id))
	if err != nil {
		return nil, db.Err("get admin", err, notFound)
	}
	return a, nil
}

func (r *Repository) ByUsername(ctx context.Context, username string) (*Admin, error) {
	a, err := scanAdmin(r.db.QueryRowContext(ctx, "SELECT "+adminColumns+" FROM admins WHERE username = $1", username))
	if err != nil {
		return nil, db.Err("get admin", err, notFound)
	}
	return a, nil
}

func (r *Repository) List(ctx context.Context) ([]Admin, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+adminColumns+" FROM admins ORDER BY id")
	if err != nil {
		return nil, db.Err("list admins", err, notFound)
	}
	defer rows.Close()

	admins := []Admin{}
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, db.Err("scan admin", err, notFound)
		}
		admins = append(admins, *a)
	}
	return admins, db.Err("list admins", rows.Err(), notFound)
}

func (r *Repository) Update(ctx context.Context, a *Admin) (*Admin, error) {
	query := "UPDATE admins SET username = $2, password = $3 WHERE id = $1 RETURNING " + adminColumns
	updated, err := scanAdmin(r.db.QueryRowContext(ctx, query, a.ID, a.Username, a.Password))
	if err != nil {
		return nil, db.Err("update admin", err, notFound)
	}
	return updated, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM admins WHERE id = $1", id)
	if err != nil {
		return db.Err("delete admin", err, notFound)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound(notFound)
	}
	return nil
}

// Service

type Store interface {
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, a *Admin) (*Admin, error)
	ByID(ctx context.Context, id int64) (*Admin, error)
	ByUsername(ctx context.Context, username string) (*Admin, error)
	List(ctx context.Context) ([]Admin, error)
	Update(ctx context.Context, a *Admin) (*Admin, error)
	Delete(ctx context.Context, id int64) error
}

type TokenIssuer interface {
	Issue(id int64, role auth.Role) (string, error)
}

type Service struct {
	store    Store
	tokens   TokenIssuer
	hashCost int
}

func NewService(store Store, tokens TokenIssuer) *Service {
	return &Service{store: store, tokens: tokens, hashCost: bcrypt.DefaultCost}
}

// SignUp creates an admin. The very first admin may sign up freely; after
// that only an existing admin can create another.
func (s *Service) SignUp(ctx context.Context, caller *auth.Identity, req *Credentials) (*Admin, error) {
	if caller == nil || caller.Role != auth.RoleAdmin {
		n, err := s.store.Count(ctx)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, apperr.Forbidden("only an admin can create another admin")
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, apperr.Persistence("hash password", err)
	}
	return s.store.Create(ctx, &Admin{Username: strings.TrimSpace(req.Username), Password: string(hashed)})
}

func (s *Service) SignIn(ctx context.Context, req *Credentials) (*SignInResponse, error) {
	bad := apperr.Unauthorized("invalid username or password")
	a, err := s.store.ByUsername(ctx, req.Username)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, bad
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.Password), []byte(req.Password)); err != nil {
		return nil, bad
	}

	token, err := s.tokens.Issue(a.ID, auth.RoleAdmin)
	if err != nil {
		return nil, apperr.Persistence("issue token", err)
	}
	return &SignInResponse{Token: token, Admin: a}, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Admin, error) {
	return s.store.ByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Admin, error) {
	return s.store.List(ctx)
}

func (s *Service) Update(ctx context.Context, id int64, req *UpdateRequest) (*Admin, error) {
	a, err := s.store.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Username != nil {
		a.Username = strings.TrimSpace(*req.Username)
	}
	if req.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), s.hashCost)
		if err != nil {
			return nil, apperr.Persistence("hash password", err)
		}
		a.Password = string(hashed)
	}
	return s.store.Update(ctx, a)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}
