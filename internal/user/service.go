package user

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"go-messenger/internal/apperr"
	"go-messenger/internal/auth"
	"go-messenger/internal/logging"
	"go-messenger/internal/media"
)

const searchLimit = 20

// Store is the persistence the service needs.
type Store interface {
	Create(ctx context.Context, u *User) (*User, error)
	ByID(ctx context.Context, id int64) (*User, error)
	ByLogin(ctx context.Context, username, email string) (*User, error)
	Search(ctx context.Context, q string, limit int) ([]Public, error)
	Update(ctx context.Context, u *User) (*User, error)
	UpdatePasswordByEmail(ctx context.Context, email, hash string) error
	Delete(ctx context.Context, id int64) ([]media.Attachment, error)
	Profile(ctx context.Context, id int64) (*Profile, error)
}

type TokenIssuer interface {
	Issue(id int64, role auth.Role) (string, error)
}

type CodeStore interface {
	Save(ctx context.Context, email, code string) error
	Check(ctx context.Context, email, code string) (bool, error)
	Consume(ctx context.Context, email, code string) (bool, error)
}

type CodeSender interface {
	SendResetCode(ctx context.Context, email, code string) error
}

type Service struct {
	store    Store
	tokens   TokenIssuer
	codes    CodeStore
	sender   CodeSender
	files    media.Files
	hashCost int
}

func NewService(store Store, tokens TokenIssuer, codes CodeStore, sender CodeSender, files media.Files) *Service {
	return &Service{
		store:    store,
		tokens:   tokens,
		codes:    codes,
		sender:   sender,
		files:    files,
		hashCost: bcrypt.DefaultCost,
	}
}

var errBadCredentials = apperr.Unauthorized("invalid username or password")

func (s *Service) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", apperr.Persistence("hash password", err)
	}
	return string(h), nil
}

func (s *Service) SignUp(ctx context.Context, req *SignUpRequest) (*SignUpResponse, error) {
	hashed, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}

	u, err := s.store.Create(ctx, &User{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Password: hashed,
	})
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(u.ID, auth.RoleUser)
	if err != nil {
		return nil, apperr.Persistence("issue token", err)
	}
	return &SignUpResponse{Token: token, User: u}, nil
}

func (s *Service) SignIn(ctx context.Context, req *SignInRequest) (*SignInResponse, error) {
	u, err := s.store.ByLogin(ctx, req.Username, req.Email)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, errBadCredentials
	}

	token, err := s.tokens.Issue(u.ID, auth.RoleUser)
	if err != nil {
		return nil, apperr.Persistence("issue token", err)
	}
	profile, err := s.store.Profile(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &SignInResponse{Token: token, Profile: profile}, nil
}

func (s *Service) Me(ctx context.Context, id int64) (*Profile, error) {
	return s.store.Profile(ctx, id)
}

func (s *Service) Update(ctx context.Context, id int64, req *UpdateRequest) (*User, error) {
	u, err := s.store.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldProfileURL := u.ProfileURL

	if req.Username != nil {
		u.Username = strings.TrimSpace(*req.Username)
	}
	if req.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.ProfileURL != nil && *req.ProfileURL != oldProfileURL {
		if err := s.files.Claim(ctx, id, *req.ProfileURL); err != nil {
			return nil, err
		}
		u.ProfileURL = *req.ProfileURL
	}
	if req.Password != nil {
		if u.Password, err = s.hash(*req.Password); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.Update(ctx, u)
	if err != nil {
		return nil, err
	}
	if oldProfileURL != "" && oldProfileURL != updated.ProfileURL {
		s.files.Release(ctx, oldProfileURL)
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	u, err := s.store.ByID(ctx, id)
	if err != nil {
		return err
	}
	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.files.Release(ctx, append(media.URLs(removed), u.ProfileURL)...)
	return nil
}

func (s *Service) Search(ctx context.Context, q string) ([]Public, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperr.Validation("username query is required")
	}
	return s.store.Search(ctx, q, searchLimit)
}

// ForgotPassword issues a reset code. It reports success for unknown
// emails too, so the endpoint cannot be used to discover accounts.
func (s *Service) ForgotPassword(ctx context.Context, req *ForgotPasswordRequest) error {
	_, err := s.store.ByLogin(ctx, "", req.Email)
	if apperr.KindOf(err) == apperr.KindNotFound {
		logging.Debug().Str("email", req.Email).Msg("reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	code, err := newCode()
	if err != nil {
		return apperr.Persistence("generate reset code", err)
	}
	if err := s.codes.Save(ctx, req.Email, code); err != nil {
		return apperr.Persistence("store reset code", err)
	}
	if err := s.sender.SendResetCode(ctx, req.Email, code); err != nil {
		return apperr.Persistence("send reset code", err)
	}
	return nil
}

var errBadCode = apperr.Validation("invalid or expired code")

func (s *Service) VerifyCode(ctx context.Context, req *VerifyCodeRequest) error {
	ok, err := s.codes.Check(ctx, req.Email, req.Code)
	if err != nil {
		return apperr.Persistence("check reset code", err)
	}
	if !ok {
		return errBadCode
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, req *ResetPasswordRequest) error {
	ok, err := s.codes.Consume(ctx, req.Email, req.Code)
	if err != nil {
		return apperr.Persistence("consume reset code", err)
	}
	if !ok {
		return errBadCode
	}
	hashed, err := s.hash(req.Password)
	if err != nil {
		return err
	}
	err = s.store.UpdatePasswordByEmail(ctx, req.Email, hashed)
	if errors.Is(err, apperr.NotFound("")) {
		return errBadCode
	}
	return err
}
