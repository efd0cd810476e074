package users

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/joao-fontenele/storefront-api/internal/domain"
)

const (
	minPasswordLength = 6
	maxNameLength     = 49
)

var errBadCredentials = domain.NewValidationError("non_field_errors", "Unable to authenticate with provided credentials")

type Store interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, u *domain.User) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

type TokenIssuer interface {
	Issue(user *domain.User) (string, error)
}

type Service struct {
	store    Store
	tokens   TokenIssuer
	hashCost int
	now      func() time.Time
}

func NewService(store Store, tokens TokenIssuer) *Service {
	return &Service{
		store:    store,
		tokens:   tokens,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
}

type Registration struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

// Profile is a partial update of the caller's own account. Nil fields are
// left as they are.
type Profile struct {
	Email     *string `json:"email"`
	Name      *string `json:"name"`
	Password  *string `json:"password"`
	Password2 *string `json:"password2"`
}

func (s *Service) Register(ctx context.Context, reg Registration) (*domain.User, error) {
	email, err := normalizeEmail(reg.Email)
	if err != nil {
		return nil, err
	}
	if err := validateName(reg.Name); err != nil {
		return nil, err
	}
	if err := validatePasswords(reg.Password, reg.Password2); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:        email,
		Name:         reg.Name,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks credentials and returns a bearer token. Unknown email, wrong
// password and inactive account are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.store.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return "", fmt.Errorf("get user by email: %w", err)
	}
	if user == nil || !user.IsActive {
		return "", errBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", errBadCredentials
	}

	now := s.now().UTC()
	if err := s.store.TouchLastLogin(ctx, user.ID, now); err != nil {
		return "", fmt.Errorf("touch last login: %w", err)
	}
	user.LastLogin = &now

	return s.tokens.Issue(user)
}

func (s *Service) Me(ctx context.Context, actor domain.Actor) (*domain.User, error) {
	user, err := s.store.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", actor.UserID, err)
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *Service) UpdateMe(ctx context.Context, actor domain.Actor, p Profile) (*domain.User, error) {
	user, err := s.Me(ctx, actor)
	if err != nil {
		return nil, err
	}

	if p.Email != nil {
		email, err := normalizeEmail(*p.Email)
		if err != nil {
			return nil, err
		}
		user.Email = email
	}
	if p.Name != nil {
		if err := validateName(*p.Name); err != nil {
			return nil, err
		}
		user.Name = *p.Name
	}
	if p.Password != nil || p.Password2 != nil {
		var password, password2 string
		if p.Password != nil {
			password = *p.Password
		}
		if p.Password2 != nil {
			password2 = *p.Password2
		}
		if err := validatePasswords(password, password2); err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = string(hash)
	}

	if err := s.store.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureStaff creates an active staff account for email unless one exists.
// An existing account is promoted to staff but keeps its password.
func (s *Service) EnsureStaff(ctx context.Context, email, name, password string) (*domain.User, error) {
	existing, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if existing != nil {
		if existing.IsStaff && existing.IsActive {
			return existing, nil
		}
		existing.IsStaff = true
		existing.IsActive = true
		if err := s.store.Update(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	user, err := s.Register(ctx, Registration{Email: email, Name: name, Password: password, Password2: password})
	if err != nil {
		return nil, err
	}
	user.IsStaff = true
	if err := s.store.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// normalizeEmail lower-cases the domain part, leaving the local part as given.
func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", domain.NewValidationError("email", "this field is required")
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", domain.NewValidationError("email", "enter a valid email address")
	}
	at := strings.LastIndex(raw, "@")
	return raw[:at] + "@" + strings.ToLower(raw[at+1:]), nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return domain.NewValidationError("name", "this field may not be blank")
	}
	if len(name) > maxNameLength {
		return domain.NewValidationError("name", fmt.Sprintf("ensure this field has no more than %d characters", maxNameLength))
	}
	return nil
}

func validatePasswords(password, password2 string) error {
	if len(password) < minPasswordLength {
		return domain.NewValidationError("password", fmt.Sprintf("ensure this field has at least %d characters", minPasswordLength))
	}
	if password != password2 {
		return domain.NewValidationError("password", "Passwords must match.")
	}
	return nil
}
