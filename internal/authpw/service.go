// Package authpw provides username/password registration and sign-in.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"diocese/api/internal/rbac"
	"diocese/api/internal/store"
	"diocese/api/internal/util"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingFields      = errors.New("username, email and password are required")
	ErrWeakPassword       = errors.New("password must be at least 8 characters and contain a letter and a digit")
	ErrInvalidEmail       = errors.New("email address is not valid")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

const minPasswordLength = 8

// UserStore is the subset of the repository the credential service needs.
type UserStore interface {
	CountUsers(ctx context.Context) (int, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	InsertUser(ctx context.Context, user store.User) error
}

type Service struct {
	store UserStore
	cost  int
}

func NewService(store UserStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// Register creates an account. The first account becomes an admin, later
// accounts start as editors.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (store.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if username == "" || email == "" || req.Password == "" {
		return store.User{}, ErrMissingFields
	}
	if !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@") {
		return store.User{}, ErrInvalidEmail
	}
	if err := ValidatePassword(req.Password); err != nil {
		return store.User{}, err
	}

	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return store.User{}, ErrUsernameTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return store.User{}, fmt.Errorf("lookup username: %w", err)
	}
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return store.User{}, ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return store.User{}, fmt.Errorf("lookup email: %w", err)
	}

	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return store.User{}, fmt.Errorf("count users: %w", err)
	}
	role := rbac.RoleEditor
	if count == 0 {
		role = rbac.RoleAdmin
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         string(role),
	}
	if err := s.store.InsertUser(ctx, user); err != nil {
		var dup *store.UniqueViolation
		if errors.As(err, &dup) {
			if strings.Contains(dup.Constraint, "email") {
				return store.User{}, ErrEmailTaken
			}
			return store.User{}, ErrUsernameTaken
		}
		return store.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// SignIn accepts either a username or an email address as identifier.
func (s *Service) SignIn(ctx context.Context, identifier, password string) (store.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	var (
		user store.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.store.GetUserByEmail(ctx, strings.ToLower(identifier))
	} else {
		user, err = s.store.GetUserByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, ErrInvalidCredentials
		}
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrWeakPassword
	}
	return nil
}
