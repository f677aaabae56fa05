package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"medoai/internal/models"
)

const minPasswordLen = 6

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrUserNotFound       = errors.New("user not found")
)

// CreateAnonymous registers a user with no credentials.
func (s *Service) CreateAnonymous(ctx context.Context) (*models.User, error) {
	user := &models.User{
		ID:          uuid.NewString(),
		IsAnonymous: true,
		CreatedAt:   s.now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, is_anonymous, created_at) VALUES (?, NULL, NULL, ?, ?)`,
		user.ID, true, user.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("create anonymous user: %w", err)
	}
	return user, nil
}

// SignUp creates an email account. The password is stored as a bcrypt hash.
func (s *Service) SignUp(ctx context.Context, email, password string) (*models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, is_anonymous, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, false, user.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SignIn checks email credentials and returns the user.
func (s *Service) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, is_anonymous, created_at FROM users WHERE email = ?`, email,
	))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, is_anonymous, created_at FROM users WHERE id = ?`, id,
	))
}

func (s *Service) scanUser(row *sql.Row) (*models.User, error) {
	var (
		user  models.User
		email sql.NullString
		hash  sql.NullString
	)
	if err := row.Scan(&user.ID, &email, &hash, &user.IsAnonymous, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.Email = email.String
	user.PasswordHash = hash.String
	return &user, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
