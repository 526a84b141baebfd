// Package users registers and authenticates email/password accounts.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/maykecorrea/dressup/internal/infra"
	"github.com/maykecorrea/dressup/internal/sqlinline"
)

var (
	ErrEmailTaken         = errors.New("users: email already registered")
	ErrInvalidCredentials = errors.New("users: invalid email or password")
	ErrNotFound           = errors.New("users: not found")
)

// User is the public view of an account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Locale    string    `json:"locale,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SignUp holds the fields accepted at registration.
type SignUp struct {
	Email    string
	Password string
	Name     string
	Locale   string
}

type Store struct {
	sql  infra.SQLExecutor
	cost int
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql, cost: bcrypt.DefaultCost}
}

// Register hashes the password and inserts the account.
func (s *Store) Register(ctx context.Context, in SignUp) (User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return User{}, ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	var u User
	row := s.sql.QueryRow(ctx, sqlinline.QInsertUser, uuid.NewString(), email, string(hash), name, strings.TrimSpace(in.Locale))
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Locale, &u.CreatedAt); err != nil {
		if infra.IsUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("users: insert: %w", err)
	}
	return u, nil
}

// Authenticate returns the account when the password matches.
func (s *Store) Authenticate(ctx context.Context, email, password string) (User, error) {
	var (
		u    User
		hash string
	)
	row := s.sql.QueryRow(ctx, sqlinline.QSelectUserByEmail, strings.TrimSpace(email))
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Locale, &u.CreatedAt, &hash); err != nil {
		if infra.IsNoRows(err) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, fmt.Errorf("users: lookup: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Store) ByID(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}
	var u User
	row := s.sql.QueryRow(ctx, sqlinline.QSelectUserByID, id)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Locale, &u.CreatedAt); err != nil {
		if infra.IsNoRows(err) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("users: lookup: %w", err)
	}
	return u, nil
}
