package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pigeonchat/pigeon/internal/user"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTokenExpired = errors.New("token expired")
)

const minPasswordLen = 8

type Session struct {
	Token     string
	UserID    user.ID
	FullName  string
	ExpiresAt time.Time
}

type Service struct {
	users    *user.Service
	tokens   *tokenStore
	now      func() time.Time
	tokenTTL time.Duration
}

func NewService(users *user.Service) *Service {
	return &Service{
		users:    users,
		tokens:   newTokenStore(),
		now:      time.Now,
		tokenTTL: 24 * time.Hour,
	}
}

func (s *Service) Register(ctx context.Context, email, fullName, password string) (user.User, Session, error) {
	if s.users == nil {
		return user.User{}, Session{}, errors.New("user service is required")
	}
	if strings.TrimSpace(email) == "" || strings.TrimSpace(fullName) == "" {
		return user.User{}, Session{}, ErrInvalidInput
	}
	if len(password) < minPasswordLen {
		return user.User{}, Session{}, ErrInvalidInput
	}

	hash, err := hashPassword(password)
	if err != nil {
		return user.User{}, Session{}, err
	}

	created, err := s.users.Create(ctx, email, fullName, hash)
	if err != nil {
		return user.User{}, Session{}, err
	}

	session, err := s.issue(created.ID, created.FullName)
	if err != nil {
		return user.User{}, Session{}, err
	}
	return created, session, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (user.User, Session, error) {
	if s.users == nil {
		return user.User{}, Session{}, errors.New("user service is required")
	}
	if strings.TrimSpace(email) == "" || password == "" {
		return user.User{}, Session{}, ErrInvalidInput
	}

	found, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return user.User{}, Session{}, ErrUnauthorized
	}
	if found.PasswordHash == "" {
		return user.User{}, Session{}, ErrUnauthorized
	}
	if err := checkPassword(found.PasswordHash, password); err != nil {
		return user.User{}, Session{}, ErrUnauthorized
	}

	session, err := s.issue(found.ID, found.FullName)
	if err != nil {
		return user.User{}, Session{}, err
	}
	return found, session, nil
}

func (s *Service) Logout(token string) {
	if strings.TrimSpace(token) == "" {
		return
	}
	s.tokens.revoke(token)
}

func (s *Service) ValidateToken(token string) (Session, error) {
	if strings.TrimSpace(token) == "" {
		return Session{}, ErrUnauthorized
	}
	return s.tokens.validate(s.now(), token)
}

func (s *Service) issue(userID user.ID, fullName string) (Session, error) {
	value, err := randomToken()
	if err != nil {
		return Session{}, err
	}
	session := Session{
		Token:     value,
		UserID:    userID,
		FullName:  fullName,
		ExpiresAt: s.now().Add(s.tokenTTL),
	}
	s.tokens.store(session)
	return session, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(hashed, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password))
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
