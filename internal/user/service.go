package user

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidInput = errors.New("invalid input")

type Service struct {
	repo  Repository
	idGen func() ID
	now   func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		idGen: func() ID {
			return ID(uuid.NewString())
		},
		now: time.Now,
	}
}

func (s *Service) Create(ctx context.Context, email, fullName, passwordHash string) (User, error) {
	if s.repo == nil {
		return User{}, errors.New("repository is required")
	}

	addr := normalizeEmail(email)
	if addr == "" {
		return User{}, ErrInvalidInput
	}
	name := strings.TrimSpace(fullName)
	if name == "" || strings.TrimSpace(passwordHash) == "" {
		return User{}, ErrInvalidInput
	}

	u := User{
		ID:           s.idGen(),
		Email:        addr,
		FullName:     name,
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.repo.Create(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Service) GetByID(ctx context.Context, id ID) (User, error) {
	if s.repo == nil {
		return User{}, errors.New("repository is required")
	}
	if id == "" {
		return User{}, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	if s.repo == nil {
		return User{}, errors.New("repository is required")
	}
	addr := normalizeEmail(email)
	if addr == "" {
		return User{}, ErrInvalidInput
	}
	return s.repo.GetByEmail(ctx, addr)
}

// Contacts returns every known user except the requester, for starting a
// conversation with someone the requester has never messaged.
func (s *Service) Contacts(ctx context.Context, requester ID) ([]User, error) {
	if s.repo == nil {
		return nil, errors.New("repository is required")
	}
	if requester == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListExcept(ctx, requester)
}

func (s *Service) Exists(ctx context.Context, id ID) (bool, error) {
	if s.repo == nil {
		return false, errors.New("repository is required")
	}
	if id == "" {
		return false, nil
	}
	return s.repo.Exists(ctx, id)
}

func (s *Service) SetAvatar(ctx context.Context, id ID, avatarRef string) error {
	if s.repo == nil {
		return errors.New("repository is required")
	}
	if id == "" || strings.TrimSpace(avatarRef) == "" {
		return ErrInvalidInput
	}
	return s.repo.UpdateAvatar(ctx, id, avatarRef)
}

func normalizeEmail(email string) string {
	addr := strings.ToLower(strings.TrimSpace(email))
	if addr == "" {
		return ""
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return ""
	}
	return addr
}
