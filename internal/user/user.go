package user

import (
	"context"
	"errors"
	"time"
)

type ID string

var ErrNotFound = errors.New("user not found")

type User struct {
	ID           ID
	Email        string
	FullName     string
	PasswordHash string
	AvatarRef    string
	CreatedAt    time.Time
}

type Repository interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id ID) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByIDs(ctx context.Context, ids []ID) ([]User, error)
	ListExcept(ctx context.Context, id ID) ([]User, error)
	Exists(ctx context.Context, id ID) (bool, error)
	UpdateAvatar(ctx context.Context, id ID, avatarRef string) error
}
