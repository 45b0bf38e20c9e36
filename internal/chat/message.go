package chat

import (
	"context"
	"errors"
	"time"

	"github.com/pigeonchat/pigeon/internal/user"
)

type ID string

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrSelfMessage  = errors.New("cannot send messages to yourself")
	ErrForbidden    = errors.New("not allowed")
	ErrNotFound     = errors.New("message not found")
)

// Message is a direct message between two users. SenderID and ReceiverID are
// fixed at creation; only the sender may change Text afterwards.
type Message struct {
	ID         ID
	SenderID   user.ID
	ReceiverID user.ID
	Text       string
	ImageRef   string
	CreatedAt  time.Time
	UpdatedAt  *time.Time
}

type Repository interface {
	Create(ctx context.Context, msg Message) error
	GetByID(ctx context.Context, id ID) (Message, error)

	// UpdateText sets the text and updated_at of the message in a single
	// guarded write. Returns ErrNotFound if no message has the id and
	// ErrForbidden if the message exists but sender does not own it.
	UpdateText(ctx context.Context, id ID, sender user.ID, text string, updatedAt time.Time) (Message, error)

	// DeleteBySender removes the message in a single guarded write and
	// returns the deleted row. Errors as UpdateText.
	DeleteBySender(ctx context.Context, id ID, sender user.ID) (Message, error)

	// ListBetween returns every message exchanged between a and b, in
	// either direction, ordered by created_at ascending.
	ListBetween(ctx context.Context, a, b user.ID) ([]Message, error)
}
