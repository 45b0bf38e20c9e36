package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pigeonchat/pigeon/internal/user"
)

// Directory resolves whether a user id refers to a known user.
type Directory interface {
	Exists(ctx context.Context, id user.ID) (bool, error)
}

// Images removes externally stored message attachments. Failures are
// best-effort: a message delete succeeds even when the image delete fails.
type Images interface {
	Delete(ctx context.Context, ref string) error
}

// Invalidator drops cached conversation summaries for a participant pair.
// It runs before a mutation is acknowledged or fanned out, so cached
// summaries can never outlive the message set they were derived from.
type Invalidator interface {
	InvalidatePair(ctx context.Context, a, b user.ID)
}

type Service struct {
	repo       Repository
	directory  Directory
	dispatcher Dispatcher
	images     Images
	cache      Invalidator
	log        *slog.Logger
	idGen      func() ID
	now        func() time.Time
}

func NewService(repo Repository, directory Directory, dispatcher Dispatcher, images Images, cache Invalidator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:       repo,
		directory:  directory,
		dispatcher: dispatcher,
		images:     images,
		cache:      cache,
		log:        log,
		idGen: func() ID {
			return ID(uuid.NewString())
		},
		now: time.Now,
	}
}

func (s *Service) Send(ctx context.Context, sender, receiver user.ID, text, imageRef string) (Message, error) {
	if s.repo == nil || s.directory == nil {
		return Message{}, errors.New("repository and directory are required")
	}
	if sender == "" || receiver == "" {
		return Message{}, ErrInvalidInput
	}

	text = strings.TrimSpace(text)
	if text == "" && imageRef == "" {
		return Message{}, ErrInvalidInput
	}
	if sender == receiver {
		return Message{}, ErrSelfMessage
	}

	exists, err := s.directory.Exists(ctx, receiver)
	if err != nil {
		return Message{}, err
	}
	if !exists {
		return Message{}, ErrNotFound
	}

	msg := Message{
		ID:         s.idGen(),
		SenderID:   sender,
		ReceiverID: receiver,
		Text:       text,
		ImageRef:   imageRef,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return Message{}, err
	}

	s.invalidate(ctx, sender, receiver)
	s.dispatch(MessageSent{Message: msg})
	return msg, nil
}

func (s *Service) Update(ctx context.Context, id ID, requester user.ID, newText string) (Message, error) {
	if s.repo == nil {
		return Message{}, errors.New("repository is required")
	}
	if id == "" || requester == "" {
		return Message{}, ErrInvalidInput
	}

	newText = strings.TrimSpace(newText)
	if newText == "" {
		return Message{}, ErrInvalidInput
	}

	msg, err := s.repo.UpdateText(ctx, id, requester, newText, s.now().UTC())
	if err != nil {
		return Message{}, err
	}

	s.invalidate(ctx, msg.SenderID, msg.ReceiverID)
	s.dispatch(MessageUpdated{Message: msg})
	return msg, nil
}

func (s *Service) Delete(ctx context.Context, id ID, requester user.ID) (ID, error) {
	if s.repo == nil {
		return "", errors.New("repository is required")
	}
	if id == "" || requester == "" {
		return "", ErrInvalidInput
	}

	msg, err := s.repo.DeleteBySender(ctx, id, requester)
	if err != nil {
		return "", err
	}

	if msg.ImageRef != "" && s.images != nil {
		if err := s.images.Delete(ctx, msg.ImageRef); err != nil {
			s.log.Warn("image delete failed", "message_id", string(id), "ref", msg.ImageRef, "error", err)
		}
	}

	s.invalidate(ctx, msg.SenderID, msg.ReceiverID)
	s.dispatch(MessageDeleted{MessageID: msg.ID, SenderID: msg.SenderID, ReceiverID: msg.ReceiverID})
	return msg.ID, nil
}

func (s *Service) MessagesBetween(ctx context.Context, a, b user.ID) ([]Message, error) {
	if s.repo == nil {
		return nil, errors.New("repository is required")
	}
	if a == "" || b == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListBetween(ctx, a, b)
}

func (s *Service) invalidate(ctx context.Context, a, b user.ID) {
	if s.cache != nil {
		s.cache.InvalidatePair(ctx, a, b)
	}
}

func (s *Service) dispatch(evt Event) {
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(evt)
	}
}
