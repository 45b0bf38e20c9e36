package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/pigeonchat/pigeon/internal/user"
)

// Summary is the most recent message between the viewer and one partner,
// joined with the partner's profile. It is derived state: recomputed from the
// message set, never stored independently.
type Summary struct {
	PartnerID           user.ID   `json:"partner_id"`
	PartnerName         string    `json:"partner_name"`
	PartnerAvatarRef    string    `json:"partner_avatar_ref,omitempty"`
	LastMessageText     string    `json:"last_message_text,omitempty"`
	LastMessageImageRef string    `json:"last_message_image_ref,omitempty"`
	LastMessageAt       time.Time `json:"last_message_at"`
	LastMessageSenderID user.ID   `json:"last_message_sender_id"`
}

// Entry is a summary before the profile join: the partner id plus the
// fields of the newest message in the pair.
type Entry struct {
	PartnerID           user.ID
	LastMessageText     string
	LastMessageImageRef string
	LastMessageAt       time.Time
	LastMessageSenderID user.ID
}

// Repository computes, per viewer, the newest message per counterparty,
// ordered by that message's created_at descending (ties by id descending).
type Repository interface {
	PartnerEntries(ctx context.Context, viewer user.ID) ([]Entry, error)
}

var ErrCacheMiss = errors.New("cache miss")

// Cache stores computed summary lists per viewer. Get returns ErrCacheMiss
// when the viewer has no cached list.
//
// Writes are epoch-guarded: the caller reads Epoch before computing the list
// and hands it back to Set. Invalidate bumps the viewer's epoch, so a Set
// carrying a pre-invalidation epoch lands on a key no Get will ever read
// again. Without the guard, a list computed before a concurrent mutation
// could be stored after that mutation's invalidation and served stale for
// the full TTL.
type Cache interface {
	Get(ctx context.Context, viewer user.ID) ([]Summary, error)
	Epoch(ctx context.Context, viewer user.ID) (int64, error)
	Set(ctx context.Context, viewer user.ID, epoch int64, sums []Summary) error
	Invalidate(ctx context.Context, viewers ...user.ID) error
}
