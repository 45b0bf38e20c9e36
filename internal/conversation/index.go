package conversation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pigeonchat/pigeon/internal/user"
)

// Index is the read path for conversation lists. It recomputes summaries from
// the message store on demand and fronts the computation with an optional
// cache that is invalidated before any mutation is acknowledged.
type Index struct {
	repo  Repository
	users user.Repository
	cache Cache
	log   *slog.Logger
}

func NewIndex(repo Repository, users user.Repository, cache Cache, log *slog.Logger) *Index {
	if log == nil {
		log = slog.Default()
	}
	return &Index{
		repo:  repo,
		users: users,
		cache: cache,
		log:   log,
	}
}

// SummariesFor returns the viewer's conversation list, newest pair first.
// Partners whose profile no longer resolves are excluded rather than failing
// the whole list. Cache failures degrade to a recompute.
func (ix *Index) SummariesFor(ctx context.Context, viewer user.ID) ([]Summary, error) {
	if ix.repo == nil || ix.users == nil {
		return nil, errors.New("repository and users are required")
	}
	if viewer == "" {
		return nil, errors.New("viewer is required")
	}

	// The epoch is read before the store query: a mutation that commits
	// during the recompute bumps it, so the Set below lands on a dead key
	// instead of storing the stale list.
	cacheable := false
	var epoch int64
	if ix.cache != nil {
		cached, err := ix.cache.Get(ctx, viewer)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			ix.log.Warn("summary cache read failed", "viewer", string(viewer), "error", err)
		}
		if epoch, err = ix.cache.Epoch(ctx, viewer); err == nil {
			cacheable = true
		} else {
			ix.log.Warn("summary cache epoch read failed", "viewer", string(viewer), "error", err)
		}
	}

	entries, err := ix.repo.PartnerEntries(ctx, viewer)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []Summary{}, nil
	}

	ids := make([]user.ID, len(entries))
	for i, e := range entries {
		ids[i] = e.PartnerID
	}
	partners, err := ix.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	profiles := make(map[user.ID]user.User, len(partners))
	for _, p := range partners {
		profiles[p.ID] = p
	}

	sums := make([]Summary, 0, len(entries))
	for _, e := range entries {
		p, ok := profiles[e.PartnerID]
		if !ok {
			continue
		}
		sums = append(sums, Summary{
			PartnerID:           e.PartnerID,
			PartnerName:         p.FullName,
			PartnerAvatarRef:    p.AvatarRef,
			LastMessageText:     e.LastMessageText,
			LastMessageImageRef: e.LastMessageImageRef,
			LastMessageAt:       e.LastMessageAt,
			LastMessageSenderID: e.LastMessageSenderID,
		})
	}

	if cacheable {
		if err := ix.cache.Set(ctx, viewer, epoch, sums); err != nil {
			ix.log.Warn("summary cache write failed", "viewer", string(viewer), "error", err)
		}
	}
	return sums, nil
}

// InvalidatePair drops both participants' cached lists. Runs synchronously on
// the mutation path, before the mutation is acknowledged or fanned out.
func (ix *Index) InvalidatePair(ctx context.Context, a, b user.ID) {
	if ix.cache == nil {
		return
	}
	if err := ix.cache.Invalidate(ctx, a, b); err != nil {
		ix.log.Warn("summary cache invalidate failed", "error", err)
	}
}
