// Package presence tracks which users currently hold live connections.
// State is process-local and rebuilt empty on restart; presence is
// best-effort, not authoritative history.
package presence

import (
	"sync"

	"github.com/pigeonchat/pigeon/internal/user"
)

// ConnID identifies one live connection. A user may hold many at once.
type ConnID string

type Registry struct {
	mu     sync.RWMutex
	byUser map[user.ID]map[ConnID]struct{}
	byConn map[ConnID]user.ID
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[user.ID]map[ConnID]struct{}),
		byConn: make(map[ConnID]user.ID),
	}
}

// Register adds the connection to the user's set. It reports whether the
// user just came online (this was their first live connection).
func (r *Registry) Register(userID user.ID, connID ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.byUser[userID]
	if conns == nil {
		conns = make(map[ConnID]struct{})
		r.byUser[userID] = conns
	}
	wasOffline := len(conns) == 0
	conns[connID] = struct{}{}
	r.byConn[connID] = userID
	return wasOffline
}

// Unregister removes the connection. It reports whether the user just went
// offline (their connection set became empty). Unknown connections are a
// no-op.
func (r *Registry) Unregister(connID ConnID) (user.ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)

	conns := r.byUser[userID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, userID)
		return userID, true
	}
	return userID, false
}

// ConnectionsFor returns the user's live connection ids, possibly empty.
func (r *Registry) ConnectionsFor(userID user.ID) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]ConnID, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}

func (r *Registry) IsOnline(userID user.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

func (r *Registry) OnlineUserIDs() []user.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]user.ID, 0, len(r.byUser))
	for id := range r.byUser {
		out = append(out, id)
	}
	return out
}

func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
