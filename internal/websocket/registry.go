// Package websocket tracks live client sessions and pumps notification
// events to them.
package websocket

import (
	"hash/fnv"
	"sync"

	"edu-notify/internal/models"
)

// Channel is one live transport a user is connected through.
type Channel interface {
	ID() string
	UserID() string
	// Push enqueues an event without blocking. It returns
	// models.ErrTransientDelivery when the channel cannot take it.
	Push(event models.LiveEvent) error
	Close()
}

const shardCount = 32

type shard struct {
	mu    sync.RWMutex
	users map[string]map[string]Channel // userID -> sessionID -> channel
}

// Registry maps users to their live sessions. Users are spread over shards
// so connection churn for one user never blocks lookups for another.
type Registry struct {
	shards [shardCount]*shard
	owners sync.Map // sessionID -> userID
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[string]map[string]Channel)}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.shards[h.Sum32()%shardCount]
}

// Register adds the session under userID. Registering a session id that is
// already known moves it to the new user.
func (r *Registry) Register(userID, sessionID string, ch Channel) {
	if prev, ok := r.owners.Load(sessionID); ok && prev.(string) != userID {
		r.Unregister(sessionID)
	}

	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := s.users[userID]
	if sessions == nil {
		sessions = make(map[string]Channel)
		s.users[userID] = sessions
	}
	sessions[sessionID] = ch
	r.owners.Store(sessionID, userID)
}

// Unregister removes the session. Unknown ids are ignored.
func (r *Registry) Unregister(sessionID string) {
	owner, ok := r.owners.LoadAndDelete(sessionID)
	if !ok {
		return
	}
	userID := owner.(string)

	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessions, ok := s.users[userID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(s.users, userID)
		}
	}
}

// SessionsFor returns a snapshot of the user's channels. The slice is owned
// by the caller.
func (r *Registry) SessionsFor(userID string) []Channel {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.users[userID]
	if len(sessions) == 0 {
		return nil
	}
	out := make([]Channel, 0, len(sessions))
	for _, ch := range sessions {
		out = append(out, ch)
	}
	return out
}

func (r *Registry) ConnectionsCount() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		for _, sessions := range s.users {
			total += len(sessions)
		}
		s.mu.RUnlock()
	}
	return total
}

func (r *Registry) ActiveUsersCount() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.users)
		s.mu.RUnlock()
	}
	return total
}

// CloseAll closes every registered channel. Used on shutdown.
func (r *Registry) CloseAll() {
	var all []Channel
	for _, s := range r.shards {
		s.mu.RLock()
		for _, sessions := range s.users {
			for _, ch := range sessions {
				all = append(all, ch)
			}
		}
		s.mu.RUnlock()
	}
	// Close unregisters, so it must run outside the shard locks.
	for _, ch := range all {
		ch.Close()
	}
}
