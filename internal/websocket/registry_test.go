package websocket

import (
	"fmt"
	"sync"
	"testing"

	"edu-notify/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	id, user string
	registry *Registry

	mu     sync.Mutex
	events []models.LiveEvent
	closed bool
}

func (f *fakeChannel) ID() string     { return f.id }
func (f *fakeChannel) UserID() string { return f.user }

func (f *fakeChannel) Push(e models.LiveEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return models.ErrTransientDelivery
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeChannel) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	if f.registry != nil {
		f.registry.Unregister(f.id)
	}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	a := &fakeChannel{id: "s1", user: "u1"}
	b := &fakeChannel{id: "s2", user: "u1"}
	c := &fakeChannel{id: "s3", user: "u2"}

	r.Register("u1", "s1", a)
	r.Register("u1", "s2", b)
	r.Register("u2", "s3", c)

	assert.Len(t, r.SessionsFor("u1"), 2)
	assert.Len(t, r.SessionsFor("u2"), 1)
	assert.Empty(t, r.SessionsFor("nobody"))
	assert.Equal(t, 3, r.ConnectionsCount())
	assert.Equal(t, 2, r.ActiveUsersCount())

	r.Unregister("s1")
	r.Unregister("s1")
	r.Unregister("unknown")

	sessions := r.SessionsFor("u1")
	require.Len(t, sessions, 1)
	assert.Equal(t, "s2", sessions[0].ID())

	r.Unregister("s2")
	assert.Empty(t, r.SessionsFor("u1"))
	assert.Equal(t, 1, r.ActiveUsersCount())
}

func TestRegistrySnapshotIsIsolated(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", "s1", &fakeChannel{id: "s1", user: "u1"})

	snapshot := r.SessionsFor("u1")
	r.Register("u1", "s2", &fakeChannel{id: "s2", user: "u1"})
	r.Unregister("s1")

	require.Len(t, snapshot, 1)
	assert.Equal(t, "s1", snapshot[0].ID())
}

func TestRegistryMovesSessionBetweenUsers(t *testing.T) {
	r := NewRegistry()
	ch := &fakeChannel{id: "s1"}
	r.Register("u1", "s1", ch)
	r.Register("u2", "s1", ch)

	assert.Empty(t, r.SessionsFor("u1"))
	assert.Len(t, r.SessionsFor("u2"), 1)
	assert.Equal(t, 1, r.ConnectionsCount())
}

func TestRegistryConcurrentChurn(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for u := 0; u < 50; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", u)
			for s := 0; s < 20; s++ {
				id := fmt.Sprintf("%s-s%d", user, s)
				r.Register(user, id, &fakeChannel{id: id, user: user})
				for _, ch := range r.SessionsFor(user) {
					assert.Equal(t, user, ch.UserID())
				}
				if s%2 == 0 {
					r.Unregister(id)
				}
			}
		}(u)
	}
	wg.Wait()

	assert.Equal(t, 50*10, r.ConnectionsCount())
	assert.Equal(t, 50, r.ActiveUsersCount())
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry()
	var chans []*fakeChannel
	for i := 0; i < 5; i++ {
		ch := &fakeChannel{id: fmt.Sprintf("s%d", i), user: fmt.Sprintf("u%d", i%2), registry: r}
		chans = append(chans, ch)
		r.Register(ch.user, ch.id, ch)
	}

	r.CloseAll()

	assert.Zero(t, r.ConnectionsCount())
	for _, ch := range chans {
		assert.True(t, ch.closed)
	}
}
