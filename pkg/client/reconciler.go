package client

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrOperationPending rejects a second action on a notification whose
	// previous action has not been confirmed yet.
	ErrOperationPending = errors.New("an operation on this notification is still pending")
	ErrUnknownLocal     = errors.New("notification is not in the local list")
)

// Backend is the part of API the reconciler depends on.
type Backend interface {
	List(ctx context.Context, page, limit int, notificationType NotificationType) (*Page, error)
	MarkRead(ctx context.Context, notificationID string) error
	MarkAllRead(ctx context.Context) (int64, error)
	Delete(ctx context.Context, notificationID string) error
}

type deltaKind int

const (
	deltaRead deltaKind = iota
	deltaDelete
	deltaReadAll
)

// delta is a local change applied before the server confirmed it. flipped
// lists the ids it turned from unread to read and applied is how far it
// lowered the unread counter; the inverse restores exactly those.
type delta struct {
	kind    deltaKind
	id      string
	removed *Notification
	flipped []string
	applied int64
	// cutoff bounds a read-all: loaded or later-fetched notifications created
	// at or before it are covered.
	cutoff time.Time
}

// readAllMark remembers the most recent confirmed read-all.
type readAllMark struct {
	epoch  uint64
	cutoff time.Time
}

// readAllKey marks a pending read-all in the pending map.
const readAllKey = "*"

// Reconciler keeps one user's notification list and unread counter
// consistent across the paginated fetch, live pushes and local actions.
//
// Local actions go through apply → server call → confirm or inverse. Live
// pushes and fetched pages are merged by id, so a notification seen on both
// channels appears once.
type Reconciler struct {
	backend  Backend
	pageSize int
	now      func() time.Time

	mu       sync.Mutex
	items    []Notification
	index    map[string]struct{}
	deleted  map[string]struct{}
	pending  map[string]*delta
	unread   int64
	total    int64
	pages    int64
	loaded   int
	fetchErr error

	// epoch advances on every confirmed action. A fetch issued before the
	// current epoch, or completing while deltas are pending, is stale.
	epoch       uint64
	confirmed   map[string]uint64
	lastReadAll readAllMark
}

func NewReconciler(backend Backend, pageSize int) *Reconciler {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Reconciler{
		backend:   backend,
		pageSize:  pageSize,
		now:       time.Now,
		index:     make(map[string]struct{}),
		deleted:   make(map[string]struct{}),
		pending:   make(map[string]*delta),
		confirmed: make(map[string]uint64),
	}
}

// Items returns a copy of the local list in display order.
func (r *Reconciler) Items() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

func (r *Reconciler) UnreadCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unread
}

// Err is the last fetch failure, cleared by the next successful fetch.
func (r *Reconciler) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetchErr
}

// Retryable reports whether the current fetch failure is worth retrying.
// Authentication failures are not.
func (r *Reconciler) Retryable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetchErr == nil {
		return false
	}
	return !errors.Is(r.fetchErr, ErrUnauthorized) && !errors.Is(r.fetchErr, ErrForbidden)
}

// HasMore reports whether pages beyond the loaded ones exist.
func (r *Reconciler) HasMore() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(r.loaded) < r.pages
}

// Load fetches the first page and merges it.
func (r *Reconciler) Load(ctx context.Context) error {
	return r.fetch(ctx, 1)
}

// LoadMore fetches the page after the last loaded one.
func (r *Reconciler) LoadMore(ctx context.Context) error {
	r.mu.Lock()
	next := r.loaded + 1
	r.mu.Unlock()
	return r.fetch(ctx, next)
}

// Reconnected backfills after the live channel came back. Pushes sent while
// disconnected were lost, so page 1 is fetched again.
func (r *Reconciler) Reconnected(ctx context.Context) error {
	return r.fetch(ctx, 1)
}

func (r *Reconciler) fetch(ctx context.Context, page int) error {
	r.mu.Lock()
	since := r.epoch
	r.mu.Unlock()

	result, err := r.backend.List(ctx, page, r.pageSize, "")

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.fetchErr = err
		return err
	}
	r.fetchErr = nil
	r.merge(result, since)
	if page > r.loaded {
		r.loaded = page
	}
	return nil
}

// merge folds a fetched page into the local list.
//
// A fresh page (no local action pending or confirmed since the request was
// issued) is authoritative: the server's unread count becomes the counter.
// A stale page may predate local actions on any page, so the counter keeps
// its local value and only moves by the changes this page actually shows.
func (r *Reconciler) merge(p *Page, since uint64) {
	stale := len(r.pending) > 0 || r.epoch > since
	unread := p.Pagination.UnreadCount
	r.total = p.Pagination.Total
	r.pages = p.Pagination.Pages

	for _, n := range p.Notifications {
		if r.hidden(n.ID) {
			if !n.IsRead {
				unread--
			}
			continue
		}
		if !n.IsRead && r.coveredByRead(n, since) {
			at := r.now()
			n.IsRead = true
			n.ReadAt = &at
		}

		if i := r.position(n.ID); i >= 0 {
			if stale && r.items[i].IsRead != n.IsRead {
				if n.IsRead {
					r.unread--
				} else {
					r.unread++
				}
			}
			r.items[i] = n
			continue
		}
		r.insert(n)
		if stale && !n.IsRead {
			r.unread++
		}
	}

	if !stale {
		r.unread = unread
	}
	if r.unread < 0 {
		r.unread = 0
	}
}

// hidden reports whether id was deleted locally, confirmed or pending.
func (r *Reconciler) hidden(id string) bool {
	if _, gone := r.deleted[id]; gone {
		return true
	}
	d, ok := r.pending[id]
	return ok && d.kind == deltaDelete
}

// coveredByRead reports whether a local read the page may not reflect yet
// applies to n: a pending read or read-all, or one confirmed after since.
func (r *Reconciler) coveredByRead(n Notification, since uint64) bool {
	if d, ok := r.pending[n.ID]; ok && d.kind == deltaRead {
		return true
	}
	if d, ok := r.pending[readAllKey]; ok && !n.CreatedAt.After(d.cutoff) {
		return true
	}
	if r.confirmed[n.ID] > since {
		return true
	}
	return r.lastReadAll.epoch > since && !n.CreatedAt.After(r.lastReadAll.cutoff)
}

// HandleEvent merges a live push. A notification already in the list (for
// instance from a fetch that raced the push) is ignored.
func (r *Reconciler) HandleEvent(ev LiveEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := ev.Data
	if n.ID == "" {
		return
	}
	if _, ok := r.index[n.ID]; ok {
		return
	}
	if _, gone := r.deleted[n.ID]; gone {
		return
	}
	r.insert(n)
	r.total++
	if !n.IsRead {
		r.unread++
	}
}

// MarkRead marks one notification read: optimistic locally, rolled back if
// the server call fails.
func (r *Reconciler) MarkRead(ctx context.Context, id string) error {
	r.mu.Lock()
	if r.busy(id) {
		r.mu.Unlock()
		return ErrOperationPending
	}
	i := r.position(id)
	if i < 0 {
		r.mu.Unlock()
		return ErrUnknownLocal
	}
	if r.items[i].IsRead {
		r.mu.Unlock()
		return nil
	}
	d := &delta{kind: deltaRead, id: id, flipped: []string{id}}
	if r.applyRead(id) {
		d.applied = 1
	}
	r.pending[id] = d
	r.mu.Unlock()

	err := r.backend.MarkRead(ctx, id)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
	if err != nil {
		r.inverse(d)
		return err
	}
	r.confirm(d)
	return nil
}

// MarkAllRead marks every loaded notification read and zeroes the counter,
// restoring both if the server call fails.
func (r *Reconciler) MarkAllRead(ctx context.Context) error {
	r.mu.Lock()
	if len(r.pending) > 0 {
		r.mu.Unlock()
		return ErrOperationPending
	}
	d := &delta{kind: deltaReadAll, id: readAllKey, applied: r.unread}
	for _, n := range r.items {
		if n.CreatedAt.After(d.cutoff) {
			d.cutoff = n.CreatedAt
		}
		if !n.IsRead {
			d.flipped = append(d.flipped, n.ID)
		}
	}
	r.pending[readAllKey] = d
	for _, id := range d.flipped {
		r.applyRead(id)
	}
	r.unread = 0
	r.mu.Unlock()

	_, err := r.backend.MarkAllRead(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, readAllKey)
	if err != nil {
		r.inverse(d)
		return err
	}
	r.confirm(d)
	return nil
}

// Delete hides a notification locally and on the server, reinserting it in
// its place if the server call fails. A notification the server no longer
// has (deleted from another device) counts as deleted.
func (r *Reconciler) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	if r.busy(id) {
		r.mu.Unlock()
		return ErrOperationPending
	}
	i := r.position(id)
	if i < 0 {
		r.mu.Unlock()
		return ErrUnknownLocal
	}
	removed := r.items[i]
	d := &delta{kind: deltaDelete, id: id, removed: &removed}
	if !removed.IsRead && r.unread > 0 {
		d.applied = 1
		r.unread--
	}
	r.pending[id] = d
	r.remove(i)
	r.total--
	r.mu.Unlock()

	err := r.backend.Delete(ctx, id)
	if errors.Is(err, ErrNotFound) {
		err = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
	if err != nil {
		r.inverse(d)
		return err
	}
	r.confirm(d)
	return nil
}

// confirm replaces a pending delta with the server-acknowledged change.
func (r *Reconciler) confirm(d *delta) {
	r.epoch++
	switch d.kind {
	case deltaRead:
		r.confirmed[d.id] = r.epoch
	case deltaReadAll:
		r.lastReadAll = readAllMark{epoch: r.epoch, cutoff: d.cutoff}
	case deltaDelete:
		r.deleted[d.id] = struct{}{}
	}
}

func (r *Reconciler) busy(id string) bool {
	if _, ok := r.pending[readAllKey]; ok {
		return true
	}
	_, ok := r.pending[id]
	return ok
}

// applyRead flips id to read and reports whether the counter was lowered.
func (r *Reconciler) applyRead(id string) bool {
	i := r.position(id)
	if i < 0 || r.items[i].IsRead {
		return false
	}
	at := r.now()
	r.items[i].IsRead = true
	r.items[i].ReadAt = &at
	if r.unread > 0 {
		r.unread--
		return true
	}
	return false
}

func (r *Reconciler) inverse(d *delta) {
	switch d.kind {
	case deltaRead, deltaReadAll:
		for _, id := range d.flipped {
			r.unmarkRead(id)
		}
	case deltaDelete:
		if _, ok := r.index[d.id]; !ok {
			r.insert(*d.removed)
			r.total++
		}
	}
	r.unread += d.applied
}

func (r *Reconciler) unmarkRead(id string) {
	if i := r.position(id); i >= 0 {
		r.items[i].IsRead = false
		r.items[i].ReadAt = nil
	}
}

func (r *Reconciler) position(id string) int {
	if _, ok := r.index[id]; !ok {
		return -1
	}
	for i := range r.items {
		if r.items[i].ID == id {
			return i
		}
	}
	return -1
}

// insert keeps items sorted by (createdAt desc, id desc).
func (r *Reconciler) insert(n Notification) {
	i := sort.Search(len(r.items), func(i int) bool {
		return n.Before(r.items[i])
	})
	r.items = append(r.items, Notification{})
	copy(r.items[i+1:], r.items[i:])
	r.items[i] = n
	r.index[n.ID] = struct{}{}
}

func (r *Reconciler) remove(i int) {
	delete(r.index, r.items[i].ID)
	r.items = append(r.items[:i], r.items[i+1:]...)
}

// Attach wires a live session into the reconciler: pushes are merged and a
// reconnect triggers a page-1 backfill. Disposing the returned subscription
// detaches both.
func (r *Reconciler) Attach(ctx context.Context, live *LiveSession) *Subscription {
	events := live.OnEvent(r.HandleEvent)
	reconnects := live.OnReconnect(func() {
		go r.Reconnected(ctx)
	})
	return &Subscription{dispose: func() {
		events.Dispose()
		reconnects.Dispose()
	}}
}
