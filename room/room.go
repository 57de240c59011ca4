// Package room implements the per-room current-state store (§4.C):
// membership, room summary fields, sort-order cursors, and the
// (event_type, state_key) -> Event projection.
package room

import (
	"sync"

	"github.com/matrixgo/sdk/event"
	"github.com/matrixgo/sdk/internal/clog"
)

var log = clog.For("room")

// Membership is the viewing client's relationship to a room.
type Membership string

const (
	MembershipJoin   Membership = "join"
	MembershipInvite Membership = "invite"
	MembershipLeave  Membership = "leave"
)

// Summary carries the sync response's room summary fields (§3).
type Summary struct {
	Heroes             []string
	JoinedMemberCount  int
	InvitedMemberCount int
}

// Room is the client's live view of one room's current state (§3). Per
// §9's cyclic-reference note it holds no pointer back to its owning
// Client; callers thread the Client/Timeline they need as parameters.
type Room struct {
	mu sync.RWMutex

	ID         string
	Membership Membership
	PrevBatch  string

	HighlightCount    int
	NotificationCount int
	Summary           Summary

	states          map[string]map[string]*event.Event
	roomAccountData map[string]*event.Event
	ephemerals      map[string]*event.Event

	newCursor *event.Cursor
	oldCursor *event.Cursor

	onUpdate []func(*Room)
}

// New constructs an empty Room, its sort-order cursors starting at zero.
func New(id string) *Room {
	return &Room{
		ID:              id,
		states:          make(map[string]map[string]*event.Event),
		roomAccountData: make(map[string]*event.Event),
		ephemerals:      make(map[string]*event.Event),
		newCursor:       event.NewForwardCursor(event.SortOrder{}),
		oldCursor:       event.NewBackwardCursor(event.SortOrder{}),
	}
}

// OnUpdate registers a callback invoked whenever the room's counters,
// summary, or membership change. Late subscribers only see future calls
// (§5 Broadcast streams design note).
func (r *Room) OnUpdate(fn func(*Room)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUpdate = append(r.onUpdate, fn)
}

func (r *Room) notifyUpdate() {
	for _, fn := range r.onUpdate {
		fn(r)
	}
}

// NextNewSortOrder returns the next ascending order for a freshly arriving
// timeline/state event.
func (r *Room) NextNewSortOrder() event.SortOrder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newCursor.Take()
}

// NextOldSortOrder returns the next descending order for a backfilled
// (history) event.
func (r *Room) NextOldSortOrder() event.SortOrder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.oldCursor.Take()
}

// ResetSortOrder rebases both cursors, invoked when a limited-timeline gap
// is reported so subsequently ingested events receive fresh monotone
// ordering disjoint from history (§4.C).
func (r *Room) ResetSortOrder() {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Rebase forward of the highest order seen so far, never reusing a
	// value that could compare equal/less than something already stored.
	next := r.newCursor.Peek()
	r.newCursor.Reset(event.SortOrder{Major: next.Major + 1})
	r.oldCursor.Reset(event.SortOrder{Major: next.Major})
}

// CursorSnapshot is the persistable state of both sort-order cursors
// (§4.C update_sort_order).
type CursorSnapshot struct {
	NewMajor, NewMinor int64
	OldMajor, OldMinor int64
}

// Snapshot returns the current cursor state for persistence.
func (r *Room) Snapshot() CursorSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, o := r.newCursor.Peek(), r.oldCursor.Peek()
	return CursorSnapshot{NewMajor: n.Major, NewMinor: n.Minor, OldMajor: o.Major, OldMinor: o.Minor}
}

// Restore rehydrates cursor state from a previous Snapshot (store hydration).
func (r *Room) Restore(s CursorSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.newCursor.Reset(event.SortOrder{Major: s.NewMajor, Minor: s.NewMinor})
	r.oldCursor.Reset(event.SortOrder{Major: s.OldMajor, Minor: s.OldMinor})
}
