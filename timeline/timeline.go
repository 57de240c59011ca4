// Package timeline maintains the ordered window of events for one room
// plus the aggregation index edits/reactions/replies are resolved against
// (§4.D). Not fully specified by the source spec; this realizes the core
// contract: aggregatedEvents indexed by target event_id and relation type,
// and get_event_by_id.
package timeline

import (
	"sort"
	"sync"

	"github.com/matrixgo/sdk/event"
)

// Timeline holds one room's ordered events and the relation index built up
// as annotated/edited events arrive.
type Timeline struct {
	mu sync.RWMutex

	roomID string
	events map[string]*event.Event // event_id -> Event
	order  []string                // event IDs in ascending SortOrder

	// aggregated[targetEventID][relationType] -> related events.
	aggregated map[string]map[string][]*event.Event
}

// New constructs an empty Timeline for roomID.
func New(roomID string) *Timeline {
	return &Timeline{
		roomID:     roomID,
		events:     make(map[string]*event.Event),
		aggregated: make(map[string]map[string][]*event.Event),
	}
}

// Add inserts ev into the timeline (ordered by SortOrder) and, if ev
// carries a relation, indexes it under its target event for later
// aggregation lookups. Re-adding an event with the same ID replaces it in
// place without duplicating the order slice.
func (t *Timeline) Add(ev *event.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.events[ev.EventID]; !exists {
		t.insertOrderedLocked(ev)
	}
	t.events[ev.EventID] = ev

	relType := ev.RelationshipType()
	targetID, ok := ev.RelationshipEventID()
	if relType == "" || !ok {
		return
	}
	byType, exists := t.aggregated[targetID]
	if !exists {
		byType = make(map[string][]*event.Event)
		t.aggregated[targetID] = byType
	}
	for _, existing := range byType[relType] {
		if existing.EventID == ev.EventID {
			return
		}
	}
	byType[relType] = append(byType[relType], ev)
}

func (t *Timeline) insertOrderedLocked(ev *event.Event) {
	i := sort.Search(len(t.order), func(i int) bool {
		return ev.SortOrder.Less(t.events[t.order[i]].SortOrder)
	})
	t.order = append(t.order, "")
	copy(t.order[i+1:], t.order[i:])
	t.order[i] = ev.EventID
}

// GetEventByID returns a previously observed event, or nil.
func (t *Timeline) GetEventByID(eventID string) *event.Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.events[eventID]
}

// AggregatedEvents implements event.AggregationSource: returns the
// recorded set of events related to targetEventID by relationType.
func (t *Timeline) AggregatedEvents(targetEventID, relationType string) []*event.Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	byType, ok := t.aggregated[targetEventID]
	if !ok {
		return nil
	}
	out := make([]*event.Event, len(byType[relationType]))
	copy(out, byType[relationType])
	return out
}

// Events returns a snapshot of the timeline in ascending sort order.
func (t *Timeline) Events() []*event.Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*event.Event, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.events[id])
	}
	return out
}

// ApplyRedaction marks the timeline event identified by targetEventID as
// redacted (the Timeline component's half of §4.C's redaction fan-out; the
// Room component handles state events).
func (t *Timeline) ApplyRedaction(targetEventID string, redactorJSON []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ev, ok := t.events[targetEventID]
	if !ok {
		return false
	}
	return ev.SetRedactionEvent(redactorJSON) == nil
}

// RemoveEvent drops an event from the timeline (e.g. a local send that the
// server never accepted, or a store-driven eviction), matching Database's
// removeEvent operation.
func (t *Timeline) RemoveEvent(eventID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.events, eventID)
	for i, id := range t.order {
		if id == eventID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of events currently held.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}
