package room

import "github.com/matrixgo/sdk/event"

// SetState writes ev into states[type][state_key], but only if ev's
// SortOrder is >= the existing entry's (stale updates dropped with a
// warning) — Testable property 2, §4.C.
func (r *Room) SetState(ev *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setStateLocked(ev)
}

func (r *Room) setStateLocked(ev *event.Event) {
	if ev.StateKey == nil {
		return
	}
	byKey, ok := r.states[ev.Type]
	if !ok {
		byKey = make(map[string]*event.Event)
		r.states[ev.Type] = byKey
	}
	if existing, ok := byKey[*ev.StateKey]; ok && ev.SortOrder.Less(existing.SortOrder) {
		log.WithFields(map[string]interface{}{
			"room": r.ID, "type": ev.Type, "state_key": *ev.StateKey,
		}).Warn("room: dropping stale state update")
		return
	}
	byKey[*ev.StateKey] = ev
}

// GetState reads states[type][state_key] ("" for the typical single-value
// state types).
func (r *Room) GetState(eventType, stateKey string) *event.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byKey, ok := r.states[eventType]
	if !ok {
		return nil
	}
	return byKey[stateKey]
}

// AllState returns every state event of eventType, keyed by state_key.
func (r *Room) AllState(eventType string) map[string]*event.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*event.Event, len(r.states[eventType]))
	for k, v := range r.states[eventType] {
		out[k] = v
	}
	return out
}

// ApplyRedaction fans a redaction out to every stored state event whose
// event_id equals targetEventID (§4.C). It returns true if any state event
// was redacted. Non-state redactions are the Timeline component's concern.
func (r *Room) ApplyRedaction(targetEventID string, redactorJSON []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	applied := false
	for _, byKey := range r.states {
		for _, ev := range byKey {
			if ev.EventID != targetEventID {
				continue
			}
			if err := ev.SetRedactionEvent(redactorJSON); err == nil {
				applied = true
			}
		}
	}
	return applied
}

// RoomAccountData returns the room-scoped account-data event of eventType.
func (r *Room) RoomAccountData(eventType string) *event.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roomAccountData[eventType]
}

// SetRoomAccountData stores a room-scoped account-data event.
func (r *Room) SetRoomAccountData(ev *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roomAccountData[ev.Type] = ev
}

// Ephemeral returns the latest ephemeral event of eventType (typing,
// receipts).
func (r *Room) Ephemeral(eventType string) *event.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ephemerals[eventType]
}

// SetEphemeral stores an ephemeral event.
func (r *Room) SetEphemeral(ev *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ephemerals[ev.Type] = ev
}
