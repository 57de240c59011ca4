// Package syncengine implements the incremental sync loop (§4.E): the
// pipeline that consumes successive /sync responses and drives the room
// state store, timeline, device-key tracker, persistent store, and
// broadcast streams.
package syncengine

import (
	"encoding/json"

	"github.com/matrixgo/sdk/event"
	"github.com/matrixgo/sdk/room"
)

// MembershipTransition describes how a room update changes the viewing
// client's relationship to the room (§4.E step 1).
type MembershipTransition int

const (
	TransitionNone MembershipTransition = iota
	TransitionNewJoin
	TransitionNewInvite
	TransitionNewLeave
	TransitionStillJoined
	TransitionStillInvited
	TransitionNowLeft
)

// RoomUpdate is the per-room delta the sync engine derives from one sync
// pass (§4.E step 1 of _handle_rooms).
type RoomUpdate struct {
	RoomID            string
	Transition        MembershipTransition
	Membership        room.Membership
	PrevBatch         string
	HighlightCount    int
	NotificationCount int
	Summary           room.Summary
	LimitedTimeline   bool
}

// EventUpdateKind classifies where an event arrived from in the sync
// response, driving how §4.E's per-event handler updates derived state.
type EventUpdateKind string

const (
	KindState       EventUpdateKind = "state"
	KindTimeline    EventUpdateKind = "timeline"
	KindHistory     EventUpdateKind = "history" // backfill (sort_at_the_end)
	KindInviteState EventUpdateKind = "invite_state"
	KindEphemeral   EventUpdateKind = "ephemeral"
	KindAccountData EventUpdateKind = "account_data"
)

// EventUpdate is broadcast on onEvent and is the unit persisted by
// storeEventUpdate (§4.E, §6).
type EventUpdate struct {
	RoomID string
	Kind   EventUpdateKind
	Event  *event.Event
	// Raw is the event's original, possibly still-encrypted JSON, kept for
	// onOlmError's "original ciphertext event preserved" requirement.
	Raw json.RawMessage
}

// ToDeviceUpdate is broadcast on onToDeviceEvent.
type ToDeviceUpdate struct {
	Type    string
	Sender  string
	Content json.RawMessage
	// DecryptError is set when decryption failed; Content/Type then still
	// reflect the original ciphertext event (§4.E to-device handling).
	DecryptError error
}

// CallSignalKind identifies which of the four dedicated call-signalling
// streams an event belongs to (§4.E).
type CallSignalKind string

const (
	CallInvite     CallSignalKind = "m.call.invite"
	CallHangup     CallSignalKind = "m.call.hangup"
	CallAnswer     CallSignalKind = "m.call.answer"
	CallCandidates CallSignalKind = "m.call.candidates"
)

// SdkSyncError is what onSyncError carries for non-protocol failures
// (§4.E Failure semantics, §7).
type SdkSyncError struct {
	Err error
}

func (e *SdkSyncError) Error() string { return e.Err.Error() }
func (e *SdkSyncError) Unwrap() error { return e.Err }
