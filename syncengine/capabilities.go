package syncengine

import (
	"context"

	"github.com/matrixgo/sdk/mxapi"
	"github.com/matrixgo/sdk/room"
	"github.com/matrixgo/sdk/timeline"
)

// Rooms is the room-map capability the Client façade owns and the sync
// engine is driven against (§3 Ownership: the Client exclusively owns
// Rooms; the engine only ever sees them through this seam).
type Rooms interface {
	Room(roomID string) (*room.Room, bool)
	EnsureRoom(roomID string) *room.Room
	RemoveRoom(roomID string)
	PromoteRoomToFront(roomID string)
	AllRooms() []*room.Room
	Timeline(roomID string) *timeline.Timeline
}

// Session is the subset of client session state the sync engine reads and
// advances (§4.E step: "Advance prev_batch").
type Session interface {
	ClientID() string
	UserID() string
	PrevBatch() string
	SetPrevBatch(ctx context.Context, token string) error
	IsLoggedIn() bool
	SyncFilter() string
	ClearOnUnknownToken(ctx context.Context)
}

// Hooks is the set of broadcast callbacks the sync engine drives (§6
// Broadcast streams). Each is optional; a nil hook is simply not called.
// They are invoked synchronously from the sync goroutine, after the
// corresponding state mutation has already been applied (§5 Ordering
// guarantees: "State updates ... applied strictly before ... broadcasts").
type Hooks struct {
	OnEvent              func(EventUpdate)
	OnRoomUpdate         func(RoomUpdate)
	OnToDeviceEvent      func(ToDeviceUpdate)
	OnLoginStateChanged  func(loggedIn bool)
	OnError              func(err error)
	OnSyncError          func(err error)
	OnOlmError           func(toDevice ToDeviceUpdate)
	OnFirstSync          func()
	OnSync               func(raw *mxapi.SyncResponse)
	OnPresence           func(ev EventUpdate)
	OnAccountData        func(ev EventUpdate)
	OnCallSignal         func(kind CallSignalKind, ev EventUpdate)
	OnRoomKeyRequest     func(ev ToDeviceUpdate)
	OnKeyVerificationReq func(ev ToDeviceUpdate)
}

func (h *Hooks) fireEvent(u EventUpdate) {
	if h.OnEvent != nil {
		h.OnEvent(u)
	}
}
func (h *Hooks) fireRoomUpdate(u RoomUpdate) {
	if h.OnRoomUpdate != nil {
		h.OnRoomUpdate(u)
	}
}
func (h *Hooks) fireToDevice(u ToDeviceUpdate) {
	if h.OnToDeviceEvent != nil {
		h.OnToDeviceEvent(u)
	}
}
func (h *Hooks) fireError(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}
func (h *Hooks) fireSyncError(err error) {
	if h.OnSyncError != nil {
		h.OnSyncError(err)
	}
}
func (h *Hooks) fireOlmError(u ToDeviceUpdate) {
	if h.OnOlmError != nil {
		h.OnOlmError(u)
	}
}
func (h *Hooks) fireFirstSync() {
	if h.OnFirstSync != nil {
		h.OnFirstSync()
	}
}
func (h *Hooks) fireSync(raw *mxapi.SyncResponse) {
	if h.OnSync != nil {
		h.OnSync(raw)
	}
}
func (h *Hooks) firePresence(u EventUpdate) {
	if h.OnPresence != nil {
		h.OnPresence(u)
	}
}
func (h *Hooks) fireAccountData(u EventUpdate) {
	if h.OnAccountData != nil {
		h.OnAccountData(u)
	}
}
func (h *Hooks) fireCallSignal(kind CallSignalKind, u EventUpdate) {
	if h.OnCallSignal != nil {
		h.OnCallSignal(kind, u)
	}
}
func (h *Hooks) fireRoomKeyRequest(u ToDeviceUpdate) {
	if h.OnRoomKeyRequest != nil {
		h.OnRoomKeyRequest(u)
	}
}
func (h *Hooks) fireKeyVerificationReq(u ToDeviceUpdate) {
	if h.OnKeyVerificationReq != nil {
		h.OnKeyVerificationReq(u)
	}
}
