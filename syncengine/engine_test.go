package syncengine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixgo/sdk/mxapi"
	"github.com/matrixgo/sdk/room"
	"github.com/matrixgo/sdk/timeline"
)

type fakeRooms struct {
	rooms     map[string]*room.Room
	timelines map[string]*timeline.Timeline
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{rooms: map[string]*room.Room{}, timelines: map[string]*timeline.Timeline{}}
}
func (f *fakeRooms) Room(id string) (*room.Room, bool) { r, ok := f.rooms[id]; return r, ok }
func (f *fakeRooms) EnsureRoom(id string) *room.Room {
	if r, ok := f.rooms[id]; ok {
		return r
	}
	r := room.New(id)
	f.rooms[id] = r
	f.timelines[id] = timeline.New(id)
	return r
}
func (f *fakeRooms) RemoveRoom(id string)        { delete(f.rooms, id); delete(f.timelines, id) }
func (f *fakeRooms) PromoteRoomToFront(id string) {}
func (f *fakeRooms) AllRooms() []*room.Room {
	out := make([]*room.Room, 0, len(f.rooms))
	for _, r := range f.rooms {
		out = append(out, r)
	}
	return out
}
func (f *fakeRooms) Timeline(id string) *timeline.Timeline { return f.timelines[id] }

type fakeSession struct {
	prevBatch string
	loggedIn  bool
	cleared   bool
	onClear   func()
}

func (s *fakeSession) ClientID() string  { return "client1" }
func (s *fakeSession) UserID() string    { return "@alice:example.org" }
func (s *fakeSession) PrevBatch() string { return s.prevBatch }
func (s *fakeSession) SetPrevBatch(ctx context.Context, token string) error {
	s.prevBatch = token
	return nil
}
func (s *fakeSession) IsLoggedIn() bool   { return s.loggedIn }
func (s *fakeSession) SyncFilter() string { return "" }

// ClearOnUnknownToken mirrors client.Client.ClearOnUnknownToken, which
// routes through clear() and fires OnLoginStateChanged(false) exactly
// once — the engine itself must never fire it a second time (S6).
func (s *fakeSession) ClearOnUnknownToken(ctx context.Context) {
	s.cleared = true
	s.loggedIn = false
	if s.onClear != nil {
		s.onClear()
	}
}

type fakeAPI struct {
	mxapi.MatrixApi
	responses []*mxapi.SyncResponse
	errs      []error
	call      int
}

func (a *fakeAPI) Sync(ctx context.Context, filter, since string, timeoutMs int) (*mxapi.SyncResponse, error) {
	i := a.call
	a.call++
	if i < len(a.errs) && a.errs[i] != nil {
		return nil, a.errs[i]
	}
	return a.responses[i], nil
}
func (a *fakeAPI) RequestProfile(ctx context.Context, userID string) (string, string, error) {
	return "", "", nil
}

func newTestEngine(api mxapi.MatrixApi, rooms Rooms, sess Session) *Engine {
	return New(api, nil, rooms, sess, nil, nil, Hooks{}, Config{}, nil)
}

func TestAntiDowngrade_S2(t *testing.T) {
	roomID := "!room:example.org"
	mkResp := func(next string, algorithm string) *mxapi.SyncResponse {
		ev, _ := json.Marshal(map[string]interface{}{
			"type": "m.room.encryption", "event_id": "$e1", "sender": "@alice:example.org",
			"state_key": "", "content": map[string]string{"algorithm": algorithm},
		})
		return &mxapi.SyncResponse{
			NextBatch: next,
			Rooms: mxapi.SyncRooms{
				Join: map[string]mxapi.JoinedRoom{
					roomID: {State: mxapi.SyncEvents{Events: []json.RawMessage{ev}}},
				},
			},
		}
	}
	api := &fakeAPI{responses: []*mxapi.SyncResponse{
		mkResp("b1", "m.megolm.v1.aes-sha2"),
		mkResp("b2", "m.evil.downgrade"),
	}}
	rooms := newFakeRooms()
	sess := &fakeSession{loggedIn: true}
	e := newTestEngine(api, rooms, sess)

	require.NoError(t, e.OneShotSync(context.Background()))
	require.NoError(t, e.OneShotSync(context.Background()))

	r, ok := rooms.Room(roomID)
	require.True(t, ok)
	alg, _ := r.EncryptionAlgorithm()
	assert.Equal(t, "m.megolm.v1.aes-sha2", alg, "encryption algorithm must never change once set")
}

func TestUnknownToken_S6(t *testing.T) {
	api := &fakeAPI{errs: []error{&mxapi.MatrixException{Errcode: "M_UNKNOWN_TOKEN", Error_: "bad token"}}}
	rooms := newFakeRooms()
	sess := &fakeSession{loggedIn: true}

	var loggedOutCount int
	sess.onClear = func() { loggedOutCount++ }

	e := New(api, nil, rooms, sess, nil, nil, Hooks{}, Config{}, nil)

	err := e.OneShotSync(context.Background())
	require.Error(t, err)
	assert.True(t, sess.cleared)
	assert.Equal(t, 1, loggedOutCount, "LoggedOut must fire exactly once, via ClearOnUnknownToken, not also from the engine")
}
