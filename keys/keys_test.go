package keys

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/matrixgo/sdk/mxapi"
	"github.com/matrixgo/sdk/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI / fakeDB provide minimal MatrixApi / Database seams for the
// tracker tests below.
type fakeAPI struct {
	mxapi.MatrixApi
	resp *mxapi.DeviceKeysQueryResponse
	err  error
	lastUsers map[string][]string
}

func (f *fakeAPI) RequestDeviceKeys(ctx context.Context, users map[string][]string, timeoutMs int) (*mxapi.DeviceKeysQueryResponse, error) {
	f.lastUsers = users
	return f.resp, f.err
}

type fakeDB struct {
	store.Database
	deviceRows []store.DeviceKeyRow
	removed    []string
	crossRows  []store.CrossSigningKeyRow
}

func (f *fakeDB) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
func (f *fakeDB) StoreUserDeviceKey(ctx context.Context, row store.DeviceKeyRow) error {
	f.deviceRows = append(f.deviceRows, row)
	return nil
}
func (f *fakeDB) RemoveUserDeviceKey(ctx context.Context, userID, deviceID string) error {
	f.removed = append(f.removed, userID+"/"+deviceID)
	return nil
}
func (f *fakeDB) StoreUserDeviceKeysInfo(ctx context.Context, userID string, outdated bool) error {
	return nil
}
func (f *fakeDB) StoreUserCrossSigningKey(ctx context.Context, row store.CrossSigningKeyRow) error {
	f.crossRows = append(f.crossRows, row)
	return nil
}

func deviceKeysJSON(ed25519 string) json.RawMessage {
	b, _ := json.Marshal(map[string]interface{}{
		"keys": map[string]string{"ed25519:D": ed25519, "curve25519:D": "curveKey"},
	})
	return b
}

func deviceKeysJSONWithSignature(ed25519, signerUserID, signerKeyID, sig string) json.RawMessage {
	b, _ := json.Marshal(map[string]interface{}{
		"keys":       map[string]string{"ed25519:D": ed25519, "curve25519:D": "curveKey"},
		"signatures": map[string]map[string]string{signerUserID: {signerKeyID: sig}},
	})
	return b
}

func TestDeviceKeyRotation_S4(t *testing.T) {
	api := &fakeAPI{resp: &mxapi.DeviceKeysQueryResponse{
		DeviceKeys: map[string]map[string]json.RawMessage{
			"@u:example.org": {"D": deviceKeysJSON("K2")},
		},
		Failures: map[string]json.RawMessage{},
	}}
	db := &fakeDB{}
	clock := time.Unix(0, 0)
	tr := New(api, db, "@me:example.org", "MYDEV", "myfp", func() time.Time { return clock })

	tr.userDeviceKeys["@u:example.org"] = &DeviceKeysList{
		UserID: "@u:example.org",
		DeviceKeys: map[string]*DeviceKeys{
			"D": {UserID: "@u:example.org", DeviceID: "D", Ed25519Key: "K1", DirectVerified: true},
		},
		CrossSigningKeys: map[string]*CrossSigningKey{},
		Outdated:         true,
	}

	require.NoError(t, tr.Refresh(context.Background()))

	got := tr.Get("@u:example.org").DeviceKeys["D"]
	assert.Equal(t, "K1", got.Ed25519Key, "public key must never silently rotate")
	assert.True(t, got.DirectVerified)
}

func TestDeviceKeySameKeyPreservesVerification(t *testing.T) {
	api := &fakeAPI{resp: &mxapi.DeviceKeysQueryResponse{
		DeviceKeys: map[string]map[string]json.RawMessage{
			"@u:example.org": {"D": deviceKeysJSON("K1")},
		},
		Failures: map[string]json.RawMessage{},
	}}
	db := &fakeDB{}
	tr := New(api, db, "@me:example.org", "MYDEV", "myfp", func() time.Time { return time.Unix(0, 0) })
	tr.userDeviceKeys["@u:example.org"] = &DeviceKeysList{
		UserID:           "@u:example.org",
		DeviceKeys:       map[string]*DeviceKeys{"D": {UserID: "@u:example.org", DeviceID: "D", Ed25519Key: "K1", DirectVerified: true}},
		CrossSigningKeys: map[string]*CrossSigningKey{},
		Outdated:         true,
	}
	require.NoError(t, tr.Refresh(context.Background()))
	got := tr.Get("@u:example.org").DeviceKeys["D"]
	assert.Equal(t, "K1", got.Ed25519Key)
	assert.True(t, got.DirectVerified)
}

func TestDeviceKeyGainsSignature_S4(t *testing.T) {
	api := &fakeAPI{resp: &mxapi.DeviceKeysQueryResponse{
		DeviceKeys: map[string]map[string]json.RawMessage{
			"@u:example.org": {"D": deviceKeysJSONWithSignature("K1", "@u:example.org", "ed25519:CSK", "sig1")},
		},
		Failures: map[string]json.RawMessage{},
	}}
	db := &fakeDB{}
	tr := New(api, db, "@me:example.org", "MYDEV", "myfp", func() time.Time { return time.Unix(0, 0) })
	tr.userDeviceKeys["@u:example.org"] = &DeviceKeysList{
		UserID:           "@u:example.org",
		DeviceKeys:       map[string]*DeviceKeys{"D": {UserID: "@u:example.org", DeviceID: "D", Ed25519Key: "K1", ValidSignatures: map[string]map[string]string{}}},
		CrossSigningKeys: map[string]*CrossSigningKey{},
		Outdated:         true,
	}

	require.NoError(t, tr.Refresh(context.Background()))

	got := tr.Get("@u:example.org").DeviceKeys["D"]
	require.NotNil(t, got.ValidSignatures["@u:example.org"])
	assert.Equal(t, "sig1", got.ValidSignatures["@u:example.org"]["ed25519:CSK"])
}

func TestPerDomainBackoff_S5(t *testing.T) {
	clock := time.Unix(0, 0)
	api := &fakeAPI{resp: &mxapi.DeviceKeysQueryResponse{
		DeviceKeys: map[string]map[string]json.RawMessage{},
		Failures:   map[string]json.RawMessage{"server.tld": json.RawMessage(`{}`)},
	}}
	db := &fakeDB{}
	tr := New(api, db, "@me:example.org", "MYDEV", "myfp", func() time.Time { return clock })
	tr.MarkOutdated("@v:server.tld")

	require.NoError(t, tr.Refresh(context.Background()))
	assert.Contains(t, api.lastUsers, "@v:server.tld")

	// T+2m: still backing off, must not be queried.
	clock = clock.Add(2 * time.Minute)
	tr.MarkOutdated("@v:server.tld")
	api.lastUsers = nil
	require.NoError(t, tr.Refresh(context.Background()))
	assert.Nil(t, api.lastUsers)

	// T+6m: backoff window elapsed.
	clock = clock.Add(4 * time.Minute)
	require.NoError(t, tr.Refresh(context.Background()))
	assert.Contains(t, api.lastUsers, "@v:server.tld")
}

func TestPruneUntracked(t *testing.T) {
	tr := New(&fakeAPI{}, &fakeDB{}, "@me:x", "D", "fp", nil)
	tr.MarkOutdated("@a:x")
	tr.MarkOutdated("@b:x")
	tr.PruneUntracked(map[string]bool{"@a:x": true})
	assert.NotNil(t, tr.Get("@a:x"))
	assert.Nil(t, tr.Get("@b:x"))
}
