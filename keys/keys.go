// Package keys implements the device-key tracker (§4.F): per-user device
// key lists and cross-signing keys, refreshed on "changed" hints and
// deduped by per-homeserver-domain backoff.
package keys

import (
	"context"
	"encoding/json"
	"time"

	"github.com/matrixgo/sdk/internal/clog"
	"github.com/matrixgo/sdk/mxapi"
	"github.com/matrixgo/sdk/store"
)

var log = clog.For("keys")

// CrossSigningUsage enumerates the three cross-signing key roles (§3).
type CrossSigningUsage string

const (
	UsageMaster      CrossSigningUsage = "master"
	UsageSelfSigning CrossSigningUsage = "self_signing"
	UsageUserSigning CrossSigningUsage = "user_signing"
)

// DeviceKeys is one device's identity keys and trust state (§3).
type DeviceKeys struct {
	UserID          string
	DeviceID        string
	Ed25519Key      string
	Curve25519Key   string
	DirectVerified  bool
	Blocked         bool
	ValidSignatures map[string]map[string]string
}

// CrossSigningKey is one of a user's master/self_signing/user_signing keys.
type CrossSigningKey struct {
	UserID          string
	PublicKey       string
	Usage           CrossSigningUsage
	DirectVerified  bool
	Blocked         bool
	ValidSignatures map[string]map[string]string
}

// DeviceKeysList is one user's full key state (§3).
type DeviceKeysList struct {
	UserID           string
	DeviceKeys       map[string]*DeviceKeys
	CrossSigningKeys map[string]*CrossSigningKey // keyed by PublicKey
	Outdated         bool
}

func newDeviceKeysList(userID string) *DeviceKeysList {
	return &DeviceKeysList{
		UserID:           userID,
		DeviceKeys:       make(map[string]*DeviceKeys),
		CrossSigningKeys: make(map[string]*CrossSigningKey),
	}
}

// DomainOf returns the server part of a Matrix user ID ("@a:example.org" ->
// "example.org"), used to key the per-domain backoff table.
func DomainOf(userID string) string {
	for i := len(userID) - 1; i >= 0; i-- {
		if userID[i] == ':' {
			return userID[i+1:]
		}
	}
	return userID
}

// backoffWindow is the per-domain key-query failure cooldown (§4.F step 3,
// S5).
const backoffWindow = 5 * time.Minute

// Tracker maintains per-user device-key lists (§4.F).
type Tracker struct {
	api mxapi.MatrixApi
	db  store.Database
	now func() time.Time

	ownUserID   string
	ownDeviceID string
	ownEd25519  string

	userDeviceKeys map[string]*DeviceKeysList
	domainFailures map[string]time.Time
}

// New constructs a Tracker. now supplies the clock (injectable for
// deterministic backoff tests, S5).
func New(api mxapi.MatrixApi, db store.Database, ownUserID, ownDeviceID, ownEd25519 string, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		api: api, db: db,
		ownUserID: ownUserID, ownDeviceID: ownDeviceID, ownEd25519: ownEd25519,
		now:            now,
		userDeviceKeys: make(map[string]*DeviceKeysList),
		domainFailures: make(map[string]time.Time),
	}
}

// Get returns the tracked key list for userID, or nil.
func (t *Tracker) Get(userID string) *DeviceKeysList { return t.userDeviceKeys[userID] }

// Fingerprint returns the ed25519 key of deviceID belonging to userID, the
// thin read accessor SPEC_FULL.md adds for room member-list trust badges.
func (t *Tracker) Fingerprint(userID, deviceID string) (string, bool) {
	list, ok := t.userDeviceKeys[userID]
	if !ok {
		return "", false
	}
	dk, ok := list.DeviceKeys[deviceID]
	if !ok {
		return "", false
	}
	return dk.Ed25519Key, true
}

// MarkOutdated flags userID's key list outdated, creating it if unseen.
// Invoked for device_lists.changed entries from sync (§4.F).
func (t *Tracker) MarkOutdated(userID string) {
	list, ok := t.userDeviceKeys[userID]
	if !ok {
		list = newDeviceKeysList(userID)
		t.userDeviceKeys[userID] = list
	}
	list.Outdated = true
}

// Drop removes userID's tracked key list entirely. Invoked for
// device_lists.left entries, and for users who fall out of
// tracked_user_ids (§4.F steps 1-2).
func (t *Tracker) Drop(userID string) {
	delete(t.userDeviceKeys, userID)
}

// PruneUntracked drops every tracked user not present in tracked (§4.F
// step 2).
func (t *Tracker) PruneUntracked(tracked map[string]bool) {
	for userID := range t.userDeviceKeys {
		if !tracked[userID] {
			delete(t.userDeviceKeys, userID)
		}
	}
}

// outdatedSet computes which tracked users should be queried this round,
// honoring the per-domain backoff (§4.F step 3, S5).
func (t *Tracker) outdatedSet() map[string][]string {
	out := make(map[string][]string)
	for userID, list := range t.userDeviceKeys {
		if !list.Outdated {
			continue
		}
		domain := DomainOf(userID)
		if failedAt, ok := t.domainFailures[domain]; ok && t.now().Sub(failedAt) < backoffWindow {
			continue
		}
		out[userID] = nil
	}
	return out
}

// Refresh runs one device-key-refresh pass (§4.F): computes the outdated
// set honoring backoff, queries the homeserver, merges results without
// ever silently rotating a known ed25519 key, and persists everything in
// one transaction.
func (t *Tracker) Refresh(ctx context.Context) error {
	outdated := t.outdatedSet()
	if len(outdated) == 0 {
		return nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	resp, err := t.api.RequestDeviceKeys(queryCtx, outdated, 10_000)
	if err != nil {
		return err
	}

	return t.db.Transaction(ctx, func(ctx context.Context) error {
		for userID := range outdated {
			domain := DomainOf(userID)
			if _, failed := resp.Failures[domain]; failed {
				// The homeserver could not answer for this user's
				// domain; leave it Outdated so the next round retries
				// once the per-domain backoff clears.
				continue
			}
			if err := t.mergeDeviceKeys(ctx, userID, resp.DeviceKeys[userID]); err != nil {
				return err
			}
			if err := t.mergeCrossSigning(ctx, userID, resp); err != nil {
				return err
			}
			if list, ok := t.userDeviceKeys[userID]; ok {
				list.Outdated = false
			}
			if err := t.db.StoreUserDeviceKeysInfo(ctx, userID, false); err != nil {
				return err
			}
		}
		for domain := range resp.Failures {
			t.domainFailures[domain] = t.now()
		}
		return nil
	})
}

func (t *Tracker) mergeDeviceKeys(ctx context.Context, userID string, devices map[string]json.RawMessage) error {
	list, ok := t.userDeviceKeys[userID]
	if !ok {
		list = newDeviceKeysList(userID)
		t.userDeviceKeys[userID] = list
	}
	oldKeys := list.DeviceKeys
	list.DeviceKeys = make(map[string]*DeviceKeys)

	for deviceID, raw := range devices {
		dk, valid := parseDeviceKeys(userID, deviceID, raw)
		if !valid {
			continue
		}
		if old, existed := oldKeys[deviceID]; existed {
			if old.Ed25519Key != dk.Ed25519Key {
				// Public key rotation attempt: keep the old entry,
				// never silently replace it (S4).
				list.DeviceKeys[deviceID] = old
				continue
			}
			dk.DirectVerified = old.DirectVerified
			dk.Blocked = old.Blocked
		}
		if userID == t.ownUserID && deviceID == t.ownDeviceID && dk.Ed25519Key == t.ownEd25519 {
			dk.DirectVerified = true
		}
		list.DeviceKeys[deviceID] = dk
	}

	for deviceID := range oldKeys {
		if _, stillPresent := list.DeviceKeys[deviceID]; stillPresent {
			if err := t.db.StoreUserDeviceKey(ctx, toDeviceKeyRow(list.DeviceKeys[deviceID])); err != nil {
				return err
			}
			continue
		}
		if err := t.db.RemoveUserDeviceKey(ctx, userID, deviceID); err != nil {
			return err
		}
	}
	for deviceID, dk := range list.DeviceKeys {
		if _, wasOld := oldKeys[deviceID]; !wasOld {
			if err := t.db.StoreUserDeviceKey(ctx, toDeviceKeyRow(dk)); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseDeviceKeys(userID, deviceID string, raw json.RawMessage) (*DeviceKeys, bool) {
	var payload struct {
		Keys       map[string]string            `json:"keys"`
		Signatures map[string]map[string]string `json:"signatures"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}
	dk := &DeviceKeys{UserID: userID, DeviceID: deviceID, ValidSignatures: payload.Signatures}
	for algKey, v := range payload.Keys {
		switch {
		case hasAlgPrefix(algKey, "ed25519"):
			dk.Ed25519Key = v
		case hasAlgPrefix(algKey, "curve25519"):
			dk.Curve25519Key = v
		}
	}
	if dk.Ed25519Key == "" {
		return nil, false
	}
	if dk.ValidSignatures == nil {
		dk.ValidSignatures = map[string]map[string]string{}
	}
	return dk, true
}

func hasAlgPrefix(key, alg string) bool {
	return len(key) > len(alg) && key[:len(alg)] == alg && key[len(alg)] == ':'
}

func (t *Tracker) mergeCrossSigning(ctx context.Context, userID string, resp *mxapi.DeviceKeysQueryResponse) error {
	list, ok := t.userDeviceKeys[userID]
	if !ok {
		list = newDeviceKeysList(userID)
		t.userDeviceKeys[userID] = list
	}

	for usage, raw := range map[CrossSigningUsage]json.RawMessage{
		UsageMaster:      resp.MasterKeys[userID],
		UsageSelfSigning: resp.SelfSigningKeys[userID],
		UsageUserSigning: resp.UserSigningKeys[userID],
	} {
		if len(raw) == 0 {
			continue
		}
		csk, valid := parseCrossSigningKey(userID, usage, raw)
		if !valid {
			continue
		}
		// Preserve cross-signing keys of other usages not addressed in
		// this response (§4.F step 6).
		for pubKey, existing := range list.CrossSigningKeys {
			if existing.Usage == usage && pubKey != csk.PublicKey {
				delete(list.CrossSigningKeys, pubKey)
			}
		}
		if old, existed := list.CrossSigningKeys[csk.PublicKey]; existed {
			csk.DirectVerified = old.DirectVerified
			csk.Blocked = old.Blocked
		}
		list.CrossSigningKeys[csk.PublicKey] = csk
		if err := t.db.StoreUserCrossSigningKey(ctx, toCrossSigningRow(csk)); err != nil {
			return err
		}
	}
	return nil
}

func parseCrossSigningKey(userID string, usage CrossSigningUsage, raw json.RawMessage) (*CrossSigningKey, bool) {
	var payload struct {
		Keys       map[string]string            `json:"keys"`
		Signatures map[string]map[string]string `json:"signatures"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}
	sigs := payload.Signatures
	if sigs == nil {
		sigs = map[string]map[string]string{}
	}
	for algKey, v := range payload.Keys {
		if hasAlgPrefix(algKey, "ed25519") {
			return &CrossSigningKey{UserID: userID, PublicKey: v, Usage: usage, ValidSignatures: sigs}, true
		}
	}
	return nil, false
}

func toDeviceKeyRow(dk *DeviceKeys) store.DeviceKeyRow {
	sig, _ := json.Marshal(dk.ValidSignatures)
	return store.DeviceKeyRow{
		UserID: dk.UserID, DeviceID: dk.DeviceID,
		Ed25519Key: dk.Ed25519Key, Curve25519Key: dk.Curve25519Key,
		DirectVerified: dk.DirectVerified, Blocked: dk.Blocked,
		ValidSignatures: sig,
	}
}

func toCrossSigningRow(csk *CrossSigningKey) store.CrossSigningKeyRow {
	sig, _ := json.Marshal(csk.ValidSignatures)
	return store.CrossSigningKeyRow{
		UserID: csk.UserID, PublicKey: csk.PublicKey, Usage: string(csk.Usage),
		DirectVerified: csk.DirectVerified, Blocked: csk.Blocked,
		ValidSignatures: sig,
	}
}

// RefreshMany is a convenience used by callers that want to force-refresh
// a specific set of users regardless of the Outdated flag (e.g. a UI
// "force refresh" action).
func (t *Tracker) RefreshMany(ctx context.Context, userIDs []string) error {
	for _, u := range userIDs {
		t.MarkOutdated(u)
	}
	return t.Refresh(ctx)
}
