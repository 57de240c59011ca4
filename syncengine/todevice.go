package syncengine

import (
	"context"
	"encoding/json"

	"github.com/matrixgo/sdk/internal/jsonutil"
)

const (
	typeRoomKeyRequest  = "m.room_key_request"
	typeKeyVerifyPrefix = "m.key.verification"
)

// handleToDeviceEvent implements §4.E's to-device handling: an
// m.room.encrypted to-device event is decrypted through the Encryption
// black box; on failure the original ciphertext event is preserved and
// routed to onOlmError rather than silently dropped. Plaintext to-device
// events pass through unchanged.
func (e *Engine) handleToDeviceEvent(ctx context.Context, raw json.RawMessage) {
	sender := jsonutil.String(raw, "sender")
	evType := jsonutil.String(raw, "type")
	content := json.RawMessage(jsonutil.Get(raw, "content").Raw)

	var decryptErr error
	if evType == "m.room.encrypted" && e.enc.Enabled() {
		if err := e.enc.HandleToDeviceEvent(ctx, raw); err != nil {
			decryptErr = err
		} else if decrypted, err := e.enc.DecryptToDeviceEvent(ctx, raw); err != nil {
			decryptErr = err
		} else {
			evType = jsonutil.String(decrypted, "type")
			content = json.RawMessage(jsonutil.Get(decrypted, "content").Raw)
		}
	}

	u := ToDeviceUpdate{Type: evType, Sender: sender, Content: content, DecryptError: decryptErr}
	if decryptErr != nil {
		e.hooks.fireOlmError(u)
	}
	e.dispatchToDeviceUpdate(u)
}

// dispatchToDeviceUpdate routes a (possibly just-decrypted) to-device
// event to its dedicated stream in addition to the generic one.
func (e *Engine) dispatchToDeviceUpdate(u ToDeviceUpdate) {
	switch {
	case u.Type == typeRoomKeyRequest:
		e.hooks.fireRoomKeyRequest(u)
	case len(u.Type) >= len(typeKeyVerifyPrefix) && u.Type[:len(typeKeyVerifyPrefix)] == typeKeyVerifyPrefix:
		e.hooks.fireKeyVerificationReq(u)
	}
	e.hooks.fireToDevice(u)
}
