// Package crypto specifies the Encryption capability (§1, §6): the core
// treats Olm/Megolm sessions, key verification, and to-device
// encrypt/decrypt as an external black box behind this narrow interface.
// No cryptographic primitive is implemented here.
package crypto

import (
	"context"
	"encoding/json"
)

// EncryptedFileInfo is the "m.room.encrypted" file envelope (§4.B
// attachment decryption): symmetric key, IV, and SHA-256 hash of the
// ciphertext, as carried in an m.room.message/m.sticker event's
// content.file.
type EncryptedFileInfo struct {
	URL    string          `json:"url"`
	Key    json.RawMessage `json:"key"`
	IV     string          `json:"iv"`
	Hashes map[string]string `json:"hashes"`
	V      string          `json:"v"`
}

// Encryption is the capability the core depends on for all E2E operations.
type Encryption interface {
	Init(ctx context.Context, pickledAccount []byte) error
	Dispose(ctx context.Context) error
	OnSync(ctx context.Context) error
	PickledOlmAccount() []byte
	IdentityKey() string
	FingerprintKey() string
	Enabled() bool
	DecryptToDeviceEvent(ctx context.Context, evt json.RawMessage) (json.RawMessage, error)
	EncryptToDeviceMessage(ctx context.Context, devices map[string][]string, eventType string, msg json.RawMessage) (map[string]map[string]json.RawMessage, error)
	HandleToDeviceEvent(ctx context.Context, evt json.RawMessage) error
	HandleEventUpdate(ctx context.Context, roomID string, evt json.RawMessage) error
	HandleDeviceOneTimeKeysCount(ctx context.Context, counts map[string]int) error
	DecryptFile(ctx context.Context, envelope EncryptedFileInfo, ciphertext []byte) ([]byte, error)
}

// Disabled is a no-op Encryption implementation: Enabled() is false, and
// every operation that presumes encryption returns a NotEnabled error.
// Useful for a client configured without E2E support, and in tests that
// don't exercise the crypto black box.
type Disabled struct{}

func (Disabled) Init(context.Context, []byte) error { return nil }
func (Disabled) Dispose(context.Context) error       { return nil }
func (Disabled) OnSync(context.Context) error        { return nil }
func (Disabled) PickledOlmAccount() []byte            { return nil }
func (Disabled) IdentityKey() string                  { return "" }
func (Disabled) FingerprintKey() string               { return "" }
func (Disabled) Enabled() bool                        { return false }

func (Disabled) DecryptToDeviceEvent(context.Context, json.RawMessage) (json.RawMessage, error) {
	return nil, errNotEnabled
}
func (Disabled) EncryptToDeviceMessage(context.Context, map[string][]string, string, json.RawMessage) (map[string]map[string]json.RawMessage, error) {
	return nil, errNotEnabled
}
func (Disabled) HandleToDeviceEvent(context.Context, json.RawMessage) error { return nil }
func (Disabled) HandleEventUpdate(context.Context, string, json.RawMessage) error { return nil }
func (Disabled) HandleDeviceOneTimeKeysCount(context.Context, map[string]int) error { return nil }
func (Disabled) DecryptFile(context.Context, EncryptedFileInfo, []byte) ([]byte, error) {
	return nil, errNotEnabled
}

var errNotEnabled = notEnabledError{}

type notEnabledError struct{}

func (notEnabledError) Error() string { return "crypto: encryption disabled" }
