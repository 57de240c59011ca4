package client

import (
	"context"
	"encoding/json"

	"github.com/matrixgo/sdk/sdkerr"
)

// SendToDevicesOfUserIds addresses {userId: {"*": message}} for every user
// in userIDs and sends (§4.G sendToDevicesOfUserIds).
func (c *Client) SendToDevicesOfUserIds(ctx context.Context, userIDs []string, eventType string, message json.RawMessage, msgID string) error {
	if msgID == "" {
		msgID = c.txn.Next()
	}
	payload := make(map[string]map[string]json.RawMessage, len(userIDs))
	for _, userID := range userIDs {
		payload[userID] = map[string]json.RawMessage{"*": message}
	}
	return c.api.SendToDevice(ctx, eventType, msgID, payload)
}

// SendToDeviceEncrypted filters out blocked devices, this client's own
// device, and (when onlyVerified) unverified devices, then delegates to
// Encryption for per-device encryption before sending as m.room.encrypted
// (§4.G sendToDeviceEncrypted).
func (c *Client) SendToDeviceEncrypted(ctx context.Context, devices map[string][]string, eventType string, message json.RawMessage, msgID string, onlyVerified bool) error {
	if !c.enc.Enabled() {
		return sdkerr.New(sdkerr.State, "client: encryption not enabled")
	}
	if msgID == "" {
		msgID = c.txn.Next()
	}

	filtered := make(map[string][]string, len(devices))
	for userID, deviceIDs := range devices {
		var kept []string
		for _, deviceID := range deviceIDs {
			if userID == c.UserID() && deviceID == c.deviceID {
				continue
			}
			dk := c.tracker.Get(userID)
			if dk != nil {
				if d, ok := dk.DeviceKeys[deviceID]; ok {
					if d.Blocked {
						continue
					}
					if onlyVerified && !d.DirectVerified {
						continue
					}
				}
			}
			kept = append(kept, deviceID)
		}
		if len(kept) > 0 {
			filtered[userID] = kept
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	encrypted, err := c.enc.EncryptToDeviceMessage(ctx, filtered, eventType, message)
	if err != nil {
		return err
	}
	return c.api.SendToDevice(ctx, "m.room.encrypted", msgID, encrypted)
}
