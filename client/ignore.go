package client

import (
	"context"

	"github.com/matrixgo/sdk/id"
	"github.com/matrixgo/sdk/internal/jsonutil"
	"github.com/matrixgo/sdk/sdkerr"
)

const ignoredUserListType = "m.ignored_user_list"

// IgnoreUser validates userID, adds it to account-data
// m.ignored_user_list, then clears the local message cache (so a
// newly-ignored sender's already-cached events don't linger).
// Testable property 6: ignoring then unignoring is the identity on the
// account-data content (§4.G ignoreUser/unignoreUser).
func (c *Client) IgnoreUser(ctx context.Context, userID string) error {
	return c.setIgnored(ctx, userID, true)
}

// UnignoreUser reverses IgnoreUser.
func (c *Client) UnignoreUser(ctx context.Context, userID string) error {
	return c.setIgnored(ctx, userID, false)
}

func (c *Client) setIgnored(ctx context.Context, userID string, ignored bool) error {
	if !id.IsValidUserID(userID) {
		return sdkerr.New(sdkerr.Validation, "client: invalid user id "+userID)
	}

	content := c.AccountData(ignoredUserListType)
	if len(content) == 0 {
		content = jsonutil.Empty
	}

	var err error
	path := "ignored_users." + jsonutil.EscapeKey(userID)
	if ignored {
		content, err = jsonutil.Set(content, path, map[string]interface{}{})
	} else {
		content, err = jsonutil.Delete(content, path)
		if err == nil {
			if rest := jsonutil.Get(content, "ignored_users"); rest.IsObject() && len(rest.Map()) == 0 {
				content, err = jsonutil.Delete(content, "ignored_users")
			}
		}
	}
	if err != nil {
		return err
	}

	if err := c.api.SetAccountData(ctx, c.UserID(), ignoredUserListType, content); err != nil {
		return err
	}
	c.mu.Lock()
	c.accountData[ignoredUserListType] = content
	clientID := c.clientID
	c.mu.Unlock()

	if c.db != nil {
		if err := c.db.ClearCache(ctx, clientID); err != nil {
			return err
		}
	}
	log.WithFields(map[string]interface{}{"user": userID, "ignored": ignored}).
		Debug("client: updated ignored user list, cleared local message cache")
	return nil
}

// IsIgnored reports whether userID is currently on the ignored-user list.
func (c *Client) IsIgnored(userID string) bool {
	content := c.AccountData(ignoredUserListType)
	if len(content) == 0 {
		return false
	}
	return jsonutil.Has(content, "ignored_users."+jsonutil.EscapeKey(userID))
}
