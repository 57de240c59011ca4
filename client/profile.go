package client

import (
	"context"

	gocache "github.com/patrickmn/go-cache"
)

// Profile is the display-name/avatar pair §4.G's profile helpers resolve.
type Profile struct {
	DisplayName string
	AvatarURL   string
}

func memberProfile(getContent func(key string) (string, bool)) Profile {
	dn, _ := getContent("displayname")
	av, _ := getContent("avatar_url")
	return Profile{DisplayName: dn, AvatarURL: av}
}

// OwnProfile derives the caller's profile locally when every room agrees
// on their membership event; otherwise it falls back to the API (§4.G
// ownProfile).
func (c *Client) OwnProfile(ctx context.Context) (Profile, error) {
	userID := c.UserID()
	var agreed *Profile
	conflict := false
	for _, r := range c.AllRooms() {
		ev := r.GetState("m.room.member", userID)
		if ev == nil {
			continue
		}
		p := memberProfile(ev.GetContentString)
		switch {
		case agreed == nil:
			agreed = &p
		case *agreed != p:
			conflict = true
		}
	}
	if agreed != nil && !conflict {
		return *agreed, nil
	}
	dn, av, err := c.api.RequestProfile(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{DisplayName: dn, AvatarURL: av}, nil
}

// GetProfileFromUserID resolves userID's profile: an optional room-derived
// fast path, then a per-session cache, then the API (§4.G
// getProfileFromUserId).
func (c *Client) GetProfileFromUserID(ctx context.Context, userID string, getFromRooms, useCache bool) (Profile, error) {
	if getFromRooms {
		for _, r := range c.AllRooms() {
			if ev := r.GetState("m.room.member", userID); ev != nil {
				return memberProfile(ev.GetContentString), nil
			}
		}
	}
	if useCache {
		if cached, ok := c.profileCache.Get(userID); ok {
			return cached.(Profile), nil
		}
	}
	dn, av, err := c.api.RequestProfile(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{DisplayName: dn, AvatarURL: av}
	if useCache {
		c.profileCache.Set(userID, p, gocache.DefaultExpiration)
	}
	return p, nil
}
