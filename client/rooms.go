package client

import (
	"sort"

	"github.com/matrixgo/sdk/internal/jsonutil"
	"github.com/matrixgo/sdk/room"
	"github.com/matrixgo/sdk/timeline"
)

// Room implements syncengine.Rooms.
func (c *Client) Room(roomID string) (*room.Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.rooms[roomID]
	if !ok {
		return nil, false
	}
	return e.room, true
}

// EnsureRoom implements syncengine.Rooms.
func (c *Client) EnsureRoom(roomID string) *room.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.rooms[roomID]
	if ok {
		return e.room
	}
	e = &roomEntry{room: room.New(roomID), timeline: timeline.New(roomID)}
	c.rooms[roomID] = e
	c.sortedOrder = append(c.sortedOrder, roomID)
	return e.room
}

// PromoteRoomToFront implements syncengine.Rooms: spec §4.G's
// _update_rooms_by_room_update inserts newly invited rooms at position 0
// rather than the end, so an invite surfaces at the top of the room list
// before the first sortRoomsBy pass.
func (c *Client) PromoteRoomToFront(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range c.sortedOrder {
		if id == roomID {
			c.sortedOrder = append(c.sortedOrder[:i], c.sortedOrder[i+1:]...)
			break
		}
	}
	c.sortedOrder = append([]string{roomID}, c.sortedOrder...)
}

// RemoveRoom implements syncengine.Rooms.
func (c *Client) RemoveRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
	for i, id := range c.sortedOrder {
		if id == roomID {
			c.sortedOrder = append(c.sortedOrder[:i], c.sortedOrder[i+1:]...)
			break
		}
	}
}

// AllRooms implements syncengine.Rooms.
func (c *Client) AllRooms() []*room.Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*room.Room, 0, len(c.rooms))
	for _, id := range c.sortedOrder {
		out = append(out, c.rooms[id].room)
	}
	return out
}

// Timeline implements syncengine.Rooms.
func (c *Client) Timeline(roomID string) *timeline.Timeline {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.rooms[roomID]
	if !ok {
		return nil
	}
	return e.timeline
}

// SortedRooms returns the room list in the order sortRoomsBy last
// produced (or insertion order before the first sort).
func (c *Client) SortedRooms() []*room.Room { return c.AllRooms() }

func roomTimeCreated(r *room.Room) int64 {
	create := r.GetState("m.room.create", "")
	if create == nil {
		return 0
	}
	return create.OriginServerTS
}

// roomIsFavourite reports whether the room's m.tag account data carries
// the m.favourite tag. The tag's value is an object with an optional
// numeric "order", so presence (not string content) is what matters.
func roomIsFavourite(r *room.Room) bool {
	tag := r.RoomAccountData("m.tag")
	if tag == nil {
		return false
	}
	return jsonutil.Has(tag.Content, "tags.m\\.favourite")
}

// SortRooms implements syncengine.Sortable: the engine calls back into
// this on every sync pass, before it marks the first sync done. It is
// re-entrant-guarded and skipped for fewer than two rooms; it does not
// check whether a sync has completed, so a call before the first sync
// sorts as well (§4.G sortRoomsBy / Testable property 7).
func (c *Client) SortRooms() {
	c.mu.Lock()
	if c.sorting || len(c.sortedOrder) < 2 {
		c.mu.Unlock()
		return
	}
	c.sorting = true
	ids := append([]string(nil), c.sortedOrder...)
	entries := make(map[string]*roomEntry, len(ids))
	for _, id := range ids {
		entries[id] = c.rooms[id]
	}
	pinUnread := c.cfg.PinUnreadRooms
	c.mu.Unlock()

	type scored struct {
		id          string
		favourite   bool
		notif       int
		timeCreated int64
	}
	rows := make([]scored, 0, len(ids))
	for _, id := range ids {
		e := entries[id]
		rows = append(rows, scored{
			id:          id,
			favourite:   roomIsFavourite(e.room),
			notif:       e.room.NotificationCount,
			timeCreated: roomTimeCreated(e.room),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.favourite != b.favourite {
			return a.favourite
		}
		if pinUnread && a.notif != b.notif {
			return a.notif > b.notif
		}
		return a.timeCreated > b.timeCreated
	})

	c.mu.Lock()
	c.sortedOrder = make([]string, len(rows))
	for i, row := range rows {
		c.sortedOrder[i] = row.id
	}
	c.sorting = false
	c.mu.Unlock()
}
