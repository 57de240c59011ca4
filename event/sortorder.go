package event

import "fmt"

// SortOrder is a dense, monotone total order assigned to events as they
// enter the client. It replaces the source implementation's raw double
// (§9 design note: "a fractional ordering ... is acceptable as long as gap
// reinsertion after reset_sort_order remains cheap"): Minor advances by one
// for each event a Cursor hands out (upward for new events, downward for
// backfill), and Major moves only when a room's cursors are rebased after a
// limited-timeline gap, so no existing event is ever renumbered.
type SortOrder struct {
	Major int64
	Minor int64
}

// Zero is used for ephemeral events, which are never persisted or ordered
// against the timeline (§4.E: "0.0 for ephemerals").
var Zero = SortOrder{}

// Compare returns -1, 0, 1 as a is less than, equal to, or greater than b.
func (a SortOrder) Compare(b SortOrder) int {
	switch {
	case a.Major != b.Major:
		if a.Major < b.Major {
			return -1
		}
		return 1
	case a.Minor != b.Minor:
		if a.Minor < b.Minor {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func (a SortOrder) Less(b SortOrder) bool { return a.Compare(b) < 0 }

func (a SortOrder) String() string { return fmt.Sprintf("%d.%d", a.Major, a.Minor) }

// Next returns the next order in the same major band, used to assign
// distinct order to successive events processed within one sync pass.
func (a SortOrder) Next() SortOrder { return SortOrder{Major: a.Major, Minor: a.Minor + 1} }

// Cursor hands out increasing SortOrders for newly-arriving events
// (Room.new_sort_order) or decreasing ones for backfilled history
// (Room.old_sort_order), per §4.C.
type Cursor struct {
	current SortOrder
	step    int64
}

// NewForwardCursor starts a cursor that increases.
func NewForwardCursor(start SortOrder) *Cursor { return &Cursor{current: start, step: 1} }

// NewBackwardCursor starts a cursor that decreases, for backfill.
func NewBackwardCursor(start SortOrder) *Cursor { return &Cursor{current: start, step: -1} }

// Take returns the next value and advances the cursor.
func (c *Cursor) Take() SortOrder {
	v := c.current
	c.current = SortOrder{Major: c.current.Major, Minor: c.current.Minor + c.step}
	return v
}

// Reset rebases the cursor at start, used by reset_sort_order() when a
// limited-timeline gap is reported so subsequently ingested events receive
// fresh monotone ordering disjoint from anything already stored.
func (c *Cursor) Reset(start SortOrder) { c.current = start }

// Peek returns the value Take would return next, without advancing.
func (c *Cursor) Peek() SortOrder { return c.current }
