package event

import (
	"sort"

	"github.com/matrixgo/sdk/internal/jsonutil"
)

// AggregationSource is the subset of Timeline's aggregation index the Event
// package needs to resolve edits/reactions without importing the timeline
// package (§9 cyclic-reference note: aggregation indexes hold event IDs,
// lookups go through the owner's maps, not back-pointers).
type AggregationSource interface {
	AggregatedEvents(eventID, relationType string) []*Event
}

// AggregatedEvents returns tl's recorded set of events related to e by
// relationType.
func (e *Event) AggregatedEvents(tl AggregationSource, relationType string) []*Event {
	return tl.AggregatedEvents(e.EventID, relationType)
}

// GetDisplayEvent collapses edits (relation m.replace): among tl's replace
// relations targeting e, keep only those authored by e's own sender and of
// type m.room.message, sort ascending by sort_order, and if any remain
// return a copy of e whose Content is the latest edit's
// content."m.new_content" (§4.B).
func (e *Event) GetDisplayEvent(tl AggregationSource) *Event {
	edits := tl.AggregatedEvents(e.EventID, RelReplace)
	var valid []*Event
	for _, edit := range edits {
		if edit.SenderID != e.SenderID {
			continue
		}
		if edit.Type != TypeMessage {
			continue
		}
		valid = append(valid, edit)
	}
	if len(valid) == 0 {
		return e
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].SortOrder.Less(valid[j].SortOrder) })
	latest := valid[len(valid)-1]

	newContent := jsonutil.Get(latest.Content, "m\\.new_content")
	if !newContent.Exists() || !newContent.IsObject() {
		return e
	}

	displayed := *e
	displayed.Content = []byte(newContent.Raw)
	return &displayed
}
