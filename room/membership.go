package room

// MemberMembership returns the `m.room.member` membership value for
// userID, or "" if no such state is known.
func (r *Room) MemberMembership(userID string) string {
	ev := r.GetState("m.room.member", userID)
	if ev == nil {
		return ""
	}
	m, _ := ev.GetContentString("membership")
	return m
}

// JoinedMembers returns the user IDs with membership=join.
func (r *Room) JoinedMembers() []string {
	return r.membersWith("join")
}

// InvitedMembers returns the user IDs with membership=invite.
func (r *Room) InvitedMembers() []string {
	return r.membersWith("invite")
}

func (r *Room) membersWith(membership string) []string {
	var out []string
	for userID := range r.AllState("m.room.member") {
		if r.MemberMembership(userID) == membership {
			out = append(out, userID)
		}
	}
	return out
}

// EncryptionAlgorithm reports whether the room has an m.room.encryption state
// event and returns its configured algorithm.
func (r *Room) EncryptionAlgorithm() (string, bool) {
	ev := r.GetState("m.room.encryption", "")
	if ev == nil {
		return "", false
	}
	return ev.GetContentString("algorithm")
}

// UpdateCounters applies the unread-notification counters from a sync
// response and fires onUpdate.
func (r *Room) UpdateCounters(highlightCount, notificationCount int) {
	r.mu.Lock()
	r.HighlightCount = highlightCount
	r.NotificationCount = notificationCount
	r.mu.Unlock()
	r.notifyUpdate()
}

// UpdateSummary applies the room-summary fields from a sync response and
// fires onUpdate.
func (r *Room) UpdateSummary(s Summary) {
	r.mu.Lock()
	r.Summary = s
	r.mu.Unlock()
	r.notifyUpdate()
}

// SetMembership updates the client's own membership relationship to this
// room and fires onUpdate.
func (r *Room) SetMembership(m Membership) {
	r.mu.Lock()
	r.Membership = m
	r.mu.Unlock()
	r.notifyUpdate()
}

// SetPrevBatch stores the room's pagination token.
func (r *Room) SetPrevBatch(token string) {
	r.mu.Lock()
	r.PrevBatch = token
	r.mu.Unlock()
}
