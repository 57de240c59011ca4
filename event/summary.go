package event

import "github.com/matrixgo/sdk/internal/jsonutil"

// MatrixLocalizations is the pluggable string-provider capability the core
// depends on for human-readable event summaries (§1 Purpose & scope:
// "Localization of event summaries"). Every method receives already-
// resolved display names; the provider only owns phrasing/i18n.
type MatrixLocalizations interface {
	AcceptedInvite(senderName string) string
	RejectedInvite(senderName string) string
	InvitationWithdrawn(targetName string) string
	Joined(targetName string) string
	KickedAndBanned(targetName, senderName string) string
	Kicked(targetName, senderName string) string
	Unbanned(targetName, senderName string) string
	Banned(targetName, senderName string) string
	Left(targetName string) string
	Invited(targetName, senderName string) string
	ChangedAvatar(targetName string) string
	ChangedDisplayname(targetName string) string
	SentAMessage(senderName, body string) string
	SentAnImage(senderName string) string
	SentAVideo(senderName string) string
	SentAnAudio(senderName string) string
	SentAFile(senderName string) string
	SentASticker(senderName string) string
	SentAReaction(senderName, key string) string
	UnknownEvent(eventType string) string
}

// membership values.
const (
	membershipJoin   = "join"
	membershipInvite = "invite"
	membershipLeave  = "leave"
	membershipBan    = "ban"
)

// Summary renders a human sentence for e via loc, dispatching by type with
// sub-dispatch on membership transitions / msgtype (§4.B). senderName and
// targetName are the already-resolved display names (or MXID fallback) of
// the sender and, for membership events, the state_key subject. localUserID
// is the viewing client's own user ID, used for "you"/self phrasing and the
// room-list sender-name prefix.
func (e *Event) Summary(loc MatrixLocalizations, senderName, targetName, localUserID string, roomListPreview bool) string {
	switch e.Type {
	case "m.room.member":
		return e.membershipSummary(loc, senderName, targetName)
	case TypeMessage, TypeSticker:
		return e.messageSummary(loc, senderName, localUserID, roomListPreview)
	case "m.reaction":
		key, _ := jsonutil.NonEmptyString(e.Content, "m\\.relates_to.key")
		return loc.SentAReaction(senderName, key)
	default:
		return loc.UnknownEvent(e.Type)
	}
}

func (e *Event) membershipSummary(loc MatrixLocalizations, senderName, targetName string) string {
	newM, _ := jsonutil.NonEmptyString(e.Content, "membership")
	oldM, hadOld := jsonutil.NonEmptyString(e.PrevContent, "membership")
	selfAction := e.StateKey != nil && e.SenderID == *e.StateKey

	switch {
	case newM == membershipInvite:
		return loc.Invited(targetName, senderName)
	case oldM == membershipInvite && newM == membershipJoin:
		return loc.AcceptedInvite(senderName)
	case oldM == membershipInvite && newM == membershipLeave && selfAction:
		return loc.RejectedInvite(senderName)
	case oldM == membershipInvite && newM == membershipLeave:
		return loc.InvitationWithdrawn(targetName)
	case oldM == membershipLeave && newM == membershipJoin:
		return loc.Joined(targetName)
	case oldM == membershipJoin && newM == membershipBan:
		return loc.KickedAndBanned(targetName, senderName)
	case oldM == membershipJoin && newM == membershipLeave && !selfAction:
		return loc.Kicked(targetName, senderName)
	case oldM == membershipJoin && newM == membershipLeave && selfAction:
		return loc.Left(targetName)
	case (oldM == membershipInvite || oldM == membershipLeave) && newM == membershipBan:
		return loc.Banned(targetName, senderName)
	case oldM == membershipBan && newM == membershipLeave:
		return loc.Unbanned(targetName, senderName)
	case hadOld && oldM == membershipJoin && newM == membershipJoin:
		// no membership change: report avatar/displayname change instead.
		if avatarChanged(e) {
			return loc.ChangedAvatar(targetName)
		}
		return loc.ChangedDisplayname(targetName)
	default:
		return loc.UnknownEvent(e.Type)
	}
}

func avatarChanged(e *Event) bool {
	oldAvatar, _ := jsonutil.NonEmptyString(e.PrevContent, "avatar_url")
	newAvatar, _ := jsonutil.NonEmptyString(e.Content, "avatar_url")
	return oldAvatar != newAvatar
}

func (e *Event) messageSummary(loc MatrixLocalizations, senderName, localUserID string, roomListPreview bool) string {
	if e.Type == TypeSticker {
		return loc.SentASticker(senderName)
	}

	prefix := ""
	if roomListPreview && e.IsTextLikeMessage() {
		name := senderName
		if localUserID != "" && e.SenderID == localUserID {
			name = "you"
		}
		prefix = name + ": "
	}
	switch e.MessageType() {
	case "m.image":
		return prefix + loc.SentAnImage(senderName)
	case "m.video":
		return prefix + loc.SentAVideo(senderName)
	case "m.audio":
		return prefix + loc.SentAnAudio(senderName)
	case "m.file":
		return prefix + loc.SentAFile(senderName)
	default:
		body := StripReplyFallback(e.Body())
		return prefix + loc.SentAMessage(senderName, body)
	}
}
