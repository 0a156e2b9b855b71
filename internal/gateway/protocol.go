package gateway

import "encoding/json"

// Client → gateway events.
const (
	EventJoinRoom        = "join-room"
	EventLeaveRoom       = "leave-room"
	EventCodeChange      = "code-change"
	EventLanguageChange  = "language-change"
	EventCursorActivity  = "cursorActivity"
	EventSelectionChange = "selectionChange"
	EventInviteUser      = "invite-user"
)

// Gateway → client events.
const (
	EventInitialCode          = "initial-code"
	EventCodeUpdate           = "code-update"
	EventLanguageChangeUpdate = "language-change-update"
	EventUserList             = "user-list"
	EventCursorUpdate         = "cursorUpdate"
	EventSelectionUpdate      = "selectionUpdate"
	EventRoomError            = "room-error"
	EventAuthError            = "authError"
	EventInvitedUserList      = "invited-user-list"
	EventYouAreInvited        = "you-are-invited"
	EventInviteSent           = "invite-sent"
)

// Frame is the single wire envelope in both directions. Which fields are
// set depends on the event; unused fields are omitted. Cursor and
// selection payloads are opaque to the server and passed through as raw
// JSON.
type Frame struct {
	Event        string          `json:"event"`
	RoomID       string          `json:"roomId,omitempty"`
	Username     string          `json:"username,omitempty"`
	Code         string          `json:"code,omitempty"`
	Language     string          `json:"language,omitempty"`
	Cursor       json.RawMessage `json:"cursor,omitempty"`
	Selection    json.RawMessage `json:"selection,omitempty"`
	TargetUserID string          `json:"targetUserId,omitempty"`
	Users        []string        `json:"users,omitempty"`
	From         string          `json:"from,omitempty"`
	Message      string          `json:"message,omitempty"`
}
