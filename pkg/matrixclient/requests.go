package matrixclient

import (
	jsoniter "github.com/json-iterator/go"
)

// ReqLogin is the body of POST /login for password login.
type ReqLogin struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	DeviceID                 string `json:"device_id,omitempty"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// RespLogin is returned by POST /login.
type RespLogin struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id,omitempty"`
	HomeServer  string `json:"home_server,omitempty"`
}

// RespWhoami is returned by GET /account/whoami.
type RespWhoami struct {
	UserID string `json:"user_id"`
}

// ReqCreateRoom is the body of POST /createRoom.
type ReqCreateRoom struct {
	Name          string   `json:"name,omitempty"`
	Topic         string   `json:"topic,omitempty"`
	RoomAliasName string   `json:"room_alias_name,omitempty"`
	Visibility    string   `json:"visibility,omitempty"`
	Preset        string   `json:"preset,omitempty"`
	Invite        []string `json:"invite,omitempty"`
	IsDirect      bool     `json:"is_direct,omitempty"`
}

// RespCreateRoom is returned by POST /createRoom.
type RespCreateRoom struct {
	RoomID string `json:"room_id"`
}

// RespJoinRoom is returned by POST /join/{roomIDOrAlias}.
type RespJoinRoom struct {
	RoomID string `json:"room_id"`
}

// RespSendEvent is returned by PUT /rooms/{roomID}/send/{type}/{txnID}
// and by state-event puts.
type RespSendEvent struct {
	EventID string `json:"event_id"`
}

// RespResolveAlias is returned by GET /directory/room/{alias}.
type RespResolveAlias struct {
	RoomID  string   `json:"room_id"`
	Servers []string `json:"servers,omitempty"`
}

// RespDisplayName is returned by GET /profile/{userID}/displayname.
type RespDisplayName struct {
	DisplayName string `json:"displayname"`
}

// RespAvatarURL is returned by GET /profile/{userID}/avatar_url.
type RespAvatarURL struct {
	AvatarURL string `json:"avatar_url"`
}

// RespUpload is returned by the media upload endpoint.
type RespUpload struct {
	ContentURI string `json:"content_uri"`
}

// RespJoinedRooms is returned by GET /joined_rooms.
type RespJoinedRooms struct {
	JoinedRooms []string `json:"joined_rooms"`
}

// EventList is a list of raw events. Events are decoded one at a time so
// a single undecodable event can be skipped without losing the batch.
type EventList struct {
	Events []jsoniter.RawMessage `json:"events"`
}

// TimelineSection is the timeline portion of a joined room's sync payload.
type TimelineSection struct {
	Events    []jsoniter.RawMessage `json:"events"`
	Limited   bool                  `json:"limited,omitempty"`
	PrevBatch string                `json:"prev_batch,omitempty"`
}

// SyncJoinedRoom is the per-room payload for rooms the user has joined.
type SyncJoinedRoom struct {
	State     EventList       `json:"state"`
	Timeline  TimelineSection `json:"timeline"`
	Ephemeral EventList       `json:"ephemeral"`
}

// SyncInvitedRoom is the per-room payload for rooms the user has been
// invited to; it carries stripped state only.
type SyncInvitedRoom struct {
	InviteState EventList `json:"invite_state"`
}

// SyncLeftRoom is the per-room payload for rooms the user has left.
type SyncLeftRoom struct {
	State    EventList       `json:"state"`
	Timeline TimelineSection `json:"timeline"`
}

// RespSync is the top-level response of GET /sync.
type RespSync struct {
	NextBatch string `json:"next_batch"`
	Rooms     struct {
		Join   map[string]SyncJoinedRoom  `json:"join"`
		Invite map[string]SyncInvitedRoom `json:"invite"`
		Leave  map[string]SyncLeftRoom    `json:"leave"`
	} `json:"rooms"`
}

// ReqInvite is the body of POST /rooms/{roomID}/invite.
type ReqInvite struct {
	UserID string `json:"user_id"`
}

// ReqKick is the body of POST /rooms/{roomID}/kick.
type ReqKick struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

// ReqTyping is the body of PUT /rooms/{roomID}/typing/{userID}.
type ReqTyping struct {
	Typing  bool  `json:"typing"`
	Timeout int64 `json:"timeout,omitempty"`
}

// ReqDisplayName is the body of PUT /profile/{userID}/displayname.
type ReqDisplayName struct {
	DisplayName string `json:"displayname"`
}

// ReqAvatarURL is the body of PUT /profile/{userID}/avatar_url.
type ReqAvatarURL struct {
	AvatarURL string `json:"avatar_url"`
}

// ReqTag is the body of PUT /user/{userID}/rooms/{roomID}/tags/{tag}.
type ReqTag struct {
	Order float64 `json:"order,omitempty"`
}
