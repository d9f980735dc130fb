// Package event contains the wire types for the Matrix client-server
// protocol and the codec that turns untyped JSON payloads into typed
// content structs.
//
// Decoding is discriminator driven: the top-level "type" field selects the
// content shape, and for m.room.message events the nested "msgtype" field
// selects the message variant. Both mappings live in a registry that
// callers can extend with RegisterEventContent and RegisterMessageContent
// before the first event is decoded.
package event

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Type is the top-level event type discriminator ("type" on the wire).
type Type string

const (
	RoomCreate            Type = "m.room.create"
	RoomMember            Type = "m.room.member"
	RoomName              Type = "m.room.name"
	RoomTopic             Type = "m.room.topic"
	RoomAvatar            Type = "m.room.avatar"
	RoomCanonicalAlias    Type = "m.room.canonical_alias"
	RoomAliases           Type = "m.room.aliases"
	RoomJoinRules         Type = "m.room.join_rules"
	RoomPowerLevels       Type = "m.room.power_levels"
	RoomMessage           Type = "m.room.message"
	RoomRedaction         Type = "m.room.redaction"
	RoomHistoryVisibility Type = "m.room.history_visibility"
	RoomGuestAccess       Type = "m.room.guest_access"
	RoomPinnedEvents      Type = "m.room.pinned_events"
	RoomEncryption        Type = "m.room.encryption"
	Typing                Type = "m.typing"
	Receipt               Type = "m.receipt"
	Presence              Type = "m.presence"
	Direct                Type = "m.direct"
)

// Membership is the closed enum carried in m.room.member content. An
// unrecognized value is a decode failure, never a fallback: membership
// drives the room state machine.
type Membership string

const (
	MembershipInvite Membership = "invite"
	MembershipJoin   Membership = "join"
	MembershipKnock  Membership = "knock"
	MembershipLeave  Membership = "leave"
	MembershipBan    Membership = "ban"
)

// ParseMembership validates a wire membership string against the closed enum.
func ParseMembership(s string) (Membership, error) {
	switch m := Membership(s); m {
	case MembershipInvite, MembershipJoin, MembershipKnock, MembershipLeave, MembershipBan:
		return m, nil
	}
	return "", &DecodeError{Field: "membership", Value: s}
}

// Content is implemented by every typed event content. Callers registering
// custom event types implement it on their own structs.
type Content interface {
	EventContent()
}

// MessageContent is implemented by the m.room.message content variants,
// selected by the nested "msgtype" discriminator.
type MessageContent interface {
	Content
	MsgType() string
}

// Event is a single protocol event. Server-assigned fields (EventID,
// OriginServerTS) are empty on client-constructed events and omitted when
// encoding, so decode(encode(x)) round-trips field for field.
type Event struct {
	Type           Type
	Sender         string
	RoomID         string
	EventID        string
	OriginServerTS int64
	// StateKey is non-nil for state events only; the empty string means
	// the event applies room-wide.
	StateKey    *string
	Content     Content
	PrevContent Content
	Unsigned    *Unsigned
}

// Unsigned holds server-attached metadata that is not part of the signed
// event body.
type Unsigned struct {
	Age             int64           `json:"age,omitempty"`
	RedactedBecause *Event          `json:"redacted_because,omitempty"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	InviteRoomState []StrippedState `json:"invite_room_state,omitempty"`
}

// StrippedState is the reduced state preview attached to room invites.
type StrippedState struct {
	Type     Type                `json:"type"`
	Sender   string              `json:"sender,omitempty"`
	StateKey string              `json:"state_key"`
	Content  jsoniter.RawMessage `json:"content,omitempty"`
}

// IsState reports whether the event carries a state key.
func (ev *Event) IsState() bool {
	return ev.StateKey != nil
}

// Member returns the typed member content, or nil if the event is not a
// decoded m.room.member event.
func (ev *Event) Member() *MemberContent {
	m, _ := ev.Content.(*MemberContent)
	return m
}

// Message returns the message content variant, or nil if the event is not
// an m.room.message event.
func (ev *Event) Message() MessageContent {
	m, _ := ev.Content.(MessageContent)
	return m
}

// wireEvent is the JSON shape events travel in.
type wireEvent struct {
	Type           Type                `json:"type"`
	Sender         string              `json:"sender,omitempty"`
	RoomID         string              `json:"room_id,omitempty"`
	EventID        string              `json:"event_id,omitempty"`
	OriginServerTS int64               `json:"origin_server_ts,omitempty"`
	StateKey       *string             `json:"state_key,omitempty"`
	Content        jsoniter.RawMessage `json:"content,omitempty"`
	PrevContent    jsoniter.RawMessage `json:"prev_content,omitempty"`
	Unsigned       *Unsigned           `json:"unsigned,omitempty"`
}

// DecodeError reports a payload that could not be mapped onto a concrete
// content type. Field names the offending discriminator and Raw carries
// the payload that failed.
type DecodeError struct {
	Field string
	Value string
	Raw   []byte
}

func (e *DecodeError) Error() string {
	if len(e.Raw) > 0 {
		return fmt.Sprintf("event: cannot decode %s %q: %s", e.Field, e.Value, string(e.Raw))
	}
	return fmt.Sprintf("event: cannot decode %s %q", e.Field, e.Value)
}

// MarshalJSON encodes the event in wire form. Zero-valued server-assigned
// fields are omitted.
func (ev *Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		Type:           ev.Type,
		Sender:         ev.Sender,
		RoomID:         ev.RoomID,
		EventID:        ev.EventID,
		OriginServerTS: ev.OriginServerTS,
		StateKey:       ev.StateKey,
		Unsigned:       ev.Unsigned,
	}

	if ev.Content != nil {
		raw, err := json.Marshal(ev.Content)
		if err != nil {
			return nil, err
		}
		w.Content = raw
	}

	if ev.PrevContent != nil {
		raw, err := json.Marshal(ev.PrevContent)
		if err != nil {
			return nil, err
		}
		w.PrevContent = raw
	}

	return json.Marshal(&w)
}

// UnmarshalJSON decodes a single event through the registry. Equivalent to
// ParseEvent.
func (ev *Event) UnmarshalJSON(raw []byte) error {
	parsed, err := ParseEvent(raw)
	if err != nil {
		return err
	}
	*ev = *parsed
	return nil
}

// ParseEvent decodes a raw JSON event into exactly one concrete typed
// value. Events of unregistered types decode their content into the
// generic RawContent wrapper; a registered type whose content does not fit
// its shape fails with a *DecodeError. The first call freezes the content
// registry.
func ParseEvent(raw []byte) (*Event, error) {
	defaultRegistry.freeze()

	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &DecodeError{Field: "event", Value: "", Raw: raw}
	}
	if w.Type == "" {
		return nil, &DecodeError{Field: "type", Value: "", Raw: raw}
	}

	ev := &Event{
		Type:           w.Type,
		Sender:         w.Sender,
		RoomID:         w.RoomID,
		EventID:        w.EventID,
		OriginServerTS: w.OriginServerTS,
		StateKey:       w.StateKey,
		Unsigned:       w.Unsigned,
	}

	content, err := parseContent(w.Type, w.Content)
	if err != nil {
		return nil, err
	}
	ev.Content = content

	if len(w.PrevContent) > 0 {
		// Previous content is advisory: servers have been observed to
		// attach truncated snapshots, so a shape mismatch degrades to
		// the generic wrapper instead of failing the event.
		prev, err := parseContent(w.Type, w.PrevContent)
		if err != nil {
			var m RawContent
			if json.Unmarshal(w.PrevContent, &m) == nil {
				prev = m
			}
		}
		ev.PrevContent = prev
	}

	return ev, nil
}

// parseContent maps a raw content payload onto its concrete type using the
// registries.
func parseContent(t Type, raw []byte) (Content, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	factory, ok := defaultRegistry.eventContent(t)
	if !ok {
		var m RawContent
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, &DecodeError{Field: "content", Value: string(t), Raw: raw}
		}
		return m, nil
	}

	if t == RoomMessage {
		return parseMessageContent(raw)
	}

	content := factory()
	if err := json.Unmarshal(raw, content); err != nil {
		return nil, &DecodeError{Field: "content", Value: string(t), Raw: raw}
	}

	if member, ok := content.(*MemberContent); ok {
		if _, err := ParseMembership(string(member.Membership)); err != nil {
			return nil, &DecodeError{Field: "membership", Value: string(member.Membership), Raw: raw}
		}
	}

	return content, nil
}
