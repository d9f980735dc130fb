package event

// RawContent is the generic passthrough wrapper for events of unregistered
// types. It preserves the full content payload; callers pull typed fields
// out with Decode.
type RawContent map[string]interface{}

func (RawContent) EventContent() {}

// CreateContent is the content of m.room.create. The wire format
// guarantees at most one create event per room.
type CreateContent struct {
	Creator     string `json:"creator"`
	Federate    *bool  `json:"m.federate,omitempty"`
	RoomVersion string `json:"room_version,omitempty"`
}

func (*CreateContent) EventContent() {}

// Federated reports whether the room participates in federation. The wire
// default when m.federate is absent is true.
func (c *CreateContent) Federated() bool {
	return c.Federate == nil || *c.Federate
}

// MemberContent is the content of m.room.member. Membership has already
// been validated against the closed enum by the codec.
type MemberContent struct {
	Membership  Membership `json:"membership"`
	Displayname string     `json:"displayname,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	IsDirect    bool       `json:"is_direct,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

func (*MemberContent) EventContent() {}

// NameContent is the content of m.room.name.
type NameContent struct {
	Name string `json:"name"`
}

func (*NameContent) EventContent() {}

// TopicContent is the content of m.room.topic.
type TopicContent struct {
	Topic string `json:"topic"`
}

func (*TopicContent) EventContent() {}

// AvatarContent is the content of m.room.avatar.
type AvatarContent struct {
	URL string `json:"url"`
}

func (*AvatarContent) EventContent() {}

// CanonicalAliasContent is the content of m.room.canonical_alias.
type CanonicalAliasContent struct {
	Alias      string   `json:"alias,omitempty"`
	AltAliases []string `json:"alt_aliases,omitempty"`
}

func (*CanonicalAliasContent) EventContent() {}

// AliasesContent is the content of the historical m.room.aliases event.
type AliasesContent struct {
	Aliases []string `json:"aliases"`
}

func (*AliasesContent) EventContent() {}

// JoinRulesContent is the content of m.room.join_rules.
type JoinRulesContent struct {
	JoinRule string `json:"join_rule"`
}

func (*JoinRulesContent) EventContent() {}

// PowerLevelsContent is the content of m.room.power_levels. Zero values
// are meaningful ("everyone may") so defaulted fields use pointers.
type PowerLevelsContent struct {
	Users         map[string]int `json:"users,omitempty"`
	UsersDefault  int            `json:"users_default,omitempty"`
	Events        map[string]int `json:"events,omitempty"`
	EventsDefault int            `json:"events_default,omitempty"`
	StateDefault  int            `json:"state_default,omitempty"`
	Ban           *int           `json:"ban,omitempty"`
	Kick          *int           `json:"kick,omitempty"`
	Redact        *int           `json:"redact,omitempty"`
	Invite        *int           `json:"invite,omitempty"`
}

func (*PowerLevelsContent) EventContent() {}

// UserLevel returns the power level for a user, falling back to the
// room-wide default.
func (c *PowerLevelsContent) UserLevel(userID string) int {
	if level, ok := c.Users[userID]; ok {
		return level
	}
	return c.UsersDefault
}

// RedactionContent is the content of m.room.redaction.
type RedactionContent struct {
	Reason string `json:"reason,omitempty"`
}

func (*RedactionContent) EventContent() {}

// HistoryVisibilityContent is the content of m.room.history_visibility.
type HistoryVisibilityContent struct {
	HistoryVisibility string `json:"history_visibility"`
}

func (*HistoryVisibilityContent) EventContent() {}

// GuestAccessContent is the content of m.room.guest_access.
type GuestAccessContent struct {
	GuestAccess string `json:"guest_access"`
}

func (*GuestAccessContent) EventContent() {}

// PinnedEventsContent is the content of m.room.pinned_events.
type PinnedEventsContent struct {
	Pinned []string `json:"pinned"`
}

func (*PinnedEventsContent) EventContent() {}

// TypingContent is the content of the m.typing ephemeral event.
type TypingContent struct {
	UserIDs []string `json:"user_ids"`
}

func (*TypingContent) EventContent() {}

// ReceiptContent is the content of the m.receipt ephemeral event, keyed by
// event ID. The nested shape varies by receipt type, so it stays generic.
type ReceiptContent map[string]interface{}

func (ReceiptContent) EventContent() {}

// PresenceContent is the content of m.presence.
type PresenceContent struct {
	Presence        string `json:"presence"`
	StatusMsg       string `json:"status_msg,omitempty"`
	LastActiveAgo   int64  `json:"last_active_ago,omitempty"`
	CurrentlyActive bool   `json:"currently_active,omitempty"`
}

func (*PresenceContent) EventContent() {}

// DirectContent is the content of the m.direct account data event: user ID
// to the rooms that are direct chats with that user.
type DirectContent map[string][]string

func (DirectContent) EventContent() {}
