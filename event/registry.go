package event

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// ErrRegistryFrozen is returned when a content type is registered after
// decoding has started. Registration is a startup-time operation; doing it
// concurrently with decoding is a caller bug.
var ErrRegistryFrozen = errors.New("event: registry is frozen, register content types before decoding")

// registry maps the two discriminators to content constructors. It is
// mutable until the first decode, then frozen so lookups need only a read
// lock.
type registry struct {
	mu       sync.RWMutex
	frozen   bool
	events   map[Type]func() Content
	messages map[string]func() MessageContent
}

var defaultRegistry = newRegistry()

func newRegistry() *registry {
	r := &registry{
		events:   make(map[Type]func() Content),
		messages: make(map[string]func() MessageContent),
	}

	r.events[RoomCreate] = func() Content { return &CreateContent{} }
	r.events[RoomMember] = func() Content { return &MemberContent{} }
	r.events[RoomName] = func() Content { return &NameContent{} }
	r.events[RoomTopic] = func() Content { return &TopicContent{} }
	r.events[RoomAvatar] = func() Content { return &AvatarContent{} }
	r.events[RoomCanonicalAlias] = func() Content { return &CanonicalAliasContent{} }
	r.events[RoomAliases] = func() Content { return &AliasesContent{} }
	r.events[RoomJoinRules] = func() Content { return &JoinRulesContent{} }
	r.events[RoomPowerLevels] = func() Content { return &PowerLevelsContent{} }
	r.events[RoomMessage] = func() Content { return RawMessageContent{} }
	r.events[RoomRedaction] = func() Content { return &RedactionContent{} }
	r.events[RoomHistoryVisibility] = func() Content { return &HistoryVisibilityContent{} }
	r.events[RoomGuestAccess] = func() Content { return &GuestAccessContent{} }
	r.events[RoomPinnedEvents] = func() Content { return &PinnedEventsContent{} }
	r.events[Typing] = func() Content { return &TypingContent{} }
	r.events[Receipt] = func() Content { return &ReceiptContent{} }
	r.events[Presence] = func() Content { return &PresenceContent{} }
	r.events[Direct] = func() Content { return &DirectContent{} }

	r.messages[MsgText] = func() MessageContent { return &TextMessage{} }
	r.messages[MsgEmote] = func() MessageContent { return &EmoteMessage{} }
	r.messages[MsgNotice] = func() MessageContent { return &NoticeMessage{} }
	r.messages[MsgImage] = func() MessageContent { return &ImageMessage{} }
	r.messages[MsgFile] = func() MessageContent { return &FileMessage{} }
	r.messages[MsgAudio] = func() MessageContent { return &AudioMessage{} }
	r.messages[MsgVideo] = func() MessageContent { return &VideoMessage{} }
	r.messages[MsgLocation] = func() MessageContent { return &LocationMessage{} }

	return r
}

func (r *registry) freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *registry) eventContent(t Type) (func() Content, bool) {
	r.mu.RLock()
	f, ok := r.events[t]
	r.mu.RUnlock()
	return f, ok
}

func (r *registry) messageContent(msgtype string) (func() MessageContent, bool) {
	r.mu.RLock()
	f, ok := r.messages[msgtype]
	r.mu.RUnlock()
	return f, ok
}

func (r *registry) registerEvent(t Type, factory func() Content) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return errors.Wrapf(ErrRegistryFrozen, "registering %q", t)
	}
	r.events[t] = factory
	return nil
}

func (r *registry) registerMessage(msgtype string, factory func() MessageContent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return errors.Wrapf(ErrRegistryFrozen, "registering msgtype %q", msgtype)
	}
	r.messages[msgtype] = factory
	return nil
}

// RegisterEventContent maps an event type to a content constructor,
// extending the protocol with custom event types. Must be called before
// any decoding; after the first ParseEvent the registry is frozen and
// registration fails with ErrRegistryFrozen.
func RegisterEventContent(t Type, factory func() Content) error {
	return defaultRegistry.registerEvent(t, factory)
}

// RegisterMessageContent maps an m.room.message msgtype to a content
// constructor. Same freeze semantics as RegisterEventContent.
func RegisterMessageContent(msgtype string, factory func() MessageContent) error {
	return defaultRegistry.registerMessage(msgtype, factory)
}

// peekString extracts a single string field from a raw payload without a
// full decode.
func peekString(raw []byte, path string) string {
	return gjson.GetBytes(raw, path).String()
}
