package matrixclient

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/42wim/matrixclient/event"
)

// Member is the per-user, per-room membership record. Records are created
// on the first membership event for a user and mutated in place afterwards.
// They are never removed: a leave is a state, not a deletion.
type Member struct {
	UserID      string
	Membership  event.Membership
	DisplayName string
	AvatarURL   string
}

// Room is the live projection of one room's event stream. All mutation
// happens through processEvent on the sync worker; getters are safe from
// any goroutine.
type Room struct {
	ID string

	client *Client

	mutex          sync.RWMutex
	name           string
	topic          string
	creator        string
	federated      bool
	created        bool
	canonicalAlias string
	altAliases     []string
	joinRule       string
	powerLevels    *event.PowerLevelsContent
	lastEphemeral  event.Content

	members     map[string]*Member
	memberOrder []string

	history *lru.Cache
}

func newRoom(c *Client, roomID string, historySize int) *Room {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	history, _ := lru.New(historySize)

	return &Room{
		ID:      roomID,
		client:  c,
		members: make(map[string]*Member),
		history: history,
	}
}

// Name returns the room's display name.
func (r *Room) Name() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.name
}

// Topic returns the room topic.
func (r *Room) Topic() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.topic
}

// Creator returns the user that created the room.
func (r *Room) Creator() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.creator
}

// Federated reports whether the room participates in federation.
func (r *Room) Federated() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.federated
}

// CanonicalAlias returns the room's canonical alias.
func (r *Room) CanonicalAlias() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.canonicalAlias
}

// AltAliases returns the room's alternate aliases.
func (r *Room) AltAliases() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]string(nil), r.altAliases...)
}

// JoinRule returns the room's join rule.
func (r *Room) JoinRule() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.joinRule
}

// PowerLevels returns the room's power-level table, or nil when no
// power-levels event has been observed.
func (r *Room) PowerLevels() *event.PowerLevelsContent {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.powerLevels
}

// LastEphemeral returns the most recent ephemeral payload (typing,
// receipts) seen for this room.
func (r *Room) LastEphemeral() event.Content {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.lastEphemeral
}

// Member returns the membership record for a user, or nil if the room has
// never observed a membership event for them.
func (r *Room) Member(userID string) *Member {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.members[userID]
}

// Members returns all membership records in the order the users were
// first observed.
func (r *Room) Members() []*Member {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	members := make([]*Member, 0, len(r.memberOrder))
	for _, userID := range r.memberOrder {
		members = append(members, r.members[userID])
	}
	return members
}

// Messages returns the retained message history, oldest first. The ring
// is bounded; the oldest message is evicted on overflow.
func (r *Room) Messages() []*event.Event {
	messages := make([]*event.Event, 0, r.history.Len())
	for _, key := range r.history.Keys() {
		if v, ok := r.history.Peek(key); ok {
			messages = append(messages, v.(*event.Event))
		}
	}
	return messages
}

// processEvent folds one decoded event into the room state and fires the
// matching notifications. initial marks a catch-up feed: membership
// fan-out is suppressed so a backlog replay does not look like a flood of
// live joins and leaves, but state is applied either way. The generic
// per-event hook fires exactly once for every applied event, last.
func (r *Room) processEvent(ev *event.Event, initial bool) {
	switch content := ev.Content.(type) {
	case *event.CreateContent:
		r.applyCreate(content)
	case *event.NameContent:
		r.mutex.Lock()
		r.name = content.Name
		r.mutex.Unlock()
	case *event.TopicContent:
		r.mutex.Lock()
		r.topic = content.Topic
		r.mutex.Unlock()
	case *event.CanonicalAliasContent:
		r.mutex.Lock()
		r.canonicalAlias = content.Alias
		r.altAliases = content.AltAliases
		r.mutex.Unlock()
	case *event.JoinRulesContent:
		r.mutex.Lock()
		r.joinRule = content.JoinRule
		r.mutex.Unlock()
	case *event.PowerLevelsContent:
		r.mutex.Lock()
		r.powerLevels = content
		r.mutex.Unlock()
	case *event.MemberContent:
		r.applyMember(ev, content, initial)
	case *event.TypingContent:
		r.mutex.Lock()
		r.lastEphemeral = content
		r.mutex.Unlock()
	case *event.ReceiptContent:
		r.mutex.Lock()
		r.lastEphemeral = *content
		r.mutex.Unlock()
	default:
		if ev.Type == event.RoomMessage {
			r.applyMessage(ev)
		}
	}

	r.client.fireEvent(r, ev)
}

// applyCreate sets creator and federation flag once; the wire format
// guarantees at most one create event, so later ones are ignored.
func (r *Room) applyCreate(content *event.CreateContent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.created {
		return
	}
	r.created = true
	r.creator = content.Creator
	r.federated = content.Federated()
}

// applyMember implements the membership fan-out table. The notification
// decision compares the new state against whether the user already has a
// record; the record itself is always updated afterwards.
func (r *Room) applyMember(ev *event.Event, content *event.MemberContent, initial bool) {
	if ev.StateKey == nil || *ev.StateKey == "" {
		r.client.logger.Warnf("member event without state_key in %s, dropping", r.ID)
		return
	}
	userID := *ev.StateKey

	r.mutex.Lock()
	member, known := r.members[userID]

	var kind string
	switch content.Membership {
	case event.MembershipInvite:
		kind = "invited"
	case event.MembershipJoin:
		// "joined" means first sighting of the user; any join arriving
		// for a user with an existing record, whatever its state, is a
		// transition of that record.
		if known {
			kind = "changed"
		} else {
			kind = "joined"
		}
	case event.MembershipLeave:
		kind = "left"
	case event.MembershipBan:
		kind = "banned"
	case event.MembershipKnock:
		// no notification for knocks
	}

	if !known {
		member = &Member{UserID: userID}
		r.members[userID] = member
		r.memberOrder = append(r.memberOrder, userID)
	}
	member.Membership = content.Membership
	member.DisplayName = content.Displayname
	member.AvatarURL = content.AvatarURL
	r.mutex.Unlock()

	if initial || kind == "" {
		return
	}
	r.client.fireMember(kind, r.client.memberHandlers(kind), r, member)
}

// SendText sends a plain-text message to this room.
func (r *Room) SendText(body string) (string, error) {
	return r.client.SendText(r.ID, body)
}

// SendNotice sends an automated notice to this room.
func (r *Room) SendNotice(body string) (string, error) {
	return r.client.SendNotice(r.ID, body)
}

// SetName sets the room name server-side. Local state is not touched;
// the resulting state event updates it when it comes back on the stream.
func (r *Room) SetName(name string) error {
	_, err := r.client.SendStateEvent(r.ID, event.RoomName, "", &event.NameContent{Name: name})
	return err
}

// SetTopic sets the room topic server-side.
func (r *Room) SetTopic(topic string) error {
	_, err := r.client.SendStateEvent(r.ID, event.RoomTopic, "", &event.TopicContent{Topic: topic})
	return err
}

// SetPowerLevels replaces the room's power-level table server-side.
func (r *Room) SetPowerLevels(levels *event.PowerLevelsContent) error {
	_, err := r.client.SendStateEvent(r.ID, event.RoomPowerLevels, "", levels)
	return err
}

// Invite invites a user to this room.
func (r *Room) Invite(userID string) error {
	return r.client.InviteUser(r.ID, userID)
}

// Leave leaves this room.
func (r *Room) Leave() error {
	return r.client.LeaveRoom(r.ID)
}

// SetMemberDisplayName changes the caller's per-room display name by
// resending their membership event. It fails with ErrMembershipNotFound
// when the room has never observed the caller's membership, since the
// current membership state must be carried over.
func (r *Room) SetMemberDisplayName(name string) error {
	content, err := r.ownMemberContent()
	if err != nil {
		return err
	}
	content.Displayname = name
	_, err = r.client.SendStateEvent(r.ID, event.RoomMember, r.client.UserID, content)
	return err
}

// SetMemberAvatarURL changes the caller's per-room avatar by resending
// their membership event.
func (r *Room) SetMemberAvatarURL(avatarURL string) error {
	content, err := r.ownMemberContent()
	if err != nil {
		return err
	}
	content.AvatarURL = avatarURL
	_, err = r.client.SendStateEvent(r.ID, event.RoomMember, r.client.UserID, content)
	return err
}

func (r *Room) ownMemberContent() (*event.MemberContent, error) {
	me := r.Member(r.client.UserID)
	if me == nil || me.Membership != event.MembershipJoin {
		return nil, ErrMembershipNotFound
	}
	return &event.MemberContent{
		Membership:  me.Membership,
		Displayname: me.DisplayName,
		AvatarURL:   me.AvatarURL,
	}, nil
}

// applyMessage records the message in the bounded history ring, then
// fires the message notification unless the event is older than the
// configured maximum age.
func (r *Room) applyMessage(ev *event.Event) {
	// the wire always assigns an event id; a message without one is a
	// server anomaly, not something to fabricate a key for
	if ev.EventID == "" {
		r.client.logger.Warnf("message without event id in %s, dropping", r.ID)
		return
	}
	r.history.Add(ev.EventID, ev)

	maxAge := r.client.MessageMaxAge
	if maxAge > 0 && ev.Unsigned != nil && ev.Unsigned.Age >= maxAge {
		r.client.logger.Debugf("suppressing message notification in %s: age %dms >= max %dms",
			r.ID, ev.Unsigned.Age, maxAge)
		return
	}

	r.client.fireMessage(r, ev)
}
