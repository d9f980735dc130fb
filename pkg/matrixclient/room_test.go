package matrixclient

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/42wim/matrixclient/event"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New("http://localhost:0", "@me:example.org", "token")
	require.NoError(t, err)
	return c
}

func parseTestEvent(t *testing.T, raw string) *event.Event {
	t.Helper()
	ev, err := event.ParseEvent([]byte(raw))
	require.NoError(t, err)
	return ev
}

func memberEvent(userID, membership string) string {
	return fmt.Sprintf(`{
		"type": "m.room.member",
		"sender": %q,
		"state_key": %q,
		"event_id": "$%s-%s",
		"content": {"membership": %q}
	}`, userID, userID, userID, membership, membership)
}

func messageEvent(eventID, body string, age int64) string {
	return fmt.Sprintf(`{
		"type": "m.room.message",
		"sender": "@alice:example.org",
		"event_id": %q,
		"content": {"msgtype": "m.text", "body": %q},
		"unsigned": {"age": %d}
	}`, eventID, body, age)
}

func TestRoomDoubleCreateIgnored(t *testing.T) {
	c := newTestClient(t)
	room := c.getOrCreateRoom("!r:example.org")

	room.processEvent(parseTestEvent(t, `{
		"type": "m.room.create",
		"state_key": "",
		"content": {"creator": "@alice:example.org"}
	}`), false)
	room.processEvent(parseTestEvent(t, `{
		"type": "m.room.create",
		"state_key": "",
		"content": {"creator": "@mallory:example.org", "m.federate": false}
	}`), false)

	assert.Equal(t, "@alice:example.org", room.Creator())
	assert.True(t, room.Federated())
}

func TestRoomFederationFlag(t *testing.T) {
	c := newTestClient(t)
	room := c.getOrCreateRoom("!r:example.org")

	room.processEvent(parseTestEvent(t, `{
		"type": "m.room.create",
		"state_key": "",
		"content": {"creator": "@alice:example.org", "m.federate": false}
	}`), false)

	assert.False(t, room.Federated())
}

func TestMemberFanOut(t *testing.T) {
	tests := []struct {
		name     string
		sequence []string
		want     []string
	}{
		{"invite", []string{"invite"}, []string{"invited"}},
		{"first join", []string{"join"}, []string{"joined"}},
		{"invite then join is changed", []string{"invite", "join"}, []string{"invited", "changed"}},
		{"join then join is changed", []string{"join", "join"}, []string{"joined", "changed"}},
		{"leave", []string{"join", "leave"}, []string{"joined", "left"}},
		{"rejoin after leave is changed", []string{"join", "leave", "join"}, []string{"joined", "left", "changed"}},
		{"ban", []string{"join", "ban"}, []string{"joined", "banned"}},
		{"knock is silent", []string{"knock"}, []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t)
			got := []string{}
			c.OnUserInvited(func(room *Room, m *Member) { got = append(got, "invited") })
			c.OnUserJoined(func(room *Room, m *Member) { got = append(got, "joined") })
			c.OnUserChanged(func(room *Room, m *Member) { got = append(got, "changed") })
			c.OnUserLeft(func(room *Room, m *Member) { got = append(got, "left") })
			c.OnUserBanned(func(room *Room, m *Member) { got = append(got, "banned") })

			room := c.getOrCreateRoom("!r:example.org")
			for _, membership := range tc.sequence {
				room.processEvent(parseTestEvent(t, memberEvent("@bob:example.org", membership)), false)
			}

			assert.Equal(t, tc.want, got)
			require.NotNil(t, room.Member("@bob:example.org"))
		})
	}
}

func TestMemberRecordSurvivesLeave(t *testing.T) {
	c := newTestClient(t)
	room := c.getOrCreateRoom("!r:example.org")

	room.processEvent(parseTestEvent(t, memberEvent("@bob:example.org", "join")), false)
	room.processEvent(parseTestEvent(t, memberEvent("@bob:example.org", "leave")), false)

	member := room.Member("@bob:example.org")
	require.NotNil(t, member)
	assert.Equal(t, event.MembershipLeave, member.Membership)
	assert.Len(t, room.Members(), 1)
}

func TestInitialModeSuppressesFanOut(t *testing.T) {
	c := newTestClient(t)
	memberFired := 0
	eventFired := 0
	c.OnUserJoined(func(room *Room, m *Member) { memberFired++ })
	c.OnEvent(func(room *Room, ev *event.Event) { eventFired++ })

	room := c.getOrCreateRoom("!r:example.org")
	room.processEvent(parseTestEvent(t, memberEvent("@bob:example.org", "join")), true)

	assert.Zero(t, memberFired)
	assert.Equal(t, 1, eventFired, "generic hook fires even on catch-up")

	member := room.Member("@bob:example.org")
	require.NotNil(t, member, "state applies even when fan-out is suppressed")
	assert.Equal(t, event.MembershipJoin, member.Membership)
}

func TestMessageAgeFilterBoundary(t *testing.T) {
	c := newTestClient(t)
	c.MessageMaxAge = 5000

	fired := []string{}
	c.OnMessage(func(room *Room, ev *event.Event) { fired = append(fired, ev.EventID) })

	room := c.getOrCreateRoom("!r:example.org")
	room.processEvent(parseTestEvent(t, messageEvent("$old", "stale", 5000)), false)
	room.processEvent(parseTestEvent(t, messageEvent("$fresh", "live", 4999)), false)

	assert.Equal(t, []string{"$fresh"}, fired)

	// suppressed messages still land in history
	messages := room.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "$old", messages[0].EventID)
	assert.Equal(t, "$fresh", messages[1].EventID)
}

func TestMessageHistoryEvictsOldest(t *testing.T) {
	c := newTestClient(t)
	room := newRoom(c, "!r:example.org", 2)

	room.processEvent(parseTestEvent(t, messageEvent("$1", "one", 0)), false)
	room.processEvent(parseTestEvent(t, messageEvent("$2", "two", 0)), false)
	room.processEvent(parseTestEvent(t, messageEvent("$3", "three", 0)), false)

	messages := room.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "$2", messages[0].EventID)
	assert.Equal(t, "$3", messages[1].EventID)
}

func TestMessageWithoutEventIDDropped(t *testing.T) {
	c := newTestClient(t)
	fired := 0
	c.OnMessage(func(room *Room, ev *event.Event) { fired++ })

	room := c.getOrCreateRoom("!r:example.org")
	room.processEvent(parseTestEvent(t, `{
		"type": "m.room.message",
		"sender": "@alice:example.org",
		"content": {"msgtype": "m.text", "body": "no id"}
	}`), false)

	assert.Zero(t, fired)
	assert.Empty(t, room.Messages())
}

func TestScalarStateLastWriterWins(t *testing.T) {
	c := newTestClient(t)
	room := c.getOrCreateRoom("!r:example.org")

	room.processEvent(parseTestEvent(t, `{
		"type": "m.room.name", "state_key": "", "content": {"name": "first"}
	}`), false)
	room.processEvent(parseTestEvent(t, `{
		"type": "m.room.name", "state_key": "", "content": {"name": "second"}
	}`), false)
	room.processEvent(parseTestEvent(t, `{
		"type": "m.room.topic", "state_key": "", "content": {"topic": "things"}
	}`), false)
	room.processEvent(parseTestEvent(t, `{
		"type": "m.room.canonical_alias", "state_key": "",
		"content": {"alias": "#main:example.org", "alt_aliases": ["#alt:example.org"]}
	}`), false)
	room.processEvent(parseTestEvent(t, `{
		"type": "m.room.join_rules", "state_key": "", "content": {"join_rule": "invite"}
	}`), false)
	room.processEvent(parseTestEvent(t, `{
		"type": "m.room.power_levels", "state_key": "",
		"content": {"users": {"@alice:example.org": 100}, "users_default": 0}
	}`), false)

	assert.Equal(t, "second", room.Name())
	assert.Equal(t, "things", room.Topic())
	assert.Equal(t, "#main:example.org", room.CanonicalAlias())
	assert.Equal(t, []string{"#alt:example.org"}, room.AltAliases())
	assert.Equal(t, "invite", room.JoinRule())
	require.NotNil(t, room.PowerLevels())
	assert.Equal(t, 100, room.PowerLevels().UserLevel("@alice:example.org"))
}

func TestEphemeralTracked(t *testing.T) {
	c := newTestClient(t)
	room := c.getOrCreateRoom("!r:example.org")

	room.processEvent(parseTestEvent(t, `{
		"type": "m.typing", "content": {"user_ids": ["@alice:example.org"]}
	}`), false)

	typing, ok := room.LastEphemeral().(*event.TypingContent)
	require.True(t, ok)
	assert.Equal(t, []string{"@alice:example.org"}, typing.UserIDs)
}

func TestPanickingHandlerIsolated(t *testing.T) {
	c := newTestClient(t)
	secondRan := false
	eventRan := false
	c.OnMessage(func(room *Room, ev *event.Event) { panic("boom") })
	c.OnMessage(func(room *Room, ev *event.Event) { secondRan = true })
	c.OnEvent(func(room *Room, ev *event.Event) { eventRan = true })

	room := c.getOrCreateRoom("!r:example.org")
	room.processEvent(parseTestEvent(t, messageEvent("$1", "hi", 0)), false)

	assert.True(t, secondRan)
	assert.True(t, eventRan)
}

func TestGenericEventHookFiresLast(t *testing.T) {
	c := newTestClient(t)
	order := []string{}
	c.OnMessage(func(room *Room, ev *event.Event) { order = append(order, "message") })
	c.OnEvent(func(room *Room, ev *event.Event) { order = append(order, "event") })

	room := c.getOrCreateRoom("!r:example.org")
	room.processEvent(parseTestEvent(t, messageEvent("$1", "hi", 0)), false)

	assert.Equal(t, []string{"message", "event"}, order)
}

func TestSetMemberDisplayNameRequiresJoin(t *testing.T) {
	c := newTestClient(t)
	room := c.getOrCreateRoom("!r:example.org")

	err := room.SetMemberDisplayName("me")
	assert.ErrorIs(t, err, ErrMembershipNotFound)

	// an invite is not enough, the caller must have joined
	room.processEvent(parseTestEvent(t, memberEvent("@me:example.org", "invite")), true)
	err = room.SetMemberAvatarURL("mxc://x/y")
	assert.ErrorIs(t, err, ErrMembershipNotFound)
}

func TestGetOrCreateRoomAddIfAbsent(t *testing.T) {
	c := newTestClient(t)

	a := c.getOrCreateRoom("!r:example.org")
	b := c.getOrCreateRoom("!r:example.org")
	assert.Same(t, a, b)
	assert.Len(t, c.Rooms(), 1)
	assert.Nil(t, c.Room("!other:example.org"))
}
