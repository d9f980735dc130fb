package matrixclient

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/42wim/matrixclient/event"
)

func TestSendRetryKeepsTxnID(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if len(paths) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"errcode": "M_LIMIT_EXCEEDED", "error": "slow down", "retry_after_ms": 1}`)
			return
		}
		fmt.Fprint(w, `{"event_id": "$sent"}`)
	}))
	defer server.Close()

	c, err := New(server.URL, "@me:example.org", "token")
	require.NoError(t, err)

	eventID, err := c.SendText("!r:example.org", "hello")
	require.NoError(t, err)
	assert.Equal(t, "$sent", eventID)

	require.Len(t, paths, 2)
	assert.Equal(t, paths[0], paths[1], "retry must reuse the transaction id")
	assert.Contains(t, paths[0], "/send/m.room.message/")
}

func TestSendNonRateLimitErrorAborts(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"errcode": "M_FORBIDDEN", "error": "not in room"}`)
	}))
	defer server.Close()

	c, err := New(server.URL, "@me:example.org", "token")
	require.NoError(t, err)

	_, err = c.SendText("!r:example.org", "hello")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsCode(err, ErrCodeForbidden))

	var matrixErr *MatrixError
	require.ErrorAs(t, err, &matrixErr)
	assert.Equal(t, http.StatusForbidden, matrixErr.StatusCode)
	assert.Equal(t, "not in room", matrixErr.Message)
}

func TestErrorWithoutBodyMapsToUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream said no")
	}))
	defer server.Close()

	c, err := New(server.URL, "@me:example.org", "token")
	require.NoError(t, err)

	err = c.doRequest("GET", c.buildURL("sync"), nil, nil, nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeUnknown))
}

func TestRequestAuthParameters(t *testing.T) {
	var gotToken, gotUserID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("access_token")
		gotUserID = r.URL.Query().Get("user_id")
		fmt.Fprint(w, `{"user_id": "@me:example.org"}`)
	}))
	defer server.Close()

	c, err := New(server.URL, "@me:example.org", "secret")
	require.NoError(t, err)
	c.AppServiceUserID = "@ghost:example.org"

	_, err = c.Whoami()
	require.NoError(t, err)
	assert.Equal(t, "secret", gotToken)
	assert.Equal(t, "@ghost:example.org", gotUserID)
}

func TestBuildURLEscapesSegments(t *testing.T) {
	c, err := New("http://example.org", "@me:example.org", "token")
	require.NoError(t, err)

	u := c.buildURL("directory", "room", "#alias:example.org")
	assert.Equal(t, "http://example.org/_matrix/client/r0/directory/room/%23alias:example.org", u)

	u = c.buildURL("rooms", "!room:example.org", "send", "m.room.message", "txn1")
	assert.True(t, strings.HasSuffix(u, "/rooms/%21room:example.org/send/m.room.message/txn1"))
}

func TestLoginStoresCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_matrix/client/r0/login", r.URL.Path)
		fmt.Fprint(w, `{"user_id": "@alice:example.org", "access_token": "tok123", "device_id": "DEV"}`)
	}))
	defer server.Close()

	c, err := New(server.URL, "", "")
	require.NoError(t, err)

	resp, err := c.Login("alice", "password")
	require.NoError(t, err)
	assert.Equal(t, "@alice:example.org", resp.UserID)
	assert.Equal(t, "@alice:example.org", c.UserID)
	assert.Equal(t, "tok123", c.AccessToken)
}

func TestGetDisplayNameCached(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, `{"displayname": "Alice"}`)
	}))
	defer server.Close()

	c, err := New(server.URL, "@me:example.org", "token")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		name, err := c.GetDisplayName("@alice:example.org")
		require.NoError(t, err)
		assert.Equal(t, "Alice", name)
	}
	assert.Equal(t, 1, hits)
}

func TestGetRoomStateProjectsSuppressed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_matrix/client/r0/rooms/!r:example.org/state", r.URL.Path)
		fmt.Fprintf(w, `[
			{"type": "m.room.name", "state_key": "", "content": {"name": "ops"}},
			%s
		]`, memberEvent("@bob:example.org", "join"))
	}))
	defer server.Close()

	c, err := New(server.URL, "@me:example.org", "token")
	require.NoError(t, err)

	fired := 0
	c.OnUserJoined(func(room *Room, m *Member) { fired++ })

	room, err := c.GetRoomState("!r:example.org")
	require.NoError(t, err)
	assert.Equal(t, "ops", room.Name())
	require.NotNil(t, room.Member("@bob:example.org"))
	assert.Zero(t, fired, "on-demand state is catch-up, not live")
}

func TestSetMemberDisplayNameResendsMembership(t *testing.T) {
	var path, body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		fmt.Fprint(w, `{"event_id": "$state"}`)
	}))
	defer server.Close()

	c, err := New(server.URL, "@me:example.org", "token")
	require.NoError(t, err)

	room := c.getOrCreateRoom("!r:example.org")
	room.processEvent(parseTestEvent(t, memberEvent("@me:example.org", "join")), true)

	require.NoError(t, room.SetMemberDisplayName("Me Again"))
	assert.Equal(t, "/_matrix/client/r0/rooms/!r:example.org/state/m.room.member/@me:example.org", path)
	assert.Contains(t, body, `"membership":"join"`)
	assert.Contains(t, body, `"displayname":"Me Again"`)
}

func TestSplitMXC(t *testing.T) {
	server, mediaID, err := splitMXC("mxc://example.org/abc123")
	require.NoError(t, err)
	assert.Equal(t, "example.org", server)
	assert.Equal(t, "abc123", mediaID)

	_, _, err = splitMXC("https://example.org/abc123")
	assert.Error(t, err)
	_, _, err = splitMXC("mxc://example.org")
	assert.Error(t, err)
}

func TestRedactEventUsesFreshTxn(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		fmt.Fprint(w, `{"event_id": "$redaction"}`)
	}))
	defer server.Close()

	c, err := New(server.URL, "@me:example.org", "token")
	require.NoError(t, err)

	first, err := c.RedactEvent("!r:example.org", "$target", "spam")
	require.NoError(t, err)
	assert.Equal(t, "$redaction", first)

	_, err = c.RedactEvent("!r:example.org", "$target", "spam")
	require.NoError(t, err)

	require.Len(t, paths, 2)
	assert.NotEqual(t, paths[0], paths[1], "separate sends get separate transaction ids")
}

func TestSendStateEventPath(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		fmt.Fprint(w, `{"event_id": "$state"}`)
	}))
	defer server.Close()

	c, err := New(server.URL, "@me:example.org", "token")
	require.NoError(t, err)

	_, err = c.SendStateEvent("!r:example.org", event.RoomTopic, "", &event.TopicContent{Topic: "x"})
	require.NoError(t, err)
	assert.Equal(t, "/_matrix/client/r0/rooms/!r:example.org/state/m.room.topic/", path)
}
