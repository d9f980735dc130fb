package matrixclient

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/42wim/matrixclient/event"
)

// Login performs a password login and stores the returned credentials on
// the client, so subsequent calls are authenticated.
func (c *Client) Login(user, password string) (*RespLogin, error) {
	resp := &RespLogin{}
	err := c.doRequest("POST", c.buildURL("login"), nil, &ReqLogin{
		Type:     "m.login.password",
		User:     user,
		Password: password,
	}, resp)
	if err != nil {
		return nil, err
	}

	c.UserID = resp.UserID
	c.AccessToken = resp.AccessToken
	c.logger.Infof("logged in as %s", resp.UserID)

	return resp, nil
}

// Logout invalidates the access token server-side and clears it locally.
func (c *Client) Logout() error {
	if err := c.doRequest("POST", c.buildURL("logout"), nil, nil, nil); err != nil {
		return err
	}
	c.AccessToken = ""
	return nil
}

// Whoami asks the server which user the access token belongs to.
func (c *Client) Whoami() (string, error) {
	resp := &RespWhoami{}
	if err := c.doRequest("GET", c.buildURL("account", "whoami"), nil, nil, resp); err != nil {
		return "", err
	}
	return resp.UserID, nil
}

// CreateRoom creates a room and registers it locally right away, so
// callers can use it before the first sync mentions it.
func (c *Client) CreateRoom(req *ReqCreateRoom) (*Room, error) {
	resp := &RespCreateRoom{}
	if err := c.doRequest("POST", c.buildURL("createRoom"), nil, req, resp); err != nil {
		return nil, err
	}
	return c.getOrCreateRoom(resp.RoomID), nil
}

// JoinRoom joins a room by id or alias and returns its projection.
func (c *Client) JoinRoom(roomIDOrAlias string) (*Room, error) {
	resp := &RespJoinRoom{}
	if err := c.doRetry("POST", c.buildURL("join", roomIDOrAlias), nil, struct{}{}, resp); err != nil {
		return nil, err
	}
	return c.getOrCreateRoom(resp.RoomID), nil
}

// LeaveRoom leaves a room. The local projection is kept; the next sync
// reports the room under the left section.
func (c *Client) LeaveRoom(roomID string) error {
	return c.doRetry("POST", c.buildURL("rooms", roomID, "leave"), nil, struct{}{}, nil)
}

// InviteUser invites a user to a room.
func (c *Client) InviteUser(roomID, userID string) error {
	return c.doRetry("POST", c.buildURL("rooms", roomID, "invite"), nil, &ReqInvite{UserID: userID}, nil)
}

// KickUser removes a user from a room.
func (c *Client) KickUser(roomID, userID, reason string) error {
	return c.doRetry("POST", c.buildURL("rooms", roomID, "kick"), nil, &ReqKick{UserID: userID, Reason: reason}, nil)
}

// ResolveAlias resolves a room alias to a room id.
func (c *Client) ResolveAlias(alias string) (*RespResolveAlias, error) {
	resp := &RespResolveAlias{}
	if err := c.doRequest("GET", c.buildURL("directory", "room", alias), nil, nil, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// JoinedRooms lists the ids of rooms the user has joined.
func (c *Client) JoinedRooms() ([]string, error) {
	resp := &RespJoinedRooms{}
	if err := c.doRequest("GET", c.buildURL("joined_rooms"), nil, nil, resp); err != nil {
		return nil, err
	}
	return resp.JoinedRooms, nil
}

// SendMessageEvent sends a message-class event to a room. One transaction
// id is generated per logical send and reused across rate-limit retries so
// the server can deduplicate.
func (c *Client) SendMessageEvent(roomID string, eventType event.Type, content event.Content) (string, error) {
	resp := &RespSendEvent{}
	u := c.buildURL("rooms", roomID, "send", string(eventType), c.txnID())
	if err := c.doRetry("PUT", u, nil, content, resp); err != nil {
		return "", err
	}
	return resp.EventID, nil
}

// SendStateEvent sends a state event to a room.
func (c *Client) SendStateEvent(roomID string, eventType event.Type, stateKey string, content event.Content) (string, error) {
	resp := &RespSendEvent{}
	u := c.buildURL("rooms", roomID, "state", string(eventType), stateKey)
	if err := c.doRetry("PUT", u, nil, content, resp); err != nil {
		return "", err
	}
	return resp.EventID, nil
}

// SendText sends a plain-text message.
func (c *Client) SendText(roomID, body string) (string, error) {
	return c.SendMessageEvent(roomID, event.RoomMessage, event.NewText(body))
}

// SendNotice sends an automated notice.
func (c *Client) SendNotice(roomID, body string) (string, error) {
	return c.SendMessageEvent(roomID, event.RoomMessage, event.NewNotice(body))
}

// SendHTML sends a formatted message with a plain-text fallback.
func (c *Client) SendHTML(roomID, body, htmlBody string) (string, error) {
	return c.SendMessageEvent(roomID, event.RoomMessage, event.NewHTML(body, htmlBody))
}

// RedactEvent redacts a previously sent event.
func (c *Client) RedactEvent(roomID, eventID, reason string) (string, error) {
	resp := &RespSendEvent{}
	u := c.buildURL("rooms", roomID, "redact", eventID, c.txnID())
	if err := c.doRetry("PUT", u, nil, &event.RedactionContent{Reason: reason}, resp); err != nil {
		return "", err
	}
	return resp.EventID, nil
}

// SendTyping signals that the user is (or stopped) typing in a room.
func (c *Client) SendTyping(roomID string, typing bool, timeoutMS int64) error {
	req := &ReqTyping{Typing: typing}
	if typing {
		req.Timeout = timeoutMS
	}
	return c.doRequest("PUT", c.buildURL("rooms", roomID, "typing", c.UserID), nil, req, nil)
}

// SendReceipt marks an event as read.
func (c *Client) SendReceipt(roomID, eventID string) error {
	u := c.buildURL("rooms", roomID, "receipt", "m.read", eventID)
	return c.doRequest("POST", u, nil, struct{}{}, nil)
}

// SetRoomTag tags a room for the current user (e.g. "m.favourite").
func (c *Client) SetRoomTag(roomID, tag string, order float64) error {
	u := c.buildURL("user", c.UserID, "rooms", roomID, "tags", tag)
	return c.doRequest("PUT", u, nil, &ReqTag{Order: order}, nil)
}

// GetDisplayName fetches a user's display name, served from a small
// cache; profile lookups are frequent and change rarely.
func (c *Client) GetDisplayName(userID string) (string, error) {
	if cached, ok := c.profileCache.Get("displayname:" + userID); ok {
		return cached.(string), nil
	}

	resp := &RespDisplayName{}
	if err := c.doRequest("GET", c.buildURL("profile", userID, "displayname"), nil, nil, resp); err != nil {
		return "", err
	}
	c.profileCache.Add("displayname:"+userID, resp.DisplayName)
	return resp.DisplayName, nil
}

// SetDisplayName updates the current user's global display name.
func (c *Client) SetDisplayName(name string) error {
	u := c.buildURL("profile", c.UserID, "displayname")
	if err := c.doRetry("PUT", u, nil, &ReqDisplayName{DisplayName: name}, nil); err != nil {
		return err
	}
	c.profileCache.Add("displayname:"+c.UserID, name)
	return nil
}

// GetAvatarURL fetches a user's avatar URL, served from the profile cache.
func (c *Client) GetAvatarURL(userID string) (string, error) {
	if cached, ok := c.profileCache.Get("avatar:" + userID); ok {
		return cached.(string), nil
	}

	resp := &RespAvatarURL{}
	if err := c.doRequest("GET", c.buildURL("profile", userID, "avatar_url"), nil, nil, resp); err != nil {
		return "", err
	}
	c.profileCache.Add("avatar:"+userID, resp.AvatarURL)
	return resp.AvatarURL, nil
}

// SetAvatarURL updates the current user's global avatar.
func (c *Client) SetAvatarURL(avatarURL string) error {
	u := c.buildURL("profile", c.UserID, "avatar_url")
	if err := c.doRetry("PUT", u, nil, &ReqAvatarURL{AvatarURL: avatarURL}, nil); err != nil {
		return err
	}
	c.profileCache.Add("avatar:"+c.UserID, avatarURL)
	return nil
}

// UploadMedia uploads a blob to the media repository and returns its
// mxc:// URI. This bypasses doRequest because the body is raw bytes, not
// JSON; error mapping matches doRequest.
func (c *Client) UploadMedia(content io.Reader, contentType, filename string) (string, error) {
	u := c.Server + "/_matrix/media/r0/upload"
	query := url.Values{}
	if filename != "" {
		query.Set("filename", filename)
	}

	req, err := http.NewRequest("POST", c.addAuth(u, query), content)
	if err != nil {
		return "", errors.Wrap(err, "build upload request")
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "upload media")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read upload response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		matrixErr := &MatrixError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, matrixErr); err != nil || matrixErr.Code == "" {
			matrixErr.Code = ErrCodeUnknown
			matrixErr.Message = string(data)
		}
		return "", matrixErr
	}

	out := &RespUpload{}
	if err := json.Unmarshal(data, out); err != nil {
		return "", errors.Wrap(err, "decode upload response")
	}
	return out.ContentURI, nil
}

// DownloadMedia fetches a blob from the media repository by its mxc://
// URI. The caller owns the returned reader.
func (c *Client) DownloadMedia(mxcURI string) (io.ReadCloser, error) {
	server, mediaID, err := splitMXC(mxcURI)
	if err != nil {
		return nil, err
	}

	u := c.Server + "/_matrix/media/r0/download/" + url.PathEscape(server) + "/" + url.PathEscape(mediaID)
	resp, err := c.Client.Get(u)
	if err != nil {
		return nil, errors.Wrap(err, "download media")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		matrixErr := &MatrixError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, matrixErr); err != nil || matrixErr.Code == "" {
			matrixErr.Code = ErrCodeUnknown
			matrixErr.Message = string(data)
		}
		return nil, matrixErr
	}
	return resp.Body, nil
}

func splitMXC(mxcURI string) (server, mediaID string, err error) {
	const prefix = "mxc://"
	if !strings.HasPrefix(mxcURI, prefix) {
		return "", "", errors.Errorf("not an mxc URI: %q", mxcURI)
	}
	rest := mxcURI[len(prefix):]
	if i := strings.IndexByte(rest, '/'); i > 0 && i < len(rest)-1 {
		return rest[:i], rest[i+1:], nil
	}
	return "", "", errors.Errorf("malformed mxc URI: %q", mxcURI)
}

// GetRoomState fetches the full current state of a room on demand and
// projects it with fan-out suppressed, the same treatment a catch-up feed
// gets. Useful for rooms the sync stream has not mentioned yet.
func (c *Client) GetRoomState(roomID string) (*Room, error) {
	var raws []jsoniter.RawMessage
	if err := c.doRequest("GET", c.buildURL("rooms", roomID, "state"), nil, nil, &raws); err != nil {
		return nil, err
	}

	room := c.getOrCreateRoom(roomID)
	c.feedEvents(room, raws, true)
	return room, nil
}
