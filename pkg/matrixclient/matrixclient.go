// Package matrixclient is a client for the Matrix client-server protocol.
// It authenticates against a homeserver, pulls the batched /sync event
// stream in a background loop, projects the stream into live per-room
// state, and exposes the usual command endpoints (messaging, membership,
// profiles, media).
//
// All live state mutation happens on the sync worker goroutine; callers
// observe state through Room getters and the hook callbacks, both safe for
// concurrent use.
package matrixclient

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	lru "github.com/hashicorp/golang-lru"
	"github.com/jpillora/backoff"
	prefixed "github.com/matterbridge/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultSyncTimeout is the server-side long-poll hold per /sync call.
	DefaultSyncTimeout = 30 * time.Second

	// DefaultRetryAfter is the rate-limit backoff used when the server
	// does not provide retry_after_ms.
	DefaultRetryAfter = 5 * time.Second

	// DefaultHistorySize is the per-room message ring capacity.
	DefaultHistorySize = 256

	profileCacheSize = 500
)

// Credentials identifies the account and homeserver the client talks to.
type Credentials struct {
	Server      string // homeserver base URL, e.g. "https://matrix.example.com"
	UserID      string
	AccessToken string
}

// Client talks to a single homeserver on behalf of one user. Create it
// with New, optionally Login, register hooks, then StartSync.
type Client struct {
	*Credentials

	// Prefix is the client-server API prefix, normally /_matrix/client/r0.
	Prefix string

	// AppServiceUserID, when set, is sent as the user_id query parameter
	// on every request so an application-service client acts as that user.
	AppServiceUserID string

	// MessageMaxAge suppresses message notifications for events whose
	// unsigned age (ms) is at or above this value; zero or negative
	// means no limit. Old messages still land in room history.
	MessageMaxAge int64

	// SyncTimeout is the long-poll hold per /sync call.
	SyncTimeout time.Duration

	// HistorySize is the per-room message ring capacity, applied to
	// rooms created after it is set.
	HistorySize int

	// Client is the underlying HTTP client, safe for concurrent use.
	Client *http.Client

	hooks hooks

	roomsMutex sync.RWMutex
	rooms      map[string]*Room

	syncMutex  sync.Mutex
	cursor     string
	quitc      chan struct{}
	donec      chan struct{}
	running    bool
	connected  bool
	backoff    *backoff.Backoff

	txnGen       *snowflake.Node
	profileCache *lru.Cache

	logger     *logrus.Entry
	rootLogger *logrus.Logger
}

// New creates a client for the given homeserver. userID and accessToken
// may be empty when the caller intends to Login afterwards.
func New(server, userID, accessToken string) (*Client, error) {
	rootLogger := logrus.New()
	rootLogger.SetFormatter(&prefixed.TextFormatter{
		PrefixPadding: 13,
		DisableColors: true,
	})

	txnGen, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}

	cache, _ := lru.New(profileCacheSize)

	c := &Client{
		Credentials: &Credentials{
			Server:      strings.TrimRight(server, "/"),
			UserID:      userID,
			AccessToken: accessToken,
		},
		Prefix:       "/_matrix/client/r0",
		SyncTimeout:  DefaultSyncTimeout,
		HistorySize:  DefaultHistorySize,
		Client:       &http.Client{},
		rooms:        make(map[string]*Room),
		txnGen:       txnGen,
		profileCache: cache,
		rootLogger:   rootLogger,
		logger:       rootLogger.WithFields(logrus.Fields{"prefix": "matrixclient"}),
	}
	c.backoff = c.newBackoff()

	return c, nil
}

// newBackoff builds the bad-connection backoff. Its minimum is strictly
// above the long-poll timeout so a dead server is not hammered at the
// poll rate.
func (c *Client) newBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    c.SyncTimeout + 5*time.Second,
		Max:    5 * time.Minute,
		Jitter: true,
	}
}

// SetLogLevel tries to parse the specified level and if successful sets
// the log level accordingly. Accepted levels are: 'trace', 'debug',
// 'info', 'warn', 'error', 'fatal' and 'panic'.
func (c *Client) SetLogLevel(level string) {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		c.logger.Warnf("Failed to parse specified log-level '%s': %#v", level, err)
	} else {
		c.rootLogger.SetLevel(l)
	}
}

// Connected reports whether the last sync poll succeeded.
func (c *Client) Connected() bool {
	c.syncMutex.Lock()
	defer c.syncMutex.Unlock()
	return c.connected
}

// txnID returns a fresh transaction id. Generated once per logical send
// and reused across rate-limit retries so the server can deduplicate.
func (c *Client) txnID() string {
	return c.txnGen.Generate().String()
}

// Room returns the live state for a room the client has observed, or nil.
func (c *Client) Room(roomID string) *Room {
	c.roomsMutex.RLock()
	defer c.roomsMutex.RUnlock()
	return c.rooms[roomID]
}

// Rooms returns all rooms the client currently tracks.
func (c *Client) Rooms() []*Room {
	c.roomsMutex.RLock()
	defer c.roomsMutex.RUnlock()

	rooms := make([]*Room, 0, len(c.rooms))
	for _, room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// getOrCreateRoom returns the room, creating it add-if-absent. Safe to
// call from the sync worker and from caller threads doing on-demand state
// fetches.
func (c *Client) getOrCreateRoom(roomID string) *Room {
	c.roomsMutex.RLock()
	room := c.rooms[roomID]
	c.roomsMutex.RUnlock()
	if room != nil {
		return room
	}

	c.roomsMutex.Lock()
	defer c.roomsMutex.Unlock()
	if room = c.rooms[roomID]; room != nil {
		return room
	}
	room = newRoom(c, roomID, c.HistorySize)
	c.rooms[roomID] = room
	return room
}
