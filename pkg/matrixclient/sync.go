package matrixclient

import (
	"context"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/42wim/matrixclient/event"
)

// StartSync spawns the background polling worker. It returns
// ErrSyncRunning when a worker is already active; stop it first with
// StopSync. Restart after a stop is legal and resumes from the stored
// cursor.
func (c *Client) StartSync() error {
	c.syncMutex.Lock()
	defer c.syncMutex.Unlock()

	if c.running {
		return ErrSyncRunning
	}
	c.running = true
	c.quitc = make(chan struct{})
	c.donec = make(chan struct{})
	// rebuilt here, not in New, so it tracks a SyncTimeout the caller
	// set after construction
	c.backoff = c.newBackoff()

	go c.syncLoop(c.quitc, c.donec)

	return nil
}

// StopSync signals the polling worker and blocks until it has exited.
// An in-flight long-poll completes naturally first. Calling StopSync
// when no worker is running is a no-op.
func (c *Client) StopSync() {
	c.syncMutex.Lock()
	if !c.running {
		c.syncMutex.Unlock()
		return
	}
	quitc, donec := c.quitc, c.donec
	c.running = false
	c.syncMutex.Unlock()

	close(quitc)
	<-donec
}

// Cursor returns the current sync position.
func (c *Client) Cursor() string {
	c.syncMutex.Lock()
	defer c.syncMutex.Unlock()
	return c.cursor
}

// ResetCursor clears the sync position, so the next poll performs a full
// catch-up with fan-out suppression.
func (c *Client) ResetCursor() {
	c.syncMutex.Lock()
	defer c.syncMutex.Unlock()
	c.cursor = ""
}

// SetCursor restores a previously persisted sync position.
func (c *Client) SetCursor(cursor string) {
	c.syncMutex.Lock()
	defer c.syncMutex.Unlock()
	c.cursor = cursor
}

// syncLoop is the worker body. It never self-terminates on errors; a
// failed poll marks the client disconnected and sleeps the backoff before
// trying again. Only a quit signal ends the loop.
func (c *Client) syncLoop(quitc <-chan struct{}, donec chan<- struct{}) {
	defer close(donec)

	c.logger.Info("sync loop started")
	for {
		select {
		case <-quitc:
			c.logger.Info("sync loop stopping")
			return
		default:
		}

		cursor := c.Cursor()
		resp, err := c.sync(cursor)
		if err != nil {
			c.setConnected(false)
			wait := c.backoff.Duration()
			c.logger.Errorf("sync failed: %v, retrying in %v", err, wait)
			select {
			case <-quitc:
				c.logger.Info("sync loop stopping")
				return
			case <-time.After(wait):
			}
			continue
		}

		c.setConnected(true)
		c.backoff.Reset()

		c.processSyncResponse(resp, cursor == "")
		c.SetCursor(resp.NextBatch)
	}
}

// syncRequestMargin is added to the server-side hold when deadlining a
// poll, so a healthy long-poll is never cut short but a hung connection
// cannot block the loop (and so StopSync) forever.
const syncRequestMargin = 5 * time.Second

// sync performs one long-poll. An empty cursor omits the since parameter,
// asking the server for a full catch-up snapshot.
func (c *Client) sync(cursor string) (*RespSync, error) {
	query := url.Values{}
	query.Set("timeout", strconv.FormatInt(c.SyncTimeout.Milliseconds(), 10))
	if cursor != "" {
		query.Set("since", cursor)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.SyncTimeout+syncRequestMargin)
	defer cancel()

	resp := &RespSync{}
	if err := c.doRequestCtx(ctx, "GET", c.buildURL("sync"), query, nil, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) setConnected(connected bool) {
	c.syncMutex.Lock()
	c.connected = connected
	c.syncMutex.Unlock()
}

// processSyncResponse feeds one batch through the room projections.
// initial tags the whole batch as catch-up. Within a live batch the state
// section still carries catch-up context (state the server replays so the
// timeline makes sense), so it is always fed suppressed; only timeline and
// ephemeral events of a live batch fire fan-out.
func (c *Client) processSyncResponse(resp *RespSync, initial bool) {
	for roomID, joined := range resp.Rooms.Join {
		room := c.getOrCreateRoom(roomID)
		c.feedEvents(room, joined.State.Events, true)
		c.feedEvents(room, joined.Timeline.Events, initial)
		c.feedEvents(room, joined.Ephemeral.Events, initial)
	}

	for roomID, invited := range resp.Rooms.Invite {
		room := c.getOrCreateRoom(roomID)
		c.feedEvents(room, invited.InviteState.Events, initial)
	}

	for roomID, left := range resp.Rooms.Leave {
		room := c.getOrCreateRoom(roomID)
		c.feedEvents(room, left.State.Events, true)
		c.feedEvents(room, left.Timeline.Events, initial)
	}
}

// feedEvents decodes and projects raw events one at a time so a single
// undecodable event cannot poison the batch.
func (c *Client) feedEvents(room *Room, raws []jsoniter.RawMessage, initial bool) {
	for _, raw := range raws {
		ev, err := event.ParseEvent(raw)
		if err != nil {
			c.logger.Debugf("skipping undecodable event in %s: %v", room.ID, err)
			continue
		}
		if ev.RoomID == "" {
			ev.RoomID = room.ID
		}
		room.processEvent(ev, initial)
	}
}
