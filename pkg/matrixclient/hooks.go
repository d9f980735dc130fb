package matrixclient

import (
	"sync"

	"github.com/42wim/matrixclient/event"
)

// MemberHandler observes a membership transition in a room.
type MemberHandler func(room *Room, member *Member)

// MessageHandler observes a room message.
type MessageHandler func(room *Room, ev *event.Event)

// EventHandler observes any successfully projected event.
type EventHandler func(room *Room, ev *event.Event)

// hooks is the notification fan-out. Handlers are invoked isolated: a
// panicking handler is logged and the remaining handlers still run.
type hooks struct {
	mu        sync.RWMutex
	onInvited []MemberHandler
	onJoined  []MemberHandler
	onChanged []MemberHandler
	onLeft    []MemberHandler
	onBanned  []MemberHandler
	onMessage []MessageHandler
	onEvent   []EventHandler
}

// OnUserInvited registers a handler for users invited to a room.
func (c *Client) OnUserInvited(f MemberHandler) {
	c.hooks.mu.Lock()
	c.hooks.onInvited = append(c.hooks.onInvited, f)
	c.hooks.mu.Unlock()
}

// OnUserJoined registers a handler for users joining a room for the
// first time.
func (c *Client) OnUserJoined(f MemberHandler) {
	c.hooks.mu.Lock()
	c.hooks.onJoined = append(c.hooks.onJoined, f)
	c.hooks.mu.Unlock()
}

// OnUserChanged registers a handler for membership updates of users that
// are already joined (profile changes, re-joins).
func (c *Client) OnUserChanged(f MemberHandler) {
	c.hooks.mu.Lock()
	c.hooks.onChanged = append(c.hooks.onChanged, f)
	c.hooks.mu.Unlock()
}

// OnUserLeft registers a handler for users leaving a room.
func (c *Client) OnUserLeft(f MemberHandler) {
	c.hooks.mu.Lock()
	c.hooks.onLeft = append(c.hooks.onLeft, f)
	c.hooks.mu.Unlock()
}

// OnUserBanned registers a handler for users banned from a room.
func (c *Client) OnUserBanned(f MemberHandler) {
	c.hooks.mu.Lock()
	c.hooks.onBanned = append(c.hooks.onBanned, f)
	c.hooks.mu.Unlock()
}

// OnMessage registers a handler for room messages.
func (c *Client) OnMessage(f MessageHandler) {
	c.hooks.mu.Lock()
	c.hooks.onMessage = append(c.hooks.onMessage, f)
	c.hooks.mu.Unlock()
}

// OnEvent registers a handler fired once for every projected event, after
// its specific handling, in feed order.
func (c *Client) OnEvent(f EventHandler) {
	c.hooks.mu.Lock()
	c.hooks.onEvent = append(c.hooks.onEvent, f)
	c.hooks.mu.Unlock()
}

func (c *Client) fireMember(kind string, handlers []MemberHandler, room *Room, member *Member) {
	for _, f := range handlers {
		c.invoke(kind, func() { f(room, member) })
	}
}

func (c *Client) fireMessage(room *Room, ev *event.Event) {
	c.hooks.mu.RLock()
	handlers := c.hooks.onMessage
	c.hooks.mu.RUnlock()

	for _, f := range handlers {
		c.invoke("message", func() { f(room, ev) })
	}
}

func (c *Client) fireEvent(room *Room, ev *event.Event) {
	c.hooks.mu.RLock()
	handlers := c.hooks.onEvent
	c.hooks.mu.RUnlock()

	for _, f := range handlers {
		c.invoke("event", func() { f(room, ev) })
	}
}

// invoke runs one handler, containing panics so one failing observer
// cannot block the others or abort projection.
func (c *Client) invoke(kind string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("%s handler panicked: %v", kind, r)
		}
	}()
	f()
}

func (c *Client) memberHandlers(kind string) []MemberHandler {
	c.hooks.mu.RLock()
	defer c.hooks.mu.RUnlock()

	switch kind {
	case "invited":
		return c.hooks.onInvited
	case "joined":
		return c.hooks.onJoined
	case "changed":
		return c.hooks.onChanged
	case "left":
		return c.hooks.onLeft
	case "banned":
		return c.hooks.onBanned
	}
	return nil
}
