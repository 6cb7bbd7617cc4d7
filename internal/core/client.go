package core

import (
	"sync/atomic"
	"time"
)

const (
	commandBuffer = 8
	eventBuffer   = 32
)

// Client is one live connection bound to a verified username.
// Events is its connection handle: the transport drains it and writes to the socket.
type Client struct {
	ID        string
	Username  string
	CreatedAt time.Time
	Commands  chan *Command
	Events    chan *Event

	released atomic.Bool
}

// NewClient constructs a client with initialized channels.
func NewClient(id, username string) *Client {
	return &Client{
		ID:        id,
		Username:  username,
		CreatedAt: time.Now(),
		Commands:  make(chan *Command, commandBuffer),
		Events:    make(chan *Event, eventBuffer),
	}
}

// Released reports whether the session has been closed.
func (c *Client) Released() bool {
	return c.released.Load()
}

// deliver hands an event to the connection without blocking.
// A full queue drops the event (slow consumer).
func (c *Client) deliver(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
