package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/awayrelay/internal/events"
	"github.com/vovakirdan/awayrelay/internal/responder"
	"github.com/vovakirdan/awayrelay/internal/store"
)

const (
	defaultStoreTimeout     = 5 * time.Second
	defaultResponderTimeout = 30 * time.Second
)

// Options configures a Hub. Presence, Messages and Responder are required.
type Options struct {
	Presence  store.PresenceStore
	Messages  store.MessageStore
	Responder responder.Responder
	Events    events.Publisher
	Registry  *Registry
	Logger    *zerolog.Logger

	PromptPrefix     string
	ResponderTimeout time.Duration
	StoreTimeout     time.Duration
}

// Hub is the session manager. It owns the registry of live sessions, keeps
// presence in step with it, and routes every send request either to the
// receiver or to the fallback responder.
type Hub struct {
	registry  *Registry
	locks     *identityLocks
	presence  store.PresenceStore
	messages  store.MessageStore
	responder responder.Responder
	events    events.Publisher
	log       *zerolog.Logger

	promptPrefix     string
	responderTimeout time.Duration
	storeTimeout     time.Duration
}

// NewHub creates a hub from opts, filling optional fields with defaults.
func NewHub(opts Options) *Hub {
	h := &Hub{
		registry:         opts.Registry,
		locks:            newIdentityLocks(),
		presence:         opts.Presence,
		messages:         opts.Messages,
		responder:        opts.Responder,
		events:           opts.Events,
		log:              opts.Logger,
		promptPrefix:     opts.PromptPrefix,
		responderTimeout: opts.ResponderTimeout,
		storeTimeout:     opts.StoreTimeout,
	}
	if h.registry == nil {
		h.registry = NewRegistry()
	}
	if h.events == nil {
		h.events = events.Nop{}
	}
	if h.log == nil {
		nop := zerolog.Nop()
		h.log = &nop
	}
	if h.responderTimeout <= 0 {
		h.responderTimeout = defaultResponderTimeout
	}
	if h.storeTimeout <= 0 {
		h.storeTimeout = defaultStoreTimeout
	}
	return h
}

// Admit registers an authenticated session and marks its user available.
// Both effects are visible to routing lookups once Admit returns.
func (h *Hub) Admit(ctx context.Context, c *Client) error {
	unlock := h.locks.lock(c.Username)
	defer unlock()

	if !h.registry.Add(c) {
		return nil
	}

	if err := h.setStatus(ctx, c.Username, store.StatusAvailable); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.registry.Remove(c)
			return fmt.Errorf("%w: mark available: %v", ErrPersistence, err)
		}
		h.log.Warn().Str("username", c.Username).Msg("admitted session for unknown user")
	}

	h.log.Info().
		Str("username", c.Username).
		Str("session_id", c.ID).
		Int("sessions", h.registry.Count(c.Username)).
		Msg("session admitted")
	return nil
}

// Release removes a session and, if it was the user's last one, marks the
// user busy. Releasing an already closed session is a no-op. The store write
// is not tied to ctx cancellation so disconnect cleanup always runs.
func (h *Hub) Release(ctx context.Context, c *Client) {
	unlock := h.locks.lock(c.Username)
	defer unlock()

	removed, remaining := h.registry.Remove(c)
	if !removed {
		return
	}
	c.released.Store(true)

	if remaining == 0 {
		if err := h.setStatus(context.WithoutCancel(ctx), c.Username, store.StatusBusy); err != nil && !errors.Is(err, store.ErrNotFound) {
			h.log.Error().Err(err).Str("username", c.Username).Msg("failed to mark user busy")
		}
	}

	h.log.Info().
		Str("username", c.Username).
		Str("session_id", c.ID).
		Int("sessions", remaining).
		Dur("lifetime", time.Since(c.CreatedAt)).
		Msg("session released")
}

// PushTo hands ev to every live session of username. It returns true if at
// least one session accepted it; absence of a session is not an error.
func (h *Hub) PushTo(username string, ev *Event) bool {
	delivered := false
	for _, c := range h.registry.Sessions(username) {
		if c.deliver(ev) {
			delivered = true
			continue
		}
		h.log.Warn().Str("username", username).Str("session_id", c.ID).Msg("dropping event for slow consumer")
	}
	return delivered
}

// Sessions returns the number of live sessions for username.
func (h *Hub) Sessions(username string) int {
	return h.registry.Count(username)
}

// Serve processes the client's commands in order until Commands is closed.
// Commands still queued when the session is released are dropped; the one
// in flight runs to completion.
func (h *Hub) Serve(c *Client) {
	for cmd := range c.Commands {
		if c.Released() {
			continue
		}
		h.handle(c, cmd)
	}
}

// Shutdown releases every remaining session.
func (h *Hub) Shutdown(ctx context.Context) {
	for _, c := range h.registry.All() {
		h.Release(ctx, c)
	}
}

func (h *Hub) handle(c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandSendMessage:
		if err := h.Dispatch(context.Background(), c, cmd.Message); err != nil {
			h.log.Warn().Err(err).
				Str("username", c.Username).
				Str("receiver", cmd.Message.To).
				Msg("dispatch failed")
			c.deliver(&Event{Kind: EventError, Error: errorFor(err)})
		}
	default:
		c.deliver(&Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "unknown command")})
	}
}

func (h *Hub) setStatus(ctx context.Context, username string, status store.PresenceStatus) error {
	ctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	if err := h.presence.SetStatus(ctx, username, status); err != nil {
		return err
	}
	if err := h.events.PresenceChanged(ctx, username, status); err != nil {
		h.log.Warn().Err(err).Str("username", username).Msg("failed to publish presence")
	}
	return nil
}
