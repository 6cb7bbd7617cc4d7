package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vovakirdan/awayrelay/internal/store"
)

// Dispatch routes one send request from sender. If the receiver is available
// the message is persisted and then pushed to the receiver's sessions.
// Otherwise the responder synthesizes a reply that is pushed back to the
// sender framed as coming from the receiver; nothing is persisted.
func (h *Hub) Dispatch(ctx context.Context, sender *Client, msg Message) error {
	msg.From = sender.Username
	msg.To = strings.TrimSpace(msg.To)
	if msg.To == "" {
		return fmt.Errorf("%w: receiver is required", ErrBadRequest)
	}

	status, err := h.presenceOf(ctx, msg.To)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return h.fallback(ctx, msg)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrPresence, err)
	case status != store.StatusAvailable:
		return h.fallback(ctx, msg)
	default:
		return h.deliver(ctx, msg)
	}
}

// presenceOf reads presence under the receiver's identity lock so it cannot
// interleave with an admit or release of that user.
func (h *Hub) presenceOf(ctx context.Context, username string) (store.PresenceStatus, error) {
	unlock := h.locks.lock(username)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()
	return h.presence.Status(ctx, username)
}

func (h *Hub) deliver(ctx context.Context, msg Message) error {
	record := &store.Message{
		Sender:   msg.From,
		Receiver: msg.To,
		Body:     msg.Text,
	}

	saveCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	err := h.messages.SaveMessage(saveCtx, record)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: save message: %v", ErrPersistence, err)
	}

	msg.ID = record.ID
	msg.CreatedAt = record.CreatedAt
	if !h.PushTo(msg.To, &Event{Kind: EventReceiveMessage, Message: msg}) {
		h.log.Debug().
			Str("sender", msg.From).
			Str("receiver", msg.To).
			Int64("message_id", msg.ID).
			Msg("receiver available but no live session; message stored only")
	}
	return nil
}

type completion struct {
	reply string
	err   error
}

func (h *Hub) fallback(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, h.responderTimeout)
	defer cancel()

	// The call runs in its own goroutine so a backend that ignores ctx still
	// cannot hold the connection past the deadline.
	done := make(chan completion, 1)
	go func() {
		reply, err := h.responder.Generate(ctx, h.promptPrefix+msg.Text)
		done <- completion{reply: reply, err: err}
	}()

	var res completion
	select {
	case res = <-done:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrResponderTimeout, ctx.Err())
	}
	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrResponderTimeout, res.err)
		}
		return fmt.Errorf("%w: %v", ErrResponder, res.err)
	}

	reply := Message{
		From:      msg.To,
		To:        msg.From,
		Text:      res.reply,
		CreatedAt: time.Now(),
	}
	h.PushTo(msg.From, &Event{Kind: EventReceiveMessage, Message: reply})

	h.log.Debug().
		Str("sender", msg.From).
		Str("receiver", msg.To).
		Msg("receiver unavailable; answered by responder")
	return nil
}
