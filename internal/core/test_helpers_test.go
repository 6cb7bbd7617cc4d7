package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/awayrelay/internal/responder"
	"github.com/vovakirdan/awayrelay/internal/store"
)

// memStore is an in-memory presence and message store.
type memStore struct {
	mu        sync.Mutex
	status    map[string]store.PresenceStatus
	writes    map[string]int
	messages  []store.Message
	saveErr   error
	statusErr error
	setErr    error
}

func newMemStore(users ...string) *memStore {
	s := &memStore{
		status: make(map[string]store.PresenceStatus),
		writes: make(map[string]int),
	}
	for _, u := range users {
		s.status[u] = store.StatusBusy
	}
	return s
}

func (s *memStore) SetStatus(_ context.Context, username string, status store.PresenceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	if _, ok := s.status[username]; !ok {
		return store.ErrNotFound
	}
	s.status[username] = status
	s.writes[username]++
	return nil
}

func (s *memStore) Status(_ context.Context, username string) (store.PresenceStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return "", s.statusErr
	}
	st, ok := s.status[username]
	if !ok {
		return "", store.ErrNotFound
	}
	return st, nil
}

func (s *memStore) Statuses(ctx context.Context, usernames []string) (map[string]store.PresenceStatus, error) {
	out := make(map[string]store.PresenceStatus, len(usernames))
	for _, u := range usernames {
		st, err := s.Status(ctx, u)
		if err != nil {
			st = store.StatusBusy
		}
		out[u] = st
	}
	return out, nil
}

func (s *memStore) ResetStatuses(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for u := range s.status {
		s.status[u] = store.StatusBusy
	}
	return nil
}

func (s *memStore) SaveMessage(_ context.Context, msg *store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	msg.ID = int64(len(s.messages) + 1)
	msg.CreatedAt = time.Now()
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *memStore) ListConversation(context.Context, string, string, int) ([]*store.Message, error) {
	return nil, errors.New("not implemented")
}

func (s *memStore) statusOf(username string) store.PresenceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[username]
}

func (s *memStore) writeCount(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[username]
}

func (s *memStore) saved() []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Message(nil), s.messages...)
}

func newTestHub(st *memStore, r responder.Responder) *Hub {
	return NewHub(Options{
		Presence:         st,
		Messages:         st,
		Responder:        r,
		PromptPrefix:     "prefix: ",
		ResponderTimeout: 200 * time.Millisecond,
		StoreTimeout:     time.Second,
	})
}

// echoResponder answers with the prompt it was given.
func echoResponder() responder.Responder {
	return responder.Func(func(_ context.Context, prompt string) (string, error) {
		return "auto(" + prompt + ")", nil
	})
}

func admit(t *testing.T, h *Hub, id, username string) *Client {
	t.Helper()

	c := NewClient(id, username)
	if err := h.Admit(context.Background(), c); err != nil {
		t.Fatalf("admit %s: %v", username, err)
	}
	go h.Serve(c)
	t.Cleanup(func() {
		h.Release(context.Background(), c)
		close(c.Commands)
	})
	return c
}

func send(c *Client, to, text string) {
	c.Commands <- &Command{Kind: CommandSendMessage, Message: Message{To: to, Text: text}}
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func noEvent(t *testing.T, ch <-chan *Event, wait time.Duration) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(wait):
	}
}
