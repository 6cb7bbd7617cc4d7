package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/awayrelay/internal/auth"
	"github.com/vovakirdan/awayrelay/internal/core"
	"github.com/vovakirdan/awayrelay/internal/proto"
)

// WSHandler authenticates the handshake, upgrades it and bridges the socket to a core.Client.
type WSHandler struct {
	hub       *core.Hub
	auth      *auth.Service
	readLimit int64
	rateLimit int
	log       *zerolog.Logger

	// active counts handlers still running, including session release.
	active sync.WaitGroup
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, readLimit int64, rateLimit int, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:       hub,
		auth:      authService,
		readLimit: readLimit,
		rateLimit: rateLimit,
		log:       logger,
	}
}

// Wait blocks until every upgraded connection has released its session and
// finished its in-flight command, or ctx is done.
func (h *WSHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	h.active.Add(1)
	defer h.active.Done()

	identity, err := h.authenticate(r)
	if err != nil {
		h.log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("ws handshake rejected")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(stdhttp.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "authentication failed"})
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	ctx := r.Context()
	client := core.NewClient(uuid.NewString(), identity.Username)
	if err := h.hub.Admit(ctx, client); err != nil {
		h.log.Error().Err(err).Str("username", client.Username).Msg("admit session")
		conn.Close(websocket.StatusInternalError, "admission failed")
		return
	}
	served := make(chan struct{})
	go func() {
		defer close(served)
		h.hub.Serve(client)
	}()
	defer func() {
		// Release must not be cut short by the request context.
		h.hub.Release(context.WithoutCancel(ctx), client)
		close(client.Commands)
		<-served
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := newRateLimiter(h.rateLimit)
	limiter.startReset(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Str("session_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) authenticate(r *stdhttp.Request) (auth.Identity, error) {
	token, err := auth.ParseBearer(r.Header.Get("Authorization"))
	if err != nil {
		return auth.Identity{}, err
	}
	return h.auth.Verify(token)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, limiter *rateLimiter) error {
	for {
		typ, payload, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			if err := h.writeError(ctx, conn, core.ErrCodeBadRequest, "text frames only"); err != nil {
				return err
			}
			continue
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(payload, &inbound); err != nil {
			h.log.Debug().Err(err).Str("session_id", client.ID).Msg("malformed inbound frame")
			if err := h.writeError(ctx, conn, core.ErrCodeBadRequest, "malformed frame"); err != nil {
				return err
			}
			continue
		}

		if !limiter.allow() {
			if err := h.writeError(ctx, conn, core.ErrCodeRateLimited, "too many messages"); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			if err := h.writeError(ctx, conn, protoErr.Code, protoErr.Msg); err != nil {
				return err
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("session_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, code, msg string) error {
	return wsjson.Write(ctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: code, Msg: msg},
	})
}
