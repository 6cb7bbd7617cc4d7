package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/awayrelay/internal/proto"
	"github.com/vovakirdan/awayrelay/internal/store"
)

func wsURL(e *testEnv) string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

func dial(ctx context.Context, t *testing.T, e *testEnv, token string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.Dial(ctx, wsURL(e), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func sendMessage(ctx context.Context, t *testing.T, conn *websocket.Conn, receiver, text string) {
	t.Helper()

	payload, _ := json.Marshal(proto.SendMessageData{Receiver: receiver, Message: text})
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSendMessage, Data: payload}); err != nil {
		t.Fatalf("send message: %v", err)
	}
}

type outboundFrame struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func readFrame(ctx context.Context, t *testing.T, conn *websocket.Conn) outboundFrame {
	t.Helper()

	var frame outboundFrame
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("read outbound: %v", err)
	}
	return frame
}

func readMessage(ctx context.Context, t *testing.T, conn *websocket.Conn) proto.ReceiveMessageData {
	t.Helper()

	frame := readFrame(ctx, t, conn)
	if frame.Type != proto.OutboundTypeReceiveMessage {
		t.Fatalf("expected receiveMessage, got %+v", frame)
	}
	var data proto.ReceiveMessageData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		t.Fatalf("unmarshal message data: %v", err)
	}
	return data
}

func statusOf(t *testing.T, e *testEnv, username string) store.PresenceStatus {
	t.Helper()

	status, err := e.store.Status(context.Background(), username)
	if err != nil {
		t.Fatalf("status %s: %v", username, err)
	}
	return status
}

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t, nil)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketRejectsBadCredentials(t *testing.T) {
	env := startTestServer(t, nil)
	env.registerAndLogin(t, "alice")

	cases := []struct {
		name   string
		header string
	}{
		{name: "missing", header: ""},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "garbage token", header: "Bearer not-a-jwt"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			header := http.Header{}
			if tc.header != "" {
				header.Set("Authorization", tc.header)
			}
			conn, resp, err := websocket.Dial(ctx, wsURL(env), &websocket.DialOptions{HTTPHeader: header})
			if err == nil {
				conn.CloseNow()
				t.Fatalf("expected handshake to fail")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401 response, got %+v", resp)
			}
		})
	}

	if got := statusOf(t, env, "alice"); got != store.StatusBusy {
		t.Fatalf("rejected handshakes must not change presence, got %q", got)
	}
}

func TestWebSocketLiveDelivery(t *testing.T) {
	env := startTestServer(t, nil)
	aliceToken := env.registerAndLogin(t, "alice")
	bobToken := env.registerAndLogin(t, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dial(ctx, t, env, aliceToken)
	connB := dial(ctx, t, env, bobToken)
	waitFor(t, "bob to be admitted", func() bool { return env.hub.Sessions("bob") == 1 })

	sendMessage(ctx, t, connA, "bob", "hi there")

	msg := readMessage(ctx, t, connB)
	if msg.Sender != "alice" || msg.Message != "hi there" {
		t.Fatalf("unexpected message payload: %+v", msg)
	}

	history, err := env.store.ListConversation(ctx, "alice", "bob", 10)
	if err != nil {
		t.Fatalf("list conversation: %v", err)
	}
	if len(history) != 1 || history[0].Body != "hi there" {
		t.Fatalf("expected one stored message, got %+v", history)
	}
}

func TestWebSocketFallbackWhenReceiverOffline(t *testing.T) {
	env := startTestServer(t, nil)
	aliceToken := env.registerAndLogin(t, "alice")
	env.registerAndLogin(t, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dial(ctx, t, env, aliceToken)
	sendMessage(ctx, t, connA, "bob", "are you there?")

	msg := readMessage(ctx, t, connA)
	if msg.Sender != "bob" || msg.Message != "away right now" {
		t.Fatalf("unexpected fallback payload: %+v", msg)
	}

	history, err := env.store.ListConversation(ctx, "alice", "bob", 10)
	if err != nil {
		t.Fatalf("list conversation: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("fallback replies must not be stored, got %d", len(history))
	}
}

func TestWebSocketBadFrameKeepsConnection(t *testing.T) {
	env := startTestServer(t, nil)
	aliceToken := env.registerAndLogin(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(ctx, t, env, aliceToken)

	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: "typing"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readFrame(ctx, t, conn)
	if frame.Type != proto.OutboundTypeError || frame.Error == nil || frame.Error.Code != "bad_request" {
		t.Fatalf("expected bad_request error, got %+v", frame)
	}

	sendMessage(ctx, t, conn, "", "nobody")
	frame = readFrame(ctx, t, conn)
	if frame.Error == nil || frame.Error.Code != "bad_request" {
		t.Fatalf("expected bad_request for missing receiver, got %+v", frame)
	}

	waitFor(t, "alice to be admitted", func() bool { return env.hub.Sessions("alice") == 1 })
	sendMessage(ctx, t, conn, "alice", "still here")
	msg := readMessage(ctx, t, conn)
	if msg.Sender != "alice" || msg.Message != "still here" {
		t.Fatalf("unexpected payload: %+v", msg)
	}
}

func TestWebSocketPresenceFollowsConnection(t *testing.T) {
	env := startTestServer(t, nil)
	bobToken := env.registerAndLogin(t, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(ctx, t, env, bobToken)
	waitFor(t, "bob available", func() bool { return statusOf(t, env, "bob") == store.StatusAvailable })

	if err := conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("close: %v", err)
	}

	waitFor(t, "bob busy", func() bool { return statusOf(t, env, "bob") == store.StatusBusy })
	waitFor(t, "bob released", func() bool { return env.hub.Sessions("bob") == 0 })
}

func TestWebSocketAdmitsAuthenticatedSession(t *testing.T) {
	env := startTestServer(t, nil)
	carolToken := env.registerAndLogin(t, "carol")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dial(ctx, t, env, carolToken)

	waitFor(t, "carol admitted", func() bool { return env.hub.Sessions("carol") == 1 })
	if got := statusOf(t, env, "carol"); got != store.StatusAvailable {
		t.Fatalf("expected carol available after handshake, got %q", got)
	}
}

func TestWebSocketAbruptDropReleasesSession(t *testing.T) {
	env := startTestServer(t, nil)
	bobToken := env.registerAndLogin(t, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(ctx, t, env, bobToken)
	waitFor(t, "bob available", func() bool { return statusOf(t, env, "bob") == store.StatusAvailable })

	// No close frame: the server only sees the TCP connection go away.
	if err := conn.CloseNow(); err != nil {
		t.Fatalf("close now: %v", err)
	}

	waitFor(t, "bob busy", func() bool { return statusOf(t, env, "bob") == store.StatusBusy })
	waitFor(t, "bob released", func() bool { return env.hub.Sessions("bob") == 0 })
}

func TestWSHandlerWaitDrainsConnections(t *testing.T) {
	env := startTestServer(t, nil)
	aliceToken := env.registerAndLogin(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(ctx, t, env, aliceToken)
	waitFor(t, "alice admitted", func() bool { return env.hub.Sessions("alice") == 1 })

	short, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()
	if err := env.ws.Wait(short); err == nil {
		t.Fatalf("expected Wait to block while a socket is open")
	}

	if err := conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := env.ws.Wait(ctx); err != nil {
		t.Fatalf("expected Wait to return once the socket closed: %v", err)
	}
	if got := statusOf(t, env, "alice"); got != store.StatusBusy {
		t.Fatalf("expected alice released before Wait returned, got %q", got)
	}
}
