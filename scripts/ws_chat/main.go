package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/awayrelay/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:3000/ws", "WebSocket address")
	token := flag.String("token", os.Getenv("AWAYRELAY_TOKEN"), "bearer token from /api/login")
	to := flag.String("to", "", "default receiver; a line starting with @name overrides it")
	flag.Parse()

	if *token == "" {
		return errors.New("token is required (--token or AWAYRELAY_TOKEN)")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+*token)
	conn, resp, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to %s\n", *addr)
	fmt.Println("Type messages and press Enter to send (@name text picks a receiver). Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *to)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound struct {
			Type  string          `json:"type"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch outbound.Type {
		case proto.OutboundTypeReceiveMessage:
			var msg proto.ReceiveMessageData
			if err := json.Unmarshal(outbound.Data, &msg); err != nil {
				log.Printf("unmarshal message: %v", err)
				continue
			}
			fmt.Printf("%s: %s\n", msg.Sender, msg.Message)
		case proto.OutboundTypeError:
			if outbound.Error != nil {
				fmt.Printf("error %s: %s\n", outbound.Error.Code, outbound.Error.Msg)
			}
		default:
			fmt.Printf("type=%s data=%s\n", outbound.Type, outbound.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, to string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			receiver, text := parseLine(line, to)
			if text == "" {
				continue
			}
			if receiver == "" {
				fmt.Println("no receiver: use --to or start the line with @name")
				continue
			}

			payload, err := json.Marshal(proto.SendMessageData{Receiver: receiver, Message: text})
			if err != nil {
				log.Printf("marshal message: %v", err)
				return
			}
			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSendMessage, Data: payload}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}

// parseLine splits "@bob hello" into ("bob", "hello"); other lines go to fallback.
func parseLine(line, fallback string) (string, string) {
	text := strings.TrimSpace(line)
	if name, rest, ok := strings.Cut(text, " "); ok && strings.HasPrefix(name, "@") && len(name) > 1 {
		return name[1:], strings.TrimSpace(rest)
	}
	return fallback, text
}
