package main

import (
	"bufio"
	"bytes"
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

	"github.com/lojistavip/vipchat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	api := flag.String("api", "http://localhost:8080", "HTTP API base URL")
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "", "username (empty connects as guest)")
	pass := flag.String("pass", "", "password for -user")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	token, userID, err := signIn(ctx, *api, *user, *pass)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(msgType string, data any) {
		payload, marshalErr := json.Marshal(data)
		if marshalErr != nil {
			log.Printf("marshal %s: %v", msgType, marshalErr)
			return
		}
		if writeErr := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload}); writeErr != nil {
			cancel()
			log.Printf("send: %v", writeErr)
		}
	}

	send(proto.InboundTypeHello, proto.HelloData{Token: token, Protocol: proto.ProtocolVersion})

	fmt.Printf("Connected to %s as %s\n", *addr, userID)
	fmt.Println("Plain text goes to the community channel.")
	fmt.Println("/watch <user-id> follows a direct conversation, /dm <user-id> <text> sends one. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/watch "):
			send(proto.InboundTypeWatch, proto.WatchData{Peer: strings.TrimSpace(strings.TrimPrefix(line, "/watch "))})
		case strings.HasPrefix(line, "/dm "):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "/dm "))
			peer, text, ok := strings.Cut(rest, " ")
			if !ok {
				fmt.Println("usage: /dm <user-id> <text>")
				continue
			}
			send(proto.InboundTypeSend, proto.SendData{Peer: peer, Text: text})
		default:
			send(proto.InboundTypeSend, proto.SendData{Text: line})
		}
	}

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame struct {
			Type  string          `json:"type"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("read: %v", err)
			}
			return
		}

		switch frame.Type {
		case proto.OutboundTypeWelcome:
			var welcome proto.WelcomeData
			if json.Unmarshal(frame.Data, &welcome) == nil {
				fmt.Printf("* signed in as %s\n", welcome.Username)
			}
		case proto.OutboundTypeAck:
			var ack proto.AckData
			if json.Unmarshal(frame.Data, &ack) == nil {
				fmt.Printf("* delivered to %s\n", ack.ChannelID)
			}
		case proto.OutboundTypeView:
			var view proto.ViewData
			if json.Unmarshal(frame.Data, &view) != nil {
				continue
			}
			printView(view)
		case proto.OutboundTypeError:
			fmt.Printf("! %s: %s\n", frame.Error.Code, frame.Error.Msg)
		}
	}
}

func printView(view proto.ViewData) {
	header := view.ChannelID
	if view.Stale {
		header += " (stale)"
	}
	fmt.Printf("--- %s ---\n", header)
	for _, msg := range view.Messages {
		name := msg.SenderName
		if msg.IsMine {
			name = "me"
		}
		fmt.Printf("[%s] %s\n", name, msg.Text)
	}
}

func signIn(ctx context.Context, api, user, pass string) (token, userID string, err error) {
	path := "/api/guest"
	var payload []byte
	if user != "" {
		path = "/api/login"
		payload, err = json.Marshal(map[string]string{"username": user, "password": pass})
		if err != nil {
			return "", "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api+path, bytes.NewReader(payload))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", err
	}
	return body.Token, body.UserID, nil
}
