package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lojistavip/vipchat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	api := flag.String("api", "http://localhost:8080", "HTTP API base URL")
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	peer := flag.String("peer", "", "peer user id for a direct message (empty sends to community)")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	token, userID, err := guestToken(ctx, *api)
	if err != nil {
		return fmt.Errorf("guest login: %w", err)
	}
	fmt.Printf("signed in as guest %s\n", userID)

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(msgType string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", msgType, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", msgType, err)
		}
		return nil
	}

	if err := send(proto.InboundTypeHello, proto.HelloData{Token: token, Protocol: proto.ProtocolVersion}); err != nil {
		return err
	}
	if err := send(proto.InboundTypeSend, proto.SendData{Peer: *peer, Text: *text}); err != nil {
		return err
	}

	sawAck := false
	for {
		var frame struct {
			Type  string          `json:"type"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		switch frame.Type {
		case proto.OutboundTypeWelcome:
			fmt.Println("welcome received")
		case proto.OutboundTypeAck:
			var ack proto.AckData
			if err := json.Unmarshal(frame.Data, &ack); err != nil {
				return fmt.Errorf("unmarshal ack: %w", err)
			}
			fmt.Printf("ack: id=%s channel=%s\n", ack.ID, ack.ChannelID)
			sawAck = true
		case proto.OutboundTypeView:
			var view proto.ViewData
			if err := json.Unmarshal(frame.Data, &view); err != nil {
				return fmt.Errorf("unmarshal view: %w", err)
			}
			fmt.Printf("view: channel=%s messages=%d\n", view.ChannelID, len(view.Messages))
			if sawAck && len(view.Messages) > 0 {
				fmt.Println("smoke test passed")
				return nil
			}
		case proto.OutboundTypeError:
			return fmt.Errorf("server error: %s (%s)", frame.Error.Code, frame.Error.Msg)
		}
	}
}

func guestToken(ctx context.Context, api string) (token, userID string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api+"/api/guest", bytes.NewReader(nil))
	if err != nil {
		return "", "", err
	}

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
