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
	"github.com/rs/zerolog"

	"github.com/lojistavip/vipchat-server/internal/auth"
	"github.com/lojistavip/vipchat-server/internal/chat"
	"github.com/lojistavip/vipchat-server/internal/config"
	"github.com/lojistavip/vipchat-server/internal/proto"
	"github.com/lojistavip/vipchat-server/internal/store"
	"github.com/lojistavip/vipchat-server/internal/utils"
)

// WSHandler upgrades HTTP connections and bridges them to the chat
// core. Each connection owns a session, a router and a projector; the
// projector's change notifications drive view pushes to the client.
type WSHandler struct {
	store store.Store
	auth  *auth.Service
	cfg   *config.Config
	log   *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(st store.Store, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{store: st, auth: authService, cfg: cfg, log: logger}
}

// wsConn is the per-connection state.
type wsConn struct {
	id        string
	conn      *websocket.Conn
	authSvc   *auth.Service
	session   *auth.Session
	router    *chat.Router
	projector *chat.Projector
	users     store.UserStore
	limiter   *rateLimiter
	log       *zerolog.Logger

	// changed coalesces log and identity change notifications; the
	// write loop drains it and re-pushes all views.
	changed chan struct{}

	mu    sync.Mutex
	peers map[string]struct{}
	names map[string]string
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	session := auth.NewSession()
	c := &wsConn{
		id:      utils.NewID(),
		conn:    conn,
		authSvc: h.auth,
		session: session,
		router:  chat.NewRouter(h.store, session),
		users:   h.store,
		limiter: newRateLimiter(h.cfg.MessageRateLimit),
		log:     h.log,
		changed: make(chan struct{}, 1),
		peers:   make(map[string]struct{}),
		names:   make(map[string]string),
	}

	projector, err := chat.NewProjector(h.store, session, c.notifyChange)
	if err != nil {
		h.log.Error().Err(err).Msg("subscribe message log")
		conn.Close(websocket.StatusInternalError, "log unavailable")
		return
	}
	c.projector = projector
	defer projector.Close()

	// Sign-in and sign-out refresh views the same way log changes do.
	session.OnChange(c.notifyChange)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.limiter.startReset(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- c.readLoop(ctx)
	}()
	go func() {
		errCh <- c.writeLoop(ctx)
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
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", c.id).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// notifyChange is invoked by the projector and the session; it must
// not block.
func (c *wsConn) notifyChange() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

func (c *wsConn) readLoop(ctx context.Context) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, c.conn, &inbound); err != nil {
			return err
		}

		switch inbound.Type {
		case proto.InboundTypeHello:
			if err := c.handleHello(ctx, inbound.Data); err != nil {
				return err
			}
		case proto.InboundTypeSend:
			if err := c.handleSend(ctx, inbound.Data); err != nil {
				return err
			}
		case proto.InboundTypeWatch:
			if err := c.handleWatch(ctx, inbound.Data, true); err != nil {
				return err
			}
		case proto.InboundTypeUnwatch:
			if err := c.handleWatch(ctx, inbound.Data, false); err != nil {
				return err
			}
		default:
			if err := c.writeError(ctx, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}); err != nil {
				return err
			}
		}
	}
}

func (c *wsConn) handleHello(ctx context.Context, data json.RawMessage) error {
	var hello proto.HelloData
	if err := json.Unmarshal(data, &hello); err != nil {
		return err
	}
	if hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion {
		return c.writeError(ctx, &proto.Error{Code: "unsupported_version", Msg: "unsupported protocol version"})
	}

	claims, err := c.validateToken(hello.Token)
	if err != nil {
		c.log.Debug().Err(err).Str("conn_id", c.id).Msg("ws hello rejected")
		return c.writeError(ctx, &proto.Error{Code: "unauthorized", Msg: "invalid token"})
	}

	c.session.SignIn(claims)
	return wsjson.Write(ctx, c.conn, proto.Outbound{
		Type: proto.OutboundTypeWelcome,
		Data: proto.WelcomeData{
			UserID:   claims.UserID,
			Username: claims.Username,
			Protocol: proto.ProtocolVersion,
		},
	})
}

func (c *wsConn) handleSend(ctx context.Context, data json.RawMessage) error {
	var send proto.SendData
	if err := json.Unmarshal(data, &send); err != nil {
		return err
	}
	if !c.limiter.allow() {
		return c.writeError(ctx, &proto.Error{Code: "rate_limited", Msg: "too many messages"})
	}

	stored, err := c.router.Send(ctx, chat.SendRequest{
		Peer:          send.Peer,
		Text:          send.Text,
		AttachmentURL: send.AttachmentURL,
	})
	if err != nil {
		return c.writeError(ctx, protoErrorFrom(err))
	}

	return wsjson.Write(ctx, c.conn, proto.Outbound{
		Type: proto.OutboundTypeAck,
		Data: ackFromStored(stored),
	})
}

func (c *wsConn) handleWatch(ctx context.Context, data json.RawMessage, add bool) error {
	var watch proto.WatchData
	if err := json.Unmarshal(data, &watch); err != nil {
		return err
	}

	if add {
		// Resolving the channel up front reports bad peers immediately
		// instead of silently materializing an empty view.
		if _, err := c.projector.Direct(watch.Peer); err != nil {
			return c.writeError(ctx, protoErrorFrom(err))
		}
	}

	c.mu.Lock()
	if add {
		c.peers[watch.Peer] = struct{}{}
	} else {
		delete(c.peers, watch.Peer)
	}
	c.mu.Unlock()

	c.notifyChange()
	return nil
}

func (c *wsConn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-c.changed:
			if err := c.pushViews(ctx); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pushViews sends the broadcast view and every watched direct view as
// full replacement lists.
func (c *wsConn) pushViews(ctx context.Context) error {
	if err := c.writeView(ctx, c.projector.Broadcast(), ""); err != nil {
		return err
	}

	c.mu.Lock()
	peers := make([]string, 0, len(c.peers))
	for peer := range c.peers {
		peers = append(peers, peer)
	}
	c.mu.Unlock()

	for _, peer := range peers {
		view, err := c.projector.Direct(peer)
		if err != nil {
			// Signed out mid-subscription: the direct view is no longer
			// this connection's to see.
			continue
		}
		if err := c.writeView(ctx, view, peer); err != nil {
			return err
		}
	}
	return nil
}

func (c *wsConn) writeView(ctx context.Context, view chat.View, peer string) error {
	return wsjson.Write(ctx, c.conn, proto.Outbound{
		Type: proto.OutboundTypeView,
		Data: viewToProto(view, peer, func(id string) string {
			return c.resolveName(ctx, id)
		}),
	})
}

func (c *wsConn) writeError(ctx context.Context, protoErr *proto.Error) error {
	return wsjson.Write(ctx, c.conn, proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: protoErr,
	})
}

func (c *wsConn) validateToken(token string) (*auth.Claims, error) {
	if token == "" {
		return nil, errors.New("missing token")
	}
	return c.authSvc.ValidateToken(token)
}

// resolveName maps a sender id to a display name, cached per
// connection.
func (c *wsConn) resolveName(ctx context.Context, id string) string {
	c.mu.Lock()
	if name, ok := c.names[id]; ok {
		c.mu.Unlock()
		return name
	}
	c.mu.Unlock()

	user, err := c.users.GetUserByID(ctx, id)
	if err != nil {
		return ""
	}

	c.mu.Lock()
	c.names[id] = user.Username
	c.mu.Unlock()
	return user.Username
}
