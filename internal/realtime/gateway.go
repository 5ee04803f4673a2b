// Package realtime relays Redis pub/sub traffic to websocket clients: each
// user's notification feed plus the chat channels they are allowed to follow.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	goRedis "github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/internal/middleware"
)

// Authenticator verifies the access token presented on connect.
type Authenticator interface {
	Verify(token string) (middleware.Identity, error)
}

// ChannelAuthorizer decides whether a user may follow a chat channel.
type ChannelAuthorizer interface {
	Authorize(ctx context.Context, channelID, userID string) error
}

type Config struct {
	Addr           string
	AllowedOrigins []string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

// Gateway serves the websocket endpoint on its own net/http server.
type Gateway struct {
	cfg      Config
	redis    *goRedis.Client
	auth     Authenticator
	chats    ChannelAuthorizer
	logger   *zap.Logger
	upgrader websocket.Upgrader
	server   *http.Server
}

func New(cfg Config, client *goRedis.Client, auth Authenticator, chats ChannelAuthorizer, logger *zap.Logger) *Gateway {
	if cfg.Addr == "" {
		cfg.Addr = ":8081"
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Gateway{
		cfg:    cfg,
		redis:  client,
		auth:   auth,
		chats:  chats,
		logger: logger,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	g.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// Handler returns the CORS-wrapped websocket mux.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.serveWS)
	mux.HandleFunc("/ws/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   g.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(mux)
}

// ListenAndServe blocks until the server stops. A graceful Shutdown is not reported as an error.
func (g *Gateway) ListenAndServe() error {
	g.logger.Info("realtime gateway listening", zap.String("addr", g.cfg.Addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = middleware.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	identity, err := g.auth.Verify(token)
	if err != nil {
		g.logger.Warn("websocket auth failed", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := g.redis.Subscribe(ctx, domain.NotificationChannel(identity.UserID))
	defer pubsub.Close()

	s := &session{
		gateway:  g,
		conn:     conn,
		userID:   identity.UserID,
		pubsub:   pubsub,
		outbound: make(chan Frame, 16),
		logger:   g.logger.With(zap.String("user_id", identity.UserID)),
	}
	s.logger.Info("websocket connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(ctx)
		// unblocks readLoop once the writer is gone
		_ = conn.Close()
	}()

	s.send(Frame{Type: FrameConnected})
	s.readLoop(ctx)

	cancel()
	<-done
	_ = conn.Close()
	s.logger.Info("websocket disconnected")
}

// Frame is the JSON envelope exchanged with clients.
type Frame struct {
	Type      string          `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	ChannelID string          `json:"channel_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Frame types.
const (
	FrameConnected    = "connected"
	FrameSubscribe    = "subscribe"
	FrameUnsubscribe  = "unsubscribe"
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameMessage      = "message"
	FrameError        = "error"
)

type session struct {
	gateway  *Gateway
	conn     *websocket.Conn
	userID   string
	pubsub   *goRedis.PubSub
	outbound chan Frame
	logger   *zap.Logger
}

func (s *session) send(frame Frame) {
	select {
	case s.outbound <- frame:
	default:
		s.logger.Warn("websocket outbound queue full, frame dropped", zap.String("type", frame.Type))
	}
}

// pongWait bounds the silence tolerated from a peer: one ping interval plus
// the time allowed to write the ping.
func (s *session) pongWait() time.Duration {
	return s.gateway.cfg.PingInterval + s.gateway.cfg.WriteTimeout
}

func (s *session) readLoop(ctx context.Context) {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.pongWait()))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.pongWait()))
	})

	for {
		var frame Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.pongWait()))

		switch frame.Type {
		case FrameSubscribe:
			if err := s.gateway.chats.Authorize(ctx, frame.ChannelID, s.userID); err != nil {
				s.send(Frame{Type: FrameError, ChannelID: frame.ChannelID, Error: err.Error()})
				continue
			}
			if err := s.pubsub.Subscribe(ctx, domain.ChatChannel(frame.ChannelID)); err != nil {
				s.send(Frame{Type: FrameError, ChannelID: frame.ChannelID, Error: "subscribe failed"})
				continue
			}
			s.send(Frame{Type: FrameSubscribed, ChannelID: frame.ChannelID})
		case FrameUnsubscribe:
			if err := s.pubsub.Unsubscribe(ctx, domain.ChatChannel(frame.ChannelID)); err != nil {
				s.send(Frame{Type: FrameError, ChannelID: frame.ChannelID, Error: "unsubscribe failed"})
				continue
			}
			s.send(Frame{Type: FrameUnsubscribed, ChannelID: frame.ChannelID})
		default:
			s.send(Frame{Type: FrameError, Error: "unsupported frame type"})
		}
	}
}

// writeLoop is the only writer on the connection.
func (s *session) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.gateway.cfg.PingInterval)
	defer ticker.Stop()
	messages := s.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := s.write(relayFrame(msg)); err != nil {
				return
			}
		case frame := <-s.outbound:
			if err := s.write(frame); err != nil {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(s.gateway.cfg.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (s *session) write(frame Frame) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.gateway.cfg.WriteTimeout))
	if err := s.conn.WriteJSON(frame); err != nil {
		s.logger.Debug("websocket write failed", zap.Error(err))
		return err
	}
	return nil
}

func relayFrame(msg *goRedis.Message) Frame {
	frame := Frame{Type: FrameMessage, Channel: msg.Channel}
	if json.Valid([]byte(msg.Payload)) {
		frame.Data = json.RawMessage(msg.Payload)
	} else {
		quoted, _ := json.Marshal(msg.Payload)
		frame.Data = quoted
	}
	return frame
}
