// Package gateway is the WebSocket transport between the bot core and a
// chat-platform adapter. The adapter connects with the bot credential,
// streams message and command events in, and performs the send, edit,
// delete, file and context actions the bot requests, acknowledging each.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nugget/relaybot/internal/bot"
	"github.com/nugget/relaybot/internal/llm"
)

// ErrNotConnected is returned by outbound actions while no adapter is
// connected.
var ErrNotConnected = errors.New("gateway: no adapter connected")

const (
	defaultAckTimeout = 30 * time.Second
	writeTimeout      = 10 * time.Second
	maxFrameBytes     = 1 << 20
)

// Handler consumes inbound events. *bot.Bot implements it. Admit calls
// happen on the read loop in frame order; the returned work runs on its
// own goroutine. A nil function means the event needs no work.
type Handler interface {
	AdmitMessage(msg *bot.Message) func(context.Context)
	AdmitCommand(cmd *bot.Command) func(context.Context)
}

// Config configures a Server.
type Config struct {
	// Token is the bot credential adapters present as a Bearer token.
	Token      string
	Path       string
	AckTimeout time.Duration
	Logger     *slog.Logger
}

// Server accepts one adapter connection at a time. A new connection
// replaces the previous one.
type Server struct {
	token      string
	path       string
	ackTimeout time.Duration
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan frame

	// events tracks in-flight handler goroutines.
	events sync.WaitGroup
}

// New creates a gateway server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = defaultAckTimeout
	}
	if cfg.Path == "" {
		cfg.Path = "/gateway"
	}
	return &Server{
		token:      cfg.Token,
		path:       cfg.Path,
		ackTimeout: cfg.AckTimeout,
		logger:     logger,
		pending:    make(map[string]chan frame),
	}
}

// Connected reports whether an adapter is attached.
func (s *Server) Connected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

// Handler returns the HTTP handler that upgrades adapter connections.
// Events are dispatched to h with contexts derived from ctx, and the
// active connection is closed when ctx ends.
func (s *Server) Handler(ctx context.Context, h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			s.logger.Warn("gateway connection rejected", "remote", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("gateway upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		conn.SetReadLimit(maxFrameBytes)

		s.attach(conn)
		s.logger.Info("adapter connected", "remote", r.RemoteAddr)

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()

		s.readLoop(ctx, conn, h)
		s.detach(conn)
		s.logger.Info("adapter disconnected", "remote", r.RemoteAddr)
	})
}

// ListenAndServe serves the gateway on addr until ctx is cancelled, then
// shuts down and waits for in-flight events to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string, h Handler) error {
	mux := http.NewServeMux()
	mux.Handle(s.path, s.Handler(ctx, h))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "address", addr, "path", s.path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	<-errCh
	s.Wait()
	return err
}

// Wait blocks until every dispatched event handler has returned.
func (s *Server) Wait() { s.events.Wait() }

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return false
	}
	tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(tok), []byte(s.token)) == 1
}

func (s *Server) attach(conn *websocket.Conn) {
	s.connMu.Lock()
	old := s.conn
	s.conn = conn
	s.connMu.Unlock()
	if old != nil {
		s.logger.Info("replacing previous adapter connection")
		old.Close()
	}
}

// detach clears conn if it is still the active connection and fails any
// requests waiting on it.
func (s *Server) detach(conn *websocket.Conn) {
	s.connMu.Lock()
	active := s.conn == conn
	if active {
		s.conn = nil
	}
	s.connMu.Unlock()
	conn.Close()

	if !active {
		return
	}
	s.pendingMu.Lock()
	for id, ch := range s.pending {
		select {
		case ch <- frame{Type: frameAck, ID: id, Error: "adapter disconnected"}:
		default:
		}
	}
	s.pendingMu.Unlock()
}

// readLoop reads frames until the connection fails.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, h Handler) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ctx.Err() != nil {
				return
			}
			s.logger.Error("gateway read failed", "error", err)
			return
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			s.logger.Warn("gateway dropped malformed frame", "error", err)
			continue
		}
		s.logger.Log(ctx, llm.LevelTrace, "gateway frame received", "type", f.Type, "id", f.ID)

		switch f.Type {
		case frameMessage:
			s.dispatch(ctx, h.AdmitMessage(f.message()))
		case frameCommand:
			s.dispatch(ctx, h.AdmitCommand(f.command()))
		case frameAck:
			s.pendingMu.Lock()
			ch, ok := s.pending[f.ID]
			s.pendingMu.Unlock()
			if !ok {
				s.logger.Debug("ack for unknown request", "id", f.ID)
				continue
			}
			select {
			case ch <- f:
			default:
			}
		case framePing:
			if err := s.write(frame{Type: framePong, ID: f.ID}); err != nil {
				s.logger.Debug("pong failed", "error", err)
			}
		default:
			s.logger.Debug("unhandled gateway frame", "type", f.Type)
		}
	}
}

// dispatch runs fn in its own goroutine so conversations proceed
// concurrently.
func (s *Server) dispatch(ctx context.Context, fn func(context.Context)) {
	if fn == nil {
		return
	}
	s.events.Add(1)
	go func() {
		defer s.events.Done()
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("event handler panicked", "panic", p)
			}
		}()
		fn(ctx)
	}()
}

func (s *Server) write(f frame) error {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(f); err != nil {
		return fmt.Errorf("gateway: write %s: %w", f.Type, err)
	}
	return nil
}

// request sends f and waits for the adapter's ack.
func (s *Server) request(ctx context.Context, f frame) (frame, error) {
	f.ID = uuid.NewString()
	ch := make(chan frame, 1)

	s.pendingMu.Lock()
	s.pending[f.ID] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, f.ID)
		s.pendingMu.Unlock()
	}()

	if err := s.write(f); err != nil {
		return frame{}, err
	}

	timer := time.NewTimer(s.ackTimeout)
	defer timer.Stop()

	select {
	case ack := <-ch:
		if !ack.OK {
			msg := ack.Error
			if msg == "" {
				msg = "rejected by adapter"
			}
			return ack, fmt.Errorf("gateway: %s: %s", f.Type, msg)
		}
		return ack, nil
	case <-ctx.Done():
		return frame{}, ctx.Err()
	case <-timer.C:
		return frame{}, fmt.Errorf("gateway: %s: timeout waiting for ack", f.Type)
	}
}

// Send posts text and returns the message ID later edits and deletes use.
func (s *Server) Send(ctx context.Context, contextID, text string) (string, error) {
	id := uuid.NewString()
	if _, err := s.request(ctx, frame{Type: frameSend, ContextID: contextID, MessageID: id, Text: text}); err != nil {
		return "", err
	}
	return id, nil
}

// Edit replaces the text of a message posted by Send.
func (s *Server) Edit(ctx context.Context, contextID, messageID, text string) error {
	_, err := s.request(ctx, frame{Type: frameEdit, ContextID: contextID, MessageID: messageID, Text: text})
	return err
}

// Delete removes a message posted by Send.
func (s *Server) Delete(ctx context.Context, contextID, messageID string) error {
	_, err := s.request(ctx, frame{Type: frameDelete, ContextID: contextID, MessageID: messageID})
	return err
}

// SendFile uploads data as an attachment named filename.
func (s *Server) SendFile(ctx context.Context, contextID, filename string, data []byte) error {
	_, err := s.request(ctx, frame{Type: frameFile, ContextID: contextID, Filename: filename, Data: data})
	return err
}

// CreateContext asks the adapter for a new private context visible only to
// ownerID and the bot, returning its ID.
func (s *Server) CreateContext(ctx context.Context, guildID, ownerID, name string) (string, error) {
	ack, err := s.request(ctx, frame{Type: frameCreateContext, GuildID: guildID, OwnerID: ownerID, Name: name})
	if err != nil {
		return "", err
	}
	if ack.ContextID == "" {
		return "", fmt.Errorf("gateway: %s: adapter returned no context_id", frameCreateContext)
	}
	return ack.ContextID, nil
}

// RenameContext renames an existing context.
func (s *Server) RenameContext(ctx context.Context, contextID, name string) error {
	_, err := s.request(ctx, frame{Type: frameRenameContext, ContextID: contextID, Name: name})
	return err
}

var (
	_ bot.Outbound = (*Server)(nil)
	_ Handler      = (*bot.Bot)(nil)
)
