package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nugget/relaybot/internal/bot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingHandler struct {
	messages chan *bot.Message
	commands chan *bot.Command

	mu       sync.Mutex
	admitted []string // message texts in admission order
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		messages: make(chan *bot.Message, 32),
		commands: make(chan *bot.Command, 8),
	}
}

func (h *recordingHandler) AdmitMessage(msg *bot.Message) func(context.Context) {
	h.mu.Lock()
	h.admitted = append(h.admitted, msg.Text)
	h.mu.Unlock()
	if msg.Text == "ignore me" {
		return nil
	}
	return func(context.Context) { h.messages <- msg }
}

func (h *recordingHandler) AdmitCommand(cmd *bot.Command) func(context.Context) {
	return func(context.Context) { h.commands <- cmd }
}

func (h *recordingHandler) admittedTexts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.admitted...)
}

// harness runs a gateway behind httptest and connects one adapter.
type harness struct {
	gw      *Server
	handler *recordingHandler
	adapter *websocket.Conn
}

func newHarness(t *testing.T, ackTimeout time.Duration) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	gw := New(Config{Token: "secret", AckTimeout: ackTimeout, Logger: slog.New(slog.DiscardHandler)})
	h := newRecordingHandler()
	srv := httptest.NewServer(gw.Handler(ctx, h))

	header := http.Header{"Authorization": {"Bearer secret"}}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		srv.Close()
		gw.Wait()
	})

	require.Eventually(t, gw.Connected, 2*time.Second, 5*time.Millisecond)
	return &harness{gw: gw, handler: h, adapter: conn}
}

// readFrame reads the next outbound frame as a generic map.
func (h *harness) readFrame(t *testing.T) map[string]any {
	t.Helper()
	h.adapter.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f map[string]any
	require.NoError(t, h.adapter.ReadJSON(&f))
	return f
}

func (h *harness) ack(t *testing.T, id string, extra map[string]any) {
	t.Helper()
	f := map[string]any{"type": "ack", "id": id, "ok": true}
	for k, v := range extra {
		f[k] = v
	}
	require.NoError(t, h.adapter.WriteJSON(f))
}

func TestHandshakeRequiresToken(t *testing.T) {
	gw := New(Config{Token: "secret", Logger: slog.New(slog.DiscardHandler)})
	srv := httptest.NewServer(gw.Handler(context.Background(), newRecordingHandler()))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	for _, header := range []http.Header{
		nil,
		{"Authorization": {"Bearer wrong"}},
		{"Authorization": {"secret"}},
	} {
		_, resp, err := websocket.DefaultDialer.Dial(url, header)
		require.Error(t, err)
		require.NotNil(t, resp)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}
	require.False(t, gw.Connected())
}

func TestEmptyTokenRejectsEveryone(t *testing.T) {
	gw := New(Config{Logger: slog.New(slog.DiscardHandler)})
	req := httptest.NewRequest(http.MethodGet, "/gateway", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	gw.Handler(context.Background(), newRecordingHandler()).ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInboundEvents(t *testing.T) {
	h := newHarness(t, time.Second)

	require.NoError(t, h.adapter.WriteJSON(map[string]any{
		"type": "message", "context_id": "c1", "author_id": "u1", "text": "hello",
		"is_direct": false, "guild": map[string]any{"guild_id": "g1", "symbols": []string{"<:wave:1>"}},
	}))
	select {
	case msg := <-h.handler.messages:
		require.Equal(t, &bot.Message{
			ContextID: "c1", AuthorID: "u1", Text: "hello",
			Guild: &bot.Guild{GuildID: "g1", Symbols: []string{"<:wave:1>"}},
		}, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("message not dispatched")
	}

	// A malformed frame is skipped without dropping the connection.
	require.NoError(t, h.adapter.WriteMessage(websocket.TextMessage, []byte(`{"type": `)))

	require.NoError(t, h.adapter.WriteJSON(map[string]any{
		"type": "command", "command": "heavy", "context_id": "c2", "author_id": "u2", "prompt": "think hard",
	}))
	select {
	case cmd := <-h.handler.commands:
		require.Equal(t, &bot.Command{Command: "heavy", ContextID: "c2", AuthorID: "u2", Prompt: "think hard"}, cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("command not dispatched")
	}
}

func TestMessagesAdmittedInFrameOrder(t *testing.T) {
	h := newHarness(t, time.Second)

	var want []string
	for i := range 20 {
		text := fmt.Sprintf("msg-%02d", i)
		want = append(want, text)
		require.NoError(t, h.adapter.WriteJSON(map[string]any{"type": "message", "context_id": "c1", "text": text}))
	}
	for range want {
		select {
		case <-h.handler.messages:
		case <-time.After(2 * time.Second):
			t.Fatal("message not dispatched")
		}
	}
	require.Equal(t, want, h.handler.admittedTexts())
}

func TestIgnoredMessageNotDispatched(t *testing.T) {
	h := newHarness(t, time.Second)

	require.NoError(t, h.adapter.WriteJSON(map[string]any{"type": "message", "context_id": "c1", "text": "ignore me"}))
	require.NoError(t, h.adapter.WriteJSON(map[string]any{"type": "message", "context_id": "c1", "text": "answer me"}))
	select {
	case msg := <-h.handler.messages:
		require.Equal(t, "answer me", msg.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("message not dispatched")
	}
	require.Equal(t, []string{"ignore me", "answer me"}, h.handler.admittedTexts())
}

func TestPing(t *testing.T) {
	h := newHarness(t, time.Second)
	require.NoError(t, h.adapter.WriteJSON(map[string]any{"type": "ping", "id": "p1"}))
	f := h.readFrame(t)
	require.Equal(t, "pong", f["type"])
	require.Equal(t, "p1", f["id"])
}

func TestSendEditDelete(t *testing.T) {
	h := newHarness(t, 2*time.Second)
	ctx := context.Background()

	type result struct {
		id  string
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := h.gw.Send(ctx, "c1", "Thinking...")
		done <- result{id, err}
	}()

	f := h.readFrame(t)
	require.Equal(t, "send", f["type"])
	require.Equal(t, "c1", f["context_id"])
	require.Equal(t, "Thinking...", f["text"])
	msgID, _ := f["message_id"].(string)
	require.NotEmpty(t, msgID)
	h.ack(t, f["id"].(string), nil)

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, msgID, res.id)

	errc := make(chan error, 1)
	go func() { errc <- h.gw.Edit(ctx, "c1", msgID, "Thinking..") }()
	f = h.readFrame(t)
	require.Equal(t, "edit", f["type"])
	require.Equal(t, msgID, f["message_id"])
	h.ack(t, f["id"].(string), nil)
	require.NoError(t, <-errc)

	go func() { errc <- h.gw.Delete(ctx, "c1", msgID) }()
	f = h.readFrame(t)
	require.Equal(t, "delete", f["type"])
	require.NoError(t, h.adapter.WriteJSON(map[string]any{"type": "ack", "id": f["id"], "ok": false, "error": "Unknown Message"}))
	err := <-errc
	require.Error(t, err)
	require.Contains(t, err.Error(), "Unknown Message")
}

func TestSendFileBase64(t *testing.T) {
	h := newHarness(t, 2*time.Second)

	errc := make(chan error, 1)
	go func() { errc <- h.gw.SendFile(context.Background(), "c1", "story.txt", []byte("Once upon a time")) }()

	f := h.readFrame(t)
	require.Equal(t, "file", f["type"])
	require.Equal(t, "story.txt", f["filename"])
	data, err := base64.StdEncoding.DecodeString(f["data"].(string))
	require.NoError(t, err)
	require.Equal(t, "Once upon a time", string(data))
	h.ack(t, f["id"].(string), nil)
	require.NoError(t, <-errc)
}

func TestCreateAndRenameContext(t *testing.T) {
	h := newHarness(t, 2*time.Second)
	ctx := context.Background()

	type result struct {
		id  string
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := h.gw.CreateContext(ctx, "g1", "u1", "new-chat-1")
		done <- result{id, err}
	}()

	f := h.readFrame(t)
	require.Equal(t, "create_context", f["type"])
	require.Equal(t, "g1", f["guild_id"])
	require.Equal(t, "u1", f["owner_id"])
	require.Equal(t, "new-chat-1", f["name"])
	h.ack(t, f["id"].(string), map[string]any{"context_id": "chan-42"})

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, "chan-42", res.id)

	// An ack without an ID is an error.
	go func() {
		id, err := h.gw.CreateContext(ctx, "g1", "u1", "new-chat-2")
		done <- result{id, err}
	}()
	f = h.readFrame(t)
	h.ack(t, f["id"].(string), nil)
	require.Error(t, (<-done).err)

	errc := make(chan error, 1)
	go func() { errc <- h.gw.RenameContext(ctx, "chan-42", "go-generics") }()
	f = h.readFrame(t)
	require.Equal(t, "rename_context", f["type"])
	require.Equal(t, "go-generics", f["name"])
	h.ack(t, f["id"].(string), nil)
	require.NoError(t, <-errc)
}

func TestAckTimeout(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)

	_, err := h.gw.Send(context.Background(), "c1", "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "timeout waiting for ack")
	h.readFrame(t) // drain the unanswered frame
}

func TestNotConnected(t *testing.T) {
	gw := New(Config{Token: "secret", Logger: slog.New(slog.DiscardHandler)})
	_, err := gw.Send(context.Background(), "c1", "hi")
	require.True(t, errors.Is(err, ErrNotConnected))
	require.ErrorIs(t, gw.RenameContext(context.Background(), "c", "n"), ErrNotConnected)
}

func TestDisconnectFailsPending(t *testing.T) {
	h := newHarness(t, 5*time.Second)

	errc := make(chan error, 1)
	go func() { errc <- h.gw.Edit(context.Background(), "c1", "m1", "x") }()
	h.readFrame(t)
	h.adapter.Close()

	select {
	case err := <-errc:
		require.Error(t, err)
		require.Contains(t, err.Error(), "adapter disconnected")
	case <-time.After(2 * time.Second):
		t.Fatal("pending request not failed on disconnect")
	}
	require.Eventually(t, func() bool { return !h.gw.Connected() }, 2*time.Second, 5*time.Millisecond)
}

func TestFrameJSONShape(t *testing.T) {
	raw, err := json.Marshal(frame{Type: frameSend, ID: "1", ContextID: "c", MessageID: "m", Text: "hi"})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"send","id":"1","context_id":"c","message_id":"m","text":"hi"}`, string(raw))
}
