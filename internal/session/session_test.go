package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/agusx1211/llmws/pkg/wire"
)

func newTestServer(t *testing.T, handler func(ctx context.Context, c *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		handler(r.Context(), c)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func writeFrame(ctx context.Context, c *websocket.Conn, v any) error {
	data, err := wire.EncodeJSON(v)
	if err != nil {
		return err
	}
	return c.Write(ctx, websocket.MessageText, data)
}

func TestSessionRoundTrip(t *testing.T) {
	url := newTestServer(t, func(ctx context.Context, c *websocket.Conn) {
		writeFrame(ctx, c, map[string]any{"type": "welcome", "session_id": "abc123"})
		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		frame, err := wire.DecodeFrame(data)
		if err != nil || frame.Type() != "inference" {
			return
		}
		writeFrame(ctx, c, map[string]any{"type": "start", "tokens_in": 12})
		writeFrame(ctx, c, map[string]any{"type": "token", "data": "hi"})
		writeFrame(ctx, c, map[string]any{"type": "done", "total_tokens": 13})
		c.Close(websocket.StatusNormalClosure, "")
	})

	sess, err := Dial(context.Background(), url, Options{ConnectTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer sess.Close()

	welcome, err := sess.Next(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("Next() welcome error = %v", err)
	}
	if welcome.Type() != wire.TypeWelcome || welcome.Str("session_id") != "abc123" {
		t.Fatalf("welcome frame = %v", welcome)
	}

	req := wire.NewInferenceRequest("", "ping", nil, nil)
	if err := sess.Send(context.Background(), req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	wantTypes := []string{wire.TypeStart, wire.TypeToken, wire.TypeDone}
	for _, want := range wantTypes {
		frame, err := sess.Next(context.Background(), 2*time.Second)
		if err != nil {
			t.Fatalf("Next() %s error = %v", want, err)
		}
		if frame.Type() != want {
			t.Fatalf("frame type = %q, want %q", frame.Type(), want)
		}
	}
}

func TestSessionMultipleFramesInOneMessage(t *testing.T) {
	url := newTestServer(t, func(ctx context.Context, c *websocket.Conn) {
		payload := []byte("{\"type\":\"welcome\"}\n{\"type\":\"start\"}\n")
		c.Write(ctx, websocket.MessageText, payload)
		time.Sleep(200 * time.Millisecond)
	})

	sess, err := Dial(context.Background(), url, Options{ConnectTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer sess.Close()

	for _, want := range []string{wire.TypeWelcome, wire.TypeStart} {
		frame, err := sess.Next(context.Background(), 2*time.Second)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if frame.Type() != want {
			t.Fatalf("frame type = %q, want %q", frame.Type(), want)
		}
	}
}

func TestSessionDeliversFramesBeforeDisconnectError(t *testing.T) {
	url := newTestServer(t, func(ctx context.Context, c *websocket.Conn) {
		writeFrame(ctx, c, map[string]any{"type": "done", "total_tokens": 3})
	})

	sess, err := Dial(context.Background(), url, Options{ConnectTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer sess.Close()

	frame, err := sess.Next(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("Next() error = %v, want buffered done frame", err)
	}
	total, ok := frame.Int("total_tokens")
	if frame.Type() != wire.TypeDone || !ok || total != 3 {
		t.Fatalf("frame = %v, want done with total_tokens=3", frame)
	}

	if _, err := sess.Next(context.Background(), 2*time.Second); err == nil {
		t.Fatal("Next() after disconnect expected an error")
	}
}

func TestSessionDialFailure(t *testing.T) {
	ctx := context.Background()
	if _, err := Dial(ctx, "ws://127.0.0.1:1", Options{ConnectTimeout: time.Second}); err == nil {
		t.Fatal("Dial() to an unreachable endpoint expected an error")
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	url := newTestServer(t, func(ctx context.Context, c *websocket.Conn) {
		c.Read(ctx)
	})

	sess, err := Dial(context.Background(), url, Options{ConnectTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	sess.Close()
	sess.Close()
}
