// Package session maintains a single WebSocket connection to a model
// server. It dials the endpoint, pumps inbound newline-delimited JSON
// frames into a queue, and exposes a small send/next surface for the
// inference driver.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/agusx1211/llmws/internal/debug"
	"github.com/agusx1211/llmws/pkg/wire"
)

const (
	defaultMaxPayload = 2 << 20
	writeTimeout      = 15 * time.Second
	closeGrace        = 2 * time.Second
)

// Options tunes how a session is established.
type Options struct {
	// ConnectTimeout caps the WebSocket dial. Zero leaves the dial
	// bounded by the caller's context alone.
	ConnectTimeout time.Duration
	// MaxPayload caps a single inbound message in bytes. Zero applies
	// the default.
	MaxPayload int64
}

// Session is a live connection to one model server endpoint.
type Session struct {
	url    string
	conn   *websocket.Conn
	queue  *frameQueue
	cancel context.CancelFunc

	closeOnce sync.Once
}

// Dial connects to url and starts the read pump. The returned session
// stays alive until Close regardless of ctx.
func Dial(ctx context.Context, url string, opts Options) (*Session, error) {
	dialCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	maxPayload := opts.MaxPayload
	if maxPayload <= 0 {
		maxPayload = defaultMaxPayload
	}
	conn.SetReadLimit(maxPayload)

	pumpCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		url:    url,
		conn:   conn,
		queue:  newFrameQueue(),
		cancel: cancel,
	}
	go s.readPump(pumpCtx)
	debug.Logf("session", "connected url=%s", url)
	return s, nil
}

// URL reports the endpoint this session is connected to.
func (s *Session) URL() string {
	return s.url
}

func (s *Session) readPump(ctx context.Context) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.queue.fail(fmt.Errorf("read %s: %w", s.url, err))
			return
		}
		s.queue.push(data)
	}
}

// Send marshals v as JSON and writes it as a single text message.
func (s *Session) Send(ctx context.Context, v any) error {
	data, err := wire.EncodeJSON(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := s.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write %s: %w", s.url, err)
	}
	return nil
}

// Next returns the next inbound frame, waiting up to timeout for one to
// arrive. Once the connection has failed and the buffer is drained every
// call reports the original failure.
func (s *Session) Next(ctx context.Context, timeout time.Duration) (wire.Frame, error) {
	return s.queue.next(ctx, timeout)
}

// Close performs a best-effort clean shutdown, tearing the connection
// down after a short grace period if the close handshake stalls.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		closed := make(chan struct{})
		go func() {
			s.conn.Close(websocket.StatusNormalClosure, "")
			close(closed)
		}()
		select {
		case <-closed:
		case <-time.After(closeGrace):
			s.conn.CloseNow()
		}
		s.cancel()
		debug.Logf("session", "closed url=%s", s.url)
	})
}
