package session

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agusx1211/llmws/internal/debug"
	"github.com/agusx1211/llmws/internal/eventq"
	"github.com/agusx1211/llmws/pkg/wire"
)

// ErrNextTimeout is returned by Next when no frame arrives in time.
var ErrNextTimeout = errors.New("session: timed out waiting for frame")

// frameQueue buffers decoded frames between the read pump and callers.
// Frames buffered before a terminal error are still delivered, so a
// stream that finishes right as the peer drops the connection completes
// cleanly.
type frameQueue struct {
	mu     sync.Mutex
	frames []wire.Frame
	err    error

	wake chan struct{} // coalesced arrival signal
	dead chan struct{} // closed once err is set
}

func newFrameQueue() *frameQueue {
	return &frameQueue{
		wake: make(chan struct{}, 1),
		dead: make(chan struct{}),
	}
}

// push splits a payload on newlines and appends every decodable frame.
// Lines that fail to decode are dropped.
func (q *frameQueue) push(payload []byte) {
	added := false
	for _, line := range bytes.Split(payload, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		frame, err := wire.DecodeFrame(line)
		if err != nil {
			debug.Logf("session", "dropping undecodable frame: %v", err)
			continue
		}
		q.mu.Lock()
		q.frames = append(q.frames, frame)
		q.mu.Unlock()
		added = true
	}
	if added {
		eventq.Notify(q.wake)
	}
}

// fail records the first terminal error and wakes every waiter. Later
// calls keep the original error.
func (q *frameQueue) fail(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return
	}
	q.err = err
	close(q.dead)
}

// next pops the oldest buffered frame, waiting up to timeout for one to
// arrive. A buffered frame wins over a recorded error.
func (q *frameQueue) next(ctx context.Context, timeout time.Duration) (wire.Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if len(q.frames) > 0 {
			frame := q.frames[0]
			q.frames = q.frames[1:]
			q.mu.Unlock()
			return frame, nil
		}
		err := q.err
		q.mu.Unlock()
		if err != nil {
			return nil, err
		}
		select {
		case <-q.wake:
		case <-q.dead:
		case <-timer.C:
			return nil, ErrNextTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
