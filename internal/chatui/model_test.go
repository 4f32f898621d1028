package chatui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/agusx1211/llmws/internal/infer"
	"github.com/agusx1211/llmws/internal/transcript"
)

// stubGenerate records requests and plays back scripted results.
type stubGenerate struct {
	mu   sync.Mutex
	reqs []infer.Request
	res  *infer.Result
	err  error
}

func (s *stubGenerate) generate(ctx context.Context, req infer.Request) (*infer.Result, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

func (s *stubGenerate) requests() []infer.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]infer.Request(nil), s.reqs...)
}

func newTestModel(t *testing.T, stub *stubGenerate) Model {
	t.Helper()
	m := NewModel(Config{Model: "coder", Transcript: "/tmp/chat.jsonl"}, stub.generate, make(chan any, 16), context.Background())
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model)
}

// runBatch executes every command in a (possibly batched) Cmd and returns
// the produced messages.
func runBatch(t *testing.T, cmd tea.Cmd) []tea.Msg {
	t.Helper()
	if cmd == nil {
		return nil
	}
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		return []tea.Msg{msg}
	}
	var out []tea.Msg
	for _, sub := range batch {
		if sub == nil {
			continue
		}
		out = append(out, sub())
	}
	return out
}

func findReply(msgs []tea.Msg) (replyMsg, bool) {
	for _, m := range msgs {
		if r, ok := m.(replyMsg); ok {
			return r, true
		}
	}
	return replyMsg{}, false
}

func TestSubmitRunsGenerationAndRecordsReply(t *testing.T) {
	stub := &stubGenerate{res: &infer.Result{
		Text:      "hi there",
		SessionID: "s1",
		Target:    "ws://127.0.0.1:8765",
		Usage:     infer.Usage{Total: 12},
	}}
	m := newTestModel(t, stub)

	m.input.SetValue("hello")
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m2 := updated.(Model)

	if !m2.generating {
		t.Fatal("generating = false after submit, want true")
	}
	if len(m2.messages) != 1 || m2.messages[0].role != roleUser || m2.messages[0].text != "hello" {
		t.Fatalf("messages after submit = %+v, want single user entry", m2.messages)
	}
	if got := m2.input.Value(); got != "" {
		t.Fatalf("input after submit = %q, want empty", got)
	}

	reply, ok := findReply(runBatch(t, cmd))
	if !ok {
		t.Fatal("submit batch produced no reply message")
	}
	updated, _ = m2.Update(reply)
	m3 := updated.(Model)

	if m3.generating {
		t.Fatal("generating = true after reply, want false")
	}
	last := m3.messages[len(m3.messages)-1]
	if last.role != roleAssistant || last.text != "hi there" {
		t.Fatalf("last message = %+v, want assistant reply", last)
	}
	if m3.sessionID != "s1" {
		t.Fatalf("sessionID = %q, want s1", m3.sessionID)
	}
	if m3.totalTokens != 12 {
		t.Fatalf("totalTokens = %d, want 12", m3.totalTokens)
	}

	reqs := stub.requests()
	if len(reqs) != 1 {
		t.Fatalf("generate calls = %d, want 1", len(reqs))
	}
	if reqs[0].Prompt != "hello" || reqs[0].Model != "coder" || reqs[0].Transcript != "/tmp/chat.jsonl" {
		t.Fatalf("request = %+v, want prompt/model/transcript threaded through", reqs[0])
	}
}

func TestSessionResumeThreadsThroughFollowupCalls(t *testing.T) {
	stub := &stubGenerate{res: &infer.Result{Text: "first", SessionID: "sess-9"}}
	m := newTestModel(t, stub)

	m.input.SetValue("one")
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m2 := updated.(Model)
	reply, ok := findReply(runBatch(t, cmd))
	if !ok {
		t.Fatal("no reply message from first submit")
	}
	updated, _ = m2.Update(reply)
	m3 := updated.(Model)

	m3.input.SetValue("two")
	updated, cmd = m3.Update(tea.KeyMsg{Type: tea.KeyEnter})
	runBatch(t, cmd)
	_ = updated

	reqs := stub.requests()
	if len(reqs) != 2 {
		t.Fatalf("generate calls = %d, want 2", len(reqs))
	}
	if reqs[0].Resume != "" {
		t.Fatalf("first call resume = %q, want empty", reqs[0].Resume)
	}
	if reqs[1].Resume != "sess-9" {
		t.Fatalf("second call resume = %q, want sess-9", reqs[1].Resume)
	}
}

func TestTokensAccumulateOnlyWhileGenerating(t *testing.T) {
	stub := &stubGenerate{res: &infer.Result{Text: "x"}}
	m := newTestModel(t, stub)

	// Idle tokens are leftovers from a finished call and must be dropped.
	updated, cmd := m.Update(tokenMsg{Text: "stale"})
	m2 := updated.(Model)
	if cmd == nil {
		t.Fatal("token handling must re-arm the event wait")
	}
	if m2.streamBuf.Len() != 0 {
		t.Fatalf("streamBuf after idle token = %q, want empty", m2.streamBuf.String())
	}

	m2.input.SetValue("go")
	updated, _ = m2.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m3 := updated.(Model)
	updated, _ = m3.Update(tokenMsg{Text: "Hel"})
	m4 := updated.(Model)
	updated, _ = m4.Update(tokenMsg{Text: "lo"})
	m5 := updated.(Model)

	if got := m5.streamBuf.String(); got != "Hello" {
		t.Fatalf("streamBuf = %q, want Hello", got)
	}
	if view := ansi.Strip(m5.View()); !strings.Contains(view, "Hello") {
		t.Fatalf("view does not show streaming partial:\n%s", view)
	}
}

func TestReplyErrorRendersFailuresPerTarget(t *testing.T) {
	stub := &stubGenerate{}
	m := newTestModel(t, stub)
	m.generating = true

	callErr := &infer.CallError{
		Kind:     infer.KindTimeout,
		Failures: []string{"ws://a:1: dial tcp: connection refused"},
	}
	updated, _ := m.Update(replyMsg{Err: callErr})
	m2 := updated.(Model)

	last := m2.messages[len(m2.messages)-1]
	if last.role != roleSystem {
		t.Fatalf("last message role = %v, want system", last.role)
	}
	if !strings.Contains(last.text, "timeout") || !strings.Contains(last.text, "ws://a:1") {
		t.Fatalf("error message = %q, want kind and target listed", last.text)
	}
}

func TestEscCancelsInFlightGeneration(t *testing.T) {
	blocking := func(ctx context.Context, req infer.Request) (*infer.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m := NewModel(Config{}, blocking, make(chan any, 16), context.Background())
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = updated.(Model)

	m.input.SetValue("slow")
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m2 := updated.(Model)

	replyCh := make(chan replyMsg, 1)
	go func() {
		if reply, ok := findReply(runBatch(t, cmd)); ok {
			replyCh <- reply
		}
	}()

	updated, _ = m2.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m3 := updated.(Model)
	if !m3.cancelled {
		t.Fatal("cancelled = false after esc, want true")
	}

	select {
	case reply := <-replyCh:
		updated, _ = m3.Update(reply)
		m4 := updated.(Model)
		last := m4.messages[len(m4.messages)-1]
		if last.role != roleSystem || last.text != "cancelled" {
			t.Fatalf("last message = %+v, want cancelled notice", last)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("generation did not unblock after esc")
	}
}

func TestHistoryRestoredAheadOfLiveMessages(t *testing.T) {
	stub := &stubGenerate{}
	m := newTestModel(t, stub)
	m.messages = []chatMessage{{role: roleUser, text: "live", at: time.Now()}}

	updated, _ := m.Update(historyMsg{Messages: []transcript.Message{
		{Role: transcript.RoleUser, Content: "old question", Timestamp: "2026-08-22T10:00:00Z"},
		{Role: transcript.RoleAssistant, Content: "old answer", Timestamp: "2026-08-22T10:00:05Z"},
	}})
	m2 := updated.(Model)

	if len(m2.messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(m2.messages))
	}
	if m2.messages[0].text != "old question" || m2.messages[1].text != "old answer" {
		t.Fatalf("history not restored in order: %+v", m2.messages)
	}
	if m2.messages[2].text != "live" {
		t.Fatalf("live message lost: %+v", m2.messages)
	}
}

func TestCtrlNResetsScreenAndSession(t *testing.T) {
	stub := &stubGenerate{}
	m := newTestModel(t, stub)
	m.sessionID = "sess-1"
	m.messages = []chatMessage{{role: roleUser, text: "hi"}}

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	m2 := updated.(Model)

	if m2.sessionID != "" {
		t.Fatalf("sessionID = %q, want empty", m2.sessionID)
	}
	if len(m2.messages) != 0 {
		t.Fatalf("messages = %d, want 0", len(m2.messages))
	}
}

func TestLayoutLeavesRoomForChrome(t *testing.T) {
	stub := &stubGenerate{}
	m := newTestModel(t, stub)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m2 := updated.(Model)

	if m2.vp.Width != 100 {
		t.Fatalf("viewport width = %d, want 100", m2.vp.Width)
	}
	wantHeight := 40 - 1 - 1 - (inputHeight + 2)
	if m2.vp.Height != wantHeight {
		t.Fatalf("viewport height = %d, want %d", m2.vp.Height, wantHeight)
	}
}
