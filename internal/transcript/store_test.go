package transcript

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading transcript: %v", err)
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		t.Fatalf("transcript does not end with a newline")
	}
	raw := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	return raw
}

func TestAppendTurnNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.jsonl")
	if err := AppendTurn(path, "sess-1", "/work", "hello", "hi there"); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 3 {
		t.Fatalf("line count = %d, want 3", len(lines))
	}

	var header Header
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		t.Fatalf("decoding header: %v", err)
	}
	if header.Type != "session" || header.Version != SchemaVersion || header.SessionID != "sess-1" || header.CWD != "/work" {
		t.Fatalf("header = %+v", header)
	}

	var user, asst Message
	if err := json.Unmarshal([]byte(lines[1]), &user); err != nil {
		t.Fatalf("decoding user message: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[2]), &asst); err != nil {
		t.Fatalf("decoding assistant message: %v", err)
	}
	if user.ParentID != nil {
		t.Fatalf("first message parentId = %v, want null", *user.ParentID)
	}
	if user.Role != RoleUser || user.Content != "hello" {
		t.Fatalf("user message = %+v", user)
	}
	if asst.ParentID == nil || *asst.ParentID != user.ID {
		t.Fatalf("assistant parentId = %v, want %q", asst.ParentID, user.ID)
	}
	if asst.Role != RoleAssistant || asst.Content != "hi there" {
		t.Fatalf("assistant message = %+v", asst)
	}
}

func TestAppendTurnChainsWithoutDuplicatingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.jsonl")
	seed := `{"type":"session","version":1,"session_id":"sess-1","timestamp":"2026-01-01T00:00:00Z","cwd":"/work"}
{"type":"message","id":"m1","parentId":null,"timestamp":"2026-01-01T00:00:01Z","role":"user","content":"first"}
{"type":"message","id":"m2","parentId":"m1","timestamp":"2026-01-01T00:00:02Z","role":"assistant","content":"second"}
`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("seeding transcript: %v", err)
	}

	if err := AppendTurn(path, "sess-1", "/work", "third", "fourth"); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 5 {
		t.Fatalf("line count = %d, want 5", len(lines))
	}
	headerCount := 0
	for _, line := range lines {
		var probe lineProbe
		if err := json.Unmarshal([]byte(line), &probe); err != nil {
			t.Fatalf("undecodable line %q: %v", line, err)
		}
		if probe.Type == "session" {
			headerCount++
		}
	}
	if headerCount != 1 {
		t.Fatalf("header count = %d, want 1", headerCount)
	}

	var user Message
	if err := json.Unmarshal([]byte(lines[3]), &user); err != nil {
		t.Fatalf("decoding new user message: %v", err)
	}
	if user.ParentID == nil || *user.ParentID != "m2" {
		t.Fatalf("new user parentId = %v, want %q", user.ParentID, "m2")
	}
}

func TestAppendTurnRepairsMissingTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.jsonl")
	seed := `{"type":"message","id":"m1","parentId":null,"timestamp":"2026-01-01T00:00:00Z","role":"user","content":"first"}`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("seeding transcript: %v", err)
	}

	if err := AppendTurn(path, "sess-1", "/work", "next", "reply"); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}

	for i, line := range readLines(t, path) {
		var probe lineProbe
		if err := json.Unmarshal([]byte(line), &probe); err != nil {
			t.Fatalf("line %d undecodable after append: %v", i, err)
		}
	}
}

func TestAppendTurnRejectsEmptyContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.jsonl")
	if err := AppendTurn(path, "sess-1", "/work", "", "reply"); err == nil {
		t.Fatal("AppendTurn() with empty user content expected an error")
	}
	if err := AppendTurn(path, "sess-1", "/work", "ask", ""); err == nil {
		t.Fatal("AppendTurn() with empty assistant content expected an error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("transcript file should not exist after rejected appends, stat err = %v", err)
	}
}

func TestReadMessagesSkipsUndecodableLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.jsonl")
	seed := `{"type":"session","version":1,"session_id":"s","timestamp":"t","cwd":"/"}
garbage line
{"type":"message","id":"m1","parentId":null,"timestamp":"t","role":"user","content":"hello"}
`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("seeding transcript: %v", err)
	}

	msgs, err := ReadMessages(path)
	if err != nil {
		t.Fatalf("ReadMessages() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("ReadMessages() = %+v", msgs)
	}
}

func TestReadMessagesMissingFile(t *testing.T) {
	msgs, err := ReadMessages(filepath.Join(t.TempDir(), "absent.jsonl"))
	if err != nil {
		t.Fatalf("ReadMessages() error = %v", err)
	}
	if msgs != nil {
		t.Fatalf("ReadMessages() = %+v, want nil", msgs)
	}
}

func TestReadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.jsonl")
	if err := AppendTurn(path, "sess-9", "/work", "q", "a"); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if h == nil || h.SessionID != "sess-9" {
		t.Fatalf("ReadHeader() = %+v", h)
	}

	h, err = ReadHeader(filepath.Join(t.TempDir(), "absent.jsonl"))
	if err != nil || h != nil {
		t.Fatalf("ReadHeader(missing) = %+v, %v", h, err)
	}
}

func TestLockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.jsonl.lock")
	held, err := lockPath(path, time.Second)
	if err != nil {
		t.Fatalf("lockPath() error = %v", err)
	}
	defer unlock(held)

	if _, err := lockPath(path, 150*time.Millisecond); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("second lockPath() error = %v, want ErrLockTimeout", err)
	}
}

func TestConcurrentAppendsSerialized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.jsonl")
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = AppendTurn(path, "sess-1", "/work", "question", "answer")
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("AppendTurn() goroutine %d error = %v", i, err)
		}
	}

	lines := readLines(t, path)
	if len(lines) != 5 {
		t.Fatalf("line count = %d, want 5 (1 header + 4 messages)", len(lines))
	}
	prevID := ""
	for i, line := range lines {
		var m Message
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("line %d undecodable: %v", i, err)
		}
		if m.Type != "message" {
			continue
		}
		if prevID == "" {
			if m.ParentID != nil {
				t.Fatalf("first message parentId = %v, want null", *m.ParentID)
			}
		} else if m.ParentID == nil || *m.ParentID != prevID {
			t.Fatalf("message %d parentId = %v, want %q", i, m.ParentID, prevID)
		}
		prevID = m.ID
	}
}
