// Package transcript persists conversations as append-only JSONL files:
// one optional session header line followed by a linear chain of message
// lines. Concurrent writers are serialized with a sidecar file lock.
package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agusx1211/llmws/internal/hexid"
)

// SchemaVersion is stamped into new session headers.
const SchemaVersion = 1

const (
	typeSession = "session"
	typeMessage = "message"
)

// Roles recorded in message entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Header is the per-file session line, written at most once.
type Header struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
	CWD       string `json:"cwd"`
}

// Message is one conversation entry. ParentID points at the previous
// message's ID and is null only for the first message in the file.
type Message struct {
	Type      string  `json:"type"`
	ID        string  `json:"id"`
	ParentID  *string `json:"parentId"`
	Timestamp string  `json:"timestamp"`
	Role      string  `json:"role"`
	Content   string  `json:"content"`
}

type lineProbe struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// AppendTurn records one user/assistant exchange under the file lock:
// an optional session header (only when the file does not already carry
// one), then a user entry chained to the file's last message, then the
// assistant entry chained to the user entry.
func AppendTurn(path, sessionID, workdir, userText, assistantText string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("transcript: empty path")
	}
	if userText == "" {
		return fmt.Errorf("transcript: empty user content")
	}
	if assistantText == "" {
		return fmt.Errorf("transcript: empty assistant content")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating transcript dir: %w", err)
	}
	lockFile, err := lockPath(path+".lock", lockWait)
	if err != nil {
		return fmt.Errorf("locking transcript: %w", err)
	}
	defer unlock(lockFile)

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading transcript: %w", err)
	}
	hasHeader, lastID := scanState(existing)

	var buf bytes.Buffer
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if !hasHeader {
		header := Header{
			Type:      typeSession,
			Version:   SchemaVersion,
			SessionID: sessionID,
			Timestamp: now,
			CWD:       workdir,
		}
		if err := encodeLine(&buf, header); err != nil {
			return err
		}
	}
	var parent *string
	if lastID != "" {
		parent = &lastID
	}
	userMsg := Message{
		Type:      typeMessage,
		ID:        hexid.New(),
		ParentID:  parent,
		Timestamp: now,
		Role:      RoleUser,
		Content:   userText,
	}
	asstMsg := Message{
		Type:      typeMessage,
		ID:        hexid.New(),
		ParentID:  &userMsg.ID,
		Timestamp: now,
		Role:      RoleAssistant,
		Content:   assistantText,
	}
	if err := encodeLine(&buf, userMsg); err != nil {
		return err
	}
	if err := encodeLine(&buf, asstMsg); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening transcript: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("appending transcript: %w", err)
	}
	return f.Close()
}

// ReadMessages returns the message entries of a transcript in file
// order. A missing file yields no messages; undecodable lines are
// skipped.
func ReadMessages(path string) ([]Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	var msgs []Message
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var m Message
		if err := json.Unmarshal(line, &m); err != nil {
			continue
		}
		if m.Type == typeMessage && m.Role != "" {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

// ReadHeader returns the session header, or nil when the file has none.
func ReadHeader(path string) (*Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var h Header
		if err := json.Unmarshal(line, &h); err != nil {
			continue
		}
		if h.Type == typeSession {
			return &h, nil
		}
	}
	return nil, nil
}

func scanState(data []byte) (hasHeader bool, lastID string) {
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var probe lineProbe
		if err := json.Unmarshal(line, &probe); err != nil {
			continue
		}
		switch probe.Type {
		case typeSession:
			hasHeader = true
		case typeMessage:
			if probe.ID != "" {
				lastID = probe.ID
			}
		}
	}
	return hasHeader, lastID
}

func encodeLine(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding transcript entry: %w", err)
	}
	buf.Write(data)
	buf.WriteByte('\n')
	return nil
}
