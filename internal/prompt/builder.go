// Package prompt assembles the outgoing request payload: system prompt,
// an optional conversation-history window, optional memory snippets,
// and the media list.
package prompt

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agusx1211/llmws/internal/debug"
	"github.com/agusx1211/llmws/internal/memory"
	"github.com/agusx1211/llmws/internal/transcript"
	"github.com/agusx1211/llmws/pkg/wire"
)

const (
	historyHeading = "Conversation history:"
	memoryHeading  = "Relevant memories:"
	requestMarker  = "Current user request:"

	defaultMemorySnippets = 5
	defaultMemoryChars    = 2000
)

// BuildOpts configures one request build.
type BuildOpts struct {
	SystemPrompt string
	UserPrompt   string

	// History is the transcript to window. Empty disables the section.
	History        []transcript.Message
	HistoryTurns   int
	HistoryChars   int
	SilentSentinel string

	// Memory, when non-nil, is queried with the user prompt. Any lookup
	// failure omits the section.
	Memory      memory.Searcher
	MaxSnippets int
	CharBudget  int

	Media []MediaInput
}

// MediaInput is one caller-supplied image before wire encoding. Data is
// base64, optionally wrapped in a data: URI.
type MediaInput struct {
	Data string
	MIME string
}

// Built is the assembled request payload.
type Built struct {
	System string
	User   string
	Media  []wire.Media
}

// Build produces the final (system, user, media) triple. When neither
// history nor memories apply, the user prompt passes through unmodified.
func Build(ctx context.Context, opts BuildOpts) Built {
	historyBlock := renderHistory(opts.History, opts.HistoryTurns, opts.HistoryChars, opts.SilentSentinel)
	memoryBlock := renderMemories(ctx, opts.Memory, opts.UserPrompt, opts.MaxSnippets, opts.CharBudget)

	user := opts.UserPrompt
	if historyBlock != "" || memoryBlock != "" {
		var b strings.Builder
		if historyBlock != "" {
			b.WriteString(historyBlock)
			b.WriteString("\n\n")
		}
		if memoryBlock != "" {
			b.WriteString(memoryBlock)
			b.WriteString("\n\n")
		}
		b.WriteString(requestMarker)
		b.WriteString("\n")
		b.WriteString(opts.UserPrompt)
		user = b.String()
	}

	return Built{
		System: opts.SystemPrompt,
		User:   user,
		Media:  renderMedia(opts.Media),
	}
}

// renderHistory walks the transcript backward, keeping at most turns
// entries while the running character count stays under chars, then
// restores chronological order. If even the most recent entry is over
// budget it is truncated rather than dropped.
func renderHistory(msgs []transcript.Message, turns, chars int, sentinel string) string {
	if len(msgs) == 0 || turns <= 0 || chars <= 0 {
		return ""
	}

	filtered := msgs[:0:0]
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		if m.Role == transcript.RoleAssistant && sentinel != "" && strings.TrimSpace(m.Content) == sentinel {
			continue
		}
		filtered = append(filtered, m)
	}
	if len(filtered) == 0 {
		return ""
	}

	var kept []transcript.Message
	total := 0
	for i := len(filtered) - 1; i >= 0 && len(kept) < turns; i-- {
		m := filtered[i]
		if total+len(m.Content) > chars {
			if len(kept) == 0 {
				m.Content = clampText(m.Content, chars)
				kept = append(kept, m)
			}
			break
		}
		kept = append(kept, m)
		total += len(m.Content)
	}

	var b strings.Builder
	b.WriteString(historyHeading)
	for i := len(kept) - 1; i >= 0; i-- {
		b.WriteString("\n")
		b.WriteString(roleLabel(kept[i].Role))
		b.WriteString(": ")
		b.WriteString(kept[i].Content)
	}
	return b.String()
}

// renderMemories queries the searcher and formats snippets under a
// fixed header, clipping to the character budget. Best-effort: any
// failure drops the section.
func renderMemories(ctx context.Context, searcher memory.Searcher, query string, maxSnippets, budget int) string {
	if searcher == nil || strings.TrimSpace(query) == "" {
		return ""
	}
	if maxSnippets <= 0 {
		maxSnippets = defaultMemorySnippets
	}
	if budget <= 0 {
		budget = defaultMemoryChars
	}

	results, err := searcher.Search(ctx, query, maxSnippets)
	if err != nil {
		debug.Logf("prompt", "memory lookup failed: %v", err)
		return ""
	}

	var lines []string
	remaining := budget
	for _, r := range results {
		if len(lines) >= maxSnippets {
			break
		}
		s := strings.TrimSpace(r.Snippet)
		if s == "" {
			continue
		}
		if len(s) > remaining {
			if remaining > 3 {
				lines = append(lines, "- "+clampText(s, remaining))
			}
			break
		}
		lines = append(lines, "- "+s)
		remaining -= len(s)
	}
	if len(lines) == 0 {
		return ""
	}
	return memoryHeading + "\n" + strings.Join(lines, "\n")
}

var mimeExt = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// renderMedia converts attachments to wire form: bare base64 with any
// data: URI prefix stripped, and a name whose extension follows the
// MIME type (PNG when unrecognized).
func renderMedia(inputs []MediaInput) []wire.Media {
	var out []wire.Media
	for i, in := range inputs {
		data := strings.TrimSpace(in.Data)
		mime := strings.ToLower(strings.TrimSpace(in.MIME))
		if strings.HasPrefix(data, "data:") {
			rest := data[len("data:"):]
			if comma := strings.Index(rest, ","); comma >= 0 {
				meta := rest[:comma]
				data = rest[comma+1:]
				if semi := strings.Index(meta, ";"); semi >= 0 {
					meta = meta[:semi]
				}
				if meta != "" {
					mime = strings.ToLower(meta)
				}
			}
		}
		if data == "" {
			continue
		}
		ext, ok := mimeExt[mime]
		if !ok {
			ext = "png"
		}
		out = append(out, wire.Media{
			Type: "image",
			Data: data,
			Name: fmt.Sprintf("image-%d.%s", i+1, ext),
		})
	}
	return out
}

func roleLabel(role string) string {
	switch role {
	case transcript.RoleUser:
		return "User"
	case transcript.RoleAssistant:
		return "Assistant"
	default:
		if role == "" {
			return "Unknown"
		}
		return strings.ToUpper(role[:1]) + role[1:]
	}
}

// clampText cuts s to at most max bytes, ending with an ellipsis and
// never splitting a UTF-8 sequence.
func clampText(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
