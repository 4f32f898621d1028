package chatui

import (
	"github.com/agusx1211/llmws/internal/infer"
	"github.com/agusx1211/llmws/internal/transcript"
)

// tokenMsg carries one streamed text delta for the in-flight generation.
type tokenMsg struct {
	Text string
}

// replyMsg signals that a generation finished, successfully or not.
type replyMsg struct {
	Res *infer.Result
	Err error
}

// historyMsg delivers the persisted conversation loaded at startup.
type historyMsg struct {
	Header   *transcript.Header
	Messages []transcript.Message
	Err      error
}

// tickMsg fires every second to refresh the elapsed-time display.
type tickMsg struct{}
