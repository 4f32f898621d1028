// Package chatui is the full-screen chat front end. It renders a scrolling
// conversation, streams tokens as the model produces them, and persists
// turns through the same call path the ask command uses.
package chatui

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/agusx1211/llmws/internal/config"
	"github.com/agusx1211/llmws/internal/eventq"
	"github.com/agusx1211/llmws/internal/infer"
	"github.com/agusx1211/llmws/internal/target"
)

// Config holds everything needed to launch the chat TUI.
type Config struct {
	Cfg          *config.Config
	Model        string
	Conversation string // display name for the header
	Transcript   string // resolved transcript path, "" disables persistence
	Resume       string // server session to resume on the first call
}

// Run launches the chat TUI and blocks until the user quits.
func Run(cfg Config) error {
	eventCh := make(chan any, 256)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := infer.New(cfg.Cfg,
		infer.WithDiscoverer(target.Discover),
		infer.WithStream(func(token string) {
			// Display-only delivery; a stalled UI must not stall generation.
			eventq.OfferContext(ctx, eventCh, any(tokenMsg{Text: token}))
		}),
	)

	model := NewModel(cfg, client.Generate, eventCh, ctx)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
		p.Quit()
	}()

	_, err := p.Run()
	cancel() // stop any in-flight call if the TUI exits first
	return err
}
