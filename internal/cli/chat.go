package cli

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/agusx1211/llmws/internal/chatui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat TUI",
	Long: `Open a full-screen chat with streaming replies. With --conversation the
chat picks up where the named transcript left off and keeps appending
to it.

Examples:
  llmws chat
  llmws chat -m coder -c refactor`,
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		conversation, _ := cmd.Flags().GetString("conversation")
		resume, _ := cmd.Flags().GetString("resume")
		return startChat(chatOpts{model: model, conversation: conversation, resume: resume})
	},
}

func init() {
	chatCmd.Flags().StringP("model", "m", "", "Configured model block to use")
	chatCmd.Flags().StringP("conversation", "c", "", "Conversation name or transcript path for history and persistence")
	chatCmd.Flags().String("resume", "", "Server-side session ID to resume")
	rootCmd.AddCommand(chatCmd)
}

// chatOpts carries the chat launch parameters shared with the bare
// `llmws` invocation.
type chatOpts struct {
	model        string
	conversation string
	resume       string
}

func startChat(opts chatOpts) error {
	if !isatty.IsTerminal(os.Stdin.Fd()) || !isatty.IsTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("chat needs an interactive terminal (use 'llmws ask' in scripts)")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return chatui.Run(chatui.Config{
		Cfg:          cfg,
		Model:        opts.model,
		Conversation: opts.conversation,
		Transcript:   resolveTranscript(opts.conversation),
		Resume:       opts.resume,
	})
}
