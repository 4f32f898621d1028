package cli

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/agusx1211/llmws/internal/debug"
	"github.com/agusx1211/llmws/internal/infer"
	"github.com/agusx1211/llmws/internal/prompt"
	"github.com/agusx1211/llmws/pkg/wire"
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send one prompt and print the reply",
	Long: `Send a single prompt to the first reachable server and print the reply.
Tokens stream to the terminal as the model generates them; piped output
gets the final text only, so 'llmws ask ... | pbcopy' stays clean.

The prompt can be provided as:
  - A positional argument: llmws ask "Fix the failing tests"
  - Via --prompt flag: llmws ask --prompt "Fix the failing tests"
  - Via stdin pipe: git diff | llmws ask "Review this change"

With --conversation, the call reads recent turns from the named
transcript into the prompt and appends the new exchange afterwards.

Examples:
  llmws ask "What does EADDRINUSE mean?"
  llmws ask -m coder -c refactor "Continue where we left off"
  llmws ask --image shot.png "What is wrong in this screenshot?"
  cat main.go | llmws ask "Find the bug" --max-tokens 512`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringP("model", "m", "", "Configured model block to use")
	askCmd.Flags().String("prompt", "", "Prompt text (alternative to positional arg)")
	askCmd.Flags().String("system", "", "System prompt override for this call")
	askCmd.Flags().StringP("conversation", "c", "", "Conversation name or transcript path for history and persistence")
	askCmd.Flags().String("resume", "", "Server-side session ID to resume")
	askCmd.Flags().StringArray("image", nil, "Attach an image file (repeatable)")
	askCmd.Flags().Int("max-tokens", 0, "Cap on newly generated tokens for this call")
	askCmd.Flags().Float64("temperature", 0, "Sampling temperature for this call")
	askCmd.Flags().Bool("json", false, "Print the full result as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	debug.Log("cli.ask", "runAsk() called")

	userPrompt, err := resolveAskPrompt(cmd, args)
	if err != nil {
		return err
	}
	if userPrompt == "" {
		return fmt.Errorf("no prompt provided (positional argument, --prompt, or stdin)")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	model, _ := cmd.Flags().GetString("model")
	system, _ := cmd.Flags().GetString("system")
	conversation, _ := cmd.Flags().GetString("conversation")
	resume, _ := cmd.Flags().GetString("resume")
	images, _ := cmd.Flags().GetStringArray("image")
	jsonOut, _ := cmd.Flags().GetBool("json")

	media, err := loadImages(images)
	if err != nil {
		return err
	}

	req := infer.Request{
		Model:      model,
		Prompt:     userPrompt,
		System:     system,
		Media:      media,
		Transcript: resolveTranscript(conversation),
		Resume:     resume,
		Generation: generationFlags(cmd),
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintf(os.Stderr, "\n  %sReceived interrupt, cancelling...%s\n", styleBoldYellow, colorReset)
		cancel()
	}()

	// Stream tokens live only when a human is watching and the final text
	// is not going through JSON.
	streaming := !jsonOut && isatty.IsTerminal(os.Stdout.Fd())
	opts := []infer.Option{}
	if streaming {
		opts = append(opts, infer.WithStream(func(token string) {
			fmt.Print(token)
		}))
	}

	client := infer.New(cfg, append(opts, clientOptions()...)...)
	res, err := client.Generate(ctx, req)
	if err != nil {
		return err
	}

	switch {
	case jsonOut:
		out, merr := json.MarshalIndent(askResult{
			Text:      res.Text,
			SessionID: res.SessionID,
			Target:    res.Target,
			TokensIn:  res.Usage.Input,
			TokensOut: res.Usage.Output,
		}, "", "  ")
		if merr != nil {
			return merr
		}
		fmt.Println(string(out))
	case streaming:
		// Tokens are already on screen; a partial failover attempt may
		// have streamed extra text, so make sure the winning reply ends
		// the output.
		if !strings.HasSuffix(res.Text, "\n") {
			fmt.Println()
		}
		fmt.Printf("%s  %s%s\n", colorDim, askSummary(res), colorReset)
	default:
		fmt.Println(res.Text)
	}
	return nil
}

// askResult is the --json output shape.
type askResult struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
	Target    string `json:"target,omitempty"`
	TokensIn  int    `json:"tokens_in,omitempty"`
	TokensOut int    `json:"tokens_out,omitempty"`
}

// askSummary renders the dim footer line printed after a streamed reply.
func askSummary(res *infer.Result) string {
	parts := []string{res.Target}
	if res.SessionID != "" {
		parts = append(parts, "session "+res.SessionID)
	}
	if res.Usage.Total > 0 {
		parts = append(parts, fmt.Sprintf("%d tokens", res.Usage.Total))
	}
	return strings.Join(parts, " | ")
}

// resolveAskPrompt extracts the prompt from positional args, --prompt flag, or stdin.
func resolveAskPrompt(cmd *cobra.Command, args []string) (string, error) {
	promptFlag, _ := cmd.Flags().GetString("prompt")
	promptFlag = strings.TrimSpace(promptFlag)

	// Positional argument takes precedence.
	if len(args) > 0 {
		joined := strings.TrimSpace(strings.Join(args, " "))
		if joined != "" {
			return joined, nil
		}
	}

	// --prompt flag.
	if promptFlag != "" {
		return promptFlag, nil
	}

	// Try stdin (only if not a terminal).
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading prompt from stdin: %w", err)
		}
		if s := strings.TrimSpace(string(data)); s != "" {
			return s, nil
		}
	}

	return "", nil
}

// generationFlags builds per-call generation overrides from changed flags.
func generationFlags(cmd *cobra.Command) *wire.GenerationConfig {
	var gen *wire.GenerationConfig
	ensure := func() *wire.GenerationConfig {
		if gen == nil {
			gen = &wire.GenerationConfig{}
		}
		return gen
	}
	if cmd.Flags().Changed("max-tokens") {
		v, _ := cmd.Flags().GetInt("max-tokens")
		ensure().MaxNewTokens = &v
	}
	if cmd.Flags().Changed("temperature") {
		v, _ := cmd.Flags().GetFloat64("temperature")
		ensure().Temperature = &v
	}
	return gen
}

// mimeByExt maps attachment file extensions to their MIME type.
var mimeByExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// loadImages reads attachment files into base64 media inputs.
func loadImages(paths []string) ([]prompt.MediaInput, error) {
	var media []prompt.MediaInput
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading image %s: %w", p, err)
		}
		mime, ok := mimeByExt[strings.ToLower(filepath.Ext(p))]
		if !ok {
			mime = "image/png"
		}
		media = append(media, prompt.MediaInput{
			Data: base64.StdEncoding.EncodeToString(data),
			MIME: mime,
		})
	}
	return media, nil
}
