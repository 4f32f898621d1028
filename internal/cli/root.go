package cli

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/agusx1211/llmws/internal/buildinfo"
	"github.com/agusx1211/llmws/internal/debug"
)

const (
	// ANSI color codes
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorWhite  = "\033[37m"

	// Combined styles
	styleBoldCyan   = "\033[1;36m"
	styleBoldGreen  = "\033[1;32m"
	styleBoldYellow = "\033[1;33m"
	styleBoldRed    = "\033[1;31m"
	styleBoldBlue   = "\033[1;34m"
	styleBoldWhite  = "\033[1;37m"
)

var rootCmd = &cobra.Command{
	Use:   "llmws",
	Short: "WebSocket client for local LLM servers",
	Long: colorBold + `
  _  _
 | || | _ __  ___  __      __ ___
 | || || '_ ` + "`" + ` _ \ \ \ /\ / // __|
 | || || | | | | | \ V  V / \__ \
 |_||_||_| |_| |_|  \_/\_/  |___/` + colorReset + `

  ` + styleBoldCyan + `WebSocket client for local LLM servers` + colorReset + ` v` + buildinfo.Current().Version + `

  llmws talks to model servers on your machine or LAN: it resolves
  endpoints from config, environment, and mDNS discovery, streams
  tokens as they generate, keeps conversation transcripts, and fails
  over between servers when one is down.

  Run ` + styleBoldWhite + `llmws ask "..."` + colorReset + ` for a one-shot prompt, or ` + styleBoldWhite + `llmws` + colorReset + ` to chat.

` + colorBold + `Getting Started:` + colorReset + `
  llmws config init               Write a starter config to ~/.llmws
  llmws ask "explain this error"  Send a one-shot prompt
  llmws chat -c work              Chat with a persistent transcript
  llmws targets --discover        Show resolved endpoints for a model
  llmws doctor                    Probe every configured server

` + colorBold + `Servers:` + colorReset + `
  Set LLMWS_SERVERS=ws://host:port,... or add servers to the config.
  Without configuration, llmws tries ws://127.0.0.1:8765.

` + colorBold + `More Info:` + colorReset + `
  https://github.com/agusx1211/llmws`,

	Version: buildinfo.Current().String(),

	RunE: func(cmd *cobra.Command, args []string) error {
		// Bare invocation in a terminal opens the chat TUI; anything
		// scripted gets help.
		if isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd()) {
			return startChat(chatOpts{})
		}
		return cmd.Help()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.PersistentFlags().Bool("debug", false, "Enable verbose debug logging to ~/.llmws/debug/")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		debugFlag, _ := cmd.Flags().GetBool("debug")
		if !debugFlag && !debug.ShouldEnableFromEnv() {
			return nil
		}
		logPath, err := debug.Init()
		if err != nil {
			return fmt.Errorf("initializing debug logger: %w", err)
		}
		fmt.Fprintf(os.Stderr, "%s[debug]%s logging to %s\n", colorDim, colorReset, logPath)
		bi := buildinfo.Current()
		debug.LogKV("cli", "llmws starting",
			"version", bi.Version,
			"commit", bi.CommitHash,
			"build_date", bi.BuildDate,
			"pid", os.Getpid(),
			"command", cmd.Name(),
			"args", args,
		)
		return nil
	}
}

// Execute runs the root command.
func Execute() {
	defer debug.Close()
	if err := rootCmd.Execute(); err != nil {
		debug.Logf("cli", "exit with error: %v", err)
		fmt.Fprintf(os.Stderr, "%sError: %s%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
	debug.Log("cli", "exit success")
}
