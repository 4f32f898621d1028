package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agusx1211/llmws/internal/config"
	"github.com/agusx1211/llmws/internal/infer"
	"github.com/agusx1211/llmws/internal/session"
	"github.com/agusx1211/llmws/internal/target"
	"github.com/agusx1211/llmws/pkg/wire"
)

// welcomeProbeTimeout bounds how long doctor waits for a server's welcome.
const welcomeProbeTimeout = 5 * time.Second

func init() {
	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Probe every resolved server and report reachability",
		Long: `Connect to each endpoint a call would try, complete the handshake, and
report latency plus whatever the server announces about itself. Failures
are classified (timeout, auth, rate_limit, billing) the same way the
failover path classifies them.

Examples:
  llmws doctor
  llmws doctor -m coder --discover`,
		RunE: runDoctor,
	}
	doctorCmd.Flags().StringP("model", "m", "", "Configured model block to resolve for")
	doctorCmd.Flags().Bool("discover", false, "Browse the LAN for servers before probing")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	modelName, _ := cmd.Flags().GetString("model")
	discover, _ := cmd.Flags().GetBool("discover")

	model := cfg.FindModel(modelName)
	settings := config.ResolveSettings(model, cfg.Defaults)

	printHeader("Environment")
	for _, key := range []string{config.EnvServers, config.EnvServer, config.EnvDiscover} {
		if v := os.Getenv(key); v != "" {
			printField(key, v)
		} else {
			printFieldColored(key, "(unset)", colorDim)
		}
	}

	printHeader("Configuration")
	if _, statErr := os.Stat(config.Path()); statErr == nil {
		printField("Config", config.Path())
	} else {
		printFieldColored("Config", config.Path()+" (missing, using defaults)", colorYellow)
	}
	printField("Transcripts", config.TranscriptsDir())
	printField("Models", fmt.Sprintf("%d configured", len(cfg.Models)))
	if cfg.Memory.Kind != "" {
		printField("Memory", fmt.Sprintf("%s %s", cfg.Memory.Kind, cfg.Memory.URL))
	}

	var extra []config.ServerEntry
	if discover {
		fmt.Printf("\n  %sBrowsing for %s services...%s\n", colorDim, target.ServiceType, colorReset)
		extra = target.Discover(cmd.Context(), target.DefaultDiscoverTimeout)
	}
	targets := target.Resolve(model, cfg.Defaults, config.OSEnv{}, extra...)

	printHeader("Servers")
	healthy := 0
	for _, t := range targets {
		report, probeErr := probeTarget(cmd.Context(), t.URL, settings.ConnectTimeout)
		if probeErr != nil {
			kind := infer.ClassifyText(probeErr.Error())
			fmt.Printf("  %s[down]%s %-36s %s %s\n",
				styleBoldRed, colorReset, t.URL, kindBadge(kind), truncate(firstLine(probeErr.Error()), 60))
			continue
		}
		healthy++
		details := []string{report.latency.Round(time.Millisecond).String()}
		if report.model != "" {
			details = append(details, "model="+report.model)
		}
		if len(report.capabilities) > 0 {
			details = append(details, "caps="+strings.Join(report.capabilities, ","))
		}
		fmt.Printf("  %s[up]%s   %-36s %s\n", styleBoldGreen, colorReset, t.URL, strings.Join(details, "  "))
	}

	fmt.Println()
	if healthy == 0 {
		fmt.Printf("  %sNo server answered.%s Start one, set %s, or run %sllmws config init%s.\n\n",
			styleBoldRed, colorReset, config.EnvServers, styleBoldWhite, colorReset)
		return fmt.Errorf("no reachable server")
	}
	fmt.Printf("  %s%d of %d server(s) reachable.%s\n\n", styleBoldGreen, healthy, len(targets), colorReset)
	return nil
}

// probeReport carries what one server announced during its handshake.
type probeReport struct {
	latency      time.Duration
	model        string
	sessionID    string
	capabilities []string
}

// probeTarget completes a connect-and-welcome round trip against one server.
func probeTarget(ctx context.Context, url string, connectTimeout time.Duration) (*probeReport, error) {
	start := time.Now()
	sess, err := session.Dial(ctx, url, session.Options{ConnectTimeout: connectTimeout})
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	if err := sess.Send(ctx, wire.Handshake{}); err != nil {
		return nil, err
	}
	for {
		frame, err := sess.Next(ctx, welcomeProbeTimeout)
		if err != nil {
			return nil, fmt.Errorf("waiting for welcome: %w", err)
		}
		if frame.Type() != wire.TypeWelcome {
			continue
		}
		return &probeReport{
			latency:      time.Since(start),
			model:        frame.Str("model"),
			sessionID:    frame.Str("session_id"),
			capabilities: frame.Strs("capabilities"),
		}, nil
	}
}
