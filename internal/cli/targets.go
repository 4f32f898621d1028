package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agusx1211/llmws/internal/config"
	"github.com/agusx1211/llmws/internal/target"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Show the resolved server list for a model",
	Long: `Show the ordered endpoint list a call would try, after layering the
model block, deployment defaults, LLMWS_SERVERS / LLMWS_SERVER, and the
built-in fallback. With --discover, an mDNS browse runs first and any
servers found on the LAN are merged in.

Examples:
  llmws targets
  llmws targets -m coder
  llmws targets --discover`,
	RunE: runTargets,
}

func init() {
	targetsCmd.Flags().StringP("model", "m", "", "Configured model block to resolve for")
	targetsCmd.Flags().Bool("discover", false, "Browse the LAN for servers before resolving")
	rootCmd.AddCommand(targetsCmd)
}

func runTargets(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	modelName, _ := cmd.Flags().GetString("model")
	discover, _ := cmd.Flags().GetBool("discover")

	model := cfg.FindModel(modelName)
	if modelName != "" && model == nil {
		fmt.Printf("  %smodel %q has no config block, resolving from defaults%s\n", colorYellow, modelName, colorReset)
	}

	var extra []config.ServerEntry
	if discover {
		fmt.Printf("  %sBrowsing for %s services...%s\n", colorDim, target.ServiceType, colorReset)
		extra = target.Discover(cmd.Context(), target.DefaultDiscoverTimeout)
	}

	base := target.Resolve(model, cfg.Defaults, config.OSEnv{})
	resolved := target.Resolve(model, cfg.Defaults, config.OSEnv{}, extra...)

	configured := make(map[string]bool, len(base))
	for _, t := range base {
		configured[t.URL] = true
	}

	title := "Targets"
	if modelName != "" {
		title = fmt.Sprintf("Targets for %q", modelName)
	}
	printHeader(title)

	for i, t := range resolved {
		var notes []string
		if len(t.Capabilities) > 0 {
			notes = append(notes, "["+strings.Join(t.Capabilities, ",")+"]")
		}
		if !configured[t.URL] {
			notes = append(notes, colorGreen+"(discovered)"+colorReset)
		}
		if t.URL == config.DefaultEndpoint && !hasConfiguredDefault(cfg, model) {
			notes = append(notes, colorDim+"(built-in fallback)"+colorReset)
		}
		fmt.Printf("  %s%2d.%s %-36s %s\n", colorBold, i+1, colorReset, t.URL, strings.Join(notes, " "))
	}
	fmt.Println()
	return nil
}

// hasConfiguredDefault reports whether the built-in endpoint also appears in
// explicit configuration, in which case the fallback note would mislead.
func hasConfiguredDefault(cfg *config.Config, model *config.ModelConfig) bool {
	check := func(entries []config.ServerEntry, single string) bool {
		for _, e := range entries {
			if u, ok := target.NormalizeURL(e.URL); ok && u == config.DefaultEndpoint {
				return true
			}
		}
		u, ok := target.NormalizeURL(single)
		return ok && u == config.DefaultEndpoint
	}
	if model != nil && check(model.Servers, model.Server) {
		return true
	}
	return check(cfg.Defaults.Servers, cfg.Defaults.Server)
}
