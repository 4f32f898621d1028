package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agusx1211/llmws/internal/config"
	"github.com/agusx1211/llmws/pkg/wire"
)

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialize the llmws configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the loaded config and effective settings",
		RunE:  runConfigShow,
	}
	showCmd.Flags().StringP("model", "m", "", "Also print the resolved settings for this model")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config to ~/.llmws/config.json",
		RunE:  runConfigInit,
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(config.Path())
			return nil
		},
	}

	configCmd.AddCommand(showCmd, initCmd, pathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if _, statErr := os.Stat(config.Path()); statErr != nil {
		fmt.Printf("  %sNo config file at %s, showing built-in defaults.%s\n", colorDim, config.Path(), colorReset)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))

	if !cmd.Flags().Changed("model") {
		return nil
	}
	modelName, _ := cmd.Flags().GetString("model")
	model := cfg.FindModel(modelName)
	if modelName != "" && model == nil {
		fmt.Printf("\n  %smodel %q has no config block, settings below are the defaults%s\n", colorYellow, modelName, colorReset)
	}
	st := config.ResolveSettings(model, cfg.Defaults)

	printHeader("Resolved settings")
	printField("Connect timeout", st.ConnectTimeout.String())
	printField("Read timeout", st.ReadTimeout.String())
	printField("History", fmt.Sprintf("%v (%d turns, %d chars)", st.IncludeHistory, st.HistoryTurns, st.HistoryChars))
	printField("Silent marker", st.SilentSentinel)
	if st.Generation != nil {
		gen, _ := json.Marshal(st.Generation)
		printField("Generation", string(gen))
	}
	fmt.Println()
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(config.Path()); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", config.Path())
	}

	maxTokens := 1024
	starter := &config.Config{
		Defaults: config.Defaults{
			Servers: []config.ServerEntry{{URL: config.DefaultEndpoint}},
		},
		Models: []config.ModelConfig{{
			Name:         "local",
			SystemPrompt: "You are a concise, accurate assistant.",
			Tuning: config.Tuning{
				Generation: &wire.GenerationConfig{MaxNewTokens: &maxTokens},
			},
		}},
	}
	if err := config.Save(starter); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("\n  %sWrote %s%s\n", styleBoldGreen, config.Path(), colorReset)
	printField("Default server", config.DefaultEndpoint)
	printField("Sample model", "local")
	fmt.Printf("\n  Edit the file to add servers, then run %sllmws doctor%s.\n\n", styleBoldWhite, colorReset)
	return nil
}
