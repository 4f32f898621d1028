package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agusx1211/llmws/internal/config"
	"github.com/agusx1211/llmws/internal/transcript"
)

func init() {
	transcriptCmd := &cobra.Command{
		Use:     "transcript",
		Aliases: []string{"transcripts"},
		Short:   "Inspect saved conversation transcripts",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List transcripts under ~/.llmws/transcripts",
		RunE:  runTranscriptList,
	}

	showCmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Print a transcript's turns",
		Args:  cobra.ExactArgs(1),
		RunE:  runTranscriptShow,
	}
	showCmd.Flags().Int("last", 0, "Only print the last N messages")

	pathCmd := &cobra.Command{
		Use:   "path [name]",
		Short: "Print the file path behind a conversation name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(resolveTranscript(args[0]))
			return nil
		},
	}

	transcriptCmd.AddCommand(listCmd, showCmd, pathCmd)
	rootCmd.AddCommand(transcriptCmd)
}

func runTranscriptList(cmd *cobra.Command, args []string) error {
	dir := config.TranscriptsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}

	type row struct {
		name     string
		messages int
		modified string
	}
	var rows []row
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".jsonl")
		msgs, _ := transcript.ReadMessages(resolveTranscript(name))
		modified := ""
		if info, infoErr := e.Info(); infoErr == nil {
			modified = info.ModTime().Format("2006-01-02 15:04")
		}
		rows = append(rows, row{name: name, messages: len(msgs), modified: modified})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	printHeader("Transcripts")
	if len(rows) == 0 {
		fmt.Println(colorDim + "  (none yet, start one with llmws ask -c <name>)" + colorReset)
		fmt.Println()
		return nil
	}
	for _, r := range rows {
		fmt.Printf("  %s%-24s%s %3d messages  %s%s%s\n",
			colorBold, r.name, colorReset, r.messages, colorDim, r.modified, colorReset)
	}
	fmt.Println()
	return nil
}

func runTranscriptShow(cmd *cobra.Command, args []string) error {
	path := resolveTranscript(args[0])
	last, _ := cmd.Flags().GetInt("last")

	header, err := transcript.ReadHeader(path)
	if err != nil {
		return err
	}
	msgs, err := transcript.ReadMessages(path)
	if err != nil {
		return err
	}
	if header == nil && len(msgs) == 0 {
		return fmt.Errorf("transcript %q is empty or missing", args[0])
	}

	if header != nil {
		printHeader("Conversation " + args[0])
		printField("Session", header.SessionID)
		printField("Started", header.Timestamp)
		if header.CWD != "" {
			printField("Directory", header.CWD)
		}
	}

	if last > 0 && len(msgs) > last {
		fmt.Printf("\n  %s(%d earlier messages omitted)%s\n", colorDim, len(msgs)-last, colorReset)
		msgs = msgs[len(msgs)-last:]
	}

	for _, m := range msgs {
		label, color := "User", styleBoldBlue
		if m.Role == transcript.RoleAssistant {
			label, color = "Assistant", styleBoldGreen
		}
		fmt.Printf("\n%s%s%s %s%s%s\n", color, label, colorReset, colorDim, m.Timestamp, colorReset)
		for _, line := range strings.Split(m.Content, "\n") {
			fmt.Println("  " + line)
		}
	}
	fmt.Println()
	return nil
}
