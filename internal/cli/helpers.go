package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/agusx1211/llmws/internal/config"
	"github.com/agusx1211/llmws/internal/infer"
	"github.com/agusx1211/llmws/internal/target"
)

// loadConfig reads ~/.llmws/config.json. A missing file yields an empty
// config, so every command works out of the box.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// clientOptions returns the options every CLI-built client carries.
func clientOptions() []infer.Option {
	return []infer.Option{infer.WithDiscoverer(target.Discover)}
}

// newClient builds an inference client with LAN discovery wired in.
func newClient(cfg *config.Config) *infer.Client {
	return infer.New(cfg, clientOptions()...)
}

// resolveTranscript maps a conversation name to its transcript path. Values
// that already look like paths (a separator or a .jsonl suffix) pass through
// untouched so scripts can point at arbitrary files.
func resolveTranscript(conversation string) string {
	c := strings.TrimSpace(conversation)
	if c == "" {
		return ""
	}
	if strings.ContainsRune(c, filepath.Separator) || strings.HasSuffix(c, ".jsonl") {
		return c
	}
	return config.TranscriptPath(c)
}

// printHeader prints a formatted section header.
func printHeader(title string) {
	fmt.Printf("\n%s%s%s\n", styleBoldCyan, title, colorReset)
	fmt.Println(colorDim + strings.Repeat("-", len(title)+2) + colorReset)
}

// printField prints a labeled field.
func printField(label, value string) {
	fmt.Printf("  %s%-16s%s %s\n", colorBold, label+":", colorReset, value)
}

// printFieldColored prints a labeled field with colored value.
func printFieldColored(label, value, color string) {
	fmt.Printf("  %s%-16s%s %s%s%s\n", colorBold, label+":", colorReset, color, value, colorReset)
}

// kindColor returns an ANSI color code for a failure classification.
func kindColor(kind infer.Kind) string {
	switch kind {
	case infer.KindRateLimit:
		return colorYellow
	case infer.KindTimeout:
		return colorBlue
	case infer.KindAuth, infer.KindBilling:
		return colorRed
	default:
		return colorWhite
	}
}

// kindBadge returns a colored classification badge.
func kindBadge(kind infer.Kind) string {
	return fmt.Sprintf("%s[%s]%s", kindColor(kind), kind, colorReset)
}

// truncate truncates a string to a given max length, adding "..." if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// firstLine returns the first line of a multi-line string.
func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
