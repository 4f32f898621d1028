// Package infer drives inference calls end to end: resolve targets,
// assemble the request, fail over across targets sequentially, and
// persist the finished turn to the transcript.
package infer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/agusx1211/llmws/internal/config"
	"github.com/agusx1211/llmws/internal/debug"
	"github.com/agusx1211/llmws/internal/memory"
	"github.com/agusx1211/llmws/internal/prompt"
	"github.com/agusx1211/llmws/internal/target"
	"github.com/agusx1211/llmws/internal/transcript"
	"github.com/agusx1211/llmws/pkg/wire"
)

// BudgetPolicy computes the corrected generation budget after the
// server reports a max_tokens at or below tokens_in.
type BudgetPolicy func(tokensIn, requested int) int

// DefaultBudgetPolicy doubles the prompt size and adds the originally
// requested allowance, so the corrected total ceiling leaves room for
// generation even on servers that treat max_new_tokens as a total.
func DefaultBudgetPolicy(tokensIn, requested int) int {
	return 2*tokensIn + requested
}

// Client executes inference calls against the configured model servers.
type Client struct {
	cfg      *config.Config
	env      config.Environment
	memory   memory.Searcher
	budget   BudgetPolicy
	strip    func(string) string
	discover target.Discoverer
	stream   func(token string)
}

// New builds a Client around cfg. Defaults: process environment, the
// configured memory backend, the standard budget correction, and the
// reasoning-tag stripper.
func New(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		env:    config.OSEnv{},
		budget: DefaultBudgetPolicy,
		strip:  prompt.StripReasoningTags,
	}
	if cfg != nil {
		c.memory = memory.FromConfig(&cfg.Memory)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request is one inference call.
type Request struct {
	// Model selects a configured model block by name. Unknown or empty
	// names fall back to deployment defaults.
	Model string
	// Prompt is the user's ask. Required.
	Prompt string
	// System overrides the model's configured system prompt when set.
	System string
	// Media attaches images.
	Media []prompt.MediaInput
	// Transcript is the conversation file path. Empty disables both
	// history and persistence.
	Transcript string
	// Resume carries a remote session id to resume on the server.
	Resume string
	// Workdir is recorded in new transcript headers. Empty uses the
	// process working directory.
	Workdir string
	// Generation applies per-call knob overrides on top of configured
	// generation settings.
	Generation *wire.GenerationConfig
}

// Result is a successful call's outcome.
type Result struct {
	Text      string
	SessionID string
	Target    string
	Usage     Usage
}

// Generate runs the call: one sequential pass over the resolved targets,
// first success wins. When every target fails the returned error is a
// *CallError carrying each target's failure.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("infer: empty prompt")
	}
	cfg := c.cfg
	if cfg == nil {
		cfg = &config.Config{}
	}
	model := cfg.FindModel(req.Model)
	if req.Model != "" && model == nil {
		debug.Logf("infer", "model %q not configured, using defaults", req.Model)
	}
	settings := config.ResolveSettings(model, cfg.Defaults)

	var extra []config.ServerEntry
	if c.discover != nil && c.discoveryEnabled(cfg) {
		extra = c.discover(ctx, target.DefaultDiscoverTimeout)
	}
	targets := target.Resolve(model, cfg.Defaults, c.env, extra...)

	built := c.buildPrompt(ctx, req, model, settings)
	genCfg := settings.Generation
	if req.Generation != nil {
		genCfg = genCfg.Merged(req.Generation)
	}
	wireReq := wire.NewInferenceRequest(built.System, built.User, built.Media, genCfg)

	var failures []string
	for _, t := range targets {
		debug.Logf("infer", "attempt start target=%s", t.URL)
		res, err := c.attemptTarget(ctx, t.URL, wireReq, req.Resume, settings)
		if err == nil {
			debug.Logf("infer", "attempt succeeded target=%s session=%s", t.URL, res.sessionID)
			return c.finish(req, settings, t.URL, res)
		}
		failures = append(failures, fmt.Sprintf("%s: %v", t.URL, err))
		debug.Logf("infer", "attempt failed target=%s err=%v", t.URL, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &CallError{
		Kind:     ClassifyText(strings.Join(failures, "; ")),
		Failures: failures,
	}
}

// buildPrompt assembles the (system, user, media) payload, reading the
// history window best-effort.
func (c *Client) buildPrompt(ctx context.Context, req Request, model *config.ModelConfig, st config.Settings) prompt.Built {
	system := req.System
	if system == "" && model != nil {
		system = model.SystemPrompt
	}

	var history []transcript.Message
	if st.IncludeHistory && req.Transcript != "" {
		msgs, err := transcript.ReadMessages(req.Transcript)
		if err != nil {
			debug.Logf("infer", "transcript read failed: %v", err)
		} else {
			history = msgs
		}
	}

	opts := prompt.BuildOpts{
		SystemPrompt:   system,
		UserPrompt:     req.Prompt,
		History:        history,
		HistoryTurns:   st.HistoryTurns,
		HistoryChars:   st.HistoryChars,
		SilentSentinel: st.SilentSentinel,
		Memory:         c.memory,
		Media:          req.Media,
	}
	if c.cfg != nil {
		opts.MaxSnippets = c.cfg.Memory.MaxSnippets
		opts.CharBudget = c.cfg.Memory.CharBudget
	}
	return prompt.Build(ctx, opts)
}

// finish strips reasoning tags and persists the turn. Empty and silent
// replies are returned to the caller but never written to the
// transcript; a failed transcript write fails the call.
func (c *Client) finish(req Request, st config.Settings, targetURL string, res *attemptResult) (*Result, error) {
	text := res.text
	if c.strip != nil {
		text = c.strip(text)
	}

	silent := text == "" || (st.SilentSentinel != "" && strings.TrimSpace(text) == st.SilentSentinel)
	if req.Transcript != "" && !silent {
		workdir := req.Workdir
		if workdir == "" {
			if wd, err := os.Getwd(); err == nil {
				workdir = wd
			}
		}
		if err := transcript.AppendTurn(req.Transcript, res.sessionID, workdir, req.Prompt, text); err != nil {
			return nil, &CallError{
				Kind:     KindUnknown,
				Failures: []string{fmt.Sprintf("transcript: %v", err)},
			}
		}
	}

	return &Result{
		Text:      text,
		SessionID: res.sessionID,
		Target:    targetURL,
		Usage:     res.usage,
	}, nil
}

func (c *Client) discoveryEnabled(cfg *config.Config) bool {
	if v := strings.TrimSpace(c.env.Getenv(config.EnvDiscover)); v != "" {
		return v == "1" || strings.EqualFold(v, "true")
	}
	return cfg.Defaults.Discover
}
