package infer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agusx1211/llmws/internal/config"
	"github.com/agusx1211/llmws/internal/debug"
	"github.com/agusx1211/llmws/internal/hexid"
	"github.com/agusx1211/llmws/internal/session"
	"github.com/agusx1211/llmws/pkg/wire"
)

// Usage carries best-effort token accounting. A zero field means the
// server did not report that number.
type Usage struct {
	Input  int
	Output int
	Total  int
}

type attemptResult struct {
	text      string
	sessionID string
	usage     Usage
}

// budgetDefectError marks the server-side budget miscalculation that
// would otherwise hang the stream: a max_tokens at or below tokens_in
// means the server's generation loop never starts.
type budgetDefectError struct {
	tokensIn  int
	maxTokens int
}

func (e *budgetDefectError) Error() string {
	return fmt.Sprintf("server budget defect: max_tokens=%d <= tokens_in=%d", e.maxTokens, e.tokensIn)
}

// runAttempt drives one full exchange against one target: dial,
// handshake, welcome, inference request, token stream. Every wait is an
// idle deadline: it restarts on each received frame. detectDefect
// controls whether a budget miscalculation surfaces as a
// budgetDefectError or is merely logged (the corrected retry pass).
func (c *Client) runAttempt(ctx context.Context, url string, req *wire.InferenceRequest, resume string, st config.Settings, detectDefect bool) (*attemptResult, error) {
	sess, err := session.Dial(ctx, url, session.Options{ConnectTimeout: st.ConnectTimeout})
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	if err := sess.Send(ctx, wire.Handshake{SessionID: resume}); err != nil {
		return nil, err
	}

	var welcome wire.Frame
	for {
		frame, err := sess.Next(ctx, st.ReadTimeout)
		if err != nil {
			return nil, fmt.Errorf("waiting for welcome: %w", err)
		}
		if frame.Type() == wire.TypeWelcome {
			welcome = frame
			break
		}
		debug.Logf("infer", "skipping %q frame before welcome", frame.Type())
	}
	sessionID := welcome.Str("session_id")
	if sessionID == "" {
		sessionID = hexid.Session()
	}

	if err := sess.Send(ctx, req); err != nil {
		return nil, err
	}

	var (
		text  strings.Builder
		usage Usage
	)
	for {
		frame, err := sess.Next(ctx, st.ReadTimeout)
		if err != nil {
			return nil, fmt.Errorf("streaming: %w", err)
		}
		switch frame.Type() {
		case wire.TypeStart:
			tokensIn, _ := frame.Int("tokens_in")
			maxTokens, hasMax := frame.Int("max_tokens")
			usage.Input = tokensIn
			if hasMax && maxTokens > 0 && maxTokens <= tokensIn {
				if detectDefect {
					return nil, &budgetDefectError{tokensIn: tokensIn, maxTokens: maxTokens}
				}
				debug.Logf("infer", "budget still short after correction: max_tokens=%d tokens_in=%d", maxTokens, tokensIn)
			}
		case wire.TypeToken:
			chunk := frame.Str("data")
			if chunk == "" {
				chunk = frame.Str("text")
			}
			text.WriteString(chunk)
			if c.stream != nil && chunk != "" {
				c.stream(chunk)
			}
		case wire.TypeDone:
			if total, ok := frame.Int("total_tokens"); ok && total > 0 {
				usage.Total = total
				if usage.Input > 0 && total >= usage.Input {
					usage.Output = total - usage.Input
				}
			}
			return &attemptResult{text: text.String(), sessionID: sessionID, usage: usage}, nil
		case wire.TypeError:
			msg := frame.Str("message")
			if msg == "" {
				msg = "server reported an unspecified error"
			}
			return nil, errors.New(msg)
		default:
			// Unknown frame types are skipped.
		}
	}
}

// attemptTarget runs one attempt plus at most one budget-corrected
// retry against the same target. With no configured maxNewTokens the
// defect cannot be corrected and becomes a failure telling the operator
// what to do.
func (c *Client) attemptTarget(ctx context.Context, url string, req *wire.InferenceRequest, resume string, st config.Settings) (*attemptResult, error) {
	res, err := c.runAttempt(ctx, url, req, resume, st, c.budget != nil)
	var defect *budgetDefectError
	if err == nil || !errors.As(err, &defect) {
		return res, err
	}
	if req.Config == nil || req.Config.MaxNewTokens == nil {
		return nil, fmt.Errorf("%w; configure maxNewTokens so the budget can be corrected, or fix the server", defect)
	}

	corrected := c.budget(defect.tokensIn, *req.Config.MaxNewTokens)
	debug.Logf("infer", "retrying %s with corrected budget max_new_tokens=%d", url, corrected)
	retryReq := *req
	cfg := *req.Config
	cfg.MaxNewTokens = &corrected
	retryReq.Config = &cfg
	return c.runAttempt(ctx, url, &retryReq, resume, st, false)
}
