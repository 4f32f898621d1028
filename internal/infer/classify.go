package infer

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies why a call failed once every target was exhausted.
type Kind string

const (
	KindRateLimit Kind = "rate_limit"
	KindTimeout   Kind = "timeout"
	KindAuth      Kind = "auth"
	KindBilling   Kind = "billing"
	KindUnknown   Kind = "unknown"
)

// kindMarkers is checked in order; the first group with a matching
// marker wins. Timeout covers connectivity-shaped failures as well,
// since both mean "the server never answered usefully".
var kindMarkers = []struct {
	kind    Kind
	markers []string
}{
	{KindRateLimit, []string{"rate limit", "rate-limit", "ratelimit", "too many requests", "429", "quota"}},
	{KindBilling, []string{"billing", "payment required", "insufficient credit", "402"}},
	{KindAuth, []string{"unauthorized", "forbidden", "invalid api key", "authentication", "401", "403"}},
	{KindTimeout, []string{
		"timeout", "timed out", "deadline exceeded",
		"connection refused", "connection reset", "unreachable",
		"no such host", "not found", "broken pipe", "no route to host",
	}},
}

// ClassifyText maps raw failure text to a Kind by wording.
func ClassifyText(text string) Kind {
	low := strings.ToLower(text)
	for _, group := range kindMarkers {
		for _, marker := range group.markers {
			if strings.Contains(low, marker) {
				return group.kind
			}
		}
	}
	return KindUnknown
}

// Backoff suggests how long a caller should wait before retrying a call
// that failed with this kind. Zero means a retry is pointless without
// operator action.
func (k Kind) Backoff() time.Duration {
	switch k {
	case KindRateLimit:
		return time.Minute
	case KindBilling:
		return 5 * time.Minute
	case KindTimeout:
		return 5 * time.Second
	case KindAuth:
		return 0
	default:
		return 15 * time.Second
	}
}

// CallError is the terminal failure of a call: every target failed.
// Failures holds one entry per target in attempt order so operators can
// tell "every server refused" from "every server was unreachable".
type CallError struct {
	Kind     Kind
	Failures []string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("all targets failed (%s): %s", e.Kind, strings.Join(e.Failures, "; "))
}
