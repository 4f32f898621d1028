package config

import (
	"time"

	"github.com/agusx1211/llmws/pkg/wire"
)

// Built-in fallbacks, the lowest configuration layer.
const (
	DefaultEndpoint       = "ws://127.0.0.1:8765"
	DefaultSilentSentinel = "[silence]"

	defaultConnectTimeout = 10 * time.Second
	defaultReadTimeout    = 120 * time.Second
	defaultHistoryTurns   = 20
	defaultHistoryChars   = 6000
)

// Settings are the knobs of one call, resolved fresh each time from the
// model block, the deployment defaults, and the built-in fallbacks. Target
// endpoints resolve separately (see the target package); everything else
// lives here.
type Settings struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	IncludeHistory bool
	HistoryTurns   int
	HistoryChars   int
	SilentSentinel string
	Generation     *wire.GenerationConfig
}

// ResolveSettings layers model over defaults over built-ins. model may be nil.
func ResolveSettings(model *ModelConfig, def Defaults) Settings {
	s := Settings{
		ConnectTimeout: defaultConnectTimeout,
		ReadTimeout:    defaultReadTimeout,
		IncludeHistory: true,
		HistoryTurns:   defaultHistoryTurns,
		HistoryChars:   defaultHistoryChars,
		SilentSentinel: DefaultSilentSentinel,
	}

	apply := func(t Tuning) {
		if t.ConnectTimeoutMS > 0 {
			s.ConnectTimeout = time.Duration(t.ConnectTimeoutMS) * time.Millisecond
		}
		if t.ReadTimeoutMS > 0 {
			s.ReadTimeout = time.Duration(t.ReadTimeoutMS) * time.Millisecond
		}
		if t.IncludeHistory != nil {
			s.IncludeHistory = *t.IncludeHistory
		}
		if t.HistoryTurns != nil {
			s.HistoryTurns = *t.HistoryTurns
		}
		if t.HistoryChars != nil {
			s.HistoryChars = *t.HistoryChars
		}
		if t.SilentSentinel != "" {
			s.SilentSentinel = t.SilentSentinel
		}
		if t.Generation != nil {
			s.Generation = s.Generation.Merged(t.Generation)
		}
	}

	apply(def.Tuning)
	if model != nil {
		apply(model.Tuning)
	}
	return s
}
