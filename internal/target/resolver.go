// Package target resolves the ordered list of candidate inference endpoints
// for a logical model. Sources are layered (model block, deployment defaults,
// environment, discovery, built-in fallback), URLs are repaired and
// deduplicated, and the result is re-ranked by declared capability match.
package target

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/agusx1211/llmws/internal/config"
	"github.com/agusx1211/llmws/internal/debug"
)

// Target is one candidate inference endpoint. Immutable once resolved;
// capability tags are normalized to lower-case, whitespace-collapsed form.
type Target struct {
	URL          string   `json:"url"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// HasCapability reports whether the target declares the given tag.
// The tag is normalized before comparison.
func (t Target) HasCapability(tag string) bool {
	want := NormalizeTag(tag)
	for _, c := range t.Capabilities {
		if c == want {
			return true
		}
	}
	return false
}

var (
	schemedRe     = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
	singleSlashRe = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.-]*):/([^/].*)$`)
)

// NormalizeURL repairs and validates one endpoint string. Backslashes become
// slashes, `scheme:/host` becomes `scheme://host`, schemeless strings gain a
// ws:// prefix with leading slashes stripped. Returns false for empty or
// unparseable input.
func NormalizeURL(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	s = strings.ReplaceAll(s, `\`, "/")

	switch {
	case schemedRe.MatchString(s):
		// already schemed, keep as-is
	case singleSlashRe.MatchString(s):
		s = singleSlashRe.ReplaceAllString(s, "$1://$2")
	default:
		s = "ws://" + strings.TrimLeft(s, "/")
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", false
	}
	return s, true
}

// NormalizeTag lower-cases a capability tag and collapses internal whitespace.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.Join(strings.Fields(tag), " "))
}

func normalizeTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		if n := NormalizeTag(t); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Resolve builds the deduplicated candidate list for one model. Entries are
// collected in priority order: the model's servers list, its single server
// field, the defaults' servers list, the defaults' single server field, the
// LLMWS_SERVERS comma list, LLMWS_SERVER, any extra (discovered) entries,
// and finally the built-in default endpoint. Malformed entries are dropped
// silently; the first occurrence of a URL wins; the result is never empty.
// model may be nil for models with no local parameter block.
func Resolve(model *config.ModelConfig, def config.Defaults, env config.Environment, extra ...config.ServerEntry) []Target {
	var entries []config.ServerEntry

	if model != nil {
		entries = append(entries, model.Servers...)
		if s := strings.TrimSpace(model.Server); s != "" {
			entries = append(entries, config.ServerEntry{URL: s})
		}
	}
	entries = append(entries, def.Servers...)
	if s := strings.TrimSpace(def.Server); s != "" {
		entries = append(entries, config.ServerEntry{URL: s})
	}
	if env != nil {
		for _, part := range strings.Split(env.Getenv(config.EnvServers), ",") {
			if p := strings.TrimSpace(part); p != "" {
				entries = append(entries, config.ServerEntry{URL: p})
			}
		}
		if s := strings.TrimSpace(env.Getenv(config.EnvServer)); s != "" {
			entries = append(entries, config.ServerEntry{URL: s})
		}
	}
	entries = append(entries, extra...)
	entries = append(entries, config.ServerEntry{URL: config.DefaultEndpoint})

	seen := make(map[string]bool, len(entries))
	var targets []Target
	for _, e := range entries {
		u, ok := NormalizeURL(e.URL)
		if !ok {
			if strings.TrimSpace(e.URL) != "" {
				debug.Logf("target", "dropping malformed endpoint %q", e.URL)
			}
			continue
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		targets = append(targets, Target{URL: u, Capabilities: normalizeTags(e.Capabilities)})
	}

	if len(targets) == 0 {
		targets = []Target{{URL: config.DefaultEndpoint}}
	}

	if model != nil {
		targets = rankByCapabilities(targets, model.PreferCapabilities)
	}
	return targets
}

// rankByCapabilities stably reorders targets by descending preferred-tag
// match: targets matching every preferred tag first, then by matched-tag
// count. Targets with equal scores keep their collected order.
func rankByCapabilities(targets []Target, prefer []string) []Target {
	want := normalizeTags(prefer)
	if len(want) == 0 {
		return targets
	}

	type scored struct {
		t     Target
		full  bool
		count int
	}
	list := make([]scored, len(targets))
	for i, t := range targets {
		count := 0
		for _, w := range want {
			if t.HasCapability(w) {
				count++
			}
		}
		list[i] = scored{t: t, full: count == len(want), count: count}
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].full != list[j].full {
			return list[i].full
		}
		return list[i].count > list[j].count
	})

	out := make([]Target, len(list))
	for i, s := range list {
		out[i] = s.t
	}
	return out
}
