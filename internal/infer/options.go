package infer

import (
	"github.com/agusx1211/llmws/internal/config"
	"github.com/agusx1211/llmws/internal/memory"
	"github.com/agusx1211/llmws/internal/target"
)

// Option customizes a Client.
type Option func(*Client)

// WithEnvironment substitutes the environment lookup used for
// LLMWS_SERVERS and friends.
func WithEnvironment(env config.Environment) Option {
	return func(c *Client) {
		if env != nil {
			c.env = env
		}
	}
}

// WithMemory overrides the memory backend. Nil disables injection.
func WithMemory(s memory.Searcher) Option {
	return func(c *Client) { c.memory = s }
}

// WithBudgetPolicy replaces the budget correction strategy. Nil
// disables the correction retry entirely.
func WithBudgetPolicy(p BudgetPolicy) Option {
	return func(c *Client) { c.budget = p }
}

// WithTagStripper replaces the reasoning-tag stripper applied to final
// output. Nil leaves output untouched.
func WithTagStripper(f func(string) string) Option {
	return func(c *Client) { c.strip = f }
}

// WithDiscoverer adds LAN discovery as an extra target source. It only
// runs when discovery is enabled by configuration or environment.
func WithDiscoverer(d target.Discoverer) Option {
	return func(c *Client) { c.discover = d }
}

// WithStream registers a callback observing token chunks as they
// arrive. A failed attempt's partial stream is superseded by the next
// attempt's output.
func WithStream(f func(token string)) Option {
	return func(c *Client) { c.stream = f }
}
