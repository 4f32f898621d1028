package config

import "os"

// Environment supplies environment-variable lookups to the resolver and
// discovery layers. Passing it explicitly keeps resolution pure and lets
// tests substitute a map instead of mutating process state.
type Environment interface {
	Getenv(key string) string
}

// OSEnv reads the real process environment.
type OSEnv struct{}

// Getenv implements Environment.
func (OSEnv) Getenv(key string) string { return os.Getenv(key) }

// MapEnv is a fixed-map Environment for tests.
type MapEnv map[string]string

// Getenv implements Environment.
func (m MapEnv) Getenv(key string) string { return m[key] }
