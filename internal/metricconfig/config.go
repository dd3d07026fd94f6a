// Package metricconfig loads and layers metric configuration files.
//
// A metric's configuration file uses INI syntax with up to three sections:
//
//	[ping-host]          general settings
//	[ping-host args]     extra command-line arguments, passed as --key value
//	[ping-host env]      environment directives, VAR = ACTION | VALUE
//
// The section names are only interpreted by the file loader. Everything
// else works on the tagged Config structure.
package metricconfig

import (
	"log/slog"
	"strings"
)

// Kind identifies one of the sections of a metric configuration.
type Kind int

const (
	General Kind = iota
	Args
	Env
)

func (k Kind) String() string {
	switch k {
	case General:
		return "general"
	case Args:
		return "args"
	case Env:
		return "env"
	default:
		return "unknown"
	}
}

// SectionName returns the file section name used for kind by the given metric.
func (k Kind) SectionName(metric string) string {
	switch k {
	case Args:
		return metric + " args"
	case Env:
		return metric + " env"
	default:
		return metric
	}
}

// Config is the effective configuration of one metric.
type Config struct {
	General *Section
	Args    *Section
	Env     *Section
}

// NewConfig creates a Config with empty sections.
func NewConfig() *Config {
	return &Config{
		General: NewSection(),
		Args:    NewSection(),
		Env:     NewSection(),
	}
}

// Section returns the section of the given kind.
func (c *Config) Section(kind Kind) *Section {
	switch kind {
	case Args:
		return c.Args
	case Env:
		return c.Env
	default:
		return c.General
	}
}

// Merge layers other on top of c. Keys in other win.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	c.General.Merge(other.General)
	c.Args.Merge(other.Args)
	c.Env.Merge(other.Env)
}

// Value returns the value of key in the section of the given kind.
// An absent key is common and only logged at debug level.
func (c *Config) Value(kind Kind, key string) (string, bool) {
	v, ok := c.Section(kind).Get(key)
	if !ok {
		slog.Debug("config key not set", "section", kind, "key", key)
	}
	return v, ok
}

// CheckValue reports whether key is set to expected. The comparison ignores
// case unless caseSensitive is set. An absent key never matches.
func (c *Config) CheckValue(kind Kind, key, expected string, caseSensitive bool) bool {
	v, ok := c.Section(kind).Get(key)
	if !ok {
		return false
	}
	if caseSensitive {
		return v == expected
	}
	return strings.EqualFold(v, expected)
}

// ArgList returns the args section as command-line tokens in declaration order.
func (c *Config) ArgList() []string {
	var tokens []string
	for _, k := range c.Args.Keys() {
		v, _ := c.Args.Get(k)
		tokens = append(tokens, "--"+k, v)
	}
	return tokens
}

// ArgsString renders the args section as "--key value" pairs separated by a
// single space. It returns an empty string when there are no arguments.
func (c *Config) ArgsString() string {
	return strings.Join(c.ArgList(), " ")
}
