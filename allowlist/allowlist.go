// Package allowlist decides which request paths the proxy lets through to
// either backend. A List is compiled once at startup and is read-only after.
package allowlist

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/localroute/types"
)

// DefaultPatterns covers the known vendor endpoints plus a catch-all for any
// path under /v1/.
var DefaultPatterns = []string{
	`^/v1/messages/?$`,
	`^/v1/messages/count_tokens/?$`,
	`^/v1/complete/?$`,
	`^/v1/models(/.*)?$`,
	`^/v1/chat/completions/?$`,
	`^/v1/completions/?$`,
	`^/v1/embeddings/?$`,
	`^/v1/.*$`,
}

// Mode selects how caller patterns combine with the defaults.
type Mode int

const (
	// ModeExtend appends caller patterns to DefaultPatterns.
	ModeExtend Mode = iota
	// ModeOverride replaces DefaultPatterns entirely.
	ModeOverride
)

func (m Mode) String() string {
	if m == ModeOverride {
		return "override"
	}
	return "extend"
}

// List is an ordered, immutable set of compiled path patterns.
type List struct {
	patterns []*regexp.Regexp
}

// New compiles patterns in order. Every malformed pattern is reported in a
// single CONFIGURATION error.
func New(patterns ...string) (*List, error) {
	l := &List{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	var bad []string
	var errs []error
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			bad = append(bad, fmt.Sprintf("%q", p))
			errs = append(errs, err)
			continue
		}
		l.patterns = append(l.patterns, re)
	}
	if len(errs) > 0 {
		return nil, types.Errorf(types.ErrConfiguration, "invalid allow-list pattern %s", strings.Join(bad, ", ")).
			WithCause(errors.Join(errs...))
	}
	return l, nil
}

// Build combines patterns with the defaults according to mode. Blank
// entries are skipped. Override with no patterns yields a list that
// blocks everything.
func Build(mode Mode, patterns []string) (*List, error) {
	var all []string
	if mode == ModeExtend {
		all = append(all, DefaultPatterns...)
	}
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			all = append(all, p)
		}
	}
	return New(all...)
}

// Default compiles DefaultPatterns.
func Default() *List {
	l, err := New(DefaultPatterns...)
	if err != nil {
		panic(fmt.Sprintf("allowlist: default patterns do not compile: %v", err))
	}
	return l
}

// Allowed reports whether path matches any pattern.
func (l *List) Allowed(path string) bool {
	for _, re := range l.patterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Patterns returns the source patterns in order.
func (l *List) Patterns() []string {
	out := make([]string, len(l.patterns))
	for i, re := range l.patterns {
		out[i] = re.String()
	}
	return out
}

// Len returns the number of patterns.
func (l *List) Len() int { return len(l.patterns) }

// SplitPatterns splits a comma-separated pattern list as accepted by the
// LOCALROUTE_ALLOWED_PATHS variable and the --allowed-paths flag.
func SplitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
