// Package matcher provides glob and regex matching for cache keys.
//
// Globs are matched against the whole key: * matches any run of characters
// including separators such as ':' and '/', ? matches exactly one
// character, [abc] and [!abc] match character classes, and a backslash
// escapes the next character.
package matcher

import (
	"fmt"
	"regexp"
	"strings"
)

// PatternType represents the type of pattern matching to use.
type PatternType int

const (
	// Glob uses shell-style glob patterns (*, ?, []).
	Glob PatternType = iota
	// Regex uses regular expressions, unanchored unless the pattern
	// anchors itself.
	Regex
)

// String returns a string representation of the PatternType.
func (pt PatternType) String() string {
	switch pt {
	case Glob:
		return "glob"
	case Regex:
		return "regex"
	default:
		return "unknown"
	}
}

// Matcher matches keys against one compiled pattern. It is safe for
// concurrent use.
type Matcher interface {
	// Match reports whether key matches the pattern.
	Match(key string) bool
	// Pattern returns the original pattern string.
	Pattern() string
	// Type returns the pattern type in use.
	Type() PatternType
}

type matcher struct {
	pattern     string
	patternType PatternType
	compiled    *regexp.Regexp
}

// New creates a Matcher for pattern.
func New(patternType PatternType, pattern string) (Matcher, error) {
	var expr string
	switch patternType {
	case Glob:
		re, err := GlobToRegex(pattern)
		if err != nil {
			return nil, err
		}
		expr = re
	case Regex:
		expr = pattern
	default:
		return nil, fmt.Errorf("unsupported pattern type: %v", patternType)
	}

	compiled, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid %s pattern %q: %w", patternType, pattern, err)
	}
	return &matcher{pattern: pattern, patternType: patternType, compiled: compiled}, nil
}

func (m *matcher) Match(key string) bool {
	return m.compiled.MatchString(key)
}

func (m *matcher) Pattern() string   { return m.pattern }
func (m *matcher) Type() PatternType { return m.patternType }

// EscapeGlob escapes the glob metacharacters in s so it matches literally.
func EscapeGlob(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// GlobToRegex converts a glob pattern to an anchored regular expression.
func GlobToRegex(glob string) (string, error) {
	var b strings.Builder
	b.WriteString("^")

	for i := 0; i < len(glob); i++ {
		switch c := glob[i]; c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '\\':
			if i+1 >= len(glob) {
				return "", fmt.Errorf("invalid glob pattern %q: trailing backslash", glob)
			}
			i++
			b.WriteString(regexp.QuoteMeta(glob[i : i+1]))
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				return "", fmt.Errorf("invalid glob pattern %q: unclosed character class", glob)
			}
			class := glob[i+1 : i+1+end]
			b.WriteByte('[')
			if strings.HasPrefix(class, "!") || strings.HasPrefix(class, "^") {
				b.WriteByte('^')
				class = class[1:]
			}
			b.WriteString(strings.ReplaceAll(class, `\`, `\\`))
			b.WriteByte(']')
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(glob[i : i+1]))
		}
	}

	b.WriteString("$")
	return b.String(), nil
}
