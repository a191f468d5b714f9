package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/lane711/sonicjs/internal/matcher"
	"github.com/lane711/sonicjs/pkg/errors"
)

// DefaultKeyVersion is the version segment used when none is given.
const DefaultKeyVersion = "v1"

// Key builds a cache key of the form namespace:type:id:version.
func Key(ns, typ, id, version string) string {
	if version == "" {
		version = DefaultKeyVersion
	}
	return strings.Join([]string{ns, typ, id, version}, ":")
}

// KeyParts are the segments of a key built with Key.
type KeyParts struct {
	Namespace string `json:"namespace"`
	Type      string `json:"type"`
	ID        string `json:"id"`
	Version   string `json:"version"`
}

// ParseKey splits a key built with Key. IDs may themselves contain colons.
func ParseKey(key string) (KeyParts, error) {
	parts := strings.Split(key, ":")
	if len(parts) < 4 {
		return KeyParts{}, errors.NewValidationError("key", key, "key must have the form namespace:type:id:version")
	}
	return KeyParts{
		Namespace: parts[0],
		Type:      parts[1],
		ID:        strings.Join(parts[2:len(parts)-1], ":"),
		Version:   parts[len(parts)-1],
	}, nil
}

// Pattern builds an invalidation glob: Pattern("content", "post") is
// "content:post:*". The parts are matched literally.
func Pattern(ns string, parts ...string) string {
	segs := make([]string, 0, len(parts)+1)
	segs = append(segs, matcher.EscapeGlob(ns))
	for _, p := range parts {
		segs = append(segs, matcher.EscapeGlob(p))
	}
	return strings.Join(segs, ":") + ":*"
}

// HashQuery returns a stable short hash of query parameters, independent
// of map order, for use as a key id.
func HashQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s&", k, params[k])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// MatchGlob reports whether key matches the glob pattern. Invalid
// patterns match nothing.
func MatchGlob(pattern, key string) bool {
	m, err := matcher.New(matcher.Glob, pattern)
	if err != nil {
		return false
	}
	return m.Match(key)
}

// Invalidate deletes every key matching the glob pattern, in ns or in all
// namespaces when ns is empty, and returns how many were removed.
func (c *Cache) Invalidate(pattern, ns string) (int, error) {
	return c.invalidate(matcher.Glob, pattern, ns)
}

// InvalidateRegex is Invalidate with a regular expression. The expression
// is unanchored.
func (c *Cache) InvalidateRegex(pattern, ns string) (int, error) {
	return c.invalidate(matcher.Regex, pattern, ns)
}

func (c *Cache) invalidate(typ matcher.PatternType, pattern, ns string) (int, error) {
	if pattern == "" {
		return 0, errors.NewValidationError("pattern", pattern, "Pattern is required")
	}

	targets, err := c.targets(ns)
	if err != nil {
		return 0, err
	}

	m, err := matcher.New(typ, pattern)
	if err != nil {
		return 0, errors.WrapValidation("pattern", err)
	}

	count := c.deleteMatching(targets, m.Match)
	c.logger.Debug().
		Str("pattern", pattern).
		Stringer("type", typ).
		Str("namespace", ns).
		Int("invalidated", count).
		Msg("Cache invalidated")
	return count, nil
}

// InvalidateEntity deletes every key in ns whose id segment, as split by
// ParseKey, equals id exactly. Keys not built with Key are left alone.
func (c *Cache) InvalidateEntity(ns, id string) (int, error) {
	if id == "" {
		return 0, errors.NewValidationError("id", id, "ID is required")
	}
	targets, err := c.targets(ns)
	if err != nil {
		return 0, err
	}

	count := c.deleteMatching(targets, func(key string) bool {
		parts, err := ParseKey(key)
		return err == nil && parts.ID == id
	})
	c.logger.Debug().
		Str("namespace", ns).
		Str("id", id).
		Int("invalidated", count).
		Msg("Cache entity invalidated")
	return count, nil
}

func (c *Cache) targets(ns string) ([]string, error) {
	if ns == "" {
		return c.names, nil
	}
	if _, err := c.namespace(ns); err != nil {
		return nil, err
	}
	return []string{ns}, nil
}

func (c *Cache) deleteMatching(names []string, match func(string) bool) int {
	count := 0
	for _, name := range names {
		n := c.namespaces[name]
		for key := range n.store.Items() {
			if match(key) {
				n.store.Delete(key)
				count++
			}
		}
	}
	return count
}
