package cache

import (
	"sort"
	"strings"
	"time"

	"github.com/lane711/sonicjs/pkg/constants"
	"github.com/lane711/sonicjs/pkg/errors"
)

// Sort orders accepted by Browse.
const (
	SortBySize = "size"
	SortByKey  = "key"
	SortByAge  = "age"
	SortByHits = "hits"
)

// Filter selects entries for Browse.
type Filter struct {
	Namespace string
	Search    string
	SortBy    string
	Limit     int
}

// EntryInfo describes a live entry.
type EntryInfo struct {
	Namespace  string     `json:"namespace"`
	Key        string     `json:"key"`
	Size       int        `json:"size"`
	Hits       int64      `json:"hits"`
	Age        float64    `json:"age"`
	TTL        *float64   `json:"ttl"`
	InsertedAt time.Time  `json:"insertedAt"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	Value      any        `json:"value,omitempty"`
}

// BrowseResult is returned by Browse.
type BrowseResult struct {
	Entries []EntryInfo `json:"entries"`
	Total   int         `json:"total"`
	Showing int         `json:"showing"`
}

func (n *namespace) info(name, key string, e *entry, now time.Time, withValue bool) EntryInfo {
	info := EntryInfo{
		Namespace:  name,
		Key:        key,
		Size:       e.size,
		Hits:       e.hits.Load(),
		Age:        now.Sub(e.insertedAt).Seconds(),
		InsertedAt: e.insertedAt.UTC(),
	}
	if !e.expiresAt.IsZero() {
		ttl := e.expiresAt.Sub(now).Seconds()
		if ttl < 0 {
			ttl = 0
		}
		exp := e.expiresAt.UTC()
		info.TTL = &ttl
		info.ExpiresAt = &exp
	}
	if withValue {
		info.Value = e.value
	}
	return info
}

// Browse lists live entries. Search matches key substrings. Sorting by size
// and hits is descending, by age oldest first, by key ascending.
func (c *Cache) Browse(f Filter) (BrowseResult, error) {
	targets := c.names
	if f.Namespace != "" {
		if _, err := c.namespace(f.Namespace); err != nil {
			return BrowseResult{}, err
		}
		targets = []string{f.Namespace}
	}

	switch f.SortBy {
	case "", SortBySize, SortByKey, SortByAge, SortByHits:
	default:
		return BrowseResult{}, errors.NewValidationError("sortBy", f.SortBy, "sortBy must be one of size, key, age, hits")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = constants.DefaultBrowseLimit
	}
	if limit > constants.MaxBrowseLimit {
		limit = constants.MaxBrowseLimit
	}

	now := time.Now()
	entries := make([]EntryInfo, 0)
	for _, name := range targets {
		n := c.namespaces[name]
		for key, it := range n.store.Items() {
			if f.Search != "" && !strings.Contains(key, f.Search) {
				continue
			}
			e, ok := it.Object.(*entry)
			if !ok {
				continue
			}
			entries = append(entries, n.info(name, key, e, now, false))
		}
	}

	sortEntries(entries, f.SortBy)

	total := len(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return BrowseResult{Entries: entries, Total: total, Showing: len(entries)}, nil
}

func sortEntries(entries []EntryInfo, by string) {
	less := func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch by {
		case SortBySize:
			if a.Size != b.Size {
				return a.Size > b.Size
			}
		case SortByAge:
			if !a.InsertedAt.Equal(b.InsertedAt) {
				return a.InsertedAt.Before(b.InsertedAt)
			}
		case SortByHits:
			if a.Hits != b.Hits {
				return a.Hits > b.Hits
			}
		}
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		return a.Key < b.Key
	}
	sort.SliceStable(entries, less)
}

// Entry returns one live entry including its value.
func (c *Cache) Entry(ns, key string) (EntryInfo, error) {
	n, err := c.namespace(ns)
	if err != nil {
		return EntryInfo{}, err
	}
	e, ok := n.lookup(key)
	if !ok {
		return EntryInfo{}, errors.NewNotFoundError("cache entry", ns+"/"+key)
	}
	return n.info(ns, key, e, time.Now(), true), nil
}

// Entries returns every live entry including values, for snapshots.
func (c *Cache) Entries() []EntryInfo {
	now := time.Now()
	var out []EntryInfo
	for _, name := range c.names {
		n := c.namespaces[name]
		for key, it := range n.store.Items() {
			if e, ok := it.Object.(*entry); ok {
				out = append(out, n.info(name, key, e, now, true))
			}
		}
	}
	sortEntries(out, SortByKey)
	return out
}
