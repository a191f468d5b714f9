package cache

// Stats are the counters of one namespace, or of all of them combined.
type Stats struct {
	EntryCount    int     `json:"entryCount"`
	HitCount      int64   `json:"hitCount"`
	MissCount     int64   `json:"missCount"`
	TotalRequests int64   `json:"totalRequests"`
	HitRate       float64 `json:"hitRate"`
	ApproxBytes   int64   `json:"approxBytes"`
}

// HitRate returns hits / (hits + misses), or 0 when there were no requests.
func HitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func (n *namespace) stats() Stats {
	items := n.store.Items()

	var bytes int64
	for _, it := range items {
		if e, ok := it.Object.(*entry); ok {
			bytes += int64(e.size)
		}
	}

	n.mu.Lock()
	hits, misses := n.hits, n.misses
	n.mu.Unlock()

	return Stats{
		EntryCount:    len(items),
		HitCount:      hits,
		MissCount:     misses,
		TotalRequests: hits + misses,
		HitRate:       HitRate(hits, misses),
		ApproxBytes:   bytes,
	}
}

// Stats returns the counters of ns.
func (c *Cache) Stats(ns string) (Stats, error) {
	n, err := c.namespace(ns)
	if err != nil {
		return Stats{}, err
	}
	return n.stats(), nil
}

// AllStats returns the counters of every namespace keyed by name.
func (c *Cache) AllStats() map[string]Stats {
	out := make(map[string]Stats, len(c.names))
	for _, name := range c.names {
		out[name] = c.namespaces[name].stats()
	}
	return out
}

// TotalStats aggregates every namespace.
func (c *Cache) TotalStats() Stats {
	var total Stats
	for _, name := range c.names {
		s := c.namespaces[name].stats()
		total.EntryCount += s.EntryCount
		total.HitCount += s.HitCount
		total.MissCount += s.MissCount
		total.ApproxBytes += s.ApproxBytes
	}
	total.TotalRequests = total.HitCount + total.MissCount
	total.HitRate = HitRate(total.HitCount, total.MissCount)
	return total
}
