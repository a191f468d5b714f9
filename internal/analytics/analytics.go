// Package analytics derives reports from cache counters: global and
// per-namespace hit rates, estimated savings, health classification,
// trends over time and the most requested keys.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lane711/sonicjs/internal/cache"
)

// Estimates used by the performance report. Each cache hit is assumed to
// avoid one database query.
const (
	// TimeSavedPerHit is the assumed latency of the avoided query.
	TimeSavedPerHit = 48 * time.Millisecond

	// CostSavedPerHit is the assumed cost in dollars of the avoided query.
	CostSavedPerHit = 0.000001

	// MemoryBudget is the per-namespace size used to report memory usage.
	MemoryBudget = 50 << 20
)

// Source is the cache surface analytics reads.
type Source interface {
	TotalStats() cache.Stats
	AllStats() map[string]cache.Stats
	Browse(f cache.Filter) (cache.BrowseResult, error)
}

// InvalidationRecord is one invalidation triggered by an event.
type InvalidationRecord struct {
	Event     string    `json:"event"`
	Namespace string    `json:"namespace"`
	Pattern   string    `json:"pattern"`
	Count     int       `json:"count"`
	At        time.Time `json:"at"`
}

// InvalidationSummary aggregates recorded invalidations.
type InvalidationSummary struct {
	Total       int                  `json:"total"`
	Removed     int                  `json:"removed"`
	ByEvent     map[string]int       `json:"byEvent"`
	ByNamespace map[string]int       `json:"byNamespace"`
	Recent      []InvalidationRecord `json:"recent"`
}

// InvalidationSource supplies invalidation history.
type InvalidationSource interface {
	Summary(limit int) InvalidationSummary
}

// Overview is the headline section of a report.
type Overview struct {
	TotalHits      int64  `json:"totalHits"`
	TotalMisses    int64  `json:"totalMisses"`
	TotalRequests  int64  `json:"totalRequests"`
	OverallHitRate string `json:"overallHitRate"`
	TotalEntries   int    `json:"totalEntries"`
	TotalBytes     int64  `json:"totalMemoryUsage"`
	AvgEntrySize   int64  `json:"avgEntrySize"`
}

// Performance estimates what the cache saved.
type Performance struct {
	DBQueriesAvoided     int64   `json:"dbQueriesAvoided"`
	TimeSavedMs          int64   `json:"timeSavedMs"`
	EstimatedCostSavings float64 `json:"estimatedCostSavings"`
}

// NamespaceReport is the per-namespace section of a report.
type NamespaceReport struct {
	Namespace     string  `json:"namespace"`
	HitRate       float64 `json:"hitRate"`
	TotalRequests int64   `json:"totalRequests"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	EntryCount    int     `json:"entryCount"`
	ApproxBytes   int64   `json:"memoryUsage"`
	AvgEntrySize  int64   `json:"avgEntrySize"`
	// Efficiency is hits per live entry.
	Efficiency float64 `json:"efficiency"`
}

// Report is returned by Analyze.
type Report struct {
	Overview     Overview            `json:"overview"`
	Performance  Performance         `json:"performance"`
	Namespaces   []NamespaceReport   `json:"namespaces"`
	Invalidation InvalidationSummary `json:"invalidation"`
}

// Analyzer builds reports.
type Analyzer struct {
	source        Source
	invalidations InvalidationSource
}

// New returns an analyzer over src. inv may be nil.
func New(src Source, inv InvalidationSource) *Analyzer {
	return &Analyzer{source: src, invalidations: inv}
}

// recentInvalidations is how many records a report includes.
const recentInvalidations = 10

// Analyze builds a full report from the current counters.
func (a *Analyzer) Analyze() Report {
	total := a.source.TotalStats()

	r := Report{
		Overview: Overview{
			TotalHits:      total.HitCount,
			TotalMisses:    total.MissCount,
			TotalRequests:  total.TotalRequests,
			OverallHitRate: fmt.Sprintf("%.2f", total.HitRate*100),
			TotalEntries:   total.EntryCount,
			TotalBytes:     total.ApproxBytes,
			AvgEntrySize:   avg(total.ApproxBytes, total.EntryCount),
		},
		Performance: performance(total.HitCount),
		Namespaces:  a.namespaces(),
		Invalidation: InvalidationSummary{
			ByEvent:     map[string]int{},
			ByNamespace: map[string]int{},
			Recent:      []InvalidationRecord{},
		},
	}
	if a.invalidations != nil {
		r.Invalidation = a.invalidations.Summary(recentInvalidations)
	}
	return r
}

func performance(hits int64) Performance {
	return Performance{
		DBQueriesAvoided:     hits,
		TimeSavedMs:          hits * TimeSavedPerHit.Milliseconds(),
		EstimatedCostSavings: round(float64(hits)*CostSavedPerHit, 6),
	}
}

func (a *Analyzer) namespaces() []NamespaceReport {
	all := a.source.AllStats()
	out := make([]NamespaceReport, 0, len(all))
	for name, s := range all {
		nr := NamespaceReport{
			Namespace:     name,
			HitRate:       round(s.HitRate*100, 2),
			TotalRequests: s.TotalRequests,
			Hits:          s.HitCount,
			Misses:        s.MissCount,
			EntryCount:    s.EntryCount,
			ApproxBytes:   s.ApproxBytes,
			AvgEntrySize:  avg(s.ApproxBytes, s.EntryCount),
		}
		if s.EntryCount > 0 {
			nr.Efficiency = round(float64(s.HitCount)/float64(s.EntryCount), 2)
		}
		out = append(out, nr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Namespace < out[j].Namespace })
	return out
}

// TopKeysNote explains what TopKeys measures.
const TopKeysNote = "Hit counts are tracked per entry since it was stored; cleared, invalidated and expired entries are not included."

// TopKeys returns the live entries with the most hits.
func (a *Analyzer) TopKeys(limit int) ([]cache.EntryInfo, error) {
	res, err := a.source.Browse(cache.Filter{SortBy: cache.SortByHits, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]cache.EntryInfo, 0, len(res.Entries))
	for _, e := range res.Entries {
		if e.Hits > 0 {
			out = append(out, e)
		}
	}
	return out, nil
}

func avg(total int64, n int) int64 {
	if n == 0 {
		return 0
	}
	return total / int64(n)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
