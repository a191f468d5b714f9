package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lane711/sonicjs/pkg/constants"
)

// Sample is one point of the cache trend series.
type Sample struct {
	At            time.Time `json:"timestamp"`
	Hits          int64     `json:"hits"`
	Misses        int64     `json:"misses"`
	TotalRequests int64     `json:"totalRequests"`
	HitRate       float64   `json:"hitRate"`
	Entries       int       `json:"entries"`
	ApproxBytes   int64     `json:"memoryUsage"`
}

// Recorder samples cache totals into a bounded ring.
type Recorder struct {
	source   Source
	interval time.Duration
	max      int
	logger   *zerolog.Logger

	mu      sync.Mutex
	samples []Sample
}

// NewRecorder samples src every interval, keeping at most max samples.
// Zero values pick the defaults.
func NewRecorder(src Source, interval time.Duration, max int, logger *zerolog.Logger) *Recorder {
	if interval <= 0 {
		interval = constants.DefaultTrendInterval
	}
	if max <= 0 {
		max = constants.TrendSamples
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Recorder{source: src, interval: interval, max: max, logger: logger}
}

// Record takes a sample now.
func (r *Recorder) Record() Sample {
	s := r.source.TotalStats()
	sample := Sample{
		At:            time.Now().UTC(),
		Hits:          s.HitCount,
		Misses:        s.MissCount,
		TotalRequests: s.TotalRequests,
		HitRate:       round(s.HitRate*100, 2),
		Entries:       s.EntryCount,
		ApproxBytes:   s.ApproxBytes,
	}

	r.mu.Lock()
	r.samples = append(r.samples, sample)
	if over := len(r.samples) - r.max; over > 0 {
		r.samples = append(r.samples[:0:0], r.samples[over:]...)
	}
	r.mu.Unlock()
	return sample
}

// Trends returns the recorded samples, oldest first.
func (r *Recorder) Trends() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Run records a sample immediately and then every interval until ctx is done.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Record()
	r.logger.Debug().Dur("interval", r.interval).Msg("Cache trend recorder started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug().Msg("Cache trend recorder stopped")
			return
		case <-ticker.C:
			r.Record()
		}
	}
}
