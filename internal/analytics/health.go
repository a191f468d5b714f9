package analytics

import (
	"fmt"
	"sort"
)

// HealthStatus classifies a namespace or the whole cache.
type HealthStatus string

// Health statuses, from best to worst.
const (
	StatusHealthy   HealthStatus = "healthy"
	StatusWarning   HealthStatus = "warning"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Health thresholds. Namespaces with fewer than MinHealthRequests requests
// have too little traffic to judge and count as healthy.
const (
	HealthyHitRate    = 0.70
	WarningHitRate    = 0.40
	MinHealthRequests = 10
)

func (s HealthStatus) rank() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// NamespaceHealth is the health of one namespace.
type NamespaceHealth struct {
	Namespace     string       `json:"namespace"`
	Status        HealthStatus `json:"status"`
	HitRate       float64      `json:"hitRate"`
	TotalRequests int64        `json:"totalRequests"`
	MemoryUsage   string       `json:"memoryUsage"`
	EntryCount    int          `json:"entryCount"`
}

// HealthReport is returned by Health.
type HealthReport struct {
	Status     HealthStatus      `json:"status"`
	Namespaces []NamespaceHealth `json:"namespaces"`
}

// Classify returns the status for a hit rate in [0,1] observed over requests.
func Classify(hitRate float64, requests int64) HealthStatus {
	switch {
	case requests < MinHealthRequests:
		return StatusHealthy
	case hitRate >= HealthyHitRate:
		return StatusHealthy
	case hitRate >= WarningHitRate:
		return StatusWarning
	default:
		return StatusUnhealthy
	}
}

// Health classifies every namespace; the overall status is the worst one.
func (a *Analyzer) Health() HealthReport {
	all := a.source.AllStats()
	report := HealthReport{
		Status:     StatusHealthy,
		Namespaces: make([]NamespaceHealth, 0, len(all)),
	}

	for name, s := range all {
		status := Classify(s.HitRate, s.TotalRequests)
		report.Namespaces = append(report.Namespaces, NamespaceHealth{
			Namespace:     name,
			Status:        status,
			HitRate:       round(s.HitRate*100, 2),
			TotalRequests: s.TotalRequests,
			MemoryUsage:   fmt.Sprintf("%.2f%%", float64(s.ApproxBytes)/MemoryBudget*100),
			EntryCount:    s.EntryCount,
		})
		if status.rank() > report.Status.rank() {
			report.Status = status
		}
	}

	sort.Slice(report.Namespaces, func(i, j int) bool {
		return report.Namespaces[i].Namespace < report.Namespaces[j].Namespace
	})
	return report
}
