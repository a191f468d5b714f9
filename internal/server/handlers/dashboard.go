package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/lane711/sonicjs/internal/analytics"
	"github.com/lane711/sonicjs/internal/server/response"
)

//go:embed templates/*.html
var templateFS embed.FS

var dashboardTemplate = template.Must(
	template.New("cache_dashboard.html").
		Funcs(template.FuncMap{"bytes": formatBytes}).
		ParseFS(templateFS, "templates/cache_dashboard.html"),
)

type dashboardRow struct {
	analytics.NamespaceReport
	Status      analytics.HealthStatus
	MemoryUsage string
}

type dashboardData struct {
	Prefix     string
	Overview   analytics.Overview
	Health     analytics.HealthReport
	Namespaces []dashboardRow
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// HandleCacheDashboard handles GET /admin/cache.
func (h *Handlers) HandleCacheDashboard(w http.ResponseWriter, _ *http.Request) {
	report := h.Analyzer.Analyze()
	health := h.Analyzer.Health()

	byName := make(map[string]analytics.NamespaceHealth, len(health.Namespaces))
	for _, nh := range health.Namespaces {
		byName[nh.Namespace] = nh
	}

	data := dashboardData{
		Prefix:     h.PathPrefix,
		Overview:   report.Overview,
		Health:     health,
		Namespaces: make([]dashboardRow, 0, len(report.Namespaces)),
	}
	for _, ns := range report.Namespaces {
		nh := byName[ns.Namespace]
		data.Namespaces = append(data.Namespaces, dashboardRow{
			NamespaceReport: ns,
			Status:          nh.Status,
			MemoryUsage:     nh.MemoryUsage,
		})
	}

	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, data); err != nil {
		h.Logger.Error().Err(err).Msg("Failed to render cache dashboard")
		response.InternalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
