// Package prometheus renders metrics snapshots in Prometheus text
// exposition format, with no client-library dependency.
package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/techbridge/authcore/metrics"
)

// Exporter serves one registry's counters.
type Exporter struct {
	registry *metrics.Registry
}

// NewExporter creates an Exporter reading from registry.
func NewExporter(registry *metrics.Registry) *Exporter {
	return &Exporter{registry: registry}
}

// Handler returns an http.Handler serving the scrape endpoint.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(e.Render()))
	})
}

// Render returns the current counters in text exposition format.
func (e *Exporter) Render() string {
	if e == nil || e.registry == nil {
		return ""
	}
	snapshot := e.registry.Snapshot()

	var b strings.Builder
	b.Grow(2048)
	for _, def := range metrics.Defs {
		b.WriteString("# HELP ")
		b.WriteString(def.Name)
		b.WriteByte(' ')
		b.WriteString(escapeHelp(def.Help))
		b.WriteByte('\n')
		b.WriteString("# TYPE ")
		b.WriteString(def.Name)
		b.WriteString(" counter\n")
		b.WriteString(def.Name)
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(snapshot[def.ID], 10))
		b.WriteByte('\n')
	}
	return b.String()
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	return strings.ReplaceAll(help, "\n", "\\n")
}
