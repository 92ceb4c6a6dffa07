package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var Aliases = AliasExporter{
	total: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "publisher",
			Name:      "alias_reconciliations_total",
			Help:      "How many per-architecture alias tags were reconciled, partitioned by result.",
		},
		[]string{"alias", "arch", "result"},
	),
}

type AliasExporter struct {
	total *prometheus.CounterVec
}

func (r *AliasExporter) Updated(alias, arch string) {
	r.observe(alias, arch, "updated")
}

func (r *AliasExporter) Unchanged(alias, arch string) {
	r.observe(alias, arch, "unchanged")
}

func (r *AliasExporter) observe(alias, arch, result string) {
	r.total.
		With(prometheus.Labels{
			"alias":  alias,
			"arch":   arch,
			"result": result,
		}).
		Inc()
}
