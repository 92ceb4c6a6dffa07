package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pipelineBuckets = []float64{.05, .1, .5, 1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400}

var Pipeline = PipelineExporter{
	duration: promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "publisher",
			Name:      "pipeline_step_duration_seconds",
			Help:      "How long it took to process a publish pipeline step, partitioned by step name, release version and status (success or failure).",
			Buckets:   pipelineBuckets,
		},
		[]string{"step", "version", "status"},
	),
}

type PipelineExporter struct {
	duration *prometheus.HistogramVec
}

func (r *PipelineExporter) observe(step string, succeed bool, version string, startedAt time.Time) {
	status := "success"
	if !succeed {
		status = "failure"
	}

	r.duration.
		With(prometheus.Labels{
			"step":    step,
			"version": version,
			"status":  status,
		}).
		Observe(time.Since(startedAt).Seconds())
}

func (r *PipelineExporter) ResolveVersions(succeed bool, startedAt time.Time) {
	r.observe("resolve_versions", succeed, "", startedAt)
}

func (r *PipelineExporter) PublishCheck(succeed bool, version string, startedAt time.Time) {
	r.observe("publish_check", succeed, version, startedAt)
}

func (r *PipelineExporter) Build(succeed bool, version string, startedAt time.Time) {
	r.observe("build", succeed, version, startedAt)
}

func (r *PipelineExporter) ReconcileAlias(succeed bool, version string, startedAt time.Time) {
	r.observe("reconcile_alias", succeed, version, startedAt)
}

func (r *PipelineExporter) PublishManifest(succeed bool, tag string, startedAt time.Time) {
	r.observe("publish_manifest", succeed, tag, startedAt)
}
