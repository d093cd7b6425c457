// Package metrics exposes the remote quota and the local sync state to
// Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dipcp-go/internal/dip"
)

// Collector records sync activity.
type Collector struct {
	quotaRemaining prometheus.Gauge
	pendingFiles   prometheus.Gauge
	submissions    *prometheus.CounterVec
	votesFlushed   prometheus.Counter
	downloads      prometheus.Counter
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		quotaRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dip_remote_quota_remaining",
			Help: "Remaining API requests reported by the remote host.",
		}),
		pendingFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dip_pending_files",
			Help: "Locally changed files waiting to be submitted.",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dip_submissions_total",
			Help: "Batch submissions by final status.",
		}, []string{"status"}),
		votesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dip_votes_flushed_total",
			Help: "Votes posted to vote issues.",
		}),
		downloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dip_downloads_total",
			Help: "Articles downloaded into the cache.",
		}),
	}

	reg.MustRegister(
		c.quotaRemaining,
		c.pendingFiles,
		c.submissions,
		c.votesFlushed,
		c.downloads,
	)
	return c
}

// ObserveQuota implements github.QuotaObserver.
func (c *Collector) ObserveQuota(remaining int) {
	c.quotaRemaining.Set(float64(remaining))
}

// SetPending sets the pending gauge to an absolute count.
func (c *Collector) SetPending(n int) {
	c.pendingFiles.Set(float64(n))
}

// PendingChanged has the dip.PendingObserver signature and keeps the pending
// gauge in step with the store.
func (c *Collector) PendingChanged(_ string, added bool) {
	if added {
		c.pendingFiles.Inc()
		return
	}
	c.pendingFiles.Dec()
}

func (c *Collector) RecordSubmission(status dip.SubmissionStatus) {
	c.submissions.WithLabelValues(string(status)).Inc()
}

func (c *Collector) RecordVotesFlushed(n int) {
	c.votesFlushed.Add(float64(n))
}

func (c *Collector) RecordDownloads(n int) {
	c.downloads.Add(float64(n))
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute serves gatherer on /metrics.
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
