package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports the k-d tree and MIF profile counters (see
// pkg/kdtree.Profile and the mirrored MIF accumulator) as Prometheus
// instruments, plus the cache and build/persistence metrics the
// ambient stack needs.
type Metrics struct {
	// k-d tree profile counters, one instrument per pkg/kdtree.Profile
	// field: gauges set by ObserveTreeProfile, except Searches and
	// Neighbours, which are counters driven by RecordTreeSearch.
	TreeVectorToVector prometheus.Gauge
	TreeVectorToNode   prometheus.Gauge
	TreeMeanComputed   prometheus.Gauge
	TreeHyperComputed  prometheus.Gauge
	TreeSearches       prometheus.Counter
	TreeNeighbours     prometheus.Counter
	TreeMaxStack       prometheus.Gauge

	// MIF build/query metrics.
	MIFBuildDuration   prometheus.Histogram
	MIFBuildObjects    prometheus.Counter
	MIFQueriesTotal    prometheus.Counter
	MIFQueryDuration   prometheus.Histogram
	MIFQueryResultSize prometheus.Histogram

	// MIF profile counters: one gauge each for pkg/mif.Profile's
	// DistanceEvals, PostingBytes and Rehashes fields.
	MIFDistanceEvals prometheus.Gauge
	MIFPostingBytes  prometheus.Gauge
	MIFTableRehashes prometheus.Gauge

	// Cache metrics.
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	CacheSize   prometheus.Gauge

	// Persistence metrics.
	PersistWriteTotal    prometheus.Counter
	PersistWriteDuration prometheus.Histogram
	PersistReadTotal     prometheus.Counter
	PersistReadDuration  prometheus.Histogram
}

// NewMetrics registers and returns the full metric set.
func NewMetrics() *Metrics {
	return &Metrics{
		TreeVectorToVector: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "discocore_tree_vector_to_vector_total",
			Help: "Cumulative object-to-object distance evaluations during search",
		}),
		TreeVectorToNode: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "discocore_tree_vector_to_node_total",
			Help: "Cumulative object-to-split-plane distance evaluations",
		}),
		TreeMeanComputed: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "discocore_tree_mean_computed_total",
			Help: "Number of orthogonal split pivots computed during build",
		}),
		TreeHyperComputed: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "discocore_tree_hyper_computed_total",
			Help: "Number of hyperplane split pivots computed during build",
		}),
		TreeSearches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "discocore_tree_searches_total",
			Help: "Total number of search_knn calls",
		}),
		TreeNeighbours: promauto.NewCounter(prometheus.CounterOpts{
			Name: "discocore_tree_neighbours_total",
			Help: "Total number of neighbours returned across all searches",
		}),
		TreeMaxStack: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "discocore_tree_max_stack_depth",
			Help: "High-water mark of the pruning search stack",
		}),

		MIFBuildDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "discocore_mif_build_duration_seconds",
			Help:    "MIF index build duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		}),
		MIFBuildObjects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "discocore_mif_build_objects_total",
			Help: "Total number of objects ranked during MIF builds",
		}),
		MIFQueriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "discocore_mif_queries_total",
			Help: "Total number of MIF queries answered",
		}),
		MIFQueryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "discocore_mif_query_duration_seconds",
			Help:    "MIF query latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		MIFQueryResultSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "discocore_mif_query_result_size",
			Help:    "Number of results returned per MIF query",
			Buckets: []float64{1, 5, 10, 20, 50, 100},
		}),
		MIFDistanceEvals: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "discocore_mif_distance_evals_total",
			Help: "Cumulative object-to-reference distance evaluations across build and query",
		}),
		MIFPostingBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "discocore_mif_posting_bytes_accessed_total",
			Help: "Cumulative posting-list bytes scanned during queries",
		}),
		MIFTableRehashes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "discocore_mif_table_rehashes_total",
			Help: "Cumulative accumulator-table rehashes",
		}),

		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "discocore_cache_hits_total",
			Help: "Total number of query-cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "discocore_cache_misses_total",
			Help: "Total number of query-cache misses",
		}),
		CacheSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "discocore_cache_size",
			Help: "Current number of entries in the query cache",
		}),

		PersistWriteTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "discocore_persist_write_total",
			Help: "Total number of MIF persistence writes",
		}),
		PersistWriteDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "discocore_persist_write_duration_seconds",
			Help:    "MIF persistence write duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30},
		}),
		PersistReadTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "discocore_persist_read_total",
			Help: "Total number of MIF persistence reads",
		}),
		PersistReadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "discocore_persist_read_duration_seconds",
			Help:    "MIF persistence read duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30},
		}),
	}
}

// TreeProfile is the subset of pkg/kdtree.Profile's fields this
// package observes, kept decoupled from pkg/kdtree so observability
// has no import-time dependency on the search package.
type TreeProfile struct {
	VectorToVector int64
	VectorToNode   int64
	MeanComputed   int64
	HyperComputed  int64
	Searches       int64
	Neighbours     int64
	MaxStack       int
}

// MIFProfile is the subset of pkg/mif.Profile's fields this package
// observes, decoupled for the same reason.
type MIFProfile struct {
	DistanceEvals int64
	PostingBytes  int64
	Rehashes      int64
}

// ObserveTreeProfile pushes a tree's cumulative profile counters into
// the corresponding gauges. Intended to be called periodically (or
// once after a batch of searches), not per search, since Profile
// itself already accumulates. p.Searches and p.Neighbours are not
// pushed here; RecordTreeSearch counts those.
func (m *Metrics) ObserveTreeProfile(p TreeProfile) {
	m.TreeVectorToVector.Set(float64(p.VectorToVector))
	m.TreeVectorToNode.Set(float64(p.VectorToNode))
	m.TreeMeanComputed.Set(float64(p.MeanComputed))
	m.TreeHyperComputed.Set(float64(p.HyperComputed))
	m.TreeMaxStack.Set(float64(p.MaxStack))
}

// ObserveMIFProfile pushes an index's cumulative profile counters into
// the corresponding gauges.
func (m *Metrics) ObserveMIFProfile(p MIFProfile) {
	m.MIFDistanceEvals.Set(float64(p.DistanceEvals))
	m.MIFPostingBytes.Set(float64(p.PostingBytes))
	m.MIFTableRehashes.Set(float64(p.Rehashes))
}

// RecordTreeSearch records one search_knn call returning n neighbours.
func (m *Metrics) RecordTreeSearch(n int) {
	m.TreeSearches.Inc()
	m.TreeNeighbours.Add(float64(n))
}

// RecordMIFBuild records one completed MIF build.
func (m *Metrics) RecordMIFBuild(duration time.Duration, objects int) {
	m.MIFBuildDuration.Observe(duration.Seconds())
	m.MIFBuildObjects.Add(float64(objects))
}

// RecordMIFQuery records one completed MIF query.
func (m *Metrics) RecordMIFQuery(duration time.Duration, resultSize int) {
	m.MIFQueriesTotal.Inc()
	m.MIFQueryDuration.Observe(duration.Seconds())
	m.MIFQueryResultSize.Observe(float64(resultSize))
}

// RecordCacheHit records a query-cache hit.
func (m *Metrics) RecordCacheHit() { m.CacheHits.Inc() }

// RecordCacheMiss records a query-cache miss.
func (m *Metrics) RecordCacheMiss() { m.CacheMisses.Inc() }

// UpdateCacheSize sets the current cache entry count.
func (m *Metrics) UpdateCacheSize(size int) { m.CacheSize.Set(float64(size)) }

// RecordPersistWrite records one MIF persistence write.
func (m *Metrics) RecordPersistWrite(duration time.Duration) {
	m.PersistWriteTotal.Inc()
	m.PersistWriteDuration.Observe(duration.Seconds())
}

// RecordPersistRead records one MIF persistence read.
func (m *Metrics) RecordPersistRead(duration time.Duration) {
	m.PersistReadTotal.Inc()
	m.PersistReadDuration.Observe(duration.Seconds())
}
