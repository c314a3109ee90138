package observability

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// MetricType represents the type of metric
type MetricType int

const (
	CounterType MetricType = iota
	GaugeType
	HistogramType
)

func (t MetricType) String() string {
	switch t {
	case CounterType:
		return "counter"
	case GaugeType:
		return "gauge"
	default:
		return "histogram"
	}
}

// Labels are the constant dimensions of one series
type Labels map[string]string

func (l Labels) key() string {
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, l[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (l Labels) with(k, v string) Labels {
	out := make(Labels, len(l)+1)
	for key, val := range l {
		out[key] = val
	}
	out[k] = v
	return out
}

// Counter represents a monotonic counter series
type Counter struct {
	mu    sync.Mutex
	value float64
}

// Inc increments the counter by 1
func (c *Counter) Inc() {
	c.Add(1)
}

// Add adds a non-negative delta
func (c *Counter) Add(delta float64) {
	if delta < 0 {
		return
	}
	c.mu.Lock()
	c.value += delta
	c.mu.Unlock()
}

// Value returns the current counter value
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Gauge is a value that goes up and down
type Gauge struct {
	mu    sync.Mutex
	value float64
}

// Set sets the gauge value
func (g *Gauge) Set(value float64) {
	g.mu.Lock()
	g.value = value
	g.mu.Unlock()
}

// Add adds delta, which may be negative
func (g *Gauge) Add(delta float64) {
	g.mu.Lock()
	g.value += delta
	g.mu.Unlock()
}

// Inc increments the gauge by 1
func (g *Gauge) Inc() { g.Add(1) }

// Dec decrements the gauge by 1
func (g *Gauge) Dec() { g.Add(-1) }

// Value returns the current gauge value
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Histogram counts observations into cumulative buckets
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

// DurationBuckets suit pipeline steps, from seconds to an hour
var DurationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600}

func newHistogram(buckets []float64) *Histogram {
	if len(buckets) == 0 {
		buckets = DurationBuckets
	}
	b := append([]float64(nil), buckets...)
	sort.Float64s(b)
	return &Histogram{buckets: b, counts: make([]uint64, len(b))}
}

// Observe adds an observation to the histogram
func (h *Histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += value
	h.count++
	for i, bucket := range h.buckets {
		if value <= bucket {
			h.counts[i]++
		}
	}
}

// Count returns the total count of observations
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the sum of all observations
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

type family struct {
	name    string
	help    string
	typ     MetricType
	buckets []float64
	series  map[string]interface{}
	labels  map[string]Labels
}

// MetricsRegistry holds metric families and their labeled series
type MetricsRegistry struct {
	mu       sync.Mutex
	prefix   string
	families map[string]*family
}

// NewMetricsRegistry creates a registry whose metric names start with prefix
func NewMetricsRegistry(prefix string) *MetricsRegistry {
	return &MetricsRegistry{prefix: prefix, families: make(map[string]*family)}
}

func (r *MetricsRegistry) fullName(name string) string {
	if r.prefix == "" {
		return name
	}
	return r.prefix + "_" + name
}

func (r *MetricsRegistry) series(name, help string, typ MetricType, buckets []float64, labels Labels, create func() interface{}) interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	full := r.fullName(name)
	f, ok := r.families[full]
	if !ok {
		f = &family{
			name:    full,
			help:    help,
			typ:     typ,
			buckets: buckets,
			series:  make(map[string]interface{}),
			labels:  make(map[string]Labels),
		}
		r.families[full] = f
	}
	if f.typ != typ {
		panic(fmt.Sprintf("metric %s registered as %s, requested as %s", full, f.typ, typ))
	}

	key := labels.key()
	s, ok := f.series[key]
	if !ok {
		s = create()
		f.series[key] = s
		f.labels[key] = labels
	}
	return s
}

// Counter returns the counter series for labels, creating it on first use
func (r *MetricsRegistry) Counter(name, help string, labels Labels) *Counter {
	return r.series(name, help, CounterType, nil, labels, func() interface{} { return &Counter{} }).(*Counter)
}

// Gauge returns the gauge series for labels, creating it on first use
func (r *MetricsRegistry) Gauge(name, help string, labels Labels) *Gauge {
	return r.series(name, help, GaugeType, nil, labels, func() interface{} { return &Gauge{} }).(*Gauge)
}

// Histogram returns the histogram series for labels, creating it on first use.
// buckets only apply when the family is created.
func (r *MetricsRegistry) Histogram(name, help string, buckets []float64, labels Labels) *Histogram {
	return r.series(name, help, HistogramType, buckets, labels, func() interface{} { return newHistogram(buckets) }).(*Histogram)
}

// WriteText writes every family in the Prometheus text exposition format,
// sorted by name and series.
func (r *MetricsRegistry) WriteText(w io.Writer) error {
	r.mu.Lock()
	names := make([]string, 0, len(r.families))
	for name := range r.families {
		names = append(names, name)
	}
	sort.Strings(names)
	families := make([]*family, len(names))
	for i, name := range names {
		families[i] = r.families[name]
	}
	r.mu.Unlock()

	var b strings.Builder
	for _, f := range families {
		fmt.Fprintf(&b, "# HELP %s %s\n", f.name, f.help)
		fmt.Fprintf(&b, "# TYPE %s %s\n", f.name, f.typ)

		r.mu.Lock()
		keys := make([]string, 0, len(f.series))
		for k := range f.series {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch s := f.series[k].(type) {
			case *Counter:
				fmt.Fprintf(&b, "%s%s %g\n", f.name, k, s.Value())
			case *Gauge:
				fmt.Fprintf(&b, "%s%s %g\n", f.name, k, s.Value())
			case *Histogram:
				writeHistogram(&b, f.name, f.labels[k], s)
			}
		}
		r.mu.Unlock()
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeHistogram(b *strings.Builder, name string, labels Labels, h *Histogram) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, bucket := range h.buckets {
		fmt.Fprintf(b, "%s_bucket%s %d\n", name, labels.with("le", fmt.Sprintf("%g", bucket)).key(), h.counts[i])
	}
	fmt.Fprintf(b, "%s_bucket%s %d\n", name, labels.with("le", "+Inf").key(), h.count)
	fmt.Fprintf(b, "%s_sum%s %g\n", name, labels.key(), h.sum)
	fmt.Fprintf(b, "%s_count%s %d\n", name, labels.key(), h.count)
}

// MetricsHandler serves the registry for Prometheus scraping
func (r *MetricsRegistry) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)
		_ = r.WriteText(w)
	}
}

var defaultRegistry = NewMetricsRegistry("olistpipe")

// GetDefaultRegistry returns the process-wide metrics registry
func GetDefaultRegistry() *MetricsRegistry {
	return defaultRegistry
}

// RecordStep records one finished workflow step
func RecordStep(workflow, step, status string, attempts int, seconds float64) {
	labels := Labels{"workflow": workflow, "step": step}
	defaultRegistry.Counter("step_attempts_total", "Attempts made per workflow step", labels).Add(float64(attempts))
	defaultRegistry.Counter("steps_total", "Finished workflow steps by status", labels.with("status", status)).Inc()
	defaultRegistry.Histogram("step_duration_seconds", "Workflow step duration in seconds", DurationBuckets, labels).Observe(seconds)
}

// RecordRun records one finished workflow run
func RecordRun(workflow string, succeeded bool, seconds float64) {
	status := "succeeded"
	if !succeeded {
		status = "failed"
	}
	defaultRegistry.Counter("workflow_runs_total", "Workflow runs by outcome", Labels{"workflow": workflow, "status": status}).Inc()
	defaultRegistry.Histogram("workflow_duration_seconds", "Workflow run duration in seconds", DurationBuckets, Labels{"workflow": workflow}).Observe(seconds)
}

// RunningWorkflows tracks how many workflow runs are in progress
func RunningWorkflows() *Gauge {
	return defaultRegistry.Gauge("workflows_running", "Workflow runs in progress", nil)
}

// RecordIngest records rows loaded into a raw table
func RecordIngest(table string, rows int) {
	defaultRegistry.Counter("rows_ingested_total", "Rows loaded into raw tables", Labels{"table": table}).Add(float64(rows))
}
