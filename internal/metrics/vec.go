package metrics

import (
	"sort"
	"strings"
	"sync"
)

// labelKey joins label values into a map key. Values never contain \xff.
func labelKey(values []string) string {
	return strings.Join(values, "\xff")
}

type vecEntry struct {
	labels map[string]string
	value  float64
}

func labelMap(names, values []string) map[string]string {
	m := make(map[string]string, len(names))
	for i, n := range names {
		if i < len(values) {
			m[n] = values[i]
		}
	}
	return m
}

type counterVec struct {
	mu     sync.Mutex
	names  []string
	values map[string]int64
	labels map[string][]string
}

func newCounterVec(names ...string) *counterVec {
	return &counterVec{names: names, values: make(map[string]int64), labels: make(map[string][]string)}
}

func (v *counterVec) inc(values ...string) {
	k := labelKey(values)
	v.mu.Lock()
	v.values[k]++
	v.labels[k] = values
	v.mu.Unlock()
}

// totals returns counts keyed by the first label value.
func (v *counterVec) totals() map[string]int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]int64, len(v.values))
	for k, n := range v.values {
		out[v.labels[k][0]] += n
	}
	return out
}

func (v *counterVec) snapshot() []vecEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	keys := make([]string, 0, len(v.values))
	for k := range v.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]vecEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, vecEntry{labels: labelMap(v.names, v.labels[k]), value: float64(v.values[k])})
	}
	return out
}

type gaugeVec struct {
	mu     sync.Mutex
	names  []string
	values map[string]float64
	labels map[string][]string
}

func newGaugeVec(names ...string) *gaugeVec {
	return &gaugeVec{names: names, values: make(map[string]float64), labels: make(map[string][]string)}
}

func (v *gaugeVec) set(val float64, values ...string) {
	k := labelKey(values)
	v.mu.Lock()
	v.values[k] = val
	v.labels[k] = values
	v.mu.Unlock()
}

func (v *gaugeVec) snapshot() []vecEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	keys := make([]string, 0, len(v.values))
	for k := range v.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]vecEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, vecEntry{labels: labelMap(v.names, v.labels[k]), value: v.values[k]})
	}
	return out
}

// defaultBuckets are request duration bounds in seconds.
var defaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

type histogram struct {
	labels  map[string]string
	buckets []float64
	counts  []int64
	count   int64
	sum     float64
}

type histogramVec struct {
	mu      sync.Mutex
	names   []string
	buckets []float64
	hists   map[string]*histogram
}

func newHistogramVec(buckets []float64, names ...string) *histogramVec {
	return &histogramVec{names: names, buckets: buckets, hists: make(map[string]*histogram)}
}

func (v *histogramVec) observe(val float64, values ...string) {
	k := labelKey(values)
	v.mu.Lock()
	defer v.mu.Unlock()
	h, ok := v.hists[k]
	if !ok {
		h = &histogram{
			labels:  labelMap(v.names, values),
			buckets: v.buckets,
			counts:  make([]int64, len(v.buckets)),
		}
		v.hists[k] = h
	}
	for i, bound := range h.buckets {
		if val <= bound {
			h.counts[i]++
			break
		}
	}
	h.count++
	h.sum += val
}

// snapshot returns copies of every histogram, sorted by label key.
func (v *histogramVec) snapshot() []histogram {
	v.mu.Lock()
	defer v.mu.Unlock()
	keys := make([]string, 0, len(v.hists))
	for k := range v.hists {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]histogram, 0, len(keys))
	for _, k := range keys {
		h := *v.hists[k]
		h.counts = append([]int64(nil), h.counts...)
		out = append(out, h)
	}
	return out
}
