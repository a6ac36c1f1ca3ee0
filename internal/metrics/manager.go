package metrics

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MetricsManager is the process-wide metrics registry.
// Paths are "topic/function", e.g. "llm/openai/request".
type MetricsManager struct {
	mu          sync.RWMutex
	timings     map[string]*TimingMetric
	counters    map[string]*CounterMetric
	successFail map[string]*SuccessFailMetric
	outcomes    map[string]*OutcomeMetric
}

var (
	instance *MetricsManager
	once     sync.Once
)

// GetInstance returns the singleton metrics manager
func GetInstance() *MetricsManager {
	once.Do(func() {
		instance = newManager()
	})
	return instance
}

func newManager() *MetricsManager {
	return &MetricsManager{
		timings:     make(map[string]*TimingMetric),
		counters:    make(map[string]*CounterMetric),
		successFail: make(map[string]*SuccessFailMetric),
		outcomes:    make(map[string]*OutcomeMetric),
	}
}

func buildPath(topic, function string) string {
	if function == "" {
		return topic
	}
	return topic + "/" + function
}

// Reset drops every recorded metric
func (m *MetricsManager) Reset() {
	fresh := newManager()
	m.mu.Lock()
	m.timings = fresh.timings
	m.counters = fresh.counters
	m.successFail = fresh.successFail
	m.outcomes = fresh.outcomes
	m.mu.Unlock()
}

// RecordDuration records a duration directly
func (m *MetricsManager) RecordDuration(topic, function string, duration time.Duration) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.timings[path]
	if !exists {
		metric = &TimingMetric{Min: duration, Max: duration}
		m.timings[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Count++
	metric.Total += duration
	metric.Last = duration
	if duration < metric.Min {
		metric.Min = duration
	}
	if duration > metric.Max {
		metric.Max = duration
	}
}

// AddCounter adds to a counter
func (m *MetricsManager) AddCounter(topic, function string, delta int64) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.counters[path]
	if !exists {
		metric = &CounterMetric{}
		m.counters[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Value += delta
	metric.Last = time.Now()
}

func (m *MetricsManager) successFailFor(path string) *SuccessFailMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	metric, exists := m.successFail[path]
	if !exists {
		metric = &SuccessFailMetric{FailureReasons: make(map[string]int64)}
		m.successFail[path] = metric
	}
	return metric
}

// RecordSuccess records a successful operation
func (m *MetricsManager) RecordSuccess(topic, function string) {
	metric := m.successFailFor(buildPath(topic, function))

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Success++
	metric.LastSuccess = time.Now()
}

// RecordFailure records a failed operation
func (m *MetricsManager) RecordFailure(topic, function, reason string) {
	metric := m.successFailFor(buildPath(topic, function))

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Failures++
	metric.LastFailure = time.Now()
	if reason != "" {
		metric.FailureReasons[reason]++
	}
}

// RecordOutcome records a specific outcome
func (m *MetricsManager) RecordOutcome(topic, function, outcome string) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.outcomes[path]
	if !exists {
		metric = &OutcomeMetric{Outcomes: make(map[string]int64)}
		m.outcomes[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Outcomes[outcome]++
	metric.Total++
	metric.LastOutcome = outcome
}

// GetSnapshot returns a copy of every metric keyed by path
func (m *MetricsManager) GetSnapshot() map[string]*MetricSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*MetricSnapshot)

	for path, t := range m.timings {
		t.mu.Lock()
		snap := TimingSnapshot{
			Count:  t.Count,
			MinMs:  ms(t.Min),
			MaxMs:  ms(t.Max),
			LastMs: ms(t.Last),
		}
		if t.Count > 0 {
			snap.AvgMs = ms(t.Total) / float64(t.Count)
		}
		t.mu.Unlock()
		out[path] = &MetricSnapshot{Path: path, Type: TypeTiming, Data: snap}
	}

	for path, c := range m.counters {
		c.mu.Lock()
		out[path] = &MetricSnapshot{Path: path, Type: TypeCounter, Data: CounterSnapshot{Value: c.Value}}
		c.mu.Unlock()
	}

	for path, sf := range m.successFail {
		sf.mu.Lock()
		snap := SuccessFailSnapshot{Success: sf.Success, Failures: sf.Failures}
		if total := sf.Success + sf.Failures; total > 0 {
			snap.SuccessRate = float64(sf.Success) / float64(total)
		}
		if len(sf.FailureReasons) > 0 {
			snap.FailureReasons = make(map[string]int64, len(sf.FailureReasons))
			for k, v := range sf.FailureReasons {
				snap.FailureReasons[k] = v
			}
		}
		sf.mu.Unlock()
		out[path] = &MetricSnapshot{Path: path, Type: TypeSuccessFail, Data: snap}
	}

	for path, o := range m.outcomes {
		o.mu.Lock()
		snap := OutcomeSnapshot{Outcomes: make(map[string]int64, len(o.Outcomes)), Total: o.Total}
		for k, v := range o.Outcomes {
			snap.Outcomes[k] = v
		}
		o.mu.Unlock()
		out[path] = &MetricSnapshot{Path: path, Type: TypeOutcome, Data: snap}
	}

	return out
}

// MarshalSnapshot renders the snapshot as indented JSON sorted by path
func (m *MetricsManager) MarshalSnapshot() ([]byte, error) {
	snap := m.GetSnapshot()
	paths := make([]string, 0, len(snap))
	for p := range snap {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	list := make([]*MetricSnapshot, 0, len(paths))
	for _, p := range paths {
		list = append(list, snap[p])
	}
	return json.MarshalIndent(list, "", "  ")
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
