package observability

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	requestTime  map[string]time.Duration
	errorCount   map[string]int64
	eventCount   map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		requestTime:  make(map[string]time.Duration),
		errorCount:   make(map[string]int64),
		eventCount:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestTime[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordEvent counts a dispatched domain event.
func (m *Metrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventCount[eventType]++
}

// RequestStat is one row of the request table.
type RequestStat struct {
	Path         string  `json:"path"`
	Method       string  `json:"method"`
	Status       int     `json:"status"`
	Count        int64   `json:"count"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// ErrorStat is one row of the error table.
type ErrorStat struct {
	Path   string `json:"path"`
	Method string `json:"method"`
	Code   string `json:"code"`
	Count  int64  `json:"count"`
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests []RequestStat    `json:"requests"`
	Errors   []ErrorStat      `json:"errors"`
	Events   map[string]int64 `json:"events"`
}

// Snapshot copies the counters in a stable order.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{Requests: []RequestStat{}, Errors: []ErrorStat{}, Events: map[string]int64{}}
	if m == nil {
		return snap
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, count := range m.requestCount {
		parts := strings.SplitN(key, "|", 3)
		status, _ := strconv.Atoi(parts[2])
		avg := float64(m.requestTime[key]) / float64(count) / float64(time.Millisecond)
		snap.Requests = append(snap.Requests, RequestStat{
			Path: parts[0], Method: parts[1], Status: status, Count: count, AvgLatencyMs: avg,
		})
	}
	for key, count := range m.errorCount {
		parts := strings.SplitN(key, "|", 3)
		snap.Errors = append(snap.Errors, ErrorStat{Path: parts[0], Method: parts[1], Code: parts[2], Count: count})
	}
	for k, v := range m.eventCount {
		snap.Events[k] = v
	}

	sort.Slice(snap.Requests, func(i, j int) bool {
		a, b := snap.Requests[i], snap.Requests[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		return a.Status < b.Status
	})
	sort.Slice(snap.Errors, func(i, j int) bool {
		a, b := snap.Errors[i], snap.Errors[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		return a.Code < b.Code
	})
	return snap
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
