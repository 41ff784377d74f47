// Package stats provides a minimal metrics interface backed by go-metrics.
// We wrap go-metrics so instruments can be scoped down a call tree and so we
// don't leak the dependency to anyone pulling in snapbatch as a library.
package stats

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rcrowley/go-metrics"
)

// StatsReceiver is passed down a call tree and scoped to each level.
type StatsReceiver interface {
	// Scope returns a new receiver whose instruments are prefixed by scope.
	Scope(scope ...string) StatsReceiver

	// Provides an event counter.
	Counter(name ...string) Counter

	// Add a gauge, which holds an int64 value that can be set arbitrarily.
	Gauge(name ...string) Gauge

	// Provides a histogram of callsite latencies, in nanoseconds.
	Latency(name ...string) Latency

	// Construct a JSON string by marshaling the registry.
	Render(pretty bool) []byte
}

// DefaultStatsReceiver returns a receiver with a fresh go-metrics registry.
func DefaultStatsReceiver() StatsReceiver {
	return &defaultStatsReceiver{registry: metrics.NewRegistry()}
}

type defaultStatsReceiver struct {
	registry metrics.Registry
	scope    []string
}

func (s *defaultStatsReceiver) Scope(scope ...string) StatsReceiver {
	return &defaultStatsReceiver{s.registry, s.scoped(scope...)}
}

func (s *defaultStatsReceiver) Counter(name ...string) Counter {
	return &metricCounter{metrics.GetOrRegisterCounter(s.scopedName(name...), s.registry)}
}

func (s *defaultStatsReceiver) Gauge(name ...string) Gauge {
	return &metricGauge{metrics.GetOrRegisterGauge(s.scopedName(name...), s.registry)}
}

func (s *defaultStatsReceiver) Latency(name ...string) Latency {
	return s.registry.GetOrRegister(s.scopedName(name...), newLatency()).(Latency)
}

func (s *defaultStatsReceiver) Render(pretty bool) []byte {
	data := make(map[string]interface{})
	s.registry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case metrics.Counter:
			data[name] = m.Count()
		case metrics.Gauge:
			data[name] = m.Value()
		case *metricLatency:
			data[name] = m.Mean()
		}
	})
	var bytes []byte
	var err error
	if pretty {
		bytes, err = json.MarshalIndent(data, "", "  ")
	} else {
		bytes, err = json.Marshal(data)
	}
	if err != nil {
		panic("stats registry bug, cannot be marshaled")
	}
	return bytes
}

// Append to existing scope and scrub slashes
func (s *defaultStatsReceiver) scoped(scope ...string) []string {
	for i, sc := range scope {
		scope[i] = strings.Replace(sc, "/", "_SLASH_", -1)
	}
	return append(s.scope[:], scope...)
}

// Append to the existing scope and convert to slash-delimited string.
func (s *defaultStatsReceiver) scopedName(scope ...string) string {
	return strings.Join(s.scoped(scope...), "/")
}

// NilStatsReceiver ignores all stats operations.
func NilStatsReceiver(scope ...string) StatsReceiver {
	return &nilStatsReceiver{}
}

type nilStatsReceiver struct{}

func (s *nilStatsReceiver) Scope(scope ...string) StatsReceiver { return s }
func (s *nilStatsReceiver) Counter(name ...string) Counter {
	return &metricCounter{metrics.NilCounter{}}
}
func (s *nilStatsReceiver) Gauge(name ...string) Gauge {
	return &metricGauge{metrics.NilGauge{}}
}
func (s *nilStatsReceiver) Latency(name ...string) Latency { return &nilLatency{} }
func (s *nilStatsReceiver) Render(pretty bool) []byte      { return []byte{} }

// Minimally mirror go-metrics instruments.

type Counter interface {
	Clear()
	Count() int64
	Inc(int64)
}
type metricCounter struct{ metrics.Counter }

type Gauge interface {
	Update(int64)
	Value() int64
}
type metricGauge struct{ metrics.Gauge }

// Latency records callsite latency into a histogram.
// Usage: defer stat.Latency("foo").Time().Stop()
type Latency interface {
	Time() Latency // returns self.
	Stop()
	Mean() float64
	Count() int64
}

type metricLatency struct {
	metrics.Histogram
	start time.Time
}

func (l *metricLatency) Time() Latency { l.start = time.Now(); return l }
func (l *metricLatency) Stop()         { l.Update(time.Since(l.start).Nanoseconds()) }
func newLatency() Latency {
	return &metricLatency{Histogram: metrics.NewHistogram(metrics.NewUniformSample(1000))}
}

type nilLatency struct{}

func (l *nilLatency) Time() Latency { return l }
func (l *nilLatency) Stop()         {}
func (l *nilLatency) Mean() float64 { return 0 }
func (l *nilLatency) Count() int64  { return 0 }
