// Package metric exposes runtime counters of graph components. All metrics
// are registered in the package Registry, not in the global prometheus one.
package metric

import (
	"net/http"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graph"

// counter names returned by Get.
const (
	// BufferCounter measures number of buffers.
	BufferCounter = "Buffers"
	// ByteCounter measures number of payload bytes.
	ByteCounter = "Bytes"
	// LatencyCounter measures latency between processing calls.
	LatencyCounter = "Latency"
	// DurationCounter counts what's the duration of stream.
	DurationCounter = "Duration"
	// ComponentCounter counts number of metered components.
	ComponentCounter = "Components"
)

var (
	// Registry holds all graph metrics.
	Registry = prometheus.NewRegistry()

	factory = promauto.With(Registry)

	components = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "components",
		Help:      "Number of metered components by type",
	}, []string{"component"})

	buffers = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "buffers_total",
		Help:      "Number of buffers processed by component type",
	}, []string{"component"})

	bytes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_total",
		Help:      "Number of payload bytes processed by component type",
	}, []string{"component"})

	latency = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "latency_seconds",
		Help:      "Time between two last processing calls by component type",
	}, []string{"component"})

	duration = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "duration_seconds_total",
		Help:      "Stream duration processed by component type",
	}, []string{"component"})

	busMessages = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bus_messages_total",
		Help:      "Number of bus messages by type and operation",
	}, []string{"type", "op"})

	queueLevel = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_level",
		Help:      "Number of buffers waiting in a component queue",
	}, []string{"component"})

	flowErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flow_errors_total",
		Help:      "Number of non-ok flow results by component type and result",
	}, []string{"component", "result"})
)

// ResetFunc returns new Measure closure. This closure is needed to postpone
// metrics capture until component is actually running.
type ResetFunc func() MeasureFunc

// MeasureFunc captures metrics when buffer is processed.
type MeasureFunc func(size int, d time.Duration)

// Meter creates new meter closure to capture component counters.
func Meter(component interface{}) ResetFunc {
	t := typeOf(component)
	components.WithLabelValues(t).Inc()
	var (
		b   = buffers.WithLabelValues(t)
		n   = bytes.WithLabelValues(t)
		lat = latency.WithLabelValues(t)
		dur = duration.WithLabelValues(t)
	)
	return func() MeasureFunc {
		var m sync.Mutex
		calledAt := time.Now()
		// closure is shared by the sink pads of the component.
		return func(size int, d time.Duration) {
			m.Lock()
			lat.Set(time.Since(calledAt).Seconds())
			calledAt = time.Now()
			m.Unlock()
			b.Inc()
			n.Add(float64(size))
			if d > 0 {
				dur.Add(d.Seconds())
			}
		}
	}
}

// BusMessage counts bus operation for the message type.
func BusMessage(messageType, op string) {
	busMessages.WithLabelValues(messageType, op).Inc()
}

// QueueLevel sets the current queue level of the named component.
func QueueLevel(component string, level int) {
	queueLevel.WithLabelValues(component).Set(float64(level))
}

// FlowError counts non-ok flow result of the component.
func FlowError(component interface{}, result string) {
	flowErrors.WithLabelValues(typeOf(component), result).Inc()
}

// Get metrics values for provided component type.
func Get(component interface{}) map[string]float64 {
	return GetAll()[typeOf(component)]
}

// GetAll returns counters for all measured components.
func GetAll() map[string]map[string]float64 {
	families, err := Registry.Gather()
	if err != nil {
		return nil
	}
	names := map[string]string{
		namespace + "_components":             ComponentCounter,
		namespace + "_buffers_total":          BufferCounter,
		namespace + "_bytes_total":            ByteCounter,
		namespace + "_latency_seconds":        LatencyCounter,
		namespace + "_duration_seconds_total": DurationCounter,
	}
	m := make(map[string]map[string]float64)
	for _, f := range families {
		counter, ok := names[f.GetName()]
		if !ok {
			continue
		}
		for _, metric := range f.GetMetric() {
			var component string
			for _, l := range metric.GetLabel() {
				if l.GetName() == "component" {
					component = l.GetValue()
				}
			}
			if m[component] == nil {
				m[component] = make(map[string]float64)
			}
			switch {
			case metric.GetCounter() != nil:
				m[component][counter] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				m[component][counter] = metric.GetGauge().GetValue()
			}
		}
	}
	return m
}

// Components returns sorted types of metered components.
func Components() []string {
	all := GetAll()
	result := make([]string, 0, len(all))
	for c := range all {
		result = append(result, c)
	}
	sort.Strings(result)
	return result
}

// Handler returns http handler that serves the Registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func typeOf(component interface{}) string {
	if s, ok := component.(string); ok {
		return s
	}
	rv := reflect.ValueOf(component)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	return rv.Type().String()
}
