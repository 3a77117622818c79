package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/aretw0/bifrost/pkg/channel"
	"github.com/aretw0/bifrost/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bifrost"

// Metrics holds the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	sends         *prometheus.CounterVec
	sendErrors    *prometheus.CounterVec
	remoteChanges *prometheus.CounterVec
	queued        prometheus.Gauge
	hostWrites    *prometheus.CounterVec
	hostErrors    *prometheus.CounterVec
	hostLatency   prometheus.Histogram
}

// New creates Metrics registered on a fresh registry, with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "sends_total",
			Help:      "Writes delivered to the host, by key.",
		}, []string{"key"}),
		sendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "send_errors_total",
			Help:      "Failed write deliveries, by key.",
		}, []string{"key"}),
		remoteChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "remote_changes_total",
			Help:      "Host changes applied by the client, by key and whether they echoed its own write.",
		}, []string{"key", "own"}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "outbox_depth_at_enqueue",
			Help:      "Outbox depth right after the latest local write was queued.",
		}),
		hostWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "writes_total",
			Help:      "Updates applied by the host store, by key.",
		}, []string{"key"}),
		hostErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "write_errors_total",
			Help:      "Updates the host store failed to apply, by key.",
		}, []string{"key"}),
		hostLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "write_duration_seconds",
			Help:      "Time to apply one update on the host store.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sends, m.sendErrors, m.remoteChanges, m.queued,
		m.hostWrites, m.hostErrors, m.hostLatency,
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ChannelHooks returns hooks recording a channel client's traffic.
func (m *Metrics) ChannelHooks() channel.Hooks {
	return channel.Hooks{
		OnSend: func(key string) {
			m.sends.WithLabelValues(key).Inc()
		},
		OnSendError: func(key string, err error) {
			m.sendErrors.WithLabelValues(key).Inc()
		},
		OnQueued: func(depth int) {
			m.queued.Set(float64(depth))
		},
		OnRemoteChange: func(key string, own bool) {
			label := "false"
			if own {
				label = "true"
			}
			m.remoteChanges.WithLabelValues(key, label).Inc()
		},
	}
}

// TrackOutbox exports depth as the live outbox size of one client.
// Only one client per Metrics can be tracked.
func (m *Metrics) TrackOutbox(depth func() int) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "channel",
		Name:      "outbox_depth",
		Help:      "Writes waiting to be sent.",
	}, func() float64 { return float64(depth()) }))
}

// InstrumentStore wraps store so every Put is counted and timed.
func (m *Metrics) InstrumentStore(store ports.HostStore) ports.HostStore {
	return &instrumentedStore{HostStore: store, m: m}
}

type instrumentedStore struct {
	ports.HostStore
	m *Metrics
}

func (s *instrumentedStore) Put(ctx context.Context, u ports.Update) (ports.Update, error) {
	start := time.Now()
	applied, err := s.HostStore.Put(ctx, u)
	s.m.hostLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.m.hostErrors.WithLabelValues(u.Key).Inc()
		return applied, err
	}
	s.m.hostWrites.WithLabelValues(u.Key).Inc()
	return applied, nil
}
