// Package metrics exposes Prometheus counters and gauges for the follower
// feed, the platform client, alert delivery and websocket clients.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/followbell/followbell/pkg/types"
	"github.com/followbell/followbell/server/internal/feed"
)

const namespace = "followbell"

var (
	Snapshots = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_total",
		Help:      "Total follower snapshots served",
	})
	UpstreamFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_fetches_total",
		Help:      "Upstream follower fetch attempts by result",
	}, []string{"result"})
	UpstreamRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_retries_total",
		Help:      "Retried upstream requests by endpoint",
	}, []string{"endpoint"})
	NewFollowers = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "new_followers_total",
		Help:      "Newly detected real followers",
	})
	TestEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "test_events_total",
		Help:      "Injected test followers",
	})
	Evicted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evicted_total",
		Help:      "Queue entries evicted after expiry",
	}, []string{"queue"})
	AlertDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alert_deliveries_total",
		Help:      "Webhook deliveries by target type and result",
	}, []string{"type", "result"})
	WSClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_clients",
		Help:      "Connected websocket clients",
	})
)

func init() {
	prometheus.MustRegister(Snapshots, UpstreamFetches, UpstreamRetries, NewFollowers,
		TestEvents, Evicted, AlertDeliveries, WSClients)
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler { return promhttp.Handler() }

// IncUpstreamRetry increments the retry counter for an endpoint.
func IncUpstreamRetry(endpoint string) { UpstreamRetries.WithLabelValues(endpoint).Inc() }

// IncAlertDelivery records one webhook delivery outcome.
func IncAlertDelivery(typ string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	AlertDeliveries.WithLabelValues(typ, result).Inc()
}

// RegisterEngine registers gauges that read the engine's set and queue sizes
// on every scrape. Registering twice is a no-op.
func RegisterEngine(stats func() feed.Stats) error {
	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "known_followers",
			Help: "Followers currently in the known set",
		}, func() float64 { return float64(stats().Known) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_depth",
			Help: "Entries in the event queue", ConstLabels: prometheus.Labels{"queue": feed.QueueReal},
		}, func() float64 { return float64(stats().RealQueued) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_depth",
			Help: "Entries in the event queue", ConstLabels: prometheus.Labels{"queue": feed.QueueTest},
		}, func() float64 { return float64(stats().TestQueued) }),
	}
	for _, g := range gauges {
		if err := prometheus.Register(g); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return fmt.Errorf("metrics: register engine gauges: %w", err)
		}
	}
	return nil
}

// Observer records feed engine events. It implements feed.Observer.
type Observer struct{}

func (Observer) OnFetch(err error) {
	Snapshots.Inc()
	switch {
	case err == nil:
		UpstreamFetches.WithLabelValues("ok").Inc()
	case errors.Is(err, feed.ErrNoSession):
		UpstreamFetches.WithLabelValues("no_session").Inc()
	default:
		UpstreamFetches.WithLabelValues("error").Inc()
	}
}

func (Observer) OnNewFollower(types.Follower)  { NewFollowers.Inc() }
func (Observer) OnTestInjected(types.Follower) { TestEvents.Inc() }
func (Observer) OnEvict(queue string, n int)   { Evicted.WithLabelValues(queue).Add(float64(n)) }

// Stats flattens every followbell_* series gathered from g into a map keyed
// by metric name plus labels, e.g. `followbell_evicted_total{queue="test"}`.
// Histograms and summaries are skipped.
func Stats(g prometheus.Gatherer) (map[string]float64, error) {
	mfs, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("metrics: gather: %w", err)
	}

	out := make(map[string]float64)
	for _, mf := range mfs {
		name := mf.GetName()
		if !strings.HasPrefix(name, namespace+"_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			var v float64
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				v = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				v = m.GetGauge().GetValue()
			case dto.MetricType_UNTYPED:
				v = m.GetUntyped().GetValue()
			default:
				continue
			}
			out[seriesKey(name, m.GetLabel())] = v
		}
	}
	return out, nil
}

func seriesKey(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}
