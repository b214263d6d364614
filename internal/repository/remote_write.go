package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	models "github.com/RoGogDBD/metrics-tracker/internal/model"
	"github.com/eryajf/promwrite"
)

// RemoteWriteObserver отправляет снимки в Prometheus remote write.
type RemoteWriteObserver struct {
	client    *promwrite.Client
	namespace string
}

// NewRemoteWriteObserver создаёт наблюдателя для endpoint.
//
// namespace — префикс имён серий, например "tracker".
func NewRemoteWriteObserver(endpoint, namespace string) *RemoteWriteObserver {
	return &RemoteWriteObserver{
		client:    promwrite.NewClient(endpoint),
		namespace: namespace,
	}
}

// OnSnapshot конвертирует снимок во временные ряды и отправляет их.
func (r *RemoteWriteObserver) OnSnapshot(ctx context.Context, snapshot models.Snapshot) error {
	series := r.convertToTimeSeries(snapshot)
	if len(series) == 0 {
		return nil
	}
	if _, err := r.client.Write(ctx, &promwrite.WriteRequest{TimeSeries: series}); err != nil {
		return fmt.Errorf("remote write snapshot %d: %w", snapshot.Sequence, err)
	}
	return nil
}

func (r *RemoteWriteObserver) convertToTimeSeries(snapshot models.Snapshot) []promwrite.TimeSeries {
	out := make([]promwrite.TimeSeries, 0, len(snapshot.Counters)+len(snapshot.Metrics)+len(snapshot.DurationMetrics))
	add := func(name, typ string, value float64) {
		out = append(out, promwrite.TimeSeries{
			Labels: []promwrite.Label{
				{Name: "__name__", Value: r.metricName(name, typ)},
				{Name: "source", Value: snapshot.Source},
				{Name: "type", Value: typ},
			},
			Sample: promwrite.Sample{Time: snapshot.Timestamp, Value: value},
		})
	}
	for name, v := range snapshot.Counters {
		add(name, models.Counter, float64(v))
	}
	for name, v := range snapshot.Metrics {
		add(name, models.Gauge, v)
	}
	for name, v := range snapshot.DurationMetrics {
		add(name, models.Duration, v.Seconds())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Labels[0].Value < out[j].Labels[0].Value })
	return out
}

// metricName строит имя серии в допустимом для Prometheus алфавите.
func (r *RemoteWriteObserver) metricName(name, typ string) string {
	var b strings.Builder
	if r.namespace != "" {
		b.WriteString(sanitizeMetricName(r.namespace))
		b.WriteByte('_')
	}
	b.WriteString(sanitizeMetricName(name))
	if typ == models.Duration {
		b.WriteString("_seconds")
	}
	return b.String()
}

func sanitizeMetricName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			return r
		default:
			return '_'
		}
	}, s)
}
