package stats

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func MilisecondsElapsed(from time.Time) float64 {
	return float64(time.Since(from)) / float64(time.Millisecond)
}

var (
	prometheusMetricsFactory promauto.Factory            = promauto.With(prometheus.DefaultRegisterer)
	gauges                   map[string]prometheus.Gauge = map[string]prometheus.Gauge{
		"bufferTail": prometheusMetricsFactory.NewGauge(prometheus.GaugeOpts{
			Name: "logbuffer_tail_bytes",
			Help: "The published tail of the term buffer.",
		}),
	}
	gaugeVecs map[string]*prometheus.GaugeVec = map[string]*prometheus.GaugeVec{
		"consumerOffset": prometheusMetricsFactory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "logbuffer_consumer_offset_bytes",
			Help: "The offset of the consumer cursor in the term buffer.",
		}, []string{"consumer"}),
		"senderPosition": prometheusMetricsFactory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "logbuffer_sender_position_bytes",
			Help: "The position of the sender in the term buffer.",
		}, []string{"sender"}),
	}
	counterVecs map[string]*prometheus.CounterVec = map[string]*prometheus.CounterVec{
		"consumerFrames": prometheusMetricsFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "logbuffer_consumer_frames_total",
			Help: "The number of data frames delivered to consumers.",
		}, []string{"consumer"}),
		"senderBytes": prometheusMetricsFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "logbuffer_sender_bytes_total",
			Help: "The number of bytes written by senders, padding excluded.",
		}, []string{"sender"}),
		"appenderResults": prometheusMetricsFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "logbuffer_appender_results_total",
			Help: "The outcomes of claims made on the term buffer.",
		}, []string{"result"}),
	}
	histograms map[string]prometheus.Histogram = map[string]prometheus.Histogram{
		"batchProcessingTime": prometheusMetricsFactory.NewHistogram(prometheus.HistogramOpts{
			Name:    "logbuffer_batch_processing_time_milliseconds",
			Help:    "The time elapsed processing a consumer batch.",
			Buckets: []float64{0.1, 0.5, 1, 5, 50, 100},
		}),
	}
)

func CounterVec(name string) *prometheus.CounterVec {
	return counterVecs[name]
}

func GaugeVec(name string) *prometheus.GaugeVec {
	return gaugeVecs[name]
}

func Histogram(name string) prometheus.Histogram {
	return histograms[name]
}
func Gauge(name string) prometheus.Gauge {
	return gauges[name]
}

func ListenAndServe(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux)
}
