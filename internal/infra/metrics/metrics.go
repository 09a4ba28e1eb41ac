package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "route_survey"

// Admission results.
const (
	AdmissionAdmitted = "admitted"
	AdmissionFull     = "full"
	AdmissionInactive = "inactive"
	AdmissionRepeated = "repeated"
	AdmissionError    = "error"
)

type Metrics struct {
	Admissions   *prometheus.CounterVec
	Submissions  *prometheus.CounterVec
	Unreconciled prometheus.Counter
	AdmitLatency prometheus.Histogram
}

// New регистрирует метрики в reg. nil — глобальный регистр.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Quota admission attempts by result.",
		}, []string{"result"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Route completion submissions by outcome.",
		}, []string{"outcome"}),
		Unreconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unreconciled_submissions_total",
			Help:      "Submissions persisted without a resolved quota increment.",
		}),
		AdmitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admission_duration_seconds",
			Help:      "Latency of the atomic admission call.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.Admissions, m.Submissions, m.Unreconciled, m.AdmitLatency)
	return m
}

// Nop возвращает метрики на отдельном регистре.
func Nop() *Metrics { return New(prometheus.NewRegistry()) }
