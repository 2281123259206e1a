package ratelimit

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	checks   *prometheus.CounterVec
	failOpen *prometheus.CounterVec
}

func newMetrics(r prometheus.Registerer) *metrics {
	return &metrics{
		checks: registerCounterVec(r, prometheus.CounterOpts{
			Name: "ratelimit_checks_total",
			Help: "Rate limit checks partitioned by limiter and decision.",
		}, []string{"limiter", "allowed"}),
		failOpen: registerCounterVec(r, prometheus.CounterOpts{
			Name: "ratelimit_fail_open_total",
			Help: "Checks allowed because the counter store failed or timed out.",
		}, []string{"limiter"}),
	}
}

func registerCounterVec(r prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(opts, labels)

	if err := r.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}

		panic(err)
	}

	return vec
}

func (m *metrics) observe(limiter string, allowed bool) {
	if m == nil {
		return
	}

	m.checks.WithLabelValues(limiter, strconv.FormatBool(allowed)).Inc()
}

func (m *metrics) observeFailOpen(limiter string) {
	if m == nil {
		return
	}

	m.failOpen.WithLabelValues(limiter).Inc()
}
