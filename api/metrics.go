package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cobraverifier_verifications_total",
		Help: "Number of verified histories by result",
	}, []string{"result"})

	rejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cobraverifier_rejected_histories_total",
		Help: "Number of histories rejected as malformed",
	})

	violationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cobraverifier_violations_total",
		Help: "Number of reported violations by anomaly",
	}, []string{"anomaly"})

	transactionsPerHistory = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cobraverifier_history_transactions",
		Help:    "Number of transactions in verified histories",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	verifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cobraverifier_verify_duration_seconds",
		Help:    "Duration of verify requests",
		Buckets: prometheus.DefBuckets,
	})
)
