package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_transaction_requests_total",
		Help: "Transaction requests created",
	}, []string{"chain"})

	CreateRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_transaction_create_rejected_total",
		Help: "Transaction creation rejections by reason",
	}, []string{"reason"})

	ApprovalEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "custody_approval_events_total",
		Help: "Approval events processed",
	})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_submissions_total",
		Help: "Signing and submission attempts by outcome",
	}, []string{"chain", "outcome"})

	SubmissionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "custody_submission_duration_seconds",
		Help:    "Time spent signing and submitting a payment",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10},
	}, []string{"chain"})
)
