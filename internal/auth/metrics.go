// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status labels for operation metrics.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation names used for metrics, spans, and log attributes.
const (
	OpRegister       = "register"
	OpLogin          = "login"
	OpGetProfile     = "get_profile"
	OpUpdateProfile  = "update_profile"
	OpChangePassword = "change_password"
	OpLogout         = "logout"
	OpVerifyToken    = "verify_token"
	OpRecentActivity = "recent_activity"
)

// OperationsTotal counts Service operations by outcome. The status label is
// StatusSuccess or the error kind name.
// Use RegisterMetrics to register this with a Prometheus registry.
var OperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kitchenspark_auth_operations_total",
		Help: "Total number of auth operations by operation and status",
	},
	[]string{"operation", "status"},
)

// OperationDuration is the histogram for auth operation duration.
// Use RegisterMetrics to register this with a Prometheus registry.
var OperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "kitchenspark_auth_operation_duration_seconds",
		Help:    "Auth operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// ActivityAppendFailures counts activity records lost after a successful
// primary write.
// Use RegisterMetrics to register this with a Prometheus registry.
var ActivityAppendFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kitchenspark_activity_append_failures_total",
		Help: "Total number of activity log appends that failed",
	},
	[]string{"type"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(OperationsTotal)
	reg.MustRegister(OperationDuration)
	reg.MustRegister(ActivityAppendFailures)
}

func recordOperation(operation string, err error, duration time.Duration) {
	status := StatusSuccess
	if err != nil {
		status = KindOf(err).String()
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func recordActivityAppendFailure(activityType ActivityType) {
	ActivityAppendFailures.WithLabelValues(string(activityType)).Inc()
}
