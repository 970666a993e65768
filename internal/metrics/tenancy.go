// Package metrics holds the tenancy-specific Prometheus collectors.
// HTTP request metrics come from go-shared/metrics; these count resolver and
// write-path outcomes that request metrics cannot see.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Header rejection reasons
const (
	ReasonMalformedID     = "malformed_id"
	ReasonUnknownTenant   = "unknown_tenant"
	ReasonInactiveTenant  = "inactive_tenant"
	ReasonUnauthenticated = "unauthenticated"
	ReasonNoMembership    = "no_membership"
	ReasonLookupError     = "lookup_error"
)

// TenancyMetrics counts tenant resolution and assignment outcomes.
// A nil *TenancyMetrics is valid and records nothing.
type TenancyMetrics struct {
	resolutions        *prometheus.CounterVec
	headerRejections   *prometheus.CounterVec
	assignmentFailures prometheus.Counter
	trialsDeactivated  prometheus.Counter
}

// NewTenancyMetrics creates the collectors and registers them with reg.
// Passing nil skips registration.
func NewTenancyMetrics(reg prometheus.Registerer) *TenancyMetrics {
	m := &TenancyMetrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "projectmeats",
			Subsystem: "tenancy",
			Name:      "resolutions_total",
			Help:      "Tenant resolutions by the step that selected the tenant",
		}, []string{"source"}),
		headerRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "projectmeats",
			Subsystem: "tenancy",
			Name:      "header_rejections_total",
			Help:      "Tenant header values that were ignored, by reason",
		}, []string{"reason"}),
		assignmentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "projectmeats",
			Subsystem: "tenancy",
			Name:      "assignment_failures_total",
			Help:      "Writes rejected because no tenant could be assigned",
		}),
		trialsDeactivated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "projectmeats",
			Subsystem: "tenancy",
			Name:      "trials_deactivated_total",
			Help:      "Trial tenants deactivated by the expiry sweep",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.resolutions, m.headerRejections, m.assignmentFailures, m.trialsDeactivated)
	}
	return m
}

// ObserveResolution counts one resolution by source
func (m *TenancyMetrics) ObserveResolution(source string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(source).Inc()
}

// ObserveHeaderRejection counts one ignored tenant header
func (m *TenancyMetrics) ObserveHeaderRejection(reason string) {
	if m == nil {
		return
	}
	m.headerRejections.WithLabelValues(reason).Inc()
}

// ObserveAssignmentFailure counts one rejected write
func (m *TenancyMetrics) ObserveAssignmentFailure() {
	if m == nil {
		return
	}
	m.assignmentFailures.Inc()
}

// ObserveTrialsDeactivated adds n sweep deactivations
func (m *TenancyMetrics) ObserveTrialsDeactivated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.trialsDeactivated.Add(float64(n))
}
