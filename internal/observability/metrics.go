package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain counters for the isolation and quota layer. Labels are fixed,
// low-cardinality result names; tenant ids are never used as labels.
var (
	// WidgetMessages counts widget chat attempts by outcome
	// (ok, replay, quota_exceeded, subscription_inactive, origin_denied, disabled, not_found, error).
	WidgetMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_messages_total",
			Help: "Inbound widget messages by outcome.",
		},
		[]string{"result"},
	)

	// OriginChecks counts widget origin validations by outcome.
	OriginChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_origin_checks_total",
			Help: "Widget origin validations by outcome.",
		},
		[]string{"result"},
	)

	// UsageAdmissions counts usage admission decisions.
	UsageAdmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_admissions_total",
			Help: "Usage accounting decisions by outcome.",
		},
		[]string{"result"},
	)

	// TenantIsolationDenials counts client requests that addressed another tenant.
	TenantIsolationDenials = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_isolation_denials_total",
			Help: "Requests rejected by the tenant-match check.",
		},
	)
)

func init() {
	prometheus.MustRegister(WidgetMessages, OriginChecks, UsageAdmissions, TenantIsolationDenials)
}
