package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/governor"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Proposal lifecycle metrics
	ProposalsCreatedTotal   metric.Int64Counter
	TransitionsTotal        metric.Int64Counter
	TransitionFailuresTotal metric.Int64Counter
	TransitionDuration      metric.Float64Histogram
	ConflictRetriesTotal    metric.Int64Counter

	// Hierarchy metrics
	HierarchyMutationsTotal metric.Int64Counter
	MutationsAppliedTotal   metric.Int64Counter
	MutationApplyErrors     metric.Int64Counter

	// Meeting metrics
	AgendaItemsSettledTotal metric.Int64Counter
	OpenMeetings            metric.Int64UpDownCounter

	// Notification metrics
	NotificationsPublishedTotal metric.Int64Counter
	NotificationsDroppedTotal   metric.Int64Counter
	SinkErrorsTotal             metric.Int64Counter
	SinkBatchDuration           metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.ProposalsCreatedTotal, _ = meter.Int64Counter(
		"governor.proposals.created.total",
		metric.WithDescription("Total number of proposals created"),
		metric.WithUnit("{proposal}"),
	)

	m.TransitionsTotal, _ = meter.Int64Counter(
		"governor.proposals.transitions.total",
		metric.WithDescription("Total number of decision events appended"),
		metric.WithUnit("{event}"),
	)

	m.TransitionFailuresTotal, _ = meter.Int64Counter(
		"governor.proposals.transition_failures.total",
		metric.WithDescription("Total number of rejected proposal operations by error kind"),
		metric.WithUnit("{error}"),
	)

	m.TransitionDuration, _ = meter.Float64Histogram(
		"governor.proposals.transition.duration",
		metric.WithDescription("Duration of proposal operations including conflict retries"),
		metric.WithUnit("ms"),
	)

	m.ConflictRetriesTotal, _ = meter.Int64Counter(
		"governor.conflict_retries.total",
		metric.WithDescription("Total number of retries after optimistic version conflicts"),
		metric.WithUnit("{retry}"),
	)

	m.HierarchyMutationsTotal, _ = meter.Int64Counter(
		"governor.hierarchy.mutations.total",
		metric.WithDescription("Total number of committed hierarchy transactions"),
		metric.WithUnit("{mutation}"),
	)

	m.MutationsAppliedTotal, _ = meter.Int64Counter(
		"governor.applier.applied.total",
		metric.WithDescription("Total number of approved proposals applied to the hierarchy"),
		metric.WithUnit("{proposal}"),
	)

	m.MutationApplyErrors, _ = meter.Int64Counter(
		"governor.applier.errors.total",
		metric.WithDescription("Total number of failed proposal applications"),
		metric.WithUnit("{error}"),
	)

	m.AgendaItemsSettledTotal, _ = meter.Int64Counter(
		"governor.meetings.agenda_items.settled.total",
		metric.WithDescription("Total number of agenda items completed or deferred"),
		metric.WithUnit("{item}"),
	)

	m.OpenMeetings, _ = meter.Int64UpDownCounter(
		"governor.meetings.in_progress",
		metric.WithDescription("Number of meetings in progress"),
		metric.WithUnit("{meeting}"),
	)

	m.NotificationsPublishedTotal, _ = meter.Int64Counter(
		"governor.notifications.published.total",
		metric.WithDescription("Total number of notifications delivered to a sink"),
		metric.WithUnit("{notification}"),
	)

	m.NotificationsDroppedTotal, _ = meter.Int64Counter(
		"governor.notifications.dropped.total",
		metric.WithDescription("Total number of notifications dropped due to overflow or sink errors"),
		metric.WithUnit("{notification}"),
	)

	m.SinkErrorsTotal, _ = meter.Int64Counter(
		"governor.notifications.sink_errors.total",
		metric.WithDescription("Total number of failed sink deliveries"),
		metric.WithUnit("{error}"),
	)

	m.SinkBatchDuration, _ = meter.Float64Histogram(
		"governor.notifications.batch.duration",
		metric.WithDescription("Duration of sink batch deliveries"),
		metric.WithUnit("ms"),
	)

	return m
}
