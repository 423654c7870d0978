package otel

import (
	"context"
	"errors"
	"fmt"

	authcore "github.com/wagerline/authcore"
	"github.com/wagerline/authcore/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// metricsSource is the read side the exporter polls on every collection. Both
// *authcore.Engine and test fakes satisfy it.
type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

// histogramGauges holds the per-bucket gauges for one histogram. OTel's
// observable API has no direct histogram instrument for pull-style sources,
// so each cumulative bucket and the sample count are exported as gauges.
type histogramGauges struct {
	id      authcore.MetricID
	buckets []metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter mirrors engine counters into OTel observable instruments.
type Exporter struct {
	source       metricsSource
	registration metric.Registration

	counters     map[authcore.MetricID]metric.Int64ObservableCounter
	counterOrder []authcore.MetricID
	histograms   []histogramGauges
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter reading from the engine.
func NewOTelExporter(meter metric.Meter, engine *authcore.Engine) (*Exporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers instruments reading from a custom
// snapshot source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &Exporter{
		source:   source,
		counters: make(map[authcore.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}

	var observables []metric.Observable
	add := func(ins metric.Observable) { observables = append(observables, ins) }

	if err := exporter.buildCounters(meter, add); err != nil {
		return nil, err
	}
	if err := exporter.buildHistograms(meter, add); err != nil {
		return nil, err
	}

	dropped, err := meter.Int64ObservableCounter(
		"authcore_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = dropped
	add(dropped)

	registration, err := meter.RegisterCallback(exporter.collect, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	exporter.registration = registration

	return exporter, nil
}

func (e *Exporter) buildCounters(meter metric.Meter, add func(metric.Observable)) error {
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = ins
		e.counterOrder = append(e.counterOrder, def.ID)
		add(ins)
	}
	return nil
}

func (e *Exporter) buildHistograms(meter metric.Meter, add func(metric.Observable)) error {
	for _, def := range internaldefs.HistogramDefs {
		gauges := histogramGauges{
			id:      def.ID,
			buckets: make([]metric.Int64ObservableGauge, 0, len(internaldefs.HistogramBoundSuffix)),
		}

		for _, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			gauges.buckets = append(gauges.buckets, ins)
			add(ins)
		}

		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return fmt.Errorf("create histogram count gauge %s_count: %w", def.Name, err)
		}
		gauges.count = count
		add(count)

		e.histograms = append(e.histograms, gauges)
	}
	return nil
}

// collect is the registered callback: it takes one snapshot and publishes
// every instrument from it, so a single collection is internally consistent.
func (e *Exporter) collect(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for _, id := range e.counterOrder {
		observer.ObserveInt64(e.counters[id], int64(snapshot.Counters[id]))
	}

	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i, ins := range h.buckets {
			observer.ObserveInt64(ins, int64(cumulative[i]))
		}
		observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}

	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
