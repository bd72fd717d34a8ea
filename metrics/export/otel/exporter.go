// Package otel bridges metrics snapshots onto an OpenTelemetry meter as
// observable counters, collected on each reader cycle.
package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/techbridge/authcore/metrics"
)

var (
	// ErrNilMeter is returned when no meter is supplied.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilRegistry is returned when no registry is supplied.
	ErrNilRegistry = errors.New("nil metrics registry")
)

type observed struct {
	id         metrics.ID
	instrument metric.Int64ObservableCounter
}

// Exporter registers the registry's counters on a meter and observes
// their values in a single callback.
type Exporter struct {
	registry     *metrics.Registry
	registration metric.Registration
	counters     []observed
}

// NewExporter registers every counter from [metrics.Defs] on the meter.
func NewExporter(meter metric.Meter, registry *metrics.Registry) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}

	exporter := &Exporter{
		registry: registry,
		counters: make([]observed, 0, len(metrics.Defs)),
	}
	observables := make([]metric.Observable, 0, len(metrics.Defs))

	for _, def := range metrics.Defs {
		instrument, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observed{id: def.ID, instrument: instrument})
		observables = append(observables, instrument)
	}

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.registry.Snapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot[c.id]))
		}
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
