package otel

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/techbridge/authcore/metrics"
)

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("authcore-test")

	registry := metrics.NewRegistry()
	registry.Inc(metrics.LoginSuccess)
	registry.Inc(metrics.LoginSuccess)
	registry.Inc(metrics.LoginSuccess)

	exporter, err := NewExporter(meter, registry)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer exporter.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	var found bool
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "authcore_login_success_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) != 1 {
				t.Fatalf("unexpected data shape %+v", m.Data)
			}
			if got := sum.DataPoints[0].Value; got != 3 {
				t.Fatalf("expected 3, got %d", got)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("login success counter not collected")
	}
}

func TestExporterRequiresMeterAndRegistry(t *testing.T) {
	if _, err := NewExporter(nil, metrics.NewRegistry()); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}

	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("authcore-test")
	if _, err := NewExporter(meter, nil); err != ErrNilRegistry {
		t.Fatalf("expected ErrNilRegistry, got %v", err)
	}
}
