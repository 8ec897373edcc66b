package observability

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// instruments creates instruments on the service meter and remembers the
// first failure, so constructors can declare every instrument and check once.
type instruments struct {
	meter metric.Meter
	err   error
}

func newInstruments() *instruments {
	return &instruments{meter: otel.Meter(meterName)}
}

func (b *instruments) fail(name string, err error) {
	if b.err == nil && err != nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
}

func (b *instruments) counter(name, description string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(description))
	b.fail(name, err)
	return c
}

func (b *instruments) gauge(name, description string) metric.Int64UpDownCounter {
	g, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(description))
	b.fail(name, err)
	return g
}

// millis is a histogram of durations in milliseconds.
func (b *instruments) millis(name, description string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(description), metric.WithUnit("ms"))
	b.fail(name, err)
	return h
}

func (b *instruments) sizes(name, description string) metric.Int64Histogram {
	h, err := b.meter.Int64Histogram(name, metric.WithDescription(description))
	b.fail(name, err)
	return h
}
