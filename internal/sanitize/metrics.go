package sanitize

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/dativo-io/scrub/internal/sanitize"

var (
	ticketsCounter  metric.Int64Counter
	fieldsCounter   metric.Int64Counter
	spansCounter    metric.Int64Counter
	nerFailCounter  metric.Int64Counter
	metricsOnce     sync.Once
)

func initMetrics() {
	meter := otel.Meter(meterName)

	var err error
	ticketsCounter, err = meter.Int64Counter("scrub.tickets.sanitized",
		metric.WithDescription("Tickets sanitized successfully"))
	if err != nil {
		ticketsCounter = nil
	}
	fieldsCounter, err = meter.Int64Counter("scrub.fields.sanitized",
		metric.WithDescription("Text fields processed"))
	if err != nil {
		fieldsCounter = nil
	}
	spansCounter, err = meter.Int64Counter("scrub.spans.redacted",
		metric.WithDescription("Spans rewritten, by kind"))
	if err != nil {
		spansCounter = nil
	}
	nerFailCounter, err = meter.Int64Counter("scrub.ner.failures",
		metric.WithDescription("NER annotation failures, by backend"))
	if err != nil {
		nerFailCounter = nil
	}
}

func recordTicketMetrics(ctx context.Context, report *Report) {
	metricsOnce.Do(initMetrics)
	if ticketsCounter != nil {
		ticketsCounter.Add(ctx, 1)
	}
	if fieldsCounter != nil {
		fieldsCounter.Add(ctx, int64(report.Fields))
	}
	if spansCounter != nil {
		for kind, n := range report.Spans {
			spansCounter.Add(ctx, int64(n),
				metric.WithAttributes(attribute.String("kind", string(kind))))
		}
	}
}

func recordNERFailure(ctx context.Context, backend string) {
	metricsOnce.Do(initMetrics)
	if nerFailCounter != nil {
		nerFailCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String("backend", backend)))
	}
}
