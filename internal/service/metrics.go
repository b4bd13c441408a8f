package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docconvert/internal/converter"
	"docconvert/internal/model"
)

// uriFormat labels ConvertURI calls in metrics.
const uriFormat = "uri"

// ConversionMetrics counts and times conversions by format and result status.
type ConversionMetrics struct {
	conversions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewConversionMetrics registers conversions_total and conversion_duration_seconds on reg.
func NewConversionMetrics(reg prometheus.Registerer) (*ConversionMetrics, error) {
	m := &ConversionMetrics{
		conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversions_total",
				Help: "Total number of conversions by input format and result status.",
			},
			[]string{"format", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conversion_duration_seconds",
				Help:    "Time spent converting one input.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"format"},
		),
	}
	for _, c := range []prometheus.Collector{m.conversions, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Instrument wraps conv so every call is measured and traced.
func (m *ConversionMetrics) Instrument(conv Converter) Converter {
	return &instrumentedConverter{
		next:    conv,
		metrics: m,
		tracer:  otel.Tracer("docconvert/internal/converter"),
	}
}

func (m *ConversionMetrics) observe(format string, start time.Time, res model.ConversionResult) {
	m.conversions.WithLabelValues(format, string(res.Status)).Inc()
	m.duration.WithLabelValues(format).Observe(time.Since(start).Seconds())
}

type instrumentedConverter struct {
	next    Converter
	metrics *ConversionMetrics
	tracer  trace.Tracer
}

func (c *instrumentedConverter) Convert(ctx context.Context, path string) model.ConversionResult {
	format := string(converter.Detect(path))
	return c.run(ctx, "convert "+format, format, func(ctx context.Context) model.ConversionResult {
		return c.next.Convert(ctx, path)
	})
}

func (c *instrumentedConverter) ConvertURI(ctx context.Context, uri string) model.ConversionResult {
	return c.run(ctx, "convert uri", uriFormat, func(ctx context.Context) model.ConversionResult {
		return c.next.ConvertURI(ctx, uri)
	})
}

func (c *instrumentedConverter) run(ctx context.Context, name, format string, fn func(context.Context) model.ConversionResult) model.ConversionResult {
	ctx, span := c.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("format", format)))
	defer span.End()

	start := time.Now()
	res := fn(ctx)
	c.metrics.observe(format, start, res)
	span.SetAttributes(attribute.String("result.status", string(res.Status)))
	return res
}
