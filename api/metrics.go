package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tasksSpanName    = "api.tasks.get"
	tasksEventName   = "tasks.request.metrics"
	tasksEventDomain = "nebula.tasks"
	tasksRoute       = "/api/tasks"
)

// taskRequestMetrics accumulates per-stage timings for the tasks read path and
// emits them once, as both a span and an observability.event log entry.
type taskRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration   time.Duration
	listDuration   time.Duration
	encodeDuration time.Duration
	tasksReturned  int
	errorStage     string
}

func newTaskRequestMetrics(ctx context.Context, logger *log.Logger) (*taskRequestMetrics, context.Context) {
	m := &taskRequestMetrics{logger: logger, start: time.Now()}
	spanCtx, span := otel.Tracer("nebula-api/api").Start(ctx, tasksSpanName)
	m.span = span
	return m, spanCtx
}

func (m *taskRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration > 0 {
		m.authDuration = duration
	}
}

func (m *taskRequestMetrics) ObserveList(duration time.Duration) {
	if duration > 0 {
		m.listDuration = duration
	}
}

func (m *taskRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration > 0 {
		m.encodeDuration = duration
	}
}

func (m *taskRequestMetrics) SetTasksReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *taskRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finalizes the span and emits the observability event. Call exactly once.
func (m *taskRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	attrs := []attribute.KeyValue{
		attribute.String("http.route", tasksRoute),
		attribute.Int64("http.status_code", int64(status)),
		attribute.Float64("nebula.tasks.total_ms", totalMs),
		attribute.Int("nebula.tasks.tasks_returned", m.tasksReturned),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("nebula.tasks.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.listDuration > 0 {
		attrs = append(attrs, attribute.Float64("nebula.tasks.list_ms", durationToMillis(m.listDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("nebula.tasks.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("nebula.tasks.error_stage", m.errorStage))
	}

	severityText, severityNumber := severityForStatus(status, err)
	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", tasksEventName),
		attribute.String("event.domain", tasksEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)
	if err != nil {
		eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if err != nil {
			m.span.SetStatus(codes.Error, err.Error())
		} else if status < http.StatusInternalServerError {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}

	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      tasksEventName,
		"event.domain":    tasksEventDomain,
		"attributes":      attrMap,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if m.span != nil && m.span.SpanContext().HasTraceID() {
		fields["trace_id"] = m.span.SpanContext().TraceID().String()
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error("observability.event")
	case "WARN":
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
