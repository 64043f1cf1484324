package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	jobmetrics "github.com/stockroom/stockroom/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// EventsJob consumes order and stock events. It renders a localised summary for each
// event and flags products whose availability drops below the configured threshold.
// Delivery to e-mail or websocket subscribers plugs in behind Sink.
type EventsJob struct {
	Logger            *slog.Logger
	Metrics           *jobmetrics.Metrics
	Sink              func(ctx context.Context, orgID int64, summary string) error
	LowStockThreshold decimal.Decimal
	printer           *message.Printer
}

// NewEventsJob wires dependencies for the event handlers. locale is a BCP 47 tag; unknown
// tags fall back to English.
func NewEventsJob(logger *slog.Logger, metrics *jobmetrics.Metrics, locale string, lowStock decimal.Decimal) *EventsJob {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &EventsJob{
		Logger:            logger,
		Metrics:           metrics,
		LowStockThreshold: lowStock,
		printer:           message.NewPrinter(tag),
	}
}

// Handlers lists the task handlers served by the worker.
func (j *EventsJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskOrderCreated, Handler: j.HandleOrderCreated},
		{Type: TaskOrderStatusChanged, Handler: j.HandleOrderStatusChanged},
		{Type: TaskStockMoved, Handler: j.HandleStockMoved},
	}
}

// HandleOrderCreated processes TaskOrderCreated tasks.
func (j *EventsJob) HandleOrderCreated(ctx context.Context, t *asynq.Task) (err error) {
	var payload OrderCreatedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskOrderCreated)
	defer func() { err = tracker.End(err) }()

	summary := j.sprintf("Order %s placed: %d item(s), total %.2f",
		payload.OrderNumber, payload.Items, payload.FinalAmount.InexactFloat64())
	j.logger(TaskOrderCreated).Info(summary,
		slog.Int64("organisation_id", payload.OrganisationID),
		slog.Int64("order_id", payload.OrderID))
	return j.deliver(ctx, payload.OrganisationID, summary)
}

// HandleOrderStatusChanged processes TaskOrderStatusChanged tasks.
func (j *EventsJob) HandleOrderStatusChanged(ctx context.Context, t *asynq.Task) (err error) {
	var payload OrderStatusChangedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskOrderStatusChanged)
	defer func() { err = tracker.End(err) }()

	if payload.From == payload.To && payload.TrackingNumber == nil {
		return nil
	}
	summary := j.sprintf("Order %s moved from %s to %s", payload.OrderNumber, payload.From, payload.To)
	if payload.TrackingNumber != nil {
		summary += j.sprintf(" (tracking %s)", *payload.TrackingNumber)
	}
	j.logger(TaskOrderStatusChanged).Info(summary,
		slog.Int64("organisation_id", payload.OrganisationID),
		slog.Int64("order_id", payload.OrderID))
	return j.deliver(ctx, payload.OrganisationID, summary)
}

// HandleStockMoved processes TaskStockMoved tasks.
func (j *EventsJob) HandleStockMoved(ctx context.Context, t *asynq.Task) (err error) {
	var payload StockMovedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskStockMoved)
	defer func() { err = tracker.End(err) }()

	logger := j.logger(TaskStockMoved).With(
		slog.Int64("organisation_id", payload.OrganisationID),
		slog.Int64("product_id", payload.ProductID))
	logger.Info("stock moved", slog.String("type", payload.Type), slog.String("quantity_change", payload.QuantityChange.String()))

	if !j.LowStockThreshold.IsPositive() || !payload.Available.LessThan(j.LowStockThreshold) {
		return nil
	}
	j.metrics().AddLowStock(payload.Type)
	summary := j.sprintf("Product %d is low on stock: %.3f left", payload.ProductID, payload.Available.InexactFloat64())
	logger.Warn(summary)
	return j.deliver(ctx, payload.OrganisationID, summary)
}

func (j *EventsJob) deliver(ctx context.Context, orgID int64, summary string) error {
	if j.Sink == nil {
		return nil
	}
	return j.Sink(ctx, orgID, summary)
}

func (j *EventsJob) logger(task string) *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", task))
	}
	return slog.Default().With(slog.String("job", task))
}

func (j *EventsJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *EventsJob) sprintf(format string, args ...any) string {
	if j.printer == nil {
		j.printer = message.NewPrinter(language.English)
	}
	return j.printer.Sprintf(format, args...)
}
