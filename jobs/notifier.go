package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/observability"
	"github.com/stockroom/stockroom/internal/sales/orders"
)

// Enqueuer is the subset of *asynq.Client used to publish tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// CacheBumper invalidates derived per-organisation data.
type CacheBumper interface {
	Bump(ctx context.Context, orgID int64) error
}

// Notifier publishes committed order and stock events. It invalidates the report cache
// first so readers never see a summary older than an announced event.
type Notifier struct {
	queue   Enqueuer
	cache   CacheBumper
	metrics *observability.OrderMetrics
}

var (
	_ orders.Notifier        = (*Notifier)(nil)
	_ inventory.EventHandler = (*Notifier)(nil)
)

// NewNotifier wires a Notifier. Either dependency may be nil.
func NewNotifier(queue Enqueuer, cache CacheBumper, metrics *observability.OrderMetrics) *Notifier {
	return &Notifier{queue: queue, cache: cache, metrics: metrics}
}

func (n *Notifier) OrderCreated(ctx context.Context, order orders.Order) error {
	task, err := NewOrderCreatedTask(OrderCreatedPayload{
		OrganisationID: order.OrganisationID,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		CustomerID:     order.CustomerID,
		Status:         string(order.Status),
		FinalAmount:    order.FinalAmount,
		Items:          len(order.Items),
	})
	if err != nil {
		return err
	}
	return n.publish(ctx, order.OrganisationID, task)
}

func (n *Notifier) OrderStatusChanged(ctx context.Context, order orders.Order, previous orders.Status) error {
	payload := OrderStatusChangedPayload{
		OrganisationID: order.OrganisationID,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		From:           string(previous),
		To:             string(order.Status),
	}
	if order.Delivery != nil {
		payload.TrackingNumber = order.Delivery.TrackingNumber
	}
	task, err := NewOrderStatusChangedTask(payload)
	if err != nil {
		return err
	}
	return n.publish(ctx, order.OrganisationID, task)
}

func (n *Notifier) HandleStockMoved(ctx context.Context, evt inventory.StockMovedEvent) error {
	task, err := NewStockMovedTask(StockMovedPayload{
		OrganisationID: evt.OrganisationID,
		ProductID:      evt.ProductID,
		Type:           string(evt.Type),
		QuantityChange: evt.QuantityChange,
		Available:      evt.Available,
	})
	if err != nil {
		return err
	}
	return n.publish(ctx, evt.OrganisationID, task)
}

func (n *Notifier) publish(ctx context.Context, orgID int64, task *asynq.Task) error {
	var errs []error
	if n.cache != nil {
		if err := n.cache.Bump(ctx, orgID); err != nil {
			errs = append(errs, err)
		}
	}
	if n.queue != nil {
		_, err := n.queue.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
		n.metrics.ObserveJob(task.Type(), err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
