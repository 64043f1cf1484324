package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOrderCreated announces a committed order.
	TaskOrderCreated = "order:created"
	// TaskOrderStatusChanged announces a committed status transition.
	TaskOrderStatusChanged = "order:status_changed"
	// TaskStockMoved announces a manual receipt or adjustment.
	TaskStockMoved = "inventory:stock_moved"
)

// OrderCreatedPayload carries the order header needed for fan-out.
type OrderCreatedPayload struct {
	OrganisationID int64           `json:"organisation_id"`
	OrderID        int64           `json:"order_id"`
	OrderNumber    string          `json:"order_number"`
	CustomerID     int64           `json:"customer_id"`
	Status         string          `json:"status"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	Items          int             `json:"items"`
}

// OrderStatusChangedPayload carries one transition.
type OrderStatusChangedPayload struct {
	OrganisationID int64   `json:"organisation_id"`
	OrderID        int64   `json:"order_id"`
	OrderNumber    string  `json:"order_number"`
	From           string  `json:"from"`
	To             string  `json:"to"`
	TrackingNumber *string `json:"tracking_number,omitempty"`
}

// StockMovedPayload carries a ledger movement and the availability after it.
type StockMovedPayload struct {
	OrganisationID int64           `json:"organisation_id"`
	ProductID      int64           `json:"product_id"`
	Type           string          `json:"type"`
	QuantityChange decimal.Decimal `json:"quantity_change"`
	Available      decimal.Decimal `json:"available"`
}

// NewOrderCreatedTask constructs an Asynq task.
func NewOrderCreatedTask(payload OrderCreatedPayload) (*asynq.Task, error) {
	return newTask(TaskOrderCreated, payload)
}

// NewOrderStatusChangedTask constructs an Asynq task.
func NewOrderStatusChangedTask(payload OrderStatusChangedPayload) (*asynq.Task, error) {
	return newTask(TaskOrderStatusChanged, payload)
}

// NewStockMovedTask constructs an Asynq task.
func NewStockMovedTask(payload StockMovedPayload) (*asynq.Task, error) {
	return newTask(TaskStockMoved, payload)
}

func newTask(taskType string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data, asynq.MaxRetry(5)), nil
}
