package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusPaid       Status = "PAID"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

// transitions lists the statuses reachable from each status. Re-applying the current
// status is always allowed so tracking and payment fields can be updated on their own.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusPaid, StatusCancelled},
	StatusProcessing: {StatusPaid, StatusShipped, StatusCancelled},
	StatusPaid:       {StatusShipped, StatusCompleted, StatusCancelled, StatusRefunded},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusCompleted, StatusRefunded},
	StatusCompleted:  {StatusRefunded},
	StatusCancelled:  nil,
	StatusRefunded:   nil,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether an order in status from may move to status to.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Order struct {
	ID             int64           `json:"id"`
	OrganisationID int64           `json:"organisation_id"`
	CustomerID     int64           `json:"customer_id"`
	OrderNumber    string          `json:"order_number"`
	Status         Status          `json:"status"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	Notes          *string         `json:"notes,omitempty"`
	CreatedBy      int64           `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Items          []OrderItem     `json:"items,omitempty"`
	Delivery       *Delivery       `json:"delivery,omitempty"`
}

type OrderItem struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	ProductID       int64           `json:"product_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPriceAtSale decimal.Decimal `json:"unit_price_at_sale"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	LoyaltyPoints   int             `json:"loyalty_points"`
}

// Delivery holds optional shipping and payment metadata, one per order.
type Delivery struct {
	OrderID          int64      `json:"order_id"`
	Address          *string    `json:"address,omitempty"`
	RecipientName    *string    `json:"recipient_name,omitempty"`
	RecipientPhone   *string    `json:"recipient_phone,omitempty"`
	ScheduledDate    *time.Time `json:"scheduled_date,omitempty"`
	TrackingNumber   *string    `json:"tracking_number,omitempty"`
	PaymentMethod    *string    `json:"payment_method,omitempty"`
	PaymentReference *string    `json:"payment_reference,omitempty"`
}
