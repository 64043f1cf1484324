package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	CustomerID int64               `json:"customer_id" validate:"required,gt=0"`
	Items      []CreateOrderItem   `json:"items" validate:"required,min=1,max=500,dive"`
	Discount   decimal.NullDecimal `json:"discount" validate:"omitempty,dgte0,dscale=2"`
	Notes      *string             `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Status     *Status             `json:"status,omitempty" validate:"omitempty,oneof=PENDING PROCESSING PAID"`
	Delivery   *DeliveryInput      `json:"delivery,omitempty"`
}

type CreateOrderItem struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"dgt0,dscale=3"`
}

type DeliveryInput struct {
	Address          *string    `json:"address,omitempty" validate:"omitempty,max=500"`
	RecipientName    *string    `json:"recipient_name,omitempty" validate:"omitempty,max=200"`
	RecipientPhone   *string    `json:"recipient_phone,omitempty" validate:"omitempty,max=50"`
	ScheduledDate    *time.Time `json:"scheduled_date,omitempty"`
	PaymentMethod    *string    `json:"payment_method,omitempty" validate:"omitempty,max=50"`
	PaymentReference *string    `json:"payment_reference,omitempty" validate:"omitempty,max=200"`
}

// empty reports whether no delivery or payment field was supplied.
func (d *DeliveryInput) empty() bool {
	return d == nil || (d.Address == nil && d.RecipientName == nil && d.RecipientPhone == nil &&
		d.ScheduledDate == nil && d.PaymentMethod == nil && d.PaymentReference == nil)
}

type UpdateStatusRequest struct {
	Status           Status  `json:"status" validate:"required,oneof=PENDING PROCESSING PAID SHIPPED DELIVERED COMPLETED CANCELLED REFUNDED"`
	TrackingNumber   *string `json:"tracking_number,omitempty" validate:"omitempty,max=100"`
	PaymentReference *string `json:"payment_reference,omitempty" validate:"omitempty,max=200"`
}

type ListOrdersRequest struct {
	OrganisationID int64
	CustomerID     *int64
	Status         *Status
	Limit          int
	Offset         int
}
