package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/masterdata/products"
	"github.com/stockroom/stockroom/internal/observability"
	"github.com/stockroom/stockroom/internal/platform/db"
	"github.com/stockroom/stockroom/internal/platform/validate"
	"github.com/stockroom/stockroom/internal/rbac"
	"github.com/stockroom/stockroom/internal/sales/customers"
	salesshared "github.com/stockroom/stockroom/internal/sales/shared"
	"github.com/stockroom/stockroom/internal/shared"
)

// IdempotencyModule scopes order idempotency keys.
const IdempotencyModule = "orders"

// createAttempts bounds how often a deadlocked or serialization-failed order
// transaction is run.
const createAttempts = 2

// Authorizer resolves the calling actor for an organisation.
type Authorizer interface {
	Authorize(ctx context.Context, organisationID int64, roles ...rbac.Role) (rbac.Actor, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort records client supplied request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Notifier is called after commit. Failures are logged and never undo the order.
type Notifier interface {
	OrderCreated(ctx context.Context, order Order) error
	OrderStatusChanged(ctx context.Context, order Order, previous Status) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// TxTimeout bounds the order transaction including lock waits. Zero means no bound.
	TxTimeout time.Duration
}

type Service struct {
	repo        Repository
	auth        Authorizer
	audit       AuditPort
	idempotency IdempotencyPort
	notifier    Notifier
	metrics     *observability.OrderMetrics
	logger      *slog.Logger
	validator   *validator.Validate
	cfg         ServiceConfig
	now         func() time.Time
}

// Option customises Service.
type Option func(*Service)

func WithAudit(audit AuditPort) Option { return func(s *Service) { s.audit = audit } }

func WithIdempotency(store IdempotencyPort) Option {
	return func(s *Service) { s.idempotency = store }
}

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithMetrics(m *observability.OrderMetrics) Option { return func(s *Service) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo Repository, auth Authorizer, logger *slog.Logger, cfg ServiceConfig, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:      repo,
		auth:      auth,
		logger:    logger,
		validator: validate.New(),
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create places an order: it checks the actor, the input, the customer, every product's
// existence, price and stock, then persists the order, its items, optional delivery and
// one SALE ledger entry per physical line in a single transaction.
//
// A non-empty idempotencyKey is recorded before the transaction; reusing it fails with
// ErrDuplicate. The key is released when the order fails.
func (s *Service) Create(ctx context.Context, orgID int64, req CreateOrderRequest, idempotencyKey string) (order Order, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = code(err)
		}
		s.metrics.ObserveCreate(outcome, time.Since(start))
	}()

	actor, err := s.authorize(ctx, orgID, rbac.Writers...)
	if err != nil {
		return Order{}, err
	}
	normalizeCreate(&req)
	if err := validate.Struct(s.validator, req); err != nil {
		return Order{}, err
	}

	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey != "" && s.idempotency != nil {
		key := idempotencyScope(orgID, idempotencyKey)
		if err := s.idempotency.CheckAndInsert(ctx, key, IdempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Order{}, ErrDuplicate
			}
			return Order{}, &TransactionError{Err: err}
		}
		defer func() {
			if err == nil {
				return
			}
			if derr := s.idempotency.Delete(context.WithoutCancel(ctx), key, IdempotencyModule); derr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}()
	}

	txCtx := ctx
	if s.cfg.TxTimeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, s.cfg.TxTimeout)
		defer cancel()
	}

	for attempt := 1; ; attempt++ {
		err = s.repo.WithTx(txCtx, func(ctx context.Context, tx TxRepository) error {
			var err error
			order, err = s.place(ctx, tx, actor, req)
			return err
		})
		if err == nil || attempt >= createAttempts || !db.IsRetryable(err) {
			break
		}
		s.logger.Warn("retrying order transaction", slog.Any("error", err), slog.Int("attempt", attempt))
	}
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrTransactionFailure) {
			s.logger.Error("create order failed", slog.Any("error", err), slog.Int64("organisation_id", orgID))
		}
		return Order{}, err
	}

	s.record(ctx, actor, "order:create", order, map[string]any{
		"order_number": order.OrderNumber,
		"final_amount": order.FinalAmount.String(),
		"items":        len(order.Items),
	})
	if s.notifier != nil {
		if nerr := s.notifier.OrderCreated(ctx, order); nerr != nil {
			s.logger.Warn("order created notification failed", slog.Any("error", nerr), slog.String("order_number", order.OrderNumber))
		}
	}
	return order, nil
}

// lineDemand aggregates the quantity requested per product across lines.
type lineDemand struct {
	product   products.Product
	requested decimal.Decimal
}

func (s *Service) place(ctx context.Context, tx TxRepository, actor rbac.Actor, req CreateOrderRequest) (Order, error) {
	orgID := actor.OrganisationID

	if _, err := tx.GetCustomer(ctx, orgID, req.CustomerID); err != nil {
		if errors.Is(err, customers.ErrNotFound) {
			return Order{}, &NotFoundError{Entity: "customer", IDs: []int64{req.CustomerID}}
		}
		return Order{}, err
	}

	// Lines are walked in request order; demand is keyed by product.
	var ids []int64
	demand := make(map[int64]*lineDemand)
	for _, item := range req.Items {
		d, ok := demand[item.ProductID]
		if !ok {
			d = &lineDemand{requested: decimal.Zero}
			demand[item.ProductID] = d
			ids = append(ids, item.ProductID)
		}
		d.requested = d.requested.Add(item.Quantity)
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	locked, err := tx.LockProducts(ctx, orgID, sorted)
	if err != nil {
		return Order{}, err
	}
	found := make(map[int64]products.Product, len(locked))
	for _, p := range locked {
		if p.IsActive {
			found[p.ID] = p
		}
	}
	var missing []int64
	for _, id := range sorted {
		p, ok := found[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		demand[id].product = p
	}
	if len(missing) > 0 {
		return Order{}, &NotFoundError{Entity: "product", IDs: missing}
	}

	for _, id := range ids {
		p := demand[id].product
		if !p.Priced() {
			return Order{}, &PreconditionError{ProductID: p.ID, Product: productLabel(p), Reason: "selling price is not set"}
		}
	}

	var physical []int64
	for _, id := range sorted {
		if demand[id].product.TracksStock() {
			physical = append(physical, id)
		}
	}
	if len(physical) > 0 {
		available, err := tx.Available(ctx, orgID, physical)
		if err != nil {
			return Order{}, err
		}
		for _, id := range ids {
			d := demand[id]
			if !d.product.TracksStock() {
				continue
			}
			if avail := available[id]; avail.LessThan(d.requested) {
				return Order{}, &InsufficientStockError{ProductID: id, Product: productLabel(d.product), Requested: d.requested, Available: avail}
			}
		}
	}

	items := make([]OrderItem, len(req.Items))
	total := decimal.Zero
	for i, line := range req.Items {
		price := demand[line.ProductID].product.SellingPrice.Decimal
		items[i] = OrderItem{
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			UnitPriceAtSale: price,
			TotalPrice:      salesshared.LineTotal(line.Quantity, price),
		}
		total = total.Add(items[i].TotalPrice)
	}
	discount := decimal.Zero
	if req.Discount.Valid {
		discount = req.Discount.Decimal.Round(salesshared.MoneyPlaces)
	}
	final := salesshared.FinalAmount(total, discount)
	if final.IsNegative() {
		return Order{}, fmt.Errorf("%w: total %s, discount %s", ErrInvalidDiscount, total, discount)
	}

	now := s.now().UTC()
	period := Period(now)
	seq, err := tx.NextSequence(ctx, orgID, period)
	if err != nil {
		return Order{}, fmt.Errorf("next order number: %w", err)
	}

	status := StatusPending
	if req.Status != nil {
		status = *req.Status
	}
	order, err := tx.InsertOrder(ctx, Order{
		OrganisationID: orgID,
		CustomerID:     req.CustomerID,
		OrderNumber:    FormatNumber(period, seq),
		Status:         status,
		TotalAmount:    total,
		DiscountAmount: discount,
		FinalAmount:    final,
		Notes:          req.Notes,
		CreatedBy:      actor.UserID,
		CreatedAt:      now,
	})
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		item, err := tx.InsertItem(ctx, items[i])
		if err != nil {
			return Order{}, fmt.Errorf("insert order item: %w", err)
		}
		items[i] = item
		if !demand[item.ProductID].product.TracksStock() {
			continue
		}
		orderID := order.ID
		_, err = tx.InsertStockTransaction(ctx, inventory.StockTransaction{
			OrganisationID: orgID,
			ProductID:      item.ProductID,
			Type:           inventory.TransactionTypeSale,
			QuantityChange: item.Quantity.Neg(),
			OrderID:        &orderID,
			Note:           "order " + order.OrderNumber,
			CreatedBy:      actor.UserID,
			CreatedAt:      now,
		})
		if err != nil {
			return Order{}, fmt.Errorf("insert sale entry: %w", err)
		}
	}
	order.Items = items

	if !req.Delivery.empty() {
		d := Delivery{
			OrderID:          order.ID,
			Address:          req.Delivery.Address,
			RecipientName:    req.Delivery.RecipientName,
			RecipientPhone:   req.Delivery.RecipientPhone,
			ScheduledDate:    req.Delivery.ScheduledDate,
			PaymentMethod:    req.Delivery.PaymentMethod,
			PaymentReference: req.Delivery.PaymentReference,
		}
		if err := tx.UpsertDelivery(ctx, d); err != nil {
			return Order{}, fmt.Errorf("insert delivery: %w", err)
		}
		order.Delivery = &d
	}
	return order, nil
}

// UpdateStatus moves an order to a new status, optionally recording tracking and payment
// references. Cancelling returns stock for every physical item with RETURN entries.
func (s *Service) UpdateStatus(ctx context.Context, orgID, orderID int64, req UpdateStatusRequest) (Order, error) {
	actor, err := s.authorize(ctx, orgID, rbac.Writers...)
	if err != nil {
		return Order{}, err
	}
	if err := validate.Struct(s.validator, req); err != nil {
		return Order{}, err
	}

	var (
		order    Order
		previous Status
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetForUpdate(ctx, orgID, orderID)
		if err != nil {
			return err
		}
		previous = order.Status
		if !CanTransition(previous, req.Status) {
			return &TransitionError{From: previous, To: req.Status}
		}
		if previous != req.Status {
			if order.UpdatedAt, err = tx.UpdateStatus(ctx, orgID, orderID, req.Status); err != nil {
				return err
			}
			order.Status = req.Status
		}
		if req.TrackingNumber != nil || req.PaymentReference != nil {
			d := Delivery{OrderID: order.ID, TrackingNumber: req.TrackingNumber, PaymentReference: req.PaymentReference}
			if err := tx.UpsertDelivery(ctx, d); err != nil {
				return fmt.Errorf("update delivery: %w", err)
			}
			order.Delivery = mergeDelivery(order.Delivery, d)
		}
		if req.Status == StatusCancelled && previous != StatusCancelled {
			return s.returnStock(ctx, tx, actor, order)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderMissing) {
			return Order{}, &NotFoundError{Entity: "order", IDs: []int64{orderID}}
		}
		err = classify(err)
		if errors.Is(err, ErrTransactionFailure) {
			s.logger.Error("update order status failed", slog.Any("error", err), slog.Int64("order_id", orderID))
		}
		return Order{}, err
	}

	if previous != order.Status {
		s.metrics.ObserveTransition(string(previous), string(order.Status))
	}
	s.record(ctx, actor, "order:status", order, map[string]any{
		"from": previous,
		"to":   order.Status,
	})
	if s.notifier != nil {
		if nerr := s.notifier.OrderStatusChanged(ctx, order, previous); nerr != nil {
			s.logger.Warn("order status notification failed", slog.Any("error", nerr), slog.String("order_number", order.OrderNumber))
		}
	}
	return order, nil
}

func (s *Service) returnStock(ctx context.Context, tx TxRepository, actor rbac.Actor, order Order) error {
	ids := make([]int64, 0, len(order.Items))
	seen := make(map[int64]bool)
	for _, it := range order.Items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	locked, err := tx.LockProducts(ctx, order.OrganisationID, ids)
	if err != nil {
		return err
	}
	physical := make(map[int64]bool, len(locked))
	for _, p := range locked {
		physical[p.ID] = p.TracksStock()
	}
	now := s.now().UTC()
	for _, it := range order.Items {
		if !physical[it.ProductID] {
			continue
		}
		orderID := order.ID
		_, err := tx.InsertStockTransaction(ctx, inventory.StockTransaction{
			OrganisationID: order.OrganisationID,
			ProductID:      it.ProductID,
			Type:           inventory.TransactionTypeReturn,
			QuantityChange: it.Quantity,
			OrderID:        &orderID,
			Note:           "cancelled " + order.OrderNumber,
			CreatedBy:      actor.UserID,
			CreatedAt:      now,
		})
		if err != nil {
			return fmt.Errorf("insert return entry: %w", err)
		}
	}
	return nil
}

// Get loads an order with its items and delivery.
func (s *Service) Get(ctx context.Context, orgID, orderID int64) (Order, error) {
	if _, err := s.authorize(ctx, orgID, rbac.Readers...); err != nil {
		return Order{}, err
	}
	order, err := s.repo.Get(ctx, orgID, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderMissing) {
			return Order{}, &NotFoundError{Entity: "order", IDs: []int64{orderID}}
		}
		return Order{}, &TransactionError{Err: err}
	}
	return order, nil
}

// List returns order headers, newest first.
func (s *Service) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	if _, err := s.authorize(ctx, req.OrganisationID, rbac.Readers...); err != nil {
		return nil, 0, err
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, 0, validate.Field("status", "is invalid")
	}
	req.Limit = shared.ClampLimit(req.Limit)
	if req.Offset < 0 {
		req.Offset = 0
	}
	orders, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, 0, &TransactionError{Err: err}
	}
	return orders, total, nil
}

// Authorize checks that the caller holds one of roles in orgID without touching orders.
func (s *Service) Authorize(ctx context.Context, orgID int64, roles ...rbac.Role) error {
	_, err := s.authorize(ctx, orgID, roles...)
	return err
}

func (s *Service) authorize(ctx context.Context, orgID int64, roles ...rbac.Role) (rbac.Actor, error) {
	actor, err := s.auth.Authorize(ctx, orgID, roles...)
	if err != nil {
		if errors.Is(err, rbac.ErrUnauthorized) {
			return rbac.Actor{}, ErrUnauthorized
		}
		return rbac.Actor{}, &TransactionError{Err: err}
	}
	return actor, nil
}

func (s *Service) record(ctx context.Context, actor rbac.Actor, action string, order Order, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		OrganisationID: order.OrganisationID,
		ActorID:        actor.UserID,
		Action:         action,
		Entity:         "order",
		EntityID:       strconv.FormatInt(order.ID, 10),
		Meta:           meta,
	})
	if err != nil {
		s.logger.Warn("order audit failed", slog.Any("error", err), slog.String("action", action))
	}
}

// classify keeps domain errors and wraps everything else as a transaction failure.
func classify(err error) error {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrPreconditionFailed),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrInvalidDiscount),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrTransactionFailure):
		return err
	}
	return &TransactionError{Err: err}
}

func normalizeCreate(req *CreateOrderRequest) {
	if req.Notes != nil {
		trimmed := strings.TrimSpace(*req.Notes)
		if trimmed == "" {
			req.Notes = nil
		} else {
			req.Notes = &trimmed
		}
	}
}

func mergeDelivery(current *Delivery, update Delivery) *Delivery {
	if current == nil {
		return &update
	}
	merged := *current
	if update.TrackingNumber != nil {
		merged.TrackingNumber = update.TrackingNumber
	}
	if update.PaymentReference != nil {
		merged.PaymentReference = update.PaymentReference
	}
	return &merged
}

func productLabel(p products.Product) string {
	if p.SKU != "" {
		return p.SKU
	}
	return p.Name
}

func idempotencyScope(orgID int64, key string) string {
	return strconv.FormatInt(orgID, 10) + ":" + key
}
