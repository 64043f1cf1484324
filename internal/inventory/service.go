package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/platform/validate"
	"github.com/stockroom/stockroom/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Available(ctx context.Context, orgID int64, productIDs []int64) (map[int64]decimal.Decimal, error)
	Ledger(ctx context.Context, filter LedgerFilter) ([]StockTransaction, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory operations.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	allowNeg  bool
	events    EventHandler
	logger    *slog.Logger
	validator *validator.Validate
	now       func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig, events EventHandler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		audit:     audit,
		allowNeg:  cfg.AllowNegativeStock,
		events:    events,
		logger:    logger,
		validator: validate.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ReceiveStock records a new batch and its PURCHASE ledger entry atomically.
func (s *Service) ReceiveStock(ctx context.Context, orgID, actorID int64, input ReceiveInput) (Receipt, error) {
	if err := validate.Struct(s.validator, input); err != nil {
		return Receipt{}, err
	}
	now := s.now()
	purchased := now
	if input.PurchaseDate != nil {
		purchased = input.PurchaseDate.UTC()
	}
	if input.ExpiryDate != nil && input.ExpiryDate.Before(purchased) {
		return Receipt{}, ErrInvalidExpiry
	}

	var receipt Receipt
	var remaining decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.LockProduct(ctx, orgID, input.ProductID)
		if err != nil {
			return err
		}
		if !product.TracksStock() {
			return ErrNotStockTracked
		}
		batch, err := tx.InsertBatch(ctx, StockBatch{
			OrganisationID: orgID,
			ProductID:      input.ProductID,
			Quantity:       input.Quantity,
			UnitCost:       input.UnitCost,
			SupplierID:     input.SupplierID,
			BatchNumber:    batchNumber(input.BatchNumber, now),
			PurchaseDate:   purchased,
			ExpiryDate:     input.ExpiryDate,
		})
		if err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		entry, err := tx.InsertTransaction(ctx, StockTransaction{
			OrganisationID: orgID,
			ProductID:      input.ProductID,
			Type:           TransactionTypePurchase,
			QuantityChange: input.Quantity,
			StockBatchID:   &batch.ID,
			Note:           input.Note,
			CreatedBy:      actorID,
			CreatedAt:      now,
		})
		if err != nil {
			return fmt.Errorf("insert purchase entry: %w", err)
		}
		avail, err := tx.Available(ctx, orgID, []int64{input.ProductID})
		if err != nil {
			return err
		}
		remaining = avail[input.ProductID]
		receipt = Receipt{Batch: batch, Transaction: entry}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	s.record(ctx, orgID, actorID, receipt.Transaction)
	s.emit(ctx, receipt.Transaction, remaining)
	return receipt, nil
}

// PostAdjustment posts an ADJUSTMENT (signed) or SPOILAGE (write-off) ledger entry.
func (s *Service) PostAdjustment(ctx context.Context, orgID, actorID int64, input AdjustmentInput) (StockTransaction, error) {
	if err := validate.Struct(s.validator, input); err != nil {
		return StockTransaction{}, err
	}
	change := input.Quantity
	switch input.Type {
	case TransactionTypeSpoilage:
		if !change.IsPositive() {
			return StockTransaction{}, validate.Field("quantity", "must be greater than zero")
		}
		change = change.Neg()
	default:
		if change.IsZero() {
			return StockTransaction{}, ErrInvalidQuantity
		}
	}

	var entry StockTransaction
	var remaining decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.LockProduct(ctx, orgID, input.ProductID)
		if err != nil {
			return err
		}
		if !product.TracksStock() {
			return ErrNotStockTracked
		}
		avail, err := tx.Available(ctx, orgID, []int64{input.ProductID})
		if err != nil {
			return err
		}
		remaining = avail[input.ProductID].Add(change)
		if !s.allowNeg && remaining.IsNegative() {
			return ErrNegativeStock
		}
		entry, err = tx.InsertTransaction(ctx, StockTransaction{
			OrganisationID: orgID,
			ProductID:      input.ProductID,
			Type:           input.Type,
			QuantityChange: change,
			Note:           input.Note,
			CreatedBy:      actorID,
			CreatedAt:      s.now(),
		})
		return err
	})
	if err != nil {
		return StockTransaction{}, err
	}
	s.record(ctx, orgID, actorID, entry)
	s.emit(ctx, entry, remaining)
	return entry, nil
}

func (s *Service) emit(ctx context.Context, entry StockTransaction, available decimal.Decimal) {
	if s.events == nil {
		return
	}
	evt := StockMovedEvent{
		OrganisationID: entry.OrganisationID,
		ProductID:      entry.ProductID,
		Type:           entry.Type,
		QuantityChange: entry.QuantityChange,
		Available:      available,
		PostedAt:       entry.CreatedAt,
	}
	if err := s.events.HandleStockMoved(ctx, evt); err != nil {
		s.logger.Warn("inventory event dispatch failed", slog.Any("error", err), slog.Int64("product_id", entry.ProductID))
	}
}

// Availability returns the current stock position of a product.
func (s *Service) Availability(ctx context.Context, orgID, productID int64) (Availability, error) {
	avail, err := s.repo.Available(ctx, orgID, []int64{productID})
	if err != nil {
		return Availability{}, err
	}
	return Availability{ProductID: productID, Available: avail[productID]}, nil
}

// Ledger lists ledger entries of a product, newest first.
func (s *Service) Ledger(ctx context.Context, filter LedgerFilter) ([]StockTransaction, error) {
	if filter.OrganisationID == 0 || filter.ProductID == 0 {
		return nil, validate.Field("product_id", "is required")
	}
	return s.repo.Ledger(ctx, filter)
}

func (s *Service) record(ctx context.Context, orgID, actorID int64, entry StockTransaction) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		OrganisationID: orgID,
		ActorID:        actorID,
		Action:         fmt.Sprintf("inventory:%s", entry.Type),
		Entity:         "stock_transaction",
		EntityID:       strconv.FormatInt(entry.ID, 10),
		Meta: map[string]any{
			"product_id":      entry.ProductID,
			"quantity_change": entry.QuantityChange.String(),
			"note":            entry.Note,
		},
	})
	if err != nil {
		s.logger.Warn("inventory audit failed", slog.Any("error", err))
	}
}

func batchNumber(given string, now time.Time) string {
	if given != "" {
		return given
	}
	return fmt.Sprintf("BATCH-%d", now.UnixNano())
}
