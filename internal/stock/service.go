package stock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wheelworks/wheelworks/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLevel(ctx context.Context, itemID, locationID int64) (StockLevel, error)
	ListLevels(ctx context.Context, filter LevelFilter) ([]StockLevel, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	GetSerial(ctx context.Context, id int64) (SerialItem, error)
	GetSerialByBarcode(ctx context.Context, barcode string) (SerialItem, error)
	ListSerials(ctx context.Context, itemID int64, status SerialStatus) ([]SerialItem, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against double-posted movements.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key string) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// Service coordinates ledger movements, weighted-average costing and the
// transaction log. Every mutation commits its stock level change, its
// transaction record and the item total recompute in one database transaction.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	alerts      AlertNotifier
	validate    *validator.Validate
	allowNeg    bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, alerts AlertNotifier, cfg ServiceConfig) *Service {
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		alerts:      alerts,
		validate:    validator.New(),
		allowNeg:    cfg.AllowNegativeStock,
	}
}

// Receive posts an inbound receipt and folds the receipt cost into the item's
// weighted average. Receiving quantity zero is rejected before any state is
// touched, so a no-op receive can never move the average.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (Transaction, error) {
	if err := s.validate.Struct(input); err != nil {
		return Transaction{}, fmt.Errorf("stock: invalid receive: %w", err)
	}
	if input.Quantity <= 0 {
		return Transaction{}, ErrInvalidQuantity
	}
	if input.UnitCost.IsNegative() {
		return Transaction{}, ErrInvalidUnitCost
	}

	var result Transaction
	err := s.guarded(ctx, "receive", input.Reference, input.ItemID, input.LocationID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			item, err := tx.GetItemForUpdate(ctx, input.ItemID)
			if err != nil {
				return err
			}
			if item.TrackIndividually && len(input.Serials) != int(input.Quantity) {
				return ErrSerialCountMismatch
			}

			level, err := tx.GetLevelForUpdate(ctx, input.ItemID, input.LocationID)
			if err != nil && err != ErrLevelNotFound {
				return err
			}
			level, err = ApplyDelta(level, input.Quantity, 0, s.allowNeg)
			if err != nil {
				return err
			}
			if err := tx.UpsertLevel(ctx, level); err != nil {
				return err
			}

			newAvg := WeightedAverage(item.TotalQuantity, item.CostPerUnit, input.Quantity, input.UnitCost)
			if err := tx.UpdateItemCost(ctx, input.ItemID, newAvg); err != nil {
				return err
			}

			actor := shared.ActorFromContext(ctx)
			result = Transaction{
				Type:         TransactionTypeReceive,
				ItemID:       input.ItemID,
				ToLocationID: input.LocationID,
				Quantity:     input.Quantity,
				UnitCost:     input.UnitCost,
				TotalCost:    input.UnitCost.Mul(decimal.NewFromFloat(input.Quantity)),
				Reference:    input.Reference,
				Note:         input.Note,
				ActorID:      actor.ID,
				ActorName:    actor.DisplayName,
			}
			txID, err := tx.InsertTransaction(ctx, result)
			if err != nil {
				return err
			}
			result.ID = txID

			for _, si := range input.Serials {
				if _, err := tx.InsertSerial(ctx, SerialItem{
					ItemID:       input.ItemID,
					SerialNumber: si.SerialNumber,
					Barcode:      si.Barcode,
					LocationID:   input.LocationID,
					Status:       SerialStatusInStock,
					Cost:         input.UnitCost,
				}); err != nil {
					return err
				}
			}

			_, err = tx.RecomputeItemTotals(ctx, input.ItemID)
			return err
		})
	})
	if err != nil {
		return Transaction{}, err
	}
	s.finish(ctx, "stock:receive", input.ItemID, map[string]any{
		"location_id": input.LocationID,
		"quantity":    input.Quantity,
		"unit_cost":   input.UnitCost.String(),
	})
	return result, nil
}

// Transfer moves stock between two locations. Exceeding the source's
// availability is fatal to the whole call.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (Transaction, error) {
	if err := s.validate.Struct(input); err != nil {
		return Transaction{}, fmt.Errorf("stock: invalid transfer: %w", err)
	}
	if input.FromLocationID == input.ToLocationID {
		return Transaction{}, fmt.Errorf("stock: source and destination location must differ")
	}
	if input.Quantity <= 0 {
		return Transaction{}, ErrInvalidQuantity
	}

	var result Transaction
	err := s.guarded(ctx, "transfer", input.Reference, input.ItemID, input.FromLocationID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			item, err := tx.GetItemForUpdate(ctx, input.ItemID)
			if err != nil {
				return err
			}

			src, err := tx.GetLevelForUpdate(ctx, input.ItemID, input.FromLocationID)
			if err != nil && err != ErrLevelNotFound {
				return err
			}
			if input.Quantity > src.Available()+epsilon {
				return fmt.Errorf("%w: requested %.2f, available %.2f", shared.ErrInsufficientStock, input.Quantity, src.Available())
			}
			src, err = ApplyDelta(src, -input.Quantity, 0, s.allowNeg)
			if err != nil {
				return err
			}
			if err := tx.UpsertLevel(ctx, src); err != nil {
				return err
			}

			dst, err := tx.GetLevelForUpdate(ctx, input.ItemID, input.ToLocationID)
			if err != nil && err != ErrLevelNotFound {
				return err
			}
			dst, err = ApplyDelta(dst, input.Quantity, 0, s.allowNeg)
			if err != nil {
				return err
			}
			if err := tx.UpsertLevel(ctx, dst); err != nil {
				return err
			}

			for _, serialID := range input.SerialIDs {
				serial, err := tx.GetSerialForUpdate(ctx, serialID)
				if err != nil {
					return err
				}
				if serial.ItemID != input.ItemID || serial.LocationID != input.FromLocationID {
					return fmt.Errorf("%w: serial %d is not at the source location", shared.ErrInvariantViolation, serialID)
				}
				if err := tx.UpdateSerial(ctx, serialID, serial.Status, input.ToLocationID); err != nil {
					return err
				}
			}

			actor := shared.ActorFromContext(ctx)
			result = Transaction{
				Type:           TransactionTypeTransfer,
				ItemID:         input.ItemID,
				FromLocationID: input.FromLocationID,
				ToLocationID:   input.ToLocationID,
				Quantity:       input.Quantity,
				UnitCost:       item.CostPerUnit,
				TotalCost:      item.CostPerUnit.Mul(decimal.NewFromFloat(input.Quantity)),
				Reference:      input.Reference,
				Note:           input.Note,
				ActorID:        actor.ID,
				ActorName:      actor.DisplayName,
			}
			txID, err := tx.InsertTransaction(ctx, result)
			if err != nil {
				return err
			}
			result.ID = txID

			// Transfers move quantity between locations; item totals are
			// unchanged but recomputed anyway to repair any drift.
			_, err = tx.RecomputeItemTotals(ctx, input.ItemID)
			return err
		})
	})
	if err != nil {
		return Transaction{}, err
	}
	s.finish(ctx, "stock:transfer", input.ItemID, map[string]any{
		"from": input.FromLocationID,
		"to":   input.ToLocationID,
		"qty":  input.Quantity,
	})
	return result, nil
}

// Adjust corrects on-hand quantity after a physical count.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (Transaction, error) {
	if err := s.validate.Struct(input); err != nil {
		return Transaction{}, fmt.Errorf("stock: invalid adjustment: %w", err)
	}
	if input.Delta == 0 {
		return Transaction{}, ErrInvalidQuantity
	}

	var result Transaction
	err := s.guarded(ctx, "adjust", input.Reference, input.ItemID, input.LocationID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			item, err := tx.GetItemForUpdate(ctx, input.ItemID)
			if err != nil {
				return err
			}
			level, err := tx.GetLevelForUpdate(ctx, input.ItemID, input.LocationID)
			if err != nil && err != ErrLevelNotFound {
				return err
			}
			level, err = ApplyDelta(level, input.Delta, 0, s.allowNeg)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			level.LastCountedAt = &now
			if err := tx.UpsertLevel(ctx, level); err != nil {
				return err
			}

			actor := shared.ActorFromContext(ctx)
			result = Transaction{
				Type:      TransactionTypeAdjust,
				ItemID:    input.ItemID,
				Quantity:  input.Delta,
				UnitCost:  item.CostPerUnit,
				TotalCost: item.CostPerUnit.Mul(decimal.NewFromFloat(input.Delta)),
				Reference: input.Reference,
				Note:      input.Note,
				ActorID:   actor.ID,
				ActorName: actor.DisplayName,
			}
			if input.Delta > 0 {
				result.ToLocationID = input.LocationID
			} else {
				result.FromLocationID = input.LocationID
			}
			txID, err := tx.InsertTransaction(ctx, result)
			if err != nil {
				return err
			}
			result.ID = txID

			_, err = tx.RecomputeItemTotals(ctx, input.ItemID)
			return err
		})
	})
	if err != nil {
		return Transaction{}, err
	}
	s.finish(ctx, "stock:adjust", input.ItemID, map[string]any{
		"location_id": input.LocationID,
		"delta":       input.Delta,
	})
	return result, nil
}

// Return puts previously picked units back into general stock at the item's
// current average cost.
func (s *Service) Return(ctx context.Context, input ReturnInput) (Transaction, error) {
	if err := s.validate.Struct(input); err != nil {
		return Transaction{}, fmt.Errorf("stock: invalid return: %w", err)
	}
	var result Transaction
	err := s.guarded(ctx, "return", input.Reference, input.ItemID, input.LocationID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			item, err := tx.GetItemForUpdate(ctx, input.ItemID)
			if err != nil {
				return err
			}
			level, err := tx.GetLevelForUpdate(ctx, input.ItemID, input.LocationID)
			if err != nil && err != ErrLevelNotFound {
				return err
			}
			level, err = ApplyDelta(level, input.Quantity, 0, s.allowNeg)
			if err != nil {
				return err
			}
			if err := tx.UpsertLevel(ctx, level); err != nil {
				return err
			}
			if input.SerialID != 0 {
				if _, err := tx.GetSerialForUpdate(ctx, input.SerialID); err != nil {
					return err
				}
				if err := tx.UpdateSerial(ctx, input.SerialID, SerialStatusInStock, input.LocationID); err != nil {
					return err
				}
			}

			actor := shared.ActorFromContext(ctx)
			result = Transaction{
				Type:         TransactionTypeReturn,
				ItemID:       input.ItemID,
				SerialID:     input.SerialID,
				ToLocationID: input.LocationID,
				Quantity:     input.Quantity,
				UnitCost:     item.CostPerUnit,
				TotalCost:    item.CostPerUnit.Mul(decimal.NewFromFloat(input.Quantity)),
				OrderID:      input.OrderID,
				Reference:    input.Reference,
				Note:         input.Note,
				ActorID:      actor.ID,
				ActorName:    actor.DisplayName,
			}
			txID, err := tx.InsertTransaction(ctx, result)
			if err != nil {
				return err
			}
			result.ID = txID

			_, err = tx.RecomputeItemTotals(ctx, input.ItemID)
			return err
		})
	})
	if err != nil {
		return Transaction{}, err
	}
	s.finish(ctx, "stock:return", input.ItemID, map[string]any{
		"location_id": input.LocationID,
		"quantity":    input.Quantity,
	})
	return result, nil
}

// Scrap writes off damaged or lost units.
func (s *Service) Scrap(ctx context.Context, input ScrapInput) (Transaction, error) {
	if err := s.validate.Struct(input); err != nil {
		return Transaction{}, fmt.Errorf("stock: invalid scrap: %w", err)
	}
	var result Transaction
	err := s.guarded(ctx, "scrap", input.Reference, input.ItemID, input.LocationID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			item, err := tx.GetItemForUpdate(ctx, input.ItemID)
			if err != nil {
				return err
			}
			level, err := tx.GetLevelForUpdate(ctx, input.ItemID, input.LocationID)
			if err != nil && err != ErrLevelNotFound {
				return err
			}
			if input.Quantity > level.Available()+epsilon {
				return fmt.Errorf("%w: requested %.2f, available %.2f", shared.ErrInsufficientStock, input.Quantity, level.Available())
			}
			level, err = ApplyDelta(level, -input.Quantity, 0, s.allowNeg)
			if err != nil {
				return err
			}
			if err := tx.UpsertLevel(ctx, level); err != nil {
				return err
			}
			if input.SerialID != 0 {
				if _, err := tx.GetSerialForUpdate(ctx, input.SerialID); err != nil {
					return err
				}
				if err := tx.UpdateSerial(ctx, input.SerialID, SerialStatusScrapped, 0); err != nil {
					return err
				}
			}

			actor := shared.ActorFromContext(ctx)
			result = Transaction{
				Type:           TransactionTypeScrap,
				ItemID:         input.ItemID,
				SerialID:       input.SerialID,
				FromLocationID: input.LocationID,
				Quantity:       input.Quantity,
				UnitCost:       item.CostPerUnit,
				TotalCost:      item.CostPerUnit.Mul(decimal.NewFromFloat(input.Quantity)),
				Reference:      input.Reference,
				Note:           input.Note,
				ActorID:        actor.ID,
				ActorName:      actor.DisplayName,
			}
			txID, err := tx.InsertTransaction(ctx, result)
			if err != nil {
				return err
			}
			result.ID = txID

			_, err = tx.RecomputeItemTotals(ctx, input.ItemID)
			return err
		})
	})
	if err != nil {
		return Transaction{}, err
	}
	s.finish(ctx, "stock:scrap", input.ItemID, map[string]any{
		"location_id": input.LocationID,
		"quantity":    input.Quantity,
	})
	return result, nil
}

// GetLevel returns the stock level for one (item, location) pair,
// zero-initialised when no movement has touched it yet.
func (s *Service) GetLevel(ctx context.Context, itemID, locationID int64) (StockLevel, error) {
	return s.repo.GetLevel(ctx, itemID, locationID)
}

// ListLevels lists stock levels with filters.
func (s *Service) ListLevels(ctx context.Context, filter LevelFilter) ([]StockLevel, error) {
	return s.repo.ListLevels(ctx, filter)
}

// ListTransactions streams the transaction log, newest first.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

// GetSerial fetches one serial item.
func (s *Service) GetSerial(ctx context.Context, id int64) (SerialItem, error) {
	return s.repo.GetSerial(ctx, id)
}

// GetSerialByBarcode fetches a serial item by barcode.
func (s *Service) GetSerialByBarcode(ctx context.Context, barcode string) (SerialItem, error) {
	return s.repo.GetSerialByBarcode(ctx, barcode)
}

// ListSerials lists serial units for an item.
func (s *Service) ListSerials(ctx context.Context, itemID int64, status SerialStatus) ([]SerialItem, error) {
	return s.repo.ListSerials(ctx, itemID, status)
}

// guarded wraps fn with an idempotency check keyed on the movement reference.
// A failed fn releases the key so the caller may retry.
func (s *Service) guarded(ctx context.Context, op, reference string, itemID, locationID int64, fn func(context.Context) error) error {
	if s.idempotency == nil || reference == "" {
		return fn(ctx)
	}
	key := fmt.Sprintf("%s:%s:%d:%d", op, reference, itemID, locationID)
	if err := s.idempotency.CheckAndInsert(ctx, key, "stock"); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		_ = s.idempotency.Delete(ctx, key)
		return err
	}
	return nil
}

// finish runs post-commit side effects: audit trail and alert evaluation.
func (s *Service) finish(ctx context.Context, action string, itemID int64, meta map[string]any) {
	actor := shared.ActorFromContext(ctx)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   action,
			Entity:   "item",
			EntityID: fmt.Sprintf("%d", itemID),
			Meta:     meta,
		})
	}
	if s.alerts != nil {
		if err := s.alerts.StockChanged(ctx, itemID); err != nil {
			slog.Default().Warn("alert notification failed",
				slog.Int64("item_id", itemID), slog.Any("error", err))
		}
	}
}

// NewMovementReference generates a reference for callers that do not supply one.
func NewMovementReference(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
