package picklist

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/wheelworks/wheelworks/internal/bom"
	"github.com/wheelworks/wheelworks/internal/orders"
	"github.com/wheelworks/wheelworks/internal/shared"
	"github.com/wheelworks/wheelworks/internal/stock"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (PickList, error)
	List(ctx context.Context, filter Filter) ([]PickList, int, error)
}

// OrdersPort reads production orders.
type OrdersPort interface {
	Get(ctx context.Context, id int64) (orders.Order, error)
}

// BOMPort resolves bills of materials.
type BOMPort interface {
	Get(ctx context.Context, id int64) (bom.BOM, error)
	SelectDefault(ctx context.Context, productType, rimSize string) (bom.BOM, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// Service runs the pick list state machine. Generation, scanning and
// cancellation mutate the pick list rows and the stock ledger in one database
// transaction each; the ledger operations come from the stock package bound
// to the same transaction.
type Service struct {
	repo     RepositoryPort
	orders   OrdersPort
	boms     BOMPort
	audit    AuditPort
	alerts   stock.AlertNotifier
	logger   *slog.Logger
	validate *validator.Validate
	allowNeg bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, orders OrdersPort, boms BOMPort, audit AuditPort, alerts stock.AlertNotifier, logger *slog.Logger, cfg ServiceConfig) *Service {
	return &Service{
		repo:     repo,
		orders:   orders,
		boms:     boms,
		audit:    audit,
		alerts:   alerts,
		logger:   logger,
		validate: validator.New(),
		allowNeg: cfg.AllowNegativeStock,
	}
}

// Generate explodes a BOM against the order quantity into a pick list and
// reserves stock. Short stock degrades to a partial reservation on the line,
// never a failure; a line with no stock anywhere is left without a location
// for manual assignment. The whole result commits atomically.
func (s *Service) Generate(ctx context.Context, input GenerateInput) (PickList, error) {
	if err := s.validate.Struct(input); err != nil {
		return PickList{}, fmt.Errorf("picklist: invalid input: %w", err)
	}
	order, err := s.orders.Get(ctx, input.OrderID)
	if err != nil {
		return PickList{}, fmt.Errorf("picklist: order %d: %w", input.OrderID, err)
	}

	var billOfMaterials bom.BOM
	if input.BOMID != 0 {
		billOfMaterials, err = s.boms.Get(ctx, input.BOMID)
	} else {
		billOfMaterials, err = s.boms.SelectDefault(ctx, order.ProductType, order.RimSize)
	}
	if err != nil {
		return PickList{}, err
	}
	if len(billOfMaterials.Components) == 0 {
		return PickList{}, bom.ErrEmptyBOM
	}

	actor := shared.ActorFromContext(ctx)
	var listID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, time.Now())
		if err != nil {
			return err
		}
		listID, err = tx.InsertList(ctx, PickList{
			Number:    number,
			OrderID:   order.ID,
			BOMID:     billOfMaterials.ID,
			Status:    StatusPending,
			Note:      input.Note,
			CreatedBy: actor.ID,
		})
		if err != nil {
			return err
		}

		ledger := tx.Ledger()
		for _, component := range billOfMaterials.Components {
			required := component.QuantityPerUnit * order.Quantity
			line := PickListItem{
				PickListID:       listID,
				ItemID:           component.ItemID,
				QuantityRequired: required,
				Status:           ItemStatusPending,
				IsOptional:       component.IsOptional,
			}

			item, err := ledger.GetItemForUpdate(ctx, component.ItemID)
			if err != nil {
				return err
			}
			locationID, err := tx.BestLocation(ctx, component.ItemID, item.DefaultLocationID)
			if err != nil {
				return err
			}
			if locationID != 0 {
				level, err := ledger.GetLevelForUpdate(ctx, component.ItemID, locationID)
				if err != nil && err != stock.ErrLevelNotFound {
					return err
				}
				reserve := math.Min(required, level.Available())
				if reserve > 0 {
					level, err = stock.ApplyDelta(level, 0, reserve, s.allowNeg)
					if err != nil {
						return err
					}
					if err := ledger.UpsertLevel(ctx, level); err != nil {
						return err
					}
					line.LocationID = locationID
					line.QuantityReserved = reserve
				}
			}

			if _, err := tx.InsertItem(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PickList{}, err
	}
	s.record(ctx, "picklist:generate", listID, map[string]any{"order_id": order.ID, "bom_id": billOfMaterials.ID})
	return s.repo.Get(ctx, listID)
}

// Scan records picked quantity for one line. The full reservation held by the
// line is released and on-hand stock drops by exactly the picked quantity, as
// one atomic ledger mutation with its pick transaction.
func (s *Service) Scan(ctx context.Context, listID, lineID int64, input ScanInput) (PickList, error) {
	if err := s.validate.Struct(input); err != nil {
		return PickList{}, fmt.Errorf("picklist: invalid scan: %w", err)
	}

	var itemID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pl, err := tx.GetForUpdate(ctx, listID)
		if err != nil {
			return err
		}
		if !pl.Status.CanScan() {
			return fmt.Errorf("%w: pick list %s is %s", shared.ErrInvariantViolation, pl.Number, pl.Status)
		}
		line, err := findLine(pl, lineID)
		if err != nil {
			return err
		}
		if line.Status.Terminal() {
			return fmt.Errorf("%w: line %d already %s", shared.ErrInvariantViolation, lineID, line.Status)
		}
		if line.LocationID == 0 {
			return fmt.Errorf("%w: line %d has no location assigned", shared.ErrInvariantViolation, lineID)
		}
		itemID = line.ItemID

		if pl.Status == StatusPending {
			if err := tx.UpdateListStatus(ctx, listID, StatusInProgress); err != nil {
				return err
			}
		}

		ledger := tx.Ledger()
		item, err := ledger.GetItemForUpdate(ctx, line.ItemID)
		if err != nil {
			return err
		}
		level, err := ledger.GetLevelForUpdate(ctx, line.ItemID, line.LocationID)
		if err != nil && err != stock.ErrLevelNotFound {
			return err
		}
		level, err = stock.ApplyDelta(level, -input.QuantityPicked, -line.QuantityReserved, s.allowNeg)
		if err != nil {
			return err
		}
		if err := ledger.UpsertLevel(ctx, level); err != nil {
			return err
		}

		if input.SerialID != 0 {
			serial, err := ledger.GetSerialForUpdate(ctx, input.SerialID)
			if err != nil {
				return err
			}
			if serial.ItemID != line.ItemID {
				return fmt.Errorf("%w: serial %d belongs to another item", shared.ErrInvariantViolation, input.SerialID)
			}
			if err := ledger.UpdateSerial(ctx, input.SerialID, stock.SerialStatusInUse, 0); err != nil {
				return err
			}
		}

		if input.QuantityPicked > 0 {
			actor := shared.ActorFromContext(ctx)
			if _, err := ledger.InsertTransaction(ctx, stock.Transaction{
				Type:           stock.TransactionTypePick,
				ItemID:         line.ItemID,
				SerialID:       input.SerialID,
				FromLocationID: line.LocationID,
				Quantity:       input.QuantityPicked,
				UnitCost:       item.CostPerUnit,
				TotalCost:      item.CostPerUnit.Mul(decimal.NewFromFloat(input.QuantityPicked)),
				OrderID:        pl.OrderID,
				PickListID:     listID,
				Reference:      pl.Number,
				ActorID:        actor.ID,
				ActorName:      actor.DisplayName,
			}); err != nil {
				return err
			}
		}

		line.QuantityPicked = input.QuantityPicked
		line.QuantityShort = math.Max(0, line.QuantityRequired-input.QuantityPicked)
		line.QuantityReserved = 0
		line.SerialID = input.SerialID
		if input.QuantityPicked >= line.QuantityRequired {
			line.Status = ItemStatusPicked
		} else {
			line.Status = ItemStatusShort
		}
		if err := tx.UpdateItem(ctx, line); err != nil {
			return err
		}

		_, err = ledger.RecomputeItemTotals(ctx, line.ItemID)
		return err
	})
	if err != nil {
		return PickList{}, err
	}
	s.notifyStockChanged(ctx, itemID)
	s.record(ctx, "picklist:scan", listID, map[string]any{"line_id": lineID, "picked": input.QuantityPicked})
	return s.repo.Get(ctx, listID)
}

// Skip marks a line skipped and releases whatever it still reserves.
func (s *Service) Skip(ctx context.Context, listID, lineID int64) (PickList, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pl, err := tx.GetForUpdate(ctx, listID)
		if err != nil {
			return err
		}
		if !pl.Status.CanScan() {
			return fmt.Errorf("%w: pick list %s is %s", shared.ErrInvariantViolation, pl.Number, pl.Status)
		}
		line, err := findLine(pl, lineID)
		if err != nil {
			return err
		}
		if line.Status.Terminal() {
			return fmt.Errorf("%w: line %d already %s", shared.ErrInvariantViolation, lineID, line.Status)
		}

		if err := s.releaseLine(ctx, tx, &line); err != nil {
			return err
		}
		line.Status = ItemStatusSkipped
		return tx.UpdateItem(ctx, line)
	})
	if err != nil {
		return PickList{}, err
	}
	s.record(ctx, "picklist:skip", listID, map[string]any{"line_id": lineID})
	return s.repo.Get(ctx, listID)
}

// Complete closes a pick list once every line has been scanned or skipped.
func (s *Service) Complete(ctx context.Context, listID int64) (PickList, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pl, err := tx.GetForUpdate(ctx, listID)
		if err != nil {
			return err
		}
		if !pl.Status.CanComplete() {
			return fmt.Errorf("%w: pick list %s is %s", shared.ErrInvariantViolation, pl.Number, pl.Status)
		}
		pending := 0
		for _, line := range pl.Items {
			if !line.Status.Terminal() {
				pending++
			}
		}
		if pending > 0 {
			return &IncompletePickListError{PendingLines: pending}
		}
		return tx.UpdateListStatus(ctx, listID, StatusCompleted)
	})
	if err != nil {
		return PickList{}, err
	}
	s.record(ctx, "picklist:complete", listID, nil)
	return s.repo.Get(ctx, listID)
}

// Cancel releases every outstanding reservation and closes the list.
func (s *Service) Cancel(ctx context.Context, listID int64) (PickList, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pl, err := tx.GetForUpdate(ctx, listID)
		if err != nil {
			return err
		}
		if !pl.Status.CanCancel() {
			return fmt.Errorf("%w: pick list %s is %s", shared.ErrInvariantViolation, pl.Number, pl.Status)
		}
		for _, line := range pl.Items {
			if line.Status.Terminal() || line.QuantityReserved <= 0 {
				continue
			}
			if err := s.releaseLine(ctx, tx, &line); err != nil {
				return err
			}
			if err := tx.UpdateItem(ctx, line); err != nil {
				return err
			}
		}
		return tx.UpdateListStatus(ctx, listID, StatusCancelled)
	})
	if err != nil {
		return PickList{}, err
	}
	s.record(ctx, "picklist:cancel", listID, nil)
	return s.repo.Get(ctx, listID)
}

// Assign hands the list to an operator.
func (s *Service) Assign(ctx context.Context, listID int64, input AssignInput) (PickList, error) {
	if err := s.validate.Struct(input); err != nil {
		return PickList{}, fmt.Errorf("picklist: invalid assignment: %w", err)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pl, err := tx.GetForUpdate(ctx, listID)
		if err != nil {
			return err
		}
		if pl.Status.Terminal() {
			return fmt.Errorf("%w: pick list %s is %s", shared.ErrInvariantViolation, pl.Number, pl.Status)
		}
		return tx.UpdateAssignee(ctx, listID, input.AssigneeID, input.AssigneeName)
	})
	if err != nil {
		return PickList{}, err
	}
	s.record(ctx, "picklist:assign", listID, map[string]any{"assignee_id": input.AssigneeID})
	return s.repo.Get(ctx, listID)
}

// AssignLocation resolves a line generated without a location, reserving what
// is available there.
func (s *Service) AssignLocation(ctx context.Context, listID, lineID int64, input ReassignLocationInput) (PickList, error) {
	if err := s.validate.Struct(input); err != nil {
		return PickList{}, fmt.Errorf("picklist: invalid location assignment: %w", err)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pl, err := tx.GetForUpdate(ctx, listID)
		if err != nil {
			return err
		}
		if !pl.Status.CanScan() {
			return fmt.Errorf("%w: pick list %s is %s", shared.ErrInvariantViolation, pl.Number, pl.Status)
		}
		line, err := findLine(pl, lineID)
		if err != nil {
			return err
		}
		if line.Status.Terminal() {
			return fmt.Errorf("%w: line %d already %s", shared.ErrInvariantViolation, lineID, line.Status)
		}

		// Move any existing hold before reserving at the new location.
		if err := s.releaseLine(ctx, tx, &line); err != nil {
			return err
		}
		ledger := tx.Ledger()
		level, err := ledger.GetLevelForUpdate(ctx, line.ItemID, input.LocationID)
		if err != nil && err != stock.ErrLevelNotFound {
			return err
		}
		reserve := math.Min(line.QuantityRequired, level.Available())
		if reserve > 0 {
			level, err = stock.ApplyDelta(level, 0, reserve, s.allowNeg)
			if err != nil {
				return err
			}
			if err := ledger.UpsertLevel(ctx, level); err != nil {
				return err
			}
		}
		line.LocationID = input.LocationID
		line.QuantityReserved = reserve
		return tx.UpdateItem(ctx, line)
	})
	if err != nil {
		return PickList{}, err
	}
	s.record(ctx, "picklist:assign_location", listID, map[string]any{"line_id": lineID, "location_id": input.LocationID})
	return s.repo.Get(ctx, listID)
}

// Get fetches one pick list with lines.
func (s *Service) Get(ctx context.Context, id int64) (PickList, error) {
	return s.repo.Get(ctx, id)
}

// List returns pick lists with pagination.
func (s *Service) List(ctx context.Context, filter Filter) ([]PickList, int, error) {
	return s.repo.List(ctx, filter)
}

// releaseLine returns the line's remaining reservation to general
// availability and zeroes it on the line. Callers persist the line.
func (s *Service) releaseLine(ctx context.Context, tx TxRepository, line *PickListItem) error {
	if line.QuantityReserved <= 0 || line.LocationID == 0 {
		line.QuantityReserved = 0
		return nil
	}
	ledger := tx.Ledger()
	level, err := ledger.GetLevelForUpdate(ctx, line.ItemID, line.LocationID)
	if err != nil && err != stock.ErrLevelNotFound {
		return err
	}
	level, err = stock.ApplyDelta(level, 0, -line.QuantityReserved, s.allowNeg)
	if err != nil {
		return err
	}
	if err := ledger.UpsertLevel(ctx, level); err != nil {
		return err
	}
	line.QuantityReserved = 0
	return nil
}

func findLine(pl PickList, lineID int64) (PickListItem, error) {
	for _, line := range pl.Items {
		if line.ID == lineID {
			return line, nil
		}
	}
	return PickListItem{}, fmt.Errorf("%w: pick list item %d", shared.ErrNotFound, lineID)
}

func (s *Service) notifyStockChanged(ctx context.Context, itemID int64) {
	if s.alerts == nil || itemID == 0 {
		return
	}
	if err := s.alerts.StockChanged(ctx, itemID); err != nil {
		s.logger.Warn("alert notification failed", slog.Int64("item_id", itemID), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action string, listID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor := shared.ActorFromContext(ctx)
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "pick_list",
		EntityID: fmt.Sprintf("%d", listID),
		Meta:     meta,
	})
}
