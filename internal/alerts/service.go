package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/wheelworks/wheelworks/internal/shared"
)

// evaluateConcurrency bounds how many items a reorder sweep evaluates at once.
const evaluateConcurrency = 8

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filter Filter) ([]Alert, error)
	ListItemIDs(ctx context.Context) ([]int64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups evaluation settings.
type ServiceConfig struct {
	// OverstockFactor multiplies reorder_quantity to form the overstock
	// ceiling. Zero disables overstock alerts.
	OverstockFactor float64
}

// Service evaluates stock conditions and manages the alert lifecycle.
// Evaluation is idempotent: re-running it against unchanged stock neither
// duplicates nor drops alerts.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	cfg    ServiceConfig
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, cfg: cfg}
}

const quantityEpsilon = 1e-4

// Evaluate reassesses one item. Exactly one alert type can be active per
// condition: out-of-stock supersedes low-stock, and alerts whose condition no
// longer holds are resolved in the same transaction.
func (s *Service) Evaluate(ctx context.Context, itemID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemSnapshot(ctx, itemID)
		if err != nil {
			return err
		}

		wanted := s.desiredAlerts(item)
		active, err := tx.ActiveAlertsForUpdate(ctx, itemID)
		if err != nil {
			return err
		}

		haveType := make(map[AlertType]bool, len(active))
		for _, a := range active {
			if _, still := wanted[a.Type]; !still {
				if err := tx.Resolve(ctx, a.ID); err != nil {
					return err
				}
				continue
			}
			haveType[a.Type] = true
		}

		for alertType, alert := range wanted {
			if haveType[alertType] {
				continue
			}
			if _, err := tx.Insert(ctx, alert); err != nil {
				if errors.Is(err, shared.ErrDuplicateKey) {
					continue
				}
				return err
			}
		}
		return nil
	})
}

// desiredAlerts derives which alerts the item's current stock justifies.
func (s *Service) desiredAlerts(item ItemSnapshot) map[AlertType]Alert {
	wanted := make(map[AlertType]Alert, 1)
	if !item.Active {
		return wanted
	}

	switch {
	case item.TotalQuantity <= quantityEpsilon:
		wanted[AlertTypeOutOfStock] = Alert{
			ItemID:    item.ID,
			Type:      AlertTypeOutOfStock,
			Message:   fmt.Sprintf("%s (%s) is out of stock", item.Name, item.SKU),
			Quantity:  item.TotalQuantity,
			Threshold: 0,
		}
	case item.ReorderPoint > 0 && item.TotalQuantity <= item.ReorderPoint:
		wanted[AlertTypeLowStock] = Alert{
			ItemID:    item.ID,
			Type:      AlertTypeLowStock,
			Message:   fmt.Sprintf("%s (%s) is at %.1f, reorder point %.1f", item.Name, item.SKU, item.TotalQuantity, item.ReorderPoint),
			Quantity:  item.TotalQuantity,
			Threshold: item.ReorderPoint,
		}
	}

	if s.cfg.OverstockFactor > 0 && item.ReorderQuantity > 0 {
		ceiling := s.cfg.OverstockFactor * item.ReorderQuantity
		if item.TotalQuantity > ceiling {
			wanted[AlertTypeOverstock] = Alert{
				ItemID:    item.ID,
				Type:      AlertTypeOverstock,
				Message:   fmt.Sprintf("%s (%s) holds %.1f, above ceiling %.1f", item.Name, item.SKU, item.TotalQuantity, ceiling),
				Quantity:  item.TotalQuantity,
				Threshold: ceiling,
			}
		}
	}
	return wanted
}

// EvaluateAll re-runs evaluation for every active item. Used by the periodic
// reorder scan; per-item failures are logged and do not stop the sweep.
func (s *Service) EvaluateAll(ctx context.Context) error {
	ids, err := s.repo.ListItemIDs(ctx)
	if err != nil {
		return err
	}
	var failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(evaluateConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := s.Evaluate(ctx, id); err != nil {
				failed.Add(1)
				s.logger.Error("alert evaluation failed", slog.Int64("item_id", id), slog.Any("error", err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("alerts: %d of %d items failed evaluation", n, len(ids))
	}
	return nil
}

// Acknowledge marks an alert as seen by the acting user.
func (s *Service) Acknowledge(ctx context.Context, alertID int64) (Alert, error) {
	actor := shared.ActorFromContext(ctx)
	var out Alert
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		alert, err := tx.GetForUpdate(ctx, alertID)
		if err != nil {
			return err
		}
		if alert.Acknowledged {
			out = alert
			return nil
		}
		if err := tx.Acknowledge(ctx, alertID, actor.ID); err != nil {
			return err
		}
		alert.Acknowledged = true
		alert.AcknowledgedBy = actor.ID
		out = alert
		return nil
	})
	if err != nil {
		return Alert{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "alerts:acknowledge",
			Entity:   "alert",
			EntityID: fmt.Sprintf("%d", alertID),
		})
	}
	return out, nil
}

// List returns alerts, active ones first by default.
func (s *Service) List(ctx context.Context, filter Filter) ([]Alert, error) {
	return s.repo.List(ctx, filter)
}
