package bom

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/wheelworks/wheelworks/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (BOM, error)
	List(ctx context.Context, productType string) ([]BOM, error)
	FindDefault(ctx context.Context, productType, rimSize string) (BOM, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages bills of materials and the default-selection rule.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	validate *validator.Validate
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, validate: validator.New()}
}

// Create stores a new BOM. Creating it as default demotes any prior default
// for the same product type in the same transaction.
func (s *Service) Create(ctx context.Context, input Input) (BOM, error) {
	if err := s.validate.Struct(input); err != nil {
		return BOM{}, fmt.Errorf("bom: invalid input: %w", err)
	}
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b := BOM{
			Name:        input.Name,
			ProductType: input.ProductType,
			ModelCode:   input.ModelCode,
			RimSize:     input.RimSize,
			IsDefault:   input.IsDefault,
		}
		var err error
		if id, err = tx.Insert(ctx, b); err != nil {
			return err
		}
		if input.IsDefault {
			if err := tx.DemoteDefaults(ctx, input.ProductType, id); err != nil {
				return err
			}
		}
		return tx.ReplaceComponents(ctx, id, componentsFromInput(id, input.Components))
	})
	if err != nil {
		return BOM{}, err
	}
	s.record(ctx, "bom:create", id)
	return s.repo.Get(ctx, id)
}

// Update rewrites a BOM and its component set.
func (s *Service) Update(ctx context.Context, id int64, input Input) (BOM, error) {
	if err := s.validate.Struct(input); err != nil {
		return BOM{}, fmt.Errorf("bom: invalid input: %w", err)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		current.Name = input.Name
		current.ProductType = input.ProductType
		current.ModelCode = input.ModelCode
		current.RimSize = input.RimSize
		if err := tx.Update(ctx, current); err != nil {
			return err
		}
		return tx.ReplaceComponents(ctx, id, componentsFromInput(id, input.Components))
	})
	if err != nil {
		return BOM{}, err
	}
	s.record(ctx, "bom:update", id)
	return s.repo.Get(ctx, id)
}

// Delete removes a BOM and its components.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, id); err != nil {
			return err
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "bom:delete", id)
	return nil
}

// Get fetches one BOM with components.
func (s *Service) Get(ctx context.Context, id int64) (BOM, error) {
	return s.repo.Get(ctx, id)
}

// List returns BOMs, optionally narrowed to a product type.
func (s *Service) List(ctx context.Context, productType string) ([]BOM, error) {
	return s.repo.List(ctx, productType)
}

// SelectDefault resolves the BOM to build a product with. An exact rim size
// default wins; otherwise the product type default is used.
func (s *Service) SelectDefault(ctx context.Context, productType, rimSize string) (BOM, error) {
	return s.repo.FindDefault(ctx, productType, rimSize)
}

// SetDefault promotes one BOM to default for its product type. Demotion of
// the previous default and promotion commit as a single transaction, so two
// defaults can never be observed.
func (s *Service) SetDefault(ctx context.Context, id int64) (BOM, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DemoteDefaults(ctx, b.ProductType, id); err != nil {
			return err
		}
		return tx.Promote(ctx, id)
	})
	if err != nil {
		return BOM{}, err
	}
	s.record(ctx, "bom:set_default", id)
	return s.repo.Get(ctx, id)
}

func componentsFromInput(bomID int64, inputs []ComponentInput) []BOMComponent {
	components := make([]BOMComponent, 0, len(inputs))
	for i, in := range inputs {
		components = append(components, BOMComponent{
			BOMID:           bomID,
			ItemID:          in.ItemID,
			QuantityPerUnit: in.QuantityPerUnit,
			IsOptional:      in.IsOptional,
			Position:        i + 1,
		})
	}
	return components
}

func (s *Service) record(ctx context.Context, action string, id int64) {
	if s.audit == nil {
		return
	}
	actor := shared.ActorFromContext(ctx)
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "bom",
		EntityID: fmt.Sprintf("%d", id),
	})
}
