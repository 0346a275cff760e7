package catalog

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/wheelworks/wheelworks/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	CreateItem(ctx context.Context, input ItemInput) (Item, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	GetItemBySKU(ctx context.Context, sku string) (Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error)
	UpdateItem(ctx context.Context, id int64, input ItemInput) (Item, error)
	DeactivateItem(ctx context.Context, id int64) error
	CreateLocation(ctx context.Context, input LocationInput) (Location, error)
	GetLocation(ctx context.Context, id int64) (Location, error)
	ListLocations(ctx context.Context, activeOnly bool) ([]Location, error)
	DeactivateLocation(ctx context.Context, id int64) error
	ValuationByCategory(ctx context.Context) ([]CategoryValuation, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates catalog operations.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	validate *validator.Validate
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, validate: validator.New()}
}

// CreateItem validates and inserts a catalog item.
func (s *Service) CreateItem(ctx context.Context, input ItemInput) (Item, error) {
	if err := s.validate.Struct(input); err != nil {
		return Item{}, fmt.Errorf("catalog: invalid item: %w", err)
	}
	if input.DefaultLocationID != 0 {
		if _, err := s.repo.GetLocation(ctx, input.DefaultLocationID); err != nil {
			return Item{}, fmt.Errorf("catalog: default location: %w", err)
		}
	}
	item, err := s.repo.CreateItem(ctx, input)
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, "catalog:item_create", "item", item.ID, map[string]any{"sku": item.SKU})
	return item, nil
}

// GetItem returns one item.
func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

// GetItemBySKU returns the item carrying the SKU.
func (s *Service) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	return s.repo.GetItemBySKU(ctx, sku)
}

// ListItems lists items with filters.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error) {
	return s.repo.ListItems(ctx, filter)
}

// UpdateItem validates and rewrites descriptive fields.
func (s *Service) UpdateItem(ctx context.Context, id int64, input ItemInput) (Item, error) {
	if err := s.validate.Struct(input); err != nil {
		return Item{}, fmt.Errorf("catalog: invalid item: %w", err)
	}
	item, err := s.repo.UpdateItem(ctx, id, input)
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, "catalog:item_update", "item", id, map[string]any{"sku": item.SKU})
	return item, nil
}

// DeactivateItem soft-deletes an item.
func (s *Service) DeactivateItem(ctx context.Context, id int64) error {
	if err := s.repo.DeactivateItem(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "catalog:item_deactivate", "item", id, nil)
	return nil
}

// CreateLocation validates and inserts a location.
func (s *Service) CreateLocation(ctx context.Context, input LocationInput) (Location, error) {
	if err := s.validate.Struct(input); err != nil {
		return Location{}, fmt.Errorf("catalog: invalid location: %w", err)
	}
	if !input.Type.IsValid() {
		return Location{}, fmt.Errorf("catalog: unknown location type %q", input.Type)
	}
	loc, err := s.repo.CreateLocation(ctx, input)
	if err != nil {
		return Location{}, err
	}
	s.recordAudit(ctx, "catalog:location_create", "location", loc.ID, map[string]any{"code": loc.Code})
	return loc, nil
}

// GetLocation returns one location.
func (s *Service) GetLocation(ctx context.Context, id int64) (Location, error) {
	return s.repo.GetLocation(ctx, id)
}

// ListLocations lists locations.
func (s *Service) ListLocations(ctx context.Context, activeOnly bool) ([]Location, error) {
	return s.repo.ListLocations(ctx, activeOnly)
}

// DeactivateLocation soft-deletes a location.
func (s *Service) DeactivateLocation(ctx context.Context, id int64) error {
	if err := s.repo.DeactivateLocation(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "catalog:location_deactivate", "location", id, nil)
	return nil
}

// ValuationByCategory reports current stock value per category.
func (s *Service) ValuationByCategory(ctx context.Context) ([]CategoryValuation, error) {
	return s.repo.ValuationByCategory(ctx)
}

func (s *Service) recordAudit(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor := shared.ActorFromContext(ctx)
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
