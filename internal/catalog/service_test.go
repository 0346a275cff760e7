package catalog

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wheelworks/wheelworks/internal/shared"
)

type memoryRepo struct {
	items      map[int64]Item
	locations  map[int64]Location
	nextItem   int64
	nextLoc    int64
	valuations []CategoryValuation
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		items:     make(map[int64]Item),
		locations: make(map[int64]Location),
	}
}

func (r *memoryRepo) CreateItem(ctx context.Context, input ItemInput) (Item, error) {
	for _, it := range r.items {
		if it.SKU == input.SKU {
			return Item{}, shared.ErrDuplicateKey
		}
	}
	r.nextItem++
	item := Item{
		ID:                r.nextItem,
		SKU:               input.SKU,
		Name:              input.Name,
		Category:          input.Category,
		Unit:              input.Unit,
		TrackIndividually: input.TrackIndividually,
		SellPrice:         input.SellPrice,
		ReorderPoint:      input.ReorderPoint,
		ReorderQuantity:   input.ReorderQuantity,
		DefaultLocationID: input.DefaultLocationID,
		IsActive:          true,
	}
	r.items[item.ID] = item
	return item, nil
}

func (r *memoryRepo) GetItem(ctx context.Context, id int64) (Item, error) {
	if item, ok := r.items[id]; ok {
		return item, nil
	}
	return Item{}, shared.ErrNotFound
}

func (r *memoryRepo) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	for _, it := range r.items {
		if it.SKU == sku {
			return it, nil
		}
	}
	return Item{}, shared.ErrNotFound
}

func (r *memoryRepo) ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error) {
	var out []Item
	for _, it := range r.items {
		if filter.Category != "" && it.Category != filter.Category {
			continue
		}
		if filter.ActiveOnly && !it.IsActive {
			continue
		}
		out = append(out, it)
	}
	return out, len(out), nil
}

func (r *memoryRepo) UpdateItem(ctx context.Context, id int64, input ItemInput) (Item, error) {
	item, ok := r.items[id]
	if !ok {
		return Item{}, shared.ErrNotFound
	}
	item.Name = input.Name
	item.Category = input.Category
	item.Unit = input.Unit
	item.SellPrice = input.SellPrice
	item.ReorderPoint = input.ReorderPoint
	item.ReorderQuantity = input.ReorderQuantity
	r.items[id] = item
	return item, nil
}

func (r *memoryRepo) DeactivateItem(ctx context.Context, id int64) error {
	item, ok := r.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	item.IsActive = false
	r.items[id] = item
	return nil
}

func (r *memoryRepo) CreateLocation(ctx context.Context, input LocationInput) (Location, error) {
	r.nextLoc++
	loc := Location{ID: r.nextLoc, Code: input.Code, Name: input.Name, Type: input.Type, IsActive: true}
	r.locations[loc.ID] = loc
	return loc, nil
}

func (r *memoryRepo) GetLocation(ctx context.Context, id int64) (Location, error) {
	if loc, ok := r.locations[id]; ok {
		return loc, nil
	}
	return Location{}, shared.ErrNotFound
}

func (r *memoryRepo) ListLocations(ctx context.Context, activeOnly bool) ([]Location, error) {
	var out []Location
	for _, loc := range r.locations {
		if activeOnly && !loc.IsActive {
			continue
		}
		out = append(out, loc)
	}
	return out, nil
}

func (r *memoryRepo) DeactivateLocation(ctx context.Context, id int64) error {
	loc, ok := r.locations[id]
	if !ok {
		return shared.ErrNotFound
	}
	loc.IsActive = false
	r.locations[id] = loc
	return nil
}

func (r *memoryRepo) ValuationByCategory(ctx context.Context) ([]CategoryValuation, error) {
	return r.valuations, nil
}

func validItem() ItemInput {
	return ItemInput{
		SKU:             "RIM-26-DW",
		Name:            `Rim 26" double wall`,
		Category:        "rims",
		Unit:            "pcs",
		SellPrice:       decimal.RequireFromString("29.90"),
		ReorderPoint:    40,
		ReorderQuantity: 120,
	}
}

func TestCreateItem(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	item, err := svc.CreateItem(context.Background(), validItem())
	require.NoError(t, err)
	require.NotZero(t, item.ID)
	require.True(t, item.IsActive)

	_, err = svc.CreateItem(context.Background(), validItem())
	require.ErrorIs(t, err, shared.ErrDuplicateKey)
}

func TestCreateItemRejectsMissingFields(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	input := validItem()
	input.SKU = ""
	_, err := svc.CreateItem(context.Background(), input)
	require.Error(t, err)

	input = validItem()
	input.ReorderPoint = -1
	_, err = svc.CreateItem(context.Background(), input)
	require.Error(t, err)
}

func TestCreateItemRequiresKnownDefaultLocation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	input := validItem()
	input.DefaultLocationID = 99
	_, err := svc.CreateItem(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrNotFound)

	loc, err := svc.CreateLocation(context.Background(), LocationInput{Code: "WH-MAIN", Name: "Main Warehouse", Type: LocationTypeStorage})
	require.NoError(t, err)

	input.DefaultLocationID = loc.ID
	_, err = svc.CreateItem(context.Background(), input)
	require.NoError(t, err)
}

func TestCreateLocationRejectsUnknownType(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.CreateLocation(context.Background(), LocationInput{Code: "X", Name: "X", Type: LocationType("basement")})
	require.Error(t, err)
}

func TestDeactivateItemHidesItFromActiveListing(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, validItem())
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateItem(ctx, item.ID))

	active, _, err := svc.ListItems(ctx, ItemFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Empty(t, active)

	all, _, err := svc.ListItems(ctx, ItemFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
}
