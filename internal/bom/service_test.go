package bom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wheelworks/wheelworks/internal/shared"
)

type memoryRepo struct {
	boms       map[int64]BOM
	components map[int64][]BOMComponent
	nextID     int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		boms:       make(map[int64]BOM),
		components: make(map[int64][]BOMComponent),
	}
}

func (r *memoryRepo) defaultCount(productType string) int {
	n := 0
	for _, b := range r.boms {
		if b.ProductType == productType && b.IsDefault {
			n++
		}
	}
	return n
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (BOM, error) {
	b, ok := r.boms[id]
	if !ok {
		return BOM{}, shared.ErrNotFound
	}
	b.Components = r.components[id]
	return b, nil
}

func (r *memoryRepo) List(ctx context.Context, productType string) ([]BOM, error) {
	var out []BOM
	for id, b := range r.boms {
		if productType != "" && b.ProductType != productType {
			continue
		}
		b.Components = r.components[id]
		out = append(out, b)
	}
	return out, nil
}

func (r *memoryRepo) FindDefault(ctx context.Context, productType, rimSize string) (BOM, error) {
	var fallback *BOM
	for id, b := range r.boms {
		if b.ProductType != productType || !b.IsDefault {
			continue
		}
		b.Components = r.components[id]
		if rimSize != "" && b.RimSize == rimSize {
			return b, nil
		}
		copied := b
		fallback = &copied
	}
	if fallback != nil {
		return *fallback, nil
	}
	return BOM{}, shared.ErrNotFound
}

func (tx *memoryTx) Insert(ctx context.Context, b BOM) (int64, error) {
	tx.repo.nextID++
	b.ID = tx.repo.nextID
	tx.repo.boms[b.ID] = b
	return b.ID, nil
}

func (tx *memoryTx) Update(ctx context.Context, b BOM) error {
	if _, ok := tx.repo.boms[b.ID]; !ok {
		return shared.ErrNotFound
	}
	b.Components = nil
	tx.repo.boms[b.ID] = b
	return nil
}

func (tx *memoryTx) Delete(ctx context.Context, id int64) error {
	if _, ok := tx.repo.boms[id]; !ok {
		return shared.ErrNotFound
	}
	delete(tx.repo.boms, id)
	delete(tx.repo.components, id)
	return nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (BOM, error) {
	b, ok := tx.repo.boms[id]
	if !ok {
		return BOM{}, shared.ErrNotFound
	}
	return b, nil
}

func (tx *memoryTx) ReplaceComponents(ctx context.Context, bomID int64, components []BOMComponent) error {
	tx.repo.components[bomID] = components
	return nil
}

func (tx *memoryTx) DemoteDefaults(ctx context.Context, productType string, exceptID int64) error {
	for id, b := range tx.repo.boms {
		if b.ProductType == productType && b.IsDefault && id != exceptID {
			b.IsDefault = false
			tx.repo.boms[id] = b
		}
	}
	return nil
}

func (tx *memoryTx) Promote(ctx context.Context, id int64) error {
	b, ok := tx.repo.boms[id]
	if !ok {
		return shared.ErrNotFound
	}
	b.IsDefault = true
	tx.repo.boms[id] = b
	return nil
}

func wheelInput(name, rimSize string, isDefault bool) Input {
	return Input{
		Name:        name,
		ProductType: "wheelchair_wheel",
		RimSize:     rimSize,
		IsDefault:   isDefault,
		Components: []ComponentInput{
			{ItemID: 1, QuantityPerUnit: 1},
			{ItemID: 2, QuantityPerUnit: 36},
		},
	}
}

func TestSetDefaultDemotesPrior(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, wheelInput("standard 24", "24", true))
	require.NoError(t, err)
	second, err := svc.Create(ctx, wheelInput("sport 24", "24", false))
	require.NoError(t, err)

	promoted, err := svc.SetDefault(ctx, second.ID)
	require.NoError(t, err)
	require.True(t, promoted.IsDefault)
	require.Equal(t, 1, repo.defaultCount("wheelchair_wheel"))
	require.False(t, repo.boms[first.ID].IsDefault)
}

func TestCreateDefaultDemotesPrior(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, wheelInput("standard", "", true))
	require.NoError(t, err)
	_, err = svc.Create(ctx, wheelInput("revised", "", true))
	require.NoError(t, err)
	require.Equal(t, 1, repo.defaultCount("wheelchair_wheel"))
}

func TestSelectDefaultPrefersRimMatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	repo.nextID = 10
	repo.boms[11] = BOM{ID: 11, ProductType: "wheelchair_wheel", RimSize: "24", IsDefault: true}
	repo.boms[12] = BOM{ID: 12, ProductType: "wheelchair_wheel", RimSize: "26", IsDefault: true}

	b, err := svc.SelectDefault(ctx, "wheelchair_wheel", "26")
	require.NoError(t, err)
	require.Equal(t, int64(12), b.ID)

	// Unknown rim size falls back to a product type default.
	b, err = svc.SelectDefault(ctx, "wheelchair_wheel", "20")
	require.NoError(t, err)
	require.Equal(t, "wheelchair_wheel", b.ProductType)

	_, err = svc.SelectDefault(ctx, "castor_fork", "")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateRequiresComponents(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	input := wheelInput("empty", "", false)
	input.Components = nil
	_, err := svc.Create(context.Background(), input)
	require.Error(t, err)
}
