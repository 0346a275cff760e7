package stock

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wheelworks/wheelworks/internal/shared"
)

type memoryRepo struct {
	mu           sync.Mutex
	levels       map[string]StockLevel
	items        map[int64]ItemState
	transactions []Transaction
	serials      map[int64]SerialItem
	nextID       int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		levels:  make(map[string]StockLevel),
		items:   make(map[int64]ItemState),
		serials: make(map[int64]SerialItem),
	}
}

func (r *memoryRepo) seedItem(id int64, tracked bool) {
	r.items[id] = ItemState{ID: id, TrackIndividually: tracked}
}

func levelKey(itemID, locationID int64) string {
	return fmt.Sprintf("%d:%d", itemID, locationID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetLevel(ctx context.Context, itemID, locationID int64) (StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lvl, ok := r.levels[levelKey(itemID, locationID)]; ok {
		return lvl, nil
	}
	return StockLevel{ItemID: itemID, LocationID: locationID}, nil
}

func (r *memoryRepo) ListLevels(ctx context.Context, filter LevelFilter) ([]StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StockLevel
	for _, lvl := range r.levels {
		if filter.ItemID != 0 && lvl.ItemID != filter.ItemID {
			continue
		}
		if filter.LocationID != 0 && lvl.LocationID != filter.LocationID {
			continue
		}
		out = append(out, lvl)
	}
	return out, nil
}

func (r *memoryRepo) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Transaction
	for _, tx := range r.transactions {
		if filter.ItemID != 0 && tx.ItemID != filter.ItemID {
			continue
		}
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (r *memoryRepo) GetSerial(ctx context.Context, id int64) (SerialItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.serials[id]; ok {
		return s, nil
	}
	return SerialItem{}, shared.ErrNotFound
}

func (r *memoryRepo) GetSerialByBarcode(ctx context.Context, barcode string) (SerialItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.serials {
		if s.Barcode == barcode {
			return s, nil
		}
	}
	return SerialItem{}, shared.ErrNotFound
}

func (r *memoryRepo) ListSerials(ctx context.Context, itemID int64, status SerialStatus) ([]SerialItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SerialItem
	for _, s := range r.serials {
		if itemID != 0 && s.ItemID != itemID {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (tx *memoryTx) GetLevelForUpdate(ctx context.Context, itemID, locationID int64) (StockLevel, error) {
	if lvl, ok := tx.repo.levels[levelKey(itemID, locationID)]; ok {
		return lvl, nil
	}
	return StockLevel{ItemID: itemID, LocationID: locationID}, ErrLevelNotFound
}

func (tx *memoryTx) UpsertLevel(ctx context.Context, level StockLevel) error {
	tx.repo.levels[levelKey(level.ItemID, level.LocationID)] = level
	return nil
}

func (tx *memoryTx) GetItemForUpdate(ctx context.Context, itemID int64) (ItemState, error) {
	if item, ok := tx.repo.items[itemID]; ok {
		return item, nil
	}
	return ItemState{}, shared.ErrNotFound
}

func (tx *memoryTx) UpdateItemCost(ctx context.Context, itemID int64, cost decimal.Decimal) error {
	item := tx.repo.items[itemID]
	item.CostPerUnit = cost
	tx.repo.items[itemID] = item
	return nil
}

func (tx *memoryTx) RecomputeItemTotals(ctx context.Context, itemID int64) (float64, error) {
	var total float64
	for _, lvl := range tx.repo.levels {
		if lvl.ItemID == itemID {
			total += lvl.Quantity
		}
	}
	item := tx.repo.items[itemID]
	item.TotalQuantity = total
	tx.repo.items[itemID] = item
	return total, nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, t Transaction) (int64, error) {
	tx.repo.nextID++
	t.ID = tx.repo.nextID
	tx.repo.transactions = append(tx.repo.transactions, t)
	return t.ID, nil
}

func (tx *memoryTx) InsertSerial(ctx context.Context, serial SerialItem) (int64, error) {
	tx.repo.nextID++
	serial.ID = tx.repo.nextID
	tx.repo.serials[serial.ID] = serial
	return serial.ID, nil
}

func (tx *memoryTx) GetSerialForUpdate(ctx context.Context, serialID int64) (SerialItem, error) {
	if s, ok := tx.repo.serials[serialID]; ok {
		return s, nil
	}
	return SerialItem{}, shared.ErrNotFound
}

func (tx *memoryTx) UpdateSerial(ctx context.Context, serialID int64, status SerialStatus, locationID int64) error {
	s, ok := tx.repo.serials[serialID]
	if !ok {
		return shared.ErrNotFound
	}
	s.Status = status
	if locationID != 0 {
		s.LocationID = locationID
	}
	tx.repo.serials[serialID] = s
	return nil
}

func TestReceiveWeightedAverage(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedItem(1, false)
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{ItemID: 1, LocationID: 1, Quantity: 10, UnitCost: decimal.NewFromFloat(5)})
	require.NoError(t, err)
	require.True(t, repo.items[1].CostPerUnit.Equal(decimal.NewFromFloat(5)))

	_, err = svc.Receive(ctx, ReceiveInput{ItemID: 1, LocationID: 1, Quantity: 10, UnitCost: decimal.NewFromFloat(7)})
	require.NoError(t, err)
	require.True(t, repo.items[1].CostPerUnit.Equal(decimal.NewFromFloat(6)),
		"got %s", repo.items[1].CostPerUnit)
	require.InDelta(t, 20, repo.items[1].TotalQuantity, 0.0001)
}

func TestReceiveZeroQuantityRejected(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedItem(1, false)
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})

	_, err := svc.Receive(context.Background(), ReceiveInput{ItemID: 1, LocationID: 1, Quantity: 0, UnitCost: decimal.NewFromFloat(99)})
	require.Error(t, err)
	require.True(t, repo.items[1].CostPerUnit.IsZero(), "zero receive must not move the average")
	require.Empty(t, repo.transactions)
}

func TestReceiveTrackedRequiresSerials(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedItem(1, true)
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{ItemID: 1, LocationID: 1, Quantity: 2, UnitCost: decimal.NewFromFloat(10)})
	require.ErrorIs(t, err, ErrSerialCountMismatch)

	_, err = svc.Receive(ctx, ReceiveInput{
		ItemID: 1, LocationID: 1, Quantity: 2, UnitCost: decimal.NewFromFloat(10),
		Serials: []SerialInput{
			{SerialNumber: "SN-001", Barcode: "BC-001"},
			{SerialNumber: "SN-002", Barcode: "BC-002"},
		},
	})
	require.NoError(t, err)
	require.Len(t, repo.serials, 2)
}

func TestTransferConservesQuantity(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedItem(1, false)
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{ItemID: 1, LocationID: 1, Quantity: 20, UnitCost: decimal.NewFromFloat(5)})
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, TransferInput{ItemID: 1, FromLocationID: 1, ToLocationID: 2, Quantity: 8})
	require.NoError(t, err)

	src, _ := repo.GetLevel(ctx, 1, 1)
	dst, _ := repo.GetLevel(ctx, 1, 2)
	require.InDelta(t, 12, src.Quantity, 0.0001)
	require.InDelta(t, 8, dst.Quantity, 0.0001)
	require.InDelta(t, 20, repo.items[1].TotalQuantity, 0.0001)

	_, err = svc.Transfer(ctx, TransferInput{ItemID: 1, FromLocationID: 1, ToLocationID: 2, Quantity: 50})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestTransferRespectsReservations(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedItem(1, false)
	repo.levels[levelKey(1, 1)] = StockLevel{ItemID: 1, LocationID: 1, Quantity: 10, Reserved: 7}
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})

	_, err := svc.Transfer(context.Background(), TransferInput{ItemID: 1, FromLocationID: 1, ToLocationID: 2, Quantity: 5})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestAdjustNegativeGuard(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedItem(1, false)
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})

	_, err := svc.Adjust(context.Background(), AdjustInput{ItemID: 1, LocationID: 1, Delta: -3})
	require.ErrorIs(t, err, shared.ErrInvariantViolation)
}

func TestAdjustAllowNegative(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedItem(1, false)
	svc := NewService(repo, nil, nil, nil, ServiceConfig{AllowNegativeStock: true})

	_, err := svc.Adjust(context.Background(), AdjustInput{ItemID: 1, LocationID: 1, Delta: -3})
	require.NoError(t, err)
	lvl, _ := repo.GetLevel(context.Background(), 1, 1)
	require.InDelta(t, -3, lvl.Quantity, 0.0001)
}

func TestConcurrentAdjustments(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedItem(1, false)
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	const workers = 25
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Adjust(ctx, AdjustInput{ItemID: 1, LocationID: 1, Delta: 1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	lvl, _ := repo.GetLevel(ctx, 1, 1)
	require.InDelta(t, workers, lvl.Quantity, 0.0001)
	require.Len(t, repo.transactions, workers)
}

func TestConcurrentReservationsSingleWinner(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedItem(1, false)
	repo.levels[levelKey(1, 1)] = StockLevel{ItemID: 1, LocationID: 1, Quantity: 5}
	ctx := context.Background()

	// Two pickers race to reserve 4 against 5 available. The row lock makes
	// the second read the first's reservation, so only one can win.
	reserve := func() error {
		return repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			lvl, err := tx.GetLevelForUpdate(ctx, 1, 1)
			if err != nil {
				return err
			}
			updated, err := ApplyDelta(lvl, 0, 4, false)
			if err != nil {
				return err
			}
			return tx.UpsertLevel(ctx, updated)
		})
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- reserve()
		}()
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		if err == nil {
			won++
			continue
		}
		require.ErrorIs(t, err, shared.ErrInvariantViolation)
		lost++
	}
	require.Equal(t, 1, won)
	require.Equal(t, 1, lost)

	lvl := repo.levels[levelKey(1, 1)]
	require.InDelta(t, 4, lvl.Reserved, 0.0001)
	require.GreaterOrEqual(t, lvl.Available(), 0.0)
}

func TestScrapMarksSerial(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedItem(1, true)
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{
		ItemID: 1, LocationID: 1, Quantity: 1, UnitCost: decimal.NewFromFloat(40),
		Serials: []SerialInput{{SerialNumber: "SN-9", Barcode: "BC-9"}},
	})
	require.NoError(t, err)

	var serialID int64
	for id := range repo.serials {
		serialID = id
	}
	_, err = svc.Scrap(ctx, ScrapInput{ItemID: 1, LocationID: 1, Quantity: 1, SerialID: serialID})
	require.NoError(t, err)
	require.Equal(t, SerialStatusScrapped, repo.serials[serialID].Status)
	require.InDelta(t, 0, repo.items[1].TotalQuantity, 0.0001)
}

func TestTransactionLogRecordsEveryMovement(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedItem(1, false)
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{ItemID: 1, LocationID: 1, Quantity: 10, UnitCost: decimal.NewFromFloat(5)})
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, TransferInput{ItemID: 1, FromLocationID: 1, ToLocationID: 2, Quantity: 4})
	require.NoError(t, err)
	_, err = svc.Return(ctx, ReturnInput{ItemID: 1, LocationID: 1, Quantity: 1})
	require.NoError(t, err)

	txs, err := repo.ListTransactions(ctx, TransactionFilter{ItemID: 1})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	require.Equal(t, TransactionTypeReceive, txs[0].Type)
	require.Equal(t, TransactionTypeTransfer, txs[1].Type)
	require.Equal(t, TransactionTypeReturn, txs[2].Type)
}
