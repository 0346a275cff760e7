package picklist

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wheelworks/wheelworks/internal/bom"
	"github.com/wheelworks/wheelworks/internal/orders"
	"github.com/wheelworks/wheelworks/internal/shared"
	"github.com/wheelworks/wheelworks/internal/stock"
)

type memoryStore struct {
	orders       map[int64]orders.Order
	boms         map[int64]bom.BOM
	items        map[int64]stock.ItemState
	levels       map[string]stock.StockLevel
	serials      map[int64]stock.SerialItem
	transactions []stock.Transaction
	lists        map[int64]PickList
	lines        map[int64]PickListItem
	seq          int64
	nextID       int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orders:  make(map[int64]orders.Order),
		boms:    make(map[int64]bom.BOM),
		items:   make(map[int64]stock.ItemState),
		levels:  make(map[string]stock.StockLevel),
		serials: make(map[int64]stock.SerialItem),
		lists:   make(map[int64]PickList),
		lines:   make(map[int64]PickListItem),
	}
}

func (m *memoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func levelKey(itemID, locationID int64) string {
	return fmt.Sprintf("%d:%d", itemID, locationID)
}

func (m *memoryStore) stockLevel(itemID, locationID int64) stock.StockLevel {
	return m.levels[levelKey(itemID, locationID)]
}

func (m *memoryStore) listLines(listID int64) []PickListItem {
	var out []PickListItem
	for _, line := range m.lines {
		if line.PickListID == listID {
			out = append(out, line)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// memoryTx implements TxRepository over the shared store.
type memoryTx struct {
	store *memoryStore
}

func (m *memoryTx) Ledger() stock.TxRepository {
	return &memoryLedger{store: m.store}
}

func (m *memoryTx) NextNumber(ctx context.Context, now time.Time) (string, error) {
	m.store.seq++
	return fmt.Sprintf("PL-%s-%04d", now.UTC().Format("200601"), m.store.seq), nil
}

func (m *memoryTx) InsertList(ctx context.Context, pl PickList) (int64, error) {
	pl.ID = m.store.id()
	m.store.lists[pl.ID] = pl
	return pl.ID, nil
}

func (m *memoryTx) InsertItem(ctx context.Context, line PickListItem) (int64, error) {
	line.ID = m.store.id()
	m.store.lines[line.ID] = line
	return line.ID, nil
}

func (m *memoryTx) GetForUpdate(ctx context.Context, id int64) (PickList, error) {
	pl, ok := m.store.lists[id]
	if !ok {
		return PickList{}, shared.ErrNotFound
	}
	pl.Items = m.store.listLines(id)
	return pl, nil
}

func (m *memoryTx) UpdateListStatus(ctx context.Context, id int64, status Status) error {
	pl, ok := m.store.lists[id]
	if !ok {
		return shared.ErrNotFound
	}
	now := time.Now()
	pl.Status = status
	switch status {
	case StatusCompleted:
		pl.CompletedAt = &now
	case StatusCancelled:
		pl.CancelledAt = &now
	}
	m.store.lists[id] = pl
	return nil
}

func (m *memoryTx) UpdateAssignee(ctx context.Context, id, assigneeID int64, assigneeName string) error {
	pl, ok := m.store.lists[id]
	if !ok {
		return shared.ErrNotFound
	}
	pl.AssigneeID = assigneeID
	pl.AssigneeName = assigneeName
	m.store.lists[id] = pl
	return nil
}

func (m *memoryTx) UpdateItem(ctx context.Context, line PickListItem) error {
	if _, ok := m.store.lines[line.ID]; !ok {
		return shared.ErrNotFound
	}
	m.store.lines[line.ID] = line
	return nil
}

func (m *memoryTx) BestLocation(ctx context.Context, itemID, preferredLocationID int64) (int64, error) {
	if preferredLocationID != 0 && m.store.stockLevel(itemID, preferredLocationID).Available() > 0 {
		return preferredLocationID, nil
	}
	var best int64
	var bestAvail float64
	for _, lvl := range m.store.levels {
		if lvl.ItemID == itemID && lvl.Available() > bestAvail {
			best = lvl.LocationID
			bestAvail = lvl.Available()
		}
	}
	return best, nil
}

// memoryLedger implements stock.TxRepository over the shared store.
type memoryLedger struct {
	store *memoryStore
}

func (m *memoryLedger) GetLevelForUpdate(ctx context.Context, itemID, locationID int64) (stock.StockLevel, error) {
	if lvl, ok := m.store.levels[levelKey(itemID, locationID)]; ok {
		return lvl, nil
	}
	return stock.StockLevel{ItemID: itemID, LocationID: locationID}, stock.ErrLevelNotFound
}

func (m *memoryLedger) UpsertLevel(ctx context.Context, level stock.StockLevel) error {
	m.store.levels[levelKey(level.ItemID, level.LocationID)] = level
	return nil
}

func (m *memoryLedger) GetItemForUpdate(ctx context.Context, itemID int64) (stock.ItemState, error) {
	if item, ok := m.store.items[itemID]; ok {
		return item, nil
	}
	return stock.ItemState{}, shared.ErrNotFound
}

func (m *memoryLedger) UpdateItemCost(ctx context.Context, itemID int64, cost decimal.Decimal) error {
	item := m.store.items[itemID]
	item.CostPerUnit = cost
	m.store.items[itemID] = item
	return nil
}

func (m *memoryLedger) RecomputeItemTotals(ctx context.Context, itemID int64) (float64, error) {
	var total float64
	for _, lvl := range m.store.levels {
		if lvl.ItemID == itemID {
			total += lvl.Quantity
		}
	}
	item := m.store.items[itemID]
	item.TotalQuantity = total
	m.store.items[itemID] = item
	return total, nil
}

func (m *memoryLedger) InsertTransaction(ctx context.Context, t stock.Transaction) (int64, error) {
	t.ID = m.store.id()
	m.store.transactions = append(m.store.transactions, t)
	return t.ID, nil
}

func (m *memoryLedger) InsertSerial(ctx context.Context, serial stock.SerialItem) (int64, error) {
	serial.ID = m.store.id()
	m.store.serials[serial.ID] = serial
	return serial.ID, nil
}

func (m *memoryLedger) GetSerialForUpdate(ctx context.Context, serialID int64) (stock.SerialItem, error) {
	if s, ok := m.store.serials[serialID]; ok {
		return s, nil
	}
	return stock.SerialItem{}, shared.ErrNotFound
}

func (m *memoryLedger) UpdateSerial(ctx context.Context, serialID int64, status stock.SerialStatus, locationID int64) error {
	s, ok := m.store.serials[serialID]
	if !ok {
		return shared.ErrNotFound
	}
	s.Status = status
	if locationID != 0 {
		s.LocationID = locationID
	}
	m.store.serials[serialID] = s
	return nil
}

// memoryRepo implements RepositoryPort.
type memoryRepo struct {
	store *memoryStore
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{store: r.store})
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (PickList, error) {
	pl, ok := r.store.lists[id]
	if !ok {
		return PickList{}, shared.ErrNotFound
	}
	pl.Items = r.store.listLines(id)
	return pl, nil
}

func (r *memoryRepo) List(ctx context.Context, filter Filter) ([]PickList, int, error) {
	var out []PickList
	for _, pl := range r.store.lists {
		if filter.Status != "" && pl.Status != filter.Status {
			continue
		}
		out = append(out, pl)
	}
	return out, len(out), nil
}

type ordersPort struct {
	store *memoryStore
}

func (p *ordersPort) Get(ctx context.Context, id int64) (orders.Order, error) {
	if o, ok := p.store.orders[id]; ok {
		return o, nil
	}
	return orders.Order{}, shared.ErrNotFound
}

type bomPort struct {
	store *memoryStore
}

func (p *bomPort) Get(ctx context.Context, id int64) (bom.BOM, error) {
	if b, ok := p.store.boms[id]; ok {
		return b, nil
	}
	return bom.BOM{}, shared.ErrNotFound
}

func (p *bomPort) SelectDefault(ctx context.Context, productType, rimSize string) (bom.BOM, error) {
	for _, b := range p.store.boms {
		if b.ProductType == productType && b.IsDefault {
			return b, nil
		}
	}
	return bom.BOM{}, shared.ErrNotFound
}

func testService(store *memoryStore) *Service {
	return NewService(&memoryRepo{store: store}, &ordersPort{store: store}, &bomPort{store: store},
		nil, nil, slog.Default(), ServiceConfig{})
}

// seedWheelOrder sets up an order for two wheels whose BOM needs one rim and
// 36 spokes per wheel.
func seedWheelOrder(store *memoryStore) {
	store.orders[1] = orders.Order{ID: 1, OrderNumber: "ORD-100", ProductType: "wheelchair_wheel", RimSize: "24", Quantity: 2}
	store.boms[5] = bom.BOM{
		ID: 5, ProductType: "wheelchair_wheel", RimSize: "24", IsDefault: true,
		Components: []bom.BOMComponent{
			{ItemID: 10, QuantityPerUnit: 1},
			{ItemID: 11, QuantityPerUnit: 36},
		},
	}
	store.items[10] = stock.ItemState{ID: 10, DefaultLocationID: 1}
	store.items[11] = stock.ItemState{ID: 11, DefaultLocationID: 1}
}

func TestGenerateReservesAtDefaultLocation(t *testing.T) {
	store := newMemoryStore()
	seedWheelOrder(store)
	store.levels[levelKey(10, 1)] = stock.StockLevel{ItemID: 10, LocationID: 1, Quantity: 8}
	store.levels[levelKey(11, 2)] = stock.StockLevel{ItemID: 11, LocationID: 2, Quantity: 100}
	svc := testService(store)

	pl, err := svc.Generate(context.Background(), GenerateInput{OrderID: 1})
	require.NoError(t, err)
	require.Equal(t, StatusPending, pl.Status)
	require.Regexp(t, `^PL-\d{6}-\d{4}$`, pl.Number)
	require.Len(t, pl.Items, 2)

	// Rims use the default location; spokes fall back to the stocked one.
	rims, spokes := pl.Items[0], pl.Items[1]
	require.Equal(t, int64(1), rims.LocationID)
	require.InDelta(t, 2, rims.QuantityRequired, 0.0001)
	require.InDelta(t, 2, rims.QuantityReserved, 0.0001)
	require.Equal(t, int64(2), spokes.LocationID)
	require.InDelta(t, 72, spokes.QuantityRequired, 0.0001)
	require.InDelta(t, 72, spokes.QuantityReserved, 0.0001)

	require.InDelta(t, 2, store.stockLevel(10, 1).Reserved, 0.0001)
	require.InDelta(t, 72, store.stockLevel(11, 2).Reserved, 0.0001)
}

func TestGeneratePartialAndUnresolved(t *testing.T) {
	store := newMemoryStore()
	seedWheelOrder(store)
	// Only 5 of the needed 72 spokes anywhere; no rims at all.
	store.levels[levelKey(11, 1)] = stock.StockLevel{ItemID: 11, LocationID: 1, Quantity: 5}
	svc := testService(store)

	pl, err := svc.Generate(context.Background(), GenerateInput{OrderID: 1})
	require.NoError(t, err)

	rims, spokes := pl.Items[0], pl.Items[1]
	require.Zero(t, rims.LocationID, "no stock anywhere leaves the line unresolved")
	require.Zero(t, rims.QuantityReserved)
	require.InDelta(t, 5, spokes.QuantityReserved, 0.0001, "reservation capped at availability")
	require.InDelta(t, 5, store.stockLevel(11, 1).Reserved, 0.0001)
}

func TestGenerateEmptyBOM(t *testing.T) {
	store := newMemoryStore()
	seedWheelOrder(store)
	b := store.boms[5]
	b.Components = nil
	store.boms[5] = b
	svc := testService(store)

	_, err := svc.Generate(context.Background(), GenerateInput{OrderID: 1})
	require.ErrorIs(t, err, bom.ErrEmptyBOM)
}

func TestScanReleasesReservationAndDeductsPicked(t *testing.T) {
	store := newMemoryStore()
	store.orders[1] = orders.Order{ID: 1, OrderNumber: "ORD-101", ProductType: "wheelchair_wheel", Quantity: 5}
	store.boms[5] = bom.BOM{
		ID: 5, ProductType: "wheelchair_wheel", IsDefault: true,
		Components: []bom.BOMComponent{{ItemID: 10, QuantityPerUnit: 1}},
	}
	store.items[10] = stock.ItemState{ID: 10, DefaultLocationID: 1, CostPerUnit: decimal.NewFromFloat(12)}
	store.levels[levelKey(10, 1)] = stock.StockLevel{ItemID: 10, LocationID: 1, Quantity: 8}
	svc := testService(store)
	ctx := context.Background()

	pl, err := svc.Generate(ctx, GenerateInput{OrderID: 1})
	require.NoError(t, err)
	line := pl.Items[0]
	require.InDelta(t, 5, line.QuantityReserved, 0.0001)

	// Only 3 of the required 5 get picked.
	pl, err = svc.Scan(ctx, pl.ID, line.ID, ScanInput{QuantityPicked: 3})
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, pl.Status)

	scanned := pl.Items[0]
	require.Equal(t, ItemStatusShort, scanned.Status)
	require.InDelta(t, 3, scanned.QuantityPicked, 0.0001)
	require.InDelta(t, 2, scanned.QuantityShort, 0.0001)
	require.Zero(t, scanned.QuantityReserved)

	// 8 on hand - 3 picked = 5, with the whole hold released.
	lvl := store.stockLevel(10, 1)
	require.InDelta(t, 5, lvl.Quantity, 0.0001)
	require.InDelta(t, 0, lvl.Reserved, 0.0001)
	require.InDelta(t, 5, lvl.Available(), 0.0001)

	require.Len(t, store.transactions, 1)
	tx := store.transactions[0]
	require.Equal(t, stock.TransactionTypePick, tx.Type)
	require.InDelta(t, 3, tx.Quantity, 0.0001)
	require.Equal(t, pl.ID, tx.PickListID)
	require.InDelta(t, 5, store.items[10].TotalQuantity, 0.0001)
}

func TestCompleteRequiresTerminalLines(t *testing.T) {
	store := newMemoryStore()
	seedWheelOrder(store)
	store.levels[levelKey(10, 1)] = stock.StockLevel{ItemID: 10, LocationID: 1, Quantity: 10}
	store.levels[levelKey(11, 1)] = stock.StockLevel{ItemID: 11, LocationID: 1, Quantity: 100}
	svc := testService(store)
	ctx := context.Background()

	pl, err := svc.Generate(ctx, GenerateInput{OrderID: 1})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, pl.ID)
	var incomplete *IncompletePickListError
	require.ErrorAs(t, err, &incomplete)
	require.Equal(t, 2, incomplete.PendingLines)
	require.ErrorIs(t, err, shared.ErrInvariantViolation)

	pl, err = svc.Scan(ctx, pl.ID, pl.Items[0].ID, ScanInput{QuantityPicked: 2})
	require.NoError(t, err)
	pl, err = svc.Skip(ctx, pl.ID, pl.Items[1].ID)
	require.NoError(t, err)

	pl, err = svc.Complete(ctx, pl.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, pl.Status)
	require.NotNil(t, pl.CompletedAt)

	// Terminal: further scans are rejected.
	_, err = svc.Scan(ctx, pl.ID, pl.Items[0].ID, ScanInput{QuantityPicked: 1})
	require.ErrorIs(t, err, shared.ErrInvariantViolation)
}

func TestSkipReleasesReservation(t *testing.T) {
	store := newMemoryStore()
	seedWheelOrder(store)
	store.levels[levelKey(10, 1)] = stock.StockLevel{ItemID: 10, LocationID: 1, Quantity: 10}
	store.levels[levelKey(11, 1)] = stock.StockLevel{ItemID: 11, LocationID: 1, Quantity: 100}
	svc := testService(store)
	ctx := context.Background()

	pl, err := svc.Generate(ctx, GenerateInput{OrderID: 1})
	require.NoError(t, err)
	require.InDelta(t, 72, store.stockLevel(11, 1).Reserved, 0.0001)

	pl, err = svc.Skip(ctx, pl.ID, pl.Items[1].ID)
	require.NoError(t, err)
	require.Equal(t, ItemStatusSkipped, pl.Items[1].Status)
	require.InDelta(t, 0, store.stockLevel(11, 1).Reserved, 0.0001)
	require.InDelta(t, 100, store.stockLevel(11, 1).Quantity, 0.0001)
}

func TestCancelReleasesAllReservations(t *testing.T) {
	store := newMemoryStore()
	seedWheelOrder(store)
	store.levels[levelKey(10, 1)] = stock.StockLevel{ItemID: 10, LocationID: 1, Quantity: 10}
	store.levels[levelKey(11, 1)] = stock.StockLevel{ItemID: 11, LocationID: 1, Quantity: 100}
	svc := testService(store)
	ctx := context.Background()

	pl, err := svc.Generate(ctx, GenerateInput{OrderID: 1})
	require.NoError(t, err)

	pl, err = svc.Cancel(ctx, pl.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, pl.Status)
	require.NotNil(t, pl.CancelledAt)
	require.InDelta(t, 0, store.stockLevel(10, 1).Reserved, 0.0001)
	require.InDelta(t, 0, store.stockLevel(11, 1).Reserved, 0.0001)

	_, err = svc.Cancel(ctx, pl.ID)
	require.ErrorIs(t, err, shared.ErrInvariantViolation)
}

func TestAssignLocationReservesThere(t *testing.T) {
	store := newMemoryStore()
	seedWheelOrder(store)
	// Nothing stocked at generation time.
	svc := testService(store)
	ctx := context.Background()

	pl, err := svc.Generate(ctx, GenerateInput{OrderID: 1})
	require.NoError(t, err)
	require.Zero(t, pl.Items[0].LocationID)

	// Stock arrives at location 3; the line gets pointed there.
	store.levels[levelKey(10, 3)] = stock.StockLevel{ItemID: 10, LocationID: 3, Quantity: 6}
	pl, err = svc.AssignLocation(ctx, pl.ID, pl.Items[0].ID, ReassignLocationInput{LocationID: 3})
	require.NoError(t, err)
	require.Equal(t, int64(3), pl.Items[0].LocationID)
	require.InDelta(t, 2, pl.Items[0].QuantityReserved, 0.0001)
	require.InDelta(t, 2, store.stockLevel(10, 3).Reserved, 0.0001)
}
