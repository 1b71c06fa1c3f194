package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/July-Jio/ritmex-bot/internal/domain"
	"github.com/July-Jio/ritmex-bot/internal/event"
	"github.com/July-Jio/ritmex-bot/internal/exchange"
	"github.com/July-Jio/ritmex-bot/internal/infra"
)

type fakeAdapter struct {
	mu        sync.Mutex
	placed    []exchange.PlaceOrderRequest
	cancelled []string
	placeErr  error
	cancelErr error
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) FetchBook(ctx context.Context, symbol string, limit int) (domain.Book, error) {
	return domain.Book{
		Bids: []domain.PriceLevel{{Price: 100.0, Qty: 5}},
		Asks: []domain.PriceLevel{{Price: 100.1, Qty: 5}},
	}, nil
}

func (f *fakeAdapter) FetchKlineCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error) {
	closes := make([]float64, limit)
	for i := range closes {
		closes[i] = 100.0
	}
	return closes, nil
}

func (f *fakeAdapter) FetchPosition(ctx context.Context, symbol string) (domain.Position, error) {
	return domain.Position{Symbol: symbol}, nil
}

func (f *fakeAdapter) FetchOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	return nil, nil
}

func (f *fakeAdapter) PlaceOrder(ctx context.Context, req exchange.PlaceOrderRequest) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return domain.Order{}, f.placeErr
	}
	f.placed = append(f.placed, req)
	return domain.Order{
		OrderID:       int64(len(f.placed)),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		OrigQty:       req.Quantity,
		Status:        domain.StatusNew,
		ReduceOnly:    req.ReduceOnly,
	}, nil
}

func (f *fakeAdapter) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, clientOrderID)
	return nil
}

func (f *fakeAdapter) Stream(ctx context.Context, symbol string, inbox chan<- event.Event) error {
	return nil
}

func (f *fakeAdapter) Close() error { return nil }

func (f *fakeAdapter) placeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

func (f *fakeAdapter) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancelled)
}

func newTestReconciler(adapter *fakeAdapter, threshold float64) (*reconciler, chan event.Event) {
	inbox := make(chan event.Event, 64)
	clock := infra.NewFakeClock(time.Unix(1700000000, 0))
	cfg := infra.DefaultRetryConfig()
	cfg.MaxRetries = 0
	return newReconciler("acct", "BTCUSDT", adapter, cfg, clock, inbox, threshold), inbox
}

// waitResults blocks until n CommandResult events arrive and feeds each one
// back through the reconciler, the way the engine loop would.
func waitResults(t *testing.T, r *reconciler, inbox chan event.Event, n int) []event.CommandResult {
	t.Helper()
	var out []event.CommandResult
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev := <-inbox:
			if res, ok := ev.(event.CommandResult); ok {
				r.onCommandResult(res)
				out = append(out, res)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %d command results, got %d", n, len(out))
		}
	}
	return out
}

func TestReconcilerPlacesMissingDesired(t *testing.T) {
	adapter := &fakeAdapter{}
	r, inbox := newTestReconciler(adapter, 0.5)

	desired := []domain.DesiredOrder{
		{Side: domain.SideBuy, Type: domain.TypeLimit, Price: 99.5, Amount: 1},
	}
	r.reconcile(context.Background(), desired, nil)
	results := waitResults(t, r, inbox, 1)

	if results[0].Action != "place" || results[0].Err != nil {
		t.Fatalf("result = %+v, want successful place", results[0])
	}
	if adapter.placeCount() != 1 {
		t.Fatalf("place calls = %d, want 1", adapter.placeCount())
	}
	adapter.mu.Lock()
	req := adapter.placed[0]
	adapter.mu.Unlock()
	if req.Side != domain.SideBuy || req.Price != 99.5 || req.Quantity != 1 {
		t.Fatalf("request = %+v", req)
	}
	if req.ClientOrderID == "" {
		t.Fatal("place request missing client order ID")
	}
}

func TestReconcilerCancelsUnwantedOrder(t *testing.T) {
	adapter := &fakeAdapter{}
	r, inbox := newTestReconciler(adapter, 0.5)

	open := map[string]domain.Order{
		"stale": {
			ClientOrderID: "stale",
			Side:          domain.SideSell,
			Type:          domain.TypeLimit,
			Price:         101,
			Status:        domain.StatusNew,
		},
	}
	r.reconcile(context.Background(), nil, open)
	results := waitResults(t, r, inbox, 1)

	if results[0].Action != "cancel" || results[0].Err != nil {
		t.Fatalf("result = %+v, want successful cancel", results[0])
	}
	if adapter.cancelCount() != 1 {
		t.Fatalf("cancel calls = %d, want 1", adapter.cancelCount())
	}
}

func TestReconcilerMatchesByRoleNotPrice(t *testing.T) {
	adapter := &fakeAdapter{}
	r, inbox := newTestReconciler(adapter, 0.5)

	// Same role, price inside the chase threshold: no action at all.
	open := map[string]domain.Order{
		"live": {
			ClientOrderID: "live",
			Side:          domain.SideBuy,
			Type:          domain.TypeLimit,
			Price:         99.3,
			Status:        domain.StatusNew,
		},
	}
	desired := []domain.DesiredOrder{
		{Side: domain.SideBuy, Type: domain.TypeLimit, Price: 99.5, Amount: 1},
	}
	r.reconcile(context.Background(), desired, open)

	select {
	case ev := <-inbox:
		t.Fatalf("unexpected event %T, drift inside threshold must be left alone", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReconcilerCancelReplaceOnDrift(t *testing.T) {
	adapter := &fakeAdapter{}
	r, inbox := newTestReconciler(adapter, 0.5)

	open := map[string]domain.Order{
		"drifted": {
			ClientOrderID: "drifted",
			Side:          domain.SideBuy,
			Type:          domain.TypeLimit,
			Price:         98.0,
			Status:        domain.StatusNew,
		},
	}
	desired := []domain.DesiredOrder{
		{Side: domain.SideBuy, Type: domain.TypeLimit, Price: 99.5, Amount: 1},
	}

	// Tick one: the drifted order is cancelled, nothing placed yet.
	r.reconcile(context.Background(), desired, open)
	waitResults(t, r, inbox, 1)
	if adapter.cancelCount() != 1 {
		t.Fatalf("cancel calls = %d, want 1", adapter.cancelCount())
	}
	if adapter.placeCount() != 0 {
		t.Fatalf("place calls = %d on cancel tick, want 0", adapter.placeCount())
	}

	// Tick two: the order is gone from the cache, the replacement goes up.
	r.reconcile(context.Background(), desired, map[string]domain.Order{})
	waitResults(t, r, inbox, 1)
	if adapter.placeCount() != 1 {
		t.Fatalf("place calls = %d after replace tick, want 1", adapter.placeCount())
	}
}

func TestReconcilerSingleInflightPlacePerRole(t *testing.T) {
	adapter := &fakeAdapter{}
	r, inbox := newTestReconciler(adapter, 0.5)

	desired := []domain.DesiredOrder{
		{Side: domain.SideBuy, Type: domain.TypeLimit, Price: 99.5, Amount: 1},
	}
	r.reconcile(context.Background(), desired, nil)
	// Second pass before the completion arrives must not double-place.
	r.reconcile(context.Background(), desired, nil)
	waitResults(t, r, inbox, 1)

	if adapter.placeCount() != 1 {
		t.Fatalf("place calls = %d, want 1 while in flight", adapter.placeCount())
	}
}

func TestReconcilerMarketHoldSuppressesReentry(t *testing.T) {
	adapter := &fakeAdapter{}
	r, inbox := newTestReconciler(adapter, 0.5)

	desired := []domain.DesiredOrder{
		{Side: domain.SideBuy, Type: domain.TypeMarket, Amount: 1},
	}
	r.reconcile(context.Background(), desired, nil)
	waitResults(t, r, inbox, 1)

	// Completed but no fill event yet: the hold keeps the role quiet.
	r.reconcile(context.Background(), desired, nil)
	if adapter.placeCount() != 1 {
		t.Fatalf("place calls = %d, want hold to suppress re-entry", adapter.placeCount())
	}

	// A fill or account event releases the hold.
	r.clearMarketHold()
	r.reconcile(context.Background(), desired, nil)
	waitResults(t, r, inbox, 1)
	if adapter.placeCount() != 2 {
		t.Fatalf("place calls = %d after hold cleared, want 2", adapter.placeCount())
	}
}

func TestReconcilerBenignCancelIsSuccess(t *testing.T) {
	adapter := &fakeAdapter{cancelErr: exchange.ErrOrderGone}
	r, inbox := newTestReconciler(adapter, 0.5)

	open := map[string]domain.Order{
		"gone": {
			ClientOrderID: "gone",
			Side:          domain.SideSell,
			Type:          domain.TypeLimit,
			Price:         101,
			Status:        domain.StatusNew,
		},
	}
	r.reconcile(context.Background(), nil, open)
	results := waitResults(t, r, inbox, 1)

	if results[0].Err != nil {
		t.Fatalf("benign cancel surfaced error: %v", results[0].Err)
	}
}
