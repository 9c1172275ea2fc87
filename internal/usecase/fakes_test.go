package usecase

import (
	"context"
	"errors"
	"sync"

	"ChainSignal/internal/domain/models"
)

var errBoom = errors.New("boom")

// fakeSource is a scriptable DataSource. A non-nil error field fails that call.
type fakeSource struct {
	mu sync.Mutex

	prices     []models.PricePoint
	snapshot   models.MarketSnapshot
	mempool    models.MempoolSnapshot
	largeTx    []models.LargeTransaction
	holders    []models.Holder
	activity   map[string]models.AddressActivity
	flows      []models.ExchangeFlow
	lookups    map[string]int
	priceErr   error
	snapErr    error
	mempoolErr error
	largeTxErr error
	holdersErr error
	lookupErr  error
	flowsErr   error
}

func newFakeSource() *fakeSource {
	return &fakeSource{activity: map[string]models.AddressActivity{}, lookups: map[string]int{}}
}

func (f *fakeSource) GetPriceSeries(context.Context, int) ([]models.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.PricePoint(nil), f.prices...), f.priceErr
}

func (f *fakeSource) GetCurrentSnapshot(context.Context) (models.MarketSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, f.snapErr
}

func (f *fakeSource) GetMempoolSnapshot(context.Context) (models.MempoolSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mempool, f.mempoolErr
}

func (f *fakeSource) GetLargeTransactions(context.Context, float64, int) ([]models.LargeTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.LargeTransaction(nil), f.largeTx...), f.largeTxErr
}

func (f *fakeSource) GetTopHolders(context.Context) ([]models.Holder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Holder(nil), f.holders...), f.holdersErr
}

func (f *fakeSource) GetAddressLastActivity(_ context.Context, address string) (models.AddressActivity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups[address]++
	if f.lookupErr != nil {
		return models.AddressActivity{}, f.lookupErr
	}
	return f.activity[address], nil
}

func (f *fakeSource) GetExchangeFlows(context.Context, int) ([]models.ExchangeFlow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ExchangeFlow(nil), f.flows...), f.flowsErr
}

func (f *fakeSource) lookupCount(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups[address]
}

// memorySink collects alerts.
type memorySink struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (s *memorySink) Add(_ context.Context, alerts ...models.Alert) {
	s.mu.Lock()
	s.alerts = append(s.alerts, alerts...)
	s.mu.Unlock()
}
