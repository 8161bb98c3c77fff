package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealwatch/internal/config"
	"dealwatch/internal/engine"
	"dealwatch/internal/source"
	"dealwatch/internal/storage"
	"dealwatch/internal/watchlist"
)

type fakeStore struct {
	list    *watchlist.Watchlist
	saves   int
	saved   *watchlist.Watchlist
	saveErr error
	adds    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{list: watchlist.New()}
}

func (f *fakeStore) Load() (*watchlist.Watchlist, error) { return f.list, nil }

func (f *fakeStore) Save(list *watchlist.Watchlist) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.saved = list
	return nil
}

func (f *fakeStore) Add(key string, entry *watchlist.Entry) error {
	if _, exists := f.list.Games[key]; exists {
		return watchlist.ErrAlreadyWatched
	}
	f.adds++
	f.list.Games[key] = entry
	return nil
}

func (f *fakeStore) Remove(key string) (*watchlist.Entry, error) {
	entry, exists := f.list.Games[key]
	if !exists {
		return nil, watchlist.ErrNotWatched
	}
	delete(f.list.Games, key)
	return entry, nil
}

type fakeFetcher struct {
	records   map[string]source.PriceRecord
	errByCall map[int]error
	batches   [][]string
}

func (f *fakeFetcher) FetchPrices(ctx context.Context, keys []string) (map[string]source.PriceRecord, error) {
	call := len(f.batches)
	f.batches = append(f.batches, append([]string(nil), keys...))
	if err := f.errByCall[call]; err != nil {
		return nil, err
	}
	out := make(map[string]source.PriceRecord)
	for _, key := range keys {
		if rec, ok := f.records[key]; ok {
			out[key] = rec
		}
	}
	return out, nil
}

type fakeNotifier struct {
	alerts []engine.Alert
	err    error
}

func (f *fakeNotifier) Notify(ctx context.Context, alert engine.Alert) error {
	f.alerts = append(f.alerts, alert)
	return f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Source: config.SourceConfig{
			BatchSize:       100,
			DefaultCurrency: "USD",
		},
		Scheduler: config.SchedulerConfig{
			BatchDelay: 2 * time.Second,
		},
		Alerting: config.AlertingConfig{Enabled: true},
	}
}

func newTestService(store *fakeStore, fetcher *fakeFetcher, notifier *fakeNotifier) (*Service, *int) {
	svc := New(testConfig(), nil, store, fetcher, notifier, nil, zerolog.Nop())
	delays := 0
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		delays++
		return nil
	}
	return svc, &delays
}

func trackedEntry(price string) *watchlist.Entry {
	entry := &watchlist.Entry{Name: "game", Currency: "USD", URL: "u"}
	entry.SetPrice(watchlist.ChannelRetail, price)
	return entry
}

func TestRunCycleEmptyWatchlist(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{}
	svc, _ := newTestService(store, fetcher, &fakeNotifier{})

	require.NoError(t, svc.RunCycle(context.Background()))
	assert.Empty(t, fetcher.batches, "empty watch set must not fetch")
	assert.Zero(t, store.saves, "empty watch set must not save")
}

func TestRunCycleBatchesOf100(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{records: map[string]source.PriceRecord{}}
	for i := 0; i < 150; i++ {
		key := fmt.Sprintf("%03d", i)
		store.list.Games[key] = trackedEntry("9.99")
		fetcher.records[key] = source.PriceRecord{Current: map[string]string{"retail": "9.99"}}
	}

	svc, delays := newTestService(store, fetcher, &fakeNotifier{})
	require.NoError(t, svc.RunCycle(context.Background()))

	require.Len(t, fetcher.batches, 2)
	assert.Len(t, fetcher.batches[0], 100)
	assert.Len(t, fetcher.batches[1], 50)
	assert.Equal(t, 1, *delays, "delay inserted exactly once between two batches")
	assert.Equal(t, 1, store.saves, "exactly one save per cycle")
}

func TestRunCycleDispatchesBundledAlert(t *testing.T) {
	store := newFakeStore()
	entry := trackedEntry("9.99")
	entry.SetPrice(watchlist.ChannelKeyshops, "7.50")
	store.list.Games["220"] = entry
	store.list.Games["440"] = trackedEntry("19.99")

	fetcher := &fakeFetcher{records: map[string]source.PriceRecord{
		"220": {
			Title:      "Half-Life 2",
			Currency:   "USD",
			Current:    map[string]string{"retail": "4.99", "keyshops": "3.99"},
			Historical: map[string]string{"retail": "4.99"},
		},
		"440": {Current: map[string]string{"retail": "19.99"}},
	}}
	notifier := &fakeNotifier{}

	svc, _ := newTestService(store, fetcher, notifier)
	require.NoError(t, svc.RunCycle(context.Background()))

	require.Len(t, notifier.alerts, 1, "two channel drops bundle into one alert")
	alert := notifier.alerts[0]
	assert.Equal(t, "220", alert.Key)
	require.Len(t, alert.Drops, 2)
	assert.Equal(t, "retail", alert.Drops[0].Channel)
	assert.Equal(t, "keyshops", alert.Drops[1].Channel)
	assert.Equal(t, "4.99", alert.HistoricalLow)

	require.Equal(t, 1, store.saves)
	assert.Equal(t, "4.99", store.saved.Games["220"].Prices["retail"])
	assert.Equal(t, "3.99", store.saved.Games["220"].Prices["keyshops"])
}

func TestRunCycleIdempotentAcrossCycles(t *testing.T) {
	store := newFakeStore()
	store.list.Games["220"] = trackedEntry("9.99")
	fetcher := &fakeFetcher{records: map[string]source.PriceRecord{
		"220": {Current: map[string]string{"retail": "4.99"}},
	}}
	notifier := &fakeNotifier{}

	svc, _ := newTestService(store, fetcher, notifier)
	require.NoError(t, svc.RunCycle(context.Background()))
	require.NoError(t, svc.RunCycle(context.Background()))

	assert.Len(t, notifier.alerts, 1, "the same price must not alert twice")
}

func TestRunCycleRateLimitedBatchContinues(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{
		records:   map[string]source.PriceRecord{},
		errByCall: map[int]error{0: source.ErrRateLimited},
	}
	for i := 0; i < 150; i++ {
		key := fmt.Sprintf("%03d", i)
		store.list.Games[key] = trackedEntry("9.99")
	}
	// A product in the second batch drops.
	fetcher.records["149"] = source.PriceRecord{Current: map[string]string{"retail": "4.99"}}
	notifier := &fakeNotifier{}

	svc, _ := newTestService(store, fetcher, notifier)
	require.NoError(t, svc.RunCycle(context.Background()))

	require.Len(t, fetcher.batches, 2, "rate limited batch must not abort the cycle")
	assert.Len(t, notifier.alerts, 1)
	assert.Equal(t, 1, store.saves)
	// Rate limited keys keep their baselines.
	assert.Equal(t, "9.99", store.saved.Games["000"].Prices["retail"])
}

func TestRunCycleFetchMissKeepsBaseline(t *testing.T) {
	store := newFakeStore()
	store.list.Games["220"] = trackedEntry("9.99")
	fetcher := &fakeFetcher{records: map[string]source.PriceRecord{}}

	svc, _ := newTestService(store, fetcher, &fakeNotifier{})
	require.NoError(t, svc.RunCycle(context.Background()))

	require.Equal(t, 1, store.saves)
	assert.Equal(t, "9.99", store.saved.Games["220"].Prices["retail"])
}

func TestRunCycleSaveFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.list.Games["220"] = trackedEntry("9.99")
	store.saveErr = errors.New("disk full")
	fetcher := &fakeFetcher{records: map[string]source.PriceRecord{
		"220": {Current: map[string]string{"retail": "4.99"}},
	}}
	notifier := &fakeNotifier{}

	svc, _ := newTestService(store, fetcher, notifier)
	err := svc.RunCycle(context.Background())
	require.Error(t, err)
	assert.Empty(t, notifier.alerts, "alerts must not fire when the save failed")
}

func TestRunCycleNotifierFailureNotFatal(t *testing.T) {
	store := newFakeStore()
	store.list.Games["220"] = trackedEntry("9.99")
	fetcher := &fakeFetcher{records: map[string]source.PriceRecord{
		"220": {Current: map[string]string{"retail": "4.99"}},
	}}
	notifier := &fakeNotifier{err: errors.New("webhook down")}

	svc, _ := newTestService(store, fetcher, notifier)
	assert.NoError(t, svc.RunCycle(context.Background()))
}

type fakeAuditor struct {
	inserted []engine.Alert
	err      error
}

func (f *fakeAuditor) InsertAlert(ctx context.Context, alert engine.Alert) (storage.AlertRow, error) {
	f.inserted = append(f.inserted, alert)
	return storage.AlertRow{ID: int64(len(f.inserted))}, f.err
}

func (f *fakeAuditor) ListRecentAlerts(ctx context.Context, limit int) ([]storage.AlertRow, error) {
	return nil, nil
}

func (f *fakeAuditor) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	return nil
}

func TestRunCycleAuditsDispatchedAlerts(t *testing.T) {
	store := newFakeStore()
	store.list.Games["220"] = trackedEntry("9.99")
	fetcher := &fakeFetcher{records: map[string]source.PriceRecord{
		"220": {Current: map[string]string{"retail": "4.99"}},
	}}
	auditor := &fakeAuditor{}

	svc := New(testConfig(), nil, store, fetcher, &fakeNotifier{}, auditor, zerolog.Nop())
	require.NoError(t, svc.RunCycle(context.Background()))

	require.Len(t, auditor.inserted, 1)
	assert.Equal(t, "220", auditor.inserted[0].Key)
}

func TestRunCycleAuditFailureNotFatal(t *testing.T) {
	store := newFakeStore()
	store.list.Games["220"] = trackedEntry("9.99")
	fetcher := &fakeFetcher{records: map[string]source.PriceRecord{
		"220": {Current: map[string]string{"retail": "4.99"}},
	}}
	auditor := &fakeAuditor{err: errors.New("db down")}
	notifier := &fakeNotifier{}

	svc := New(testConfig(), nil, store, fetcher, notifier, auditor, zerolog.Nop())
	require.NoError(t, svc.RunCycle(context.Background()))
	assert.Len(t, notifier.alerts, 1, "audit failure must not block dispatch")
}

func TestWatchSuccess(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{records: map[string]source.PriceRecord{
		"220": {
			Title:      "Half-Life 2",
			URL:        "https://gg.deals/steam/app/220/",
			Currency:   "USD",
			Current:    map[string]string{"retail": "9.99"},
			Historical: map[string]string{"retail": "0.99"},
		},
	}}

	svc, _ := newTestService(store, fetcher, &fakeNotifier{})
	entry, err := svc.Watch(context.Background(), "220", "", "gordon")
	require.NoError(t, err)

	assert.Equal(t, "Half-Life 2", entry.Name)
	assert.Equal(t, "9.99", entry.Prices["retail"])
	assert.Equal(t, "0.99", entry.Historical["retail"])
	assert.Equal(t, "gordon", entry.AddedBy)
	assert.Equal(t, 1, store.adds)
}

func TestWatchNotFound(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{}

	svc, _ := newTestService(store, fetcher, &fakeNotifier{})
	_, err := svc.Watch(context.Background(), "999", "", "gordon")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, store.adds, "watch set must be unchanged")
	assert.Zero(t, store.saves, "no persistence write on NotFound")
}

func TestWatchAlreadyWatched(t *testing.T) {
	store := newFakeStore()
	store.list.Games["220"] = trackedEntry("9.99")
	fetcher := &fakeFetcher{}

	svc, _ := newTestService(store, fetcher, &fakeNotifier{})
	_, err := svc.Watch(context.Background(), "220", "", "gordon")

	assert.ErrorIs(t, err, watchlist.ErrAlreadyWatched)
	assert.Empty(t, fetcher.batches, "no source call for an already watched key")
}

func TestWatchNameHintFallback(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{records: map[string]source.PriceRecord{
		"220": {Current: map[string]string{"retail": "9.99"}},
	}}

	svc, _ := newTestService(store, fetcher, &fakeNotifier{})
	entry, err := svc.Watch(context.Background(), "220", "Half-Life 2", "gordon")
	require.NoError(t, err)

	assert.Equal(t, "Half-Life 2", entry.Name)
	assert.Equal(t, "USD", entry.Currency, "default currency applied")
	assert.Equal(t, "https://gg.deals/steam/app/220/", entry.URL)
}

func TestUnwatchMissing(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeFetcher{}, &fakeNotifier{})

	_, err := svc.Unwatch(context.Background(), "220")
	assert.ErrorIs(t, err, watchlist.ErrNotWatched)
}

func TestCheckPriceNoMutation(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{records: map[string]source.PriceRecord{
		"220": {Title: "Half-Life 2", Current: map[string]string{"retail": "9.99"}},
	}}

	svc, _ := newTestService(store, fetcher, &fakeNotifier{})
	rec, err := svc.CheckPrice(context.Background(), "220")
	require.NoError(t, err)

	assert.Equal(t, "Half-Life 2", rec.Title)
	assert.Zero(t, store.adds)
	assert.Zero(t, store.saves)
}
