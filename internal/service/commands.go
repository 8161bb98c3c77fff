package service

import (
	"context"
	"fmt"

	"dealwatch/internal/source"
	"dealwatch/internal/watchlist"
)

// Watch looks the product up at the source, initialises its baseline
// from the fetched record, and adds it to the watch set.
func (s *Service) Watch(ctx context.Context, key, nameHint, addedBy string) (*watchlist.Entry, error) {
	list, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	if _, exists := list.Games[key]; exists {
		return nil, watchlist.ErrAlreadyWatched
	}

	rec, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	name := rec.Title
	if name == "" {
		name = nameHint
	}
	if name == "" {
		name = key
	}

	currency := rec.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	url := rec.URL
	if url == "" {
		url = fmt.Sprintf("https://gg.deals/steam/app/%s/", key)
	}

	entry := &watchlist.Entry{
		Name:     name,
		Currency: currency,
		URL:      url,
		AddedBy:  addedBy,
	}
	for channel, value := range rec.Current {
		entry.SetPrice(channel, value)
	}
	for channel, value := range rec.Historical {
		entry.SetHistorical(channel, value)
	}

	if err := s.store.Add(key, entry); err != nil {
		return nil, err
	}

	s.logger.Info().Str("key", key).Str("name", name).Msg("product added to watchlist")
	return entry, nil
}

// Unwatch removes a product from the watch set.
func (s *Service) Unwatch(ctx context.Context, key string) (*watchlist.Entry, error) {
	entry, err := s.store.Remove(key)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("key", key).Str("name", entry.Name).Msg("product removed from watchlist")
	return entry, nil
}

// List returns the current watch set.
func (s *Service) List(ctx context.Context) (*watchlist.Watchlist, error) {
	return s.store.Load()
}

// CheckPrice performs an ad-hoc lookup without touching the watch set.
func (s *Service) CheckPrice(ctx context.Context, key string) (source.PriceRecord, error) {
	return s.lookup(ctx, key)
}

func (s *Service) lookup(ctx context.Context, key string) (source.PriceRecord, error) {
	records, err := s.fetcher.FetchPrices(ctx, []string{key})
	if err != nil {
		return source.PriceRecord{}, err
	}
	rec, ok := records[key]
	if !ok {
		return source.PriceRecord{}, ErrNotFound
	}
	return rec, nil
}
