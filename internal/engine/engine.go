package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"dealwatch/internal/source"
	"dealwatch/internal/watchlist"
)

// Drop describes a strictly lower price observed on one channel.
type Drop struct {
	Channel string
	Old     string
	New     string
}

// Alert bundles every channel drop for one product in one cycle, so a
// product never emits more than one notification per cycle.
type Alert struct {
	Key           string
	Name          string
	URL           string
	Currency      string
	Drops         []Drop
	HistoricalLow string
}

// Alert rendering shows the retail historical low when known.
const primaryChannel = watchlist.ChannelRetail

// Evaluate compares a stored entry against a freshly fetched record.
// It returns the advanced baseline and the channel drops detected.
//
// The returned entry always carries the fetched non-null values, drop
// or no drop; repeating the same fetch therefore yields no further
// drops. The input entry is never mutated.
func Evaluate(entry *watchlist.Entry, rec source.PriceRecord, defaultCurrency string) (*watchlist.Entry, []Drop) {
	updated := cloneEntry(entry)

	if rec.Title != "" {
		updated.Name = rec.Title
	}
	if rec.URL != "" {
		updated.URL = rec.URL
	}
	if rec.Currency != "" {
		updated.Currency = rec.Currency
	} else if updated.Currency == "" {
		updated.Currency = defaultCurrency
	}

	var drops []Drop
	for _, channel := range orderedChannels(rec) {
		oldVal, hasOld := entry.Price(channel)
		newVal, hasNew := rec.Current[channel]
		if !hasOld || !hasNew {
			continue
		}

		oldDec, err := decimal.NewFromString(oldVal)
		if err != nil {
			continue
		}
		newDec, err := decimal.NewFromString(newVal)
		if err != nil {
			continue
		}

		if newDec.LessThan(oldDec) {
			drops = append(drops, Drop{Channel: channel, Old: oldVal, New: newVal})
		}
	}

	// Advance the baseline for every channel the source reported,
	// whether or not it dropped. Absent (null) channels keep the last
	// known value.
	for channel, value := range rec.Current {
		updated.SetPrice(channel, value)
	}
	for channel, value := range rec.Historical {
		updated.SetHistorical(channel, value)
	}

	return updated, drops
}

// BuildAlert assembles the per-product alert record from the advanced
// entry and the detected drops.
func BuildAlert(key string, entry *watchlist.Entry, drops []Drop) Alert {
	return Alert{
		Key:           key,
		Name:          entry.Name,
		URL:           entry.URL,
		Currency:      entry.Currency,
		Drops:         drops,
		HistoricalLow: entry.Historical[primaryChannel],
	}
}

func cloneEntry(entry *watchlist.Entry) *watchlist.Entry {
	clone := &watchlist.Entry{
		Name:     entry.Name,
		Currency: entry.Currency,
		URL:      entry.URL,
		AddedBy:  entry.AddedBy,
	}
	for channel, value := range entry.Prices {
		clone.SetPrice(channel, value)
	}
	for channel, value := range entry.Historical {
		clone.SetHistorical(channel, value)
	}
	return clone
}

// orderedChannels lists the record's channels with retail first and
// keyshops second, so drop descriptions render in a stable order.
func orderedChannels(rec source.PriceRecord) []string {
	known := []string{watchlist.ChannelRetail, watchlist.ChannelKeyshops}

	seen := make(map[string]bool, len(rec.Current))
	out := make([]string, 0, len(rec.Current))
	for _, channel := range known {
		if _, ok := rec.Current[channel]; ok {
			out = append(out, channel)
			seen[channel] = true
		}
	}

	var extra []string
	for channel := range rec.Current {
		if !seen[channel] {
			extra = append(extra, channel)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
