package source

import (
	"context"
	"errors"
)

// BatchLimit is the maximum number of product keys the API accepts in
// one request. Callers split larger key sets themselves.
const BatchLimit = 100

var (
	// ErrRateLimited signals HTTP 429; treat the batch as "no data this
	// cycle" and retry on the next one.
	ErrRateLimited = errors.New("source: rate limited")
	// ErrUnavailable wraps transport failures, timeouts, and unexpected
	// HTTP statuses.
	ErrUnavailable = errors.New("source: unavailable")
	// ErrProtocol wraps a malformed or unsuccessful response envelope.
	ErrProtocol = errors.New("source: protocol error")
)

// PriceRecord is the source's view of one product. Current and
// Historical map channel names to decimal strings; a missing key means
// the source reported no value for that channel.
type PriceRecord struct {
	Title      string
	URL        string
	Currency   string
	Current    map[string]string
	Historical map[string]string
}

// Fetcher retrieves current and historical prices for a batch of
// product keys. Keys unknown to the source are absent from the result.
type Fetcher interface {
	FetchPrices(ctx context.Context, keys []string) (map[string]PriceRecord, error)
}
