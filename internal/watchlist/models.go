package watchlist

import "sort"

// Price channels reported by the source. Tracked independently per product.
const (
	ChannelRetail   = "retail"
	ChannelKeyshops = "keyshops"
)

// Entry is the persisted state for one tracked product. Prices and
// Historical map channel names to decimal strings; a missing key means
// the channel has never been observed.
type Entry struct {
	Name       string            `json:"name"`
	Prices     map[string]string `json:"prices,omitempty"`
	Historical map[string]string `json:"historical,omitempty"`
	Currency   string            `json:"currency"`
	URL        string            `json:"url"`
	AddedBy    string            `json:"added_by,omitempty"`
}

// Price returns the stored baseline for a channel, if observed.
func (e *Entry) Price(channel string) (string, bool) {
	v, ok := e.Prices[channel]
	return v, ok
}

// SetPrice records a baseline value for a channel.
func (e *Entry) SetPrice(channel, value string) {
	if e.Prices == nil {
		e.Prices = make(map[string]string)
	}
	e.Prices[channel] = value
}

// SetHistorical records a historical-low value for a channel.
func (e *Entry) SetHistorical(channel, value string) {
	if e.Historical == nil {
		e.Historical = make(map[string]string)
	}
	e.Historical[channel] = value
}

// Watchlist is the whole persisted document: product key -> entry.
// The version field guards future layout migrations.
type Watchlist struct {
	Version int               `json:"version"`
	Games   map[string]*Entry `json:"games"`
}

// New returns an empty watchlist at the current layout version.
func New() *Watchlist {
	return &Watchlist{Version: 1, Games: make(map[string]*Entry)}
}

// Len reports the number of tracked products.
func (w *Watchlist) Len() int {
	return len(w.Games)
}

// Keys returns all product keys in a stable order. Insertion order is
// not meaningful, so sorted order keeps cycles and listings deterministic.
func (w *Watchlist) Keys() []string {
	keys := make([]string, 0, len(w.Games))
	for k := range w.Games {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
