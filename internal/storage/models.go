package storage

import (
	"encoding/json"
	"time"
)

// AlertRow is one dispatched price-drop alert in the audit log. Drops
// holds the per-channel descriptions as the JSON they were rendered
// from.
type AlertRow struct {
	ID            int64
	ProductKey    string
	Name          string
	URL           string
	Currency      string
	Drops         json.RawMessage
	HistoricalLow string
	CreatedAt     time.Time
}
