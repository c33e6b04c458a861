// internal/protocol/types.go
package protocol

import "time"

// StoredItem is a log item summary as persisted by the collector
type StoredItem struct {
	ID           string    `json:"id"`
	Identifier   string    `json:"host_identifier"`
	Name         string    `json:"name"`
	Epoch        uint64    `json:"epoch"`
	Counter      uint64    `json:"counter"`
	UnixTime     uint64    `json:"unix_time"`
	CalendarTime string    `json:"calendar_time"`
	Added        int       `json:"added"`
	Removed      int       `json:"removed"`
	CreatedAt    time.Time `json:"created_at"`
}

// Ingest statuses
const (
	StatusStored    = "stored"
	StatusDuplicate = "duplicate"
)

// IngestResponse is returned to the agent for every accepted document
type IngestResponse struct {
	Status     string   `json:"status"`        // "stored" or "duplicate" for a single item
	IDs        []string `json:"ids,omitempty"` // ids of newly stored items
	Stored     int      `json:"stored"`        // items written
	Duplicates int      `json:"duplicates"`    // items already seen
	Rows       int      `json:"rows"`          // changed rows written
}
