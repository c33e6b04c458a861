// internal/results/logitem.go
package results

import "time"

const calendarTimeFormat = "Mon Jan _2 15:04:05 2006 UTC"

// CalendarTime formats t the way log items carry their human-readable
// timestamp.
func CalendarTime(t time.Time) string {
	return t.UTC().Format(calendarTimeFormat)
}

// Metadata describes one scheduled-query execution. Epoch and Counter are
// issued by the scheduler's session tracking, never by this package.
type Metadata struct {
	Name         string
	Identifier   string
	CalendarTime string
	Time         uint64
	Epoch        uint64
	Counter      uint64
}

// MetadataAt fills both time representations from t. Times before the Unix
// epoch have a unixTime of zero.
func MetadataAt(name, identifier string, t time.Time, epoch, counter uint64) Metadata {
	return Metadata{
		Name:         name,
		Identifier:   identifier,
		CalendarTime: CalendarTime(t),
		Time:         uint64(max(t.Unix(), 0)),
		Epoch:        epoch,
		Counter:      counter,
	}
}

// LogItem is a diff plus the metadata a collector needs to attribute,
// order and deduplicate it.
type LogItem struct {
	Results      DiffResults
	Name         string
	Identifier   string
	CalendarTime string
	Time         uint64
	Epoch        uint64
	Counter      uint64
}

// NewLogItem bundles results with meta.
func NewLogItem(results DiffResults, meta Metadata) LogItem {
	return LogItem{
		Results:      results,
		Name:         meta.Name,
		Identifier:   meta.Identifier,
		CalendarTime: meta.CalendarTime,
		Time:         meta.Time,
		Epoch:        meta.Epoch,
		Counter:      meta.Counter,
	}
}

// Metadata returns the item's metadata fields.
func (l LogItem) Metadata() Metadata {
	return Metadata{
		Name:         l.Name,
		Identifier:   l.Identifier,
		CalendarTime: l.CalendarTime,
		Time:         l.Time,
		Epoch:        l.Epoch,
		Counter:      l.Counter,
	}
}

// Key identifies a log item for downstream de-duplication.
type Key struct {
	Identifier string
	Name       string
	Epoch      uint64
	Counter    uint64
}

// Key returns the item's de-duplication key.
func (l LogItem) Key() Key {
	return Key{Identifier: l.Identifier, Name: l.Name, Epoch: l.Epoch, Counter: l.Counter}
}

// Empty reports whether the item carries no changes.
func (l LogItem) Empty() bool {
	return l.Results.Empty()
}

// Equal compares metadata and results.
func (l LogItem) Equal(o LogItem) bool {
	return l.Metadata() == o.Metadata() && l.Results.Equal(o.Results)
}

// Action names the side of a diff an event came from.
type Action string

const (
	ActionAdded   Action = "added"
	ActionRemoved Action = "removed"
)

// Event is a single changed row with the metadata of its log item.
type Event struct {
	Name         string
	Identifier   string
	CalendarTime string
	Time         uint64
	Epoch        uint64
	Counter      uint64
	Action       Action
	Columns      Row
}

// Events splits the item into one event per row, removed rows first.
func (l LogItem) Events() []Event {
	events := make([]Event, 0, len(l.Results.Removed)+len(l.Results.Added))
	for _, r := range l.Results.Removed {
		events = append(events, l.event(ActionRemoved, r))
	}
	for _, r := range l.Results.Added {
		events = append(events, l.event(ActionAdded, r))
	}
	return events
}

func (l LogItem) event(action Action, r Row) Event {
	return Event{
		Name:         l.Name,
		Identifier:   l.Identifier,
		CalendarTime: l.CalendarTime,
		Time:         l.Time,
		Epoch:        l.Epoch,
		Counter:      l.Counter,
		Action:       action,
		Columns:      r,
	}
}

// Equal compares all fields, rows with Row.Equal.
func (e Event) Equal(o Event) bool {
	return e.Name == o.Name &&
		e.Identifier == o.Identifier &&
		e.CalendarTime == o.CalendarTime &&
		e.Time == o.Time &&
		e.Epoch == o.Epoch &&
		e.Counter == o.Counter &&
		e.Action == o.Action &&
		e.Columns.Equal(o.Columns)
}

// ItemsFromEvents regroups events into log items by de-duplication key,
// in order of first appearance. It inverts LogItem.Events.
func ItemsFromEvents(events []Event) []LogItem {
	var items []LogItem
	index := make(map[Key]int)
	for _, e := range events {
		k := Key{Identifier: e.Identifier, Name: e.Name, Epoch: e.Epoch, Counter: e.Counter}
		i, ok := index[k]
		if !ok {
			items = append(items, LogItem{
				Results:      DiffResults{Added: Snapshot{}, Removed: Snapshot{}},
				Name:         e.Name,
				Identifier:   e.Identifier,
				CalendarTime: e.CalendarTime,
				Time:         e.Time,
				Epoch:        e.Epoch,
				Counter:      e.Counter,
			})
			i = len(items) - 1
			index[k] = i
		}
		switch e.Action {
		case ActionAdded:
			items[i].Results.Added = append(items[i].Results.Added, e.Columns)
		case ActionRemoved:
			items[i].Results.Removed = append(items[i].Results.Removed, e.Columns)
		}
	}
	return items
}
