// internal/results/encode.go
package results

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// EncodeRow returns the JSON object for r with members ordered by o.
func EncodeRow(r Row, o Ordering) []byte {
	return appendRow(nil, r, o)
}

// EncodeSnapshot returns a JSON array holding one object per row, in
// snapshot order. Every row uses the same ordering.
func EncodeSnapshot(s Snapshot, o Ordering) []byte {
	return appendSnapshot(nil, s, o)
}

// EncodeDiffResults returns {"removed": [...], "added": [...]}.
func EncodeDiffResults(d DiffResults, o Ordering) []byte {
	return appendDiffResults(nil, d, o)
}

// EncodeLogItem returns the log item document. All metadata members are
// written even when empty or zero.
func EncodeLogItem(l LogItem, o Ordering) []byte {
	b := []byte(`{"diffResults":`)
	b = appendDiffResults(b, l.Results, o)
	b = appendMetadata(b, l.Metadata())
	return append(b, '}')
}

// EncodeEvent returns the document for a single changed row.
func EncodeEvent(e Event, o Ordering) []byte {
	b := []byte(`{"name":`)
	b = appendString(b, e.Name)
	b = append(b, `,"hostIdentifier":`...)
	b = appendString(b, e.Identifier)
	b = append(b, `,"calendarTime":`...)
	b = appendString(b, e.CalendarTime)
	b = append(b, `,"unixTime":`...)
	b = strconv.AppendUint(b, e.Time, 10)
	b = append(b, `,"epoch":`...)
	b = strconv.AppendUint(b, e.Epoch, 10)
	b = append(b, `,"counter":`...)
	b = strconv.AppendUint(b, e.Counter, 10)
	b = append(b, `,"action":`...)
	b = appendString(b, string(e.Action))
	b = append(b, `,"columns":`...)
	b = appendRow(b, e.Columns, o)
	return append(b, '}')
}

func appendRow(b []byte, r Row, o Ordering) []byte {
	b = append(b, '{')
	first := true
	field := func(name, value string) {
		if !first {
			b = append(b, ',')
		}
		first = false
		b = appendString(b, name)
		b = append(b, ':')
		b = appendString(b, value)
	}

	if o.IsNatural() {
		for name, value := range r.All() {
			field(name, value)
		}
	} else {
		for _, name := range o.columns {
			if value, ok := r.Get(name); ok {
				field(name, value)
			}
		}
	}
	return append(b, '}')
}

func appendSnapshot(b []byte, s Snapshot, o Ordering) []byte {
	b = append(b, '[')
	for i, r := range s {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendRow(b, r, o)
	}
	return append(b, ']')
}

func appendDiffResults(b []byte, d DiffResults, o Ordering) []byte {
	b = append(b, `{"removed":`...)
	b = appendSnapshot(b, d.Removed, o)
	b = append(b, `,"added":`...)
	b = appendSnapshot(b, d.Added, o)
	return append(b, '}')
}

func appendMetadata(b []byte, m Metadata) []byte {
	b = append(b, `,"name":`...)
	b = appendString(b, m.Name)
	b = append(b, `,"hostIdentifier":`...)
	b = appendString(b, m.Identifier)
	b = append(b, `,"calendarTime":`...)
	b = appendString(b, m.CalendarTime)
	b = append(b, `,"unixTime":`...)
	b = strconv.AppendUint(b, m.Time, 10)
	b = append(b, `,"epoch":`...)
	b = strconv.AppendUint(b, m.Epoch, 10)
	b = append(b, `,"counter":`...)
	return strconv.AppendUint(b, m.Counter, 10)
}

// appendString quotes s without HTML escaping. Invalid UTF-8 becomes U+FFFD.
func appendString(b []byte, s string) []byte {
	buf := bytes.NewBuffer(b)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	enc.Encode(s)
	out := buf.Bytes()
	return out[:len(out)-1] // Encode appends a newline
}

// MarshalJSON encodes the row in insertion order.
func (r Row) MarshalJSON() ([]byte, error) {
	return EncodeRow(r, Natural()), nil
}

// MarshalJSON encodes the snapshot in insertion order. A nil snapshot
// encodes as an empty array.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return EncodeSnapshot(s, Natural()), nil
}

// MarshalJSON encodes the diff in insertion order.
func (d DiffResults) MarshalJSON() ([]byte, error) {
	return EncodeDiffResults(d, Natural()), nil
}

// MarshalJSON encodes the log item in insertion order.
func (l LogItem) MarshalJSON() ([]byte, error) {
	return EncodeLogItem(l, Natural()), nil
}

// MarshalJSON encodes the event in insertion order.
func (e Event) MarshalJSON() ([]byte, error) {
	return EncodeEvent(e, Natural()), nil
}
