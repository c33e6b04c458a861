// internal/results/decode.go
package results

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
)

// DecodeRow parses a JSON object whose members are all strings. Fields keep
// the member order of the document.
func DecodeRow(data []byte) (Row, error) {
	return decode(data, (*decoder).row)
}

// DecodeSnapshot parses a JSON array of row objects.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	return decode(data, (*decoder).snapshot)
}

// DecodeDiffResults parses a document with "added" and "removed" snapshots.
func DecodeDiffResults(data []byte) (DiffResults, error) {
	return decode(data, (*decoder).diffResults)
}

// DecodeLogItem parses a log item document. Every member is required;
// unixTime, epoch and counter must be unsigned integers.
func DecodeLogItem(data []byte) (LogItem, error) {
	return decode(data, (*decoder).logItem)
}

// DecodeEvent parses a single-row event document.
func DecodeEvent(data []byte) (Event, error) {
	return decode(data, (*decoder).event)
}

// decode runs read over data and rejects anything after the first value.
// On failure the zero value is returned.
func decode[T any](data []byte, read func(*decoder, string) (T, error)) (T, error) {
	var zero T
	d := &decoder{dec: json.NewDecoder(bytes.NewReader(data))}
	d.dec.UseNumber()

	v, err := read(d, "$")
	if err != nil {
		return zero, err
	}
	if _, err := d.dec.Token(); !errors.Is(err, io.EOF) {
		return zero, malformed("$", "unexpected data after document")
	}
	return v, nil
}

type decoder struct {
	dec *json.Decoder
}

func (d *decoder) token(path string) (json.Token, error) {
	tok, err := d.dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, malformed(path, "unexpected end of document")
	}
	if err != nil {
		return nil, malformed(path, "%v", err)
	}
	return tok, nil
}

func (d *decoder) delim(path string, want json.Delim) error {
	tok, err := d.token(path)
	if err != nil {
		return err
	}
	if tok != want {
		return malformed(path, "expected %s, got %s", kindOfDelim(want), describe(tok))
	}
	return nil
}

// members walks the members of an object, calling fn with each name and
// the path of its value. fn must consume the value.
func (d *decoder) members(path string, fn func(name, path string) error) error {
	if err := d.delim(path, '{'); err != nil {
		return err
	}
	for d.dec.More() {
		tok, err := d.token(path)
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return malformed(path, "expected member name, got %s", describe(tok))
		}
		if err := fn(name, path+"."+name); err != nil {
			return err
		}
	}
	return d.delim(path, '}')
}

func (d *decoder) skip(path string) error {
	var raw json.RawMessage
	if err := d.dec.Decode(&raw); err != nil {
		return malformed(path, "%v", err)
	}
	return nil
}

func (d *decoder) readString(path string) (string, error) {
	tok, err := d.token(path)
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", malformed(path, "expected string, got %s", describe(tok))
	}
	return s, nil
}

func (d *decoder) readUint(path string) (uint64, error) {
	tok, err := d.token(path)
	if err != nil {
		return 0, err
	}
	n, ok := tok.(json.Number)
	if !ok {
		return 0, malformed(path, "expected unsigned integer, got %s", describe(tok))
	}
	v, err := strconv.ParseUint(string(n), 10, 64)
	if err != nil {
		return 0, malformed(path, "expected unsigned integer, got %s", n)
	}
	return v, nil
}

func (d *decoder) row(path string) (Row, error) {
	var r Row
	err := d.members(path, func(name, path string) error {
		v, err := d.readString(path)
		if err != nil {
			return err
		}
		r.Set(name, v)
		return nil
	})
	return r, err
}

func (d *decoder) snapshot(path string) (Snapshot, error) {
	if err := d.delim(path, '['); err != nil {
		return nil, err
	}
	s := Snapshot{}
	for i := 0; d.dec.More(); i++ {
		r, err := d.row(fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		s = append(s, r)
	}
	if err := d.delim(path, ']'); err != nil {
		return nil, err
	}
	return s, nil
}

func (d *decoder) diffResults(path string) (DiffResults, error) {
	var (
		res                 DiffResults
		gotAdded, gotRemove bool
	)
	err := d.members(path, func(name, path string) error {
		var err error
		switch name {
		case "added":
			res.Added, err = d.snapshot(path)
			gotAdded = true
		case "removed":
			res.Removed, err = d.snapshot(path)
			gotRemove = true
		default:
			err = d.skip(path)
		}
		return err
	})
	if err != nil {
		return DiffResults{}, err
	}
	if !gotAdded {
		return DiffResults{}, missing(path, "added")
	}
	if !gotRemove {
		return DiffResults{}, missing(path, "removed")
	}
	return res, nil
}

// metadata decodes one of the members shared by log items and events. It
// reports false for names it does not own.
func (d *decoder) metadata(m *Metadata, seen map[string]bool, name, path string) (bool, error) {
	var err error
	switch name {
	case "name":
		m.Name, err = d.readString(path)
	case "hostIdentifier":
		m.Identifier, err = d.readString(path)
	case "calendarTime":
		m.CalendarTime, err = d.readString(path)
	case "unixTime":
		m.Time, err = d.readUint(path)
	case "epoch":
		m.Epoch, err = d.readUint(path)
	case "counter":
		m.Counter, err = d.readUint(path)
	default:
		return false, nil
	}
	seen[name] = true
	return true, err
}

var metadataMembers = []string{"name", "hostIdentifier", "calendarTime", "unixTime", "epoch", "counter"}

func (d *decoder) logItem(path string) (LogItem, error) {
	var (
		meta    Metadata
		results DiffResults
		seen    = make(map[string]bool)
	)
	err := d.members(path, func(name, path string) error {
		if name == "diffResults" {
			var err error
			results, err = d.diffResults(path)
			seen[name] = true
			return err
		}
		ok, err := d.metadata(&meta, seen, name, path)
		if !ok {
			return d.skip(path)
		}
		return err
	})
	if err != nil {
		return LogItem{}, err
	}
	for _, name := range slices.Concat([]string{"diffResults"}, metadataMembers) {
		if !seen[name] {
			return LogItem{}, missing(path, name)
		}
	}
	return NewLogItem(results, meta), nil
}

func (d *decoder) event(path string) (Event, error) {
	var (
		meta    Metadata
		action  Action
		columns Row
		seen    = make(map[string]bool)
	)
	err := d.members(path, func(name, path string) error {
		switch name {
		case "action":
			s, err := d.readString(path)
			if err != nil {
				return err
			}
			if a := Action(s); a != ActionAdded && a != ActionRemoved {
				return malformed(path, "unknown action %q", s)
			}
			action = Action(s)
			seen[name] = true
			return nil
		case "columns":
			var err error
			columns, err = d.row(path)
			seen[name] = true
			return err
		}
		ok, err := d.metadata(&meta, seen, name, path)
		if !ok {
			return d.skip(path)
		}
		return err
	})
	if err != nil {
		return Event{}, err
	}
	for _, name := range slices.Concat(metadataMembers, []string{"action", "columns"}) {
		if !seen[name] {
			return Event{}, missing(path, name)
		}
	}
	return Event{
		Name:         meta.Name,
		Identifier:   meta.Identifier,
		CalendarTime: meta.CalendarTime,
		Time:         meta.Time,
		Epoch:        meta.Epoch,
		Counter:      meta.Counter,
		Action:       action,
		Columns:      columns,
	}, nil
}

func missing(path, name string) error {
	return malformed(path+"."+name, "missing required member")
}

func describe(tok json.Token) string {
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return "object"
		case '[':
			return "array"
		}
		return fmt.Sprintf("%q", v.String())
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", tok)
}

func kindOfDelim(d json.Delim) string {
	switch d {
	case '{':
		return "object"
	case '[':
		return "array"
	}
	return fmt.Sprintf("%q", d.String())
}

// UnmarshalJSON decodes a row with DecodeRow.
func (r *Row) UnmarshalJSON(data []byte) error {
	v, err := DecodeRow(data)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// UnmarshalJSON decodes a snapshot with DecodeSnapshot.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	v, err := DecodeSnapshot(data)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// UnmarshalJSON decodes a diff with DecodeDiffResults.
func (d *DiffResults) UnmarshalJSON(data []byte) error {
	v, err := DecodeDiffResults(data)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// UnmarshalJSON decodes a log item with DecodeLogItem.
func (l *LogItem) UnmarshalJSON(data []byte) error {
	v, err := DecodeLogItem(data)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// UnmarshalJSON decodes an event with DecodeEvent.
func (e *Event) UnmarshalJSON(data []byte) error {
	v, err := DecodeEvent(data)
	if err != nil {
		return err
	}
	*e = v
	return nil
}
