// internal/results/row.go

// Package results holds the tabular data model produced by scheduled
// queries and the operations the agent performs on it before shipping:
// diffing two snapshots, deduplicating rows, assembling log items and
// encoding all of them to JSON.
//
// Everything in this package is pure and synchronous. Nothing here
// performs I/O or logs.
package results

import (
	"iter"
	"slices"

	"github.com/cespare/xxhash"
)

// Row is one record of a query result: field names mapped to string
// values. Field names are unique within a row and keep the order in which
// they were first set. The zero value is an empty row ready for use.
//
// A Row holds references to its storage; copies share fields. Use Clone
// for an independent copy.
type Row struct {
	columns []string
	values  map[string]string
}

// Get returns the value of the named field.
func (r Row) Get(name string) (string, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Has reports whether the row contains the named field.
func (r Row) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Set assigns a field. A field that already exists keeps its position.
func (r *Row) Set(name, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[name]; !ok {
		r.columns = append(r.columns, name)
	}
	r.values[name] = value
}

// Delete removes the named field, if present.
func (r *Row) Delete(name string) {
	if _, ok := r.values[name]; !ok {
		return
	}
	delete(r.values, name)
	if i := slices.Index(r.columns, name); i >= 0 {
		r.columns = slices.Delete(r.columns, i, i+1)
	}
}

// Len returns the number of fields.
func (r Row) Len() int {
	return len(r.columns)
}

// Columns returns the field names in insertion order.
func (r Row) Columns() []string {
	return slices.Clone(r.columns)
}

// All iterates over the fields in insertion order.
func (r Row) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, name := range r.columns {
			if !yield(name, r.values[name]) {
				return
			}
		}
	}
}

// Equal reports whether both rows hold the same name/value pairs.
// Field order is ignored.
func (r Row) Equal(o Row) bool {
	if len(r.values) != len(o.values) {
		return false
	}
	for name, v := range r.values {
		ov, ok := o.values[name]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	if r.values == nil {
		return Row{}
	}
	values := make(map[string]string, len(r.values))
	for k, v := range r.values {
		values[k] = v
	}
	return Row{columns: slices.Clone(r.columns), values: values}
}

// Fingerprint returns a hash of the row's contents that does not depend on
// field order. Equal rows have equal fingerprints; the converse does not
// hold.
func (r Row) Fingerprint() uint64 {
	var sum uint64
	buf := make([]byte, 0, 64)
	for name, v := range r.values {
		buf = append(buf[:0], name...)
		buf = append(buf, 0)
		buf = append(buf, v...)
		sum += xxhash.Sum64(buf)
	}
	return sum
}
