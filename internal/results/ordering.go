// internal/results/ordering.go
package results

import "slices"

// Ordering controls the member order of encoded rows.
//
// The zero value is Natural: fields are written in the order they were set
// on the row. A Fixed ordering walks its column list instead; names the row
// lacks are skipped and a name listed twice is written twice.
type Ordering struct {
	columns []string
}

// Natural returns the insertion-order Ordering.
func Natural() Ordering {
	return Ordering{}
}

// Fixed returns an Ordering that writes the given columns in order. With no
// columns it is equivalent to Natural.
func Fixed(columns ...string) Ordering {
	return Ordering{columns: slices.Clone(columns)}
}

// IsNatural reports whether fields follow row insertion order.
func (o Ordering) IsNatural() bool {
	return len(o.columns) == 0
}

// Columns returns the fixed column list, nil for Natural.
func (o Ordering) Columns() []string {
	return slices.Clone(o.columns)
}
