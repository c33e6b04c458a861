// internal/results/diff.go
package results

// DiffResults lists the rows that appeared and disappeared between two
// executions of the same query.
type DiffResults struct {
	Added   Snapshot
	Removed Snapshot
}

// Empty reports whether nothing was added or removed.
func (d DiffResults) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Equal compares both sides of two diffs with Snapshot.Equal.
func (d DiffResults) Equal(o DiffResults) bool {
	return d.Added.Equal(o.Added) && d.Removed.Equal(o.Removed)
}

// Diff computes the rows of current missing from old (added) and the rows
// of old missing from current (removed). Each side keeps the order and the
// duplicates of the snapshot it came from: a row present twice in current
// and absent from old is reported as added twice.
func Diff(old, current Snapshot) DiffResults {
	d := DiffResults{
		Added:   Snapshot{},
		Removed: Snapshot{},
	}

	oldSet := NewSnapshotSet(old)
	for _, r := range current {
		if !oldSet.Contains(r) {
			d.Added = append(d.Added, r)
		}
	}

	currentSet := NewSnapshotSet(current)
	for _, r := range old {
		if !currentSet.Contains(r) {
			d.Removed = append(d.Removed, r)
		}
	}

	return d
}
