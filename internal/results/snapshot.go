// internal/results/snapshot.go
package results

// Snapshot is the full, ordered result set of one query execution.
// Duplicate rows are allowed.
type Snapshot []Row

// Equal compares two snapshots element by element. Order matters.
func (s Snapshot) Equal(o Snapshot) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if !s[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// AddUniqueRow appends r to s unless an equal row is already present.
// It reports whether the row was added.
//
// The scan is linear, so building a snapshot of n unique rows this way is
// quadratic. Query results are small enough for that to be fine.
func AddUniqueRow(s *Snapshot, r Row) bool {
	for _, existing := range *s {
		if existing.Equal(r) {
			return false
		}
	}
	*s = append(*s, r)
	return true
}

// SnapshotSet is an unordered collection of distinct rows used for
// membership tests while diffing.
type SnapshotSet struct {
	buckets map[uint64][]Row
	n       int
}

// NewSnapshotSet builds a set from the rows of s. Duplicates collapse.
func NewSnapshotSet(s Snapshot) *SnapshotSet {
	set := &SnapshotSet{buckets: make(map[uint64][]Row, len(s))}
	for _, r := range s {
		set.Insert(r)
	}
	return set
}

// Insert adds r unless an equal row is already a member. It reports
// whether the row was added.
func (s *SnapshotSet) Insert(r Row) bool {
	if s.buckets == nil {
		s.buckets = make(map[uint64][]Row)
	}
	fp := r.Fingerprint()
	for _, member := range s.buckets[fp] {
		if member.Equal(r) {
			return false
		}
	}
	s.buckets[fp] = append(s.buckets[fp], r)
	s.n++
	return true
}

// Contains reports whether a row equal to r is a member.
func (s *SnapshotSet) Contains(r Row) bool {
	for _, member := range s.buckets[r.Fingerprint()] {
		if member.Equal(r) {
			return true
		}
	}
	return false
}

// Len returns the number of distinct rows.
func (s *SnapshotSet) Len() int {
	return s.n
}
