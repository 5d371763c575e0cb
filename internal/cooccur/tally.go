package cooccur

// Pair is an unordered subject pair stored with A < B.
type Pair struct {
	A string
	B string
}

// NewPair returns the canonical pair for x and y. It reports false for a
// self-pair, which is never tallied.
func NewPair(x, y string) (Pair, bool) {
	if x == y {
		return Pair{}, false
	}
	if x > y {
		x, y = y, x
	}
	return Pair{A: x, B: y}, true
}

// Tally holds the subject frequency table and the pairwise co-occurrence
// counts accumulated over a set of records.
type Tally struct {
	Frequencies  map[string]int
	Pairs        map[Pair]int
	TotalRecords int
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{
		Frequencies: make(map[string]int),
		Pairs:       make(map[Pair]int),
	}
}

// Add counts one record. subjects must already be deduplicated; a record
// with k subjects adds k frequency increments and k*(k-1)/2 pair increments.
func (t *Tally) Add(subjects []string) {
	t.TotalRecords++
	for _, s := range subjects {
		t.Frequencies[s]++
	}
	if len(subjects) < 2 {
		return
	}
	for i := 0; i < len(subjects); i++ {
		for j := i + 1; j < len(subjects); j++ {
			if p, ok := NewPair(subjects[i], subjects[j]); ok {
				t.Pairs[p]++
			}
		}
	}
}

// Merge adds other's counts into t.
func (t *Tally) Merge(other *Tally) {
	if other == nil {
		return
	}
	t.TotalRecords += other.TotalRecords
	for s, n := range other.Frequencies {
		t.Frequencies[s] += n
	}
	for p, n := range other.Pairs {
		t.Pairs[p] += n
	}
}

// Frequency returns the number of records tagged with s.
func (t *Tally) Frequency(s string) int {
	return t.Frequencies[s]
}

// PairCount returns the number of records tagged with both x and y.
func (t *Tally) PairCount(x, y string) int {
	p, ok := NewPair(x, y)
	if !ok {
		return 0
	}
	return t.Pairs[p]
}
