package cooccur

import "sort"

// CooccurrenceRecord is one retained pair. SubjectA sorts before SubjectB;
// the verdict names which of the two is broader.
type CooccurrenceRecord struct {
	SubjectA          string  `json:"subjectA"`
	SubjectB          string  `json:"subjectB"`
	CooccurrenceCount int     `json:"cooccurrenceCount"`
	PAGivenB          float64 `json:"pOfAGivenB"`
	PBGivenA          float64 `json:"pOfBGivenA"`
	Verdict           Verdict `json:"verdict"`
	Strength          float64 `json:"strength"`
}

// Oriented returns the pair as (broader, narrower) together with
// P(broader|narrower). NO_DIRECTION pairs are oriented toward the larger
// conditional probability, A on an exact tie.
func (r CooccurrenceRecord) Oriented() (broader, narrower string, pBroaderGivenNarrower float64) {
	switch {
	case r.Verdict == VerdictBBroader:
		return r.SubjectB, r.SubjectA, r.PBGivenA
	case r.Verdict == VerdictABroader, r.PAGivenB >= r.PBGivenA:
		return r.SubjectA, r.SubjectB, r.PAGivenB
	default:
		return r.SubjectB, r.SubjectA, r.PBGivenA
	}
}

// SubjectCount is a subject with the number of records carrying it.
type SubjectCount struct {
	Subject string `json:"subject"`
	Count   int    `json:"count"`
}

// Summary describes a run.
type Summary struct {
	TotalRecordsScanned  int             `json:"totalRecordsScanned"`
	RecordsSkipped       int             `json:"recordsSkipped"`
	TotalPairsConsidered int             `json:"totalPairsConsidered"`
	TotalPairsRetained   int             `json:"totalPairsRetained"`
	CountsByVerdict      map[Verdict]int `json:"countsByVerdict"`
	Partial              bool            `json:"partial,omitempty"`
}

// ResultSet is the immutable output of a run.
type ResultSet struct {
	Summary  Summary              `json:"summary"`
	Subjects []SubjectCount       `json:"subjects"`
	Records  []CooccurrenceRecord `json:"relationships"`
}

// SortRecords orders records by descending strength, then by subject pair.
func SortRecords(records []CooccurrenceRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Strength != b.Strength {
			return a.Strength > b.Strength
		}
		if a.SubjectA != b.SubjectA {
			return a.SubjectA < b.SubjectA
		}
		return a.SubjectB < b.SubjectB
	})
}

// SortSubjects orders subjects by descending count, then by name.
func SortSubjects(subjects []SubjectCount) {
	sort.Slice(subjects, func(i, j int) bool {
		if subjects[i].Count != subjects[j].Count {
			return subjects[i].Count > subjects[j].Count
		}
		return subjects[i].Subject < subjects[j].Subject
	})
}

type resultBuilder struct {
	records    []CooccurrenceRecord
	byVerdict  map[Verdict]int
	considered int
}

func newResultBuilder(considered, capacity int) *resultBuilder {
	b := &resultBuilder{
		records:    make([]CooccurrenceRecord, 0, capacity),
		byVerdict:  make(map[Verdict]int, len(Verdicts)),
		considered: considered,
	}
	for _, v := range Verdicts {
		b.byVerdict[v] = 0
	}
	return b
}

func (b *resultBuilder) add(c Conditional, cl Classification) {
	b.records = append(b.records, CooccurrenceRecord{
		SubjectA:          c.Pair.A,
		SubjectB:          c.Pair.B,
		CooccurrenceCount: c.Count,
		PAGivenB:          c.PAGivenB,
		PBGivenA:          c.PBGivenA,
		Verdict:           cl.Verdict,
		Strength:          cl.Strength,
	})
	b.byVerdict[cl.Verdict]++
}

func (b *resultBuilder) build(t *Tally, skipped int, partial bool) *ResultSet {
	SortRecords(b.records)

	subjects := make([]SubjectCount, 0, len(t.Frequencies))
	for s, n := range t.Frequencies {
		subjects = append(subjects, SubjectCount{Subject: s, Count: n})
	}
	SortSubjects(subjects)

	return &ResultSet{
		Summary: Summary{
			TotalRecordsScanned:  t.TotalRecords,
			RecordsSkipped:       skipped,
			TotalPairsConsidered: b.considered,
			TotalPairsRetained:   len(b.records),
			CountsByVerdict:      b.byVerdict,
			Partial:              partial,
		},
		Subjects: subjects,
		Records:  b.records,
	}
}
