package matcher

import (
	"sort"

	"entity-resolution-service/internal/signature"
)

// unknownYear buckets signatures without a date
const unknownYear = 0

// TemporalIndex groups signatures by year bucket for candidate selection
type TemporalIndex struct {
	// YearIndex maps a year to the signatures dated in it. Undated signatures
	// live under year 0.
	YearIndex map[int][]*signature.Signature

	// MonthIndex maps a temporal token such as "24jan" to its signatures
	MonthIndex map[string][]*signature.Signature

	// AllSignatures holds all indexed signatures in load order
	AllSignatures []*signature.Signature
}

// IndexStats provides statistics about an index
type IndexStats struct {
	TotalSignatures int
	UniqueYears     int
	UniqueMonths    int
	UndatedRecords  int
}

// NewTemporalIndex creates a new index over sigs
func NewTemporalIndex(sigs []*signature.Signature) *TemporalIndex {
	index := &TemporalIndex{
		YearIndex:     make(map[int][]*signature.Signature),
		MonthIndex:    make(map[string][]*signature.Signature),
		AllSignatures: make([]*signature.Signature, 0, len(sigs)),
	}
	for _, sig := range sigs {
		index.Add(sig)
	}
	return index
}

// Add indexes one more signature
func (ti *TemporalIndex) Add(sig *signature.Signature) {
	ti.AllSignatures = append(ti.AllSignatures, sig)
	year := unknownYear
	if sig.Temporal.Known() {
		year = sig.Temporal.Year
		ti.MonthIndex[sig.Temporal.Token] = append(ti.MonthIndex[sig.Temporal.Token], sig)
	}
	ti.YearIndex[year] = append(ti.YearIndex[year], sig)
}

// Years returns the known years in ascending order
func (ti *TemporalIndex) Years() []int {
	years := make([]int, 0, len(ti.YearIndex))
	for year := range ti.YearIndex {
		if year != unknownYear {
			years = append(years, year)
		}
	}
	sort.Ints(years)
	return years
}

// GetCandidates returns the signatures worth scoring against sig. When the
// different-year weights cannot reach the audit floor, only the same year
// bucket is returned and undated signatures get no candidates at all.
func (ti *TemporalIndex) GetCandidates(sig *signature.Signature, config *MatchingConfig) []*signature.Signature {
	if !config.CanPruneDifferentYear() {
		return ti.AllSignatures
	}
	if !sig.Temporal.Known() {
		return nil
	}
	return ti.YearIndex[sig.Temporal.Year]
}

// GetIndexStats returns statistics about the index
func (ti *TemporalIndex) GetIndexStats() IndexStats {
	return IndexStats{
		TotalSignatures: len(ti.AllSignatures),
		UniqueYears:     len(ti.Years()),
		UniqueMonths:    len(ti.MonthIndex),
		UndatedRecords:  len(ti.YearIndex[unknownYear]),
	}
}
