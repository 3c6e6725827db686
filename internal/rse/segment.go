package rse

import (
	"sort"

	"github.com/knoguchi/rse/internal/passage"
)

// SelectSegments picks non-overlapping, document-bounded segments of values maximizing the
// summed relevance under the length budgets. The result is ordered by value, highest first.
//
// Each document range yields its locally best candidates: the best sub-range of at most
// MaxLength positions, then recursively the best of what remains on either side. Candidates
// from all documents are then accepted greedily by value while the budget allows.
func SelectSegments(values []float64, m *MetaDocument, cfg Config) []passage.Segment {
	prefix := make([]float64, len(values)+1)
	for i, v := range values {
		prefix[i+1] = prefix[i] + v
	}

	// hits counts the retrieved chunks before each position.
	hits := make([]int, len(values)+1)
	for _, b := range m.Blocks {
		for i, slot := range b.slots {
			hits[b.Start+i+1] = hits[b.Start+i]
			if slot != nil {
				hits[b.Start+i+1]++
			}
		}
	}

	s := &selector{prefix: prefix, hits: hits, maxLen: cfg.segmentCap(), minValue: cfg.MinimumValue}
	for _, b := range m.Blocks {
		s.collect(b.ID, b.Start, b.End())
	}

	candidates := s.candidates
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Value != candidates[j].Value {
			return candidates[i].Value > candidates[j].Value
		}
		return candidates[i].Start < candidates[j].Start
	})

	// Candidates are disjoint by construction, so only the budget can reject one.
	var selected []passage.Segment
	total := 0
	for _, c := range candidates {
		if total == cfg.OverallMaxLength {
			break
		}
		if total+c.Len() > cfg.OverallMaxLength {
			continue
		}
		selected = append(selected, c)
		total += c.Len()
	}

	return selected
}

type selector struct {
	prefix     []float64
	hits       []int
	maxLen     int
	minValue   float64
	candidates []passage.Segment
}

func (s *selector) collect(doc string, lo, hi int) {
	if lo >= hi {
		return
	}

	start, end, ok := s.best(lo, hi)
	if !ok {
		return
	}
	value := s.sum(start, end)
	if value < s.minValue {
		// No sub-range of [lo, hi) can do better than its best one.
		return
	}

	s.candidates = append(s.candidates, passage.Segment{
		DocumentID: doc,
		Start:      start,
		End:        end,
		Value:      value,
	})

	s.collect(doc, lo, start)
	s.collect(doc, end, hi)
}

// best finds the highest-valued range of at most maxLen positions inside [lo, hi) that
// covers at least one retrieved chunk. Ties go to the earliest start, then the shortest range.
func (s *selector) best(lo, hi int) (start, end int, ok bool) {
	var value float64
	for i := lo; i < hi; i++ {
		limit := min(i+s.maxLen, hi)
		for j := i + 1; j <= limit; j++ {
			if s.hits[j] == s.hits[i] {
				continue
			}
			v := s.sum(i, j)
			if !ok || v > value {
				start, end, value, ok = i, j, v, true
			}
		}
	}
	return start, end, ok
}

func (s *selector) sum(start, end int) float64 {
	return s.prefix[end] - s.prefix[start]
}
