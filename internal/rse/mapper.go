package rse

import "github.com/knoguchi/rse/internal/passage"

// QueryResult is the filtered output of one query. The three lists are aligned and follow
// segment selection order, which is by value and not by reading order.
type QueryResult struct {
	Contents []string
	IDs      []string
	Scores   []float64
	Segments []passage.Segment
}

// MapSegments projects selected segments back onto the query's retrieved lists. Filler
// positions have no retrieved chunk and contribute nothing to the output.
func MapSegments(r passage.Retrieved, m *MetaDocument, segments []passage.Segment) QueryResult {
	out := QueryResult{
		Contents: []string{},
		IDs:      []string{},
		Scores:   []float64{},
		Segments: segments,
	}

	for _, seg := range segments {
		b, ok := m.Block(seg.DocumentID)
		if !ok {
			continue
		}
		localStart := seg.Start - m.StartPoints[seg.DocumentID]
		localEnd := seg.End - m.StartPoints[seg.DocumentID]

		for _, slot := range b.slots[localStart:localEnd] {
			if slot == nil {
				continue
			}
			out.Contents = append(out.Contents, r.Contents[slot.Position])
			out.IDs = append(out.IDs, r.IDs[slot.Position])
			out.Scores = append(out.Scores, r.Scores[slot.Position])
		}
	}

	return out
}
