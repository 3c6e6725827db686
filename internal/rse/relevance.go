package rse

import "math"

// RelevanceValues returns one value per meta-document position: the chunk's score decayed by
// its rank, or the negative filler penalty where no ranked chunk sits.
func RelevanceValues(m *MetaDocument, cfg Config) []float64 {
	values := make([]float64, 0, m.Len())
	for _, b := range m.Blocks {
		for _, slot := range b.slots {
			if slot == nil {
				values = append(values, -cfg.IrrelevantChunkPenalty)
				continue
			}
			values = append(values, slot.Score*math.Exp(-float64(slot.Rank)/cfg.DecayRate))
		}
	}
	return values
}
