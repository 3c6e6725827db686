package rse

import "sort"

// DocumentBlock is one source document's contiguous range in a meta-document.
type DocumentBlock struct {
	ID string
	// Start is the block's offset in the meta-document.
	Start int

	// slots holds the document's ranked chunks in LocalIndex order, with nil fillers for
	// the local indices that were not retrieved.
	slots []*RankedResult
}

// Len returns the number of positions the block covers.
func (b *DocumentBlock) Len() int {
	return len(b.slots)
}

// End returns the offset one past the block's last position.
func (b *DocumentBlock) End() int {
	return b.Start + len(b.slots)
}

// MetaDocument is the virtual concatenation of a query's top documents.
type MetaDocument struct {
	Blocks []*DocumentBlock

	// StartPoints maps a document id to its block offset.
	StartPoints map[string]int
	// Splits maps a document id to its block length.
	Splits map[string]int

	byID map[string]*DocumentBlock
}

// Len returns the meta-document length, the sum of all block lengths.
func (m *MetaDocument) Len() int {
	if len(m.Blocks) == 0 {
		return 0
	}
	return m.Blocks[len(m.Blocks)-1].End()
}

// Block returns the block of a document.
func (m *MetaDocument) Block(documentID string) (*DocumentBlock, bool) {
	b, ok := m.byID[documentID]
	return b, ok
}

// At returns the ranked chunk at a meta-document position. It returns nil for fillers.
func (m *MetaDocument) At(pos int) *RankedResult {
	for _, b := range m.Blocks {
		if pos >= b.Start && pos < b.End() {
			return b.slots[pos-b.Start]
		}
	}
	return nil
}

// AssembleMetaDocument lays out the chunks of the first cfg.TopKForDocumentSelection
// distinct documents of a ranked list, each document's chunks in ascending LocalIndex order.
//
// A run of missing local indices becomes at most cfg.segmentCap() fillers. No segment can
// span that many fillers and still reach chunks on both sides, so the shortened block
// selects the same chunks while its size stays bounded by the number of retrieved chunks.
func AssembleMetaDocument(ranked []RankedResult, cfg Config) *MetaDocument {
	m := &MetaDocument{
		StartPoints: make(map[string]int),
		Splits:      make(map[string]int),
		byID:        make(map[string]*DocumentBlock),
	}

	var order []string
	for i := range ranked {
		doc := ranked[i].DocumentID
		if _, ok := m.byID[doc]; ok {
			continue
		}
		if len(order) == cfg.TopKForDocumentSelection {
			break
		}
		order = append(order, doc)
		m.byID[doc] = &DocumentBlock{ID: doc}
	}

	chunks := make(map[string][]*RankedResult, len(order))
	for i := range ranked {
		doc := ranked[i].DocumentID
		if _, ok := m.byID[doc]; ok {
			chunks[doc] = append(chunks[doc], &ranked[i])
		}
	}

	maxGap := cfg.segmentCap()
	offset := 0
	for _, doc := range order {
		docChunks := chunks[doc]
		sort.Slice(docChunks, func(i, j int) bool {
			return docChunks[i].LocalIndex < docChunks[j].LocalIndex
		})

		b := m.byID[doc]
		b.Start = offset
		for i, c := range docChunks {
			if i > 0 {
				gap := c.LocalIndex - docChunks[i-1].LocalIndex - 1
				for range min(gap, maxGap) {
					b.slots = append(b.slots, nil)
				}
			}
			b.slots = append(b.slots, c)
		}

		m.Blocks = append(m.Blocks, b)
		m.StartPoints[doc] = b.Start
		m.Splits[doc] = b.Len()
		offset += b.Len()
	}

	return m
}
