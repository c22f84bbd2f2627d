// Package pageindex maps the flat global page addressing used throughout
// the API to the (source PDF, local page) pair it denotes.
package pageindex

import "github.com/local/tipificador/internal/errs"

// Ref is one entry of a page index: the i-th accepted source PDF and a
// 0-based page offset within it.
type Ref struct {
	PdfIdx    int
	LocalPage int
}

// Index is an ordered, append-only-during-build sequence of Refs. Global
// index g addresses Index[g].
type Index []Ref

// Build appends one Ref per page of each source, in upload order, given the
// page count of each source.
func Build(pageCounts []int) Index {
	idx := make(Index, 0)
	for pdfIdx, count := range pageCounts {
		for local := 0; local < count; local++ {
			idx = append(idx, Ref{PdfIdx: pdfIdx, LocalPage: local})
		}
	}
	return idx
}

// Resolve returns the Ref for global index g, or NotFound if g is out of range.
func (idx Index) Resolve(g int) (Ref, error) {
	if g < 0 || g >= len(idx) {
		return Ref{}, errs.NewNotFound("page index out of range")
	}
	return idx[g], nil
}

func (idx Index) TotalPages() int { return len(idx) }
