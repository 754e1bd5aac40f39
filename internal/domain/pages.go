package domain

// MaxSelectedPages bounds how many pages a caller may pick for OCR.
const MaxSelectedPages = 2

// PageSelection is an ordered set of 1-based page indices. An empty selection
// means every page.
type PageSelection []int

// Filter returns the 1-based page numbers of a document with total pages that
// should be recognised, in selection order. Indices outside 1..total are dropped.
func (p PageSelection) Filter(total int) []int {
	if len(p) == 0 {
		out := make([]int, 0, total)
		for i := 1; i <= total; i++ {
			out = append(out, i)
		}
		return out
	}
	out := make([]int, 0, len(p))
	for _, n := range p {
		if n < 1 || n > total {
			continue
		}
		out = append(out, n)
	}
	return out
}
