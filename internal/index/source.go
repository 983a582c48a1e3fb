package index

// Source is an ordered view over indexed lines: the whole index or a
// filtered subsequence. Row positions are dense [0, Len()); LineID maps a
// row position back to the physical line id.
type Source interface {
	Len() int
	LineID(row int) int
}

// LineID makes *LineIndex the identity source over all lines.
func (ix *LineIndex) LineID(row int) int {
	return row
}
