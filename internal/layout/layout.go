package layout

// Layout describes how a rows x cols panel is wired as one LED strip.
type Layout struct {
	Rows int
	Cols int
	// Serpentine reverses every odd row, as on zig-zag wired panels.
	Serpentine bool
}

// Index maps row,col -> linear LED index (0..N-1)
func (l Layout) Index(row, col int) int {
	c := col
	if l.Serpentine && row%2 == 1 {
		c = l.Cols - 1 - col
	}
	return row*l.Cols + c
}

func (l Layout) Count() int {
	return l.Rows * l.Cols
}
