package layout

import "math"

// FindSpace returns the first origin, scanning rows top to bottom and
// columns left to right, at which a block of the given size fits without
// touching occupied cells.
//
// The scan covers rows 0 through MaxRow()+1+slack, and never past the last
// origin that keeps the block inside the grid's rows. If nothing fits in
// that window the block goes to column 0 of the row below the lowest
// occupied one. Blocks wider than the grid are only tried at column 0;
// blocks taller than the grid are scanned as if they were exactly as tall.
func FindSpace(occupied *CellSet, size Size, g Grid) Position {
	if size.Width < 1 {
		size.Width = DefaultSize.Width
	}
	if size.Height < 1 {
		size.Height = DefaultSize.Height
	}
	rows := g.Rows()
	if size.Height > rows {
		size.Height = rows
	}

	lastX := g.columns() - size.Width
	if lastX < 0 {
		lastX = 0
	}
	maxRow := occupied.MaxRow()
	lastY := rows - size.Height
	if maxRow < lastY {
		if room := lastY - maxRow - 1; g.slack() < room {
			lastY = maxRow + 1 + g.slack()
		}
	}

	candidate := Placement{Size: size}
	for y := 0; y <= lastY; y++ {
		for x := 0; x <= lastX; x++ {
			candidate.Position = Position{X: x, Y: y}
			if !occupied.Intersects(candidate) {
				return candidate.Position
			}
		}
	}

	if maxRow == math.MaxInt {
		return Position{X: 0, Y: maxRow}
	}
	return Position{X: 0, Y: maxRow + 1}
}

// NextPosition finds where a new block of the given size should go on a
// page that already holds existing.
func NextPosition(existing []Placement, size Size, g Grid) Position {
	occupied := NewCellSet()
	for _, p := range existing {
		occupied.Occupy(p)
	}
	return FindSpace(occupied, size, g)
}
