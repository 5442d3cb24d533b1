// Package layout places rectangular page blocks on a fixed-column grid and
// repacks them when their footprints collide.
//
// Everything in this package is a pure function of its arguments: callers
// hand in an in-memory snapshot of a page's blocks and persist whatever
// comes back. The column count travels in a Grid value instead of living in
// package state, so two pages with different grids can be laid out side by
// side.
package layout

const (
	// DefaultColumns is the column count of the reference page grid.
	DefaultColumns = 4

	// ScanSlack is how many rows past the lowest occupied row the space
	// finder scans before giving up and appending a new row.
	ScanSlack = 10

	// DefaultMaxRows is how many rows a page may use. Blocks must end on or
	// above the last row.
	DefaultMaxRows = 1000
)

var (
	// DefaultSize is used for blocks stored without a usable size.
	DefaultSize = Size{Width: 1, Height: 2}

	// DefaultPosition is used for blocks stored without a position.
	DefaultPosition = Position{X: 0, Y: 0}
)

// Position is the top-left origin of a block. Row 0 is the top of the page.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a block's extent in grid cells.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Placement is a block as the engine sees it: a stable id plus geometry.
type Placement struct {
	ID string `json:"id"`
	Position
	Size
}

// Cell is a single grid coordinate.
type Cell struct {
	Row int
	Col int
}

// Grid describes the page grid.
type Grid struct {
	Columns   int
	ScanSlack int
	MaxRows   int
}

// NewGrid returns a grid with the given column count. Non-positive values
// fall back to DefaultColumns.
func NewGrid(columns int) Grid {
	if columns < 1 {
		columns = DefaultColumns
	}
	return Grid{Columns: columns, ScanSlack: ScanSlack, MaxRows: DefaultMaxRows}
}

func (g Grid) columns() int {
	if g.Columns < 1 {
		return DefaultColumns
	}
	return g.Columns
}

// Rows is the number of usable rows. Non-positive MaxRows values select
// DefaultMaxRows.
func (g Grid) Rows() int {
	if g.MaxRows < 1 {
		return DefaultMaxRows
	}
	return g.MaxRows
}

func (g Grid) slack() int {
	if g.ScanSlack < 1 {
		return ScanSlack
	}
	return g.ScanSlack
}

// Fits reports whether p lies entirely inside the grid's columns and rows
// with a non-negative origin and a positive size.
func (g Grid) Fits(p Placement) bool {
	if p.X < 0 || p.Y < 0 || p.Width < 1 || p.Height < 1 {
		return false
	}
	if p.Width > g.columns() || p.X > g.columns()-p.Width {
		return false
	}
	return p.Height <= g.Rows() && p.Y <= g.Rows()-p.Height
}

// Footprint returns every cell covered by p in row-major order.
func Footprint(p Placement) []Cell {
	if p.Width < 1 || p.Height < 1 {
		return nil
	}
	cells := make([]Cell, 0, p.Width*p.Height)
	for dy := 0; dy < p.Height; dy++ {
		for dx := 0; dx < p.Width; dx++ {
			cells = append(cells, Cell{Row: p.Y + dy, Col: p.X + dx})
		}
	}
	return cells
}

// Input is a block record as it arrives from persistence, where position
// and size may be missing.
type Input struct {
	ID       string
	Position *Position
	Size     *Size
}

// Normalize turns raw inputs into placements, filling in DefaultPosition
// and DefaultSize. A size component below 1 takes the default for that
// component only.
func Normalize(inputs []Input) []Placement {
	out := make([]Placement, len(inputs))
	for i, in := range inputs {
		p := Placement{ID: in.ID, Position: DefaultPosition, Size: DefaultSize}
		if in.Position != nil {
			p.Position = *in.Position
		}
		if in.Size != nil {
			if in.Size.Width >= 1 {
				p.Width = in.Size.Width
			}
			if in.Size.Height >= 1 {
				p.Height = in.Size.Height
			}
		}
		out[i] = p
	}
	return out
}
