package layout

// Occupancy maps each covered cell to the id of the block covering it.
// When footprints collide the block that comes later in iteration order
// wins, so the map cannot be used to decide whether a collision exists.
type Occupancy map[Cell]string

// BuildOccupancy rasterizes the footprints of placements.
func BuildOccupancy(placements []Placement) Occupancy {
	occ := make(Occupancy)
	for _, p := range placements {
		for _, c := range Footprint(p) {
			occ[c] = p.ID
		}
	}
	return occ
}

// Owner returns the id of the block covering c.
func (o Occupancy) Owner(c Cell) (string, bool) {
	id, ok := o[c]
	return id, ok
}

// CellSet is the set of occupied cells used while detecting and repacking.
type CellSet struct {
	cells  map[Cell]struct{}
	maxRow int
}

// NewCellSet returns an empty set.
func NewCellSet() *CellSet {
	return &CellSet{cells: make(map[Cell]struct{}), maxRow: -1}
}

// Has reports whether c is occupied.
func (s *CellSet) Has(c Cell) bool {
	_, ok := s.cells[c]
	return ok
}

// Occupy marks every cell of p's footprint.
func (s *CellSet) Occupy(p Placement) {
	for _, c := range Footprint(p) {
		s.cells[c] = struct{}{}
		if c.Row > s.maxRow {
			s.maxRow = c.Row
		}
	}
}

// Intersects reports whether any cell of p's footprint is already occupied.
func (s *CellSet) Intersects(p Placement) bool {
	for _, c := range Footprint(p) {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// MaxRow is the lowest occupied row, or -1 for an empty set.
func (s *CellSet) MaxRow() int {
	return s.maxRow
}

// Len is the number of occupied cells.
func (s *CellSet) Len() int {
	return len(s.cells)
}
