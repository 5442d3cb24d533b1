package layout

// HasOverlap reports whether any two placements share a cell. It stops at
// the first shared cell.
func HasOverlap(placements []Placement) bool {
	seen := NewCellSet()
	for _, p := range placements {
		if seen.Intersects(p) {
			return true
		}
		seen.Occupy(p)
	}
	return false
}

// Collision names two blocks whose footprints share at least one cell.
// First precedes Second in the input order.
type Collision struct {
	First  string `json:"first"`
	Second string `json:"second"`
}

// Collisions lists every colliding pair once, in input order.
func Collisions(placements []Placement) []Collision {
	owners := make(map[Cell][]string)
	seen := make(map[Collision]bool)
	var out []Collision
	for _, p := range placements {
		for _, c := range Footprint(p) {
			for _, other := range owners[c] {
				if other == p.ID {
					continue
				}
				pair := Collision{First: other, Second: p.ID}
				if !seen[pair] {
					seen[pair] = true
					out = append(out, pair)
				}
			}
			owners[c] = append(owners[c], p.ID)
		}
	}
	return out
}
