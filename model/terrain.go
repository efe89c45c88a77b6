package model

func (m *MapDefinition) InBounds(c Cell) bool {
	return c.X >= 0 && c.X < m.Width && c.Y >= 0 && c.Y < m.Height
}

func (m *MapDefinition) IsWall(c Cell) bool {
	_, ok := m.Walls[c]
	return ok
}

func (m *MapDefinition) IsLedge(c Cell) bool {
	_, ok := m.Ledges[c]
	return ok
}

// BoulderAt scans fresh every call; boulders move between ticks.
func (r *Race) BoulderAt(c Cell) *Boulder {
	for _, b := range r.Boulders {
		if b.Position == c {
			return b
		}
	}
	return nil
}

// CubeAt reports whether any team other than ignore has its cube on c.
// Passing the moving team keeps its own current cell out of the check.
func (r *Race) CubeAt(c Cell, ignore *Team) bool {
	for _, t := range r.Teams {
		if t == ignore {
			continue
		}
		if t.Cube == c {
			return true
		}
	}
	return false
}
