package model

type OutcomeKind int

const (
	Unchanged OutcomeKind = iota
	Moved
	MovedWithPush
)

// Outcome carries the whole effect of a resolved move. Nothing is mutated
// until Commit; a push or a ledge drop either happens completely or not at all.
type Outcome struct {
	Kind            OutcomeKind
	Position        Cell
	Boulder         *Boulder
	BoulderPosition Cell
}

// Resolve checks a single directional move for t's cube against the current
// race state. The checks run in a fixed precedence: bounds, then a boulder on
// the target (push), then wall, then ledge, then the other cube, then plain
// floor.
func (r *Race) Resolve(t *Team, d Direction) Outcome {
	dx, dy := d.Delta()
	if dx == 0 && dy == 0 {
		return Outcome{}
	}
	m := r.Map
	target := t.Cube.Add(dx, dy)
	if !m.InBounds(target) {
		return Outcome{}
	}

	if b := r.BoulderAt(target); b != nil {
		push := target.Add(dx, dy)
		if !m.InBounds(push) || m.IsWall(push) || m.IsLedge(push) ||
			r.BoulderAt(push) != nil || r.CubeAt(push, t) {
			return Outcome{}
		}
		return Outcome{Kind: MovedWithPush, Position: target, Boulder: b, BoulderPosition: push}
	}

	if m.IsWall(target) {
		return Outcome{}
	}

	if m.IsLedge(target) {
		// ledges only give way from above, and the cube drops past them
		if d != DirDown {
			return Outcome{}
		}
		landing := target.Add(0, 1)
		if !m.InBounds(landing) || m.IsWall(landing) || m.IsLedge(landing) ||
			r.BoulderAt(landing) != nil || r.CubeAt(landing, t) {
			return Outcome{}
		}
		return Outcome{Kind: Moved, Position: landing}
	}

	if r.CubeAt(target, t) {
		return Outcome{}
	}

	return Outcome{Kind: Moved, Position: target}
}

// Commit applies an Outcome produced by Resolve for the same team. Outcomes
// resolved against the same start-of-tick state can conflict: an earlier
// commit may have pushed the boulder this push wanted, or dropped a boulder
// onto this move's target. An outcome that no longer holds is skipped whole,
// never applied halfway.
func (r *Race) Commit(t *Team, o Outcome) {
	switch o.Kind {
	case Moved:
		if r.BoulderAt(o.Position) != nil {
			return
		}
		t.Cube = o.Position
	case MovedWithPush:
		if o.Boulder.Position != o.Position || r.BoulderAt(o.BoulderPosition) != nil {
			return
		}
		o.Boulder.Position = o.BoulderPosition
		t.Cube = o.Position
	}
}
