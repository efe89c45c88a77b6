package model

type Cell struct {
	X, Y int
}

func (c Cell) Add(dx, dy int) Cell {
	return Cell{X: c.X + dx, Y: c.Y + dy}
}

type Direction int

const (
	DirNone Direction = iota
	DirUp
	DirDown
	DirLeft
	DirRight
)

// ParseDirection maps the wire words onto directions. Anything else is DirNone.
func ParseDirection(s string) Direction {
	switch s {
	case "up":
		return DirUp
	case "down":
		return DirDown
	case "left":
		return DirLeft
	case "right":
		return DirRight
	}
	return DirNone
}

func (d Direction) Delta() (dx, dy int) {
	switch d {
	case DirUp:
		return 0, -1
	case DirDown:
		return 0, 1
	case DirLeft:
		return -1, 0
	case DirRight:
		return 1, 0
	}
	return 0, 0
}

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	}
	return "none"
}

type TeamID string

const (
	TeamRed  TeamID = "red"
	TeamBlue TeamID = "blue"
)

// TeamOrder is the fixed iteration order used by every tick and every
// tie-break. It never varies at runtime.
var TeamOrder = []TeamID{TeamRed, TeamBlue}

// MapDefinition is immutable once loaded; a map change swaps the whole value.
type MapDefinition struct {
	Name            string
	Width, Height   int
	Walls           map[Cell]struct{}
	Ledges          map[Cell]struct{}
	Goal            Cell
	Starts          map[TeamID]Cell
	InitialBoulders []Cell
}

type Team struct {
	ID          TeamID
	DisplayName string
	Color       string
	Cube        Cell
	Queue       []Direction
}

// PushCommand appends to the back of the team command queue.
func (t *Team) PushCommand(d Direction) {
	t.Queue = append(t.Queue, d)
}

// PopCommand takes the oldest queued command, if any.
func (t *Team) PopCommand() (Direction, bool) {
	if len(t.Queue) == 0 {
		return DirNone, false
	}
	d := t.Queue[0]
	t.Queue = t.Queue[1:]
	return d, true
}

type Boulder struct {
	Position Cell
}

type RaceStatus int

const (
	Waiting RaceStatus = iota
	Running
)

func (s RaceStatus) String() string {
	if s == Running {
		return "running"
	}
	return "waiting"
}

// Race is the simulation context: the current map plus everything that moves.
// All mutation goes through the single server loop that owns it.
type Race struct {
	Map      *MapDefinition
	Teams    []*Team
	Boulders []*Boulder
	Status   RaceStatus
}

var teamNames = map[TeamID]string{TeamRed: "Red", TeamBlue: "Blue"}
var teamColors = map[TeamID]string{TeamRed: "#e04040", TeamBlue: "#4060e0"}

func NewRace(m *MapDefinition) *Race {
	r := &Race{Map: m, Status: Waiting}
	for _, id := range TeamOrder {
		r.Teams = append(r.Teams, &Team{
			ID:          id,
			DisplayName: teamNames[id],
			Color:       teamColors[id],
			Cube:        m.Starts[id],
		})
	}
	for _, c := range m.InitialBoulders {
		r.Boulders = append(r.Boulders, &Boulder{Position: c})
	}
	return r
}

func (r *Race) Team(id TeamID) *Team {
	for _, t := range r.Teams {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Reset puts cubes back on their start cells, clears the queues and restores
// the boulders. Status is untouched; callers decide the transition.
func (r *Race) Reset() {
	for _, t := range r.Teams {
		t.Cube = r.Map.Starts[t.ID]
		t.Queue = nil
	}
	r.Boulders = r.Boulders[:0]
	for _, c := range r.Map.InitialBoulders {
		r.Boulders = append(r.Boulders, &Boulder{Position: c})
	}
}
