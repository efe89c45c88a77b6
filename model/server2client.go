package model

// Message types sent to clients.
const (
	MsgWelcome        = "welcome"
	MsgState          = "state"
	MsgRaceStarted    = "race_started"
	MsgReset          = "reset"
	MsgMapChanged     = "map_changed"
	MsgRaceNotStarted = "race_not_started"
	MsgRateLimited    = "rate_limited"
	MsgCommandEcho    = "command_echo"
)

type ServerMessage struct {
	Type        string    `json:"type"`
	Team        TeamID    `json:"team,omitempty"`
	Snapshot    *Snapshot `json:"snapshot,omitempty"`
	From        string    `json:"from,omitempty"`
	Direction   string    `json:"direction,omitempty"`
	RemainingMs int64     `json:"remainingMs,omitempty"`
}

type ClientMessage struct {
	Type      string `json:"type"`
	Direction string `json:"direction,omitempty"`
}

type Snapshot struct {
	Status   string         `json:"status"`
	Winner   TeamID         `json:"winner,omitempty"`
	Teams    []TeamState    `json:"teams"`
	Boulders []Cell         `json:"boulders"`
	Counts   map[TeamID]int `json:"counts"`
	Map      *MapState      `json:"map,omitempty"`
}

type TeamState struct {
	ID     TeamID `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
	Cube   Cell   `json:"cube"`
	Queued int    `json:"queued"`
}

type MapState struct {
	Name   string          `json:"name"`
	Width  int             `json:"width"`
	Height int             `json:"height"`
	Walls  []Cell          `json:"walls"`
	Ledges []Cell          `json:"ledges"`
	Goal   Cell            `json:"goal"`
	Starts map[TeamID]Cell `json:"starts"`
}

// Snapshot projects the race into its wire form. Counts comes from the
// server, which owns the player bookkeeping.
func (r *Race) Snapshot(winner TeamID, counts map[TeamID]int) *Snapshot {
	s := &Snapshot{
		Status:   r.Status.String(),
		Winner:   winner,
		Boulders: make([]Cell, 0, len(r.Boulders)),
		Counts:   counts,
	}
	for _, t := range r.Teams {
		s.Teams = append(s.Teams, TeamState{
			ID:     t.ID,
			Name:   t.DisplayName,
			Color:  t.Color,
			Cube:   t.Cube,
			Queued: len(t.Queue),
		})
	}
	for _, b := range r.Boulders {
		s.Boulders = append(s.Boulders, b.Position)
	}
	return s
}

func (m *MapDefinition) State() *MapState {
	ms := &MapState{
		Name:   m.Name,
		Width:  m.Width,
		Height: m.Height,
		Walls:  make([]Cell, 0, len(m.Walls)),
		Ledges: make([]Cell, 0, len(m.Ledges)),
		Goal:   m.Goal,
		Starts: m.Starts,
	}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			c := Cell{X: x, Y: y}
			if m.IsWall(c) {
				ms.Walls = append(ms.Walls, c)
			}
			if m.IsLedge(c) {
				ms.Ledges = append(ms.Ledges, c)
			}
		}
	}
	return ms
}
