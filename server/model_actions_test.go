package server

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cuberace/model"
)

const testArena = `#######
#R   B#
#     #
#  G  #
#     #
#######`

const testArena2 = `########
#B    R#
#      #
#G     #
########`

func newTestServer(t *testing.T, mapTexts ...string) *GameServer {
	t.Helper()
	var maps []*model.MapDefinition
	for _, txt := range mapTexts {
		m, err := ReadMap("test", strings.NewReader(txt))
		require.NoError(t, err)
		maps = append(maps, m)
	}
	return &GameServer{
		Config: &Config{
			TickPeriod: 300 * time.Millisecond,
			Cooldown:   500 * time.Millisecond,
			ResetDelay: 3 * time.Second,
			SendBuffer: 16,
		},
		Maps:    maps,
		Race:    model.NewRace(maps[0]),
		Players: make(map[string]*PlayerSession),
		Resets:  make(chan int, 4),
		clock:   time.Now,
	}
}

func addTestPlayer(s *GameServer, team model.TeamID) *PlayerSession {
	ps := &PlayerSession{
		State:          PS_PLAY,
		Id:             uuid.NewString(),
		Team:           team,
		Server:         s,
		MessagesToSend: make(chan model.ServerMessage, 64),
	}
	s.Players[ps.Id] = ps
	return ps
}

func drain(ps *PlayerSession) []model.ServerMessage {
	var out []model.ServerMessage
	for {
		select {
		case m := <-ps.MessagesToSend:
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestTickDrainsOneCommandPerTick(t *testing.T) {
	s := newTestServer(t, testArena)
	s.startRace()
	red := s.Race.Team(model.TeamRed)
	red.PushCommand(model.DirRight)
	red.PushCommand(model.DirRight)
	red.PushCommand(model.DirDown)

	s.tick()
	assert.Equal(t, model.Cell{X: 2, Y: 1}, red.Cube)
	assert.Len(t, red.Queue, 2)

	s.tick()
	assert.Equal(t, model.Cell{X: 3, Y: 1}, red.Cube)

	s.tick()
	assert.Equal(t, model.Cell{X: 3, Y: 2}, red.Cube)
	assert.Empty(t, red.Queue)
}

func TestTickEmptyQueueNoMove(t *testing.T) {
	s := newTestServer(t, testArena)
	s.startRace()
	blue := s.Race.Team(model.TeamBlue)
	before := blue.Cube
	s.tick()
	assert.Equal(t, before, blue.Cube)
}

func TestTickWhileWaitingStillBroadcasts(t *testing.T) {
	s := newTestServer(t, testArena)
	ps := addTestPlayer(s, model.TeamRed)
	red := s.Race.Team(model.TeamRed)
	red.PushCommand(model.DirRight)
	before := red.Cube

	s.tick()
	assert.Equal(t, before, red.Cube)
	// waiting ticks do not consume commands but the snapshot still goes out
	assert.Len(t, red.Queue, 1)
	msgs := drain(ps)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MsgState, msgs[0].Type)
	assert.Equal(t, "waiting", msgs[0].Snapshot.Status)
}

func TestWinnerEndsRace(t *testing.T) {
	s := newTestServer(t, testArena)
	s.Config.ResetDelay = 50 * time.Millisecond
	ps := addTestPlayer(s, model.TeamRed)
	s.startRace()
	drain(ps)
	red := s.Race.Team(model.TeamRed)
	red.Cube = model.Cell{X: 3, Y: 2}
	red.PushCommand(model.DirDown)

	s.tick()
	assert.Equal(t, model.Waiting, s.Race.Status)
	msgs := drain(ps)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MsgState, msgs[0].Type)
	assert.Equal(t, model.TeamRed, msgs[0].Snapshot.Winner)

	// the delayed reset was armed with the current generation
	select {
	case gen := <-s.Resets:
		assert.Equal(t, s.Generation, gen)
	case <-time.After(time.Second):
		t.Fatal("no delayed reset scheduled")
	}
}

func TestSimultaneousArrivalTieBreak(t *testing.T) {
	s := newTestServer(t, testArena)
	s.startRace()
	red := s.Race.Team(model.TeamRed)
	blue := s.Race.Team(model.TeamBlue)
	red.Cube = model.Cell{X: 3, Y: 2}
	blue.Cube = model.Cell{X: 3, Y: 4}
	red.PushCommand(model.DirDown)
	blue.PushCommand(model.DirUp)

	ps := addTestPlayer(s, model.TeamBlue)
	s.tick()

	// both cubes arrive in the same tick; red is first in the fixed order
	assert.Equal(t, s.Race.Map.Goal, red.Cube)
	assert.Equal(t, s.Race.Map.Goal, blue.Cube)
	msgs := drain(ps)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.TeamRed, msgs[0].Snapshot.Winner)
}

func TestTickConflictingPushes(t *testing.T) {
	s := newTestServer(t, testArena)
	s.startRace()
	red := s.Race.Team(model.TeamRed)
	blue := s.Race.Team(model.TeamBlue)
	red.Cube = model.Cell{X: 2, Y: 2}
	blue.Cube = model.Cell{X: 3, Y: 1}
	s.Race.Boulders = []*model.Boulder{{Position: model.Cell{X: 3, Y: 2}}}
	red.PushCommand(model.DirRight)
	blue.PushCommand(model.DirDown)

	s.tick()

	// red, first in order, wins the boulder; blue's push dissolves entirely
	assert.Equal(t, model.Cell{X: 3, Y: 2}, red.Cube)
	assert.Equal(t, model.Cell{X: 3, Y: 1}, blue.Cube)
	require.Len(t, s.Race.Boulders, 1)
	assert.Equal(t, model.Cell{X: 4, Y: 2}, s.Race.Boulders[0].Position)
}

func TestSubmitNotRunning(t *testing.T) {
	s := newTestServer(t, testArena)
	ps := addTestPlayer(s, model.TeamRed)

	res := s.submit(ps, model.DirUp)
	assert.Equal(t, SUBMIT_NOT_RUNNING, res)
	assert.Empty(t, s.Race.Team(model.TeamRed).Queue)
	msgs := drain(ps)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MsgRaceNotStarted, msgs[0].Type)
}

func TestSubmitInvalidDirection(t *testing.T) {
	s := newTestServer(t, testArena)
	s.startRace()
	ps := addTestPlayer(s, model.TeamRed)

	res := s.submit(ps, model.DirNone)
	assert.Equal(t, SUBMIT_INVALID, res)
	assert.Empty(t, s.Race.Team(model.TeamRed).Queue)
	assert.Empty(t, drain(ps))
}

func TestSubmitCooldown(t *testing.T) {
	s := newTestServer(t, testArena)
	now := time.Unix(1000, 0)
	s.clock = func() time.Time { return now }
	s.startRace()
	ps := addTestPlayer(s, model.TeamRed)
	red := s.Race.Team(model.TeamRed)

	assert.Equal(t, SUBMIT_OK, s.submit(ps, model.DirUp))
	require.Len(t, red.Queue, 1)

	now = now.Add(200 * time.Millisecond)
	assert.Equal(t, SUBMIT_COOLDOWN, s.submit(ps, model.DirUp))
	assert.Len(t, red.Queue, 1)
	msgs := drain(ps)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MsgRateLimited, msgs[0].Type)
	assert.Equal(t, int64(300), msgs[0].RemainingMs)

	now = now.Add(400 * time.Millisecond)
	assert.Equal(t, SUBMIT_OK, s.submit(ps, model.DirUp))
	assert.Len(t, red.Queue, 2)
}

func TestSubmitEchoesToTeammates(t *testing.T) {
	s := newTestServer(t, testArena)
	s.startRace()
	sender := addTestPlayer(s, model.TeamRed)
	mate := addTestPlayer(s, model.TeamRed)
	rival := addTestPlayer(s, model.TeamBlue)

	require.Equal(t, SUBMIT_OK, s.submit(sender, model.DirLeft))

	assert.Empty(t, drain(sender))
	assert.Empty(t, drain(rival))
	msgs := drain(mate)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MsgCommandEcho, msgs[0].Type)
	assert.Equal(t, sender.Id, msgs[0].From)
	assert.Equal(t, "left", msgs[0].Direction)
}

func TestStartRaceResetsEverything(t *testing.T) {
	s := newTestServer(t, testArena)
	red := s.Race.Team(model.TeamRed)
	red.Cube = model.Cell{X: 3, Y: 3}
	red.PushCommand(model.DirUp)

	s.startRace()
	assert.Equal(t, model.Running, s.Race.Status)
	assert.Equal(t, s.Race.Map.Starts[model.TeamRed], red.Cube)
	assert.Empty(t, red.Queue)
}

func TestStartRaceWhileRunningIsNoop(t *testing.T) {
	s := newTestServer(t, testArena)
	s.startRace()
	gen := s.Generation
	red := s.Race.Team(model.TeamRed)
	red.Cube = model.Cell{X: 2, Y: 2}

	s.startRace()
	assert.Equal(t, gen, s.Generation)
	assert.Equal(t, model.Cell{X: 2, Y: 2}, red.Cube)
}

func TestNextMapRoundTrip(t *testing.T) {
	s := newTestServer(t, testArena, testArena2)
	ps := addTestPlayer(s, model.TeamRed)
	s.startRace()
	s.Race.Team(model.TeamRed).Cube = model.Cell{X: 2, Y: 2}
	s.Race.Team(model.TeamRed).PushCommand(model.DirDown)
	drain(ps)

	s.nextMap()
	assert.Equal(t, 1, s.MapIndex)
	assert.Equal(t, model.Waiting, s.Race.Status)

	s.startRace()
	red := s.Race.Team(model.TeamRed)
	assert.Equal(t, s.Maps[1].Starts[model.TeamRed], red.Cube)
	assert.Empty(t, red.Queue)

	msgs := drain(ps)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.MsgMapChanged, msgs[0].Type)
	require.NotNil(t, msgs[0].Snapshot.Map)
	assert.Equal(t, model.MsgRaceStarted, msgs[1].Type)

	// rotation wraps back to the first map
	s.nextMap()
	assert.Equal(t, 0, s.MapIndex)
}

func TestStaleResetDropped(t *testing.T) {
	s := newTestServer(t, testArena)
	s.startRace()
	gen := s.Generation
	s.Race.Status = model.Waiting

	// a new race starts before the delayed reset fires
	s.startRace()
	moved := model.Cell{X: 2, Y: 2}
	s.Race.Team(model.TeamRed).Cube = moved

	s.applyReset(gen)
	assert.Equal(t, moved, s.Race.Team(model.TeamRed).Cube)

	s.applyReset(s.Generation)
	assert.Equal(t, s.Race.Map.Starts[model.TeamRed], s.Race.Team(model.TeamRed).Cube)
}

func TestResetBroadcasts(t *testing.T) {
	s := newTestServer(t, testArena)
	ps := addTestPlayer(s, model.TeamRed)
	s.startRace()
	s.Race.Status = model.Waiting
	drain(ps)

	s.applyReset(s.Generation)
	msgs := drain(ps)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MsgReset, msgs[0].Type)
}

func TestRemovePlayerStopsDelivery(t *testing.T) {
	s := newTestServer(t, testArena)
	ps := addTestPlayer(s, model.TeamRed)
	s.removePlayer(ps.Id)

	assert.Equal(t, PS_OVER, ps.State)
	s.broadcast(s.stateMessage(model.MsgState, "", false))
	_, open := <-ps.MessagesToSend
	assert.False(t, open)
}

func TestPickTeamLeastPopulated(t *testing.T) {
	s := newTestServer(t, testArena)
	assert.Equal(t, model.TeamRed, s.pickTeam())

	addTestPlayer(s, model.TeamRed)
	assert.Equal(t, model.TeamBlue, s.pickTeam())

	addTestPlayer(s, model.TeamBlue)
	// tie goes to the first team in the fixed order
	assert.Equal(t, model.TeamRed, s.pickTeam())
}

func TestHandleEventRoutes(t *testing.T) {
	s := newTestServer(t, testArena)
	ps := addTestPlayer(s, model.TeamRed)

	s.handleEvent(PlayerEvent{Player: ps.Id, Kind: EV_START})
	assert.Equal(t, model.Running, s.Race.Status)

	s.handleEvent(PlayerEvent{Player: ps.Id, Kind: EV_COMMAND, Move: model.DirRight})
	assert.Len(t, s.Race.Team(model.TeamRed).Queue, 1)

	// events from unknown players are dropped
	s.handleEvent(PlayerEvent{Player: "nobody", Kind: EV_COMMAND, Move: model.DirUp})
	assert.Len(t, s.Race.Team(model.TeamRed).Queue, 1)
}
