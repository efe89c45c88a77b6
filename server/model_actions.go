package server

import (
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"cuberace/model"
)

func NewGameServer(cfg *Config) (*GameServer, error) {
	maps, err := LoadMaps(cfg.MapsDir)
	if err != nil {
		return nil, err
	}
	return &GameServer{
		Config:      cfg,
		Maps:        maps,
		Race:        model.NewRace(maps[0]),
		Players:     make(map[string]*PlayerSession),
		Connects:    make(chan PlayerConnectRequest),
		Disconnects: make(chan string),
		Events:      make(chan PlayerEvent, 64),
		Resets:      make(chan int),
		Upgrader:    &websocket.Upgrader{},
		clock:       time.Now,
	}, nil
}

func (s *GameServer) HandleHttpCall() http.HandlerFunc {
	timeout := 200 * time.Millisecond
	return func(w http.ResponseWriter, r *http.Request) {
		log.Printf("HandleHttpCall - Connection received.............................")

		con, err := s.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("HandleHttpCall websocket upgrade err %v", err)
			return
		}
		defer con.Close()

		ready := make(chan *PlayerSession)
		select {
		case s.Connects <- PlayerConnectRequest{Conn: con, Ready: ready}:
		case <-time.After(timeout):
			log.Warn("HandleHttpCall Connects TIMEOUTED")
			return
		}

		var ps *PlayerSession
		select {
		case ps = <-ready:
			log.Printf("HandleHttpCall ok, have PlayerSession %v team:%v", ps.Id, ps.Team)
		case <-time.After(timeout):
			log.Warn("HandleHttpCall Ready <- TIMEOUTED")
			return
		}

		// block until the read loop sees the connection drop
		<-ps.Done
		select {
		case s.Disconnects <- ps.Id:
		case <-time.After(timeout):
			log.Warnf("HandleHttpCall Disconnects TIMEOUTED for %v", ps.Id)
		}
	}
}

// Loop owns every mutable piece of race state. Connects, disconnects,
// commands, the tick and the delayed reset all funnel through this one
// goroutine, so no handler ever races another.
func (s *GameServer) Loop() {
	log.Printf("GameServer.Loop starting, map %s, tick %v", s.Race.Map.Name, s.Config.TickPeriod)
	ticker := time.NewTicker(s.Config.TickPeriod)
	defer ticker.Stop()
	for {
		select {
		case pcr := <-s.Connects:
			ps := s.addPlayer(pcr.Conn)
			pcr.Ready <- ps
		case id := <-s.Disconnects:
			s.removePlayer(id)
		case pe := <-s.Events:
			s.handleEvent(pe)
		case gen := <-s.Resets:
			s.applyReset(gen)
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *GameServer) handleEvent(pe PlayerEvent) {
	ps, found := s.Players[pe.Player]
	if !found {
		log.Warnf("handleEvent unknown player %v", pe.Player)
		return
	}
	switch pe.Kind {
	case EV_COMMAND:
		s.submit(ps, pe.Move)
	case EV_START:
		s.startRace()
	case EV_NEXT_MAP:
		s.nextMap()
	}
}

// submit is the command intake: every submission ends in exactly one of the
// four results, and only SUBMIT_OK touches the queue.
func (s *GameServer) submit(ps *PlayerSession, d model.Direction) SubmitResult {
	if d == model.DirNone {
		return SUBMIT_INVALID
	}
	if s.Race.Status != model.Running {
		s.send(ps, model.ServerMessage{Type: model.MsgRaceNotStarted})
		return SUBMIT_NOT_RUNNING
	}
	now := s.clock()
	if wait := s.Config.Cooldown - now.Sub(ps.LastCommand); wait > 0 {
		s.send(ps, model.ServerMessage{
			Type:        model.MsgRateLimited,
			RemainingMs: wait.Milliseconds(),
		})
		return SUBMIT_COOLDOWN
	}
	ps.LastCommand = now
	s.Race.Team(ps.Team).PushCommand(d)
	for _, mate := range s.Players {
		if mate.Team == ps.Team && mate.Id != ps.Id {
			s.send(mate, model.ServerMessage{
				Type:      model.MsgCommandEcho,
				From:      ps.Id,
				Direction: d.String(),
			})
		}
	}
	return SUBMIT_OK
}

// tick drains at most one command per team in the fixed team order. Every
// move resolves against the positions the tick started with and commits
// afterwards, so both cubes can arrive on the goal together; the first team
// in order takes the win. Commit re-checks boulder consistency, so of two
// moves fighting over one boulder only the first in order lands.
func (s *GameServer) tick() {
	var winner model.TeamID
	if s.Race.Status == model.Running {
		outcomes := make([]model.Outcome, len(s.Race.Teams))
		for i, t := range s.Race.Teams {
			d, ok := t.PopCommand()
			if !ok {
				continue
			}
			outcomes[i] = s.Race.Resolve(t, d)
		}
		for i, t := range s.Race.Teams {
			s.Race.Commit(t, outcomes[i])
		}
		for _, t := range s.Race.Teams {
			if t.Cube == s.Race.Map.Goal {
				winner = t.ID
				break
			}
		}
	}
	s.broadcast(s.stateMessage(model.MsgState, winner, false))
	if winner != "" {
		log.Printf("tick winner %v, back to waiting", winner)
		s.Race.Status = model.Waiting
		s.scheduleReset()
	}
}

func (s *GameServer) startRace() {
	if s.Race.Status == model.Running {
		log.Printf("startRace already running, ignored")
		return
	}
	s.Generation++
	s.Race.Reset()
	s.Race.Status = model.Running
	log.Printf("startRace gen:%d map:%s", s.Generation, s.Race.Map.Name)
	s.broadcast(s.stateMessage(model.MsgRaceStarted, "", false))
}

func (s *GameServer) nextMap() {
	s.MapIndex = (s.MapIndex + 1) % len(s.Maps)
	s.Generation++
	s.Race = model.NewRace(s.Maps[s.MapIndex])
	log.Printf("nextMap gen:%d map:%s", s.Generation, s.Race.Map.Name)
	s.broadcast(s.stateMessage(model.MsgMapChanged, "", true))
}

// scheduleReset arms the post-win reset. The fired callback only carries the
// generation; a start or map change in between bumps it and the late reset
// is dropped in applyReset rather than clobbering a fresh race.
func (s *GameServer) scheduleReset() {
	gen := s.Generation
	time.AfterFunc(s.Config.ResetDelay, func() {
		s.Resets <- gen
	})
}

func (s *GameServer) applyReset(gen int) {
	if gen != s.Generation {
		log.Printf("applyReset stale gen:%d current:%d, dropped", gen, s.Generation)
		return
	}
	s.Race.Reset()
	s.broadcast(s.stateMessage(model.MsgReset, "", false))
}

func (s *GameServer) addPlayer(conn *websocket.Conn) *PlayerSession {
	log.Printf("GameServer.addPlayer")
	ps := &PlayerSession{
		State:          PS_NEW,
		Id:             uuid.NewString(),
		Team:           s.pickTeam(),
		Server:         s,
		Conn:           conn,
		Done:           make(chan struct{}),
		MessagesToSend: make(chan model.ServerMessage, s.Config.SendBuffer),
	}
	conn.SetPingHandler(
		func(message string) error {
			err := conn.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(time.Second))
			ps.DebugLastPing = time.Now()
			ps.DebugPings++
			if err == websocket.ErrCloseSent {
				return nil
			} else if e, ok := err.(net.Error); ok && e.Timeout() {
				return nil
			}
			return err
		})
	s.Players[ps.Id] = ps
	ps.State = PS_PLAY
	go ps.LoopChannelRead()
	go ps.LoopChannelWrite()

	welcome := s.stateMessage(model.MsgWelcome, "", true)
	welcome.Team = ps.Team
	s.send(ps, welcome)
	return ps
}

func (s *GameServer) removePlayer(id string) {
	ps, found := s.Players[id]
	if !found {
		return
	}
	log.Printf("GameServer.removePlayer %v team:%v", id, ps.Team)
	ps.State = PS_OVER
	delete(s.Players, id)
	close(ps.MessagesToSend)
}

// pickTeam assigns the least populated team; on a tie the first team in the
// fixed order gets the player.
func (s *GameServer) pickTeam() model.TeamID {
	counts := s.teamCounts()
	pick := model.TeamOrder[0]
	for _, id := range model.TeamOrder[1:] {
		if counts[id] < counts[pick] {
			pick = id
		}
	}
	return pick
}

func (s *GameServer) teamCounts() map[model.TeamID]int {
	counts := make(map[model.TeamID]int, len(model.TeamOrder))
	for _, id := range model.TeamOrder {
		counts[id] = 0
	}
	for _, ps := range s.Players {
		counts[ps.Team]++
	}
	return counts
}

func (s *GameServer) stateMessage(typ string, winner model.TeamID, withMap bool) model.ServerMessage {
	snap := s.Race.Snapshot(winner, s.teamCounts())
	if withMap {
		snap.Map = s.Race.Map.State()
	}
	return model.ServerMessage{Type: typ, Snapshot: snap}
}

func (s *GameServer) broadcast(mes model.ServerMessage) {
	for _, ps := range s.Players {
		s.send(ps, mes)
	}
}

// send never blocks the loop; a slow consumer loses messages instead.
func (s *GameServer) send(ps *PlayerSession, mes model.ServerMessage) {
	if ps.State != PS_PLAY {
		return
	}
	select {
	case ps.MessagesToSend <- mes:
	default:
		log.Warnf("send dropping message for %v, buffer FULL", ps.Id)
	}
}

func (ps *PlayerSession) LoopChannelRead() {
	log.Printf("LoopChannelRead STARTED")
loop:
	for {
		cm := &model.ClientMessage{}
		if err := ps.Conn.ReadJSON(cm); err != nil {
			log.Printf("LoopChannelRead err reading message from Conn %v", err)
			// state changes belong to the loop goroutine; closing Done routes
			// this through Disconnects instead
			close(ps.Done)
			break loop
		}
		ps.DebugLastMessage = time.Now()
		ps.DebugInMessages++

		pe, ok := ps.toEvent(cm)
		if !ok {
			// bad type or direction, dropped on the floor
			continue
		}
		select {
		case ps.Server.Events <- pe:
		default:
			log.Warnf("Dropping data read from socket but.. GameServer.Events FULL")
		}
	}
	log.Printf("LoopChannelRead ENDED")
}

func (ps *PlayerSession) toEvent(cm *model.ClientMessage) (PlayerEvent, bool) {
	switch cm.Type {
	case "command":
		d := model.ParseDirection(cm.Direction)
		if d == model.DirNone {
			log.Printf("toEvent invalid direction %q from %v", cm.Direction, ps.Id)
			return PlayerEvent{}, false
		}
		return PlayerEvent{Player: ps.Id, Kind: EV_COMMAND, Move: d}, true
	case "start_race":
		return PlayerEvent{Player: ps.Id, Kind: EV_START}, true
	case "next_map":
		return PlayerEvent{Player: ps.Id, Kind: EV_NEXT_MAP}, true
	}
	log.Printf("toEvent unknown message type %q from %v", cm.Type, ps.Id)
	return PlayerEvent{}, false
}

// this function only consumes. no worries about full buffer stuck
func (ps *PlayerSession) LoopChannelWrite() {
	log.Printf("PlayerSession.LoopChannelWrite STARTED")
	for mes := range ps.MessagesToSend {
		if err := ps.Conn.WriteJSON(mes); err != nil {
			// a broken conn fails the read loop too, which handles teardown
			log.Warnf("PlayerSession.LoopChannelWrite cant write %v", err)
			break
		}
		ps.DebugOutMessages++
	}
	log.Printf("LoopChannelWrite ENDED")
}
