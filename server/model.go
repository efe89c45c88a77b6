package server

import (
	"time"

	"github.com/gorilla/websocket"

	"cuberace/model"
)

type GameServer struct {
	Config   *Config
	Maps     []*model.MapDefinition
	MapIndex int
	Race     *model.Race
	Players  map[string]*PlayerSession

	// bumped on every start/map change; a delayed reset carrying an older
	// generation is stale and gets dropped
	Generation int

	Connects    chan PlayerConnectRequest
	Disconnects chan string
	Events      chan PlayerEvent
	Resets      chan int
	Upgrader    *websocket.Upgrader

	clock func() time.Time
}

type PlayerSessionState int

const (
	PS_NEW PlayerSessionState = iota + 1
	PS_PLAY
	PS_OVER
)

// PlayerSession.State is owned by the GameServer loop goroutine; the
// read/write socket loops never touch it and signal trouble via Done.
type PlayerSession struct {
	State       PlayerSessionState
	Id          string
	Team        model.TeamID
	Server      *GameServer
	Conn        *websocket.Conn
	LastCommand time.Time
	Done        chan struct{}

	MessagesToSend chan model.ServerMessage

	DebugInMessages  int
	DebugOutMessages int
	DebugLastMessage time.Time
	DebugLastPing    time.Time
	DebugPings       int
}

type PlayerConnectRequest struct {
	Conn  *websocket.Conn
	Ready chan *PlayerSession
}

type EventKind int

const (
	EV_COMMAND EventKind = iota
	EV_START
	EV_NEXT_MAP
)

type PlayerEvent struct {
	Player string
	Kind   EventKind
	Move   model.Direction
}

type SubmitResult int

const (
	SUBMIT_OK SubmitResult = iota
	SUBMIT_INVALID
	SUBMIT_NOT_RUNNING
	SUBMIT_COOLDOWN
)
