package main

import "encoding/json"

// Client -> Server message types
const (
	MsgList    = "list"    // list arenas
	MsgCreate  = "create"  // create arena
	MsgWatch   = "watch"   // start receiving state frames for an arena
	MsgLeave   = "leave"   // stop watching
	MsgControl = "control" // change a running arena (needs the control token)
	MsgCheck   = "check"   // check if arena exists
)

// Server -> Client message types
const (
	MsgSessions = "sessions"
	MsgCreated  = "created"  // arena created, carries the control token
	MsgWatching = "watching" // watch confirmed
	MsgChecked  = "checked"
	MsgError    = "error"
	MsgOK       = "ok" // control applied
)

// Control actions
const (
	ActFreeze = "freeze" // toggle stepping
	ActBoxes  = "boxes"  // toggle the quadtree overlay in state frames
	ActShrink = "shrink" // toggle shrink mode
	ActSpeed  = "speed"  // multiply every velocity by Factor
	ActAdd    = "add"    // add one random body
	ActRemove = "remove" // remove the newest body
	ActReset  = "reset"  // new scenario
)

// Envelope wraps all outgoing JSON messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// CreateMsg asks for a new arena. Zero Bodies means the server default.
type CreateMsg struct {
	Name     string `json:"name"`
	Password string `json:"pw,omitempty"`
	Bodies   int    `json:"bodies,omitempty"`
}

// CreatedMsg answers CreateMsg. Token authorizes control messages for the arena.
type CreatedMsg struct {
	SID   string `json:"sid"`
	Token string `json:"token"`
}

// WatchMsg subscribes to an arena's state frames
type WatchMsg struct {
	SID      string `json:"sid"`
	Password string `json:"pw,omitempty"`
}

// WatchingMsg confirms a watch and describes the world
type WatchingMsg struct {
	SID    string  `json:"sid"`
	Name   string  `json:"name"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

// ControlMsg changes a running arena
type ControlMsg struct {
	SID    string  `json:"sid"`
	Token  string  `json:"token"`
	Action string  `json:"action"`
	Factor float64 `json:"factor,omitempty"` // ActSpeed only
}

// OKMsg confirms an applied control
type OKMsg struct {
	Action string `json:"action"`
}

// CheckMsg is sent by client to check if an arena exists
type CheckMsg struct {
	SID string `json:"sid"`
}

// CheckedMsg is the response to an arena check
type CheckedMsg struct {
	SID    string `json:"sid"`
	Exists bool   `json:"exists"`
	Name   string `json:"name,omitempty"`
	Bodies int    `json:"bodies,omitempty"`
	Locked bool   `json:"locked,omitempty"`
}

// ArenaInfo is used in the arena list
type ArenaInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Bodies   int    `json:"bodies"`
	Watchers int    `json:"watchers"`
	Tick     uint64 `json:"tick"`
	Depth    int    `json:"depth"` // levels in the arena's quadtree
	Locked   bool   `json:"locked"`
	Frozen   bool   `json:"frozen"`
}

// ErrorMsg sends error to client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// BodyState is one body in a state frame
type BodyState struct {
	ID       uint64  `msgpack:"id"`
	X        float32 `msgpack:"x"`
	Y        float32 `msgpack:"y"`
	R        float32 `msgpack:"r"`
	Collided bool    `msgpack:"c,omitempty"`
}

// ArenaState is the binary (msgpack) frame broadcast to watchers.
// Each box is a quadtree node rectangle followed by the node's point:
// minX, minY, maxX, maxY, x, y.
type ArenaState struct {
	Tick   uint64       `msgpack:"tick"`
	Frozen bool         `msgpack:"frozen,omitempty"`
	Bodies []BodyState  `msgpack:"b"`
	Boxes  [][6]float32 `msgpack:"q,omitempty"`
}
