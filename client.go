package main

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 50
	maxArenaNameLen   = 30
)

// Client represents a WebSocket connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	watcherID  string
	arenaID    string // arena being watched, "" if none
	remoteAddr string
	msgCount   int
	msgResetAt time.Time
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		watcherID:  GenerateID(8),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.WithField("ip", c.remoteAddr).Warn("rate limit exceeded, disconnecting")
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Check for binary marker (0xFF prefix from SendBinary)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message
// Prefixes with 0xFF marker byte so WritePump can distinguish from text
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF // binary marker
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(msg string) {
	c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: msg}})
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Debugf("unmarshal error: %v", err)
		return
	}

	switch env.T {
	case MsgList:
		c.handleList()
	case MsgCreate:
		c.handleCreate(env.D)
	case MsgWatch:
		c.handleWatch(env.D)
	case MsgLeave:
		c.handleLeave()
	case MsgControl:
		c.handleControl(env.D)
	case MsgCheck:
		c.handleCheck(env.D)
	default:
		c.sendError("unknown message type")
	}
}

func (c *Client) handleList() {
	c.SendJSON(Envelope{T: MsgSessions, Data: c.hub.arenas.ListArenas()})
}

func (c *Client) handleCreate(data json.RawMessage) {
	var msg CreateMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("bad request")
		return
	}
	name := truncate(msg.Name, maxArenaNameLen)
	if name == "" {
		name = "Arena"
	}

	arena, err := c.hub.arenas.CreateArena(name, msg.Password, msg.Bodies)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	token, err := c.hub.auth.IssueControlToken(arena.ID)
	if err != nil {
		log.Errorf("issue control token: %v", err)
		c.sendError("internal error")
		return
	}
	c.SendJSON(Envelope{T: MsgCreated, Data: CreatedMsg{SID: arena.ID, Token: token}})
}

func (c *Client) handleWatch(data json.RawMessage) {
	var msg WatchMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("bad request")
		return
	}
	arena := c.hub.arenas.GetArena(msg.SID)
	if arena == nil {
		c.sendError("arena not found")
		return
	}
	if arena.Locked() {
		if !c.hub.auth.AllowAttempt(c.remoteAddr) {
			c.sendError("too many attempts, try again later")
			return
		}
		if !CheckPassword(arena.passHash, msg.Password) {
			c.sendError("wrong password")
			return
		}
	}

	// Watching a second arena implicitly leaves the first
	c.handleLeave()
	c.arenaID = arena.ID
	p := arena.params
	c.SendJSON(Envelope{T: MsgWatching, Data: WatchingMsg{
		SID:    arena.ID,
		Name:   arena.Name,
		Width:  p.Width,
		Height: p.Height,
	}})
	arena.AddWatcher(c.watcherID, c)
	c.hub.analytics.Track(EvtWatch, arena.ID, "")
}

func (c *Client) handleLeave() {
	if c.arenaID == "" {
		return
	}
	c.hub.arenas.RemoveWatcher(c.arenaID, c.watcherID)
	c.arenaID = ""
}

func (c *Client) handleControl(data json.RawMessage) {
	var msg ControlMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("bad request")
		return
	}
	arena := c.hub.arenas.GetArena(msg.SID)
	if arena == nil {
		c.sendError("arena not found")
		return
	}
	if err := c.hub.auth.ValidateControlToken(msg.Token, arena.ID); err != nil {
		if !errors.Is(err, errBadToken) {
			log.Errorf("validate control token: %v", err)
		}
		c.sendError("not authorized")
		return
	}
	if err := arena.Control(msg.Action, msg.Factor); err != nil {
		c.sendError(err.Error())
		return
	}
	c.SendJSON(Envelope{T: MsgOK, Data: OKMsg{Action: msg.Action}})
}

func (c *Client) handleCheck(data json.RawMessage) {
	var msg CheckMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("bad request")
		return
	}
	arena := c.hub.arenas.GetArena(msg.SID)
	if arena == nil {
		c.SendJSON(Envelope{T: MsgChecked, Data: CheckedMsg{SID: msg.SID, Exists: false}})
		return
	}
	info := arena.Info()
	c.SendJSON(Envelope{T: MsgChecked, Data: CheckedMsg{
		SID:    msg.SID,
		Exists: true,
		Name:   info.Name,
		Bodies: info.Bodies,
		Locked: info.Locked,
	}})
}
