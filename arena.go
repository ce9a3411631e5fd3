package main

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"quadarena/quadtree"
	"quadarena/sim"
)

const (
	DefaultTickRate = 30 // simulation ticks per second
	BroadcastRate   = 30 // state broadcasts per second (at most one per tick)
)

const maxBodiesPerArena = 2000

// Broadcaster interface for sending messages to watchers
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// ArenaStats accumulates over an arena's lifetime
type ArenaStats struct {
	Ticks      uint64
	Collisions int
	Pops       int
	PeakBodies int
}

// Arena runs one simulation world and streams it to watchers
type Arena struct {
	ID       string
	Name     string
	passHash []byte

	mu             sync.RWMutex
	world          *sim.World
	params         sim.Params
	rng            *rand.Rand
	watchers       map[string]Broadcaster // watcherID -> client
	frozen         bool
	showBoxes      bool
	tickRate       int
	broadcastEvery uint64
	frames         uint64
	stats          ArenaStats
	createdAt      time.Time
	idleSince      time.Time
	analytics      *Analytics

	stop chan struct{}
}

// NewArena creates an arena with params.Bodies randomly scattered bodies
func NewArena(id, name string, params sim.Params, seed uint64, tickRate int) (*Arena, error) {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	world, err := sim.NewWorld(params, sim.Scatter(rng, params, params.Bodies))
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Arena{
		ID:             id,
		Name:           name,
		world:          world,
		params:         params,
		rng:            rng,
		watchers:       make(map[string]Broadcaster),
		tickRate:       tickRate,
		broadcastEvery: uint64(max(1, tickRate/BroadcastRate)),
		stats:          ArenaStats{PeakBodies: world.Len()},
		createdAt:      now,
		idleSince:      now,
		stop:           make(chan struct{}),
	}, nil
}

// Run starts the arena loop
func (a *Arena) Run() {
	ticker := time.NewTicker(time.Second / time.Duration(a.tickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.update()
		case <-a.stop:
			return
		}
	}
}

// Stop terminates the arena loop
func (a *Arena) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stop != nil {
		select {
		case <-a.stop:
		default:
			close(a.stop)
		}
	}
}

// Locked reports whether watching needs a password
func (a *Arena) Locked() bool { return len(a.passHash) > 0 }

// AddWatcher subscribes b to state frames
func (a *Arena) AddWatcher(id string, b Broadcaster) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.watchers[id] = b
}

// RemoveWatcher unsubscribes a watcher
func (a *Arena) RemoveWatcher(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.watchers, id)
	if len(a.watchers) == 0 {
		a.idleSince = time.Now()
	}
}

// WatcherCount returns the number of watchers
func (a *Arena) WatcherCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.watchers)
}

// IdleFor returns how long the arena has had no watchers, or 0 if it has some
func (a *Arena) IdleFor(now time.Time) time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.watchers) > 0 {
		return 0
	}
	return now.Sub(a.idleSince)
}

// Stats returns a copy of the lifetime counters
func (a *Arena) Stats() ArenaStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// Info describes the arena for listings
func (a *Arena) Info() ArenaInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return ArenaInfo{
		ID:       a.ID,
		Name:     a.Name,
		Bodies:   a.world.Len(),
		Watchers: len(a.watchers),
		Tick:     a.world.Tick(),
		Depth:    a.world.Tree().Depth(),
		Locked:   a.Locked(),
		Frozen:   a.frozen,
	}
}

// Control applies one control action
func (a *Arena) Control(action string, factor float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch action {
	case ActFreeze:
		a.frozen = !a.frozen
	case ActBoxes:
		a.showBoxes = !a.showBoxes
	case ActShrink:
		a.world.SetShrink(!a.world.Shrink())
	case ActSpeed:
		if err := a.world.ScaleSpeed(factor); err != nil {
			return err
		}
	case ActAdd:
		if a.world.Len() >= maxBodiesPerArena {
			return fmt.Errorf("arena is full")
		}
		if err := a.world.Add(sim.RandomBody(a.rng, a.params)); err != nil {
			return err
		}
		a.stats.PeakBodies = max(a.stats.PeakBodies, a.world.Len())
	case ActRemove:
		if a.world.RemoveLast() == nil {
			return fmt.Errorf("arena is empty")
		}
	case ActReset:
		world, err := sim.NewWorld(a.params, sim.Scatter(a.rng, a.params, a.params.Bodies))
		if err != nil {
			return err
		}
		a.world = world
		a.frozen = false
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	a.analytics.Track(EvtControl, a.ID, action)
	return nil
}

// update runs one arena tick
func (a *Arena) update() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.frozen {
		rep, err := a.world.Step()
		if err != nil {
			// an index that cannot be rebuilt means the world is corrupt; stop stepping it
			log.WithFields(log.Fields{"arena": a.ID, "tick": rep.Tick}).Errorf("step failed, freezing: %v", err)
			a.frozen = true
		}
		a.stats.Ticks++
		a.stats.Collisions += rep.Collisions
		a.stats.Pops += len(rep.Popped)
		a.stats.PeakBodies = max(a.stats.PeakBodies, rep.Live)
		if len(rep.Popped) > 0 {
			a.analytics.Track(EvtPop, a.ID, fmt.Sprintf(`{"tick":%d,"n":%d}`, rep.Tick, len(rep.Popped)))
		}
	}

	a.frames++
	if a.frames%a.broadcastEvery == 0 {
		a.broadcastState()
	}
}

// snapshot builds the state frame; caller holds the lock
func (a *Arena) snapshot() ArenaState {
	bodies := a.world.Bodies()
	state := ArenaState{
		Tick:   a.world.Tick(),
		Frozen: a.frozen,
		Bodies: make([]BodyState, 0, len(bodies)),
	}
	for _, b := range bodies {
		state.Bodies = append(state.Bodies, BodyState{
			ID:       b.ID,
			X:        float32(b.Pos.X),
			Y:        float32(b.Pos.Y),
			R:        float32(b.Radius),
			Collided: b.Collided,
		})
	}
	if a.showBoxes {
		tree := a.world.Tree()
		state.Boxes = make([][6]float32, 0, tree.Len())
		tree.Walk(func(n quadtree.Node[*sim.Body]) bool {
			state.Boxes = append(state.Boxes, [6]float32{
				float32(n.BBox.MinX), float32(n.BBox.MinY),
				float32(n.BBox.MaxX), float32(n.BBox.MaxY),
				float32(n.X), float32(n.Y),
			})
			return true
		})
	}
	return state
}

// Snapshot returns the current state frame
func (a *Arena) Snapshot() ArenaState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot()
}

// broadcastState sends the current state to all watchers as one msgpack frame
func (a *Arena) broadcastState() {
	if len(a.watchers) == 0 {
		return
	}
	data, err := msgpack.Marshal(a.snapshot())
	if err != nil {
		log.Printf("arena %s: marshal state: %v", a.ID, err)
		return
	}
	for _, w := range a.watchers {
		w.SendBinary(data)
	}
}

// broadcastMsg sends a JSON message to all watchers
func (a *Arena) broadcastMsg(msg Envelope) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, w := range a.watchers {
		w.SendJSON(msg)
	}
}
