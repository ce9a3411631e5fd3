package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"quadarena/sim"
)

const maxArenas = 100

// ArenaIdleTimeout is how long an arena without watchers keeps running
var ArenaIdleTimeout = 2 * time.Minute

var errTooManyArenas = errors.New("too many active arenas")

// ArenaManager handles creation, lookup and retirement of arenas
type ArenaManager struct {
	mu        sync.RWMutex
	arenas    map[string]*Arena
	defaults  sim.Params
	tickRate  int
	db        *DB
	analytics *Analytics
}

// NewArenaManager creates a new ArenaManager. db and analytics may be nil.
func NewArenaManager(defaults sim.Params, tickRate int, db *DB, analytics *Analytics) *ArenaManager {
	return &ArenaManager{
		arenas:    make(map[string]*Arena),
		defaults:  defaults,
		tickRate:  tickRate,
		db:        db,
		analytics: analytics,
	}
}

// CreateArena creates and starts an arena. An empty password leaves it open;
// bodies <= 0 uses the default body count.
func (m *ArenaManager) CreateArena(name, password string, bodies int) (*Arena, error) {
	params := m.defaults
	if bodies > 0 {
		params.Bodies = min(bodies, maxBodiesPerArena)
	}

	var hash []byte
	if password != "" {
		h, err := HashPassword(password)
		if err != nil {
			return nil, err
		}
		hash = h
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.arenas) >= maxArenas {
		return nil, errTooManyArenas
	}

	id := GenerateUUID()
	arena, err := NewArena(id, name, params, newSeed(), m.tickRate)
	if err != nil {
		return nil, fmt.Errorf("create arena: %w", err)
	}
	arena.passHash = hash
	arena.analytics = m.analytics

	if m.db != nil {
		if err := m.db.CreateArena(id, name, params); err != nil {
			log.Printf("db: record arena %s: %v", id, err)
		}
	}
	m.analytics.Track(EvtArenaStart, id, "")

	m.arenas[id] = arena
	go arena.Run()
	log.WithFields(log.Fields{"arena": id, "bodies": params.Bodies}).Info("arena started")
	return arena, nil
}

// GetArena returns an arena by ID
func (m *ArenaManager) GetArena(id string) *Arena {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.arenas[id]
}

// RemoveWatcher unsubscribes a watcher; idle arenas are retired later by Reap
func (m *ArenaManager) RemoveWatcher(arenaID, watcherID string) {
	if a := m.GetArena(arenaID); a != nil {
		a.RemoveWatcher(watcherID)
	}
}

// ListArenas returns info about all active arenas
func (m *ArenaManager) ListArenas() []ArenaInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]ArenaInfo, 0, len(m.arenas))
	for _, a := range m.arenas {
		list = append(list, a.Info())
	}
	return list
}

// Count returns the number of active arenas
func (m *ArenaManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.arenas)
}

// Totals returns the number of active arenas and the watchers across all of them
func (m *ArenaManager) Totals() (arenas, watchers int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.arenas {
		watchers += a.WatcherCount()
	}
	return len(m.arenas), watchers
}

// Reap retires arenas that have had no watchers for ArenaIdleTimeout
func (m *ArenaManager) Reap(now time.Time) int {
	m.mu.Lock()
	var idle []*Arena
	for id, a := range m.arenas {
		if a.IdleFor(now) >= ArenaIdleTimeout {
			idle = append(idle, a)
			delete(m.arenas, id)
		}
	}
	m.mu.Unlock()

	for _, a := range idle {
		m.retire(a, "idle")
	}
	return len(idle)
}

// RunReaper calls Reap periodically until ctx is done
func (m *ArenaManager) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(max(ArenaIdleTimeout/4, 10*time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			m.Reap(now)
		case <-ctx.Done():
			return
		}
	}
}

// StopAll retires every arena (server shutdown)
func (m *ArenaManager) StopAll() {
	m.mu.Lock()
	arenas := make([]*Arena, 0, len(m.arenas))
	for id, a := range m.arenas {
		arenas = append(arenas, a)
		delete(m.arenas, id)
	}
	m.mu.Unlock()

	for _, a := range arenas {
		m.retire(a, "shutdown")
	}
}

func (m *ArenaManager) retire(a *Arena, reason string) {
	a.Stop()
	a.broadcastMsg(Envelope{T: MsgError, Data: ErrorMsg{Msg: "arena closed"}})
	stats := a.Stats()
	if m.db != nil {
		if err := m.db.FinishArena(a.ID, stats); err != nil {
			log.Printf("db: finish arena %s: %v", a.ID, err)
		}
	}
	m.analytics.Track(EvtArenaEnd, a.ID, fmt.Sprintf(`{"reason":%q,"ticks":%d,"pops":%d}`, reason, stats.Ticks, stats.Pops))
	log.WithFields(log.Fields{
		"arena":      a.ID,
		"reason":     reason,
		"ticks":      stats.Ticks,
		"collisions": stats.Collisions,
		"pops":       stats.Pops,
	}).Info("arena stopped")
}
