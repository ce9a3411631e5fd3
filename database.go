package main

import (
	"database/sql"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"quadarena/sim"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// ArenaRow represents a recorded arena
type ArenaRow struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Width      float64   `json:"w"`
	Height     float64   `json:"h"`
	Bodies     int       `json:"bodies"`
	CreatedAt  time.Time `json:"created_at"`
	EndedAt    time.Time `json:"ended_at,omitempty"`
	Ticks      uint64    `json:"ticks"`
	Collisions int       `json:"collisions"`
	Pops       int       `json:"pops"`
	PeakBodies int       `json:"peak_bodies"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS arenas (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		width REAL NOT NULL,
		height REAL NOT NULL,
		bodies INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		ended_at INTEGER,
		ticks INTEGER NOT NULL DEFAULT 0,
		collisions INTEGER NOT NULL DEFAULT 0,
		pops INTEGER NOT NULL DEFAULT 0,
		peak_bodies INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS arena_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		arena_id TEXT,
		data TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_arena_events_arena ON arena_events(arena_id);
	CREATE INDEX IF NOT EXISTS idx_arenas_ended ON arenas(ended_at);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("DB migration error: %v", err)
	}
	return err
}

// GetSetting returns a stored setting, or "" if unset
func (db *DB) GetSetting(key string) string {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil && err != sql.ErrNoRows {
		log.Printf("db: get setting %s: %v", key, err)
	}
	return value
}

// SetSetting stores a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// CreateArena records a newly started arena
func (db *DB) CreateArena(id, name string, p sim.Params) error {
	_, err := db.conn.Exec(
		"INSERT INTO arenas (id, name, width, height, bodies, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, name, p.Width, p.Height, p.Bodies, time.Now().Unix(),
	)
	return err
}

// FinishArena stores the final counters of a stopped arena
func (db *DB) FinishArena(id string, s ArenaStats) error {
	_, err := db.conn.Exec(`
		UPDATE arenas SET
			ended_at = ?,
			ticks = ?,
			collisions = ?,
			pops = ?,
			peak_bodies = ?
		WHERE id = ?`,
		time.Now().Unix(), s.Ticks, s.Collisions, s.Pops, s.PeakBodies, id,
	)
	return err
}

// GetArena returns a recorded arena, or nil if unknown
func (db *DB) GetArena(id string) (*ArenaRow, error) {
	rows, err := db.queryArenas("WHERE id = ?", id)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// RecentArenas returns the most recently finished arenas, newest first
func (db *DB) RecentArenas(limit int) ([]ArenaRow, error) {
	return db.queryArenas("WHERE ended_at IS NOT NULL ORDER BY ended_at DESC, created_at DESC LIMIT ?", limit)
}

func (db *DB) queryArenas(where string, args ...interface{}) ([]ArenaRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, width, height, bodies, created_at, ended_at, ticks, collisions, pops, peak_bodies
		FROM arenas `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ArenaRow
	for rows.Next() {
		var r ArenaRow
		var created int64
		var ended sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Name, &r.Width, &r.Height, &r.Bodies, &created, &ended,
			&r.Ticks, &r.Collisions, &r.Pops, &r.PeakBodies); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(created, 0)
		if ended.Valid {
			r.EndedAt = time.Unix(ended.Int64, 0)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
