package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

var uuidPathRe = regexp.MustCompile(`^/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("write json: %v", err)
	}
}

// joinLink returns the URL a browser opens to watch an arena
func joinLink(r *http.Request, arenaID string) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, r.Host, arenaID)
}

// SetupRoutes configures HTTP routes. clientDir may be empty to serve no static files.
func SetupRoutes(hub *Hub, clientDir string) *http.ServeMux {
	mux := http.NewServeMux()

	if clientDir != "" {
		// Serve static files with no-cache so browsers always revalidate
		fs := http.FileServer(http.Dir(clientDir))
		mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-cache")
			// SPA: serve index.html for root and arena paths
			if r.URL.Path == "/" || uuidPathRe.MatchString(r.URL.Path) {
				http.ServeFile(w, r, filepath.Join(clientDir, "index.html"))
				return
			}
			fs.ServeHTTP(w, r)
		}))
	}

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debugf("upgrade error: %v", err)
			return
		}

		client := NewClient(hub, conn, ip)
		if !hub.join(client) {
			conn.Close()
			return
		}
		hub.TrackConnect(ip)

		go client.WritePump()
		go client.ReadPump()
	})

	mux.HandleFunc("GET /api/arenas", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, hub.arenas.ListArenas())
	})

	mux.HandleFunc("GET /api/history", func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 200 {
				http.Error(w, "bad limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		if hub.db == nil {
			writeJSON(w, []ArenaRow{})
			return
		}
		rows, err := hub.db.RecentArenas(limit)
		if err != nil {
			log.Errorf("history: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if rows == nil {
			rows = []ArenaRow{}
		}
		writeJSON(w, rows)
	})

	mux.HandleFunc("GET /api/history/{id}", func(w http.ResponseWriter, r *http.Request) {
		if hub.db == nil {
			http.NotFound(w, r)
			return
		}
		id := r.PathValue("id")
		row, err := hub.db.GetArena(id)
		if err != nil {
			log.Errorf("history %s: %v", id, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if row == nil {
			http.NotFound(w, r)
			return
		}
		events, err := hub.analytics.ArenaEvents(id)
		if err != nil {
			log.Errorf("history %s events: %v", id, err)
		}
		writeJSON(w, map[string]interface{}{
			"arena":  row,
			"events": events,
		})
	})

	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, r *http.Request) {
		arenas, watchers := hub.arenas.Totals()
		counts, err := hub.analytics.EventCounts(7)
		if err != nil {
			log.Errorf("stats: %v", err)
		}
		controls, err := hub.analytics.ControlUsage(7)
		if err != nil {
			log.Errorf("stats: %v", err)
		}
		writeJSON(w, map[string]interface{}{
			"connections":   hub.TotalConns(),
			"watchers":      watchers,
			"active_arenas": arenas,
			"events_7d":     counts,
			"controls_7d":   controls,
		})
	})

	mux.HandleFunc("GET /qr/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if hub.arenas.GetArena(id) == nil {
			http.NotFound(w, r)
			return
		}
		png, err := qrcode.Encode(joinLink(r, id), qrcode.Medium, 256)
		if err != nil {
			log.Errorf("qr %s: %v", id, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})

	return mux
}
