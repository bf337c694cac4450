package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
)

const (
	defaultChartLimit = 100
	maxChartLimit     = 1000
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// RegisterRoutes registers the WebSocket feed and REST endpoints on mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub) {
	// WebSocket feed; ?last_ts= limits the initial state to newer messages
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[dashboard] ws upgrade error: %v", err)
			return
		}
		hub.Register(conn, r.URL.Query().Get("last_ts"))
	})

	// REST: chart series including the forming bar
	mux.HandleFunc("/api/chart", func(w http.ResponseWriter, r *http.Request) {
		limit := defaultChartLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= maxChartLimit {
				limit = l
			}
		}
		if hub.state == nil {
			writeJSON(w, []any{})
			return
		}
		writeJSON(w, hub.state.ChartSeries(limit))
	})

	// REST: latest completed-bar evaluation
	mux.HandleFunc("/api/signal", func(w http.ResponseWriter, r *http.Request) {
		if hub.state == nil {
			SetCORS(w)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		ev := hub.state.LatestEvaluation()
		if ev == nil {
			SetCORS(w)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, ev)
	})

	// REST: latest payload per channel
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"symbol":   hub.Symbol,
			"channels": hub.LatestAll(),
		})
	})

	// REST: gap backfill, envelopes of ?channel= after ?after= channel_seq
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		channel := r.URL.Query().Get("channel")
		after, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		if channel == "" || err != nil {
			SetCORS(w)
			http.Error(w, `{"error":"channel and after are required"}`, http.StatusBadRequest)
			return
		}
		msgs := hub.Missed(channel, after)
		out := make([]json.RawMessage, len(msgs))
		for i, m := range msgs {
			out[i] = m
		}
		writeJSON(w, out)
	})

	// REST: feed diagnostics
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"ws_clients": hub.ClientCount(),
			"latency":    hub.Latency.Stats(),
		})
	})
}

// Server runs the dashboard HTTP server.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a dashboard server for hub.
func NewServer(addr string, hub *Hub) *Server {
	mux := http.NewServeMux()
	RegisterRoutes(mux, hub)
	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[dashboard] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[dashboard] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
