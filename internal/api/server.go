// Package api provides the HTTP API for observing a settlement session.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/crossroads/internal/discovery"
	"github.com/talgya/crossroads/internal/engine"
)

// Server serves the session state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// Activities receives admin-posted activity. Nil records directly on
	// the session's tracker.
	Activities chan<- discovery.Activity

	activityLimiter *RateLimiter
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	if s.activityLimiter == nil {
		s.activityLimiter = NewRateLimiter(60, time.Minute)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/discoveries", s.handleDiscoveries)
	mux.HandleFunc("GET /api/v1/discovery/{name}", s.handleDiscoveryDetail)
	mux.HandleFunc("GET /api/v1/unlocks", s.handleUnlocks)
	mux.HandleFunc("GET /api/v1/activity", s.handleActivity)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)

	mux.HandleFunc("POST /api/v1/activity", s.adminOnly(RateLimitMiddleware(s.activityLimiter, s.handleRecordActivity)))
	mux.HandleFunc("POST /api/v1/trigger", s.adminOnly(s.handleTrigger))
	mux.HandleFunc("POST /api/v1/speed", s.adminOnly(s.handleSpeed))

	return corsMiddleware(mux)
}

// Serve listens until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	go func() {
		t := time.NewTicker(time.Hour)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.activityLimiter.Cleanup(2 * time.Hour)
			}
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list; localhost dev servers are
// always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminOnly requires the admin bearer token.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no WORLDSIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.Sim.Discovery.Stats()
	tick := s.Sim.CurrentTick()

	var biomes []string
	cfg := s.Sim.Discovery.Config()
	if set, err := s.Sim.WorldMap.SampleBiomes(cfg.Anchor, cfg.ScanRadius, cfg.ScanStride); err == nil {
		for _, b := range set.Sorted() {
			biomes = append(biomes, string(b))
		}
	}

	status := map[string]any{
		"name":                     "Crossroads",
		"session":                  s.Sim.SessionID,
		"tick":                     tick,
		"sim_time":                 engine.SimTime(tick),
		"anchor":                   s.Sim.Anchor,
		"biomes":                   biomes,
		"discovered":               s.Sim.Ledger.CompletedCount(),
		"registered":               stats.Registered,
		"cycles":                   stats.Cycles,
		"cycles_without_discovery": stats.CyclesWithoutDiscovery,
	}
	if s.Eng != nil {
		status["speed"] = s.Eng.Speed()
		status["running"] = s.Eng.Running()
	}
	writeJSON(w, status)
}

type discoveryView struct {
	ID               discovery.ID `json:"id"`
	Name             string       `json:"name"`
	Description      string       `json:"description"`
	Kind             string       `json:"kind"`
	Discovered       bool         `json:"discovered"`
	EligibleCycles   int          `json:"eligible_cycles"`
	BaseProbability  float64      `json:"base_probability"`
	BadLuckThreshold int          `json:"bad_luck_threshold"`
	Prerequisites    []string     `json:"prerequisites,omitempty"`
	Biomes           []string     `json:"biomes,omitempty"`
	Activity         string       `json:"activity,omitempty"`
	ActivityCount    int          `json:"activity_count,omitempty"`
	Capabilities     []string     `json:"capabilities,omitempty"`
	Structures       []string     `json:"structures,omitempty"`
	Resources        []string     `json:"resources,omitempty"`
}

func (s *Server) view(d discovery.Definition) discoveryView {
	n, _ := s.Sim.Discovery.EligibleCycles(d.Name)
	v := discoveryView{
		ID:               d.ID,
		Name:             d.Name,
		Description:      d.Description,
		Kind:             d.Kind.String(),
		Discovered:       s.Sim.Ledger.IsDiscovered(d.Name),
		EligibleCycles:   n,
		BaseProbability:  d.BaseProbability,
		BadLuckThreshold: d.BadLuckThreshold,
		Prerequisites:    d.Prerequisites,
		Activity:         string(d.RequiredActivity),
		ActivityCount:    d.RequiredActivityCount,
		Capabilities:     d.UnlockedCapabilities,
		Structures:       d.UnlockedStructures,
		Resources:        d.UnlockedResources,
	}
	for _, b := range d.RequiredBiomes {
		v.Biomes = append(v.Biomes, string(b))
	}
	return v
}

func (s *Server) handleDiscoveries(w http.ResponseWriter, r *http.Request) {
	defs := s.Sim.Discovery.Definitions()
	out := make([]discoveryView, 0, len(defs))
	for _, d := range defs {
		out = append(out, s.view(d))
	}
	writeJSON(w, out)
}

func (s *Server) handleDiscoveryDetail(w http.ResponseWriter, r *http.Request) {
	def, ok := s.Sim.Discovery.Lookup(r.PathValue("name"))
	if !ok {
		http.Error(w, "discovery not found", http.StatusNotFound)
		return
	}
	writeJSON(w, s.view(def))
}

func (s *Server) handleUnlocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Ledger.Snapshot())
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Tracker.Snapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			http.Error(w, "limit must be 1-1000", http.StatusBadRequest)
			return
		}
		limit = n
	}
	writeJSON(w, s.Sim.RecentEvents(limit))
}

func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Activity string `json:"activity"`
		Count    int    `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Activity == "" {
		http.Error(w, "activity required", http.StatusBadRequest)
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}
	if req.Count < 0 || req.Count > 100 {
		http.Error(w, "count must be 1-100", http.StatusBadRequest)
		return
	}

	act := discovery.Activity(req.Activity)
	if !act.Known() {
		http.Error(w, fmt.Sprintf("unknown activity %q", req.Activity), http.StatusBadRequest)
		return
	}
	for i := 0; i < req.Count; i++ {
		if s.Activities != nil {
			select {
			case s.Activities <- act:
			case <-r.Context().Done():
				return
			}
		} else {
			s.Sim.Tracker.RecordActivity(act)
		}
	}
	slog.Info("activity recorded via API", "activity", act, "count", req.Count)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]any{"activity": act, "accepted": req.Count})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	ok, err := s.Sim.Discovery.Trigger(req.Name)
	if errors.Is(err, discovery.ErrUnknownDiscovery) {
		http.Error(w, "discovery not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"name": req.Name, "completed": ok})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "no engine", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Speed < 0 || req.Speed > 1000 {
		http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
		return
	}
	s.Eng.SetSpeed(req.Speed)
	slog.Info("speed changed", "speed", req.Speed)
	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
