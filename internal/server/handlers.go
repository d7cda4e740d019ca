package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"guildhall/internal/api"
	"guildhall/internal/discord"
	"guildhall/internal/service"

	"github.com/rs/zerolog"
)

// Server is the JSON admin surface over the identity core. Authentication
// and page rendering live elsewhere in the platform.
type Server struct {
	identity *service.IdentityService
	roster   *service.RosterService
	syncer   *discord.Syncer
	raids    *api.RaidHelperClient
	logger   zerolog.Logger
}

func New(identity *service.IdentityService, roster *service.RosterService, syncer *discord.Syncer, raids *api.RaidHelperClient, logger zerolog.Logger) *Server {
	return &Server{
		identity: identity,
		roster:   roster,
		syncer:   syncer,
		raids:    raids,
		logger:   logger,
	}
}

// Routes registers all handlers on a mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/matching/run", s.handleRunMatching)
	mux.HandleFunc("POST /api/v1/audit/scan", s.handleDriftScan)
	mux.HandleFunc("GET /api/v1/audit/issues", s.handleListIssues)
	mux.HandleFunc("POST /api/v1/discord/sync", s.handleDiscordSync)
	mux.HandleFunc("GET /api/v1/raids/upcoming", s.handleUpcomingRaids)
	mux.HandleFunc("GET /api/v1/roster", s.handleRoster)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
}

func (s *Server) handleRunMatching(w http.ResponseWriter, r *http.Request) {
	var minRankLevel *int
	if raw := r.URL.Query().Get("min_rank_level"); raw != "" {
		level, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "min_rank_level must be an integer")
			return
		}
		minRankLevel = &level
	}

	summary, err := s.identity.RunMatching(r.Context(), minRankLevel)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDriftScan(w http.ResponseWriter, r *http.Request) {
	summary, err := s.identity.RunDriftScan(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.identity.OpenIssues(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"issues": issues, "count": len(issues)})
}

func (s *Server) handleDiscordSync(w http.ResponseWriter, r *http.Request) {
	if !s.syncer.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "discord sync is not configured")
		return
	}
	stats, err := s.syncer.Sync(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleUpcomingRaids(w http.ResponseWriter, r *http.Request) {
	if !s.raids.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "raid-helper is not configured")
		return
	}
	events, err := s.raids.GetUpcomingEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	entries, err := s.roster.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roster": entries, "count": len(entries)})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
