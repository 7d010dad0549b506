// Package server exposes the action API over HTTP: queue membership,
// match lifecycle actions, stats reads, the operator surface, and a
// websocket event stream. Handlers translate wire requests into service
// calls and domain errors into status codes; no game logic lives here.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"scrims-bot/internal/domain"
	"scrims-bot/internal/events"
	"scrims-bot/internal/middleware"
	"scrims-bot/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

type Server struct {
	scrims *service.ScrimsService
	stats  *service.StatsService
	admin  *service.AdminService
	bus    *events.Bus
	logger zerolog.Logger
}

func New(scrims *service.ScrimsService, stats *service.StatsService, admin *service.AdminService, bus *events.Bus, logger zerolog.Logger) *Server {
	return &Server{
		scrims: scrims,
		stats:  stats,
		admin:  admin,
		bus:    bus,
		logger: logger,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID(s.logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
	}).Handler)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/ws", s.handleEvents)

	r.Route("/guilds/{guildID}", func(r chi.Router) {
		r.Post("/queue/join", s.handleJoinQueue)
		r.Post("/queue/leave", s.handleLeaveQueue)
		r.Get("/queue", s.handleQueue)

		r.Get("/matches", s.handleActiveMatches)
		r.Route("/matches/{seq}", func(r chi.Router) {
			r.Get("/", s.handleMatch)
			r.Post("/pick", s.handlePick)
			r.Post("/lobby", s.handleSubmitLobby)
			r.Post("/cancel", s.handleCancel)
			r.Post("/vote/winner", s.handleVoteWinner)
			r.Post("/vote/mvp", s.handleVoteMVP)
			r.Post("/proof", s.handleSubmitProof)
		})

		r.Get("/history", s.handleHistory)
	})

	r.Get("/leaderboard", s.handleLeaderboard)
	r.Get("/players/{playerID}/stats", s.handlePlayerStats)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/players/{playerID}/points", s.handleAdjustPoints)
		r.Post("/players/{playerID}/timeout", s.handleTimeout)
		r.Delete("/players/{playerID}/timeout", s.handleClearTimeout)
		r.Get("/guilds/{guildID}/config", s.handleGetConfig)
		r.Put("/guilds/{guildID}/config", s.handleUpdateConfig)
		r.Route("/guilds/{guildID}/matches/{seq}", func(r chi.Router) {
			r.Post("/force-winner", s.handleForceWinner)
			r.Post("/force-mvp", s.handleForceMVP)
			r.Post("/force-cancel", s.handleForceCancel)
			r.Post("/resettle", s.handleResettle)
		})
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeError maps domain errors onto status codes: invalid input is
// 400, authorization-shaped failures 403, missing things 404, and
// state conflicts 409.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := ""
	switch {
	case errors.Is(err, domain.ErrInvalidTarget), errors.Is(err, domain.ErrInvalidLobbyID):
		status, code = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrTimedOut):
		status, code = http.StatusForbidden, "timed_out"
	case errors.Is(err, domain.ErrWrongLeader), errors.Is(err, domain.ErrNotYourTurn):
		status, code = http.StatusForbidden, "not_allowed"
	case errors.Is(err, domain.ErrMatchNotFound), errors.Is(err, domain.ErrPlayerNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrAlreadyQueued), errors.Is(err, domain.ErrNotInQueue),
		errors.Is(err, domain.ErrWrongState), errors.Is(err, domain.ErrBusy),
		errors.Is(err, domain.ErrConsistency):
		status, code = http.StatusConflict, "conflict"
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}
