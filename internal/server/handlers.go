package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"scrims-bot/internal/domain"

	"github.com/go-chi/chi/v5"
)

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed body", domain.ErrInvalidTarget)
	}
	return nil
}

func seqParam(r *http.Request) (int64, error) {
	seq, err := strconv.ParseInt(chi.URLParam(r, "seq"), 10, 64)
	if err != nil || seq < 1 {
		return 0, fmt.Errorf("%w: bad match number", domain.ErrInvalidTarget)
	}
	return seq, nil
}

func pageParam(r *http.Request) int {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	return page
}

// matchView is the wire shape of a match snapshot.
type matchView struct {
	GuildID      string                 `json:"guild_id"`
	Seq          int64                  `json:"seq"`
	State        domain.MatchState      `json:"state"`
	Roster       []string               `json:"roster"`
	Leader1      string                 `json:"leader1"`
	Leader2      string                 `json:"leader2"`
	Teams        map[string]domain.Team `json:"teams"`
	Undrafted    []string               `json:"undrafted,omitempty"`
	LobbyID      string                 `json:"lobby_id,omitempty"`
	Winner       domain.Team            `json:"winner,omitempty"`
	MVPID        string                 `json:"mvp_id,omitempty"`
	ProofRef     string                 `json:"proof_ref,omitempty"`
	ProofPenalty bool                   `json:"proof_penalty,omitempty"`
	CancelReason string                 `json:"cancel_reason,omitempty"`
	Deltas       map[string]int         `json:"deltas,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

func toMatchView(m domain.Match) matchView {
	return matchView{
		GuildID:      m.GuildID,
		Seq:          m.Seq,
		State:        m.State,
		Roster:       m.Roster,
		Leader1:      m.Leader1,
		Leader2:      m.Leader2,
		Teams:        m.Teams,
		Undrafted:    m.Undrafted(),
		LobbyID:      m.LobbyID,
		Winner:       m.Winner,
		MVPID:        m.MVPID,
		ProofRef:     m.ProofRef,
		ProofPenalty: m.ProofPenalty,
		CancelReason: m.CancelReason,
		Deltas:       m.Deltas,
		CreatedAt:    m.CreatedAt,
	}
}

func (s *Server) handleJoinQueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"player_id"`
		Username string `json:"username"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.PlayerID == "" {
		s.writeError(w, r, fmt.Errorf("%w: missing player_id", domain.ErrInvalidTarget))
		return
	}
	if req.Username == "" {
		req.Username = req.PlayerID
	}

	guildID := chi.URLParam(r, "guildID")
	if err := s.scrims.JoinQueue(r.Context(), guildID, req.PlayerID, req.Username); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queue": s.scrims.QueueMembers(guildID),
	})
}

func (s *Server) handleLeaveQueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"player_id"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	guildID := chi.URLParam(r, "guildID")
	if err := s.scrims.LeaveQueue(r.Context(), guildID, req.PlayerID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queue": s.scrims.QueueMembers(guildID),
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"queue": s.scrims.QueueMembers(chi.URLParam(r, "guildID")),
	})
}

func (s *Server) handleActiveMatches(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	var views []matchView
	for _, m := range s.scrims.ActiveMatches() {
		if m.GuildID == guildID {
			views = append(views, toMatchView(m))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": views})
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	seq, err := seqParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.scrims.Match(chi.URLParam(r, "guildID"), seq)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMatchView(m))
}

// matchAction wraps the shared shape of lifecycle handlers: parse seq,
// decode the body, call the service, return the fresh snapshot.
func (s *Server) matchAction(w http.ResponseWriter, r *http.Request, req any, call func(guildID string, seq int64) error) {
	seq, err := seqParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req != nil {
		if err := decode(r, req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	guildID := chi.URLParam(r, "guildID")
	if err := call(guildID, seq); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.scrims.Match(guildID, seq)
	if err != nil {
		// terminal transitions drop the match from the registry
		writeJSON(w, http.StatusOK, map[string]string{"state": "finished"})
		return
	}
	writeJSON(w, http.StatusOK, toMatchView(m))
}

func (s *Server) handlePick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LeaderID string `json:"leader_id"`
		TargetID string `json:"target_id"`
	}
	s.matchAction(w, r, &req, func(guildID string, seq int64) error {
		return s.scrims.Pick(r.Context(), guildID, seq, req.LeaderID, req.TargetID)
	})
}

func (s *Server) handleSubmitLobby(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LeaderID string `json:"leader_id"`
		LobbyID  string `json:"lobby_id"`
	}
	s.matchAction(w, r, &req, func(guildID string, seq int64) error {
		return s.scrims.SubmitLobby(r.Context(), guildID, seq, req.LeaderID, req.LobbyID)
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LeaderID string `json:"leader_id"`
		Reason   string `json:"reason"`
	}
	s.matchAction(w, r, &req, func(guildID string, seq int64) error {
		return s.scrims.CancelMatch(r.Context(), guildID, seq, req.LeaderID, req.Reason)
	})
}

func (s *Server) handleVoteWinner(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LeaderID string      `json:"leader_id"`
		Team     domain.Team `json:"team"`
	}
	s.matchAction(w, r, &req, func(guildID string, seq int64) error {
		return s.scrims.VoteWinner(r.Context(), guildID, seq, req.LeaderID, req.Team)
	})
}

func (s *Server) handleVoteMVP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LeaderID string `json:"leader_id"`
		PlayerID string `json:"player_id"`
	}
	s.matchAction(w, r, &req, func(guildID string, seq int64) error {
		return s.scrims.VoteMVP(r.Context(), guildID, seq, req.LeaderID, req.PlayerID)
	})
}

func (s *Server) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LeaderID    string `json:"leader_id"`
		ArtifactRef string `json:"artifact_ref"`
	}
	s.matchAction(w, r, &req, func(guildID string, seq int64) error {
		return s.scrims.SubmitProof(r.Context(), guildID, seq, req.LeaderID, req.ArtifactRef)
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.stats.Leaderboard(r.Context(), pageParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	card, err := s.stats.PlayerStats(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	recs, err := s.stats.History(r.Context(), chi.URLParam(r, "guildID"), pageParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (s *Server) handleAdjustPoints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta *int `json:"delta"`
		Set   *int `json:"set"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	playerID := chi.URLParam(r, "playerID")

	var total int
	var err error
	switch {
	case req.Set != nil:
		total, err = s.admin.SetPoints(r.Context(), playerID, *req.Set)
	case req.Delta != nil:
		total, err = s.admin.AdjustPoints(r.Context(), playerID, *req.Delta)
	default:
		err = fmt.Errorf("%w: delta or set required", domain.ErrInvalidTarget)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"points": total})
}

func (s *Server) handleTimeout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GuildID string `json:"guild_id"`
		Minutes int    `json:"minutes"`
		Reason  string `json:"reason"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	err := s.admin.Timeout(r.Context(), req.GuildID, chi.URLParam(r, "playerID"), req.Minutes, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleClearTimeout(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.ClearTimeout(r.Context(), chi.URLParam(r, "playerID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.admin.Config(r.Context(), chi.URLParam(r, "guildID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	cfg, err := s.admin.Config(r.Context(), guildID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// body overlays the stored config, so partial updates work
	if err := decode(r, &cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg.GuildID = guildID
	if err := s.admin.UpdateConfig(r.Context(), cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleForceWinner(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Team domain.Team `json:"team"`
	}
	s.matchAction(w, r, &req, func(guildID string, seq int64) error {
		return s.admin.ForceWinner(r.Context(), guildID, seq, req.Team)
	})
}

func (s *Server) handleForceMVP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"player_id"`
	}
	s.matchAction(w, r, &req, func(guildID string, seq int64) error {
		return s.admin.ForceMVP(r.Context(), guildID, seq, req.PlayerID)
	})
}

func (s *Server) handleForceCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	s.matchAction(w, r, &req, func(guildID string, seq int64) error {
		return s.admin.ForceCancel(r.Context(), guildID, seq, req.Reason)
	})
}

func (s *Server) handleResettle(w http.ResponseWriter, r *http.Request) {
	s.matchAction(w, r, nil, func(guildID string, seq int64) error {
		return s.admin.RetrySettlement(r.Context(), guildID, seq)
	})
}
