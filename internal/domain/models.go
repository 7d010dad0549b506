package domain

import (
	"time"
)

type Player struct {
	ID            string
	Username      string
	Points        int
	MatchesPlayed int
	MatchesWon    int
	MVPCount      int
	TimeoutUntil  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsTimedOut reports whether the player carries an active queue ban.
func (p *Player) IsTimedOut(now time.Time) bool {
	return p.TimeoutUntil != nil && now.Before(*p.TimeoutUntil)
}

func (p *Player) WinRate() float64 {
	if p.MatchesPlayed == 0 {
		return 0
	}
	return float64(p.MatchesWon) / float64(p.MatchesPlayed) * 100
}

type Team string

const (
	TeamA Team = "A"
	TeamB Team = "B"
)

func (t Team) Opponent() Team {
	if t == TeamA {
		return TeamB
	}
	return TeamA
}

func (t Team) Valid() bool { return t == TeamA || t == TeamB }

// MatchState is the lifecycle state of a match. States advance strictly
// forward; Cancelled is reachable from every non-terminal state and, like
// Settled, is terminal. Disputed is a voting sub-state entered on
// conflicting winner ballots.
type MatchState string

const (
	StateDrafting     MatchState = "drafting"
	StateLobbySetup   MatchState = "lobby_setup"
	StateLive         MatchState = "live"
	StateVoting       MatchState = "voting"
	StateDisputed     MatchState = "disputed"
	StateProofPending MatchState = "proof_pending"
	StateSettling     MatchState = "settling"
	StateSettled      MatchState = "settled"
	StateCancelled    MatchState = "cancelled"
)

func (s MatchState) Terminal() bool {
	return s == StateSettled || s == StateCancelled
}

// Match holds the full state of one scrim. The roster is frozen at
// creation; Seq is the per-guild sequential match number. Leader1 drafts
// first, Leader2 creates the external lobby.
type Match struct {
	GuildID string
	Seq     int64

	Roster  []string
	Leader1 string
	Leader2 string
	Teams   map[string]Team
	Scores  map[string]int

	Config GuildConfig

	State          MatchState
	LobbyID        string
	WinnerVotes    map[string]Team
	MVPVotes       map[string]string
	Winner         Team
	MVPID          string
	ProofRef       string
	ProofPenalty   bool
	CancelReason   string
	Deltas         map[string]int
	CreatedAt      time.Time
	LastActivityAt time.Time
}

func (m *Match) IsLeader(playerID string) bool {
	return playerID == m.Leader1 || playerID == m.Leader2
}

func (m *Match) InRoster(playerID string) bool {
	for _, id := range m.Roster {
		if id == playerID {
			return true
		}
	}
	return false
}

// WinningLeader returns the leader on the winning team, or "" while the
// winner is unresolved.
func (m *Match) WinningLeader() string {
	switch m.Winner {
	case "":
		return ""
	case m.Teams[m.Leader1]:
		return m.Leader1
	case m.Teams[m.Leader2]:
		return m.Leader2
	}
	return ""
}

// Undrafted returns roster members not yet assigned to a team, in roster
// order.
func (m *Match) Undrafted() []string {
	var out []string
	for _, id := range m.Roster {
		if _, ok := m.Teams[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (m *Match) TeamMembers(t Team) []string {
	var out []string
	for _, id := range m.Roster {
		if m.Teams[id] == t {
			out = append(out, id)
		}
	}
	return out
}

// Snapshot returns a deep copy safe to hand to the presentation layer.
func (m *Match) Snapshot() Match {
	cp := *m
	cp.Roster = append([]string(nil), m.Roster...)
	cp.Teams = copyMap(m.Teams)
	cp.Scores = copyMap(m.Scores)
	cp.WinnerVotes = copyMap(m.WinnerVotes)
	cp.MVPVotes = copyMap(m.MVPVotes)
	cp.Deltas = copyMap(m.Deltas)
	return cp
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	if in == nil {
		return nil
	}
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// GuildConfig is the per-guild tunable set. PointsLoss is stored as a
// negative delta. A match snapshots the config at creation, so mid-match
// changes never alter an in-progress match.
type GuildConfig struct {
	GuildID             string    `json:"guild_id"`
	QueueSize           int       `json:"queue_size"`
	PointsWin           int       `json:"points_win"`
	PointsLoss          int       `json:"points_loss"`
	PointsMVP           int       `json:"points_mvp"`
	TimeoutMinutes      int       `json:"timeout_minutes"`
	NoProofPenalty      int       `json:"no_proof_penalty"`
	ProofTimeoutMinutes int       `json:"proof_timeout_minutes"`
	ProofRequired       bool      `json:"proof_required"`
	RankRolesEnabled    bool      `json:"rank_roles_enabled"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// MatchRecord is the immutable history snapshot written once at
// settlement or cancellation.
type MatchRecord struct {
	ID          string
	GuildID     string
	MatchSeq    int64
	Roster      []string
	Teams       map[string]Team
	Winner      Team
	MVPID       string
	Deltas      map[string]int
	ProofRef    string
	Cancelled   bool
	Reason      string
	CompletedAt time.Time
}
