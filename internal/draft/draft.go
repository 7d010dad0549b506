// Package draft implements leader selection and the alternating pick
// sequence. Everything here is a pure function of match state plus a
// caller-supplied random source, so draft behavior is deterministic
// under test.
package draft

import (
	"math/rand"

	"scrims-bot/internal/domain"
)

// ChooseLeaders picks two distinct leaders uniformly at random from the
// roster. The first return drafts first; the second owes the lobby.
// These duties are deterministically linked: whoever does not create
// the lobby gets the first pick.
func ChooseLeaders(roster []string, rng *rand.Rand) (leader1, leader2 string) {
	idx := rng.Perm(len(roster))
	return roster[idx[0]], roster[idx[1]]
}

// InitTeams pre-assigns the leaders to their own teams.
func InitTeams(leader1, leader2 string) map[string]domain.Team {
	return map[string]domain.Team{
		leader1: domain.TeamA,
		leader2: domain.TeamB,
	}
}

// PicksMade counts non-leader assignments so far.
func PicksMade(m *domain.Match) int {
	return len(m.Teams) - 2
}

// PickerAt returns the leader expected to make the n-th pick (1-based):
// odd picks belong to leader1, even picks to leader2.
func PickerAt(n int, leader1, leader2 string) string {
	if n%2 == 1 {
		return leader1
	}
	return leader2
}

// NextPicker returns the leader whose turn it is, or "" when the draft
// is complete.
func NextPicker(m *domain.Match) string {
	if Done(m) {
		return ""
	}
	return PickerAt(PicksMade(m)+1, m.Leader1, m.Leader2)
}

// Done reports whether every roster member has a team.
func Done(m *domain.Match) bool {
	return len(m.Teams) == len(m.Roster)
}

// ValidatePick checks that leaderID is the expected picker and targetID
// is still draftable. It does not mutate the match.
func ValidatePick(m *domain.Match, leaderID, targetID string) error {
	if !m.IsLeader(leaderID) || NextPicker(m) != leaderID {
		return domain.ErrNotYourTurn
	}
	if !m.InRoster(targetID) {
		return domain.ErrInvalidTarget
	}
	if _, assigned := m.Teams[targetID]; assigned {
		return domain.ErrInvalidTarget
	}
	return nil
}
