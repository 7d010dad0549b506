package events

import "scrims-bot/internal/domain"

// MatchStateChanged is emitted after every state transition with enough
// data for the presentation layer to redraw.
type MatchStateChanged struct {
	GuildID  string
	MatchSeq int64
	State    domain.MatchState
	Cause    string
	Snapshot domain.Match
}

// QueueChanged is emitted after every queue mutation.
type QueueChanged struct {
	GuildID string
	Members []string
	IsFull  bool
}

// RosterReady is emitted exactly once when a guild queue fills.
type RosterReady struct {
	GuildID string
	Roster  []string
}

// PlayerTimedOut is emitted when a queue ban is applied to a player.
type PlayerTimedOut struct {
	GuildID  string
	PlayerID string
	Until    string
	Reason   string
}
