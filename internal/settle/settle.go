// Package settle computes point deltas for a resolved match. The
// computation is pure; applying the deltas is the repository's job.
package settle

import "scrims-bot/internal/domain"

// ComputeDeltas maps every rostered player to their point change:
// winners get +PointsWin, losers get PointsLoss (a negative value), the
// MVP gains PointsMVP on top, and a proof penalty is deducted from the
// winning leader alone.
func ComputeDeltas(m *domain.Match, cfg domain.GuildConfig) map[string]int {
	deltas := make(map[string]int, len(m.Roster))

	for _, id := range m.Roster {
		if m.Teams[id] == m.Winner {
			deltas[id] = cfg.PointsWin
		} else {
			deltas[id] = cfg.PointsLoss
		}
	}

	if m.MVPID != "" {
		deltas[m.MVPID] += cfg.PointsMVP
	}

	if m.ProofPenalty {
		if leader := m.WinningLeader(); leader != "" {
			deltas[leader] -= cfg.NoProofPenalty
		}
	}

	return deltas
}
