// Package rank derives rank tiers from rating. Tiers are computed on
// read from points and leaderboard position rather than stored, so a
// stored tier can never drift from the stored rating.
package rank

import "scrims-bot/internal/constants"

type Tier string

const (
	Bronze    Tier = "BRONZE"
	Silver    Tier = "SILVER"
	Gold      Tier = "GOLD"
	Platinum  Tier = "PLATINUM"
	Diamond   Tier = "DIAMOND"
	Ascendant Tier = "ASCENDANT"
	Immortal  Tier = "IMMORTAL"
	Radiant   Tier = "RADIANT"
)

type threshold struct {
	tier   Tier
	points int
}

// Ordered descending. Radiant is positional (top-N of the leaderboard)
// and has no points threshold.
var thresholds = []threshold{
	{Immortal, 2200},
	{Ascendant, 1800},
	{Diamond, 1500},
	{Platinum, 1200},
	{Gold, 1000},
	{Silver, 600},
	{Bronze, 0},
}

// FromPoints returns the threshold tier for a rating, ignoring the
// positional Radiant tier.
func FromPoints(points int) Tier {
	for _, t := range thresholds {
		if points >= t.points {
			return t.tier
		}
	}
	return Bronze
}

// Resolve returns the effective tier given a rating and a 1-based
// leaderboard position. The top-N players are Radiant regardless of
// points; position 0 means unranked (no matches played yet).
func Resolve(points, position int) Tier {
	if position > 0 && position <= constants.RadiantTopN {
		return Radiant
	}
	return FromPoints(points)
}

// Next returns the next threshold tier above the given rating and the
// points still needed to reach it. ok is false at the top threshold,
// where only the positional Radiant tier remains.
func Next(points int) (tier Tier, needed int, ok bool) {
	for i := len(thresholds) - 1; i >= 0; i-- {
		if thresholds[i].points > points {
			return thresholds[i].tier, thresholds[i].points - points, true
		}
	}
	return "", 0, false
}
