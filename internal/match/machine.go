// Package match owns the lifecycle of active matches. A Machine is the
// only writer of its match state: every transition runs under the
// per-match mutex, so interleaved picks, votes, cancels and timer fires
// for one match serialize while different matches proceed in parallel.
package match

import (
	"context"
	"regexp"
	"strings"

	"scrims-bot/internal/domain"
	"scrims-bot/internal/draft"
	"scrims-bot/internal/events"
	"scrims-bot/internal/settle"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var lobbyIDPattern = regexp.MustCompile(`^[A-Z0-9]{4,10}$`)

func newRecordID() string { return gonanoid.Must() }

// Pick assigns target to the picking leader's team. The final pick
// advances the match to lobby setup automatically.
func (mc *Machine) Pick(ctx context.Context, leaderID, targetID string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if err := mc.ensureLocked(domain.StateDrafting); err != nil {
		return err
	}
	if err := draft.ValidatePick(mc.m, leaderID, targetID); err != nil {
		return err
	}

	mc.m.Teams[targetID] = mc.m.Teams[leaderID]
	mc.touchLocked()

	if draft.Done(mc.m) {
		mc.m.State = domain.StateLobbySetup
		mc.armTimerLocked(domain.StateLobbySetup, mc.lobbyTimeout())
		mc.saveLocked(ctx)
		mc.publishLocked("draft-complete")
		return nil
	}

	// next leader's pick clock starts now
	mc.armTimerLocked(domain.StateDrafting, mc.draftTimeout())
	mc.saveLocked(ctx)
	mc.publishLocked("pick")
	return nil
}

// SubmitLobby records the external lobby identifier. Only the
// lobby-creating leader may submit. The first valid submission moves
// the match to live; later submissions while live just overwrite the
// identifier so typos can be corrected.
func (mc *Machine) SubmitLobby(ctx context.Context, leaderID, lobbyID string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if err := mc.ensureLocked(domain.StateLobbySetup, domain.StateLive); err != nil {
		return err
	}
	if leaderID != mc.m.Leader2 {
		return domain.ErrWrongLeader
	}
	lobbyID = strings.ToUpper(strings.TrimSpace(lobbyID))
	if !lobbyIDPattern.MatchString(lobbyID) {
		return domain.ErrInvalidLobbyID
	}

	mc.m.LobbyID = lobbyID
	mc.touchLocked()

	if mc.m.State == domain.StateLobbySetup {
		mc.m.State = domain.StateLive
		mc.cancelTimerLocked()
		mc.saveLocked(ctx)
		mc.publishLocked("lobby-submitted")
		return nil
	}

	mc.saveLocked(ctx)
	mc.publishLocked("lobby-corrected")
	return nil
}

// Cancel is the leader-initiated cancellation, allowed while the match
// waits on the external lobby (no-shows). Cancelling an already
// cancelled match is a no-op.
func (mc *Machine) Cancel(ctx context.Context, leaderID, reason string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.m.State == domain.StateCancelled {
		return nil
	}
	if err := mc.ensureLocked(domain.StateLobbySetup); err != nil {
		return err
	}
	if !mc.m.IsLeader(leaderID) {
		return domain.ErrWrongLeader
	}
	if reason == "" {
		reason = "cancelled by leader"
	}
	mc.cancelLocked(ctx, reason)
	return nil
}

// VoteWinner records a leader's winner ballot. The first ballot cast
// while live moves the match to voting. Ballots stay overwritable until
// both agree; conflicting ballots park the match in the disputed
// sub-state until a ballot change or an administrative override.
func (mc *Machine) VoteWinner(ctx context.Context, leaderID string, team domain.Team) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if err := mc.ensureLocked(domain.StateLive, domain.StateVoting, domain.StateDisputed); err != nil {
		return err
	}
	if !mc.m.IsLeader(leaderID) {
		return domain.ErrWrongLeader
	}
	if !team.Valid() {
		return domain.ErrInvalidTarget
	}
	if mc.m.Winner != "" {
		// both leaders already agreed; the outcome is locked
		return domain.ErrWrongState
	}

	if mc.m.State == domain.StateLive {
		mc.m.State = domain.StateVoting
	}
	mc.m.WinnerVotes[leaderID] = team
	mc.touchLocked()

	v1, ok1 := mc.m.WinnerVotes[mc.m.Leader1]
	v2, ok2 := mc.m.WinnerVotes[mc.m.Leader2]
	cause := "winner-vote"
	switch {
	case ok1 && ok2 && v1 == v2:
		mc.m.Winner = v1
		mc.m.State = domain.StateVoting
		cause = "winner-locked"
	case ok1 && ok2:
		mc.m.State = domain.StateDisputed
		cause = "winner-disputed"
	}

	mc.saveLocked(ctx)
	mc.publishLocked(cause)
	mc.maybeAdvanceLocked(ctx)
	return nil
}

// VoteMVP records a leader's MVP ballot for any rostered player. MVP is
// resolved independently of the winner and needs both leaders to agree;
// disagreement simply leaves the ballots overwritable.
func (mc *Machine) VoteMVP(ctx context.Context, leaderID, playerID string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if err := mc.ensureLocked(domain.StateLive, domain.StateVoting, domain.StateDisputed); err != nil {
		return err
	}
	if !mc.m.IsLeader(leaderID) {
		return domain.ErrWrongLeader
	}
	if !mc.m.InRoster(playerID) {
		return domain.ErrInvalidTarget
	}
	if mc.m.MVPID != "" {
		return domain.ErrWrongState
	}

	if mc.m.State == domain.StateLive {
		mc.m.State = domain.StateVoting
	}
	mc.m.MVPVotes[leaderID] = playerID
	mc.touchLocked()

	v1, ok1 := mc.m.MVPVotes[mc.m.Leader1]
	v2, ok2 := mc.m.MVPVotes[mc.m.Leader2]
	cause := "mvp-vote"
	if ok1 && ok2 && v1 == v2 {
		mc.m.MVPID = v1
		cause = "mvp-locked"
	}

	mc.saveLocked(ctx)
	mc.publishLocked(cause)
	mc.maybeAdvanceLocked(ctx)
	return nil
}

// SubmitProof accepts the evidence artifact from the winning leader and
// moves the match into settlement.
func (mc *Machine) SubmitProof(ctx context.Context, leaderID, artifactRef string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if err := mc.ensureLocked(domain.StateProofPending); err != nil {
		return err
	}
	if leaderID != mc.m.WinningLeader() {
		return domain.ErrWrongLeader
	}
	if strings.TrimSpace(artifactRef) == "" {
		return domain.ErrInvalidTarget
	}

	mc.m.ProofRef = artifactRef
	mc.beginSettlementLocked(ctx, "proof-submitted")
	return nil
}

// ForceWinner is the administrative override that resolves a winner
// vote, including a disputed one.
func (mc *Machine) ForceWinner(ctx context.Context, team domain.Team) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if err := mc.ensureLocked(domain.StateLive, domain.StateVoting, domain.StateDisputed); err != nil {
		return err
	}
	if !team.Valid() {
		return domain.ErrInvalidTarget
	}

	mc.m.Winner = team
	mc.m.State = domain.StateVoting
	mc.touchLocked()
	mc.saveLocked(ctx)
	mc.publishLocked("winner-forced")
	mc.maybeAdvanceLocked(ctx)
	return nil
}

// ForceMVP is the administrative override for the MVP vote.
func (mc *Machine) ForceMVP(ctx context.Context, playerID string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if err := mc.ensureLocked(domain.StateLive, domain.StateVoting, domain.StateDisputed); err != nil {
		return err
	}
	if !mc.m.InRoster(playerID) {
		return domain.ErrInvalidTarget
	}

	mc.m.MVPID = playerID
	mc.touchLocked()
	mc.saveLocked(ctx)
	mc.publishLocked("mvp-forced")
	mc.maybeAdvanceLocked(ctx)
	return nil
}

// ForceCancel cancels from any non-terminal state. Idempotent on an
// already cancelled match.
func (mc *Machine) ForceCancel(ctx context.Context, reason string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.m.State == domain.StateCancelled {
		return nil
	}
	if mc.frozen {
		return domain.ErrConsistency
	}
	if mc.settling || mc.m.State == domain.StateSettling {
		return domain.ErrBusy
	}
	if mc.m.State.Terminal() {
		return domain.ErrWrongState
	}
	if reason == "" {
		reason = "cancelled by admin"
	}
	mc.cancelLocked(ctx, reason)
	return nil
}

// RetrySettlement re-runs a settlement that exhausted its retries and
// left the match held in settling.
func (mc *Machine) RetrySettlement(ctx context.Context) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.frozen {
		return domain.ErrConsistency
	}
	if mc.settling {
		return domain.ErrBusy
	}
	if mc.m.State != domain.StateSettling {
		return domain.ErrWrongState
	}
	mc.beginSettlementLocked(ctx, "settlement-retry")
	return nil
}

// Snapshot returns a copy of the current match state.
func (mc *Machine) Snapshot() domain.Match {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.m.Snapshot()
}

// ensureLocked rejects calls on frozen, busy, terminal, or wrong-state
// matches. Validation never mutates state.
func (mc *Machine) ensureLocked(allowed ...domain.MatchState) error {
	if mc.frozen {
		return domain.ErrConsistency
	}
	if mc.settling || mc.m.State == domain.StateSettling {
		return domain.ErrBusy
	}
	for _, s := range allowed {
		if mc.m.State == s {
			return nil
		}
	}
	return domain.ErrWrongState
}

// maybeAdvanceLocked moves past voting once both the winner and MVP are
// resolved: to proof collection, or straight to settlement when the
// guild does not require proof.
func (mc *Machine) maybeAdvanceLocked(ctx context.Context) {
	if mc.m.Winner == "" || mc.m.MVPID == "" {
		return
	}
	if mc.m.Config.ProofRequired {
		mc.m.State = domain.StateProofPending
		mc.touchLocked()
		mc.armTimerLocked(domain.StateProofPending, mc.proofTimeout())
		mc.saveLocked(ctx)
		mc.publishLocked("proof-required")
		return
	}
	mc.beginSettlementLocked(ctx, "no-proof-required")
}

// cancelLocked is the single cancellation path shared by leader
// cancels, admin cancels and timeout-forced cancels.
func (mc *Machine) cancelLocked(ctx context.Context, reason string) {
	mc.cancelTimerLocked()
	mc.m.State = domain.StateCancelled
	mc.m.CancelReason = reason
	mc.touchLocked()

	rec := mc.recordLocked()
	rec.Cancelled = true
	rec.Reason = reason
	if err := mc.hist.Record(ctx, rec); err != nil {
		mc.logger.Error().Err(err).Msg("failed to record cancelled match")
	}

	mc.saveLocked(ctx)
	mc.publishLocked("cancelled: " + reason)
	mc.registry.release(mc)
}

func (mc *Machine) recordLocked() domain.MatchRecord {
	snap := mc.m.Snapshot()
	return domain.MatchRecord{
		ID:          newRecordID(),
		GuildID:     snap.GuildID,
		MatchSeq:    snap.Seq,
		Roster:      snap.Roster,
		Teams:       snap.Teams,
		Winner:      snap.Winner,
		MVPID:       snap.MVPID,
		Deltas:      snap.Deltas,
		ProofRef:    snap.ProofRef,
		CompletedAt: mc.now(),
	}
}

func (mc *Machine) touchLocked() {
	mc.m.LastActivityAt = mc.now()
}

func (mc *Machine) saveLocked(ctx context.Context) {
	if err := mc.store.Save(ctx, mc.m); err != nil {
		mc.logger.Error().Err(err).
			Str("guild_id", mc.m.GuildID).
			Int64("seq", mc.m.Seq).
			Msg("failed to persist match state")
	}
}

func (mc *Machine) publishLocked(cause string) {
	events.Publish(mc.bus, events.MatchStateChanged{
		GuildID:  mc.m.GuildID,
		MatchSeq: mc.m.Seq,
		State:    mc.m.State,
		Cause:    cause,
		Snapshot: mc.m.Snapshot(),
	})
	mc.logger.Info().
		Str("guild_id", mc.m.GuildID).
		Int64("seq", mc.m.Seq).
		Str("state", string(mc.m.State)).
		Str("cause", cause).
		Msg("match state changed")
}

// beginSettlementLocked computes the deltas, publishes the settling
// state, and hands the atomic batch to a background goroutine.
func (mc *Machine) beginSettlementLocked(ctx context.Context, cause string) {
	mc.cancelTimerLocked()
	mc.m.Deltas = settle.ComputeDeltas(mc.m, mc.m.Config)
	mc.m.State = domain.StateSettling
	mc.touchLocked()
	mc.saveLocked(ctx)
	mc.publishLocked(cause)

	mc.settling = true
	go mc.runSettlement()
}
