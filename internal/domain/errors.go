// Package domain - errors.go
// Comparable error values shared across the core so callers can branch
// with errors.Is and the presentation layer can map kinds to messages.
package domain

// derr is a lightweight comparable error type.
type derr string

func (e derr) Error() string { return string(e) }

var (
	ErrAlreadyQueued  = derr("player already queued")
	ErrTimedOut       = derr("player is timed out")
	ErrNotInQueue     = derr("player not in queue")
	ErrNotYourTurn    = derr("not your pick")
	ErrInvalidTarget  = derr("target not draftable")
	ErrWrongState     = derr("wrong match state")
	ErrWrongLeader    = derr("wrong leader")
	ErrBusy           = derr("match busy")
	ErrInvalidLobbyID = derr("invalid lobby id")
	ErrMatchNotFound  = derr("match not found")
	ErrPlayerNotFound = derr("player not found")

	// ErrConsistency marks a fatal internal-consistency violation; the
	// affected match is frozen pending manual resolution.
	ErrConsistency = derr("internal consistency violation")
)
