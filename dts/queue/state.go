// Package queue implements the per-queue state machine and manager
// loop described in spec.md §4.5/§4.6: the entity that gives a node
// its pipeline behavior, orchestrating a file's hop-by-hop journey.
package queue

import "fmt"

// State is a queue's activeSem value. The reference treats activeSem
// as a semaphore; per the §9 design note we model it as a mutex-
// guarded enum instead (see Queue.active / Queue's sync.Cond).
type State int

const (
	// Paused is a queue not accepting or forwarding transfers.
	Paused State = iota
	// Running is a queue actively able to accept work.
	Running
	// Waiting is a queue manager blocked on its count semaphore (idle, empty spool).
	Waiting
	// Active is a queue manager currently handling one file's handshake.
	Active
	// Respawn requests a manager-goroutine restart after a crash.
	Respawn
	// Respawning marks a manager goroutine mid-restart.
	Respawning
	// Killed marks a manager goroutine that will not restart.
	Killed
	// Shutdown is a deliberately high sentinel (spec.md §4.5) so a
	// concurrent decrement of a true semaphore could never land on it
	// by accident; kept here purely for wire/log fidelity, since our
	// State is a plain enum and cannot be "decremented" into anything.
	Shutdown State = 90
)

func (s State) String() string {
	switch s {
	case Paused:
		return "PAUSED"
	case Running:
		return "RUNNING"
	case Waiting:
		return "WAITING"
	case Active:
		return "ACTIVE"
	case Respawn:
		return "RESPAWN"
	case Respawning:
		return "RESPAWNING"
	case Killed:
		return "KILLED"
	case Shutdown:
		return "SHUTDOWN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IsAccepting reports whether a queue in this state may accept a new
// incoming transfer (spec.md §4.5 invariant (v), §4.5 back-pressure).
func (s State) IsAccepting() bool {
	switch s {
	case Running, Waiting, Active:
		return true
	default:
		return false
	}
}
