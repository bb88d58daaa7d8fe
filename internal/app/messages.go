package app

import (
	"fmt"
	"time"

	"github.com/cgdops/rtaingest/internal/db"
)

// Snapshot is one poll of the ledger: the newest runs and state transitions.
type Snapshot struct {
	Runs        []db.RunSummary
	Transitions []db.StateTransition
	At          time.Time
}

// SnapshotMsg delivers a ledger poll result to the dashboard.
type SnapshotMsg struct {
	Snapshot Snapshot
}

// GeneralErrorMsg signals a poll failure.
type GeneralErrorMsg struct {
	Err error
}

// tickMsg schedules the next ledger poll.
type tickMsg time.Time

func NewSnapshot(s Snapshot) SnapshotMsg {
	return SnapshotMsg{Snapshot: s}
}

func NewError(err error) GeneralErrorMsg {
	return GeneralErrorMsg{Err: err}
}

func (e GeneralErrorMsg) Error() string {
	return e.Err.Error()
}

func (s SnapshotMsg) String() string {
	return fmt.Sprintf("Snapshot: %d runs, %d transitions", len(s.Snapshot.Runs), len(s.Snapshot.Transitions))
}
func (e GeneralErrorMsg) String() string { return fmt.Sprintf("GeneralError: %s", e.Err) }
