package builder

import (
	"github.com/btcsuite/btcd/wire"
)

// EventType identifies a message from the worker to the owning context.
type EventType string

const (
	// EventStatusChanged reports a Status transition.
	EventStatusChanged EventType = "status_changed"
	// EventProgress reports the 1-based count of transactions built so far.
	EventProgress EventType = "progress"
	// EventResultsReady delivers the complete result sequence. It is sent
	// exactly once, after production ends naturally, and never after an
	// interruption or a failure.
	EventResultsReady EventType = "results_ready"
	// EventFailed reports the error that ended the run.
	EventFailed EventType = "failed"
	// EventFinished is always the last event of a run, whatever the
	// outcome. The event channel closes after it.
	EventFinished EventType = "finished"
)

// Event is a single message on a run's channel. Events arrive in emission
// order; none are dropped.
type Event struct {
	Type     EventType
	Status   Status        // EventStatusChanged
	Progress int           // EventProgress
	Results  []*wire.MsgTx // EventResultsReady
	Err      error         // EventFailed
}
