package builder

// Status is the lifecycle state of a build run. Exactly one status holds
// at any time; transitions are monotonic except for the terminal set,
// which ends the run.
type Status string

const (
	StatusNotStarted  Status = "not_started"
	StatusSelecting   Status = "selecting"
	StatusBuilding    Status = "building"
	StatusInterrupted Status = "interrupted"
	StatusFinished    Status = "finished"
	StatusNoResult    Status = "no_result"
	StatusFailed      Status = "failed"
)

// Display returns the status line shown to the user.
func (s Status) Display() string {
	switch s {
	case StatusNotStarted:
		return "not started"
	case StatusSelecting:
		return "selecting coins..."
	case StatusBuilding:
		return "building transactions..."
	case StatusInterrupted:
		return "cancelled"
	case StatusFinished:
		return "finished building transactions"
	case StatusNoResult:
		return "finished without generating any transactions"
	case StatusFailed:
		return "failed building transactions"
	default:
		return string(s)
	}
}

// Terminal reports whether the status ends a run.
func (s Status) Terminal() bool {
	switch s {
	case StatusInterrupted, StatusFinished, StatusNoResult, StatusFailed:
		return true
	}
	return false
}
