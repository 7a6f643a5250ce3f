package cli

import (
	"time"

	"github.com/rs/zerolog"

	"cashkit/internal/builder"
	"cashkit/internal/runs"
)

// runRecorder keeps one history row in step with a flow as it moves
// through its stages. Store failures are logged rather than returned; a
// broken history must not strand a broadcast mid-flight.
type runRecorder struct {
	store  *runs.Store
	run    *runs.Run
	logger zerolog.Logger
}

func newRunRecorder(store *runs.Store, run *runs.Run, logger zerolog.Logger) *runRecorder {
	r := &runRecorder{store: store, run: run, logger: logger}
	r.save()
	return r
}

func (r *runRecorder) save() {
	r.run.UpdatedAt = time.Now().UTC()
	if err := r.store.Record(r.run); err != nil {
		r.logger.Warn().Err(err).Str("run", r.run.ID).Msg("record run")
	}
}

// note moves the run to status and appends a progress entry.
func (r *runRecorder) note(status builder.Status, text string) {
	r.run.Status = status
	r.save()
	if err := r.store.AppendProgress(r.run.ID, runs.ProgressEntry{Status: string(status), Text: text}); err != nil {
		r.logger.Warn().Err(err).Str("run", r.run.ID).Msg("append run progress")
	}
}

// finish marks the run terminal.
func (r *runRecorder) finish(status builder.Status, text string) {
	now := time.Now().UTC()
	r.run.CompletedAt = &now
	r.note(status, text)
}

// fail marks the run failed with err.
func (r *runRecorder) fail(err error) {
	r.run.Error = err.Error()
	r.finish(builder.StatusFailed, err.Error())
}
