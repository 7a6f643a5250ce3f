// Package runs keeps the history of transaction-producing runs. Every
// consolidation, upload and outbox broadcast leaves a row here together
// with its progress trail, and live watchers follow changes through the
// broker.
package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cashkit/internal/builder"
	"cashkit/pkg/db"
)

// Kind names the operation a run performed.
type Kind string

const (
	KindConsolidate Kind = "consolidate"
	KindUpload      Kind = "upload"
	KindOutbox      Kind = "outbox"
)

// ProgressEntry is one step of a run's progress trail.
type ProgressEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status,omitempty"`
	Text      string    `json:"text,omitempty"`
}

// Run is the persisted record of one run.
type Run struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Status      builder.Status  `json:"status"`
	Description string          `json:"description,omitempty"`
	TxCount     int             `json:"tx_count"`
	TotalIn     btcutil.Amount  `json:"total_in"`
	TotalOut    btcutil.Amount  `json:"total_out"`
	Fee         btcutil.Amount  `json:"fee"`
	TxIDs       []string        `json:"txids,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Progress    []ProgressEntry `json:"progress,omitempty"`
}

// NewRun starts a record for a run that has not begun yet.
func NewRun(kind Kind, description string) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:          uuid.NewString(),
		Kind:        kind,
		Status:      builder.StatusNotStarted,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy safe to hand to watchers.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	clone := *r
	if r.TxIDs != nil {
		clone.TxIDs = append([]string(nil), r.TxIDs...)
	}
	if r.Progress != nil {
		clone.Progress = append([]ProgressEntry(nil), r.Progress...)
	}
	if r.CompletedAt != nil {
		ts := *r.CompletedAt
		clone.CompletedAt = &ts
	}
	return &clone
}

// EventType labels a store change.
type EventType string

const (
	EventRecorded EventType = "recorded"
	EventProgress EventType = "progress"
	EventDeleted  EventType = "deleted"
)

// Event describes one store change. Run is populated for recorded
// events, Progress for progress events.
type Event struct {
	Type     EventType
	RunID    string
	Run      *Run
	Progress *ProgressEntry
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Kind   Kind
	Status builder.Status
	Limit  int
}

// ErrRunNotFound is returned when a run id matches no row.
var ErrRunNotFound = errors.New("run not found")

// maxProgressEntries caps the trail per run; older entries are dropped.
const maxProgressEntries = 200

const timeFormat = time.RFC3339Nano

// Store persists runs and their progress trails.
type Store struct {
	db     *db.DB
	logger zerolog.Logger
	broker *Broker[Event]
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore wraps the database handle. The caller keeps ownership of the
// handle; Close only shuts down the watcher broker.
func NewStore(database *db.DB, opts ...Option) *Store {
	s := &Store{
		db:     database,
		logger: zerolog.Nop(),
		broker: NewBroker[Event](0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close shuts down the watcher broker.
func (s *Store) Close() {
	s.broker.Shutdown()
}

// Watch subscribes to store changes until ctx is done.
func (s *Store) Watch(ctx context.Context) <-chan Event {
	return s.broker.Subscribe(ctx)
}

// Record upserts the run and notifies watchers. CreatedAt and UpdatedAt
// are filled in when zero.
func (s *Store) Record(run *Run) error {
	if run == nil || strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
	txids, err := json.Marshal(run.TxIDs)
	if err != nil {
		return fmt.Errorf("encode txids: %w", err)
	}
	completed := any(nil)
	if run.CompletedAt != nil && !run.CompletedAt.IsZero() {
		completed = run.CompletedAt.UTC().Format(timeFormat)
	}

	_, err = s.db.Write.Exec(`
		INSERT INTO runs (
			id, kind, status, description, tx_count, total_in, total_out,
			fee, txids, error, created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			status = excluded.status,
			description = excluded.description,
			tx_count = excluded.tx_count,
			total_in = excluded.total_in,
			total_out = excluded.total_out,
			fee = excluded.fee,
			txids = excluded.txids,
			error = excluded.error,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at`,
		run.ID,
		string(run.Kind),
		string(run.Status),
		run.Description,
		run.TxCount,
		int64(run.TotalIn),
		int64(run.TotalOut),
		int64(run.Fee),
		string(txids),
		nullIfEmpty(run.Error),
		run.CreatedAt.UTC().Format(timeFormat),
		run.UpdatedAt.UTC().Format(timeFormat),
		completed,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}

	s.logger.Debug().Str("run", run.ID).Str("kind", string(run.Kind)).
		Str("status", string(run.Status)).Msg("run recorded")
	s.broker.Publish(Event{Type: EventRecorded, RunID: run.ID, Run: run.Clone()})
	return nil
}

// AppendProgress adds one entry to the run's trail, bumps the run's
// updated time and notifies watchers. Trails are capped; the oldest
// entries fall off first.
func (s *Store) AppendProgress(runID string, entry ProgressEntry) error {
	id := strings.TrimSpace(runID)
	if id == "" {
		return fmt.Errorf("run id is required")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	res, err := s.db.Write.Exec(`UPDATE runs SET updated_at = ? WHERE id = ?`,
		entry.Timestamp.UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("touch run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}

	_, err = s.db.Write.Exec(`
		INSERT INTO run_progress (run_id, ts, status, text) VALUES (?, ?, ?, ?)`,
		id, entry.Timestamp.UTC().Format(timeFormat), entry.Status, entry.Text)
	if err != nil {
		return fmt.Errorf("append progress for run %s: %w", id, err)
	}
	_, err = s.db.Write.Exec(`
		DELETE FROM run_progress WHERE run_id = ? AND id NOT IN (
			SELECT id FROM run_progress WHERE run_id = ? ORDER BY id DESC LIMIT ?)`,
		id, id, maxProgressEntries)
	if err != nil {
		return fmt.Errorf("trim progress for run %s: %w", id, err)
	}

	s.broker.Publish(Event{Type: EventProgress, RunID: id, Progress: &entry})
	return nil
}

// List returns runs matching the filter, most recently updated first.
func (s *Store) List(filter Filter) ([]*Run, error) {
	query := `
		SELECT id, kind, status, description, tx_count, total_in, total_out,
			fee, txids, error, created_at, updated_at, completed_at
		FROM runs`
	var conds []string
	var args []any
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := s.db.Read.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].UpdatedAt.Equal(runs[j].UpdatedAt) {
			return runs[i].UpdatedAt.After(runs[j].UpdatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

// Get returns one run with its full progress trail.
func (s *Store) Get(id string) (*Run, error) {
	row := s.db.Read.QueryRow(`
		SELECT id, kind, status, description, tx_count, total_in, total_out,
			fee, txids, error, created_at, updated_at, completed_at
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Read.Query(`
		SELECT ts, status, text FROM run_progress WHERE run_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("load progress for run %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var ts, status, text string
		if err := rows.Scan(&ts, &status, &text); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		stamp, err := time.Parse(timeFormat, ts)
		if err != nil {
			return nil, fmt.Errorf("parse progress timestamp: %w", err)
		}
		run.Progress = append(run.Progress, ProgressEntry{
			Timestamp: stamp, Status: status, Text: text,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}
	return run, nil
}

// Delete removes the run and its trail. It reports whether a row existed.
func (s *Store) Delete(id string) (bool, error) {
	if _, err := s.db.Write.Exec(`DELETE FROM run_progress WHERE run_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete progress for run %s: %w", id, err)
	}
	res, err := s.db.Write.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	s.broker.Publish(Event{Type: EventDeleted, RunID: id})
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run       Run
		kind      string
		status    string
		totalIn   int64
		totalOut  int64
		fee       int64
		txids     string
		errText   sql.NullString
		created   string
		updated   string
		completed sql.NullString
	)
	err := row.Scan(&run.ID, &kind, &status, &run.Description, &run.TxCount,
		&totalIn, &totalOut, &fee, &txids, &errText, &created, &updated, &completed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Kind = Kind(kind)
	run.Status = builder.Status(status)
	run.TotalIn = btcutil.Amount(totalIn)
	run.TotalOut = btcutil.Amount(totalOut)
	run.Fee = btcutil.Amount(fee)
	run.Error = errText.String
	if txids != "" {
		if err := json.Unmarshal([]byte(txids), &run.TxIDs); err != nil {
			return nil, fmt.Errorf("decode txids: %w", err)
		}
	}
	if run.CreatedAt, err = time.Parse(timeFormat, created); err != nil {
		return nil, fmt.Errorf("parse created timestamp: %w", err)
	}
	if run.UpdatedAt, err = time.Parse(timeFormat, updated); err != nil {
		return nil, fmt.Errorf("parse updated timestamp: %w", err)
	}
	if completed.Valid {
		ts, err := time.Parse(timeFormat, completed.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed timestamp: %w", err)
		}
		run.CompletedAt = &ts
	}
	return &run, nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
