// Package outbox watches a directory for signed transaction files
// dropped by an external or offline signer, broadcasts them and files
// each one under sent/ or failed/ next to where it was found.
package outbox

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"cashkit/internal/builder"
	"cashkit/internal/runs"
)

const (
	// FileExt is the extension the watcher picks up. Files should be
	// renamed into the directory atomically; a file still being written
	// when the settle delay expires is filed under failed/.
	FileExt = ".txn"

	// SentDirName and FailedDirName are created inside the watched
	// directory.
	SentDirName   = "sent"
	FailedDirName = "failed"

	// settleDelay gives the writer time to finish after the event fires.
	settleDelay = 100 * time.Millisecond
)

// TxBroadcaster sends one raw transaction and reports its id. The chain
// client satisfies it.
type TxBroadcaster interface {
	Broadcast(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error)
}

// Result reports the outcome for one file.
type Result struct {
	// File is the base name of the processed file.
	File string
	// TxID is set when the broadcast was accepted.
	TxID string
	// Err is set when parsing or broadcasting failed.
	Err error
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// WithStore records a run entry per processed file.
func WithStore(store *runs.Store) Option {
	return func(w *Watcher) { w.store = store }
}

// WithResultFunc reports each processed file.
func WithResultFunc(fn func(Result)) Option {
	return func(w *Watcher) { w.onResult = fn }
}

// Watcher watches one outbox directory.
type Watcher struct {
	dir      string
	client   TxBroadcaster
	store    *runs.Store
	logger   zerolog.Logger
	onResult func(Result)

	// modTimes debounces duplicate events for the same write.
	modTimes map[string]time.Time
}

// New prepares a watcher over dir. Run starts it.
func New(dir string, client TxBroadcaster, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		client:   client,
		logger:   zerolog.Nop(),
		modTimes: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes the files already in the directory, then watches for new
// ones until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	for _, sub := range []string{"", SentDirName, FailedDirName} {
		if err := os.MkdirAll(filepath.Join(w.dir, sub), 0o755); err != nil {
			return fmt.Errorf("create outbox directory: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create outbox watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	// Sweep files that were dropped before the watch started.
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read outbox directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), FileExt) {
			continue
		}
		w.process(ctx, filepath.Join(w.dir, entry.Name()))
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(event.Name), FileExt) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			stat, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			if last, seen := w.modTimes[event.Name]; seen && !stat.ModTime().After(last) {
				continue
			}
			w.modTimes[event.Name] = stat.ModTime()

			select {
			case <-time.After(settleDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			w.process(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("outbox watcher error")
		}
	}
}

// process broadcasts one file and moves it to its outcome directory. A
// cancelled broadcast leaves the file in place for the next run.
func (w *Watcher) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	base := filepath.Base(path)

	tx, err := parseTxFile(path)
	if err != nil {
		w.finish(path, Result{File: base, Err: err})
		return
	}

	hash, err := w.client.Broadcast(ctx, tx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.finish(path, Result{File: base, Err: fmt.Errorf("broadcast rejected: %w", err)})
		return
	}
	w.finish(path, Result{File: base, TxID: hash.String()})
}

func (w *Watcher) finish(path string, result Result) {
	outcome := SentDirName
	if result.Err != nil {
		outcome = FailedDirName
	}
	if err := moveTo(path, filepath.Join(w.dir, outcome)); err != nil {
		w.logger.Error().Err(err).Str("file", result.File).Msg("move outbox file")
	}
	delete(w.modTimes, path)

	if result.Err != nil {
		w.logger.Warn().Err(result.Err).Str("file", result.File).Msg("outbox file failed")
	} else {
		w.logger.Info().Str("file", result.File).Str("txid", result.TxID).
			Msg("outbox transaction broadcast")
	}
	w.record(result)
	if w.onResult != nil {
		w.onResult(result)
	}
}

func (w *Watcher) record(result Result) {
	if w.store == nil {
		return
	}
	run := runs.NewRun(runs.KindOutbox, result.File)
	now := time.Now().UTC()
	run.CompletedAt = &now
	if result.Err != nil {
		run.Status = builder.StatusFailed
		run.Error = result.Err.Error()
	} else {
		run.Status = builder.StatusFinished
		run.TxCount = 1
		run.TxIDs = []string{result.TxID}
	}
	if err := w.store.Record(run); err != nil {
		w.logger.Error().Err(err).Str("file", result.File).Msg("record outbox run")
	}
}

// parseTxFile reads a serialized transaction, hex-encoded or raw.
func parseTxFile(path string) (*wire.MsgTx, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	raw := content
	if decoded, err := hex.DecodeString(strings.TrimSpace(string(content))); err == nil {
		raw = decoded
	}
	if len(raw) == 0 {
		return nil, errors.New("empty transaction file")
	}
	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("parse transaction: %w", err)
	}
	return tx, nil
}

// moveTo renames the file into dir, keeping the base name unless it is
// already taken.
func moveTo(path, dir string) error {
	target := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(target); err == nil {
		stamp := time.Now().UTC().Format("20060102T150405.000000000Z")
		target = filepath.Join(dir, stamp+"-"+filepath.Base(path))
	}
	return os.Rename(path, target)
}
