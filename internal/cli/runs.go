package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"cashkit/config"
	"cashkit/internal/builder"
	"cashkit/internal/runs"
	"cashkit/internal/timeutil"
	"cashkit/internal/wallet"
)

// RunListOptions filter the run history table.
type RunListOptions struct {
	Kind   string
	Status string
	Limit  int
}

// ListRuns prints the run history, most recently updated first.
func ListRuns(opts RunListOptions) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	store := runs.NewStore(app.DB, runs.WithLogger(app.Logger))
	defer store.Close()

	list, err := store.List(runs.Filter{
		Kind:   runs.Kind(opts.Kind),
		Status: builder.Status(opts.Status),
		Limit:  opts.Limit,
	})
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	now := time.Now()
	fmt.Printf("%-36s %-11s %-11s %3s %16s %-14s %s\n",
		"ID", "KIND", "STATUS", "TXS", "TOTAL OUT", "UPDATED", "DESCRIPTION")
	fmt.Printf("%-36s %-11s %-11s %3s %16s %-14s %s\n",
		strings.Repeat("-", 36), strings.Repeat("-", 11), strings.Repeat("-", 11),
		strings.Repeat("-", 3), strings.Repeat("-", 16), strings.Repeat("-", 14),
		strings.Repeat("-", 11))
	for _, run := range list {
		fmt.Printf("%-36s %-11s %-11s %3d %16s %-14s %s\n",
			run.ID, run.Kind, run.Status, run.TxCount,
			wallet.FormatAmount(run.TotalOut),
			timeutil.Relative(run.UpdatedAt, now), orDash(run.Description))
	}
	return nil
}

// ShowRun prints one run with its transaction ids and progress trail.
func ShowRun(id string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	store := runs.NewStore(app.DB, runs.WithLogger(app.Logger))
	defer store.Close()

	run, err := store.Get(id)
	if err != nil {
		return err
	}
	printRunDetails(run)
	return nil
}

// DeleteRun removes a run and its progress trail from the history.
func DeleteRun(id string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	store := runs.NewStore(app.DB, runs.WithLogger(app.Logger))
	defer store.Close()

	deleted, err := store.Delete(id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("no run found with id %s", id)
	}
	fmt.Printf("Deleted run %s\n", id)
	return nil
}

func printRunDetails(run *runs.Run) {
	fmt.Printf("ID:           %s\n", run.ID)
	fmt.Printf("Kind:         %s\n", run.Kind)
	fmt.Printf("Status:       %s\n", run.Status.Display())
	fmt.Printf("Description:  %s\n", orDash(run.Description))
	fmt.Printf("Transactions: %d\n", run.TxCount)
	fmt.Printf("Total in:     %s\n", wallet.FormatAmount(run.TotalIn))
	fmt.Printf("Total out:    %s\n", wallet.FormatAmount(run.TotalOut))
	fmt.Printf("Fee:          %s\n", wallet.FormatAmount(run.Fee))
	fmt.Printf("Created:      %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:      %s\n", run.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	if run.CompletedAt != nil {
		fmt.Printf("Completed:    %s (took %s)\n",
			run.CompletedAt.Local().Format("2006-01-02 15:04:05"),
			timeutil.Compact(run.CompletedAt.Sub(run.CreatedAt)))
	} else {
		fmt.Printf("Completed:    -\n")
	}
	if run.Error != "" {
		fmt.Printf("Error:        %s\n", run.Error)
	}

	if len(run.TxIDs) > 0 {
		fmt.Printf("\nTransaction IDs:\n")
		for _, txid := range run.TxIDs {
			fmt.Printf("  %s\n", txid)
		}
	}

	if len(run.Progress) > 0 {
		fmt.Printf("\nProgress:\n")
		for _, entry := range run.Progress {
			fmt.Printf("  - %s [%s] %s\n",
				entry.Timestamp.Local().Format("2006-01-02 15:04:05"),
				entry.Status, entry.Text)
		}
	}
}

// WatchRuns follows run activity until ctx is cancelled. Changes made in
// this process arrive through the store's broker; changes from other
// processes are picked up by rescanning whenever the database file is
// written (plus a slow safety ticker, since WAL checkpoints do not always
// touch the main file).
func WatchRuns(ctx context.Context) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	store := runs.NewStore(app.DB, runs.WithLogger(app.Logger))
	defer store.Close()

	dbPath, err := config.GetDatabasePath()
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start database watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(dbPath)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(dbPath), err)
	}

	w := &runWatcher{seen: make(map[string]time.Time)}
	w.prime(store)

	events := store.Watch(ctx)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	var rescan <-chan time.Time
	base := filepath.Base(dbPath)

	fmt.Println("Watching run history (press ctrl+c to stop)")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case fe, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if strings.HasPrefix(filepath.Base(fe.Name), base) &&
				fe.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				rescan = time.After(250 * time.Millisecond)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			app.Logger.Warn().Err(err).Msg("database watcher error")
		case <-rescan:
			rescan = nil
			w.rescan(store, app)
		case <-ticker.C:
			w.rescan(store, app)
		}
	}
}

// runWatcher tracks which run updates have already been printed so the
// broker and rescan paths do not double-report.
type runWatcher struct {
	seen map[string]time.Time
}

func (w *runWatcher) prime(store *runs.Store) {
	list, err := store.List(runs.Filter{})
	if err != nil {
		return
	}
	for _, run := range list {
		w.seen[run.ID] = run.UpdatedAt
	}
}

func (w *runWatcher) handle(ev runs.Event) {
	switch ev.Type {
	case runs.EventRecorded:
		if ev.Run != nil {
			w.printRun(ev.Run)
		}
	case runs.EventProgress:
		if ev.Progress != nil {
			if ev.Progress.Timestamp.After(w.seen[ev.RunID]) {
				w.seen[ev.RunID] = ev.Progress.Timestamp
			}
			fmt.Printf("%s  %-36s   - [%s] %s\n",
				ev.Progress.Timestamp.Local().Format("15:04:05"),
				ev.RunID, ev.Progress.Status, ev.Progress.Text)
		}
	case runs.EventDeleted:
		w.printDeleted(ev.RunID)
	}
}

func (w *runWatcher) rescan(store *runs.Store, app *App) {
	list, err := store.List(runs.Filter{})
	if err != nil {
		app.Logger.Warn().Err(err).Msg("rescan run history")
		return
	}
	current := make(map[string]bool, len(list))
	for _, run := range list {
		current[run.ID] = true
		w.printRun(run)
	}
	for id := range w.seen {
		if !current[id] {
			w.printDeleted(id)
		}
	}
}

func (w *runWatcher) printRun(run *runs.Run) {
	if !run.UpdatedAt.After(w.seen[run.ID]) {
		return
	}
	w.seen[run.ID] = run.UpdatedAt
	fmt.Printf("%s  %-36s %-11s %-11s %s\n",
		run.UpdatedAt.Local().Format("15:04:05"),
		run.ID, run.Kind, run.Status, orDash(run.Description))
}

func (w *runWatcher) printDeleted(id string) {
	if _, ok := w.seen[id]; !ok {
		return
	}
	delete(w.seen, id)
	fmt.Printf("%s  %-36s deleted\n", time.Now().Format("15:04:05"), id)
}
