package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cashkit/config"
	"cashkit/internal/outbox"
	"cashkit/internal/runs"
)

// WatchOutbox broadcasts externally signed transactions dropped into dir
// until ctx is cancelled. An empty dir falls back to the configured
// outbox directory.
func WatchOutbox(ctx context.Context, dir string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if dir == "" {
		dir = app.Settings.OutboxDir
	}
	if dir == "" {
		dir, err = config.GetOutboxDir()
		if err != nil {
			return err
		}
	}

	client, err := app.nodeClient()
	if err != nil {
		return err
	}
	defer client.Close()

	store := runs.NewStore(app.DB, runs.WithLogger(app.Logger))
	defer store.Close()

	fmt.Printf("Watching %s for %s files (press ctrl+c to stop)\n", dir, outbox.FileExt)
	watcher := outbox.New(dir, client,
		outbox.WithLogger(app.Logger.With().Str("component", "outbox").Logger()),
		outbox.WithStore(store),
		outbox.WithResultFunc(func(res outbox.Result) {
			ts := time.Now().Format("15:04:05")
			if res.Err != nil {
				fmt.Printf("%s  %-30s failed: %v\n", ts, res.File, res.Err)
				return
			}
			fmt.Printf("%s  %-30s broadcast %s\n", ts, res.File, res.TxID)
		}))
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
