package cli

import (
	"fmt"
	"time"

	"cashkit/internal/runs"
	"cashkit/internal/timeutil"
	"cashkit/pkg/migration"
)

// ShowStatus prints a one-screen summary of the installation. It never
// dials the node; 'ck doctor' and 'ck node test' do that.
func ShowStatus() error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	keys, err := app.keyStore().Addresses()
	if err != nil {
		return err
	}

	tls := "TLS disabled"
	if !app.Settings.Node.DisableTLS {
		tls = "TLS enabled"
	}

	fmt.Printf("cashkit on %s\n\n", app.Settings.Network)
	fmt.Printf("Node:     %s (%s)\n", orDash(app.Settings.Node.Host), tls)
	fmt.Printf("Keys:     %d\n", len(keys))
	if version, err := migration.NewRunner(app.DB.Write).Version(); err == nil {
		fmt.Printf("Schema:   %d\n", version)
	}

	store := runs.NewStore(app.DB, runs.WithLogger(app.Logger))
	defer store.Close()
	if last, err := store.List(runs.Filter{Limit: 1}); err == nil && len(last) > 0 {
		run := last[0]
		fmt.Printf("Last run: %s %s, %s\n", run.Kind, run.Status, timeutil.Relative(run.UpdatedAt, time.Now()))
	}

	fmt.Printf("\nRun 'ck doctor' for a full health check, 'ck --help' for commands.\n")
	return nil
}
