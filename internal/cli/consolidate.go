package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/charmbracelet/huh"

	"cashkit/internal/builder"
	"cashkit/internal/consolidate"
	"cashkit/internal/forms"
	"cashkit/internal/runs"
	"cashkit/internal/upload"
	"cashkit/internal/wallet"
)

// RunConsolidation walks the consolidation flow end to end: wizard, coin
// selection, build, sign, review, broadcast, history.
func RunConsolidation(ctx context.Context) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	addresses, err := app.walletAddresses()
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		fmt.Println("No keys stored; run 'ck wallet create' or 'ck wallet import'")
		return nil
	}

	defaults := consolidate.Options{
		IncludeCoinbase:    app.Settings.Consolidate.IncludeCoinbase,
		IncludeNonCoinbase: app.Settings.Consolidate.IncludeNonCoinbase,
		IncludeFrozen:      app.Settings.Consolidate.IncludeFrozen,
		IncludeTokens:      app.Settings.Consolidate.IncludeTokens,
		MaxTxSizeBytes:     app.Settings.Consolidate.MaxTxSize,
		FeeRate:            app.Settings.Consolidate.FeeRate,
	}
	opts, err := consolidate.RunWizard(addresses, defaults, app.Params)
	if errors.Is(err, forms.ErrCancelled) {
		fmt.Println("Cancelled")
		return nil
	}
	if err != nil {
		return err
	}

	client, err := app.nodeClient()
	if err != nil {
		return err
	}
	defer client.Close()

	coins, err := client.ListCoins(ctx, []string{opts.SourceAddress})
	if err != nil {
		return err
	}
	selection := consolidate.FilterCoins(coins, opts)
	if len(selection) == 0 {
		fmt.Println("No coins matched the filters; nothing to consolidate")
		return nil
	}
	summary := consolidate.Summarize(selection, opts.MaxTxSizeBytes)

	fmt.Printf("\nSource:       %s\n", opts.SourceAddress)
	fmt.Printf("Destination:  %s\n", opts.DestinationAddress())
	fmt.Printf("Coins:        %d totalling %s\n", summary.Count, wallet.FormatAmount(summary.Total))
	fmt.Printf("Transactions: %d (up to %d inputs each)\n\n", summary.TxCount, summary.MaxInputs)
	ok, err := confirm("Build these transactions?")
	if err != nil || !ok {
		fmt.Println("Cancelled")
		return nil
	}

	destAddr, err := wallet.DecodeAddress(opts.DestinationAddress(), app.Params)
	if err != nil {
		return err
	}
	destScript, err := wallet.PayToAddrScript(destAddr)
	if err != nil {
		return err
	}

	store := runs.NewStore(app.DB, runs.WithLogger(app.Logger))
	defer store.Close()
	description := fmt.Sprintf("%d coins from %s", summary.Count, opts.SourceAddress)
	rec := newRunRecorder(store, runs.NewRun(runs.KindConsolidate, description), app.Logger)
	rec.note(builder.StatusSelecting,
		fmt.Sprintf("selected %d coins totalling %s", summary.Count, wallet.FormatAmount(summary.Total)))
	rec.note(builder.StatusBuilding,
		fmt.Sprintf("building up to %d transaction(s)", summary.TxCount))

	b := builder.New(builder.WithLogger(app.Logger.With().Str("component", "builder").Logger()))
	producer := consolidate.NewProducer(selection, destScript, opts.MaxTxSizeBytes, opts.FeeRate)
	status, err := runBuild(b, producer, summary.TxCount)
	if err != nil {
		rec.fail(err)
		return err
	}
	fmt.Println(status.Display())
	switch status {
	case builder.StatusInterrupted:
		rec.finish(builder.StatusInterrupted, "cancelled before anything was broadcast")
		return nil
	case builder.StatusNoResult:
		rec.finish(builder.StatusNoResult, "every batch fell below the dust threshold")
		return nil
	}

	txs := b.Results()
	ring, err := app.unlockKeys()
	if err != nil {
		rec.fail(err)
		return err
	}

	type txRow struct {
		inputs int
		in     btcutil.Amount
		out    btcutil.Amount
		size   int
	}
	rows := make([]txRow, 0, len(txs))
	var totalIn, totalOut btcutil.Amount
	for _, tx := range txs {
		prevOuts, err := wallet.PrevOutsFor(tx, selection)
		if err != nil {
			rec.fail(err)
			return err
		}
		if err := wallet.SignTx(tx, prevOuts, ring, app.Params); err != nil {
			rec.fail(err)
			return err
		}
		row := txRow{inputs: len(tx.TxIn), size: tx.SerializeSize()}
		for _, prev := range prevOuts {
			row.in += btcutil.Amount(prev.Value)
		}
		for _, out := range tx.TxOut {
			row.out += btcutil.Amount(out.Value)
		}
		rows = append(rows, row)
		totalIn += row.in
		totalOut += row.out
	}
	rec.run.TxCount = len(txs)
	rec.run.TotalIn = totalIn
	rec.run.TotalOut = totalOut
	rec.run.Fee = totalIn - totalOut
	rec.note(builder.StatusFinished, fmt.Sprintf("signed %d transaction(s)", len(txs)))

	fmt.Printf("\n%-3s %6s %16s %12s %8s\n", "#", "INPUTS", "VALUE OUT", "FEE", "SIZE")
	fmt.Printf("%-3s %6s %16s %12s %8s\n", strings.Repeat("-", 3), strings.Repeat("-", 6),
		strings.Repeat("-", 16), strings.Repeat("-", 12), strings.Repeat("-", 8))
	for i, row := range rows {
		fmt.Printf("%-3d %6d %16s %12s %8d\n", i+1, row.inputs,
			wallet.FormatAmount(row.out), wallet.FormatAmount(row.in-row.out), row.size)
	}
	fmt.Printf("\nTotal out %s, fee %s\n\n", wallet.FormatAmount(totalOut), wallet.FormatAmount(totalIn-totalOut))

	ok, err = confirm(fmt.Sprintf("Broadcast %d transaction(s)?", len(txs)))
	if err != nil || !ok {
		rec.finish(builder.StatusFinished, "built and signed, not broadcast")
		fmt.Println("Not broadcasting")
		return nil
	}

	bc := upload.NewBroadcaster(client,
		upload.WithBroadcastLogger(app.Logger.With().Str("component", "broadcast").Logger()),
		upload.WithBroadcastProgress(func(sent, total int) {
			fmt.Printf("Broadcast %d/%d\r", sent, total)
		}))
	if err := bc.SendAll(ctx, txs); err != nil {
		fmt.Println()
		rec.fail(err)
		return err
	}
	fmt.Println()

	for _, tx := range txs {
		rec.run.TxIDs = append(rec.run.TxIDs, tx.TxHash().String())
	}
	rec.finish(builder.StatusFinished, fmt.Sprintf("broadcast %d transaction(s)", len(txs)))

	fmt.Printf("Consolidated %s into %d transaction(s)\n", wallet.FormatAmount(totalOut), len(txs))
	for _, txid := range rec.run.TxIDs {
		fmt.Printf("  %s\n", txid)
	}
	return nil
}

// confirm runs a single yes/no form.
func confirm(title string) (bool, error) {
	ok := false
	form := forms.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		return false, forms.ErrCancelled
	}
	return ok, nil
}
