package cli

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/charmbracelet/huh"

	"cashkit/internal/bfp"
	"cashkit/internal/builder"
	"cashkit/internal/forms"
	"cashkit/internal/runs"
	"cashkit/internal/upload"
	"cashkit/internal/wallet"
)

// UploadOptions carries the flag-provided parts of an upload. They are
// only consulted when a file path was given on the command line; a bare
// 'ck upload' collects everything interactively.
type UploadOptions struct {
	PrevHash string
	Receiver string
}

type uploadInput struct {
	path     string
	prevHash string
	receiver string
}

// UploadFile puts a file on chain: plan, cost preview, funding, an
// iterative signing session, review, broadcast, history.
func UploadFile(ctx context.Context, path string, opts UploadOptions) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	input := uploadInput{path: path, prevHash: opts.PrevHash, receiver: opts.Receiver}
	if input.path == "" {
		input, err = collectUploadInput(app)
		if errors.Is(err, forms.ErrCancelled) {
			fmt.Println("Cancelled")
			return nil
		}
		if err != nil {
			return err
		}
	}

	data, err := os.ReadFile(input.path)
	if err != nil {
		return err
	}
	name := filepath.Base(input.path)
	meta, err := bfp.NewMetadata(name, data, input.prevHash)
	if err != nil {
		return err
	}
	plan, err := bfp.NewPlan(meta, data)
	if err != nil {
		return err
	}
	var receiver btcutil.Address
	if input.receiver != "" {
		receiver, err = wallet.DecodeAddress(input.receiver, app.Params)
		if err != nil {
			return fmt.Errorf("receiver address: %w", err)
		}
	}

	feeRate := app.Settings.Consolidate.FeeRate
	cost := plan.Cost(feeRate)
	fmt.Printf("\nFile:         %s (%d bytes)\n", name, len(data))
	fmt.Printf("SHA-256:      %s\n", meta.HashHex())
	fmt.Printf("Transactions: %d plus funding\n", plan.TxCount())
	fmt.Printf("Upload cost:  %s at %d sat/kB, funding fee extra\n\n", wallet.FormatAmount(cost), feeRate)
	ok, err := confirm("Fund, sign and broadcast this upload?")
	if err != nil || !ok {
		fmt.Println("Cancelled")
		return nil
	}

	addresses, err := app.walletAddresses()
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		fmt.Println("No keys stored; run 'ck wallet create' or 'ck wallet import'")
		return nil
	}
	client, err := app.nodeClient()
	if err != nil {
		return err
	}
	defer client.Close()

	coins, err := client.ListCoins(ctx, addresses)
	if err != nil {
		return err
	}
	spendable := coins[:0]
	for _, c := range coins {
		if c.Frozen || c.Token {
			continue
		}
		spendable = append(spendable, c)
	}
	funding, err := upload.SelectFunding(spendable, cost, feeRate)
	if err != nil {
		return err
	}

	ring, err := app.unlockKeys()
	if err != nil {
		return err
	}
	changeAddr, err := wallet.DecodeAddress(funding[0].Address, app.Params)
	if err != nil {
		return err
	}

	store := runs.NewStore(app.DB, runs.WithLogger(app.Logger))
	defer store.Close()
	rec := newRunRecorder(store, runs.NewRun(runs.KindUpload, fmt.Sprintf("%s (%d bytes)", name, len(data))), app.Logger)
	rec.note(builder.StatusBuilding, fmt.Sprintf("signing %d transaction(s)", plan.TxCount()+1))

	session, err := upload.NewSession(upload.Config{
		Plan:          plan,
		FundingCoins:  funding,
		Keys:          ring,
		ChangeAddress: changeAddr,
		Receiver:      receiver,
		FeeRate:       feeRate,
		Params:        app.Params,
	},
		upload.WithSessionLogger(app.Logger.With().Str("component", "upload").Logger()),
		upload.WithSignProgress(func(signed, total int) {
			fmt.Printf("Signed %d/%d\r", signed, total)
		}))
	if err != nil {
		rec.fail(err)
		return err
	}
	txs, err := session.Run(ctx)
	fmt.Println()
	if err != nil {
		rec.fail(err)
		return err
	}

	var totalIn, totalOut btcutil.Amount
	for _, c := range funding {
		totalIn += c.Value
	}
	if len(txs[0].TxOut) > 1 {
		totalOut += btcutil.Amount(txs[0].TxOut[1].Value)
	}
	final := txs[len(txs)-1]
	totalOut += btcutil.Amount(final.TxOut[len(final.TxOut)-1].Value)
	rec.run.TxCount = len(txs)
	rec.run.TotalIn = totalIn
	rec.run.TotalOut = totalOut
	rec.run.Fee = totalIn - totalOut
	rec.note(builder.StatusFinished, fmt.Sprintf("signed %d transaction(s)", len(txs)))

	fmt.Printf("File URI: %s\n\n", session.URI())
	ok, err = confirm(fmt.Sprintf("Broadcast %d transaction(s)?", len(txs)))
	if err != nil || !ok {
		rec.finish(builder.StatusFinished, "signed, not broadcast")
		fmt.Println("Not broadcasting; the signed chain is discarded")
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

	fmt.Printf("Uploaded %s\n%s\n", name, session.URI())
	return nil
}

// collectUploadInput runs the upload wizard: file path, optional
// previous-version hash, optional receiver.
func collectUploadInput(app *App) (uploadInput, error) {
	var input uploadInput
	form := forms.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("File to upload").
				Description(fmt.Sprintf("Up to %d bytes", bfp.MaxFileSize)).
				Validate(func(s string) error {
					info, err := os.Stat(strings.TrimSpace(s))
					if err != nil {
						return errors.New("no such file")
					}
					if info.IsDir() {
						return errors.New("is a directory")
					}
					if info.Size() > bfp.MaxFileSize {
						return bfp.ErrFileTooLarge
					}
					return nil
				}).
				Value(&input.path),
			huh.NewInput().
				Title("Previous version hash").
				Description("SHA-256 of the file this replaces (empty for a fresh upload)").
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					if len(s) != 64 {
						return bfp.ErrBadPrevHash
					}
					if _, err := hex.DecodeString(s); err != nil {
						return bfp.ErrBadPrevHash
					}
					return nil
				}).
				Value(&input.prevHash),
			huh.NewInput().
				Title("Receiver address").
				Description("Gets the file's dust output (empty to keep it)").
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					_, err := wallet.DecodeAddress(s, app.Params)
					return err
				}).
				Value(&input.receiver),
		),
	)
	if err := form.Run(); err != nil {
		return uploadInput{}, forms.ErrCancelled
	}
	input.path = strings.TrimSpace(input.path)
	return input, nil
}
