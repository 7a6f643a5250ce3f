package upload

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"cashkit/internal/bfp"
	"cashkit/internal/builder"
	"cashkit/internal/wallet"
)

var testParams = &chaincfg.RegressionNetParams

func newTestWallet(t *testing.T) (wallet.UnlockedKeys, btcutil.Address) {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()), testParams)
	if err != nil {
		t.Fatalf("derive address: %v", err)
	}
	return wallet.UnlockedKeys{addr.EncodeAddress(): key}, addr
}

func fundingCoin(t *testing.T, addr btcutil.Address, seed byte, value btcutil.Amount) wallet.Coin {
	t.Helper()
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		t.Fatalf("build script: %v", err)
	}
	var hash chainhash.Hash
	hash[0] = seed
	return wallet.Coin{
		OutPoint: *wire.NewOutPoint(&hash, 0),
		Value:    value,
		PkScript: script,
		Address:  addr.EncodeAddress(),
	}
}

func testPlan(t *testing.T, size int) *bfp.Plan {
	t.Helper()
	data := bytes.Repeat([]byte{0x42}, size)
	m, err := bfp.NewMetadata("a.txt", data, "")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	plan, err := bfp.NewPlan(m, data)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	return plan
}

func verifyInput(t *testing.T, tx *wire.MsgTx, inputIndex int, prevOut *wire.TxOut) {
	t.Helper()
	vm, err := txscript.NewEngine(prevOut.PkScript, tx, inputIndex,
		txscript.StandardVerifyFlags, nil, nil, prevOut.Value,
		txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if err := vm.Execute(); err != nil {
		t.Fatalf("input %d does not verify: %v", inputIndex, err)
	}
}

func TestSessionBuildsLinkedChain(t *testing.T) {
	ring, addr := newTestWallet(t)
	plan := testPlan(t, 500) // two chunk transactions, final chunk embedded
	if !plan.EmbeddedChunk || len(plan.ChunkScripts) != 2 {
		t.Fatalf("unexpected plan shape: %d chunk scripts", len(plan.ChunkScripts))
	}

	var sigProgress []int
	session, err := NewSession(Config{
		Plan:          plan,
		FundingCoins:  []wallet.Coin{fundingCoin(t, addr, 1, 1_000_000)},
		Keys:          ring,
		ChangeAddress: addr,
		FeeRate:       1000,
		Params:        testParams,
	}, WithSignProgress(func(signed, total int) {
		sigProgress = append(sigProgress, signed)
		if total != 4 {
			t.Errorf("expected total 4, got %d", total)
		}
	}))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	txs, err := session.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(txs) != 4 {
		t.Fatalf("expected 4 transactions, got %d", len(txs))
	}
	if session.Machine().State().Phase != PhaseAllSigned {
		t.Fatalf("expected all_signed, got %s", session.Machine().State())
	}
	if len(sigProgress) != 4 {
		t.Fatalf("expected 4 progress reports, got %d", len(sigProgress))
	}

	// The funding transaction pays the exact upload cost and returns
	// change.
	cost := plan.Cost(1000)
	if txs[0].TxOut[0].Value != int64(cost) {
		t.Fatalf("expected funding output of %d, got %d", cost, txs[0].TxOut[0].Value)
	}
	if len(txs[0].TxOut) != 2 {
		t.Fatalf("expected a change output, got %d outputs", len(txs[0].TxOut))
	}

	// Each chain transaction spends its predecessor.
	for i := 1; i < len(txs); i++ {
		wantVout := uint32(1)
		if i == 1 {
			wantVout = 0
		}
		prevHash := txs[i-1].TxHash()
		in := txs[i].TxIn[0].PreviousOutPoint
		if in.Hash != prevHash || in.Index != wantVout {
			t.Fatalf("transaction %d does not spend its predecessor", i)
		}
	}

	// Payload scripts ride in output 0, in file order.
	if !bytes.Equal(txs[1].TxOut[0].PkScript, plan.ChunkScripts[0]) {
		t.Fatal("first chunk script mismatch")
	}
	if !bytes.Equal(txs[2].TxOut[0].PkScript, plan.ChunkScripts[1]) {
		t.Fatal("second chunk script mismatch")
	}
	if !bytes.Equal(txs[3].TxOut[0].PkScript, plan.MetadataScript) {
		t.Fatal("metadata script mismatch")
	}

	// The final payout is exactly the dust carried through the chain.
	final := txs[3]
	if final.TxOut[1].Value != int64(wallet.DustThreshold) {
		t.Fatalf("expected a final output of %d, got %d", wallet.DustThreshold, final.TxOut[1].Value)
	}
	if got, want := session.URI(), bfp.FileURI(final.TxHash().String()); got != want {
		t.Fatalf("expected uri %s, got %s", want, got)
	}

	// Every signature verifies against the output it spends.
	coins := []wallet.Coin{fundingCoin(t, addr, 1, 1_000_000)}
	fundingPrev, err := wallet.PrevOutsFor(txs[0], coins)
	if err != nil {
		t.Fatalf("resolve funding inputs: %v", err)
	}
	verifyInput(t, txs[0], 0, fundingPrev[0])
	for i := 1; i < len(txs); i++ {
		prev := txs[i-1].TxOut[txs[i].TxIn[0].PreviousOutPoint.Index]
		verifyInput(t, txs[i], 0, prev)
	}
}

func TestSessionEmptyFilePlansTwoTransactions(t *testing.T) {
	ring, addr := newTestWallet(t)
	plan := testPlan(t, 0)

	session, err := NewSession(Config{
		Plan:          plan,
		FundingCoins:  []wallet.Coin{fundingCoin(t, addr, 1, 100_000)},
		Keys:          ring,
		ChangeAddress: addr,
		FeeRate:       1000,
		Params:        testParams,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	txs, err := session.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected funding plus metadata, got %d transactions", len(txs))
	}
	if txs[1].TxIn[0].PreviousOutPoint.Index != 0 {
		t.Fatal("metadata transaction must spend the funding output")
	}
	if txs[1].TxOut[1].Value != int64(wallet.DustThreshold) {
		t.Fatalf("expected a dust payout, got %d", txs[1].TxOut[1].Value)
	}
}

func TestSessionInsufficientFunding(t *testing.T) {
	ring, addr := newTestWallet(t)
	plan := testPlan(t, 100)

	session, err := NewSession(Config{
		Plan:          plan,
		FundingCoins:  []wallet.Coin{fundingCoin(t, addr, 1, 500)},
		Keys:          ring,
		ChangeAddress: addr,
		FeeRate:       1000,
		Params:        testParams,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	_, err = session.Run(context.Background())
	var fErr *builder.InsufficientFundsError
	if !errors.As(err, &fErr) {
		t.Fatalf("expected an insufficient funds error, got %v", err)
	}
	if builder.Classify(err) != builder.KindInsufficientFunds {
		t.Fatalf("expected kind %s, got %s", builder.KindInsufficientFunds, builder.Classify(err))
	}
	if session.Machine().State().Phase != PhaseFailed {
		t.Fatalf("expected failed, got %s", session.Machine().State())
	}
}

func TestSelectFunding(t *testing.T) {
	_, addr := newTestWallet(t)
	coins := []wallet.Coin{
		fundingCoin(t, addr, 1, 1000),
		fundingCoin(t, addr, 2, 5000),
		fundingCoin(t, addr, 3, 3000),
	}

	chosen, err := SelectFunding(coins, 4000, 1000)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if len(chosen) != 1 || chosen[0].Value != 5000 {
		t.Fatalf("expected the largest coin alone, got %d coins", len(chosen))
	}

	chosen, err = SelectFunding(coins, 8000, 1000)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if len(chosen) != 3 {
		t.Fatalf("expected all three coins, got %d", len(chosen))
	}

	_, err = SelectFunding(coins, 100_000, 1000)
	var fErr *builder.InsufficientFundsError
	if !errors.As(err, &fErr) {
		t.Fatalf("expected an insufficient funds error, got %v", err)
	}
	if fErr.Available != 9000 {
		t.Fatalf("expected available 9000, got %d", fErr.Available)
	}
}
