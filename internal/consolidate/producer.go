package consolidate

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"cashkit/internal/wallet"
)

// Serialized size accounting for P2PKH consolidation transactions. The
// input size assumes a worst-case DER signature.
const (
	txOverhead = 8   // version + locktime
	inputSize  = 148 // outpoint + compact sig script length + sig script + sequence
	outputSize = 34  // value + compact script length + P2PKH script
)

// txSize is the serialized size of a transaction with n inputs and a
// single P2PKH output.
func txSize(n int) int {
	return txOverhead + wire.VarIntSerializeSize(uint64(n)) + n*inputSize + 1 + outputSize
}

// maxInputsFor returns how many inputs fit within sizeLimit bytes.
func maxInputsFor(sizeLimit int) int {
	n := 0
	for txSize(n+1) <= sizeLimit {
		n++
	}
	return n
}

// Producer lazily yields one consolidation transaction per batch of
// coins, in selection order. Batches whose value does not clear the fee
// plus the dust threshold are skipped rather than emitted.
type Producer struct {
	coins     []wallet.Coin
	pkScript  []byte
	maxInputs int
	feeRate   int64
	next      int
}

// NewProducer prepares a producer over an already filtered and sorted
// coin selection. destScript is the locking script of the destination.
func NewProducer(coins []wallet.Coin, destScript []byte, maxTxSize int, feeRate int64) *Producer {
	return &Producer{
		coins:     coins,
		pkScript:  destScript,
		maxInputs: maxInputsFor(maxTxSize),
		feeRate:   feeRate,
	}
}

func (p *Producer) Next(ctx context.Context) (*wire.MsgTx, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.next >= len(p.coins) || p.maxInputs == 0 {
			return nil, nil
		}
		end := p.next + p.maxInputs
		if end > len(p.coins) {
			end = len(p.coins)
		}
		batch := p.coins[p.next:end]
		p.next = end

		if tx, ok := p.buildTx(batch); ok {
			return tx, nil
		}
	}
}

func (p *Producer) Close() error { return nil }

func (p *Producer) buildTx(batch []wallet.Coin) (*wire.MsgTx, bool) {
	tx := wire.NewMsgTx(wire.TxVersion)
	var total btcutil.Amount
	for i := range batch {
		outpoint := batch[i].OutPoint
		tx.AddTxIn(wire.NewTxIn(&outpoint, nil, nil))
		total += batch[i].Value
	}
	fee := wallet.FeeForSize(txSize(len(batch)), p.feeRate)
	value := total - fee
	if value < wallet.DustThreshold {
		return nil, false
	}
	tx.AddTxOut(wire.NewTxOut(int64(value), p.pkScript))
	return tx, true
}
