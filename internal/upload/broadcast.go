package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/rs/zerolog"
)

// TxBroadcaster sends one raw transaction and reports its id. The chain
// client satisfies it.
type TxBroadcaster interface {
	Broadcast(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error)
}

// BroadcastPause spaces sequential sends so the node accepts each
// transaction before seeing its spender.
const BroadcastPause = 100 * time.Millisecond

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithBroadcastLogger sets the broadcaster logger.
func WithBroadcastLogger(logger zerolog.Logger) BroadcasterOption {
	return func(b *Broadcaster) { b.logger = logger }
}

// WithBroadcastProgress reports each accepted transaction as (sent, total).
func WithBroadcastProgress(fn func(sent, total int)) BroadcasterOption {
	return func(b *Broadcaster) { b.progress = fn }
}

// WithBroadcastPause overrides the pause between sends.
func WithBroadcastPause(pause time.Duration) BroadcasterOption {
	return func(b *Broadcaster) { b.pause = pause }
}

// Broadcaster pushes a signed chain to the network one transaction at a
// time, in order, stopping at the first rejection. A rejection strands
// the already broadcast prefix, so the caller reports the error rather
// than retrying blindly.
type Broadcaster struct {
	client   TxBroadcaster
	pause    time.Duration
	logger   zerolog.Logger
	progress func(sent, total int)
}

// NewBroadcaster wraps client for sequential chain broadcast.
func NewBroadcaster(client TxBroadcaster, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		client: client,
		pause:  BroadcastPause,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SendAll broadcasts txs in order. On rejection it returns an error
// naming the failed position; earlier transactions are already on the
// network.
func (b *Broadcaster) SendAll(ctx context.Context, txs []*wire.MsgTx) error {
	for i, tx := range txs {
		if err := ctx.Err(); err != nil {
			return err
		}
		hash, err := b.client.Broadcast(ctx, tx)
		if err != nil {
			return fmt.Errorf("transaction %d of %d rejected: %w", i+1, len(txs), err)
		}
		b.logger.Debug().Str("txid", hash.String()).
			Int("sent", i+1).Int("total", len(txs)).Msg("transaction broadcast")
		if b.progress != nil {
			b.progress(i+1, len(txs))
		}
		if i < len(txs)-1 {
			select {
			case <-time.After(b.pause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}
