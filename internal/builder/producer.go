package builder

import (
	"context"

	"github.com/btcsuite/btcd/wire"
)

// TxProducer lazily yields the transactions of a run, one at a time.
// Next returns (nil, nil) once the sequence is exhausted; any error ends
// the run. The builder calls Next from a single worker goroutine, so
// implementations need no locking of their own. The context is the run
// context: it is cancelled when the owner abandons the run, not when an
// interruption is merely requested.
type TxProducer interface {
	Next(ctx context.Context) (*wire.MsgTx, error)
	Close() error
}

// ProducerFunc adapts a function to the TxProducer interface, with a
// no-op Close.
type ProducerFunc func(ctx context.Context) (*wire.MsgTx, error)

func (f ProducerFunc) Next(ctx context.Context) (*wire.MsgTx, error) { return f(ctx) }

func (f ProducerFunc) Close() error { return nil }
