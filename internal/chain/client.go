package chain

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/rs/zerolog"

	"cashkit/config"
	"cashkit/internal/wallet"
)

// Client talks JSON-RPC to the full node. It implements wallet.CoinSource
// and is the single broadcast path for every workflow.
type Client struct {
	rpc         *rpcclient.Client
	params      *chaincfg.Params
	annotations *wallet.Annotations
	logger      zerolog.Logger
}

type clientOptions struct {
	logger      zerolog.Logger
	annotations *wallet.Annotations
}

type Option func(*clientOptions)

// WithLogger sets the logger for the client.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// WithAnnotations merges locally stored frozen/token marks into listed coins.
func WithAnnotations(a *wallet.Annotations) Option {
	return func(o *clientOptions) { o.annotations = a }
}

// Credentials carries the RPC user and password resolved from the keyring.
type Credentials struct {
	User     string
	Password string
}

func New(cfg config.NodeConfig, creds Credentials, params *chaincfg.Params, opts ...Option) (*Client, error) {
	options := clientOptions{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&options)
	}

	user := creds.User
	if user == "" {
		user = cfg.User
	}

	rpc, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         user,
		Pass:         creds.Password,
		HTTPPostMode: true,
		DisableTLS:   cfg.DisableTLS,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("create rpc client: %w", err)
	}

	return &Client{
		rpc:         rpc,
		params:      params,
		annotations: options.annotations,
		logger:      options.logger,
	}, nil
}

func (c *Client) Close() {
	c.rpc.Shutdown()
}

// ListCoins returns the spendable unspent outputs of the given addresses,
// annotated with coinbase provenance and local frozen/token marks.
func (c *Client) ListCoins(ctx context.Context, addresses []string) ([]wallet.Coin, error) {
	addrs := make([]btcutil.Address, 0, len(addresses))
	for _, raw := range addresses {
		addr, err := wallet.DecodeAddress(raw, c.params)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}

	unspent, err := c.rpc.ListUnspentMinMaxAddresses(1, 9999999, addrs)
	if err != nil {
		return nil, fmt.Errorf("list unspent: %w", err)
	}

	coins := make([]wallet.Coin, 0, len(unspent))
	for _, u := range unspent {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !u.Spendable {
			continue
		}

		txHash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("parse txid %s: %w", u.TxID, err)
		}
		pkScript, err := hex.DecodeString(u.ScriptPubKey)
		if err != nil {
			return nil, fmt.Errorf("parse script of %s:%d: %w", u.TxID, u.Vout, err)
		}
		value, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount of %s:%d: %w", u.TxID, u.Vout, err)
		}

		coin := wallet.Coin{
			OutPoint:      *wire.NewOutPoint(txHash, u.Vout),
			Value:         value,
			PkScript:      pkScript,
			Address:       u.Address,
			Confirmations: u.Confirmations,
		}

		// listunspent does not report provenance; ask for the output to
		// learn whether it came from a coinbase.
		out, err := c.rpc.GetTxOut(txHash, u.Vout, true)
		if err != nil {
			return nil, fmt.Errorf("get txout %s:%d: %w", u.TxID, u.Vout, err)
		}
		if out == nil {
			// Spent since the listing; skip.
			continue
		}
		coin.Coinbase = out.Coinbase

		coins = append(coins, coin)
	}

	if c.annotations != nil {
		coins, err = c.annotations.Apply(coins)
		if err != nil {
			return nil, err
		}
	}

	c.logger.Debug().Int("coins", len(coins)).Int("addresses", len(addresses)).Msg("listed spendable coins")
	return coins, nil
}

// Broadcast submits a signed transaction and returns its txid.
func (c *Client) Broadcast(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash, err := c.rpc.SendRawTransaction(tx, false)
	if err != nil {
		c.logger.Warn().Err(err).Msg("broadcast rejected")
		return nil, fmt.Errorf("broadcast rejected: %w", err)
	}

	c.logger.Info().Str("txid", hash.String()).Msg("transaction broadcast")
	return hash, nil
}

// TestConnection verifies the node answers and returns its block height.
func (c *Client) TestConnection(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	height, err := c.rpc.GetBlockCount()
	if err != nil {
		return 0, fmt.Errorf("node unreachable: %w", err)
	}
	return height, nil
}
