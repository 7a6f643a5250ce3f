package bfp

import (
	"github.com/btcsuite/btcd/btcutil"

	"cashkit/internal/wallet"
)

// URIPrefix heads the address of an uploaded file.
const URIPrefix = "bitcoinfile:"

// FileURI renders the canonical address of an uploaded file from the
// metadata transaction id.
func FileURI(txid string) string {
	return URIPrefix + txid
}

// Serialized size accounting for the chain transactions. Every chain
// transaction spends one P2PKH output and pays the remainder forward to
// a single P2PKH output next to its OP_RETURN payload.
const (
	chainTxBase     = 8 + 1 + 148 + 1 // version, locktime, counts, one input
	p2pkhOutputSize = 34
)

func opReturnOutputSize(scriptLen int) int {
	return 8 + 1 + scriptLen
}

// ChainTxSize is the serialized size of a chain transaction carrying an
// OP_RETURN script of scriptLen bytes.
func ChainTxSize(scriptLen int) int {
	return chainTxBase + opReturnOutputSize(scriptLen) + p2pkhOutputSize
}

// SplitChunks cuts data into transaction-sized pieces, in file order.
func SplitChunks(data []byte) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		n := len(data)
		if n > MaxChunkSize {
			n = MaxChunkSize
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

// Plan is the complete shape of an upload chain before any transaction
// is built: one OP_RETURN script per chunk transaction, then the
// metadata script, which carries the file's final chunk whenever it fits
// the script budget.
type Plan struct {
	Metadata       Metadata
	ChunkScripts   [][]byte
	MetadataScript []byte
	// EmbeddedChunk reports that the final chunk rides in the metadata
	// transaction instead of its own.
	EmbeddedChunk bool
}

// NewPlan lays out the upload chain for data. The chunk count recorded
// in the metadata always counts every chunk of the file, embedded or
// not. An empty file yields a metadata-only plan.
func NewPlan(m Metadata, data []byte) (*Plan, error) {
	if len(data) > MaxFileSize {
		return nil, ErrFileTooLarge
	}
	chunks := SplitChunks(data)
	count := len(chunks)
	plan := &Plan{Metadata: m}

	if count > 0 {
		last := chunks[count-1]
		if script, err := BuildMetadataScript(m, count, last); err == nil {
			plan.MetadataScript = script
			plan.EmbeddedChunk = true
			chunks = chunks[:count-1]
		}
	}
	if plan.MetadataScript == nil {
		script, err := BuildMetadataScript(m, count, nil)
		if err != nil {
			return nil, err
		}
		plan.MetadataScript = script
	}

	for _, chunk := range chunks {
		script, err := BuildChunkScript(chunk)
		if err != nil {
			return nil, err
		}
		plan.ChunkScripts = append(plan.ChunkScripts, script)
	}
	return plan, nil
}

// TxCount is the number of chain transactions, the funding transaction
// excluded.
func (p *Plan) TxCount() int {
	return len(p.ChunkScripts) + 1
}

// Cost returns the amount the funding transaction must provide: the fee
// of every chain transaction at rate satoshis per kilobyte, plus the
// dust carried to the final receiver.
func (p *Plan) Cost(rate int64) btcutil.Amount {
	total := wallet.DustThreshold
	for _, script := range p.ChunkScripts {
		total += wallet.FeeForSize(ChainTxSize(len(script)), rate)
	}
	total += wallet.FeeForSize(ChainTxSize(len(p.MetadataScript)), rate)
	return total
}
