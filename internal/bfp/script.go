// Package bfp encodes and decodes Bitcoin Files Protocol payloads: the
// OP_RETURN scripts that carry file chunks and the final metadata record
// of an upload chain.
package bfp

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

// Protocol constants. A chunk transaction's OP_RETURN is one opcode plus
// a PUSHDATA1 header plus the chunk itself, which pins the script budget
// at 223 bytes for a full 220-byte chunk.
const (
	// LokadID prefixes every protocol output.
	LokadID = "BFP\x00"
	// MessageTypeFile is the only payload type carried here.
	MessageTypeFile = 0x01
	// MaxChunkSize is the chunk payload carried per transaction.
	MaxChunkSize = 220
	// MaxFileSize bounds the whole upload.
	MaxFileSize = 5261
	// MaxScriptSize bounds any protocol OP_RETURN script.
	MaxScriptSize = 223
)

var (
	ErrFileTooLarge   = errors.New("file exceeds 5261 bytes")
	ErrScriptTooLarge = errors.New("script exceeds the OP_RETURN budget")
	ErrNotProtocol    = errors.New("not a file protocol script")
	ErrMalformedPush  = errors.New("malformed data push")
)

// pushData appends a canonical protocol push of data to script. Empty
// fields use a zero-length PUSHDATA1 so every field stays an explicit
// push, never a small-integer opcode.
func pushData(script []byte, data []byte) []byte {
	switch {
	case len(data) == 0:
		return append(script, txscript.OP_PUSHDATA1, 0)
	case len(data) <= 75:
		script = append(script, byte(len(data)))
		return append(script, data...)
	case len(data) <= 255:
		script = append(script, txscript.OP_PUSHDATA1, byte(len(data)))
		return append(script, data...)
	default:
		script = append(script, txscript.OP_PUSHDATA2, byte(len(data)), byte(len(data)>>8))
		return append(script, data...)
	}
}

// parsePushes splits an OP_RETURN script into its pushed fields. The
// leading OP_RETURN opcode must already be present.
func parsePushes(script []byte) ([][]byte, error) {
	if len(script) == 0 || script[0] != txscript.OP_RETURN {
		return nil, ErrNotProtocol
	}
	var fields [][]byte
	i := 1
	for i < len(script) {
		op := int(script[i])
		i++
		var size int
		switch {
		case op >= 1 && op <= 75:
			size = op
		case op == txscript.OP_PUSHDATA1:
			if i >= len(script) {
				return nil, ErrMalformedPush
			}
			size = int(script[i])
			i++
		case op == txscript.OP_PUSHDATA2:
			if i+1 >= len(script) {
				return nil, ErrMalformedPush
			}
			size = int(script[i]) | int(script[i+1])<<8
			i += 2
		default:
			return nil, fmt.Errorf("%w: opcode 0x%02x", ErrMalformedPush, op)
		}
		if i+size > len(script) {
			return nil, ErrMalformedPush
		}
		fields = append(fields, script[i:i+size])
		i += size
	}
	return fields, nil
}

// BuildChunkScript renders the OP_RETURN script of a pure data chunk
// transaction: a single push of up to 220 bytes.
func BuildChunkScript(chunk []byte) ([]byte, error) {
	if len(chunk) > MaxChunkSize {
		return nil, fmt.Errorf("chunk of %d bytes exceeds %d", len(chunk), MaxChunkSize)
	}
	script := []byte{txscript.OP_RETURN}
	script = pushData(script, chunk)
	if len(script) > MaxScriptSize {
		return nil, ErrScriptTooLarge
	}
	return script, nil
}

// ParseChunkScript extracts the payload of a data chunk transaction.
func ParseChunkScript(script []byte) ([]byte, error) {
	fields, err := parsePushes(script)
	if err != nil {
		return nil, err
	}
	if len(fields) != 1 {
		return nil, fmt.Errorf("%w: expected a single push, got %d", ErrNotProtocol, len(fields))
	}
	return fields[0], nil
}
