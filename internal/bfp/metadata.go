package bfp

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/txscript"
)

var (
	ErrBadPrevHash = errors.New("previous file hash must be 64 hex characters or empty")
	ErrBadHashSize = errors.New("file hash must be 32 bytes")
)

// Metadata describes an uploaded file. It is carried by the final
// transaction of an upload chain.
type Metadata struct {
	Filename   string
	Ext        string
	Size       int
	SHA256     []byte
	PrevSHA256 []byte
	URI        string
}

// NewMetadata derives the protocol metadata for a file's contents. name
// is split into base name and extension; prevHashHex links a replaced
// document and may be empty.
func NewMetadata(name string, data []byte, prevHashHex string) (Metadata, error) {
	if len(data) > MaxFileSize {
		return Metadata{}, ErrFileTooLarge
	}
	var prev []byte
	if prevHashHex != "" {
		if len(prevHashHex) != 64 {
			return Metadata{}, ErrBadPrevHash
		}
		decoded, err := hex.DecodeString(prevHashHex)
		if err != nil {
			return Metadata{}, ErrBadPrevHash
		}
		prev = decoded
	}
	sum := sha256.Sum256(data)
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	return Metadata{
		Filename:   strings.TrimSuffix(base, ext),
		Ext:        ext,
		Size:       len(data),
		SHA256:     sum[:],
		PrevSHA256: prev,
	}, nil
}

// HashHex renders the file hash for display.
func (m Metadata) HashHex() string {
	return hex.EncodeToString(m.SHA256)
}

// BuildMetadataScript renders the metadata OP_RETURN script. chunkCount
// counts every chunk of the file including one carried by chunk, which
// may be nil when the final chunk travelled in its own transaction.
func BuildMetadataScript(m Metadata, chunkCount int, chunk []byte) ([]byte, error) {
	if len(m.SHA256) != sha256.Size {
		return nil, ErrBadHashSize
	}
	if len(m.PrevSHA256) != 0 && len(m.PrevSHA256) != sha256.Size {
		return nil, ErrBadHashSize
	}
	if chunkCount < 0 || chunkCount > 255 {
		return nil, fmt.Errorf("chunk count %d out of range", chunkCount)
	}
	if len(chunk) > MaxChunkSize {
		return nil, fmt.Errorf("chunk of %d bytes exceeds %d", len(chunk), MaxChunkSize)
	}

	var size [2]byte
	binary.BigEndian.PutUint16(size[:], uint16(m.Size))

	script := []byte{txscript.OP_RETURN}
	script = pushData(script, []byte(LokadID))
	script = pushData(script, []byte{MessageTypeFile})
	script = pushData(script, []byte{byte(chunkCount)})
	script = pushData(script, []byte(m.Filename))
	script = pushData(script, []byte(m.Ext))
	script = pushData(script, size[:])
	script = pushData(script, m.SHA256)
	script = pushData(script, m.PrevSHA256)
	script = pushData(script, []byte(m.URI))
	script = pushData(script, chunk)
	if len(script) > MaxScriptSize {
		return nil, ErrScriptTooLarge
	}
	return script, nil
}

// ParseMetadataScript decodes a metadata OP_RETURN script back into the
// file description, the chunk count, and any embedded final chunk.
func ParseMetadataScript(script []byte) (Metadata, int, []byte, error) {
	fields, err := parsePushes(script)
	if err != nil {
		return Metadata{}, 0, nil, err
	}
	if len(fields) != 10 {
		return Metadata{}, 0, nil, fmt.Errorf("%w: expected 10 fields, got %d", ErrNotProtocol, len(fields))
	}
	if string(fields[0]) != LokadID {
		return Metadata{}, 0, nil, ErrNotProtocol
	}
	if len(fields[1]) != 1 || fields[1][0] != MessageTypeFile {
		return Metadata{}, 0, nil, fmt.Errorf("%w: unsupported message type", ErrNotProtocol)
	}
	if len(fields[2]) != 1 {
		return Metadata{}, 0, nil, fmt.Errorf("%w: bad chunk count", ErrNotProtocol)
	}
	if len(fields[5]) != 2 {
		return Metadata{}, 0, nil, fmt.Errorf("%w: bad file size", ErrNotProtocol)
	}
	if len(fields[6]) != sha256.Size {
		return Metadata{}, 0, nil, fmt.Errorf("%w: bad file hash", ErrNotProtocol)
	}
	if len(fields[7]) != 0 && len(fields[7]) != sha256.Size {
		return Metadata{}, 0, nil, fmt.Errorf("%w: bad previous file hash", ErrNotProtocol)
	}

	m := Metadata{
		Filename: string(fields[3]),
		Ext:      string(fields[4]),
		Size:     int(binary.BigEndian.Uint16(fields[5])),
		SHA256:   fields[6],
		URI:      string(fields[8]),
	}
	if len(fields[7]) == sha256.Size {
		m.PrevSHA256 = fields[7]
	}
	chunkCount := int(fields[2][0])
	var chunk []byte
	if len(fields[9]) > 0 {
		chunk = fields[9]
	}
	return m, chunkCount, chunk, nil
}
