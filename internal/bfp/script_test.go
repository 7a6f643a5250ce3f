package bfp

import (
	"bytes"
	"errors"
	"testing"
)

func TestChunkScriptRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 75, 76, 219, 220} {
		chunk := bytes.Repeat([]byte{0xab}, size)
		script, err := BuildChunkScript(chunk)
		if err != nil {
			t.Fatalf("size %d: build failed: %v", size, err)
		}
		if len(script) > MaxScriptSize {
			t.Fatalf("size %d: script of %d bytes exceeds the budget", size, len(script))
		}
		got, err := ParseChunkScript(script)
		if err != nil {
			t.Fatalf("size %d: parse failed: %v", size, err)
		}
		if !bytes.Equal(got, chunk) {
			t.Fatalf("size %d: chunk did not round trip", size)
		}
	}
}

func TestFullChunkFillsBudgetExactly(t *testing.T) {
	script, err := BuildChunkScript(bytes.Repeat([]byte{0x01}, MaxChunkSize))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(script) != MaxScriptSize {
		t.Fatalf("expected a full chunk script of %d bytes, got %d", MaxScriptSize, len(script))
	}
}

func TestBuildChunkScriptRejectsOversize(t *testing.T) {
	if _, err := BuildChunkScript(make([]byte, MaxChunkSize+1)); err == nil {
		t.Fatal("expected an error for an oversized chunk")
	}
}

func TestParseRejectsMalformedScripts(t *testing.T) {
	tests := []struct {
		name   string
		script []byte
	}{
		{"empty", nil},
		{"no op_return", []byte{0x51}},
		{"truncated pushdata1", []byte{0x6a, 0x4c}},
		{"push overruns script", []byte{0x6a, 0x05, 0x01}},
		{"small integer opcode", []byte{0x6a, 0x51}},
	}
	for _, tt := range tests {
		if _, err := parsePushes(tt.script); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}

func TestParseChunkScriptRejectsMultiplePushes(t *testing.T) {
	script := []byte{0x6a}
	script = pushData(script, []byte{1})
	script = pushData(script, []byte{2})
	if _, err := ParseChunkScript(script); !errors.Is(err, ErrNotProtocol) {
		t.Fatalf("expected %v, got %v", ErrNotProtocol, err)
	}
}
