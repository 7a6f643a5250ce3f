package updater

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestNewerVersion(t *testing.T) {
	tests := []struct {
		current string
		latest  string
		want    bool
	}{
		{"dev", "v0.1.0", true},
		{"v0.1.0", "v0.2.0", true},
		{"0.1.0", "v0.2.0", true},
		{"v0.2.0", "v0.2.0", false},
		{"v0.3.0", "v0.2.0", false},
		{"v1.9.0", "v2.0.0", true},
	}
	for _, tt := range tests {
		if got := newerVersion(tt.current, tt.latest); got != tt.want {
			t.Errorf("newerVersion(%q, %q) = %v, want %v", tt.current, tt.latest, got, tt.want)
		}
	}
}

func TestPlatformAssetName(t *testing.T) {
	name := platformAssetName("v0.3.0")
	if !strings.HasPrefix(name, "ck-v0.3.0-") {
		t.Fatalf("unexpected prefix: %s", name)
	}
	if !strings.Contains(name, runtime.GOOS) || !strings.Contains(name, runtime.GOARCH) {
		t.Fatalf("asset name %s does not name the platform", name)
	}
	wantExt := ".tar.gz"
	if runtime.GOOS == "windows" {
		wantExt = ".zip"
	}
	if !strings.HasSuffix(name, wantExt) {
		t.Fatalf("asset name %s does not end in %s", name, wantExt)
	}
}

func TestParseChecksums(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SHA256SUMS")
	content := "abc123  ck-v0.1.0-linux-amd64.tar.gz\n\ndef456  ck-v0.1.0-darwin-arm64.tar.gz\nmalformed\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write checksums: %v", err)
	}

	checksums, err := parseChecksums(path)
	if err != nil {
		t.Fatalf("parse checksums: %v", err)
	}
	if len(checksums) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(checksums))
	}
	if checksums["ck-v0.1.0-linux-amd64.tar.gz"] != "abc123" {
		t.Fatalf("wrong digest: %q", checksums["ck-v0.1.0-linux-amd64.tar.gz"])
	}
}

func TestVerifyChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ck-v0.1.0-linux-amd64.tar.gz")
	data := []byte("not really an archive")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	sum := sha256.Sum256(data)

	good := map[string]string{"ck-v0.1.0-linux-amd64.tar.gz": hex.EncodeToString(sum[:])}
	if err := verifyChecksum(path, good); err != nil {
		t.Fatalf("expected checksum to verify: %v", err)
	}

	bad := map[string]string{"ck-v0.1.0-linux-amd64.tar.gz": strings.Repeat("0", 64)}
	if err := verifyChecksum(path, bad); err == nil {
		t.Fatal("expected a mismatch error")
	}

	if err := verifyChecksum(path, map[string]string{}); err == nil {
		t.Fatal("expected a missing-checksum error")
	}
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "ck.tar.gz")

	file, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	gw := gzip.NewWriter(file)
	tw := tar.NewWriter(gw)
	payload := []byte("#!/bin/sh\necho ck\n")
	if err := tw.WriteHeader(&tar.Header{Name: "ck", Mode: 0o755, Size: int64(len(payload)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := tw.Write(payload); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	file.Close()

	binaryPath, err := extractBinary(archivePath, dir)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	got, err := os.ReadFile(binaryPath)
	if err != nil {
		t.Fatalf("read extracted binary: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatal("extracted binary does not match the archived payload")
	}
	info, err := os.Stat(binaryPath)
	if err != nil {
		t.Fatalf("stat extracted binary: %v", err)
	}
	if info.Mode()&0o100 == 0 {
		t.Fatal("extracted binary is not executable")
	}
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "ck.zip")

	file, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	zw := zip.NewWriter(file)
	w, err := zw.Create("ck.exe")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := fmt.Fprint(w, "binary bytes"); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	file.Close()

	binaryPath, err := extractBinary(archivePath, dir)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	got, err := os.ReadFile(binaryPath)
	if err != nil {
		t.Fatalf("read extracted binary: %v", err)
	}
	if string(got) != "binary bytes" {
		t.Fatal("extracted binary does not match the archived payload")
	}
}
