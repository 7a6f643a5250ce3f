// Package updater checks GitHub releases for a newer build and swaps
// the running binary in place.
package updater

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"cashkit/version"
)

const (
	latestReleaseURL = "https://api.github.com/repos/cashkit/cashkit/releases/latest"
	allReleasesURL   = "https://api.github.com/repos/cashkit/cashkit/releases"

	checksumFile = "SHA256SUMS"
)

// Release is the subset of the GitHub release payload the updater reads.
type Release struct {
	TagName    string  `json:"tag_name"`
	Name       string  `json:"name"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
}

// Asset is one downloadable file of a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// UpdateInfo describes the update decision for the current build.
type UpdateInfo struct {
	Available      bool
	CurrentVersion string
	LatestVersion  string
	DownloadURL    string
	ChecksumURL    string
}

// CheckForUpdates compares the running version against the newest
// release. With includePrerelease the newest release counts even when it
// is marked as a pre-release.
func CheckForUpdates(includePrerelease bool) (*UpdateInfo, error) {
	current := version.Get()

	release, err := fetchRelease(includePrerelease)
	if err != nil {
		return nil, fmt.Errorf("fetch release: %w", err)
	}

	info := &UpdateInfo{
		Available:      newerVersion(current, release.TagName),
		CurrentVersion: current,
		LatestVersion:  release.TagName,
	}
	if !info.Available {
		return info, nil
	}

	assetName := platformAssetName(release.TagName)
	for _, asset := range release.Assets {
		switch asset.Name {
		case assetName:
			info.DownloadURL = asset.BrowserDownloadURL
		case checksumFile:
			info.ChecksumURL = asset.BrowserDownloadURL
		}
	}
	if info.DownloadURL == "" {
		return nil, fmt.Errorf("release %s has no asset for %s/%s", release.TagName, runtime.GOOS, runtime.GOARCH)
	}
	return info, nil
}

// fetchRelease resolves the newest release. The /latest endpoint skips
// pre-releases and 404s for repositories that only ever shipped those,
// so both the prerelease path and the 404 fall back to the full list.
func fetchRelease(includePrerelease bool) (*Release, error) {
	client := &http.Client{Timeout: 10 * time.Second}

	if includePrerelease {
		return fetchNewestFromList(client)
	}

	resp, err := client.Get(latestReleaseURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fetchNewestFromList(client)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("github API returned status %d: %s", resp.StatusCode, string(body))
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, err
	}
	return &release, nil
}

func fetchNewestFromList(client *http.Client) (*Release, error) {
	resp, err := client.Get(allReleasesURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("github API returned status %d: %s", resp.StatusCode, string(body))
	}

	var releases []Release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, err
	}
	if len(releases) == 0 {
		return nil, fmt.Errorf("no releases published")
	}
	// The list is newest first.
	return &releases[0], nil
}

// newerVersion reports whether latest should replace current. A dev
// build always updates. Tags compare lexically, which holds for the
// zero-padded-free x.y.z tags this project publishes.
func newerVersion(current, latest string) bool {
	current = strings.TrimPrefix(current, "v")
	latest = strings.TrimPrefix(latest, "v")
	if current == "dev" {
		return true
	}
	return latest > current
}

// platformAssetName renders the release asset name for this build, e.g.
// ck-v0.3.0-linux-amd64.tar.gz.
func platformAssetName(tag string) string {
	ext := ".tar.gz"
	if runtime.GOOS == "windows" {
		ext = ".zip"
	}
	return fmt.Sprintf("ck-%s-%s-%s%s", tag, runtime.GOOS, runtime.GOARCH, ext)
}

// DownloadAndInstall fetches the release asset, verifies it against the
// published checksums when present, and replaces the running binary.
func DownloadAndInstall(info *UpdateInfo) error {
	tmpDir, err := os.MkdirTemp("", "ck-update-*")
	if err != nil {
		return fmt.Errorf("create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	archivePath := filepath.Join(tmpDir, filepath.Base(info.DownloadURL))
	if err := downloadFile(archivePath, info.DownloadURL); err != nil {
		return fmt.Errorf("download update: %w", err)
	}

	if info.ChecksumURL != "" {
		checksumPath := filepath.Join(tmpDir, checksumFile)
		if err := downloadFile(checksumPath, info.ChecksumURL); err != nil {
			return fmt.Errorf("download checksums: %w", err)
		}
		checksums, err := parseChecksums(checksumPath)
		if err != nil {
			return fmt.Errorf("parse checksums: %w", err)
		}
		if err := verifyChecksum(archivePath, checksums); err != nil {
			return fmt.Errorf("verify checksum: %w", err)
		}
	}

	binaryPath, err := extractBinary(archivePath, tmpDir)
	if err != nil {
		return fmt.Errorf("extract binary: %w", err)
	}
	if err := replaceBinary(binaryPath); err != nil {
		return fmt.Errorf("replace binary: %w", err)
	}
	return nil
}

func downloadFile(path, url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

// parseChecksums reads a SHA256SUMS file into a name → hex digest map.
func parseChecksums(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	checksums := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) >= 2 {
			checksums[fields[1]] = fields[0]
		}
	}
	return checksums, nil
}

func verifyChecksum(path string, checksums map[string]string) error {
	name := filepath.Base(path)
	expected, ok := checksums[name]
	if !ok {
		return fmt.Errorf("no checksum published for %s", name)
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return err
	}
	if got := hex.EncodeToString(hash.Sum(nil)); got != expected {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, got)
	}
	return nil
}

// extractBinary pulls the single executable out of a tar.gz or zip
// archive and marks it executable.
func extractBinary(archivePath, destDir string) (string, error) {
	if strings.HasSuffix(archivePath, ".zip") {
		return extractZip(archivePath, destDir)
	}
	return extractTarGz(archivePath, destDir)
}

func extractTarGz(archivePath, destDir string) (string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return "", err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		return writeExtracted(filepath.Join(destDir, filepath.Base(header.Name)), tr)
	}
	return "", fmt.Errorf("no binary in archive")
}

func extractZip(archivePath, destDir string) (string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		path, err := writeExtracted(filepath.Join(destDir, filepath.Base(f.Name)), rc)
		rc.Close()
		return path, err
	}
	return "", fmt.Errorf("no binary in archive")
}

func writeExtracted(path string, r io.Reader) (string, error) {
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// replaceBinary swaps the running executable for the new one, keeping a
// backup beside it until the copy lands.
func replaceBinary(newBinaryPath string) error {
	currentPath, err := os.Executable()
	if err != nil {
		return err
	}
	currentPath, err = filepath.EvalSymlinks(currentPath)
	if err != nil {
		return err
	}

	backupPath := currentPath + ".backup"
	if err := os.Rename(currentPath, backupPath); err != nil {
		return fmt.Errorf("back up current binary: %w", err)
	}
	if err := copyFile(newBinaryPath, currentPath); err != nil {
		os.Rename(backupPath, currentPath)
		return fmt.Errorf("install new binary: %w", err)
	}
	if err := os.Chmod(currentPath, 0o755); err != nil {
		return err
	}
	os.Remove(backupPath)
	return nil
}

func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	dest, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dest.Close()

	_, err = io.Copy(dest, source)
	return err
}
