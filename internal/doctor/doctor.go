// Package doctor inspects the local installation and reports what a
// support request would need to know: configuration, database, keyring,
// wallet keys and node reachability.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"cashkit/config"
	"cashkit/internal/chain"
	"cashkit/internal/credentials"
	"cashkit/internal/wallet"
	"cashkit/pkg/db"
	"cashkit/pkg/migration"
)

type Status string

const (
	StatusOK   Status = "OK"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

type CheckResult struct {
	Name    string
	Status  Status
	Summary string
	Details []string
	Actions []string
}

type Report struct {
	Checks []CheckResult
}

func (r Report) HasFailures() bool {
	for _, check := range r.Checks {
		if check.Status == StatusFail {
			return true
		}
	}
	return false
}

func (r Report) ExitCode() int {
	if r.HasFailures() {
		return 1
	}
	return 0
}

// nodeTimeout bounds the connectivity probe so a dead node does not
// stall the whole report.
const nodeTimeout = 5 * time.Second

func GenerateReport(ctx context.Context) Report {
	var checks []CheckResult

	checks = append(checks, checkMetadata())

	configResult, settings := checkConfig()
	checks = append(checks, configResult)

	databaseResult, handle := checkDatabase()
	checks = append(checks, databaseResult)
	if handle != nil {
		defer handle.Close()
	}

	checks = append(checks, checkKeyring())
	checks = append(checks, checkWallet(handle, settings))
	checks = append(checks, checkNode(ctx, settings))

	return Report{Checks: checks}
}

func checkMetadata() CheckResult {
	result := CheckResult{Name: "Runtime Metadata", Status: StatusOK}

	execPath, err := os.Executable()
	if err != nil {
		result.Status = StatusWarn
		result.Summary = "Could not resolve executable path"
		result.Details = append(result.Details, err.Error())
		result.Actions = append(result.Actions, "re-run from installed binary path")
		return result
	}

	buildInfo, ok := debug.ReadBuildInfo()
	goVersion := runtime.Version()
	summaryParts := []string{fmt.Sprintf("go runtime %s", goVersion)}
	if ok && buildInfo != nil {
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			summaryParts = append(summaryParts, fmt.Sprintf("module %s", buildInfo.Main.Version))
		}
	}

	result.Summary = strings.Join(summaryParts, ", ")
	result.Details = append(result.Details,
		fmt.Sprintf("Executable: %s", execPath),
		fmt.Sprintf("OS/Arch: %s/%s", runtime.GOOS, runtime.GOARCH),
	)

	if ok && buildInfo != nil {
		if buildInfo.Main.Version == "(devel)" {
			result.Details = append(result.Details, "Build from local sources")
		}
		for _, setting := range buildInfo.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				result.Details = append(result.Details, fmt.Sprintf("VCS Revision: %s", setting.Value))
			}
		}
	}

	return result
}

func checkConfig() (CheckResult, *config.Settings) {
	result := CheckResult{Name: "Configuration", Status: StatusOK}

	configDir, err := config.GetConfigDir()
	if err != nil {
		result.Status = StatusFail
		result.Summary = "Unable to resolve config directory"
		result.Details = append(result.Details, err.Error())
		result.Actions = append(result.Actions, "verify HOME is set and accessible")
		return result, nil
	}
	result.Details = append(result.Details, fmt.Sprintf("Config directory: %s", configDir))

	stat, err := os.Stat(configDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Status = StatusWarn
			result.Summary = "Config directory missing"
			result.Actions = append(result.Actions, "run 'ck setup' to create defaults")
		} else {
			result.Status = StatusFail
			result.Summary = "Cannot access config directory"
			result.Details = append(result.Details, err.Error())
			result.Actions = append(result.Actions, "fix permissions on config directory")
		}
		return result, nil
	}
	if !stat.IsDir() {
		result.Status = StatusFail
		result.Summary = "Config path is not a directory"
		result.Actions = append(result.Actions, "remove conflicting file and rerun setup")
		return result, nil
	}

	if err := checkDirWritable(configDir); err != nil {
		result.Status = StatusWarn
		result.Details = append(result.Details, fmt.Sprintf("Directory not writable: %v", err))
		result.Actions = append(result.Actions, "adjust permissions so cashkit can write config")
	}

	settingsFile, err := config.GetSettingsFile()
	if err != nil {
		result.Status = StatusFail
		result.Summary = "Unable to resolve settings file"
		result.Details = append(result.Details, err.Error())
		return result, nil
	}
	result.Details = append(result.Details, fmt.Sprintf("Settings file: %s", settingsFile))

	if _, err := os.Stat(settingsFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Status = StatusWarn
			result.Summary = "settings.yaml not found, defaults in effect"
			result.Actions = append(result.Actions, "run 'ck setup' or create settings.yaml")
			return result, config.DefaultSettings()
		}
		result.Status = StatusFail
		result.Summary = "Unable to read settings.yaml"
		result.Details = append(result.Details, err.Error())
		return result, nil
	}

	settings, err := config.LoadSettings()
	if err != nil {
		result.Status = StatusFail
		result.Summary = "Failed to parse settings.yaml"
		result.Details = append(result.Details, err.Error())
		result.Actions = append(result.Actions, "fix YAML syntax in settings.yaml")
		return result, nil
	}

	if err := config.ValidateNetwork(settings.Network); err != nil {
		result.Status = StatusFail
		result.Summary = "Unknown network in settings.yaml"
		result.Details = append(result.Details, err.Error())
		result.Actions = append(result.Actions,
			fmt.Sprintf("set network to one of: %s", strings.Join(config.KnownNetworks(), ", ")))
		return result, nil
	}

	result.Summary = fmt.Sprintf("Config loaded (%s, node %s)", settings.Network, settings.Node.Host)
	if settings.Node.Host == "" {
		result.Status = StatusWarn
		result.Details = append(result.Details, "No node host configured")
		result.Actions = append(result.Actions, "run 'ck node set' to point at a node")
	}

	return result, settings
}

func checkDirWritable(dir string) error {
	file, err := os.CreateTemp(dir, "doctor-")
	if err != nil {
		return err
	}
	name := file.Name()
	file.Close()
	return os.Remove(name)
}

func checkDatabase() (CheckResult, *db.DB) {
	result := CheckResult{Name: "Database", Status: StatusOK}

	dbPath, err := config.GetDatabasePath()
	if err != nil {
		result.Status = StatusWarn
		result.Summary = "Unable to resolve database path"
		result.Details = append(result.Details, err.Error())
		return result, nil
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Status = StatusWarn
			result.Summary = "Database not initialized"
			result.Actions = append(result.Actions, "run 'ck setup' to create it")
			return result, nil
		}
		result.Status = StatusFail
		result.Summary = "Cannot read database file"
		result.Details = append(result.Details, err.Error())
		return result, nil
	}

	handle, err := db.Open(dbPath)
	if err != nil {
		result.Status = StatusFail
		result.Summary = "Database cannot be opened"
		result.Details = append(result.Details, err.Error())
		result.Actions = append(result.Actions, "check the file is not corrupted or locked")
		return result, nil
	}

	version, err := migration.NewRunner(handle.Write).Version()
	if err != nil {
		result.Status = StatusFail
		result.Summary = "Schema state unreadable"
		result.Details = append(result.Details, err.Error())
		return result, handle
	}
	if version == 0 {
		result.Status = StatusWarn
		result.Summary = "Schema not migrated yet"
		result.Actions = append(result.Actions, "run any command to apply migrations")
	} else {
		result.Summary = fmt.Sprintf("Database available (schema version %d)", version)
	}
	result.Details = append(result.Details,
		fmt.Sprintf("Path: %s", dbPath),
		fmt.Sprintf("Size: %s", formatBytes(info.Size())),
		fmt.Sprintf("Last modified: %s", info.ModTime().Format(time.RFC3339)),
	)

	return result, handle
}

func checkKeyring() CheckResult {
	result := CheckResult{Name: "Keyring", Status: StatusOK}

	exists, err := credentials.HasNodeRPCPassword()
	if err != nil {
		result.Status = StatusFail
		result.Summary = "Unable to access system keyring"
		result.Details = append(result.Details, err.Error())
		result.Actions = append(result.Actions, "confirm keyring backend is available")
		return result
	}

	if exists {
		result.Summary = "Node RPC password is stored"
	} else {
		result.Status = StatusWarn
		result.Summary = "Node RPC password not configured"
		result.Actions = append(result.Actions, "run 'ck node set' to store credentials")
	}

	return result
}

func checkWallet(handle *db.DB, settings *config.Settings) CheckResult {
	result := CheckResult{Name: "Wallet", Status: StatusOK}

	if handle == nil {
		result.Status = StatusWarn
		result.Summary = "Database unavailable; wallet status unknown"
		return result
	}
	if settings == nil {
		result.Status = StatusWarn
		result.Summary = "Configuration unavailable; wallet status unknown"
		return result
	}

	params, err := wallet.ParamsForNetwork(settings.Network)
	if err != nil {
		result.Status = StatusWarn
		result.Summary = "Cannot resolve network parameters"
		result.Details = append(result.Details, err.Error())
		return result
	}

	keys, err := wallet.NewKeyStore(handle, params).Addresses()
	if err != nil {
		result.Status = StatusFail
		result.Summary = "Unable to read the key store"
		result.Details = append(result.Details, err.Error())
		return result
	}

	if len(keys) == 0 {
		result.Status = StatusWarn
		result.Summary = "No wallet keys"
		result.Actions = append(result.Actions, "run 'ck wallet create' or 'ck wallet import'")
		return result
	}

	result.Summary = fmt.Sprintf("%d key(s) stored", len(keys))
	for _, key := range keys {
		line := key.Address
		if key.Label != "" {
			line += " (" + key.Label + ")"
		}
		result.Details = append(result.Details, line)
	}
	return result
}

func checkNode(ctx context.Context, settings *config.Settings) CheckResult {
	result := CheckResult{Name: "Node", Status: StatusOK}

	if settings == nil {
		result.Status = StatusWarn
		result.Summary = "Configuration unavailable; node not probed"
		return result
	}
	if settings.Node.Host == "" {
		result.Status = StatusWarn
		result.Summary = "No node configured"
		result.Actions = append(result.Actions, "run 'ck node set'")
		return result
	}

	password, err := credentials.GetNodeRPCPassword()
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			result.Status = StatusWarn
			result.Summary = "No RPC password; connectivity not probed"
			result.Actions = append(result.Actions, "run 'ck node set' to store credentials")
			return result
		}
		result.Status = StatusFail
		result.Summary = "Unable to read RPC password"
		result.Details = append(result.Details, err.Error())
		return result
	}

	params, err := wallet.ParamsForNetwork(settings.Network)
	if err != nil {
		result.Status = StatusWarn
		result.Summary = "Cannot resolve network parameters"
		result.Details = append(result.Details, err.Error())
		return result
	}

	client, err := chain.New(settings.Node, chain.Credentials{
		User:     settings.Node.User,
		Password: password,
	}, params)
	if err != nil {
		result.Status = StatusFail
		result.Summary = "Cannot build RPC client"
		result.Details = append(result.Details, err.Error())
		return result
	}
	defer client.Close()

	probeCtx, cancel := context.WithTimeout(ctx, nodeTimeout)
	defer cancel()
	height, err := client.TestConnection(probeCtx)
	if err != nil {
		result.Status = StatusFail
		result.Summary = "Node unreachable"
		result.Details = append(result.Details, err.Error())
		result.Actions = append(result.Actions, "verify host and credentials with 'ck node test'")
		return result
	}

	result.Summary = fmt.Sprintf("Node reachable at %s", settings.Node.Host)
	result.Details = append(result.Details, fmt.Sprintf("Block height: %d", height))
	return result
}

func formatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
