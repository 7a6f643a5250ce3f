package config

import (
	"os"
	"path/filepath"
)

const AppName = "cashkit"

func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	configDir := filepath.Join(homeDir, ".config", AppName)

	// Ensure the directory exists
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}

	return configDir, nil
}

func GetSettingsFile() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "settings.yaml"), nil
}

func GetDatabasePath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "cashkit.db"), nil
}

func GetLogsDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}

	logsDir := filepath.Join(configDir, "logs")

	// Ensure the directory exists
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return "", err
	}

	return logsDir, nil
}

func GetLogPath() (string, error) {
	logsDir, err := GetLogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(logsDir, "cashkit.log"), nil
}

// GetOutboxDir returns the directory watched for externally signed
// transaction files. Sent and failed files are moved into subdirectories.
func GetOutboxDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}

	outboxDir := filepath.Join(configDir, "outbox")
	for _, dir := range []string{outboxDir, filepath.Join(outboxDir, "sent"), filepath.Join(outboxDir, "failed")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
	}

	return outboxDir, nil
}
