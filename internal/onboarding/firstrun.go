package onboarding

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"cashkit/config"
)

// IsFirstRun reports whether setup has never completed on this machine.
func IsFirstRun() bool {
	configDir, err := config.GetConfigDir()
	if err != nil {
		return true // no config dir means nothing is set up yet
	}

	prefsFile := filepath.Join(configDir, "preferences.yaml")

	if _, err := os.Stat(prefsFile); os.IsNotExist(err) {
		return true
	}

	data, err := os.ReadFile(prefsFile)
	if err != nil {
		return true
	}

	var prefs Preferences
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return true
	}

	return !prefs.SetupComplete
}

// LoadPreferences loads the saved setup preferences.
func LoadPreferences() (*Preferences, error) {
	configDir, err := config.GetConfigDir()
	if err != nil {
		return nil, err
	}

	prefsFile := filepath.Join(configDir, "preferences.yaml")
	data, err := os.ReadFile(prefsFile)
	if err != nil {
		return nil, err
	}

	var prefs Preferences
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return nil, err
	}

	return &prefs, nil
}
