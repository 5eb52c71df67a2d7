package config

import (
	"os"
	"path/filepath"

	"github.com/steadycalls/mailforge/internal/constants"
	"github.com/steadycalls/mailforge/internal/errors"
)

// HomeDir returns the mailforge data directory. MAILFORGE_HOME overrides
// the default of ~/.mailforge.
//
// Returns an error if the home directory cannot be determined.
func HomeDir() (string, error) {
	if custom := os.Getenv("MAILFORGE_HOME"); custom != "" {
		return custom, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, constants.MailforgeHome), nil
}

// GlobalConfigPath returns the full path to the configuration file,
// typically ~/.mailforge/config.yaml.
func GlobalConfigPath() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultStatePath returns the default location of the JSON state file,
// typically ~/.mailforge/mailforge-state.json.
func DefaultStatePath() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.StateFileName), nil
}

// LogsDir returns the directory where rotating CLI logs are written,
// typically ~/.mailforge/logs.
func LogsDir() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.LogsDir), nil
}
