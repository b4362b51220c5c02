package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "vidscribe"

// Subdirectories of the working directory used when audio is kept.
const (
	AudioDirName  = "audio"
	ResultDirName = "result"
)

func DefaultModelDirFor(goos, homeDir, xdgDataHome string) (string, error) {
	dataDir, err := defaultDataDirFor(goos, homeDir, xdgDataHome)
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "models"), nil
}

func ResolveModelDir(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	return DefaultModelDirFor(runtime.GOOS, homeDir, os.Getenv("XDG_DATA_HOME"))
}

// AudioPath places the base name of requested under <workdir>/audio.
func AudioPath(workdir, requested string) string {
	return filepath.Join(workdir, AudioDirName, filepath.Base(requested))
}

// ResultPath places the base name of requested under <workdir>/result.
func ResultPath(workdir, requested string) string {
	return filepath.Join(workdir, ResultDirName, filepath.Base(requested))
}

func defaultDataDirFor(goos, homeDir, xdgDataHome string) (string, error) {
	if homeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch goos {
	case "linux":
		if xdgDataHome != "" {
			return filepath.Join(xdgDataHome, appName), nil
		}
		return filepath.Join(homeDir, ".local", "share", appName), nil
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", appName), nil
	case "windows":
		return filepath.Join(homeDir, "AppData", "Local", appName), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}
