// conf/utils.go
package conf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/jupiter-voice/jupiter/internal/logger"
)

const osWindows = "windows"

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// in priority order. Lookups that fail (e.g. no home directory in a
// container) are skipped.
func GetDefaultConfigPaths() []string {
	configPaths := []string{"."}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		GetLogger().Debug("home directory unavailable", logger.Error(err))
		homeDir = ""
	}

	switch runtime.GOOS {
	case osWindows:
		if exePath, err := os.Executable(); err == nil {
			configPaths = append(configPaths, filepath.Dir(exePath))
		}
		if homeDir != "" {
			configPaths = append(configPaths, filepath.Join(homeDir, "AppData", "Roaming", "jupiter"))
		}
	default:
		if homeDir != "" {
			configPaths = append(configPaths, filepath.Join(homeDir, ".config", "jupiter"))
		}
		configPaths = append(configPaths, "/etc/jupiter")
	}

	return configPaths
}

// moveFile moves a file from src to dst, falling back to copy and delete
// when rename fails across devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	srcFile, err := os.Open(src) //nolint:gosec // temp file created by SaveYAMLConfig
	if err != nil {
		return fmt.Errorf("error opening source file: %w", err)
	}
	defer func() {
		if err := srcFile.Close(); err != nil {
			GetLogger().Warn("failed to close source file", logger.Error(err))
		}
	}()

	dstFile, err := os.Create(dst) //nolint:gosec // destination chosen by the operator
	if err != nil {
		return fmt.Errorf("error creating destination file: %w", err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("error copying file contents: %w", err)
	}
	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("error closing destination file: %w", err)
	}

	if err := os.Remove(src); err != nil {
		return fmt.Errorf("error removing source file after copy: %w", err)
	}

	return nil
}
