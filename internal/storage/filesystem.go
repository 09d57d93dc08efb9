package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-]+`)

// SanitizeTarget replaces characters unsafe for filesystem paths
// Allows alphanumeric, dots, and hyphens. Replaces everything else with underscore.
func SanitizeTarget(target string) string {
	return unsafeChars.ReplaceAllString(target, "_")
}

// ReportPath generates a consistent file path for an exported report
// Format: {baseDir}/{target}_{YYYYMMDD}_{HHMMSS}{ext}
func ReportPath(baseDir string, target string, startedAt time.Time, ext string) string {
	name := fmt.Sprintf("%s_%s%s", SanitizeTarget(target), startedAt.UTC().Format("20060102_150405"), ext)
	return filepath.Join(baseDir, name)
}

// WriteReport writes data to ReportPath, creating baseDir if needed, and
// returns the path written.
func WriteReport(baseDir string, target string, startedAt time.Time, ext string, data []byte) (string, error) {
	if err := EnsureDir(baseDir); err != nil {
		return "", err
	}
	path := ReportPath(baseDir, target, startedAt, ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing report to %s: %w", path, err)
	}
	return path, nil
}

// EnsureDir creates a directory and all parent directories if they don't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
