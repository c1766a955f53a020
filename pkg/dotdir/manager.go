// Package dotdir manages the .reels/ and ~/.reels directories.
//
// The directory holds the config file and, by default, the per-index
// snapshot directories written by the in-process vector backend.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the reels directory.
	dirName = ".reels"

	// snapshotsDirName is the subdirectory holding per-index snapshots.
	snapshotsDirName = "snapshots"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .reels/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.reels/ dir
//  3. Home ~/.reels/ dir
//  4. If none found, attempt to create ~/.reels/ dir
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating reels directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// SnapshotsDir returns (and creates if necessary) the snapshots directory
// under the resolved .reels/ target.
func (m *Manager) SnapshotsDir(overrideDir string) (string, error) {
	target, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(target, snapshotsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshots directory %s: %w", dir, err)
	}

	return dir, nil
}

// localDirExists checks whether a .reels/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
