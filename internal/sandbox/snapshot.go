package sandbox

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// snapshotDirName is where a sandbox keeps its rollback copy. Living
// inside the sandbox directory means Destroy removes both at once.
const snapshotDirName = ".snapshot"

// Snapshot copies the sandbox contents aside so a later Restore can
// roll back whatever execution did to the tree. Taking a new snapshot
// replaces the previous one.
func (s *Sandbox) Snapshot() error {
	snap := filepath.Join(s.Path, snapshotDirName)
	if err := os.RemoveAll(snap); err != nil {
		return fmt.Errorf("failed to clear previous snapshot: %w", err)
	}
	if err := os.MkdirAll(snap, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	entries, err := os.ReadDir(s.Path)
	if err != nil {
		return fmt.Errorf("failed to read sandbox %s: %w", s.ID, err)
	}
	for _, entry := range entries {
		if entry.Name() == snapshotDirName {
			continue
		}
		src := filepath.Join(s.Path, entry.Name())
		dst := filepath.Join(snap, entry.Name())
		if err := copyTree(src, dst); err != nil {
			return fmt.Errorf("failed to snapshot sandbox %s: %w", s.ID, err)
		}
	}
	return nil
}

// Restore replaces the sandbox contents with the last snapshot. The
// snapshot itself is kept, so a sandbox can be restored repeatedly.
func (s *Sandbox) Restore() error {
	snap := filepath.Join(s.Path, snapshotDirName)
	if _, err := os.Stat(snap); err != nil {
		return fmt.Errorf("sandbox %s has no snapshot: %w", s.ID, err)
	}

	entries, err := os.ReadDir(s.Path)
	if err != nil {
		return fmt.Errorf("failed to read sandbox %s: %w", s.ID, err)
	}
	for _, entry := range entries {
		if entry.Name() == snapshotDirName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.Path, entry.Name())); err != nil {
			return fmt.Errorf("failed to clear sandbox %s: %w", s.ID, err)
		}
	}

	snapEntries, err := os.ReadDir(snap)
	if err != nil {
		return fmt.Errorf("failed to read snapshot for sandbox %s: %w", s.ID, err)
	}
	for _, entry := range snapEntries {
		src := filepath.Join(snap, entry.Name())
		dst := filepath.Join(s.Path, entry.Name())
		if err := copyTree(src, dst); err != nil {
			return fmt.Errorf("failed to restore sandbox %s: %w", s.ID, err)
		}
	}
	return nil
}

// copyTree copies a file or directory tree, preserving permissions
// and symlinks. Special files are skipped.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := dst
		if rel != "." {
			target = filepath.Join(dst, rel)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		mode := info.Mode()
		switch {
		case d.IsDir():
			return os.MkdirAll(target, mode.Perm())
		case mode&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case mode.IsRegular():
			return copyFile(p, target, mode.Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
