package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiscoverDatabase looks for .spark/*.db in the current directory only.
// Returns the absolute path to the database file, or an error if not found.
//
// Only the current directory is checked, not parents. This prevents
// accidentally using an outer project's database when a watched project
// is nested inside another project's directory structure.
//
// The SPARK_DB_PATH environment variable is checked first to allow test
// isolation. If set, it is used directly without discovery.
func DiscoverDatabase() (string, error) {
	if dbPath := os.Getenv("SPARK_DB_PATH"); dbPath != "" {
		// Allow special values like ":memory:" or explicit paths
		return dbPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	return discoverDatabaseInDir(dir)
}

// discoverDatabaseInDir checks for .spark/*.db in the specified directory only.
func discoverDatabaseInDir(dir string) (string, error) {
	sparkDir := filepath.Join(dir, ".spark")

	if info, err := os.Stat(sparkDir); err == nil && info.IsDir() {
		entries, err := os.ReadDir(sparkDir)
		if err == nil {
			for _, entry := range entries {
				if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".db") {
					dbPath := filepath.Join(sparkDir, entry.Name())
					absPath, err := filepath.Abs(dbPath)
					if err != nil {
						return "", fmt.Errorf("failed to get absolute path: %w", err)
					}
					return absPath, nil
				}
			}
		}
	}

	return "", fmt.Errorf(
		"no .spark/*.db found in %s\n"+
			"  Run 'spark init' to start learning in this directory\n"+
			"  Or use --db flag to specify database path explicitly",
		dir)
}

// GetProjectRoot returns the project root directory for a given database path.
// The project root is the directory containing the .spark/ directory.
//
// Example:
//   dbPath: /home/user/myproject/.spark/spark.db
//   returns: /home/user/myproject
func GetProjectRoot(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	dbDir := filepath.Dir(absPath)

	if filepath.Base(dbDir) != ".spark" {
		return "", fmt.Errorf(
			"database must be in a .spark/ directory, got: %s",
			dbPath)
	}

	return filepath.Dir(dbDir), nil
}

// ValidateAlignment ensures database and working directory are in the same
// project. This prevents scenarios where the engine learns patterns from one
// project but spawns exploration runs in a different one.
func ValidateAlignment(dbPath, workingDir string) error {
	projectRoot, err := GetProjectRoot(dbPath)
	if err != nil {
		return fmt.Errorf("invalid database path: %w", err)
	}

	absWorkingDir, err := filepath.Abs(workingDir)
	if err != nil {
		return fmt.Errorf("invalid working directory: %w", err)
	}

	// Working directory must be at or below project root so spark can be
	// run from subdirectories
	if !isAtOrBelow(absWorkingDir, projectRoot) {
		return fmt.Errorf(
			"database-working directory mismatch:\n"+
				"  database: %s\n"+
				"  project root: %s\n"+
				"  working directory: %s\n"+
				"\n"+
				"The database and working directory must be in the same project.\n"+
				"Either:\n"+
				"  - cd %s && spark ...\n"+
				"  - Use the correct --db flag for this directory",
			dbPath, projectRoot, absWorkingDir, projectRoot)
	}

	return nil
}

// isAtOrBelow checks if path is at or below root in the directory tree
func isAtOrBelow(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)

	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

// InitProject creates a new .spark directory with an empty database path.
// Returns the path to the database that should be used; the file itself is
// created on first connection.
func InitProject(projectDir, name string) (string, error) {
	if _, err := os.Stat(projectDir); os.IsNotExist(err) {
		return "", fmt.Errorf("project directory does not exist: %s", projectDir)
	}

	sparkDir := filepath.Join(projectDir, ".spark")
	if err := os.MkdirAll(sparkDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create .spark directory: %w", err)
	}

	dbName := name
	if dbName == "" {
		dbName = "spark"
	}
	if !strings.HasSuffix(dbName, ".db") {
		dbName += ".db"
	}

	dbPath := filepath.Join(sparkDir, dbName)

	if _, err := os.Stat(dbPath); err == nil {
		return "", fmt.Errorf("database already exists: %s", dbPath)
	}

	return dbPath, nil
}
