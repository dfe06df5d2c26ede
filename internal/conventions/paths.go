package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default wrapperctl data directory name (relative to home).
	DefaultDataDir = ".wrapperctl"
	// DBFile is the submission journal database filename.
	DBFile = "wrapperctl.db"

	// DefaultBackendURL is the backend used when none is configured, the one
	// `wrapperctl serve` listens on.
	DefaultBackendURL = "http://127.0.0.1:8080"
	// DefaultServeAddress is the listen address of the development backend.
	DefaultServeAddress = "127.0.0.1:8080"
)

// DBPath returns the submission journal database path inside a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}
