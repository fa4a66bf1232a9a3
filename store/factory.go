package store

import (
	"fmt"
	"path/filepath"
)

// DBFile is the SQLite database file name inside the data directory.
const DBFile = "arowana.db"

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"sqlite" - SQLite database at dataDir/arowana.db (default)
//	"json"   - JSON files in dataDir
//	"memory" - In-memory (ephemeral, for testing)
func New(backend, dataDir string) (Store, error) {
	switch backend {
	case "sqlite", "":
		return NewSqliteStore(filepath.Join(dataDir, DBFile))
	case "json":
		return NewJsonFileStore(dataDir)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: sqlite, json, memory)", backend)
	}
}
