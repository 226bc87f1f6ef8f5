package prefs

import (
	"fmt"
	"path/filepath"
)

// Open returns the backend named by kind ("file", "sqlite" or "memory").
// An empty path puts the file under dataDir.
func Open(kind, path, dataDir, namespace string) (Backend, error) {
	switch kind {
	case "", "file":
		if path == "" {
			path = filepath.Join(dataDir, "preferences.json")
		}
		return NewFileBackend(path), nil
	case "sqlite":
		if path == "" {
			path = filepath.Join(dataDir, "preferences.db")
		}
		return OpenSQLite(path, namespace)
	case "memory":
		return NewMemoryBackend(nil), nil
	default:
		return nil, fmt.Errorf("unknown preferences backend %q (use file, sqlite or memory)", kind)
	}
}
