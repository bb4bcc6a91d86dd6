package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	dirName = ".liffsurvey"
	dbName  = "liffsurvey.db"
)

// Path returns the journal database path for the workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, dirName, dbName)
}

// ensureWorkspace creates the state directory if missing.
func ensureWorkspace(workspace string) error {
	if workspace == "" {
		workspace = "."
	}
	return os.MkdirAll(filepath.Join(workspace, dirName), 0o755)
}

func openDB(workspace string) (*sql.DB, error) {
	if err := ensureWorkspace(workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", Path(workspace))
	return sql.Open("sqlite", dsn)
}
