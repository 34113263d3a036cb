package contextstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	_ "github.com/mattn/go-sqlite3"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS archived_rounds (
	round_index INTEGER PRIMARY KEY,
	raw_content TEXT NOT NULL,
	checksum    TEXT NOT NULL,
	archived_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

// SQLiteArchive is a durable Archive backed by a SQLite database file.
type SQLiteArchive struct {
	db *sql.DB
}

// NewSQLiteArchive opens (creating if necessary) the archive database at
// dbPath and initializes the schema.
func NewSQLiteArchive(dbPath string) (*SQLiteArchive, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}

	return &SQLiteArchive{db: db}, nil
}

func (a *SQLiteArchive) Store(roundIndex int, raw string, checksum uint64) error {
	_, err := a.db.Exec(
		`INSERT INTO archived_rounds (round_index, raw_content, checksum) VALUES (?, ?, ?)
		 ON CONFLICT(round_index) DO UPDATE SET raw_content = excluded.raw_content, checksum = excluded.checksum`,
		roundIndex, raw, fmt.Sprintf("%016x", checksum),
	)
	if err != nil {
		return fmt.Errorf("failed to archive round %d: %w", roundIndex, err)
	}
	return nil
}

func (a *SQLiteArchive) Load(roundIndex int) (string, error) {
	var raw, storedSum string
	err := a.db.QueryRow(
		`SELECT raw_content, checksum FROM archived_rounds WHERE round_index = ?`,
		roundIndex,
	).Scan(&raw, &storedSum)
	if err == sql.ErrNoRows {
		return "", &ArchiveMissError{RoundIndex: roundIndex}
	}
	if err != nil {
		return "", fmt.Errorf("failed to load archived round %d: %w", roundIndex, err)
	}

	if fmt.Sprintf("%016x", xxhash.Sum64String(raw)) != storedSum {
		return "", &ArchiveIntegrityError{RoundIndex: roundIndex}
	}
	return raw, nil
}

// Close releases the underlying database handle.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

var _ Archive = (*SQLiteArchive)(nil)
