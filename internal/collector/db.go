// internal/collector/db.go
package collector

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/signalnine/rowdelta/internal/protocol"
	"github.com/signalnine/rowdelta/internal/results"
)

// DB wraps SQLite connection
type DB struct {
	db *sql.DB
}

// NewDB opens or creates the SQLite database
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// One writer at a time; concurrent ingests would otherwise hit SQLITE_BUSY
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Create schema. epoch, counter and unix_time are unsigned 64-bit values
	// stored bit-for-bit in signed INTEGER columns.
	schema := `
	CREATE TABLE IF NOT EXISTS log_items (
		id TEXT PRIMARY KEY,
		host_identifier TEXT NOT NULL,
		name TEXT NOT NULL,
		epoch INTEGER NOT NULL,
		counter INTEGER NOT NULL,
		unix_time INTEGER NOT NULL,
		calendar_time TEXT NOT NULL,
		added INTEGER NOT NULL,
		removed INTEGER NOT NULL,
		document TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now')),
		UNIQUE (host_identifier, name, epoch, counter)
	);
	CREATE TABLE IF NOT EXISTS item_rows (
		item_id TEXT NOT NULL REFERENCES log_items(id),
		action TEXT NOT NULL,
		position INTEGER NOT NULL,
		columns TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_log_items_host ON log_items(host_identifier);
	CREATE INDEX IF NOT EXISTS idx_log_items_name ON log_items(name);
	CREATE INDEX IF NOT EXISTS idx_item_rows_item ON item_rows(item_id);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// InsertLogItem stores a log item and its rows. document is the encoded
// form kept for re-ingestion. Returns the new id, or inserted=false when an
// item with the same de-duplication key is already stored.
func (d *DB) InsertLogItem(item results.LogItem, document []byte) (id string, inserted bool, err error) {
	tx, err := d.db.Begin()
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback()

	id = uuid.NewString()
	res, err := tx.Exec(`
		INSERT OR IGNORE INTO log_items
			(id, host_identifier, name, epoch, counter, unix_time, calendar_time, added, removed, document)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, item.Identifier, item.Name, int64(item.Epoch), int64(item.Counter), int64(item.Time),
		item.CalendarTime, len(item.Results.Added), len(item.Results.Removed), string(document))
	if err != nil {
		return "", false, fmt.Errorf("insert item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, err
	}
	if n == 0 {
		return "", false, nil
	}

	stmt, err := tx.Prepare(`INSERT INTO item_rows (item_id, action, position, columns) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", false, err
	}
	defer stmt.Close()

	for _, side := range []struct {
		action results.Action
		rows   results.Snapshot
	}{
		{results.ActionRemoved, item.Results.Removed},
		{results.ActionAdded, item.Results.Added},
	} {
		for i, r := range side.rows {
			if _, err := stmt.Exec(id, string(side.action), i, string(results.EncodeRow(r, results.Natural()))); err != nil {
				return "", false, fmt.Errorf("insert row: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return id, true, nil
}

// LoadLogItem decodes the stored document of an item
func (d *DB) LoadLogItem(id string) (results.LogItem, error) {
	var doc string
	err := d.db.QueryRow(`SELECT document FROM log_items WHERE id = ?`, id).Scan(&doc)
	if err != nil {
		return results.LogItem{}, err
	}
	return results.DecodeLogItem([]byte(doc))
}

// ItemRows returns the stored rows of one side of an item, in diff order
func (d *DB) ItemRows(id string, action results.Action) (results.Snapshot, error) {
	rows, err := d.db.Query(`
		SELECT columns FROM item_rows
		WHERE item_id = ? AND action = ?
		ORDER BY position
	`, id, string(action))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := results.Snapshot{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		r, err := results.DecodeRow([]byte(doc))
		if err != nil {
			return nil, err
		}
		snap = append(snap, r)
	}
	return snap, rows.Err()
}

// QueryByHost returns recent items for a host, newest first
func (d *DB) QueryByHost(identifier string, limit int) ([]protocol.StoredItem, error) {
	rows, err := d.db.Query(`
		SELECT id, host_identifier, name, epoch, counter, unix_time, calendar_time, added, removed, created_at
		FROM log_items
		WHERE host_identifier = ?
		ORDER BY epoch DESC, counter DESC
		LIMIT ?
	`, identifier, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanItems(rows)
}

// ActionCounts returns the number of stored rows per action
func (d *DB) ActionCounts() (map[results.Action]int, error) {
	rows, err := d.db.Query(`
		SELECT action, COUNT(*) FROM item_rows GROUP BY action
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[results.Action]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		counts[results.Action(action)] = count
	}
	return counts, rows.Err()
}

func scanItems(rows *sql.Rows) ([]protocol.StoredItem, error) {
	var items []protocol.StoredItem
	for rows.Next() {
		var it protocol.StoredItem
		var epoch, counter, unixTime int64
		var createdStr sql.NullString

		err := rows.Scan(&it.ID, &it.Identifier, &it.Name, &epoch, &counter, &unixTime,
			&it.CalendarTime, &it.Added, &it.Removed, &createdStr)
		if err != nil {
			return nil, err
		}

		it.Epoch = uint64(epoch)
		it.Counter = uint64(counter)
		it.UnixTime = uint64(unixTime)
		if createdStr.Valid {
			it.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdStr.String)
		}

		items = append(items, it)
	}
	return items, rows.Err()
}
