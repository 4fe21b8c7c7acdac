package store

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"

	_ "modernc.org/sqlite"

	pkgerrors "github.com/pkg/errors"

	"github.com/you/slack-mirror/internal/core"
)

const schema = `CREATE TABLE IF NOT EXISTS messages (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  user TEXT NOT NULL,
  avatar_url TEXT NOT NULL DEFAULT '',
  text TEXT NOT NULL,
  ts TEXT NOT NULL
);`

// SQLite is the persistent bounded backend. The capacity contract is
// the same as the ring: appending past capacity prunes the oldest
// rows inside the same transaction.
type SQLite struct {
	db       *sql.DB
	capacity int
}

func OpenSQLite(path string, capacity int) (*SQLite, error) {
	if capacity <= 0 {
		capacity = 1
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open sqlite")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrap(err, "apply schema")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=wal;`); err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrap(err, "set WAL")
	}
	// Webhook deliveries append concurrently; without a busy timeout a
	// second writer surfaces SQLITE_BUSY instead of waiting.
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrap(err, "set busy timeout")
	}
	applyTuningPragmas(context.Background(), db)
	return &SQLite{db: db, capacity: capacity}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Ping() error { return s.db.Ping() }

func (s *SQLite) Append(msg core.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return pkgerrors.Wrap(err, "begin append")
	}
	defer func() { _ = tx.Rollback() }()

	const insert = `INSERT INTO messages (user, avatar_url, text, ts) VALUES (?, ?, ?, ?);`
	if _, err := tx.Exec(insert, msg.User, msg.AvatarURL, msg.Text, msg.Ts); err != nil {
		return pkgerrors.Wrap(err, "insert message")
	}

	const prune = `DELETE FROM messages WHERE seq NOT IN (
  SELECT seq FROM messages ORDER BY seq DESC LIMIT ?
);`
	if _, err := tx.Exec(prune, s.capacity); err != nil {
		return pkgerrors.Wrap(err, "prune beyond capacity")
	}

	return pkgerrors.Wrap(tx.Commit(), "commit append")
}

func (s *SQLite) Snapshot() ([]core.Message, error) {
	const q = `SELECT user, avatar_url, text, ts FROM messages ORDER BY seq ASC;`
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query snapshot")
	}
	defer rows.Close()

	out := make([]core.Message, 0, s.capacity)
	for rows.Next() {
		var msg core.Message
		if err := rows.Scan(&msg.User, &msg.AvatarURL, &msg.Text, &msg.Ts); err != nil {
			return nil, pkgerrors.Wrap(err, "scan message")
		}
		out = append(out, msg)
	}
	return out, pkgerrors.Wrap(rows.Err(), "iterate snapshot")
}

// applyTuningPragmas applies optional SQLite tuning statements when
// enabled via the MIRROR_SQLITE_TUNING environment variable.
func applyTuningPragmas(ctx context.Context, db *sql.DB) {
	if os.Getenv("MIRROR_SQLITE_TUNING") != "1" {
		return
	}

	pragmas := []string{
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
	}

	for _, pragma := range pragmas {
		if value, err := applyPragma(ctx, db, pragma); err != nil {
			log.Printf("sqlite: pragma %s failed: %v", pragma, err)
		} else {
			log.Printf("sqlite: pragma %s => %v", pragma, value)
		}
	}
}

func applyPragma(ctx context.Context, db *sql.DB, pragma string) (any, error) {
	row := db.QueryRowContext(ctx, pragma)
	var value any
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
				return nil, execErr
			}
			return "ok", nil
		}
		return nil, err
	}
	return value, nil
}
