// Package journal mirrors broker history into a sqlite database so message
// traffic survives process restarts and can be queried by operators.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/forgeloop/forgeloop/internal/broker"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id TEXT UNIQUE NOT NULL,
	kind TEXT NOT NULL,
	from_agent TEXT NOT NULL,
	to_agent TEXT NOT NULL,
	priority TEXT NOT NULL DEFAULT 'normal',
	body_bytes INTEGER NOT NULL DEFAULT 0,
	requires_response BOOLEAN NOT NULL DEFAULT 0,
	in_response_to TEXT DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_to ON messages(to_agent);
CREATE INDEX IF NOT EXISTS idx_messages_kind ON messages(kind);
CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);
`

// Entry is one journaled message record. The body itself is not stored,
// only its size; the journal is an audit trail, not a mailbox.
type Entry struct {
	MessageID        string    `json:"message_id"`
	Kind             string    `json:"kind"`
	From             string    `json:"from"`
	To               string    `json:"to"`
	Priority         string    `json:"priority"`
	BodyBytes        int       `json:"body_bytes"`
	RequiresResponse bool      `json:"requires_response"`
	InResponseTo     string    `json:"in_response_to,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Journal is a sqlite-backed message audit log. Implements broker.Recorder.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at dbPath.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record inserts one message into the journal. Duplicate message ids are
// ignored so at-least-once relays do not error.
func (j *Journal) Record(msg *broker.Message) error {
	_, err := j.db.Exec(`
	INSERT OR IGNORE INTO messages (message_id, kind, from_agent, to_agent, priority, body_bytes, requires_response, in_response_to, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		string(msg.Kind),
		msg.From,
		msg.To,
		string(msg.Priority),
		len(msg.Body),
		msg.RequiresResponse,
		msg.InResponseTo,
		msg.CreatedAt,
	)
	return err
}

// Recent returns journal entries, newest first. Empty agent or kind means no
// filter on that field; agent matches either endpoint.
func (j *Journal) Recent(agent, kind string, limit int) ([]Entry, error) {
	query := `SELECT message_id, kind, from_agent, to_agent, priority, body_bytes, requires_response, COALESCE(in_response_to,''), created_at FROM messages WHERE 1=1`
	args := []interface{}{}

	if agent != "" {
		query += " AND (from_agent = ? OR to_agent = ?)"
		args = append(args, agent, agent)
	}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.MessageID, &e.Kind, &e.From, &e.To, &e.Priority, &e.BodyBytes, &e.RequiresResponse, &e.InResponseTo, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the total number of journaled messages.
func (j *Journal) Count() (int, error) {
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}
