// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	kind    TEXT NOT NULL,
	id      TEXT NOT NULL,
	payload BLOB NOT NULL,
	PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS items_channel ON items (kind, json_extract(payload, '$.channelId'));
`

// SQLiteStore persists catalog items in a single generic kind/id/payload
// table. Entities are stored as JSON; queries that filter on fields use the
// JSON1 extension.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (and if needed initialises) a catalog database at path.
// WAL mode and a busy timeout are applied to every pooled connection via the
// DSN so they cannot be missed.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, (5 * time.Second).Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) put(ctx context.Context, kind Kind, id string, item any) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("catalog: marshal %s %s: %w", kind, id, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO items (kind, id, payload) VALUES (?, ?, ?)
		 ON CONFLICT (kind, id) DO UPDATE SET payload = excluded.payload`,
		string(kind), id, payload)
	if err != nil {
		return fmt.Errorf("catalog: put %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *SQLiteStore) get(ctx context.Context, kind Kind, id string, item any) error {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM items WHERE kind = ? AND id = ?`, string(kind), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("catalog: get %s %s: %w", kind, id, err)
	}
	return json.Unmarshal(payload, item)
}

func (s *SQLiteStore) PutChannel(ctx context.Context, c *Channel) error {
	return s.put(ctx, KindChannel, c.ID, c)
}

func (s *SQLiteStore) Channel(ctx context.Context, id string) (*Channel, error) {
	var c Channel
	if err := s.get(ctx, KindChannel, id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) Channels(ctx context.Context) ([]*Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM items WHERE kind = ?
		 ORDER BY json_extract(payload, '$.number')`, string(KindChannel))
	if err != nil {
		return nil, fmt.Errorf("catalog: list channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Channel
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var c Channel
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PutProgram(ctx context.Context, p *Program) error {
	return s.put(ctx, KindProgram, p.ID, p)
}

func (s *SQLiteStore) Program(ctx context.Context, id string) (*Program, error) {
	var p Program
	if err := s.get(ctx, KindProgram, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) Programs(ctx context.Context, channelID string) ([]*Program, error) {
	query := `SELECT payload FROM items WHERE kind = ?`
	args := []any{string(KindProgram)}
	if channelID != "" {
		query += ` AND json_extract(payload, '$.channelId') = ?`
		args = append(args, channelID)
	}
	query += ` ORDER BY json_extract(payload, '$.start')`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list programs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Program
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var p Program
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PutRecording(ctx context.Context, r *Recording) error {
	return s.put(ctx, r.Kind, r.ID, r)
}

func (s *SQLiteStore) Recording(ctx context.Context, id string) (*Recording, error) {
	for _, kind := range RecordingKinds {
		var r Recording
		err := s.get(ctx, kind, id, &r)
		if err == nil {
			return &r, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (s *SQLiteStore) Recordings(ctx context.Context) ([]*Recording, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM items WHERE kind IN (?, ?)
		 ORDER BY json_extract(payload, '$.start')`,
		string(KindVideoRecording), string(KindAudioRecording))
	if err != nil {
		return nil, fmt.Errorf("catalog: list recordings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Recording
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r Recording
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) IDs(ctx context.Context, kind Kind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM items WHERE kind = ? ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("catalog: list ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, kind Kind, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM items WHERE kind = ? AND id = ?`, string(kind), id)
	if err != nil {
		return fmt.Errorf("catalog: delete %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
