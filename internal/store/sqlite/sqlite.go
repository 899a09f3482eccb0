// Package sqlite backs the outcome and eval stores with a single SQLite
// file. modernc.org/sqlite keeps the build cgo-free.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/buildersguild/sentinel/internal/store"
)

type Store struct {
	db *sql.DB
}

var _ store.OutcomeStore = (*Store)(nil)
var _ store.EvalStore = (*Store)(nil)

// Open creates or opens the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS flagged_messages (
			message_id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL,
			guild_id TEXT,
			author_id TEXT NOT NULL,
			author_name TEXT,
			content TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			flagged_at INTEGER NOT NULL,
			jump_url TEXT,
			relative_index INTEGER,
			confidence TEXT,
			window TEXT,
			reason TEXT,
			waived_people TEXT
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create flagged_messages table: %w", err)
	}
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_flagged_author ON flagged_messages(author_id)`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_flagged_channel ON flagged_messages(channel_id)`)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS eval_cases (
			message_id TEXT PRIMARY KEY,
			window TEXT NOT NULL,
			waived_people TEXT,
			relative_index INTEGER NOT NULL,
			should_flag INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create eval_cases table: %w", err)
	}

	return &Store{db: db}, nil
}

// Add inserts a record if the message is not already flagged. INSERT OR
// IGNORE plus the primary key gives idempotence under concurrent and retried
// calls; RowsAffected distinguishes a fresh insert from a duplicate.
func (s *Store) Add(ctx context.Context, rec store.OutcomeRecord) (bool, error) {
	window, err := json.Marshal(rec.Window)
	if err != nil {
		return false, fmt.Errorf("marshal window: %w", err)
	}
	waived, err := json.Marshal(rec.WaivedPeople)
	if err != nil {
		return false, fmt.Errorf("marshal waived people: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO flagged_messages
			(message_id, channel_id, guild_id, author_id, author_name, content,
			 timestamp, flagged_at, jump_url, relative_index, confidence, window, reason, waived_people)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.MessageID, rec.ChannelID, rec.GuildID, rec.AuthorID, rec.AuthorName, rec.Content,
		rec.Timestamp.Unix(), rec.FlaggedAt.Unix(), rec.JumpURL, rec.RelativeIndex,
		rec.Confidence, string(window), rec.Reason, string(waived))
	if err != nil {
		return false, fmt.Errorf("insert flagged message: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *Store) Get(ctx context.Context, messageID string) (*store.OutcomeRecord, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE message_id = ?`, messageID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get flagged message: %w", err)
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, filter store.QueryFilter) ([]store.OutcomeRecord, error) {
	query := selectColumns + ` WHERE 1=1`
	var args []interface{}
	if filter.AuthorID != "" {
		query += ` AND author_id = ?`
		args = append(args, filter.AuthorID)
	}
	if filter.ChannelID != "" {
		query += ` AND channel_id = ?`
		args = append(args, filter.ChannelID)
	}
	if filter.GuildID != "" {
		query += ` AND guild_id = ?`
		args = append(args, filter.GuildID)
	}
	query += ` ORDER BY flagged_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list flagged messages: %w", err)
	}
	defer rows.Close()

	var out []store.OutcomeRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flagged message: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// SetReason attaches a human-authored reason to an existing record.
func (s *Store) SetReason(ctx context.Context, messageID, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE flagged_messages SET reason = ? WHERE message_id = ?`, reason, messageID)
	if err != nil {
		return fmt.Errorf("set reason: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("no flagged message with id %s", messageID)
	}
	return nil
}

// AddCase upserts an eval case keyed by the flagged message, so a moderator
// can correct an earlier verdict.
func (s *Store) AddCase(ctx context.Context, c store.EvalCase) error {
	window, err := json.Marshal(c.Window)
	if err != nil {
		return fmt.Errorf("marshal eval window: %w", err)
	}
	waived, err := json.Marshal(c.WaivedPeople)
	if err != nil {
		return fmt.Errorf("marshal waived people: %w", err)
	}

	shouldFlag := 0
	if c.ShouldFlag {
		shouldFlag = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO eval_cases (message_id, window, waived_people, relative_index, should_flag, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.MessageID, string(window), string(waived), c.RelativeIndex, shouldFlag, c.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert eval case: %w", err)
	}
	return nil
}

func (s *Store) Cases(ctx context.Context) ([]store.EvalCase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, window, waived_people, relative_index, should_flag, created_at
		FROM eval_cases ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list eval cases: %w", err)
	}
	defer rows.Close()

	var out []store.EvalCase
	for rows.Next() {
		var c store.EvalCase
		var window, waived string
		var shouldFlag int
		var createdAt int64
		if err := rows.Scan(&c.MessageID, &window, &waived, &c.RelativeIndex, &shouldFlag, &createdAt); err != nil {
			return nil, fmt.Errorf("scan eval case: %w", err)
		}
		if err := json.Unmarshal([]byte(window), &c.Window); err != nil {
			return nil, fmt.Errorf("unmarshal eval window: %w", err)
		}
		if waived != "" {
			if err := json.Unmarshal([]byte(waived), &c.WaivedPeople); err != nil {
				return nil, fmt.Errorf("unmarshal waived people: %w", err)
			}
		}
		c.ShouldFlag = shouldFlag != 0
		c.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

const selectColumns = `
	SELECT message_id, channel_id, guild_id, author_id, author_name, content,
	       timestamp, flagged_at, jump_url, relative_index, confidence, window, reason, waived_people
	FROM flagged_messages`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*store.OutcomeRecord, error) {
	var rec store.OutcomeRecord
	var ts, flaggedAt int64
	var guildID, authorName, jumpURL, confidence, window, reason, waived sql.NullString
	err := row.Scan(&rec.MessageID, &rec.ChannelID, &guildID, &rec.AuthorID, &authorName,
		&rec.Content, &ts, &flaggedAt, &jumpURL, &rec.RelativeIndex, &confidence,
		&window, &reason, &waived)
	if err != nil {
		return nil, err
	}

	rec.GuildID = guildID.String
	rec.AuthorName = authorName.String
	rec.JumpURL = jumpURL.String
	rec.Confidence = confidence.String
	rec.Reason = reason.String
	rec.Timestamp = time.Unix(ts, 0).UTC()
	rec.FlaggedAt = time.Unix(flaggedAt, 0).UTC()
	if window.String != "" {
		if err := json.Unmarshal([]byte(window.String), &rec.Window); err != nil {
			return nil, fmt.Errorf("unmarshal window: %w", err)
		}
	}
	if waived.String != "" {
		if err := json.Unmarshal([]byte(waived.String), &rec.WaivedPeople); err != nil {
			return nil, fmt.Errorf("unmarshal waived people: %w", err)
		}
	}
	return &rec, nil
}
