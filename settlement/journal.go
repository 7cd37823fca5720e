package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xraph/sigil/id"
	"github.com/xraph/sigil/tier"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS settlements (
	id           TEXT PRIMARY KEY,
	token_id     TEXT NOT NULL,
	payer        TEXT NOT NULL,
	amount       REAL NOT NULL,
	tier         TEXT NOT NULL,
	endpoint     TEXT NOT NULL,
	priority     INTEGER NOT NULL,
	issued_at    INTEGER NOT NULL,
	delivered_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS settlements_token_id ON settlements (token_id);
`

// JournalSink records every notice in a SQLite table. Redelivering a
// notice with the same id is a no-op. The journal holds settlement
// records only, never token content.
type JournalSink struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// OpenJournal opens or creates the journal database at path. The path
// ":memory:" keeps the journal in process memory.
func OpenJournal(path string) (*JournalSink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}

	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal: %w", err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite journal: %w", err)
	}
	if _, err := sqlDB.Exec(journalSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	return &JournalSink{sqlDB: sqlDB, now: time.Now}, nil
}

func (j *JournalSink) Deliver(ctx context.Context, n *Notice) error {
	_, err := j.sqlDB.ExecContext(ctx, `
		INSERT INTO settlements (id, token_id, payer, amount, tier, endpoint, priority, issued_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		n.ID.String(),
		n.TokenID,
		n.Payer,
		n.Amount,
		string(n.Tier),
		n.Endpoint,
		boolToInt(n.Priority),
		n.Timestamp.UTC().UnixMilli(),
		j.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("journal notice %s: %w", n.ID, err)
	}
	return nil
}

// ByToken returns the notices recorded for a token id.
func (j *JournalSink) ByToken(ctx context.Context, tokenID string) ([]*Notice, error) {
	rows, err := j.sqlDB.QueryContext(ctx, `
		SELECT id, token_id, payer, amount, tier, endpoint, priority, issued_at
		FROM settlements WHERE token_id = ? ORDER BY issued_at`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []*Notice
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Count returns the number of journaled notices.
func (j *JournalSink) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM settlements`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count journal: %w", err)
	}
	return n, nil
}

func (j *JournalSink) Close() error {
	if j == nil || j.sqlDB == nil {
		return nil
	}
	return j.sqlDB.Close()
}

func scanNotice(rows *sql.Rows) (*Notice, error) {
	var (
		n        Notice
		rawID    string
		rawTier  string
		priority int
		issuedAt int64
	)
	if err := rows.Scan(&rawID, &n.TokenID, &n.Payer, &n.Amount, &rawTier, &n.Endpoint, &priority, &issuedAt); err != nil {
		return nil, fmt.Errorf("scan journal row: %w", err)
	}
	parsed, err := id.ParseSettlementID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan journal row: %w", err)
	}
	n.ID = parsed
	n.Paid = paidSOL(n.Amount)
	n.Tier = tier.Tier(rawTier)
	n.Priority = priority != 0
	n.Timestamp = time.UnixMilli(issuedAt).UTC()
	return &n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
