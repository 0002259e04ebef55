// Package queue is the ticket queue the agent works from, kept in SQLite.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// Ticket statuses used by the queue. Update accepts any non-empty status;
// only PENDING tickets are returned by Pending.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusComplete   = "COMPLETE"
	StatusError      = "ERROR"
)

// DefaultLimit is the number of tickets Pending returns when limit <= 0.
const DefaultLimit = 10

// ErrNotFound is returned by Update for an unknown ticket id.
var ErrNotFound = errors.New("ticket not found")

// Ticket is one unit of work.
type Ticket struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Status    string    `json:"status"`
	Result    string    `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a SQLite-backed ticket queue. Safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the queue database at path. Use ":memory:" for a
// throwaway queue.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("queue: db path cannot be empty")
	}
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("queue: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS ticket_queue (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		result TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ticket_status ON ticket_queue(status, created_at);
	`)
	return err
}

// Enqueue adds a PENDING ticket and returns its id. An empty t.ID gets a
// generated one.
func (s *Store) Enqueue(ctx context.Context, t Ticket) (string, error) {
	if strings.TrimSpace(t.Title) == "" {
		return "", errors.New("queue: ticket title is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := s.now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticket_queue (id, title, body, status, result, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '', ?, ?)`,
		t.ID, t.Title, t.Body, StatusPending, now, now)
	if err != nil {
		return "", fmt.Errorf("queue: enqueue %s: %w", t.ID, err)
	}
	return t.ID, nil
}

// Pending returns up to limit PENDING tickets, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]Ticket, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, body, status, result, created_at, updated_at
		 FROM ticket_queue WHERE status = ? ORDER BY created_at, id LIMIT ?`,
		StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("queue: read pending: %w", err)
	}
	defer rows.Close()

	tickets := []Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue: read pending: %w", err)
	}
	return tickets, nil
}

// Get returns a ticket by id.
func (s *Store) Get(ctx context.Context, id string) (Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, body, status, result, created_at, updated_at
		 FROM ticket_queue WHERE id = ?`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, fmt.Errorf("queue: %s: %w", id, ErrNotFound)
	}
	return t, err
}

// Update sets a ticket's status. A non-empty result replaces the stored one.
func (s *Store) Update(ctx context.Context, id, status, result string) error {
	if strings.TrimSpace(status) == "" {
		return errors.New("queue: status is required")
	}
	now := s.now().UnixMilli()
	query := `UPDATE ticket_queue SET status = ?, updated_at = ? WHERE id = ?`
	args := []any{status, now, id}
	if result != "" {
		query = `UPDATE ticket_queue SET status = ?, updated_at = ?, result = ? WHERE id = ?`
		args = []any{status, now, result, id}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("queue: update %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("queue: update %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("queue: %s: %w", id, ErrNotFound)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(sc scanner) (Ticket, error) {
	var t Ticket
	var created, updated int64
	if err := sc.Scan(&t.ID, &t.Title, &t.Body, &t.Status, &t.Result, &created, &updated); err != nil {
		return Ticket{}, err
	}
	t.CreatedAt = time.UnixMilli(created).UTC()
	t.UpdatedAt = time.UnixMilli(updated).UTC()
	return t, nil
}
