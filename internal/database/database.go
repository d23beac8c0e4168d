package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/XOOChatx/Chat-X/internal/migrations"
	"github.com/XOOChatx/Chat-X/internal/models"
	"github.com/XOOChatx/Chat-X/internal/security"
)

// Database persists the session list in SQLite
type Database struct {
	db        *sql.DB
	encryptor *encryptor
	logger    *logrus.Logger
	now       func() time.Time
}

// New opens (creating if needed) the SQLite database at dbPath and brings
// its schema up to date. Credentials are encrypted when
// CHATX_ENCRYPTION_SECRET is set.
func New(dbPath string) (*Database, error) {
	enc, err := NewEncryptorFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}
	return NewWithEncryptor(dbPath, enc)
}

// NewWithEncryptor is New with an explicit encryptor
func NewWithEncryptor(dbPath string, enc *encryptor) (*Database, error) {
	if err := security.ValidateDatabasePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	inMemory := strings.Contains(dbPath, ":memory:")
	if !inMemory {
		file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0o600) // #nosec G304 - Path validated above
		if err != nil {
			return nil, fmt.Errorf("failed to create database file: %w", err)
		}
		if err := file.Close(); err != nil {
			return nil, fmt.Errorf("failed to close database file: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, closeWith(db, fmt.Errorf("failed to ping database: %w", err))
	}

	if _, err := migrations.Apply(ctx, db); err != nil {
		return nil, closeWith(db, fmt.Errorf("failed to initialize schema: %w", err))
	}

	if enc == nil {
		enc = &encryptor{}
	}
	return &Database{db: db, encryptor: enc, logger: logrus.StandardLogger(), now: time.Now}, nil
}

// SetLogger replaces the logger used for row level warnings
func (d *Database) SetLogger(logger *logrus.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

func dsn(path string) string {
	if strings.HasPrefix(path, "file:") || path == ":memory:" {
		return path
	}
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
}

func closeWith(db *sql.DB, err error) error {
	if closeErr := db.Close(); closeErr != nil {
		return fmt.Errorf("%w (close error: %v)", err, closeErr)
	}
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping reports whether the database is reachable
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// SaveSession inserts the session or, when the id exists, refreshes its
// provider and credentials.
func (d *Database) SaveSession(ctx context.Context, rec models.SessionRecord) error {
	credentials, err := d.encryptor.Encrypt(rec.Credentials)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	now := d.now().UTC()
	created := rec.CreatedAt.UTC()
	if rec.CreatedAt.IsZero() {
		created = now
	}

	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, upsertSessionQuery,
			rec.ID, rec.Provider, credentials, rec.Authenticated, created, now)
		return err
	}, "save session")
}

// MarkAuthenticated records whether the session has completed pairing.
// Unknown ids are ignored.
func (d *Database) MarkAuthenticated(ctx context.Context, id string, authenticated bool) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, markAuthenticatedQuery, authenticated, d.now().UTC(), id)
		return err
	}, "mark session authenticated")
}

// DeleteSession removes the session row. Unknown ids are ignored.
func (d *Database) DeleteSession(ctx context.Context, id string) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, deleteSessionQuery, id)
		return err
	}, "delete session")
}

// ListSessions returns every persisted session in creation order. Rows that
// cannot be read, such as credentials sealed under another secret, are
// logged and left out so one bad row does not hide the rest.
func (d *Database) ListSessions(ctx context.Context) ([]models.SessionRecord, error) {
	rows, err := d.db.QueryContext(ctx, selectAllSessionsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var records []models.SessionRecord
	for rows.Next() {
		rec, err := d.scan(rows)
		if err != nil {
			d.logger.WithError(err).WithField("session_id", rec.ID).Warn("Skipping unreadable session row")
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (d *Database) scan(row scanner) (models.SessionRecord, error) {
	var rec models.SessionRecord
	var credentials string
	if err := row.Scan(&rec.ID, &rec.Provider, &credentials, &rec.Authenticated, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return rec, fmt.Errorf("failed to scan session: %w", err)
	}

	plain, err := d.encryptor.Decrypt(credentials)
	if err != nil {
		return rec, fmt.Errorf("failed to decrypt credentials for session %s: %w", rec.ID, err)
	}
	rec.Credentials = plain
	return rec, nil
}

const (
	upsertSessionQuery = `
		INSERT INTO sessions (id, provider, credentials, authenticated, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			provider = excluded.provider,
			credentials = excluded.credentials,
			authenticated = excluded.authenticated,
			updated_at = excluded.updated_at
	`

	markAuthenticatedQuery = `
		UPDATE sessions SET authenticated = ?, updated_at = ? WHERE id = ?
	`

	deleteSessionQuery = `DELETE FROM sessions WHERE id = ?`

	sessionColumns = `id, provider, credentials, authenticated, created_at, updated_at`

	selectAllSessionsQuery = `
		SELECT ` + sessionColumns + `
		FROM sessions
		ORDER BY created_at ASC, id ASC
	`
)
