package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dlgen/internal/services"
)

// Identity is an authenticated user.
type Identity struct {
	Email string
	Name  string
	Admin bool
}

// Store persists login sessions in SQLite so a daemon restart does not log
// everyone out mid-shift.
type Store struct {
	db  *sql.DB
	ttl time.Duration
}

// OpenStore initializes the login session database at dbPath.
func OpenStore(dbPath string, ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "auth", "", "session ttl must be positive", nil)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	const schema = `
CREATE TABLE IF NOT EXISTS login_sessions (
	token TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	admin INTEGER NOT NULL DEFAULT 0,
	expires_at TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init auth schema: %w", err)
	}
	return &Store{db: db, ttl: ttl}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create issues a new session token for an identity.
func (s *Store) Create(ctx context.Context, identity Identity) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	expires := time.Now().Add(s.ttl).UTC().Format(time.RFC3339)
	admin := 0
	if identity.Admin {
		admin = 1
	}
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO login_sessions (token, email, name, admin, expires_at)
VALUES (?, ?, ?, ?, ?)`,
		token, identity.Email, identity.Name, admin, expires); err != nil {
		return "", fmt.Errorf("create login session: %w", err)
	}
	return token, nil
}

// Lookup resolves a token to its identity. Expired sessions are deleted and
// reported as not found.
func (s *Store) Lookup(ctx context.Context, token string) (Identity, error) {
	if strings.TrimSpace(token) == "" {
		return Identity{}, services.Wrap(services.ErrNotFound, "auth", "", "no session token", nil)
	}
	var identity Identity
	var admin int
	var expiresRaw string
	err := s.db.QueryRowContext(ctx, `
SELECT email, name, admin, expires_at FROM login_sessions WHERE token = ?`, token).
		Scan(&identity.Email, &identity.Name, &admin, &expiresRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, services.Wrap(services.ErrNotFound, "auth", "", "unknown session", nil)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("look up session: %w", err)
	}

	expires, err := time.Parse(time.RFC3339, expiresRaw)
	if err != nil || time.Now().After(expires) {
		_ = s.Delete(ctx, token)
		return Identity{}, services.Wrap(services.ErrNotFound, "auth", "", "session expired", nil)
	}
	identity.Admin = admin != 0
	return identity, nil
}

// Delete removes a session token; missing tokens are not an error.
func (s *Store) Delete(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM login_sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpired removes every expired session, returning how many were
// dropped.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM login_sessions WHERE expires_at < ?`,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}

func newToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
