package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dlgen/internal/logging"
	"dlgen/internal/records"
	"dlgen/internal/services"
)

// OutputFormat selects what a finished run produces.
type OutputFormat string

const (
	// FormatZip bundles the merged PDFs into one downloadable archive.
	FormatZip OutputFormat = "zip"
	// FormatPrint keeps per-area PDFs on disk for direct printing.
	FormatPrint OutputFormat = "print"
)

// ParseOutputFormat validates a client-supplied output format.
func ParseOutputFormat(raw string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatZip:
		return FormatZip, nil
	case FormatPrint:
		return FormatPrint, nil
	default:
		return "", services.Wrap(services.ErrValidation, "session", "",
			fmt.Sprintf("unknown output format %q", raw), nil)
	}
}

// Session holds one user's working state: the uploaded record table, the
// selected letter type, cached template prototypes, and a private directory
// tree no other user's run can touch. At most one generation run may hold the
// session at a time.
type Session struct {
	identity string
	dir      string

	mu        sync.Mutex
	running   bool
	lastUsed  time.Time
	table     *records.Table
	mode      string
	format    OutputFormat
	templates map[string][]byte
}

// Identity returns the owner identity the session was created for.
func (s *Session) Identity() string { return s.identity }

// Dir returns the session's private root directory.
func (s *Session) Dir() string { return s.dir }

// DocumentsDir is where generated DOCX files for the current run land.
func (s *Session) DocumentsDir() string { return filepath.Join(s.dir, "documents") }

// PDFDir is where converted PDFs for the current run land.
func (s *Session) PDFDir() string { return filepath.Join(s.dir, "pdf") }

// OutputDir is where merged per-area PDFs and the download archive land.
func (s *Session) OutputDir() string { return filepath.Join(s.dir, "output") }

// TryLock claims the session for a generation run. It never blocks: a second
// concurrent run against the same session is a client error, not a queueing
// request.
func (s *Session) TryLock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.lastUsed = time.Now()
	return true
}

// Unlock releases the run claim.
func (s *Session) Unlock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.lastUsed = time.Now()
}

// Running reports whether a generation run currently holds the session.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetTable stores the parsed upload, replacing any previous one.
func (s *Session) SetTable(table *records.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = table
	s.lastUsed = time.Now()
}

// Table returns the uploaded record table, or nil when nothing was uploaded.
func (s *Session) Table() *records.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table
}

// SetMode records the selected letter type. Changing letter types drops the
// cached template prototypes so the next run fetches the new type's set.
func (s *Session) SetMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trimmed := strings.TrimSpace(mode)
	if trimmed != s.mode {
		s.templates = nil
	}
	s.mode = trimmed
	s.lastUsed = time.Now()
}

// Mode returns the selected letter type.
func (s *Session) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetOutputFormat records what the run should produce.
func (s *Session) SetOutputFormat(format OutputFormat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = format
	s.lastUsed = time.Now()
}

// Format returns the selected output format, defaulting to zip.
func (s *Session) Format() OutputFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.format == "" {
		return FormatZip
	}
	return s.format
}

// CacheTemplate stores template prototype bytes under a key. The stored copy
// is immutable: callers get their own copy back and fills always clone before
// substituting.
func (s *Session) CacheTemplate(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.templates == nil {
		s.templates = make(map[string][]byte)
	}
	s.templates[key] = append([]byte(nil), data...)
	s.lastUsed = time.Now()
}

// Template returns a copy of cached prototype bytes.
func (s *Session) Template(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.templates[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// ClearTemplates drops the template cache, forcing a re-fetch on the next run.
func (s *Session) ClearTemplates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = nil
}

// ResetRunDirs clears the per-run directories so a new run starts from empty
// output, leaving the uploaded table and cached templates in place.
func (s *Session) ResetRunDirs() error {
	for _, dir := range []string{s.DocumentsDir(), s.PDFDir(), s.OutputDir()} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("reset %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("recreate %s: %w", dir, err)
		}
	}
	return nil
}

// ClearScratchDirs empties the intermediate document and PDF directories once
// a run has merged its output. The merged files under OutputDir stay.
func (s *Session) ClearScratchDirs() error {
	for _, dir := range []string{s.DocumentsDir(), s.PDFDir()} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clear %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("recreate %s: %w", dir, err)
		}
	}
	return nil
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Store hands out per-identity sessions backed by private directories under a
// shared work root.
type Store struct {
	root   string
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates a session store rooted at dir.
func NewStore(root string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "session", "", "work root required", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create session root: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		root:     root,
		logger:   logging.WithComponent(logger, "session"),
		sessions: make(map[string]*Session),
	}, nil
}

// Get returns the identity's session, creating it with a fresh private
// directory on first use. The directory name carries a random suffix so a
// recreated session can never collide with leftovers from an earlier one.
func (st *Store) Get(identity string) (*Session, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, services.Wrap(services.ErrValidation, "session", "", "identity required", nil)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if existing, ok := st.sessions[identity]; ok {
		return existing, nil
	}

	dir := filepath.Join(st.root, sanitizeIdentity(identity)+"-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	sess := &Session{identity: identity, dir: dir, lastUsed: time.Now()}
	if err := sess.ResetRunDirs(); err != nil {
		return nil, err
	}
	st.sessions[identity] = sess
	st.logger.Info("session created",
		logging.String("identity", identity),
		logging.String("dir", dir))
	return sess, nil
}

// Remove drops an identity's session and deletes its directory tree. A
// running session is left alone.
func (st *Store) Remove(identity string) error {
	st.mu.Lock()
	sess, ok := st.sessions[identity]
	if ok && !sess.Running() {
		delete(st.sessions, identity)
	}
	st.mu.Unlock()

	if !ok {
		return nil
	}
	if sess.Running() {
		return services.Wrap(services.ErrConflict, "session", "",
			"session has a run in progress", nil)
	}
	if err := os.RemoveAll(sess.dir); err != nil {
		return fmt.Errorf("remove session directory: %w", err)
	}
	st.logger.Info("session removed", logging.String("identity", identity))
	return nil
}

// Sweep removes sessions idle for longer than maxIdle, skipping running ones.
// Returns the number of sessions removed.
func (st *Store) Sweep(maxIdle time.Duration) int {
	st.mu.Lock()
	var stale []string
	cutoff := time.Now().Add(-maxIdle)
	for identity, sess := range st.sessions {
		if !sess.Running() && sess.idleSince().Before(cutoff) {
			stale = append(stale, identity)
		}
	}
	st.mu.Unlock()

	removed := 0
	for _, identity := range stale {
		if err := st.Remove(identity); err == nil {
			removed++
		}
	}
	if removed > 0 {
		st.logger.Info("swept idle sessions", logging.Int("removed", removed))
	}
	return removed
}

func sanitizeIdentity(identity string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, identity)
	if len(mapped) > 40 {
		mapped = mapped[:40]
	}
	return mapped
}
