package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/grovetools/remit/errors"
	"github.com/grovetools/remit/logging"
	"github.com/moby/patternmatcher"
	"github.com/sirupsen/logrus"
)

const recordExt = ".json"

// Store persists one JSON record per session id under a single directory.
// Writers never modify a record file in place: every write goes to a
// temporary file in the same directory and is renamed over the final name.
type Store struct {
	dir    string
	now    func() time.Time
	logger *logrus.Entry
}

// NewStore opens (and creates, if needed) a session store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("session store directory is empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return &Store{
		dir:    dir,
		now:    time.Now,
		logger: logging.NewLogger("sessions"),
	}, nil
}

// Dir returns the directory holding the record files.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+recordExt)
}

// Put writes the full record atomically. CreatedAt and UpdatedAt are filled in when zero.
func (s *Store) Put(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("nil session record")
	}
	if err := rec.validate(); err != nil {
		return err
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	return s.write(rec)
}

func (s *Store) write(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", rec.SessionID, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+rec.SessionID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write session %s: %w", rec.SessionID, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync session %s: %w", rec.SessionID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(rec.SessionID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename session file: %w", err)
	}
	return nil
}

// Get returns the current record. A missing record, an invalid id and an
// unparsable file all yield a SESSION_NOT_FOUND error; the unparsable file is removed.
func (s *Store) Get(sessionID string) (*Record, error) {
	if !validID(sessionID) {
		return nil, errors.SessionNotFound(sessionID)
	}
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.SessionNotFound(sessionID)
		}
		return nil, fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}

	rec, err := decode(sessionID, data)
	if err != nil {
		s.discard(sessionID, err)
		return nil, errors.SessionNotFound(sessionID).WithDetail("corrupt", true)
	}
	return rec, nil
}

func decode(sessionID string, data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec.SessionID != sessionID {
		return nil, fmt.Errorf("record names session %q", rec.SessionID)
	}
	if err := rec.validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) discard(sessionID string, cause error) {
	s.logger.WithError(errors.SessionCorrupt(sessionID, cause)).Warn("Discarding corrupt session record")
	if err := os.Remove(s.path(sessionID)); err != nil && !os.IsNotExist(err) {
		s.logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to remove corrupt session record")
	}
}

// Update applies fn to the current record and writes the result. It returns
// false when the session no longer exists. Status may only move forward and
// UpdatedAt is bumped on every write.
func (s *Store) Update(sessionID string, fn func(*Record)) (bool, error) {
	current, err := s.Get(sessionID)
	if err != nil {
		if errors.Is(err, errors.ErrCodeSessionNotFound) {
			return false, nil
		}
		return false, err
	}

	next := current.Clone()
	fn(next)
	next.SessionID = current.SessionID
	next.CreatedAt = current.CreatedAt
	if next.Status != current.Status && !current.Status.CanAdvanceTo(next.Status) {
		return true, fmt.Errorf("session %s: invalid status transition %s -> %s", sessionID, current.Status, next.Status)
	}

	next.UpdatedAt = s.now().UTC()
	if !next.UpdatedAt.After(current.UpdatedAt) {
		// Keep updated_at strictly increasing so it totally orders transitions.
		next.UpdatedAt = current.UpdatedAt.Add(time.Microsecond)
	}
	if err := s.write(next); err != nil {
		return true, err
	}
	return true, nil
}

// Delete removes a record. Deleting a missing session is not an error.
func (s *Store) Delete(sessionID string) error {
	if !validID(sessionID) {
		return nil
	}
	if err := os.Remove(s.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

// ListIDs returns the ids of all readable records, sorted. Corrupt records are
// removed as a side effect and are not listed.
func (s *Store) ListIDs() ([]string, error) {
	recs, err := s.List()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.SessionID)
	}
	return ids, nil
}

// List returns all readable records ordered by session id.
func (s *Store) List() ([]*Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var recs []*Record
	for _, entry := range entries {
		sessionID, ok := idFromName(entry)
		if !ok {
			continue
		}
		rec, err := s.Get(sessionID)
		if err != nil {
			if errors.Is(err, errors.ErrCodeSessionNotFound) {
				continue
			}
			return nil, err
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].SessionID < recs[j].SessionID })
	return recs, nil
}

// ListMatching returns the ids matching any of the glob patterns. A pattern
// prefixed with '!' excludes ids, as in .dockerignore files.
func (s *Store) ListMatching(patterns []string) ([]string, error) {
	ids, err := s.ListIDs()
	if err != nil || len(patterns) == 0 {
		return ids, err
	}
	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid session pattern: %w", err)
	}

	var matched []string
	for _, id := range ids {
		ok, err := pm.MatchesOrParentMatches(id)
		if err != nil {
			return nil, fmt.Errorf("match session %s: %w", id, err)
		}
		if ok {
			matched = append(matched, id)
		}
	}
	return matched, nil
}

// idFromName maps a directory entry to a session id, skipping temp files.
func idFromName(entry os.DirEntry) (string, bool) {
	name := entry.Name()
	if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
		return "", false
	}
	id := strings.TrimSuffix(name, recordExt)
	return id, validID(id)
}
