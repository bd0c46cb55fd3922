package sessions

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// EventKind classifies a change observed in the sessions directory.
type EventKind string

const (
	EventWritten EventKind = "written"
	EventRemoved EventKind = "removed"
)

// Event is one observed change. Record is nil for removals.
type Event struct {
	Kind      EventKind
	SessionID string
	Record    *Record
}

// Watch reports record changes until ctx is cancelled. Atomic writes show up
// as a rename of a temp file into place, which fsnotify reports as a Create.
func (s *Store) Watch(ctx context.Context, onEvent func(Event)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return err
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.handleEvent(event, onEvent)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Store) handleEvent(event fsnotify.Event, onEvent func(Event)) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
		return
	}
	sessionID := strings.TrimSuffix(name, recordExt)
	s.logger.Debugf("fsnotify event: %s op=%v", name, event.Op)

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		rec, err := s.Get(sessionID)
		if err != nil {
			// The record may already be gone again.
			if _, statErr := os.Stat(s.path(sessionID)); os.IsNotExist(statErr) {
				onEvent(Event{Kind: EventRemoved, SessionID: sessionID})
			}
			return
		}
		onEvent(Event{Kind: EventWritten, SessionID: sessionID, Record: rec})
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		onEvent(Event{Kind: EventRemoved, SessionID: sessionID})
	}
}
