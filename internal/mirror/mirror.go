package mirror

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const queueSize = 256

type opKind int

const (
	opWrite opKind = iota
	opDelete
)

type op struct {
	kind   opKind
	roomID string
	text   string
}

// Store keeps a one-file-per-room plain-text mirror of room documents.
// The in-memory registry is always the source of truth; the mirror only
// exists so an active room ID survives a process restart. Writes are
// best-effort: they go through a single writer goroutine, which keeps
// per-room write order, and failures are logged and dropped without ever
// blocking or failing the caller.
type Store struct {
	dir   string
	queue chan op
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func New(dir string) *Store {
	s := &Store{
		dir:   dir,
		queue: make(chan op, queueSize),
	}
	s.wg.Add(1)
	go s.writer()
	return s
}

// Close stops accepting writes and drains the queue. Writes arriving
// after Close are dropped, matching the best-effort contract.
func (s *Store) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Store) enqueue(o op) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- o:
		return true
	default:
		return false
	}
}

// LoadOrInit returns the authoritative initial text for a room. Content
// already on disk wins over the fallback, so a restarted process recovers
// the last-written state. If no file exists, one is created with the
// fallback text. The mirror directory is created on demand; concurrent
// creation is harmless.
func (s *Store) LoadOrInit(roomID, fallback string) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", err
	}

	path := s.path(roomID)
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) == 0 {
			return fallback, nil
		}
		return string(data), nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	if err := os.WriteFile(path, []byte(fallback), 0644); err != nil {
		return "", err
	}
	return fallback, nil
}

// Persist queues a full overwrite of the room's mirror file. Fire and
// forget: if the queue is full the write is dropped and logged.
func (s *Store) Persist(roomID, text string) {
	if !s.enqueue(op{kind: opWrite, roomID: roomID, text: text}) {
		log.Printf("Mirror: dropping write for room %s", roomID)
	}
}

// Dispose queues deletion of the room's mirror file. Queued so it cannot
// be overtaken by an earlier Persist for the same room.
func (s *Store) Dispose(roomID string) {
	if !s.enqueue(op{kind: opDelete, roomID: roomID}) {
		log.Printf("Mirror: dropping delete for room %s", roomID)
	}
}

func (s *Store) writer() {
	defer s.wg.Done()

	for o := range s.queue {
		switch o.kind {
		case opWrite:
			if err := os.WriteFile(s.path(o.roomID), []byte(o.text), 0644); err != nil {
				log.Printf("Mirror: failed to write room %s: %v", o.roomID, err)
			}
		case opDelete:
			if err := os.Remove(s.path(o.roomID)); err != nil && !os.IsNotExist(err) {
				log.Printf("Mirror: failed to delete room %s: %v", o.roomID, err)
			}
		}
	}
}

func (s *Store) path(roomID string) string {
	return filepath.Join(s.dir, sanitize(roomID)+".txt")
}

// Room IDs are opaque client strings; flatten anything that could escape
// the mirror directory.
func sanitize(roomID string) string {
	if roomID == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, roomID)
}
