package sessions

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/machellerogden/thinksuit-sub000/internal/debounce"
)

// DefaultStabilityWindow is how long a journal must stay quiet before a
// change is reported. Appends land as bursts of small writes; without the
// window a reader can observe half-flushed lines.
const DefaultStabilityWindow = 100 * time.Millisecond

// ChangeEvent is the single notification shape a subscription delivers.
type ChangeEvent struct {
	SessionID string `json:"sessionId"`
	Type      string `json:"type"` // always "change"
}

// Subscriber fans journal file changes out to per-session callbacks. One
// fsnotify watcher covers the hour directories of all watched sessions;
// a debouncer provides the write-stability window.
type Subscriber struct {
	registry  *Registry
	watcher   *fsnotify.Watcher
	debouncer *debounce.Debouncer[string]
	logger    *slog.Logger

	mu        sync.Mutex
	byPath    map[string]string                      // journal path -> sessionID
	callbacks map[string]map[int]func(ChangeEvent)   // sessionID -> token -> callback
	dirRefs   map[string]int                         // watched dir -> subscription count
	nextToken int
	closed    bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewSubscriber starts the watch loop. window <= 0 uses the default.
func NewSubscriber(registry *Registry, window time.Duration, logger *slog.Logger) (*Subscriber, error) {
	if window <= 0 {
		window = DefaultStabilityWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	s := &Subscriber{
		registry:  registry,
		watcher:   watcher,
		logger:    logger,
		byPath:    make(map[string]string),
		callbacks: make(map[string]map[int]func(ChangeEvent)),
		dirRefs:   make(map[string]int),
		done:      make(chan struct{}),
	}
	s.debouncer = debounce.New(
		debounce.WithWindow[string](window),
		debounce.WithKey[string](func(sessionID string) string { return sessionID }),
		debounce.WithFlush[string](s.emit),
	)

	go s.loop()
	return s, nil
}

// Subscribe registers onEvent for a session and returns an unsubscribe
// function. The journal's hour directory is watched (the file itself may
// not exist yet); unsubscribing the last subscriber of a directory stops
// its watch.
func (s *Subscriber) Subscribe(sessionID string, onEvent func(ChangeEvent)) (func(), error) {
	path, err := JournalPath(s.registry.Base(), sessionID)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fsnotify.ErrClosed
	}

	if s.dirRefs[dir] == 0 {
		if err := s.watcher.Add(dir); err != nil {
			return nil, err
		}
	}
	s.dirRefs[dir]++
	s.byPath[path] = sessionID

	token := s.nextToken
	s.nextToken++
	if s.callbacks[sessionID] == nil {
		s.callbacks[sessionID] = make(map[int]func(ChangeEvent))
	}
	s.callbacks[sessionID][token] = onEvent

	return func() { s.unsubscribe(sessionID, path, dir, token) }, nil
}

func (s *Subscriber) unsubscribe(sessionID, path, dir string, token int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cbs, ok := s.callbacks[sessionID]; ok {
		delete(cbs, token)
		if len(cbs) == 0 {
			delete(s.callbacks, sessionID)
			delete(s.byPath, path)
		}
	}
	if n, ok := s.dirRefs[dir]; ok {
		if n <= 1 {
			delete(s.dirRefs, dir)
			if !s.closed {
				if err := s.watcher.Remove(dir); err != nil {
					s.logger.Warn("removing session watch", "dir", dir, "error", err)
				}
			}
		} else {
			s.dirRefs[dir] = n - 1
		}
	}
}

// loop routes raw file notifications into the stability window.
func (s *Subscriber) loop() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			s.mu.Lock()
			sessionID, watched := s.byPath[filepath.Clean(ev.Name)]
			s.mu.Unlock()
			if watched {
				s.debouncer.Enqueue(sessionID)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("session watch error", "error", err)
		}
	}
}

// emit delivers one coalesced change notification per burst.
func (s *Subscriber) emit(sessionIDs []string) {
	sessionID := sessionIDs[0]

	s.mu.Lock()
	cbs := make([]func(ChangeEvent), 0, len(s.callbacks[sessionID]))
	for _, cb := range s.callbacks[sessionID] {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()

	ev := ChangeEvent{SessionID: sessionID, Type: "change"}
	for _, cb := range cbs {
		cb(ev)
	}
}

// Close releases the watcher and all pending windows.
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		s.debouncer.Stop()
		err = s.watcher.Close()
	})
	return err
}
