package journal

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// DefaultMaxOpenStreams bounds concurrently open journal files.
const DefaultMaxOpenStreams = 32

var errStreamClosed = errors.New("journal: stream closed")

// Streams manages per-file append streams: created lazily on first write,
// evicted least-recently-used, flushed and closed together on shutdown.
// Appends to one file are serialized; appends to different files are
// independent.
type Streams struct {
	mu     sync.Mutex
	max    int
	open   map[string]*stream
	order  []string // LRU, most recently used last
	closed bool
	logger *slog.Logger
}

type stream struct {
	mu     sync.Mutex
	file   *os.File
	closed bool
}

// NewStreams returns a manager holding at most maxOpen files; maxOpen <= 0
// uses DefaultMaxOpenStreams.
func NewStreams(maxOpen int, logger *slog.Logger) *Streams {
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpenStreams
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Streams{
		max:    maxOpen,
		open:   make(map[string]*stream),
		logger: logger,
	}
}

// Append writes line plus a newline terminator to path, creating parent
// directories and the file on first use. The write is synced so readers
// and watchers observe complete lines.
func (s *Streams) Append(path string, line []byte) error {
	// Eviction can close a stream between lookup and write; retry once.
	for attempt := 0; attempt < 2; attempt++ {
		st, err := s.get(path)
		if err != nil {
			return err
		}
		err = st.append(line)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errStreamClosed) {
			return err
		}
	}
	return errStreamClosed
}

// get returns the open stream for path, opening and evicting as needed.
func (s *Streams) get(path string) (*stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errStreamClosed
	}
	if st, ok := s.open[path]; ok {
		s.touch(path)
		return st, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	st := &stream{file: f}
	s.open[path] = st
	s.order = append(s.order, path)

	for len(s.open) > s.max {
		victim := s.order[0]
		s.order = s.order[1:]
		vs := s.open[victim]
		delete(s.open, victim)
		if err := vs.close(); err != nil {
			s.logger.Warn("closing evicted journal stream", "path", victim, "error", err)
		}
	}
	return st, nil
}

func (s *Streams) touch(path string) {
	for i, p := range s.order {
		if p == path {
			s.order = append(append(s.order[:i:i], s.order[i+1:]...), path)
			return
		}
	}
	s.order = append(s.order, path)
}

// FlushAll syncs every open stream. Shutdown paths call this so no event
// is lost before exit.
func (s *Streams) FlushAll() error {
	s.mu.Lock()
	streams := make([]*stream, 0, len(s.open))
	for _, st := range s.open {
		streams = append(streams, st)
	}
	s.mu.Unlock()

	var firstErr error
	for _, st := range streams {
		if err := st.sync(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close flushes and closes every stream; the manager rejects later appends.
func (s *Streams) Close() error {
	s.mu.Lock()
	s.closed = true
	streams := make([]*stream, 0, len(s.open))
	for _, st := range s.open {
		streams = append(streams, st)
	}
	s.open = make(map[string]*stream)
	s.order = nil
	s.mu.Unlock()

	var firstErr error
	for _, st := range streams {
		if err := st.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (st *stream) append(line []byte) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return errStreamClosed
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := st.file.Write(buf); err != nil {
		return err
	}
	return st.file.Sync()
}

func (st *stream) sync() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return nil
	}
	return st.file.Sync()
}

func (st *stream) close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return nil
	}
	st.closed = true
	if err := st.file.Sync(); err != nil {
		st.file.Close()
		return err
	}
	return st.file.Close()
}
