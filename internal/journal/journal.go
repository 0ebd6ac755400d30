// Package journal implements the append-only JSONL session record: one
// writer per file with serialized appends, plus line-level readers that
// tolerate malformed entries and collapse CRLF terminators.
package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// tailProbeSize is the initial window for the last-line probe. The window
// doubles while no terminator is visible, so oversized final lines still
// resolve; ordinary journals resolve in one read.
const tailProbeSize = 64 * 1024

// Info describes a journal file without reading its contents.
type Info struct {
	Exists  bool
	Size    int64
	ModTime time.Time
}

// Journal reads and appends one session's JSONL file. Appends go through a
// shared Streams manager so each file has a single serialized writer.
type Journal struct {
	path    string
	streams *Streams
	logger  *slog.Logger
}

// New returns a Journal over path. The logger receives malformed-line
// warnings; nil means slog.Default.
func New(path string, streams *Streams, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{path: path, streams: streams, logger: logger}
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Append writes one event as a single JSON line.
func (j *Journal) Append(ev models.Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return j.streams.Append(j.path, line)
}

// AppendRaw writes an already-marshaled JSON line.
func (j *Journal) AppendRaw(line []byte) error {
	return j.streams.Append(j.path, line)
}

// Stat reports existence, size, and mtime.
func (j *Journal) Stat() (Info, error) {
	fi, err := os.Stat(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Info{}, nil
		}
		return Info{}, err
	}
	return Info{Exists: true, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// ReadLines returns every line of the file. A missing file reads as empty.
func (j *Journal) ReadLines() ([]string, error) {
	return j.ReadLinesFrom(0)
}

// ReadLinesFrom returns the lines at index and later, by a forward byte
// scan counting normalized newlines. An index at or past the line count
// returns an empty slice.
func (j *Journal) ReadLinesFrom(index int) ([]string, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	n := 0
	err = scanLines(f, func(line []byte) error {
		if n >= index {
			lines = append(lines, string(line))
		}
		n++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// ReadEvents parses every line into an Event. Malformed lines are skipped
// with a warning and never abort the read.
func (j *Journal) ReadEvents() ([]models.Event, error) {
	return j.ReadEventsFrom(0)
}

// ReadEventsFrom parses the lines at index and later.
func (j *Journal) ReadEventsFrom(index int) ([]models.Event, error) {
	lines, err := j.ReadLinesFrom(index)
	if err != nil {
		return nil, err
	}
	events := make([]models.Event, 0, len(lines))
	for i, line := range lines {
		if len(bytes.TrimSpace([]byte(line))) == 0 {
			continue
		}
		var ev models.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			j.logger.Warn("skipping malformed journal line",
				"path", j.path, "line", index+i, "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// LineCount returns the number of lines in the file.
func (j *Journal) LineCount() (int, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	n := 0
	err = scanLines(f, func([]byte) error {
		n++
		return nil
	})
	return n, err
}

// ReadFirstSecondLast returns the first, second, and last lines using
// constant-size probes from each end of the file, with empty strings where
// a line does not exist. A one-line file returns first == last, second "".
func (j *Journal) ReadFirstSecondLast() (first, second, last string, err error) {
	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", "", nil
		}
		return "", "", "", err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", "", "", err
	}
	size := fi.Size()
	if size == 0 {
		return "", "", "", nil
	}

	// Head probe: stop after two lines.
	head := make([]string, 0, 2)
	total := 0
	err = scanLines(f, func(line []byte) error {
		total++
		head = append(head, string(line))
		if len(head) == 2 {
			return errStopScan
		}
		return nil
	})
	if err != nil {
		return "", "", "", err
	}
	if len(head) > 0 {
		first = head[0]
	}
	if len(head) > 1 {
		second = head[1]
	}
	if total < 2 {
		// Zero or one line; the head scan saw the whole file.
		return first, second, first, nil
	}

	// Tail probe: widen geometrically until a terminator is in view.
	for probe := int64(tailProbeSize); ; probe *= 2 {
		if probe > size {
			probe = size
		}
		buf := make([]byte, probe)
		if _, err := f.ReadAt(buf, size-probe); err != nil && err != io.EOF {
			return "", "", "", err
		}
		line, terminated := lastLineOf(buf)
		if terminated || probe == size {
			return first, second, string(line), nil
		}
	}
}
