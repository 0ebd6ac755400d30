package journal

import (
	"io"
)

// scanBufSize is the chunk size for forward scans.
const scanBufSize = 64 * 1024

// errStopScan aborts a scan early without reporting an error.
var errStopScan = sentinel("stop scan")

type sentinel string

func (s sentinel) Error() string { return string(s) }

// scanLines reads r in fixed-size chunks and invokes onLine for every
// normalized line with its terminator stripped. A terminator is "\n" or
// "\r\n"; a CRLF pair split across two reads still counts as one
// terminator. A lone CR is content. The final line needs no terminator.
// Empty lines are preserved. onLine may return errStopScan to end early.
func scanLines(r io.Reader, onLine func(line []byte) error) error {
	buf := make([]byte, scanBufSize)
	var line []byte
	sawCR := false

	emit := func() error {
		err := onLine(line)
		line = line[:0]
		return err
	}

	for {
		n, readErr := r.Read(buf)
		for _, b := range buf[:n] {
			if sawCR {
				sawCR = false
				if b == '\n' {
					if err := emit(); err != nil {
						if err == errStopScan {
							return nil
						}
						return err
					}
					continue
				}
				line = append(line, '\r')
			}
			switch b {
			case '\r':
				sawCR = true
			case '\n':
				if err := emit(); err != nil {
					if err == errStopScan {
						return nil
					}
					return err
				}
			default:
				line = append(line, b)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	if sawCR {
		line = append(line, '\r')
	}
	if len(line) > 0 {
		if err := emit(); err != nil && err != errStopScan {
			return err
		}
	}
	return nil
}

// lastLineOf extracts the final line of data, where data is the tail of a
// file. The second return is false when the line may continue before the
// start of data (no terminator found), telling the caller to widen the probe.
func lastLineOf(data []byte) ([]byte, bool) {
	// Drop the file's final terminator so "a\n" yields "a", not "".
	if n := len(data); n > 0 && data[n-1] == '\n' {
		data = data[:n-1]
		if n := len(data); n > 0 && data[n-1] == '\r' {
			data = data[:n-1]
		}
	}
	for i := len(data) - 1; i >= 0; i-- {
		if data[i] == '\n' {
			return data[i+1:], true
		}
	}
	return data, false
}
