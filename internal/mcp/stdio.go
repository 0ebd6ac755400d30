package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// stdioScanBuffer bounds one JSON-RPC line from the server.
const stdioScanBuffer = 1 << 20

// stdioTransport runs a server as a child process and exchanges
// newline-delimited JSON-RPC frames over its stdin/stdout. Stderr is
// drained into debug logs so a misbehaving server can be diagnosed.
type stdioTransport struct {
	cfg *ServerConfig
	log *slog.Logger

	cmd   *exec.Cmd
	stdin io.WriteCloser

	// writeMu keeps concurrent calls from interleaving partial lines
	// on the child's stdin.
	writeMu sync.Mutex

	waitersMu sync.Mutex
	waiters   map[int64]chan *frame
	seq       atomic.Int64

	notifCh   chan *frame
	up        atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newStdioTransport(cfg *ServerConfig) *stdioTransport {
	return &stdioTransport{
		cfg:     cfg,
		log:     slog.Default().With("mcp_server", cfg.Name, "transport", "stdio"),
		waiters: make(map[int64]chan *frame),
		notifCh: make(chan *frame, 100),
		done:    make(chan struct{}),
	}
}

func (t *stdioTransport) open(ctx context.Context) error {
	if t.cfg.Command == "" {
		return fmt.Errorf("command is required for stdio transport")
	}

	cmd := exec.CommandContext(ctx, t.cfg.Command, t.cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range t.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if t.cfg.WorkDir != "" {
		cmd.Dir = t.cfg.WorkDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.up.Store(true)
	t.log.Info("started MCP server process",
		"command", t.cfg.Command,
		"pid", cmd.Process.Pid)

	t.wg.Add(2)
	go t.pump(stdout)
	go t.drainStderr(stderr)

	return nil
}

// close kills the child and reaps it. Safe to call more than once.
func (t *stdioTransport) close() error {
	t.up.Store(false)
	t.closeOnce.Do(func() { close(t.done) })

	if t.stdin != nil {
		_ = t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	t.wg.Wait()
	if t.cmd != nil {
		_ = t.cmd.Wait()
	}
	return nil
}

func (t *stdioTransport) roundTrip(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.up.Load() {
		return nil, fmt.Errorf("not connected")
	}

	id := t.seq.Add(1)
	req, err := requestFrame(id, method, params)
	if err != nil {
		return nil, err
	}

	replyCh := make(chan *frame, 1)
	t.waitersMu.Lock()
	t.waiters[id] = replyCh
	t.waitersMu.Unlock()
	defer func() {
		t.waitersMu.Lock()
		delete(t.waiters, id)
		t.waitersMu.Unlock()
	}()

	if err := t.writeFrame(req); err != nil {
		return nil, err
	}

	timeout := t.cfg.requestTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		if reply.Error != nil {
			return nil, reply.Error
		}
		return reply.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("request timeout after %v", timeout)
	case <-t.done:
		return nil, fmt.Errorf("transport closed")
	}
}

func (t *stdioTransport) post(ctx context.Context, method string, params any) error {
	if !t.up.Load() {
		return fmt.Errorf("not connected")
	}

	n, err := notificationFrame(method, params)
	if err != nil {
		return err
	}
	return t.writeFrame(n)
}

func (t *stdioTransport) notifications() <-chan *frame { return t.notifCh }

func (t *stdioTransport) alive() bool { return t.up.Load() }

func (t *stdioTransport) writeFrame(f *frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// pump reads stdout line by line and routes each frame.
func (t *stdioTransport) pump(stdout io.Reader) {
	defer t.wg.Done()
	defer t.up.Store(false)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, stdioScanBuffer), stdioScanBuffer)

	for scanner.Scan() {
		select {
		case <-t.done:
			return
		default:
		}
		if line := scanner.Bytes(); len(line) > 0 {
			t.dispatch(line)
		}
	}

	if err := scanner.Err(); err != nil {
		t.log.Error("stdout scanner error", "error", err)
	}
}

// dispatch routes one inbound frame. Frames with an ID answer a
// pending call; frames with only a method are server notifications;
// anything else is noise and dropped.
func (t *stdioTransport) dispatch(line []byte) {
	var f frame
	if err := json.Unmarshal(line, &f); err != nil {
		t.log.Warn("undecodable frame from server", "error", err)
		return
	}

	if f.ID != nil {
		t.waitersMu.Lock()
		ch, ok := t.waiters[*f.ID]
		if ok {
			delete(t.waiters, *f.ID)
		}
		t.waitersMu.Unlock()
		if ok {
			ch <- &f
		}
		return
	}

	if f.Method != "" {
		select {
		case t.notifCh <- &f:
		default:
			t.log.Warn("notification channel full, dropping")
		}
	}
}

func (t *stdioTransport) drainStderr(stderr io.Reader) {
	defer t.wg.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		select {
		case <-t.done:
			return
		default:
		}
		if line := scanner.Text(); line != "" {
			t.log.Debug("server stderr", "message", line)
		}
	}
}
