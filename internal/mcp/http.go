package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// sseRetryPause spaces reconnect attempts to the notification stream.
const sseRetryPause = 5 * time.Second

// httpTransport reaches a remote server over streamable HTTP: requests
// POST to the server URL, notifications arrive on an SSE side channel
// at URL/sse.
type httpTransport struct {
	cfg *ServerConfig
	log *slog.Logger

	// rpc carries the per-call timeout; sse has none, a streaming GET
	// must outlive it.
	rpc *http.Client
	sse *http.Client

	seq       atomic.Int64
	notifCh   chan *frame
	up        atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newHTTPTransport(cfg *ServerConfig) *httpTransport {
	return &httpTransport{
		cfg:     cfg,
		log:     slog.Default().With("mcp_server", cfg.Name, "transport", "http"),
		rpc:     &http.Client{Timeout: cfg.requestTimeout()},
		sse:     &http.Client{},
		notifCh: make(chan *frame, 100),
		done:    make(chan struct{}),
	}
}

// open wires up the SSE listener. The initialize handshake itself is
// the client's job.
func (t *httpTransport) open(ctx context.Context) error {
	if t.cfg.URL == "" {
		return fmt.Errorf("URL is required for http transport")
	}

	t.up.Store(true)
	t.log.Info("HTTP transport ready", "url", t.cfg.URL)

	t.wg.Add(1)
	go t.listen(ctx)

	return nil
}

// close stops the SSE listener. Safe to call more than once.
func (t *httpTransport) close() error {
	t.up.Store(false)
	t.closeOnce.Do(func() { close(t.done) })
	t.wg.Wait()
	return nil
}

func (t *httpTransport) roundTrip(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.up.Load() {
		return nil, fmt.Errorf("not connected")
	}

	req, err := requestFrame(t.seq.Add(1), method, params)
	if err != nil {
		return nil, err
	}

	resp, err := t.postJSON(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var reply frame
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if reply.Error != nil {
		return nil, reply.Error
	}
	return reply.Result, nil
}

func (t *httpTransport) post(ctx context.Context, method string, params any) error {
	if !t.up.Load() {
		return fmt.Errorf("not connected")
	}

	n, err := notificationFrame(method, params)
	if err != nil {
		return err
	}

	resp, err := t.postJSON(ctx, n)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (t *httpTransport) notifications() <-chan *frame { return t.notifCh }

func (t *httpTransport) alive() bool { return t.up.Load() }

func (t *httpTransport) postJSON(ctx context.Context, f *frame) (*http.Response, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.rpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	return resp, nil
}

// listen keeps an SSE subscription alive, pausing between attempts.
// Servers without an SSE endpoint just cost one failed GET per pause.
func (t *httpTransport) listen(ctx context.Context) {
	defer t.wg.Done()

	streamURL := strings.TrimSuffix(t.cfg.URL, "/") + "/sse"
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		default:
		}

		t.stream(ctx, streamURL)

		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case <-time.After(sseRetryPause):
		}
	}
}

// stream holds one SSE connection open and forwards its events.
func (t *httpTransport) stream(ctx context.Context, url string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.log.Debug("failed to create SSE request", "error", err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.sse.Do(req)
	if err != nil {
		t.log.Debug("SSE connection failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.log.Debug("SSE returned non-200", "status", resp.StatusCode)
		return
	}
	t.log.Debug("SSE connected", "url", url)

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		default:
		}

		payload, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}

		var f frame
		if err := json.Unmarshal([]byte(payload), &f); err != nil || f.Method == "" {
			continue
		}

		select {
		case t.notifCh <- &f:
		default:
			t.log.Warn("notification channel full, dropping")
		}
	}

	if err := scanner.Err(); err != nil {
		t.log.Debug("SSE scanner error", "error", err)
	}
}
