package mcptransport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cubicler/cubicler/pkg/cubicerrors"
	"github.com/cubicler/cubicler/pkg/logger"
)

// StdioTransport speaks newline-delimited JSON-RPC over a long-lived child
// process's stdin/stdout. A single background goroutine, started once in
// Initialize, owns the *bufio.Scanner for the process's entire lifetime and
// correlates each line to its waiting SendRequest by JSON-RPC id — the same
// discipline SSETransport uses for its event stream. This keeps the scanner
// itself single-owner even when a caller abandons SendRequest on ctx
// cancellation, so a later call never races a still-running read against a
// new one.
type StdioTransport struct {
	command string
	args    []string

	writeMu sync.Mutex // serializes stdin writes, independent of pending's lock
	stdin   io.WriteCloser

	mu      sync.Mutex
	cmd     *exec.Cmd
	pending map[string]chan Response
	readErr error
}

// NewStdioTransport builds a StdioTransport that launches command with args
// on Initialize.
func NewStdioTransport(command string, args ...string) *StdioTransport {
	return &StdioTransport{command: command, args: args, pending: make(map[string]chan Response)}
}

// Initialize starts the child process and its background read loop.
func (t *StdioTransport) Initialize(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd != nil {
		return nil
	}

	// The process is not tied to ctx: it outlives this call and is stopped
	// by Close.
	cmd := exec.Command(t.command, t.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}

	if err := cmd.Start(); err != nil {
		return &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}

	t.cmd = cmd
	t.stdin = stdin
	go t.readLoop(stdout)
	return nil
}

// readLoop is the scanner's sole owner for the process's lifetime. It never
// returns until the stream ends, so no second goroutine ever touches the
// scanner concurrently.
func (t *StdioTransport) readLoop(stdout io.ReadCloser) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var resp Response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			logger.Warnf("stdio transport for %s: dropping unparseable line: %v", t.command, err)
			continue
		}
		t.deliver(resp)
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}

	t.mu.Lock()
	t.readErr = err
	pending := t.pending
	t.pending = make(map[string]chan Response)
	t.mu.Unlock()

	for _, ch := range pending {
		ch <- ErrorResponse(nil, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err})
		close(ch)
	}
}

func (t *StdioTransport) deliver(resp Response) {
	key := fmt.Sprintf("%v", resp.ID)

	t.mu.Lock()
	ch, ok := t.pending[key]
	if ok {
		delete(t.pending, key)
	}
	t.mu.Unlock()

	if !ok {
		logger.Warnf("stdio transport for %s: no waiter for response id %v, dropping", t.command, resp.ID)
		return
	}
	ch <- resp
	close(ch)
}

// SendRequest writes req as a single line and blocks for the matching
// response line, correlated by JSON-RPC id. If ctx is cancelled first, the
// pending waiter is removed under lock before returning, so the still-alive
// readLoop finds no entry for that id and simply drops the late reply
// instead of misdelivering it to a later request.
func (t *StdioTransport) SendRequest(ctx context.Context, req Request) (Response, error) {
	t.mu.Lock()
	if t.cmd == nil {
		t.mu.Unlock()
		return Response{}, &cubicerrors.TransportFailureError{
			Reason: cubicerrors.ReasonIO,
			Cause:  fmt.Errorf("stdio transport for %s not initialized", t.command),
		}
	}
	if t.readErr != nil {
		err := t.readErr
		t.mu.Unlock()
		return Response{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}

	if req.ID == nil {
		req.ID = uuid.NewString()
	}
	key := fmt.Sprintf("%v", req.ID)

	ch := make(chan Response, 1)
	t.pending[key] = ch
	t.mu.Unlock()

	body, err := json.Marshal(req)
	if err != nil {
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
		return Response{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}

	t.writeMu.Lock()
	_, writeErr := t.stdin.Write(append(body, '\n'))
	t.writeMu.Unlock()
	if writeErr != nil {
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
		return Response{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: writeErr}
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
		return Response{}, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonTimeout, Cause: ctx.Err()}
	}
}

// Close terminates the child process.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}

	_ = t.stdin.Close()
	if err := t.cmd.Process.Kill(); err != nil {
		return &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}
	_ = t.cmd.Wait()
	return nil
}
