package agenttransport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/cubicler/cubicler/pkg/cubicerrors"
	"github.com/cubicler/cubicler/pkg/logger"
)

// DefaultMaxWorkers, DefaultAcquireTimeout, and DefaultStdioRequestTimeout are the
// stdio pool's knobs when an agent config leaves them unset.
const (
	DefaultMaxWorkers    = 4
	DefaultAcquireTimeout = 10 * time.Second
	DefaultStdioRequestTimeout = 30 * time.Second
	killGracePeriod      = 5 * time.Second
)

type stdioOutboundFrame struct {
	RequestID string       `json:"requestId"`
	Request   AgentRequest `json:"request"`
}

type stdioInboundFrame struct {
	RequestID string          `json:"requestId"`
	Response  json.RawMessage `json:"response"`
}

// stdioWorker is one long-lived child process, reused across dispatches
// while healthy (spec §4.10).
type stdioWorker struct {
	cmd   *exec.Cmd
	stdin *bufio.Writer
	stdinCloser interface{ Close() error }
	lines chan string
	done  chan struct{}
}

// StdioPool is a bounded pool of worker processes for a single
// stdio-configured agent, enforcing single-inflight-per-worker semantics and
// request/response correlation by id (spec §4.10).
type StdioPool struct {
	command string
	args    []string
	env     []string

	maxWorkers     int
	acquireTimeout time.Duration
	requestTimeout time.Duration

	sem  *semaphore.Weighted
	mu   sync.Mutex
	idle []*stdioWorker

	closed bool
}

// NewStdioPool builds a pool that spawns `command args...` on demand, up to
// maxWorkers concurrent workers.
func NewStdioPool(command string, args []string, env []string, maxWorkers int, acquireTimeout, requestTimeout time.Duration) *StdioPool {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}
	if requestTimeout <= 0 {
		requestTimeout = DefaultStdioRequestTimeout
	}
	return &StdioPool{
		command:        command,
		args:           args,
		env:            env,
		maxWorkers:     maxWorkers,
		acquireTimeout: acquireTimeout,
		requestTimeout: requestTimeout,
		sem:            semaphore.NewWeighted(int64(maxWorkers)),
	}
}

// Dispatch implements Transport: acquires a worker, performs exactly one
// request/response round trip, and always releases the worker (replacing it
// if it proved unhealthy).
func (p *StdioPool) Dispatch(ctx context.Context, req AgentRequest) (AgentResponse, error) {
	w, err := p.acquire(ctx)
	if err != nil {
		return AgentResponse{}, err
	}

	resp, healthy, err := p.roundTrip(ctx, w, req)
	p.release(w, healthy)
	if err != nil {
		return AgentResponse{}, err
	}
	return resp, nil
}

func (p *StdioPool) acquire(ctx context.Context) (*stdioWorker, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: fmt.Errorf("stdio pool is closed")}
	}
	p.mu.Unlock()

	acquireCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		return nil, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonTimeout, Cause: fmt.Errorf("timed out acquiring stdio worker: %w", err)}
	}

	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		w := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return w, nil
	}
	p.mu.Unlock()

	w, err := p.spawn()
	if err != nil {
		p.sem.Release(1)
		return nil, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}
	return w, nil
}

func (p *StdioPool) release(w *stdioWorker, healthy bool) {
	if !healthy {
		p.kill(w)
		p.sem.Release(1)
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.kill(w)
		p.sem.Release(1)
		return
	}
	p.idle = append(p.idle, w)
	p.mu.Unlock()
	p.sem.Release(1)
}

func (p *StdioPool) spawn() (*stdioWorker, error) {
	cmd := exec.Command(p.command, p.args...)
	if len(p.env) > 0 {
		cmd.Env = p.env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = &stderrLogWriter{}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	w := &stdioWorker{
		cmd:         cmd,
		stdin:       bufio.NewWriter(stdin),
		stdinCloser: stdin,
		lines:       make(chan string, 1),
		done:        make(chan struct{}),
	}

	go func() {
		defer close(w.lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case w.lines <- scanner.Text():
			case <-w.done:
				return
			}
		}
	}()

	return w, nil
}

// roundTrip writes one request and awaits exactly one correlated response,
// discarding mismatched ids up to the request timeout (spec §4.10).
func (p *StdioPool) roundTrip(ctx context.Context, w *stdioWorker, req AgentRequest) (AgentResponse, bool, error) {
	requestID := uuid.NewString()

	raw, err := json.Marshal(stdioOutboundFrame{RequestID: requestID, Request: req})
	if err != nil {
		return AgentResponse{}, true, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}

	if _, err := w.stdin.Write(append(raw, '\n')); err != nil {
		return AgentResponse{}, false, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}
	if err := w.stdin.Flush(); err != nil {
		return AgentResponse{}, false, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: err}
	}

	timer := time.NewTimer(p.requestTimeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				return AgentResponse{}, false, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonIO, Cause: fmt.Errorf("worker process exited")}
			}
			var frame stdioInboundFrame
			if err := json.Unmarshal([]byte(line), &frame); err != nil {
				return AgentResponse{}, false, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonParseFrame, Cause: err}
			}
			if frame.RequestID != requestID {
				logger.Warnf("agenttransport: stdio worker returned mismatched id %q, want %q; discarding", frame.RequestID, requestID)
				continue
			}
			resp, err := decodeAgentResponse(frame.Response)
			if err != nil {
				return AgentResponse{}, true, err
			}
			return resp, true, nil
		case <-timer.C:
			return AgentResponse{}, false, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonTimeout}
		case <-ctx.Done():
			return AgentResponse{}, false, &cubicerrors.TransportFailureError{Reason: cubicerrors.ReasonTimeout, Cause: ctx.Err()}
		}
	}
}

func (p *StdioPool) kill(w *stdioWorker) {
	close(w.done)
	_ = w.stdinCloser.Close()
	if w.cmd.Process == nil {
		return
	}
	_ = w.cmd.Process.Signal(syscall.SIGTERM)
	go func() {
		timer := time.NewTimer(killGracePeriod)
		defer timer.Stop()
		exited := make(chan struct{})
		go func() { _ = w.cmd.Wait(); close(exited) }()
		select {
		case <-exited:
		case <-timer.C:
			_ = w.cmd.Process.Kill()
		}
	}()
}

// Close retires every idle worker and marks the pool closed; workers
// currently checked out are killed as they're released.
func (p *StdioPool) Close() error {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, w := range idle {
		p.kill(w)
	}
	return nil
}

type stderrLogWriter struct{}

func (w *stderrLogWriter) Write(p []byte) (int, error) {
	logger.Warnf("agenttransport: stdio worker stderr: %s", bytes.TrimRight(p, "\n"))
	return len(p), nil
}
