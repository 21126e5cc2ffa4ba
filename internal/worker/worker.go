// Package worker supervises a single worker agent process for one sub-agent
// run. It spawns the process, consumes its newline-delimited output stream,
// and reports the terminal exit state.
package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/ckirkland/conductor/pkg/models"
)

// Config describes how to invoke the worker agent executable.
type Config struct {
	// Command is the worker agent executable (e.g. "claude").
	Command string
	// Args are extra arguments placed before the instruction payload.
	Args []string
}

// Process supervises exactly one running worker agent.
type Process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	ctx        context.Context
	cancel     context.CancelFunc
	entries    chan Entry
	stderrDone chan struct{}

	mu        sync.Mutex
	stderrBuf []string
	started   bool
	stopped   bool
}

// Entry is one consumed output record or a stream-level error notice.
type Entry struct {
	// Record holds the classified entry when Err is nil.
	Record models.OutputEntry
	// Err is set for stream read failures (not for malformed lines, which
	// are skipped).
	Err error
}

// Start launches the worker agent bound to the given working directory and
// begins consuming its output stream. The returned Process must be waited on
// with Wait.
func Start(ctx context.Context, cfg Config, payload, dir string) (*Process, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("worker command not configured")
	}

	ctx, cancel := context.WithCancel(ctx)

	args := append([]string{}, cfg.Args...)
	args = append(args, "-p", payload)

	cmd := exec.CommandContext(ctx, cfg.Command, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	p := &Process{
		cmd:        cmd,
		ctx:        ctx,
		cancel:     cancel,
		entries:    make(chan Entry, 100),
		stderrDone: make(chan struct{}),
	}

	var err error
	p.stdout, err = cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	p.stderr, err = cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start worker process: %w", err)
	}
	p.started = true

	go p.readOutput()
	go p.readStderr()

	return p, nil
}

// Entries returns the channel of consumed output entries. It is closed when
// the output stream ends.
func (p *Process) Entries() <-chan Entry {
	return p.entries
}

// readOutput consumes stdout line by line. bufio.Scanner buffers partial
// lines across read chunks, so a record is only parsed once its terminator
// has been seen. Malformed lines are skipped, not fatal.
func (p *Process) readOutput() {
	defer close(p.entries)

	scanner := bufio.NewScanner(p.stdout)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		entry, ok, err := parseRecord(line)
		if err != nil || !ok {
			continue
		}

		select {
		case p.entries <- Entry{Record: entry}:
		case <-p.ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && p.ctx.Err() == nil {
		select {
		case p.entries <- Entry{Err: fmt.Errorf("read worker output: %w", err)}:
		default:
		}
	}
}

// readStderr captures free-form diagnostic text for the failure tail.
func (p *Process) readStderr() {
	defer close(p.stderrDone)

	scanner := bufio.NewScanner(p.stderr)
	buf := make([]byte, 16*1024)
	scanner.Buffer(buf, 256*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		p.mu.Lock()
		p.stderrBuf = append(p.stderrBuf, line)
		if len(p.stderrBuf) > 50 {
			p.stderrBuf = p.stderrBuf[len(p.stderrBuf)-50:]
		}
		p.mu.Unlock()
	}
}

// Stop sends a termination signal to the worker process. The caller still
// waits for the exit callback rather than severing the output stream.
func (p *Process) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	if p.stopped {
		return nil
	}
	p.stopped = true

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Fall back to hard cancellation if signalling fails.
		p.cancel()
		return fmt.Errorf("signal worker process: %w", err)
	}
	return nil
}

// Stopped reports whether Stop was called on this process.
func (p *Process) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Wait blocks until the worker process exits and returns its exit code.
// Exit code zero signals task success; anything else signals failure.
func (p *Process) Wait() int {
	defer p.cancel()

	// cmd.Wait closes the pipes; the stderr reader must finish first or
	// the captured tail can be truncated.
	<-p.stderrDone

	err := p.cmd.Wait()
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// StderrTail returns the last captured stderr lines joined together.
func (p *Process) StderrTail() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.stderrBuf, "\n")
}

// PID returns the process ID, or zero before start.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
