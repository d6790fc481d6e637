// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/tomtom215/packetlens/internal/logging"
)

// ErrEmptyCommand is returned when Launch is given no argv.
var ErrEmptyCommand = errors.New("empty capture command")

// DefaultStderrTail is the number of stderr bytes kept per process.
const DefaultStderrTail = 4096

// Process is a running capture tool.
type Process interface {
	// Pid returns the operating system process id.
	Pid() int

	// Stdout is the tool's line-oriented output. Only one goroutine may read it.
	Stdout() io.Reader

	// StderrTail returns the last bytes the tool wrote to stderr.
	StderrTail() string

	// Terminate asks the tool to exit.
	Terminate() error

	// Kill forcibly stops the tool and its process group.
	Kill() error

	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}

	// ExitCode returns the exit status, or -1 while running or when killed
	// by a signal.
	ExitCode() int

	// ClosePipes closes the read ends of stdout and stderr, unblocking any
	// pending read.
	ClosePipes() error
}

// Launcher starts capture processes.
type Launcher interface {
	Launch(ctx context.Context, argv []string) (Process, error)
}

// ExecLauncher launches processes with os/exec.
type ExecLauncher struct {
	// StderrTail bounds the retained stderr. Zero uses DefaultStderrTail.
	StderrTail int
}

// Launch starts argv with its output connected to pipes owned by the
// returned Process. The process is not tied to ctx; it lives until
// Terminate or Kill.
func (l ExecLauncher) Launch(ctx context.Context, argv []string) (Process, error) {
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	//nolint:gosec // argv is built from validated configuration
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{stdoutR, stdoutW, stderrR, stderrW} {
			_ = f.Close()
		}
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}
	// The child holds its own copies of the write ends.
	_ = stdoutW.Close()
	_ = stderrW.Close()

	size := l.StderrTail
	if size <= 0 {
		size = DefaultStderrTail
	}
	p := &execProcess{
		cmd:      cmd,
		stdout:   stdoutR,
		stderr:   stderrR,
		tail:     newTailBuffer(size),
		done:     make(chan struct{}),
		exitCode: -1,
	}
	go p.drainStderr()
	go p.wait()

	logging.Info().
		Int("pid", cmd.Process.Pid).
		Strs("argv", argv).
		Msg("Capture process started")
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
	tail   *tailBuffer
	done   chan struct{}

	mu       sync.Mutex
	exitCode int

	closeOnce sync.Once
	closeErr  error
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Stdout() io.Reader { return p.stdout }

func (p *execProcess) StderrTail() string { return p.tail.String() }

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *execProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *execProcess) Terminate() error {
	if p.exited() {
		return nil
	}
	if err := terminateGroup(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("terminate pid %d: %w", p.Pid(), err)
	}
	return nil
}

func (p *execProcess) Kill() error {
	if p.exited() {
		return nil
	}
	if err := killGroup(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", p.Pid(), err)
	}
	return nil
}

func (p *execProcess) ClosePipes() error {
	p.closeOnce.Do(func() {
		p.closeErr = errors.Join(p.stdout.Close(), p.stderr.Close())
	})
	return p.closeErr
}

func (p *execProcess) drainStderr() {
	_, _ = io.Copy(p.tail, p.stderr)
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()
	p.mu.Lock()
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}
	p.mu.Unlock()
	close(p.done)

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		logging.Warn().Err(err).Int("pid", p.Pid()).Msg("Capture process wait failed")
	}
}

// tailBuffer keeps the last size bytes written to it.
type tailBuffer struct {
	mu   sync.Mutex
	size int
	buf  []byte
}

func newTailBuffer(size int) *tailBuffer {
	return &tailBuffer{size: size, buf: make([]byte, 0, size)}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(p)
	if n >= t.size {
		t.buf = append(t.buf[:0], p[n-t.size:]...)
		return n, nil
	}
	if over := len(t.buf) + n - t.size; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
