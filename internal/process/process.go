package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/camkit/camserver/internal/logging"
)

// killWait bounds how long Stop waits for the process to reap after
// SIGKILL.
const killWait = 5 * time.Second

// ChunkHandler receives binary stdout chunks from the subprocess. The
// chunk is only valid for the duration of the call.
type ChunkHandler func(chunk []byte)

// LogParser extracts the severity and message from one stderr line.
type LogParser func(line string) (slog.Level, string)

// ExitCallback observes subprocess exit. requested is true when the
// exit was caused by Stop.
type ExitCallback func(err error, requested bool)

// Process supervises one subprocess.
type Process struct {
	name   string
	argv   []string
	log    logging.Logger
	outLog logging.Logger
	parser LogParser
	chunks ChunkHandler
	onExit ExitCallback
	stdin  bool

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdinPipe io.WriteCloser
	done      chan struct{}
	waitErr   error
	requested bool
}

// Option configures a Process.
type Option func(*Process)

// WithStdout streams binary stdout chunks to the handler instead of
// line-logging them.
func WithStdout(h ChunkHandler) Option {
	return func(p *Process) { p.chunks = h }
}

// WithStdin opens a stdin pipe, available via Stdin after Start.
func WithStdin() Option {
	return func(p *Process) { p.stdin = true }
}

// WithLogParser routes stderr lines through parser into logger.
func WithLogParser(logger logging.Logger, parser LogParser) Option {
	return func(p *Process) {
		p.outLog = logger
		p.parser = parser
	}
}

// WithExitCallback registers an exit observer. It runs on the waiter
// goroutine after the process has been reaped.
func WithExitCallback(cb ExitCallback) Option {
	return func(p *Process) { p.onExit = cb }
}

// New builds a process supervisor for the given argv.
func New(name string, argv []string, opts ...Option) *Process {
	p := &Process{
		name: name,
		argv: argv,
		log:  logging.GetLogger("process"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.outLog == nil {
		p.outLog = p.log
	}
	return p
}

// Name returns the supervisor's name, used in log attributes.
func (p *Process) Name() string { return p.name }

// Start launches the subprocess and its I/O goroutines.
func (p *Process) Start() error {
	if len(p.argv) == 0 {
		return errors.New("empty command")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return fmt.Errorf("%s already started", p.name)
	}

	cmd := exec.Command(p.argv[0], p.argv[1:]...)
	// Own process group so Stop can kill FFmpeg's children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if p.stdin {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("stdin pipe: %w", err)
		}
		p.stdinPipe = pipe
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
		return fmt.Errorf("start %s: %w", p.name, err)
	}
	p.cmd = cmd
	p.done = make(chan struct{})
	p.log.Info("process started", "name", p.name, "pid", cmd.Process.Pid)

	ioDone := make(chan struct{}, 2)
	go func() {
		p.drainStdout(stdout)
		ioDone <- struct{}{}
	}()
	go func() {
		p.drainStderr(stderr)
		ioDone <- struct{}{}
	}()

	go func() {
		<-ioDone
		<-ioDone
		err := cmd.Wait()

		p.mu.Lock()
		p.waitErr = err
		requested := p.requested
		if p.stdinPipe != nil {
			p.stdinPipe.Close()
		}
		close(p.done)
		p.mu.Unlock()

		p.log.Info("process exited",
			"name", p.name, "exit_code", exitCode(err), "requested", requested)
		if p.onExit != nil {
			p.onExit(err, requested)
		}
	}()
	return nil
}

// Stdin returns the stdin pipe. Valid after Start when WithStdin was
// given.
func (p *Process) Stdin() io.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stdinPipe
}

// Running reports whether the subprocess has started and not yet
// exited.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Stop kills the subprocess group and waits for it to be reaped.
// Calling Stop on a never-started or already-exited process is a
// no-op.
func (p *Process) Stop() {
	p.mu.Lock()
	if p.cmd == nil {
		p.mu.Unlock()
		return
	}
	select {
	case <-p.done:
		p.mu.Unlock()
		return
	default:
	}
	p.requested = true
	pid := p.cmd.Process.Pid
	done := p.done
	p.mu.Unlock()

	p.log.Info("killing process", "name", p.name, "pid", pid)
	// Negative pid targets the whole process group.
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.log.Warn("kill failed", "name", p.name, "error", err)
	}

	select {
	case <-done:
	case <-time.After(killWait):
		p.log.Error("process did not exit after SIGKILL", "name", p.name, "pid", pid)
	}
}

// Wait blocks until the subprocess exits and returns its Wait error.
func (p *Process) Wait() error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return errors.New("not started")
	}
	<-done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

func (p *Process) drainStdout(r io.Reader) {
	if p.chunks == nil {
		p.drainLines(r)
		return
	}
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			p.chunks(buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				p.log.Warn("stdout read failed", "name", p.name, "error", err)
			}
			return
		}
	}
}

func (p *Process) drainStderr(r io.Reader) {
	p.drainLines(r)
}

func (p *Process) drainLines(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for scanner.Scan() {
		line := scanner.Text()
		level, msg := slog.LevelInfo, line
		if p.parser != nil {
			level, msg = p.parser(line)
		}
		switch level {
		case slog.LevelError:
			p.outLog.Error(msg)
		case slog.LevelWarn:
			p.outLog.Warn(msg)
		case slog.LevelDebug:
			p.outLog.Debug(msg)
		default:
			p.outLog.Info(msg)
		}
	}
	if err := scanner.Err(); err != nil {
		p.log.Warn("output read failed", "name", p.name, "error", err)
	}
}

// Run executes argv synchronously, logging stderr through parser, and
// returns the subprocess error. Cancelling ctx kills the process group.
func Run(ctx context.Context, name string, argv []string, logger logging.Logger, parser LogParser) error {
	p := New(name, argv, WithLogParser(logger, parser))
	if err := p.Start(); err != nil {
		return err
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- p.Wait() }()

	select {
	case err := <-waitDone:
		return err
	case <-ctx.Done():
		p.Stop()
		<-waitDone
		return ctx.Err()
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
