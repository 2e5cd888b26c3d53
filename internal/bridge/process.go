package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single engine run.
	DefaultTimeout = 10 * time.Second

	// waitDelay caps how long Wait blocks on inherited pipes after a kill.
	waitDelay = 2 * time.Second

	// stderrTailLines is how much diagnostic output an ExecutionError keeps.
	stderrTailLines = 5
)

// Compile-time interface satisfaction check.
var _ Invoker = (*ProcessInvoker)(nil)

// ProcessInvoker runs the engine as a fresh child process per call.
type ProcessInvoker struct {
	name    string
	dirs    []string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a ProcessInvoker.
type Option func(*ProcessInvoker)

// WithEngineName sets the engine's base name. The platform suffix is added
// automatically.
func WithEngineName(base string) Option {
	return func(p *ProcessInvoker) {
		if base != "" {
			p.name = ExecutableName(runtime.GOOS, base)
		}
	}
}

// WithSearchDirs adds directories searched before the working directory and
// its parent.
func WithSearchDirs(dirs ...string) Option {
	return func(p *ProcessInvoker) { p.dirs = append(p.dirs, dirs...) }
}

// WithTimeout sets the bounded wait on the engine process. Zero or negative
// values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(p *ProcessInvoker) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewProcessInvoker returns an invoker for the engine executable.
func NewProcessInvoker(logger *slog.Logger, opts ...Option) *ProcessInvoker {
	p := &ProcessInvoker{
		name:    ExecutableName(runtime.GOOS, DefaultEngineName),
		timeout: DefaultTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Invoke locates the engine, runs it with req encoded as arguments and decodes
// the first line it prints. The location is resolved on every call so a
// rebuilt engine is picked up without a restart.
func (p *ProcessInvoker) Invoke(ctx context.Context, req Request) (res Result, err error) {
	start := time.Now()
	defer func() {
		observeInvocation(err, time.Since(start))
	}()

	dirs, err := SearchDirs(p.dirs)
	if err != nil {
		return Result{}, err
	}
	path, err := Locate(p.name, dirs)
	if err != nil {
		return Result{}, err
	}

	args, err := EncodeArgs(req)
	if err != nil {
		return Result{}, err
	}

	return p.run(ctx, path, args)
}

func (p *ProcessInvoker) run(ctx context.Context, path string, args []string) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	stdout := &firstLineWriter{}
	stderr := &stderrLogger{logger: p.logger}

	cmd := exec.CommandContext(runCtx, path, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start engine: %w", err)
	}
	p.logger.Debug("engine started", "path", path, "pid", cmd.Process.Pid, "args", args)

	waitErr := cmd.Wait()
	stderr.flush()
	duration := int(time.Since(start).Milliseconds())

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		p.logger.Warn("engine timed out", "path", path, "timeout", p.timeout.String())
		return Result{DurationMS: duration}, fmt.Errorf("%w after %s", ErrTimeout, p.timeout)
	case ctx.Err() != nil:
		return Result{DurationMS: duration}, ctx.Err()
	}

	// A descendant holding the pipes open past WaitDelay does not void the
	// result line the engine itself already printed.
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		p.logger.Warn("engine output pipes held open after exit", "path", path)
		waitErr = nil
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code := exitErr.ExitCode()
			p.logger.Warn("engine exited non-zero", "exit_code", code, "duration_ms", duration)
			return Result{ExitCode: code, DurationMS: duration}, &ExecutionError{
				ExitCode: code,
				Stderr:   stderr.tailText(),
			}
		}
		return Result{DurationMS: duration}, fmt.Errorf("wait engine: %w", waitErr)
	}

	if stdout.overflow {
		p.logger.Warn("engine result line too large", "limit_bytes", MaxResultBytes, "duration_ms", duration)
		return Result{DurationMS: duration}, fmt.Errorf("%w: exceeds %d bytes", ErrOutputTooLarge, MaxResultBytes)
	}

	res, err := DecodeResult(stdout.line())
	res.DurationMS = duration
	if err != nil {
		return res, err
	}
	p.logger.Debug("engine finished", "primary", res.Primary, "duration_ms", duration)
	return res, nil
}

// maxLineBytes bounds a single buffered stderr line.
const maxLineBytes = 64 << 10

// MaxResultBytes bounds the result line. Longer lines fail the call with
// ErrOutputTooLarge rather than returning a cut-off payload.
const MaxResultBytes = 1 << 20

// firstLineWriter keeps the first line written to it and discards the rest.
type firstLineWriter struct {
	buf      []byte
	done     bool
	overflow bool
}

func (w *firstLineWriter) Write(b []byte) (int, error) {
	if w.done {
		return len(b), nil
	}
	chunk := b
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		chunk = b[:i]
		w.done = true
	}
	if room := MaxResultBytes - len(w.buf); len(chunk) > room {
		w.buf = append(w.buf, chunk[:room]...)
		w.overflow = true
		w.done = true
		return len(b), nil
	}
	w.buf = append(w.buf, chunk...)
	return len(b), nil
}

func (w *firstLineWriter) line() string {
	return strings.TrimRight(string(w.buf), "\r")
}

// stderrLogger logs each diagnostic line at debug level and keeps the last few.
type stderrLogger struct {
	logger  *slog.Logger
	partial []byte
	tail    []string
}

func (w *stderrLogger) Write(b []byte) (int, error) {
	w.partial = append(w.partial, b...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.emit(string(bytes.TrimRight(w.partial[:i], "\r")))
		w.partial = w.partial[i+1:]
	}
	if len(w.partial) > maxLineBytes {
		w.emit(string(w.partial))
		w.partial = w.partial[:0]
	}
	return len(b), nil
}

func (w *stderrLogger) emit(line string) {
	w.logger.Debug("engine stderr", "line", line)
	w.tail = append(w.tail, line)
	if len(w.tail) > stderrTailLines {
		w.tail = w.tail[1:]
	}
}

func (w *stderrLogger) flush() {
	if len(w.partial) > 0 {
		w.emit(string(w.partial))
		w.partial = nil
	}
}

func (w *stderrLogger) tailText() string {
	return strings.Join(w.tail, "\n")
}
