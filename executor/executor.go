// Package executor runs the external tools a pipeline stage is built from:
// test runners, scanners, infrastructure tools, container engines. It
// provides output capture, console redirect, environment injection, retry
// logic, secret redaction, and context support for cancellation and
// timeouts.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Result holds the output and error from a command execution.
type Result struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
	Err      error
}

// Runner is the interface stages use to invoke external tools. The concrete
// Local implementation shells out; tests substitute fakes.
type Runner interface {
	// Run executes program with args and the given options.
	Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error)
}

// Local is a Runner backed by os/exec. Its base options are applied to every
// invocation and may be extended per call.
type Local struct {
	base *Options
}

// Options configures command execution behavior.
type Options struct {
	// Output handling.
	CaptureStdout     bool
	CaptureStderr     bool
	CaptureCombined   bool
	RedirectToConsole bool

	// Retry configuration. RetryOn, when set, decides whether a failure is
	// retried; a nil RetryOn retries every failure up to MaxRetries.
	MaxRetries int
	RetryDelay time.Duration
	RetryOn    func(error) bool

	// Working directory for the command.
	WorkingDir string

	// Environment variables appended to the current process environment.
	Env map[string]string

	// Stdin content piped to the command, if non-empty.
	Input string

	// Custom stdout/stderr writers, in addition to capture buffers.
	StdoutWriter io.Writer
	StderrWriter io.Writer

	// Redactor masks registered secret values in captured output and in
	// anything written to console or custom writers.
	Redactor *Redactor
}

// Option is a function that modifies Options.
type Option func(*Options)

// DefaultOptions returns the execution options used when no overrides are
// given: capture stdout and stderr, no retries, no console redirect.
func DefaultOptions() *Options {
	return &Options{
		CaptureStdout: true,
		CaptureStderr: true,
		RetryDelay:    time.Second,
		Env:           make(map[string]string),
	}
}

// NewLocal creates a Local runner. The given options become the base applied
// to every Run call.
func NewLocal(opts ...Option) *Local {
	base := DefaultOptions()
	for _, opt := range opts {
		opt(base)
	}
	return &Local{base: base}
}

// Run implements the Runner interface.
func (l *Local) Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error) {
	options := l.mergeOptions(opts...)

	maxAttempts := options.MaxRetries + 1
	var lastResult *Result

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := runOnce(ctx, program, args, options)
		lastResult = result

		if err == nil || attempt == maxAttempts {
			return result, err
		}

		if options.RetryOn != nil && !options.RetryOn(err) {
			return result, err
		}

		select {
		case <-ctx.Done():
			return result, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(options.RetryDelay):
		}
	}

	return lastResult, lastResult.Err
}

func (l *Local) mergeOptions(opts ...Option) *Options {
	merged := *l.base
	merged.Env = make(map[string]string, len(l.base.Env))
	for k, v := range l.base.Env {
		merged.Env[k] = v
	}
	for _, opt := range opts {
		opt(&merged)
	}
	return &merged
}

func runOnce(ctx context.Context, program string, args []string, options *Options) (*Result, error) {
	cmd := exec.CommandContext(ctx, program, args...)

	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}
	if len(options.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range options.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}
	if options.Input != "" {
		cmd.Stdin = strings.NewReader(options.Input)
	}

	stdoutBuf, stderrBuf, combinedBuf, flush := wireOutputs(cmd, options)

	err := cmd.Run()
	flush()
	result := buildResult(stdoutBuf, stderrBuf, combinedBuf, options.Redactor, err)

	if err != nil {
		// A cancelled context kills the child, and the raw exec error
		// ("signal: killed") carries no trace of the cancellation. Surface
		// the context error so callers can match it with errors.Is.
		if ctxErr := ctx.Err(); ctxErr != nil {
			cause := context.Cause(ctx)
			if cause == nil {
				cause = ctxErr
			}
			cancelErr := fmt.Errorf("command %q cancelled: %w", program, cause)
			result.Err = cancelErr
			return result, cancelErr
		}
		return result, fmt.Errorf("command %q failed: %w", program, err)
	}
	return result, nil
}

// wireOutputs connects capture buffers and any console or custom writers to
// the command. External writers are wrapped with the redactor so secret
// values never leave the process unmasked; capture buffers stay raw and are
// redacted once when the result is built.
func wireOutputs(cmd *exec.Cmd, options *Options) (*bytes.Buffer, *bytes.Buffer, *bytes.Buffer, func()) {
	var stdoutBuf, stderrBuf, combinedBuf bytes.Buffer

	var flushers []*redactingWriter
	guard := func(w io.Writer) io.Writer {
		if options.Redactor == nil {
			return w
		}
		rw := &redactingWriter{redactor: options.Redactor, dst: w}
		flushers = append(flushers, rw)
		return rw
	}

	var stdoutWriters []io.Writer
	if options.CaptureCombined {
		stdoutWriters = append(stdoutWriters, &combinedBuf)
	} else if options.CaptureStdout {
		stdoutWriters = append(stdoutWriters, &stdoutBuf)
	}
	if options.RedirectToConsole {
		stdoutWriters = append(stdoutWriters, guard(os.Stdout))
	}
	if options.StdoutWriter != nil {
		stdoutWriters = append(stdoutWriters, guard(options.StdoutWriter))
	}
	if len(stdoutWriters) > 0 {
		cmd.Stdout = io.MultiWriter(stdoutWriters...)
	}

	var stderrWriters []io.Writer
	if options.CaptureCombined {
		stderrWriters = append(stderrWriters, &combinedBuf)
	} else if options.CaptureStderr {
		stderrWriters = append(stderrWriters, &stderrBuf)
	}
	if options.RedirectToConsole {
		stderrWriters = append(stderrWriters, guard(os.Stderr))
	}
	if options.StderrWriter != nil {
		stderrWriters = append(stderrWriters, guard(options.StderrWriter))
	}
	if len(stderrWriters) > 0 {
		cmd.Stderr = io.MultiWriter(stderrWriters...)
	}

	flush := func() {
		for _, rw := range flushers {
			_ = rw.Flush()
		}
	}
	return &stdoutBuf, &stderrBuf, &combinedBuf, flush
}

func buildResult(stdoutBuf, stderrBuf, combinedBuf *bytes.Buffer, redactor *Redactor, err error) *Result {
	mask := func(s string) string {
		if redactor == nil {
			return s
		}
		return redactor.Redact(s)
	}

	result := &Result{
		Stdout:   mask(stdoutBuf.String()),
		Stderr:   mask(stderrBuf.String()),
		Combined: mask(combinedBuf.String()),
		Err:      err,
	}

	var exitErr *exec.ExitError
	switch {
	case err != nil && errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case err == nil:
		result.ExitCode = 0
	default:
		result.ExitCode = -1
	}

	return result
}

// Option functions for fluent configuration.

// WithCapture configures output capture.
func WithCapture(stdout, stderr, combined bool) Option {
	return func(o *Options) {
		o.CaptureStdout = stdout
		o.CaptureStderr = stderr
		o.CaptureCombined = combined
	}
}

// WithConsoleRedirect enables or disables relaying output to the console.
func WithConsoleRedirect(redirect bool) Option {
	return func(o *Options) {
		o.RedirectToConsole = redirect
	}
}

// WithRetry configures retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(o *Options) {
		o.MaxRetries = maxRetries
		o.RetryDelay = delay
	}
}

// WithRetryCondition sets a custom retry condition.
func WithRetryCondition(fn func(error) bool) Option {
	return func(o *Options) {
		o.RetryOn = fn
	}
}

// WithWorkingDir sets the working directory.
func WithWorkingDir(dir string) Option {
	return func(o *Options) {
		o.WorkingDir = dir
	}
}

// WithEnv adds environment variables.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		for k, v := range env {
			o.Env[k] = v
		}
	}
}

// WithEnvVar adds a single environment variable.
func WithEnvVar(key, value string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		o.Env[key] = value
	}
}

// WithInput pipes the given content to the command's stdin.
func WithInput(input string) Option {
	return func(o *Options) {
		o.Input = input
	}
}

// WithStdoutWriter sets a custom stdout writer.
func WithStdoutWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StdoutWriter = w
	}
}

// WithStderrWriter sets a custom stderr writer.
func WithStderrWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StderrWriter = w
	}
}

// WithRedactor masks the redactor's registered values in all output.
func WithRedactor(r *Redactor) Option {
	return func(o *Options) {
		o.Redactor = r
	}
}

// CaptureAll captures output and relays it to the console simultaneously.
func CaptureAll() Option {
	return func(o *Options) {
		o.CaptureStdout = true
		o.CaptureStderr = true
		o.RedirectToConsole = true
	}
}

// SilentMode captures output without console redirect.
func SilentMode() Option {
	return func(o *Options) {
		o.CaptureStdout = true
		o.CaptureStderr = true
		o.RedirectToConsole = false
	}
}
