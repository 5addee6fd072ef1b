package validator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	DefaultCompiler   = "rustc"
	DefaultRunTimeout = 10 * time.Second
)

// ProgramResult is what happened when a Tracing program was built and run.
type ProgramResult struct {
	Compiled      bool
	CompileStderr string
	RunSucceeded  bool
	Stdout        string
	Stderr        string
}

// Toolchain compiles and runs the program of a Tracing question.
type Toolchain interface {
	Run(ctx context.Context, program string) (*ProgramResult, error)
}

// RustToolchain builds programs with rustc in a scratch directory that is
// removed when Run returns. Compile and run share one timeout.
type RustToolchain struct {
	Compiler string
	Timeout  time.Duration
	logger   *slog.Logger
}

func NewRustToolchain(compiler string, timeout time.Duration, logger *slog.Logger) *RustToolchain {
	if compiler == "" {
		compiler = DefaultCompiler
	}
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RustToolchain{Compiler: compiler, Timeout: timeout, logger: logger}
}

func (t *RustToolchain) Run(ctx context.Context, program string) (*ProgramResult, error) {
	dir, err := os.MkdirTemp("", "quiz-tracing-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create build directory: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "main.rs")
	if err := os.WriteFile(src, []byte(program), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write program: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	exe := filepath.Join(dir, "main")
	result := &ProgramResult{}

	_, stderr, err := t.exec(ctx, dir, t.Compiler, src, "-A", "warnings", "-o", exe)
	switch {
	case err == nil:
		result.Compiled = true
	case isExitError(err):
		result.CompileStderr = stderr
		t.logger.Debug("Program does not compile", "dir", dir)
		return result, nil
	default:
		return nil, err
	}

	stdout, stderr, err := t.exec(ctx, dir, exe)
	switch {
	case err == nil:
		result.RunSucceeded = true
	case isExitError(err):
	default:
		return nil, err
	}
	result.Stdout = stdout
	result.Stderr = stderr
	return result, nil
}

func (t *RustToolchain) exec(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", "", fmt.Errorf("%w after %s", ErrToolchainTimeout, t.Timeout)
		}
		return "", "", ctx.Err()
	}
	if err != nil && !isExitError(err) {
		return "", "", fmt.Errorf("failed to run %s: %w", filepath.Base(name), err)
	}
	return stdout.String(), stderr.String(), err
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
