// Package command runs external tools such as the Hugging Face CLI.
package command

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// Runner is the interface for running commands.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr []byte, err error)
}

// ExecRunner uses os/exec.
type ExecRunner struct{}

// Run runs a command and collects its output.
func (ExecRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Executor runs one binary with a per-call timeout.
type Executor struct {
	runner  Runner
	binary  string
	timeout time.Duration
}

// NewExecutor looks binary up in PATH (or takes it as a path) and returns an executor for it.
func NewExecutor(binary string, timeout time.Duration) (*Executor, error) {
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("binary not found: %w", err)
	}

	return &Executor{
		binary:  resolved,
		timeout: timeout,
		runner:  ExecRunner{},
	}, nil
}

// NewExecutorWithRunner creates an executor with a custom runner.
func NewExecutorWithRunner(binary string, timeout time.Duration, runner Runner) *Executor {
	return &Executor{
		binary:  binary,
		timeout: timeout,
		runner:  runner,
	}
}

// Binary returns the binary the executor runs.
func (e *Executor) Binary() string {
	return e.binary
}

// Execute runs the command and returns its output. A zero timeout means no limit.
func (e *Executor) Execute(ctx context.Context, args []string, stdin io.Reader) (stdout, stderr []byte, err error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	return e.runner.Run(ctx, e.binary, args, stdin)
}
