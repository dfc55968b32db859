package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Outcome is what came back from one external process invocation.
type Outcome struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runner executes an external command and waits for it to exit.
// An error is returned only when the process could not be run at all;
// a process that ran and exited nonzero is reported through Outcome.ExitCode.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Outcome, error)
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct{}

// Run starts name with args, captures both output streams and waits for exit.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (*Outcome, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := &Outcome{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, fmt.Errorf("failed to execute %s: %w", name, err)
	}
	return out, nil
}
