package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single external command.
const DefaultTimeout = 10 * time.Second

// Command is one external program invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Stdin   string
	Timeout time.Duration
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Output is what a command produced.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined joins stdout and stderr for error reporting.
func (o Output) Combined() string {
	out := strings.TrimSpace(o.Stdout)
	if e := strings.TrimSpace(o.Stderr); e != "" {
		if out != "" {
			out += "\n"
		}
		out += e
	}
	return out
}

// Runner executes external commands. Tests substitute FakeRunner.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
	LookPath(name string) (string, error)
}

// ErrTimeout is returned when a command outlives its timeout.
var ErrTimeout = errors.New("command timed out")

// ExitError reports a non-zero exit status.
type ExitError struct {
	Command string
	Code    int
	Output  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.Code)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

// Run is shorthand for r.Run with a name and arguments.
func Run(ctx context.Context, r Runner, name string, args ...string) (Output, error) {
	return r.Run(ctx, Command{Name: name, Args: args})
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Timeout time.Duration
}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{Timeout: DefaultTimeout}
}

func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run starts the command in its own process group so a timeout can kill
// the whole tree, then collects stdout and stderr.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Output, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = r.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, c.Name, c.Args...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}
	prepareCommandForTermination(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Output{ExitCode: -1}, fmt.Errorf("start %s: %w", c.Name, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var execErr error
	select {
	case execErr = <-done:
	case <-cmdCtx.Done():
		_ = terminateProcessTree(cmd)
		select {
		case execErr = <-done:
		case <-time.After(3 * time.Second):
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			execErr = <-done
		}
	}

	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}

	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		out.ExitCode = -1
		return out, fmt.Errorf("%s: %w after %v", c.Name, ErrTimeout, timeout)
	}
	if execErr != nil {
		var ee *exec.ExitError
		if errors.As(execErr, &ee) {
			out.ExitCode = ee.ExitCode()
			return out, &ExitError{Command: c.Name, Code: out.ExitCode, Output: out.Combined()}
		}
		out.ExitCode = -1
		return out, fmt.Errorf("run %s: %w", c.Name, execErr)
	}
	return out, nil
}
