package toolbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/freitascorp/deskclaw/pkg/logger"
	"github.com/freitascorp/deskclaw/pkg/platform"
)

// BlockedError rejects a command containing a blocked fragment.
type BlockedError struct {
	Fragment string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("refusing to run a dangerous command (contains %q)", e.Fragment)
}

func (e *BlockedError) ErrorCode() string { return "COMMAND_BLOCKED" }

func (e *BlockedError) ErrorDetails() map[string]any {
	return map[string]any{"blocked": e.Fragment}
}

// CommandResult is the outcome of execute_command. A non-zero exit is a
// result, not an error.
type CommandResult struct {
	Command          string   `json:"command"`
	WorkingDirectory string   `json:"working_directory"`
	ReturnCode       int      `json:"return_code"`
	Stdout           string   `json:"stdout"`
	Stderr           string   `json:"stderr"`
	Hints            []string `json:"hints,omitempty"`
}

// Executor runs free-form shell commands through the platform shell.
type Executor struct {
	env     platform.Env
	runner  platform.Runner
	blocked []string
	timeout time.Duration
}

func NewExecutor(env platform.Env, runner platform.Runner, blocked []string, timeout time.Duration) *Executor {
	return &Executor{env: env, runner: runner, blocked: blocked, timeout: timeout}
}

// Check returns a BlockedError when command contains a blocked fragment.
func (e *Executor) Check(command string) error {
	lower := strings.ToLower(command)
	for _, b := range e.blocked {
		if b != "" && strings.Contains(lower, strings.ToLower(b)) {
			return &BlockedError{Fragment: b}
		}
	}
	return nil
}

func (e *Executor) Run(ctx context.Context, command, dir string, timeout time.Duration) (CommandResult, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return CommandResult{}, errors.New("command is required")
	}
	if err := e.Check(command); err != nil {
		logger.WarnCF("toolbox", "Blocked command", map[string]any{"command": command})
		return CommandResult{}, err
	}
	if timeout <= 0 {
		timeout = e.timeout
	}
	if dir == "" {
		dir, _ = os.Getwd()
	} else {
		dir = clean(dir)
	}

	shell, args := e.env.Shell()
	out, err := e.runner.Run(ctx, platform.Command{
		Name:    shell,
		Args:    append(args, command),
		Dir:     dir,
		Timeout: timeout,
	})
	res := CommandResult{
		Command:          command,
		WorkingDirectory: dir,
		ReturnCode:       out.ExitCode,
		Stdout:           out.Stdout,
		Stderr:           out.Stderr,
	}

	var exitErr *platform.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, platform.ErrTimeout):
		return res, fmt.Errorf("command timed out after %v", timeout)
	case errors.As(err, &exitErr):
		res.ReturnCode = exitErr.Code
		res.Hints = platform.InstallHints(out.Combined())
		return res, nil
	default:
		return res, platform.WithHints(err)
	}
}
