package platform

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// FakeResponse is a scripted result for FakeRunner.
type FakeResponse struct {
	Output Output
	Err    error
}

// FakeRunner replays scripted outputs keyed by the full command line
// ("name arg1 arg2"). It is used by adapter tests that must not touch the desktop.
type FakeRunner struct {
	mu        sync.Mutex
	responses map[string]FakeResponse
	prefixes  []prefixResponse
	paths     map[string]string
	calls     []Command
}

type prefixResponse struct {
	match    string
	contains bool
	resp     FakeResponse
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		responses: make(map[string]FakeResponse),
		paths:     make(map[string]string),
	}
}

// On scripts stdout for an exact command line.
func (f *FakeRunner) On(cmdline, stdout string) *FakeRunner {
	return f.Respond(cmdline, FakeResponse{Output: Output{Stdout: stdout}})
}

// Fail scripts a non-zero exit for an exact command line.
func (f *FakeRunner) Fail(cmdline string, code int, stderr string) *FakeRunner {
	return f.Respond(cmdline, FakeResponse{
		Output: Output{Stderr: stderr, ExitCode: code},
		Err:    &ExitError{Command: strings.Fields(cmdline)[0], Code: code, Output: stderr},
	})
}

func (f *FakeRunner) Respond(cmdline string, resp FakeResponse) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[cmdline] = resp
	return f
}

// OnPrefix scripts stdout for any command line starting with prefix.
// Useful for PowerShell scripts whose body is long.
func (f *FakeRunner) OnPrefix(prefix, stdout string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefixes = append(f.prefixes, prefixResponse{match: prefix, resp: FakeResponse{Output: Output{Stdout: stdout}}})
	return f
}

// OnContains scripts stdout for command lines containing substr.
func (f *FakeRunner) OnContains(substr, stdout string) *FakeRunner {
	return f.RespondContains(substr, FakeResponse{Output: Output{Stdout: stdout}})
}

// RespondContains scripts a full response for command lines containing substr.
func (f *FakeRunner) RespondContains(substr string, resp FakeResponse) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefixes = append(f.prefixes, prefixResponse{match: substr, contains: true, resp: resp})
	return f
}

// WithPath makes LookPath succeed for name.
func (f *FakeRunner) WithPath(name, path string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths[name] = path
	return f
}

func (f *FakeRunner) Run(_ context.Context, c Command) (Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)

	line := c.String()
	if resp, ok := f.responses[line]; ok {
		return resp.Output, resp.Err
	}
	// Later registrations win so tests can override earlier scripts.
	for i := len(f.prefixes) - 1; i >= 0; i-- {
		p := f.prefixes[i]
		if (p.contains && strings.Contains(line, p.match)) || (!p.contains && strings.HasPrefix(line, p.match)) {
			return p.resp.Output, p.resp.Err
		}
	}
	return Output{ExitCode: -1}, fmt.Errorf("start %s: %w", c.Name, exec.ErrNotFound)
}

func (f *FakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.paths[name]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}

// Calls returns the command lines run so far.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

// LastCommand returns the most recent invocation.
func (f *FakeRunner) LastCommand() (Command, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return Command{}, false
	}
	return f.calls[len(f.calls)-1], true
}
