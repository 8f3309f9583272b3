// Package tasks runs shell commands on behalf of agents, restricted to
// an allow-list of executables. Commands run through `sh -c` so
// pipelines and chains work, but every segment's executable must be
// allow-listed before anything executes.
package tasks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"hive/internal/feature"
)

// Execution limits.
const (
	DefaultTimeout = 120 * time.Second
	// MaxOutputBytes caps combined stdout+stderr returned from Run.
	MaxOutputBytes = 500_000
)

// DefaultAllowedCommands is the stock executable allow-list. Matching
// is on the basename of each segment's first token.
var DefaultAllowedCommands = []string{
	"git", "npm", "npx", "pnpm", "node",
	"go", "gofmt",
	"python", "python3", "pip", "pip3", "ruff", "mypy", "pytest",
	"ls", "cat", "head", "tail", "wc", "grep", "find", "pwd", "echo",
}

// separatorRe splits a shell command on the chaining operators so each
// segment can be validated independently.
var separatorRe = regexp.MustCompile(`\s*(?:\|\||&&|;|\|)\s*`)

// Result is the outcome of one command execution.
type Result struct {
	Command   string        `json:"command"`
	ExitCode  int           `json:"exit_code"`
	Output    string        `json:"output"`
	TimedOut  bool          `json:"timed_out"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"duration"`
}

// Runner validates and executes allow-listed commands inside a working
// directory.
type Runner struct {
	workDir string
	allowed map[string]bool
	timeout time.Duration
}

// NewRunner creates a runner for workDir. A nil or empty allow-list
// uses DefaultAllowedCommands; a non-positive timeout uses
// DefaultTimeout.
func NewRunner(workDir string, allowed []string, timeout time.Duration) *Runner {
	if len(allowed) == 0 {
		allowed = DefaultAllowedCommands
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	set := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		set[name] = true
	}
	return &Runner{workDir: workDir, allowed: set, timeout: timeout}
}

// Allowed reports whether a bare executable name is on the allow-list.
func (r *Runner) Allowed(name string) bool {
	return r.allowed[name]
}

// Validate checks every segment of a possibly chained shell command
// against the allow-list without running anything. `cd` segments are
// permitted so chains like "cd sub && go test ./..." work; the shell
// builtin changes only the subshell's directory.
func (r *Runner) Validate(command string) error {
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("empty command")
	}

	for _, segment := range separatorRe.Split(command, -1) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		tokens, err := shellquote.Split(segment)
		if err != nil {
			return fmt.Errorf("parse command segment %q: %w", segment, err)
		}
		if len(tokens) == 0 {
			continue
		}

		name := filepath.Base(tokens[0])
		if name == "cd" {
			continue
		}
		if !r.allowed[name] {
			return fmt.Errorf("command %q is not allowed; permitted commands: %s",
				name, strings.Join(r.allowedNames(), ", "))
		}
	}
	return nil
}

func (r *Runner) allowedNames() []string {
	names := make([]string, 0, len(r.allowed))
	for name := range r.allowed {
		names = append(names, name)
	}
	// Keep the stock order where it applies, for stable error text.
	var ordered []string
	for _, name := range DefaultAllowedCommands {
		if r.allowed[name] {
			ordered = append(ordered, name)
		}
	}
	if len(ordered) == len(names) {
		return ordered
	}
	return names
}

// Run validates and executes a command, returning combined output. A
// timeout yields exit code -1 with TimedOut set rather than an error;
// the caller decides how to surface it.
func (r *Runner) Run(ctx context.Context, command string) (*Result, error) {
	if err := r.Validate(command); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.workDir
	cmd.Env = append(os.Environ(), "TERM=dumb", "NO_COLOR=1")

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	res := &Result{
		Command:  command,
		Output:   buf.String(),
		Duration: duration,
	}

	if len(res.Output) > MaxOutputBytes {
		res.Output = res.Output[:MaxOutputBytes] + "\n... [output truncated]"
		res.Truncated = true
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		res.ExitCode = -1
		res.TimedOut = true
	case err == nil:
		res.ExitCode = 0
	default:
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("run command: %w", err)
		}
	}
	return res, nil
}

// Verify runs a feature verification command with separate output
// streams. Verification commands bypass the allow-list: they were
// declared on the feature, not supplied by an agent at run time.
func (r *Runner) Verify(ctx context.Context, workDir, command string) (*feature.VerifyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), "TERM=dumb", "NO_COLOR=1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := &feature.VerifyResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		res.ExitCode = -1
		res.TimedOut = true
	case err == nil:
		res.ExitCode = 0
	default:
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("run verification command: %w", err)
		}
	}
	return res, nil
}

// Compile-time check that Runner satisfies the queue's verifier.
var _ feature.Verifier = (*Runner)(nil)
