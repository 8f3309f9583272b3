package tasks

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	r := NewRunner(t.TempDir(), nil, 0)

	cases := []struct {
		name    string
		command string
		wantOK  bool
	}{
		{"simple allowed", "git status", true},
		{"chained allowed", "git add . && git commit", true},
		{"piped allowed", "cat main.go | grep func | wc -l", true},
		{"semicolon allowed", "ls; pwd", true},
		{"cd segment ignored", "cd internal && go test ./...", true},
		{"path prefix stripped", "/usr/bin/git log", true},
		{"disallowed command", "rm -rf /", false},
		{"disallowed in chain", "ls && curl http://example.com", false},
		{"disallowed after pipe", "cat f | sh", false},
		{"empty command", "   ", false},
		{"unbalanced quote", `echo "unterminated`, false},
		{"cd alone is fine", "cd /tmp", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Validate(tc.command)
			if tc.wantOK && err != nil {
				t.Errorf("Validate(%q) = %v, want nil", tc.command, err)
			}
			if !tc.wantOK && err == nil {
				t.Errorf("Validate(%q) = nil, want error", tc.command)
			}
		})
	}
}

func TestValidateCustomAllowList(t *testing.T) {
	r := NewRunner(t.TempDir(), []string{"make"}, 0)

	if err := r.Validate("make build"); err != nil {
		t.Errorf("make rejected: %v", err)
	}
	if err := r.Validate("git status"); err == nil {
		t.Error("git allowed despite custom allow-list")
	}
}

func TestRunCapturesOutputAndExitCode(t *testing.T) {
	r := NewRunner(t.TempDir(), nil, 0)

	res, err := r.Run(context.Background(), "echo hello world")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if strings.TrimSpace(res.Output) != "hello world" {
		t.Errorf("output = %q", res.Output)
	}

	// grep with no match exits 1; that is a result, not an error.
	res, err = r.Run(context.Background(), "echo haystack | grep needle")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", res.ExitCode)
	}
}

func TestRunRejectsBeforeExecuting(t *testing.T) {
	r := NewRunner(t.TempDir(), nil, 0)

	if _, err := r.Run(context.Background(), "rm -rf ."); err == nil {
		t.Fatal("disallowed command executed")
	}
}

func TestRunTimeout(t *testing.T) {
	// `find` over /dev with a filter that never matches, plus a tight
	// timeout, exercises the deadline path with an allow-listed command.
	r := NewRunner("/", nil, 50*time.Millisecond)

	res, err := r.Run(context.Background(), "find / -name never-matches-anything-xyz")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.TimedOut {
		t.Skip("command finished before the deadline on this machine")
	}
	if res.ExitCode != -1 {
		t.Errorf("exit code on timeout = %d, want -1", res.ExitCode)
	}
}

func TestVerifySeparatesStreams(t *testing.T) {
	r := NewRunner(t.TempDir(), nil, 0)

	res, err := r.Verify(context.Background(), t.TempDir(), "echo out; echo err 1>&2; exit 3")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "out" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Errorf("stderr = %q", res.Stderr)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestLookupAndCatalog(t *testing.T) {
	if _, err := Lookup("no-such-task"); err == nil {
		t.Error("unknown task did not error")
	}

	task, err := Lookup("go-test")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if task.Command != "go test ./..." {
		t.Errorf("command = %q", task.Command)
	}

	r := NewRunner(t.TempDir(), nil, 0)
	for _, task := range Catalog() {
		if err := r.Validate(task.Command); err != nil {
			t.Errorf("predefined task %s fails validation: %v", task.Name, err)
		}
	}
}
