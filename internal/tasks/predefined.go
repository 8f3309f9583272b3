package tasks

import (
	"fmt"
	"sort"
)

// Task is a named, curated command agents can invoke without composing
// shell strings themselves.
type Task struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
}

// predefined is the stock task catalog. Every command passes the stock
// allow-list.
var predefined = map[string]Task{
	"git-status": {
		Name:        "git-status",
		Command:     "git status --short",
		Description: "Working tree status in short form",
	},
	"git-log": {
		Name:        "git-log",
		Command:     "git log --oneline -20",
		Description: "Last 20 commits, one line each",
	},
	"git-diff": {
		Name:        "git-diff",
		Command:     "git diff --stat",
		Description: "Summary of uncommitted changes",
	},
	"go-build": {
		Name:        "go-build",
		Command:     "go build ./...",
		Description: "Compile every package",
	},
	"go-test": {
		Name:        "go-test",
		Command:     "go test ./...",
		Description: "Run the full test suite",
	},
	"go-vet": {
		Name:        "go-vet",
		Command:     "go vet ./...",
		Description: "Static analysis over every package",
	},
	"npm-test": {
		Name:        "npm-test",
		Command:     "npm test",
		Description: "Run the package test script",
	},
	"npm-build": {
		Name:        "npm-build",
		Command:     "npm run build",
		Description: "Run the package build script",
	},
	"py-test": {
		Name:        "py-test",
		Command:     "pytest -x -q",
		Description: "Run pytest, stop on first failure",
	},
	"py-lint": {
		Name:        "py-lint",
		Command:     "ruff check .",
		Description: "Lint Python sources with ruff",
	},
	"py-typecheck": {
		Name:        "py-typecheck",
		Command:     "mypy .",
		Description: "Type-check Python sources",
	},
	"list-files": {
		Name:        "list-files",
		Command:     "ls -la",
		Description: "List files in the working directory",
	},
}

// Lookup resolves a predefined task by name.
func Lookup(name string) (Task, error) {
	t, ok := predefined[name]
	if !ok {
		return Task{}, fmt.Errorf("unknown task %q; run the task list to see what is available", name)
	}
	return t, nil
}

// Catalog returns every predefined task sorted by name.
func Catalog() []Task {
	out := make([]Task, 0, len(predefined))
	for _, t := range predefined {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
