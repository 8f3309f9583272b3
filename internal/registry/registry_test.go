package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAddLookupRemove(t *testing.T) {
	dir := t.TempDir()
	regPath := filepath.Join(dir, FileName)
	projectDir := filepath.Join(dir, "proj")
	if err := os.MkdirAll(projectDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	reg, err := Open(regPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := reg.Add("demo", projectDir); err != nil {
		t.Fatalf("add: %v", err)
	}

	p, err := reg.Lookup("demo")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if p.Path != projectDir {
		t.Errorf("path = %q, want %q", p.Path, projectDir)
	}

	if _, err := reg.Lookup("missing"); err == nil {
		t.Error("lookup of unknown project succeeded")
	}

	if err := reg.Remove("demo"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := reg.Remove("demo"); err == nil {
		t.Error("second remove succeeded")
	}
}

func TestAddValidatesPath(t *testing.T) {
	dir := t.TempDir()
	reg, err := Open(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := reg.Add("ghost", filepath.Join(dir, "does-not-exist")); err == nil {
		t.Error("nonexistent path accepted")
	}
	if err := reg.Add("", dir); err == nil {
		t.Error("empty name accepted")
	}

	file := filepath.Join(dir, "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := reg.Add("file", file); err == nil {
		t.Error("plain file accepted as project path")
	}
}

func TestRegistryPersists(t *testing.T) {
	dir := t.TempDir()
	regPath := filepath.Join(dir, FileName)

	reg, err := Open(regPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := reg.Add("alpha", dir); err != nil {
		t.Fatalf("add: %v", err)
	}

	reloaded, err := Open(regPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	projects := reloaded.List()
	if len(projects) != 1 || projects[0].Name != "alpha" {
		t.Errorf("projects after reload = %+v", projects)
	}
}
