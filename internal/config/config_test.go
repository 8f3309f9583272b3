package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromPathAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("pool:\n  max_agents: 3\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Pool.MaxAgents != 3 {
		t.Errorf("max_agents = %d, want 3 (from file)", cfg.Pool.MaxAgents)
	}
	if cfg.Pool.AgentBinary != "hive-agent" {
		t.Errorf("agent_binary = %q, want default", cfg.Pool.AgentBinary)
	}
	if cfg.Tasks.Timeout != 120*time.Second {
		t.Errorf("tasks timeout = %s, want 120s", cfg.Tasks.Timeout)
	}
	if cfg.Backup.Keep != 20 || cfg.Backup.Cooldown != time.Minute {
		t.Errorf("backup defaults = %+v", cfg.Backup)
	}
}

func TestLoadFromPathOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
pool:
  agent_binary: /usr/local/bin/worker
  default_model: test-model
tasks:
  timeout: 30s
  allowed_commands: [git, make]
queue:
  gate_on_dependencies: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Pool.AgentBinary != "/usr/local/bin/worker" {
		t.Errorf("agent_binary = %q", cfg.Pool.AgentBinary)
	}
	if cfg.Pool.DefaultModel != "test-model" {
		t.Errorf("default_model = %q", cfg.Pool.DefaultModel)
	}
	if cfg.Tasks.Timeout != 30*time.Second {
		t.Errorf("timeout = %s, want 30s", cfg.Tasks.Timeout)
	}
	if len(cfg.Tasks.AllowedCommands) != 2 {
		t.Errorf("allowed_commands = %v", cfg.Tasks.AllowedCommands)
	}
	if !cfg.Queue.GateOnDependencies {
		t.Error("gate_on_dependencies not read")
	}
}

func TestDefaultMatchesSetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	def := Default()
	if loaded.Pool != (PoolConfig{MaxAgents: def.Pool.MaxAgents, AgentBinary: def.Pool.AgentBinary, DefaultModel: def.Pool.DefaultModel}) {
		t.Errorf("pool defaults diverge: %+v vs %+v", loaded.Pool, def.Pool)
	}
	if loaded.Backup != def.Backup {
		t.Errorf("backup defaults diverge: %+v vs %+v", loaded.Backup, def.Backup)
	}
}
