package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hive/internal/config"
	"hive/internal/feature"
	"hive/internal/pool"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove orphaned agent locks and crashed agent rows",
	Long: `Clean up after a crashed supervisor:
  - Remove .agents/*.lock files whose PID is dead or not an agent
  - Delete crashed agent rows from the project database

Use this when 'hive status' shows agents that no longer exist.`,
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	projectDir, err := resolveProjectDir()
	if err != nil {
		return err
	}

	removed, err := pool.CleanupOrphanedLocks(projectDir, cfg.Pool.AgentBinary)
	if err != nil {
		return err
	}
	for _, name := range removed {
		printStatus("✓", fmt.Sprintf("Removed orphaned lock %s", name), color.FgGreen)
	}

	store, err := feature.Open(projectDir)
	if err != nil {
		return err
	}
	defer store.Close()

	agents, err := store.ListAgents()
	if err != nil {
		return err
	}

	cleaned := 0
	for _, a := range agents {
		if a.Status == feature.AgentCrashed {
			if err := store.DeleteAgent(a.AgentID); err != nil {
				return err
			}
			cleaned++
		}
	}

	if len(removed) == 0 && cleaned == 0 {
		fmt.Println("Nothing to clean up.")
		return nil
	}
	printStatus("✓", fmt.Sprintf("Removed %d lock(s) and %d crashed agent row(s)", len(removed), cleaned), color.FgGreen)
	return nil
}
