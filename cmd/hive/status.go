package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusVerbose bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backlog progress and registered agents",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false, "List every feature")
}

func runStatus(cmd *cobra.Command, args []string) error {
	queue, _, projectDir, err := openQueue()
	if err != nil {
		return err
	}
	defer queue.Store().Close()

	stats, err := queue.Stats()
	if err != nil {
		return err
	}

	fmt.Printf("Project: %s\n", projectDir)
	fmt.Printf("Features: %d total, %d passing, %d in progress (%.1f%% complete)\n",
		stats.Total, stats.Passing, stats.InProgress, stats.Percentage)

	agents, err := queue.Store().ListAgents()
	if err != nil {
		return err
	}
	if len(agents) > 0 {
		fmt.Printf("\nAgents:\n")
		for _, a := range agents {
			line := fmt.Sprintf("%s  %-8s  model=%s  pid=%d", a.AgentID, a.Status, a.Model, a.PID)
			if a.CurrentFeatureID != nil {
				line += fmt.Sprintf("  feature=%d", *a.CurrentFeatureID)
			}
			fmt.Println("  " + line)
		}
	}

	if !statusVerbose {
		return nil
	}

	features, err := queue.List()
	if err != nil {
		return err
	}

	fmt.Printf("\nBacklog:\n")
	for _, f := range features {
		switch {
		case f.Passes:
			printStatus("✓", fmt.Sprintf("#%d [%s] %s", f.ID, f.Category, f.Name), color.FgGreen)
		case f.InProgress:
			printStatus("▶", fmt.Sprintf("#%d [%s] %s (agent %s)", f.ID, f.Category, f.Name, f.AssignedToAgentID), color.FgYellow)
		default:
			printStatus("·", fmt.Sprintf("#%d [%s] %s", f.ID, f.Category, f.Name), color.FgWhite)
		}
	}
	return nil
}
