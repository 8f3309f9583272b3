package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hive/internal/config"
	"hive/internal/feature"
	"hive/internal/tasks"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Run allow-listed shell commands in the project",
}

var taskRunCmd = &cobra.Command{
	Use:   "run <command...>",
	Short: "Validate and run a shell command",
	Long: `Run a shell command in the project root. Every segment of the
command (split on &&, ||, | and ;) must start with an allow-listed
executable; anything else is rejected before execution. Output is
capped and the run times out per configuration.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTaskRun,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List predefined tasks",
	RunE:  runTaskList,
}

var taskExecCmd = &cobra.Command{
	Use:   "exec <name>",
	Short: "Run a predefined task by name",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskExec,
}

func init() {
	taskCmd.AddCommand(taskRunCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskExecCmd)
}

// newVerifier builds the runner used for feature verification.
func newVerifier(cfg *config.Config, projectDir string) feature.Verifier {
	return tasks.NewRunner(projectDir, cfg.Tasks.AllowedCommands, cfg.Tasks.Timeout)
}

func newRunner() (*tasks.Runner, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	projectDir, err := resolveProjectDir()
	if err != nil {
		return nil, err
	}
	return tasks.NewRunner(projectDir, cfg.Tasks.AllowedCommands, cfg.Tasks.Timeout), nil
}

func runTaskRun(cmd *cobra.Command, args []string) error {
	runner, err := newRunner()
	if err != nil {
		return err
	}

	res, err := runner.Run(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	fmt.Print(res.Output)
	if res.TimedOut {
		printStatus("✗", fmt.Sprintf("Command timed out after %s", res.Duration.Round(0)), color.FgRed)
		return fmt.Errorf("command timed out")
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("command exited with code %d", res.ExitCode)
	}
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	for _, t := range tasks.Catalog() {
		fmt.Printf("%-14s %-24s %s\n", t.Name, t.Command, t.Description)
	}
	return nil
}

func runTaskExec(cmd *cobra.Command, args []string) error {
	t, err := tasks.Lookup(args[0])
	if err != nil {
		return err
	}

	runner, err := newRunner()
	if err != nil {
		return err
	}

	res, err := runner.Run(cmd.Context(), t.Command)
	if err != nil {
		return err
	}

	fmt.Print(res.Output)
	if res.ExitCode != 0 {
		return fmt.Errorf("task %s exited with code %d", t.Name, res.ExitCode)
	}
	return nil
}
