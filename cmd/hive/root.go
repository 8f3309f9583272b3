package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hive/internal/config"
	"hive/internal/feature"
	"hive/internal/registry"
)

var (
	flagProject    string
	flagProjectDir string
)

var rootCmd = &cobra.Command{
	Use:   "hive",
	Short: "Feature queue orchestrator",
	Long: `Hive keeps a persistent, ordered backlog of features per project and
supervises a pool of agent subprocesses working through it.

Every state transition is guarded: marking a feature passing requires
evidence, passes rate limiting, runs the feature's verification command,
and lands in an append-only audit log. Agents claim features atomically,
so two agents never hold the same one.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "p", "", "Registered project name")
	rootCmd.PersistentFlags().StringVar(&flagProjectDir, "project-dir", "", "Project root directory (overrides --project)")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(skipCmd)
	rootCmd.AddCommand(unstickCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveProjectDir picks the project root: the explicit directory
// flag, a registry lookup by name, the PROJECT_DIR environment
// variable, or the current directory.
func resolveProjectDir() (string, error) {
	if flagProjectDir != "" {
		return filepath.Abs(flagProjectDir)
	}

	if dir := os.Getenv("PROJECT_DIR"); dir != "" && flagProject == "" {
		return filepath.Abs(dir)
	}

	if flagProject != "" {
		reg, err := openRegistry()
		if err != nil {
			return "", err
		}
		p, err := reg.Lookup(flagProject)
		if err != nil {
			return "", err
		}
		return p.Path, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return cwd, nil
}

// projectName returns the name used for pool and registry keys.
func projectName(projectDir string) string {
	if flagProject != "" {
		return flagProject
	}
	return filepath.Base(projectDir)
}

func openRegistry() (*registry.Registry, error) {
	return registry.Open(filepath.Join(filepath.Dir(config.GetUserConfigPath()), registry.FileName))
}

// openQueue opens the project store and wires the queue per config.
func openQueue() (*feature.Queue, *config.Config, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, "", err
	}

	projectDir, err := resolveProjectDir()
	if err != nil {
		return nil, nil, "", err
	}

	store, err := feature.Open(projectDir)
	if err != nil {
		return nil, nil, "", err
	}

	queue := feature.NewQueue(feature.QueueConfig{
		Store:              store,
		ProjectDir:         projectDir,
		Verifier:           newVerifier(cfg, projectDir),
		Backups:            feature.NewBackupManager(projectDir, cfg.Backup.Keep, cfg.Backup.Cooldown),
		GateOnDependencies: cfg.Queue.GateOnDependencies,
	})
	return queue, cfg, projectDir, nil
}

// printStatus prints a colored status line.
func printStatus(symbol, message string, attr color.Attribute) {
	color.New(attr).Printf("%s ", symbol)
	fmt.Println(message)
}
