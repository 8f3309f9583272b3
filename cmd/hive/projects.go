package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage the project registry",
}

var projectsAddCmd = &cobra.Command{
	Use:   "add <name> <path>",
	Short: "Register a project directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectsAdd,
}

var projectsRemoveCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Unregister a project (files are untouched)",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsRemove,
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered projects",
	RunE:  runProjectsList,
}

func init() {
	projectsCmd.AddCommand(projectsAddCmd)
	projectsCmd.AddCommand(projectsRemoveCmd)
	projectsCmd.AddCommand(projectsListCmd)
}

func runProjectsAdd(cmd *cobra.Command, args []string) error {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	if err := reg.Add(args[0], args[1]); err != nil {
		return err
	}
	printStatus("✓", fmt.Sprintf("Registered project %q", args[0]), color.FgGreen)
	return nil
}

func runProjectsRemove(cmd *cobra.Command, args []string) error {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	if err := reg.Remove(args[0]); err != nil {
		return err
	}
	printStatus("✓", fmt.Sprintf("Unregistered project %q", args[0]), color.FgGreen)
	return nil
}

func runProjectsList(cmd *cobra.Command, args []string) error {
	reg, err := openRegistry()
	if err != nil {
		return err
	}

	projects := reg.List()
	if len(projects) == 0 {
		fmt.Println("No registered projects.")
		return nil
	}
	for _, p := range projects {
		fmt.Printf("%-20s %s\n", p.Name, p.Path)
	}
	return nil
}
