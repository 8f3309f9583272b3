package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hive/internal/feature"
)

var (
	depKind  string
	depNotes string
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Manage feature dependencies",
}

var depsAddCmd = &cobra.Command{
	Use:   "add <feature-id> <depends-on-id>",
	Short: "Record that a feature depends on another",
	Long: `Record a dependency edge. Kinds "blocks" and "requires" gate
scheduling; "related" is informational. Edges that would create a cycle
are rejected.`,
	Args: cobra.ExactArgs(2),
	RunE: runDepsAdd,
}

var depsRemoveCmd = &cobra.Command{
	Use:   "rm <feature-id> <depends-on-id>",
	Short: "Remove a dependency edge",
	Args:  cobra.ExactArgs(2),
	RunE:  runDepsRemove,
}

var depsListCmd = &cobra.Command{
	Use:   "list <feature-id>",
	Short: "Show what a feature depends on and what depends on it",
	Args:  cobra.ExactArgs(1),
	RunE:  runDepsList,
}

var depsBlockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "List pending features waiting on unfinished dependencies",
	RunE:  runDepsBlocked,
}

var depsReadyCmd = &cobra.Command{
	Use:   "ready",
	Short: "List pending features whose dependencies are satisfied",
	RunE:  runDepsReady,
}

func init() {
	depsAddCmd.Flags().StringVar(&depKind, "kind", "blocks", "Dependency kind: blocks, requires or related")
	depsAddCmd.Flags().StringVar(&depNotes, "notes", "", "Optional notes on the edge")

	depsCmd.AddCommand(depsAddCmd)
	depsCmd.AddCommand(depsRemoveCmd)
	depsCmd.AddCommand(depsListCmd)
	depsCmd.AddCommand(depsBlockedCmd)
	depsCmd.AddCommand(depsReadyCmd)
}

func runDepsAdd(cmd *cobra.Command, args []string) error {
	featureID, err := parseFeatureID(args[0])
	if err != nil {
		return err
	}
	dependsOnID, err := parseFeatureID(args[1])
	if err != nil {
		return err
	}

	queue, _, _, err := openQueue()
	if err != nil {
		return err
	}
	defer queue.Store().Close()

	d, err := queue.AddDependency(featureID, dependsOnID, feature.DependencyKind(depKind), depNotes)
	if err != nil {
		return err
	}

	printStatus("✓", fmt.Sprintf("#%d now %s #%d", d.FeatureID, describeKind(d.Kind), d.DependsOnID), color.FgGreen)
	return nil
}

func describeKind(k feature.DependencyKind) string {
	switch k {
	case feature.DependencyRequires:
		return "requires"
	case feature.DependencyRelated:
		return "relates to"
	default:
		return "is blocked by"
	}
}

func runDepsRemove(cmd *cobra.Command, args []string) error {
	featureID, err := parseFeatureID(args[0])
	if err != nil {
		return err
	}
	dependsOnID, err := parseFeatureID(args[1])
	if err != nil {
		return err
	}

	queue, _, _, err := openQueue()
	if err != nil {
		return err
	}
	defer queue.Store().Close()

	if err := queue.RemoveDependency(featureID, dependsOnID); err != nil {
		return err
	}
	printStatus("✓", fmt.Sprintf("Removed dependency #%d -> #%d", featureID, dependsOnID), color.FgGreen)
	return nil
}

func runDepsList(cmd *cobra.Command, args []string) error {
	id, err := parseFeatureID(args[0])
	if err != nil {
		return err
	}

	queue, _, _, err := openQueue()
	if err != nil {
		return err
	}
	defer queue.Store().Close()

	dependsOn, err := queue.DependsOn(id)
	if err != nil {
		return err
	}
	dependents, err := queue.Dependents(id)
	if err != nil {
		return err
	}

	if len(dependsOn) == 0 && len(dependents) == 0 {
		fmt.Printf("Feature #%d has no dependencies.\n", id)
		return nil
	}

	for _, d := range dependsOn {
		fmt.Printf("#%d %s #%d\n", d.FeatureID, describeKind(d.Kind), d.DependsOnID)
	}
	for _, d := range dependents {
		fmt.Printf("#%d %s #%d\n", d.FeatureID, describeKind(d.Kind), d.DependsOnID)
	}
	return nil
}

func runDepsBlocked(cmd *cobra.Command, args []string) error {
	queue, _, _, err := openQueue()
	if err != nil {
		return err
	}
	defer queue.Store().Close()

	blocked, err := queue.BlockedFeatures()
	if err != nil {
		return err
	}
	if len(blocked) == 0 {
		fmt.Println("No blocked features.")
		return nil
	}
	for _, f := range blocked {
		printStatus("⊘", fmt.Sprintf("#%d [%s] %s", f.ID, f.Category, f.Name), color.FgRed)
	}
	return nil
}

func runDepsReady(cmd *cobra.Command, args []string) error {
	queue, _, _, err := openQueue()
	if err != nil {
		return err
	}
	defer queue.Store().Close()

	ready, err := queue.ReadyFeatures()
	if err != nil {
		return err
	}
	if len(ready) == 0 {
		fmt.Println("No ready features.")
		return nil
	}
	for _, f := range ready {
		printStatus("·", fmt.Sprintf("#%d [%s] %s", f.ID, f.Category, f.Name), color.FgWhite)
	}
	return nil
}
