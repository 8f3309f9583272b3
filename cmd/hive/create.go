package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hive/internal/feature"
)

var (
	createCategory    string
	createName        string
	createDescription string
	createSteps       []string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Add a feature to the end of the queue",
	RunE:  runCreate,
}

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Bulk-import features from a JSON array",
	Long: `Import features from a JSON file holding an array of objects with
category, name, description and steps fields. Priorities are assigned
sequentially after the current maximum; any invalid entry aborts the
whole import.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	createCmd.Flags().StringVarP(&createCategory, "category", "c", "", "Feature category (required)")
	createCmd.Flags().StringVarP(&createName, "name", "n", "", "Feature name (required)")
	createCmd.Flags().StringVarP(&createDescription, "description", "d", "", "What the feature should do (required)")
	createCmd.Flags().StringArrayVarP(&createSteps, "step", "s", nil, "Implementation step (repeatable, required)")
	createCmd.MarkFlagRequired("category")
	createCmd.MarkFlagRequired("name")
	createCmd.MarkFlagRequired("description")
}

func runCreate(cmd *cobra.Command, args []string) error {
	queue, _, _, err := openQueue()
	if err != nil {
		return err
	}
	defer queue.Store().Close()

	f, err := queue.Create(feature.CreateItem{
		Category:    createCategory,
		Name:        createName,
		Description: createDescription,
		Steps:       createSteps,
	})
	if err != nil {
		return err
	}

	printStatus("✓", fmt.Sprintf("Created feature #%d %q at priority %d", f.ID, f.Name, f.Priority), color.FgGreen)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}

	var items []feature.CreateItem
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("parse import file: %w", err)
	}

	queue, _, _, err := openQueue()
	if err != nil {
		return err
	}
	defer queue.Store().Close()

	n, err := queue.CreateBulk(items)
	if err != nil {
		return err
	}

	printStatus("✓", fmt.Sprintf("Imported %d features", n), color.FgGreen)
	return nil
}
