package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	nextJSON       bool
	nextRegression int
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the next pending feature",
	Long: `Show the highest-priority feature that has not passed yet.

With --regression N, instead print a random sample of up to N passing
features suitable for regression re-testing.`,
	RunE: runNext,
}

func init() {
	nextCmd.Flags().BoolVar(&nextJSON, "json", false, "Emit JSON")
	nextCmd.Flags().IntVar(&nextRegression, "regression", 0, "Sample N passing features instead (1-10)")
}

func runNext(cmd *cobra.Command, args []string) error {
	queue, _, _, err := openQueue()
	if err != nil {
		return err
	}
	defer queue.Store().Close()

	if nextRegression > 0 {
		sample, err := queue.ForRegression(nextRegression)
		if err != nil {
			return err
		}
		if nextJSON {
			return json.NewEncoder(os.Stdout).Encode(sample)
		}
		for _, f := range sample {
			fmt.Printf("#%d [%s] %s\n", f.ID, f.Category, f.Name)
		}
		return nil
	}

	f, err := queue.Next()
	if err != nil {
		return err
	}
	if f == nil {
		fmt.Println("All features passing. Nothing to do.")
		return nil
	}

	if nextJSON {
		return json.NewEncoder(os.Stdout).Encode(f)
	}

	fmt.Printf("#%d [%s] %s (priority %d, attempts %d)\n", f.ID, f.Category, f.Name, f.Priority, f.AttemptCount)
	fmt.Printf("\n%s\n", f.Description)
	if len(f.Steps) > 0 {
		fmt.Println("\nSteps:")
		for i, step := range f.Steps {
			fmt.Printf("  %d. %s\n", i+1, step)
		}
	}
	if f.VerificationCommand != "" {
		fmt.Printf("\nVerification: %s\n", f.VerificationCommand)
	}
	return nil
}
