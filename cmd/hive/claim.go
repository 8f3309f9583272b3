package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	claimAgentID string
	doneEvidence string
)

var claimCmd = &cobra.Command{
	Use:   "claim <feature-id>",
	Short: "Claim a feature for work",
	Long: `Atomically mark a feature in-progress. The claim fails when the
feature already passes or another agent holds it; losing agents should
pick a different feature rather than retry.`,
	Args: cobra.ExactArgs(1),
	RunE: runClaim,
}

var doneCmd = &cobra.Command{
	Use:   "done <feature-id>",
	Short: "Mark a claimed feature passing",
	Long: `Mark a feature passing. The transition is guarded: it is rate
limited, requires at least 50 characters of evidence, requires the
feature to be in progress, runs the feature's verification command if
one is set, and backs up the database before committing.`,
	Args: cobra.ExactArgs(1),
	RunE: runDone,
}

var skipCmd = &cobra.Command{
	Use:   "skip <feature-id>",
	Short: "Move a feature to the end of the queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runSkip,
}

var unstickCmd = &cobra.Command{
	Use:   "unstick <feature-id>",
	Short: "Release a stale in-progress claim",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnstick,
}

func init() {
	claimCmd.Flags().StringVar(&claimAgentID, "agent", "", "Agent id taking the claim (defaults to AGENT_ID)")
	doneCmd.Flags().StringVarP(&doneEvidence, "evidence", "e", "", "What was tested and what the results were (required)")
	doneCmd.MarkFlagRequired("evidence")
}

func parseFeatureID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid feature id %q", arg)
	}
	return id, nil
}

func runClaim(cmd *cobra.Command, args []string) error {
	id, err := parseFeatureID(args[0])
	if err != nil {
		return err
	}

	agentID := claimAgentID
	if agentID == "" {
		agentID = os.Getenv("AGENT_ID")
	}

	queue, _, _, err := openQueue()
	if err != nil {
		return err
	}
	defer queue.Store().Close()

	f, err := queue.MarkInProgress(id, agentID)
	if err != nil {
		return err
	}

	printStatus("▶", fmt.Sprintf("Claimed #%d %q (attempt %d)", f.ID, f.Name, f.AttemptCount), color.FgYellow)
	return nil
}

func runDone(cmd *cobra.Command, args []string) error {
	id, err := parseFeatureID(args[0])
	if err != nil {
		return err
	}

	queue, _, _, err := openQueue()
	if err != nil {
		return err
	}
	defer queue.Store().Close()

	f, err := queue.MarkPassing(cmd.Context(), id, doneEvidence)
	if err != nil {
		return err
	}

	printStatus("✓", fmt.Sprintf("Feature #%d %q is passing", f.ID, f.Name), color.FgGreen)
	return nil
}

func runSkip(cmd *cobra.Command, args []string) error {
	id, err := parseFeatureID(args[0])
	if err != nil {
		return err
	}

	queue, _, _, err := openQueue()
	if err != nil {
		return err
	}
	defer queue.Store().Close()

	res, err := queue.Skip(id)
	if err != nil {
		return err
	}

	printStatus("↷", fmt.Sprintf("%s (priority %d -> %d)", res.Message, res.OldPriority, res.NewPriority), color.FgYellow)
	return nil
}

func runUnstick(cmd *cobra.Command, args []string) error {
	id, err := parseFeatureID(args[0])
	if err != nil {
		return err
	}

	queue, _, _, err := openQueue()
	if err != nil {
		return err
	}
	defer queue.Store().Close()

	f, err := queue.ClearInProgress(id)
	if err != nil {
		return err
	}

	printStatus("✓", fmt.Sprintf("Released claim on #%d %q", f.ID, f.Name), color.FgGreen)
	return nil
}
