package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the status change log",
	Long: `Print the append-only status change log, most recent first. Rows are
written when features pass or lose stale claims and are never modified
afterward.`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "l", 20, "Rows to show (0 for all)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	queue, _, _, err := openQueue()
	if err != nil {
		return err
	}
	defer queue.Store().Close()

	changes, err := queue.StatusLog(auditLimit)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Println("No status changes recorded.")
		return nil
	}

	for _, c := range changes {
		fmt.Printf("%s  #%d %q  %s -> %s\n",
			c.Timestamp.Format(time.RFC3339), c.FeatureID, c.FeatureName, c.OldStatus, c.NewStatus)
		if c.Evidence != "" {
			fmt.Printf("    evidence: %s\n", c.Evidence)
		}
	}
	return nil
}
