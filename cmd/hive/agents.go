package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hive/internal/events"
	"hive/internal/feature"
	"hive/internal/pool"
)

var (
	agentsCount int
	agentsModel string
	agentsYolo  bool
	agentsAll   bool
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Supervise the project's agent pool",
}

var agentsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Spawn agents and supervise them until interrupted",
	Long: `Spawn N agents for the project and keep supervising them: stream
their sanitized output, poll liveness every 10 seconds, reap crashes,
and honor kill/pause signal files. Ctrl-C stops every agent before
exiting.`,
	RunE: runAgentsRun,
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents from the project database",
	RunE:  runAgentsList,
}

var agentsStopCmd = &cobra.Command{
	Use:   "stop [agent-id]",
	Short: "Request agents to stop via the signal files",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAgentsStop,
}

var agentsPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Request running agents to pause via the signal file",
	RunE:  runAgentsPause,
}

func init() {
	agentsRunCmd.Flags().IntVarP(&agentsCount, "count", "n", 1, "Number of agents to spawn")
	agentsRunCmd.Flags().StringVarP(&agentsModel, "model", "m", "", "Model passed to each agent")
	agentsRunCmd.Flags().BoolVar(&agentsYolo, "yolo", false, "Pass --yolo to each agent")

	agentsStopCmd.Flags().BoolVar(&agentsAll, "all", false, "Stop every agent")

	agentsCmd.AddCommand(agentsRunCmd)
	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsStopCmd)
	agentsCmd.AddCommand(agentsPauseCmd)
}

func runAgentsRun(cmd *cobra.Command, args []string) error {
	queue, cfg, projectDir, err := openQueue()
	if err != nil {
		return err
	}
	defer queue.Store().Close()

	name := projectName(projectDir)

	// Stale locks from a dead supervisor block nothing, but confuse
	// status output; clear them before spawning.
	if removed, err := pool.CleanupOrphanedLocks(projectDir, cfg.Pool.AgentBinary); err != nil {
		fmt.Fprintf(os.Stderr, "lock cleanup: %v\n", err)
	} else if len(removed) > 0 {
		printStatus("✓", fmt.Sprintf("Removed %d orphaned lock(s)", len(removed)), color.FgYellow)
	}

	bus := events.NewBus()
	defer bus.Close()

	sub := bus.Subscribe(0)
	go printAgentEvents(sub)

	mgr := pool.NewManager(pool.ManagerConfig{
		MaxAgents:    cfg.Pool.MaxAgents,
		AgentBinary:  cfg.Pool.AgentBinary,
		DefaultModel: cfg.Pool.DefaultModel,
		Bus:          bus,
	})
	p := mgr.ForProject(name, projectDir, queue.Store())

	watcher, err := pool.NewSignalWatcher(projectDir)
	if err != nil {
		return fmt.Errorf("watch signals: %w", err)
	}
	defer watcher.Close()
	watcher.ClearSignals()

	started, errs := p.SpawnAgents(agentsCount, agentsModel, agentsYolo)
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "spawn: %v\n", err)
	}
	if len(started) == 0 {
		return fmt.Errorf("no agents started")
	}
	printStatus("✓", fmt.Sprintf("Started %d agent(s) for %s", len(started), name), color.FgGreen)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	paused := false
	for {
		select {
		case <-interrupt:
			fmt.Println("\nStopping agents...")
			mgr.Shutdown()
			return nil
		case <-ticker.C:
			if watcher.ShouldStop() {
				fmt.Println("Kill signal received, stopping agents...")
				mgr.Shutdown()
				watcher.ClearSignals()
				return nil
			}
			for _, id := range watcher.AgentKills() {
				if err := p.StopAgent(id); err != nil {
					fmt.Fprintf(os.Stderr, "stop agent %s: %v\n", id, err)
				}
				watcher.ClearAgentKill(id)
			}
			if watcher.ShouldPause() && !paused {
				paused = true
				for _, snap := range p.GetStatus().Agents {
					if feature.AgentStatus(snap.Status) != feature.AgentPaused {
						p.PauseAgent(snap.AgentID)
					}
				}
			}

			p.HealthcheckAll()
			if p.Size() == 0 {
				fmt.Println("All agents exited.")
				return nil
			}
		}
	}
}

// printAgentEvents renders pool events to the terminal.
func printAgentEvents(sub *events.Subscription) {
	if sub == nil {
		return
	}
	for e := range sub.Events() {
		switch ev := e.(type) {
		case events.AgentLog:
			fmt.Printf("[%s] %s\n", ev.AgentID, ev.Line)
		case events.AgentInstanceStatus:
			printStatus("•", fmt.Sprintf("agent %s -> %s", ev.AgentID, ev.Status), color.FgCyan)
		case events.AgentPool:
			fmt.Printf("pool: %d active (%d idle, %d working)\n", ev.ActiveCount, ev.IdleCount, ev.WorkingCount)
		}
	}
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	queue, _, _, err := openQueue()
	if err != nil {
		return err
	}
	defer queue.Store().Close()

	agents, err := queue.Store().ListAgents()
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Println("No registered agents.")
		return nil
	}

	for _, a := range agents {
		line := fmt.Sprintf("%s  %-8s  model=%s  pid=%d", a.AgentID, a.Status, a.Model, a.PID)
		if a.CurrentFeatureID != nil {
			line += fmt.Sprintf("  feature=%d", *a.CurrentFeatureID)
		}
		if a.LastHeartbeat != nil {
			line += fmt.Sprintf("  heartbeat=%s", a.LastHeartbeat.Format(time.RFC3339))
		}
		fmt.Println(line)
	}
	return nil
}

func runAgentsStop(cmd *cobra.Command, args []string) error {
	if !agentsAll && len(args) == 0 {
		return fmt.Errorf("pass an agent id or --all")
	}

	projectDir, err := resolveProjectDir()
	if err != nil {
		return err
	}

	watcher, err := pool.NewSignalWatcher(projectDir)
	if err != nil {
		return err
	}
	defer watcher.Close()

	if agentsAll {
		if err := watcher.SendKill(); err != nil {
			return fmt.Errorf("send kill signal: %w", err)
		}
		printStatus("✓", "Kill signal sent; the supervisor will stop its agents", color.FgGreen)
		return nil
	}

	if err := watcher.SendAgentKill(args[0]); err != nil {
		return fmt.Errorf("send kill signal for agent %s: %w", args[0], err)
	}
	printStatus("✓", fmt.Sprintf("Kill signal sent for agent %s", args[0]), color.FgGreen)
	return nil
}

func runAgentsPause(cmd *cobra.Command, args []string) error {
	projectDir, err := resolveProjectDir()
	if err != nil {
		return err
	}

	watcher, err := pool.NewSignalWatcher(projectDir)
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.SendPause(); err != nil {
		return fmt.Errorf("send pause signal: %w", err)
	}
	printStatus("✓", "Pause signal sent; the supervisor will pause running agents", color.FgGreen)
	return nil
}
