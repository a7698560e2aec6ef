package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/schedule"
	"github.com/matsen/plib/internal/storage"
)

var scheduleDays int

func init() {
	scheduleCmd.Flags().IntVar(&scheduleDays, "days", -1, "Set the preprint rescrape interval in days (0 disables)")
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show or set the background preprint rescrape interval",
	Long: `Show the background rescrape state, or set its interval with --days.

The rescrape runs inside 'plib daemon'. A running daemon picks up the new
interval from the global config file without a restart.

Examples:
  plib schedule
  plib schedule --days 7
  plib schedule --days 0`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

// ScheduleInfo is the response for the schedule command.
type ScheduleInfo struct {
	Enabled      bool       `json:"enabled"`
	IntervalDays int        `json:"interval_days"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	NextDue      *time.Time `json:"next_due,omitempty"`
}

func runSchedule(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()
	ctx := cmd.Context()

	state, err := a.store.LoadScheduleState(ctx)
	if err != nil {
		exitWithError(ExitError, "loading schedule state: %v", err)
	}

	if cmd.Flags().Changed("days") {
		if scheduleDays < 0 {
			exitWithError(ExitError, "--days must be >= 0")
		}
		global := *a.global
		global.Scheduler.Enabled = scheduleDays > 0
		if scheduleDays > 0 {
			global.Scheduler.IntervalDays = scheduleDays
		}
		if err := global.Save(config.GlobalConfigPath()); err != nil {
			exitWithError(ExitConfigError, "%v", err)
		}
		state.IntervalDays = scheduleDays
		if err := a.store.SaveScheduleState(ctx, state); err != nil {
			exitWithError(ExitError, "saving schedule state: %v", err)
		}
		a.global = &global
	}

	info := scheduleInfo(a.global, state)
	if humanOutput {
		if !info.Enabled {
			outputHuman("Background rescrape: disabled\n")
		} else {
			outputHuman("Background rescrape: every %d days\n", info.IntervalDays)
		}
		if info.LastRun != nil {
			outputHuman("Last run: %s\n", info.LastRun.Local().Format(time.RFC1123))
		} else {
			outputHuman("Last run: never\n")
		}
		if info.NextDue != nil {
			outputHuman("Next due: %s\n", info.NextDue.Local().Format(time.RFC1123))
		}
	} else {
		outputJSON(info)
	}
	return nil
}

func scheduleInfo(global *config.GlobalConfig, state storage.ScheduleState) ScheduleInfo {
	info := ScheduleInfo{
		Enabled:      global.Scheduler.Enabled && global.Scheduler.IntervalDays > 0,
		IntervalDays: global.Scheduler.IntervalDays,
	}
	if !state.LastRun.IsZero() {
		last := state.LastRun
		info.LastRun = &last
	}
	if info.Enabled {
		next := time.Now()
		if info.LastRun != nil {
			next = state.LastRun.Add(time.Duration(info.IntervalDays) * schedule.Day)
		}
		info.NextDue = &next
	}
	return info
}
