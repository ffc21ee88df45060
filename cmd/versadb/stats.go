package main

import (
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/veldra/versadb/internal/engine"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Open the engine and print its diagnostic counters",
	RunE:  statsRun,
}

func statsRun(cmd *cobra.Command, args []string) error {
	sys, err := openSystem()
	if err != nil {
		return err
	}
	defer sys.Stop()

	printStatsTable(sys.Stats())
	return nil
}

// printStatsTable renders a Stats snapshot the way the pack-mate CLI
// (leftmike/maho's repl.ReplSQL) renders query result rows: one
// tablewriter.Table with a single header row and one row per counter.
func printStatsTable(s engine.Stats) {
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader([]string{"counter", "value"})

	tw.Append([]string{"active_txns", strconv.Itoa(s.ActiveTxns)})
	tw.Append([]string{"tables", strconv.Itoa(s.TableCount)})
	tw.Append([]string{"indexes", strconv.Itoa(s.IndexCount)})
	tw.Append([]string{"gc.total_runs", strconv.FormatUint(s.GC.TotalRuns, 10)})
	tw.Append([]string{"gc.total_unlinked", strconv.FormatUint(s.GC.TotalUnlinked, 10)})
	tw.Append([]string{"gc.total_deallocated", strconv.FormatUint(s.GC.TotalDeallocated, 10)})
	tw.Append([]string{"gc.last_unlinked", strconv.Itoa(s.GC.LastUnlinked)})
	tw.Append([]string{"gc.last_deallocated", strconv.Itoa(s.GC.LastDeallocated)})
	tw.Append([]string{"gc.pending_deallocate", strconv.Itoa(s.GC.PendingDeallocate)})

	tw.Render()
}
