package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/veldra/versadb/internal/blockstore"
	"github.com/veldra/versadb/internal/table"
)

var (
	runRows    = 1000
	runTable   = "bench"
	runAborts  = 10 // percent of transactions that abort instead of committing
)

func init() {
	fs := runCmd.Flags()
	fs.IntVar(&runRows, "rows", runRows, "number of rows to insert")
	fs.StringVar(&runTable, "table", runTable, "name of the table to create and populate")
	fs.IntVar(&runAborts, "abort-percent", runAborts, "percentage of inserting transactions to abort instead of commit")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive a synthetic insert workload through the engine",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	sys, err := openSystem()
	if err != nil {
		return err
	}
	defer sys.Stop()

	schema := blockstore.Schema{
		{ID: 0, Size: 8},   // a synthetic int64 key
		{ID: 1, Varlen: true}, // a synthetic payload
	}
	tbl, err := sys.CreateTable(runTable, schema)
	if err != nil {
		return err
	}

	var committed, aborted int
	for i := 0; i < runRows; i++ {
		tx := sys.Begin()
		_, err := tbl.Insert(tx, []table.ColumnWrite{
			{ID: 0, Value: encodeInt64(int64(i))},
			{ID: 1, Value: []byte(fmt.Sprintf("row-%d", i))},
		})
		if err != nil {
			sys.Abort(tx)
			return fmt.Errorf("insert %d: %w", i, err)
		}

		if runAborts > 0 && i%clampPercent(runAborts) == 0 {
			sys.Abort(tx)
			aborted++
			continue
		}

		done := make(chan struct{})
		sys.Commit(tx, func() { close(done) })
		<-done
		committed++
	}

	fmt.Printf("inserted %d rows into %q: %d committed, %d aborted\n", runRows, runTable, committed, aborted)
	printStatsTable(sys.Stats())
	return nil
}

func clampPercent(p int) int {
	if p <= 0 {
		return math.MaxInt32
	}
	if p > 100 {
		return 1
	}
	return 100 / p
}

func encodeInt64(v int64) []byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	return buf
}
