// Command versadb is a diagnostics and demo CLI for the storage engine: it
// drives a synthetic workload through a System, renders its GC/transaction
// counters, or drops into an interactive shell for ad-hoc inspection. It is
// not a SQL console — there is no query language here, only direct engine
// operations.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
