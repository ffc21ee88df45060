package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information; set at build time via -ldflags, per the teacher's
// own cmd/oba/version.go convention.
var (
	version   = "0.1.0"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("versadb version %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildDate)
		fmt.Printf("  Go version: %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}
