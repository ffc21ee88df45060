package main

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/veldra/versadb/internal/config"
	"github.com/veldra/versadb/internal/engine"
)

// Grounded on the teacher's pack-mate cobra CLI (leftmike/maho's cmd.mahoCmd):
// a persistent --config-file flag, a PersistentPreRunE that loads and logs
// before any subcommand body runs, and a PostRun that closes logWriter if one
// is set (rootPreRun opens no log file, so it stays nil).
var (
	rootCmd = &cobra.Command{
		Use:               "versadb",
		Short:             "A storage engine diagnostics and demo CLI",
		Long:              "versadb drives and inspects an MVCC relational storage engine. It is a diagnostics and demo surface, not a SQL console.",
		PersistentPreRunE: rootPreRun,
		PersistentPostRun: rootPostRun,
	}

	configFile = "versadb.yaml"
	noConfig   = false
	logStderr  = false

	logWriter io.WriteCloser
	loadedCfg *config.Config
)

func init() {
	fs := rootCmd.PersistentFlags()
	fs.StringVar(&configFile, "config-file", configFile, "file to load engine config from")
	fs.BoolVar(&noConfig, "no-config", noConfig, "don't load a config file; use defaults")
	fs.BoolVarP(&logStderr, "log-stderr", "s", logStderr, "log to standard error (already the default: no log file is opened)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func rootPreRun(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if !noConfig {
		loaded, err := config.LoadConfig(configFile)
		switch {
		case err == nil:
			cfg = loaded
		case err == config.ErrFileNotFound:
			// fall through with defaults; most subcommands are fine without
			// an on-disk config.
		default:
			return fmt.Errorf("versadb: %w", err)
		}
	}
	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
		return fmt.Errorf("versadb: invalid config: %v", errs[0])
	}
	loadedCfg = cfg

	if logStderr {
		log.SetOutput(os.Stderr)
	}
	log.WithField("pid", os.Getpid()).Info("versadb starting")
	return nil
}

func rootPostRun(cmd *cobra.Command, args []string) {
	log.WithField("pid", os.Getpid()).Info("versadb done")
	if logWriter != nil {
		logWriter.Close()
	}
}

// openSystem opens and starts an engine.System from the config loaded by
// rootPreRun, for subcommands that need a live engine.
func openSystem() (*engine.System, error) {
	sys, err := engine.Open(loadedCfg, configFile)
	if err != nil {
		return nil, err
	}
	if err := sys.Start(); err != nil {
		return nil, err
	}
	return sys, nil
}
