package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/veldra/versadb/internal/blockstore"
	"github.com/veldra/versadb/internal/engine"
	"github.com/veldra/versadb/internal/table"
	"github.com/veldra/versadb/internal/tuple"
	"github.com/veldra/versadb/internal/txn"
)

const shellHistoryFile = ".versadb_history"

func init() {
	rootCmd.AddCommand(shellCmd)
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Open an interactive diagnostics shell against a live engine",
	RunE:  shellRun,
}

// shellSession holds the interactive shell's engine handle and the open
// transaction (if any) its commands operate against. Grounded on the
// pack-mate CLI's repl.Interact, which likewise keeps one liner.State alive
// across a whole REPL session's worth of commands.
type shellSession struct {
	sys *engine.System
	tx  *txn.Context
}

func shellRun(cmd *cobra.Command, args []string) error {
	sys, err := openSystem()
	if err != nil {
		return err
	}
	defer sys.Stop()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(shellHistoryFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	ses := &shellSession{sys: sys}
	fmt.Println(`versadb shell — type "help" for commands, Ctrl-D to quit`)
	for {
		input, err := line.Prompt("versadb> ")
		if err != nil {
			break
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if input == "quit" || input == "exit" {
			break
		}
		ses.dispatch(input)
	}

	if f, err := os.Create(shellHistoryFile); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
	return nil
}

func (ses *shellSession) dispatch(input string) {
	fields := strings.Fields(input)
	cmd, rest := fields[0], fields[1:]

	switch cmd {
	case "help":
		ses.printHelp()
	case "tables":
		fmt.Println(strings.Join(ses.sys.TableNames(), "\n"))
	case "stats":
		printStatsTable(ses.sys.Stats())
	case "create-table":
		ses.createTable(rest)
	case "begin":
		ses.begin()
	case "commit":
		ses.commit()
	case "abort":
		ses.abort()
	case "insert":
		ses.insert(rest)
	case "select":
		ses.selectRow(rest)
	default:
		fmt.Printf("unknown command %q; type \"help\"\n", cmd)
	}
}

func (ses *shellSession) printHelp() {
	fmt.Print(`commands:
  tables                         list registered tables
  stats                          print GC/transaction counters
  create-table <name>            create a two-column demo table (key, payload)
  begin                          start a transaction
  insert <table> <key> <payload> insert a row in the current transaction
  select <table> <slot>          read a row as seen by the current transaction
  commit                         commit the current transaction
  abort                          abort the current transaction
  quit / exit                    leave the shell
`)
}

func (ses *shellSession) createTable(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: create-table <name>")
		return
	}
	schema := blockstore.Schema{{ID: 0, Size: 8}, {ID: 1, Varlen: true}}
	if _, err := ses.sys.CreateTable(args[0], schema); err != nil {
		fmt.Println("error:", err)
	}
}

func (ses *shellSession) begin() {
	if ses.tx != nil {
		fmt.Println("a transaction is already open; commit or abort it first")
		return
	}
	ses.tx = ses.sys.Begin()
	fmt.Println("transaction started")
}

func (ses *shellSession) commit() {
	if ses.tx == nil {
		fmt.Println("no open transaction")
		return
	}
	commitTS := ses.sys.Commit(ses.tx, nil)
	fmt.Println("committed at", uint64(commitTS))
	ses.tx = nil
}

func (ses *shellSession) abort() {
	if ses.tx == nil {
		fmt.Println("no open transaction")
		return
	}
	ses.sys.Abort(ses.tx)
	fmt.Println("aborted")
	ses.tx = nil
}

func (ses *shellSession) insert(args []string) {
	if len(args) != 3 {
		fmt.Println("usage: insert <table> <key> <payload>")
		return
	}
	if ses.tx == nil {
		fmt.Println("no open transaction; run \"begin\" first")
		return
	}
	tbl, err := ses.sys.Table(args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	key, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Println("error: key must be an integer")
		return
	}
	slot, err := tbl.Insert(ses.tx, []table.ColumnWrite{
		{ID: 0, Value: encodeInt64(key)},
		{ID: 1, Value: []byte(args[2])},
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("inserted at slot", slot)
}

func (ses *shellSession) selectRow(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: select <table> <slot>")
		return
	}
	if ses.tx == nil {
		fmt.Println("no open transaction; run \"begin\" first")
		return
	}
	tbl, err := ses.sys.Table(args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	raw, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Println("error: slot must be an integer")
		return
	}
	row, err := tbl.Select(ses.tx, tuple.Slot(raw))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("key=%v payload=%q\n", row[0], row[1])
}
