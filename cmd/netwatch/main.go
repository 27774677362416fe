// Command netwatch drives the capture pipeline: one-off and batch page
// captures, the background job queue, and the domain learner/training
// store's inspection and import/export surface (spec.md §6).
package main

import (
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netwatch/internal/common"
)

var logger arbor.ILogger

func main() {
	defer common.RecoverWithCrashFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}
	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Println(common.GetVersion())
		return
	}

	cfg, err := loadConfigForCommand(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "netwatch: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	common.InstallCrashHandler(cfg.DataDir)
	logger = common.SetupLogger(cfg)
	defer common.Stop()

	var runErr error
	switch cmd {
	case "capture":
		runErr = runCapture(cfg, args)
	case "queue":
		runErr = runQueue(cfg, args)
	case "training":
		runErr = runTraining(cfg, args)
	case "learning":
		runErr = runLearning(cfg, args)
	case "db":
		runErr = runDB(cfg, args)
	case "config":
		runErr = runConfigCmd(cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "netwatch: unknown command %q\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if runErr != nil {
		common.PrintFailure(logger, cmd, runErr.Error())
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`netwatch - adaptive web archive & capture pipeline

Usage:
  netwatch capture url <url> [flags]
  netwatch capture batch <file> [flags]
  netwatch queue add <url> [flags]
  netwatch queue status [job-id]
  netwatch queue run [flags]
  netwatch queue dead-letter list
  netwatch queue dead-letter retry <id>
  netwatch training export [--site X] [--format md|json]
  netwatch training import <file> [--merge]
  netwatch training stats <site> <field>
  netwatch learning insights <domain>
  netwatch learning stats [--chart out.png]
  netwatch db init
  netwatch db info
  netwatch config show

Flags are command-specific; pass -h after a subcommand for details.`)
}
