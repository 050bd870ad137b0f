// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Command ipsetkeeper is the CLI surface spec.md §6 documents: a "run"
// subcommand driving one full pass over the configured feed registry, and
// an "enable" subcommand creating enablement markers, plus the documented
// global flags. The CLI and pkg/config are external collaborators to the
// core engine (spec.md §1): this file only wires flags to
// orchestrator.Options and config.Load, and never reaches into the
// pipeline packages directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ipsetkeeper/pkg/config"
	"ipsetkeeper/pkg/metacache"
	"ipsetkeeper/pkg/model"
	"ipsetkeeper/pkg/orchestrator"
	"ipsetkeeper/pkg/publish"
)

const version = "1.0.0"

// exitAlreadyRunning and exitGenericFailure are spec.md §6's two non-zero
// exit codes: both map to 1, kept as named constants so the reason is
// visible at each os.Exit call site rather than a bare magic number.
const (
	exitOK             = 0
	exitGenericFailure = 1
	exitAlreadyRunning = 1
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitGenericFailure)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runRun(os.Args[2:]))
	case "enable":
		os.Exit(runEnable(os.Args[2:]))
	case "version":
		fmt.Printf("ipsetkeeper version %s\n", version)
		os.Exit(exitOK)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(exitGenericFailure)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: ipsetkeeper <command> [options]

Commands:
  run             Execute one full pass over the registry
  enable <name>...  Create the enablement marker for each listed feed
  version          Show version

Options for "run" (spec.md §6):
  --config <file>     Path to the YAML registry document
  --silent             Suppress INFO-level log output
  --verbose            Enable additional diagnostic logging
  --recheck            Bypass the Scheduler's timer (unsafe for cron use)
  --rebuild            Force dashboard regeneration (dashboard is an
                       external collaborator; logged, not implemented here)
  --reprocess          Re-run the parser/canonicalizer even on NotModified
  --push-git           Invoke the VCS commit/push collaborator on success
                       (external collaborator; logged, not implemented here)
  --enable-all         Treat every configured feed as enabled
  --cleanup            Delete artifacts of feeds no longer configured
  --kernel-table <t>   nftables table name; enables the CLI kernel adapter
  --kernel-native <t>  nftables table name; enables the native kernel adapter

Examples:
  ipsetkeeper enable spamhaus-drop feodo-tracker
  ipsetkeeper run --config /etc/ipsetkeeper/config.yaml
  ipsetkeeper run --config /etc/ipsetkeeper/config.yaml --recheck --verbose
`)
}

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)

	configPath := fs.String("config", os.Getenv("CONFIG_FILE"), "path to the YAML registry document")
	silent := fs.Bool("silent", false, "suppress INFO-level log output")
	verbose := fs.Bool("verbose", false, "enable additional diagnostic logging")
	recheck := fs.Bool("recheck", false, "bypass the Scheduler's timer")
	rebuild := fs.Bool("rebuild", false, "force dashboard regeneration")
	reprocess := fs.Bool("reprocess", false, "re-run parser/canonicalizer even on NotModified")
	pushGit := fs.Bool("push-git", false, "invoke the VCS commit/push collaborator on success")
	enableAll := fs.Bool("enable-all", false, "treat every configured feed as enabled")
	cleanup := fs.Bool("cleanup", false, "delete artifacts of feeds no longer configured")
	kernelTable := fs.String("kernel-table", "", "nftables table name for the CLI kernel adapter")
	kernelNative := fs.String("kernel-native", "", "nftables table name for the native kernel adapter")
	runOnly := fs.String("only", "", "comma-separated list of feed names to restrict this run to")

	if err := fs.Parse(args); err != nil {
		return exitGenericFailure
	}

	if *silent {
		log.SetOutput(io.Discard)
	}
	if *verbose {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	reg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("ERROR: load config: %v", err)
		return exitGenericFailure
	}

	cache, err := metacache.Open(filepath.Join(reg.Settings.BaseDir, ".cache"))
	if err != nil {
		log.Printf("ERROR: open metadata cache: %v", err)
		return exitGenericFailure
	}

	adapter, err := resolveKernelAdapter(*kernelTable, *kernelNative)
	if err != nil {
		log.Printf("ERROR: kernel adapter: %v", err)
		return exitGenericFailure
	}

	opts := orchestrator.Options{
		EnableAll: *enableAll,
		Recheck:   *recheck,
		Reprocess: *reprocess,
		Cleanup:   *cleanup,
		Kernel:    adapter,
	}
	if *runOnly != "" {
		opts.RunOnly = splitNonEmpty(*runOnly)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := orchestrator.Run(ctx, reg, cache, time.Now().UTC(), opts)
	if err != nil {
		if err == model.ErrAlreadyRunning {
			log.Printf("ERROR: %v", err)
			return exitAlreadyRunning
		}
		log.Printf("ERROR: run failed: %v", err)
		return exitGenericFailure
	}

	dispatchCollaborators(reg, rep, *rebuild, *pushGit)

	if ctx.Err() != nil {
		log.Printf("WARN: run ended early due to signal")
		return exitGenericFailure
	}

	if rep.Failed() {
		log.Printf("WARN: run completed with per-feed failures; see log above")
	}

	return exitOK
}

func runEnable(args []string) int {
	fs := flag.NewFlagSet("enable", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("CONFIG_FILE"), "path to the YAML registry document")
	if err := fs.Parse(args); err != nil {
		return exitGenericFailure
	}

	names := fs.Args()
	if len(names) == 0 {
		fmt.Fprintln(os.Stderr, "enable requires at least one feed name")
		return exitGenericFailure
	}

	reg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("ERROR: load config: %v", err)
		return exitGenericFailure
	}

	if err := orchestrator.Enable(reg, names); err != nil {
		log.Printf("ERROR: enable: %v", err)
		return exitGenericFailure
	}

	for _, n := range names {
		log.Printf("INFO: enabled feed %s", n)
	}
	return exitOK
}

// resolveKernelAdapter picks the Publisher's KernelAdapter (spec.md §4.9):
// a nil-equivalent NoopAdapter for a non-privileged run, or one of the two
// real adapters when a table name is supplied. Supplying both flags is
// rejected rather than silently preferring one.
func resolveKernelAdapter(cliTable, nativeTable string) (publish.KernelAdapter, error) {
	switch {
	case cliTable != "" && nativeTable != "":
		return nil, fmt.Errorf("only one of --kernel-table / --kernel-native may be set")
	case cliTable != "":
		return publish.NewCLIAdapter(cliTable), nil
	case nativeTable != "":
		return nil, fmt.Errorf("--kernel-native requires an established nftables.Conn; wire via the programmatic entry point (orchestrator.Options.Kernel) rather than the CLI, which has no privileged netlink session to share")
	default:
		return publish.NoopAdapter{}, nil
	}
}

// dispatchCollaborators invokes the final collaborators spec.md §2
// describes (packet filter, VCS, dashboard, file distributor) with the set
// of successfully updated feeds. All four are external collaborators per
// spec.md §1's scope statement; the kernel-publisher side is already
// driven inside orchestrator.Run via the Kernel option, so only the
// VCS/dashboard/distribution steps remain here, and they are logged rather
// than implemented, since this module's job ends at a correct, published
// canonical snapshot.
func dispatchCollaborators(reg *config.Registry, rep orchestrator.Report, rebuild, pushGit bool) {
	var updated []string
	for _, f := range rep.Feeds {
		if f.State == model.StateDone {
			updated = append(updated, f.Name)
		}
	}

	if len(updated) == 0 {
		return
	}

	log.Printf("INFO: %d feed(s) updated this run: %v", len(updated), updated)

	if pushGit {
		if _, err := os.Stat(filepath.Join(reg.Settings.BaseDir, ".git")); err == nil {
			log.Printf("INFO: --push-git set and .git present; VCS commit/push is an external collaborator, not invoked by this binary")
		} else {
			log.Printf("WARN: --push-git set but %s has no .git directory", reg.Settings.BaseDir)
		}
	}

	if rebuild {
		log.Printf("INFO: --rebuild set; dashboard regeneration is an external collaborator, not invoked by this binary")
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
