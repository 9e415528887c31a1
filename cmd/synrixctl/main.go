// Command synrixctl is a small maintenance CLI for lattice data files:
// compacting, scanning for corruption, and printing store statistics. The
// statistics go through the SYNRIX_VERBOSE-gated logger, so "stats" prints
// nothing unless that variable is set.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/synrix/lattice/pkg/lattice"
	"github.com/synrix/lattice/pkg/storage"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	path := fs.String("path", "", "path to the lattice data file")
	maxNodes := fs.Int("max-nodes", 10_000, "RAM-mode initial capacity")
	diskNodes := fs.Int("disk-nodes", 0, "disk-mode pre-allocated capacity (0 = ram mode)")
	_ = fs.Parse(os.Args[2:])

	if *path == "" {
		fmt.Fprintln(os.Stderr, "synrixctl: -path is required")
		os.Exit(2)
	}

	opts := lattice.Options{Path: *path, MaxRAMNodes: *maxNodes}
	if *diskNodes > 0 {
		opts.Mode = lattice.ModeDisk
		opts.TotalFileNodes = *diskNodes
	}

	store, err := lattice.Init(storage.NewReal(), opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "synrixctl: opening store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch cmd {
	case "scan":
		report, err := store.ScanAndRepairCorruption()
		if err != nil {
			fmt.Fprintf(os.Stderr, "synrixctl: scan failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("scanned=%d repaired=%d stopped_early=%v\n", report.ScannedSlots, report.Repaired, report.StoppedEarly)
	case "compact":
		if err := store.CompactFile(); err != nil {
			fmt.Fprintf(os.Stderr, "synrixctl: compact failed: %v\n", err)
			os.Exit(1)
		}
		if err := store.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "synrixctl: save failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("compacted")
	case "stats":
		store.PrintStreamingStats()
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: synrixctl <scan|compact|stats> -path <file> [-max-nodes N] [-disk-nodes N]")
}
