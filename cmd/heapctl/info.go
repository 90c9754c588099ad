package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/internal/snapfile"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <snapshot>",
		Short: "Load a snapshot and report arena usage",
		Long: `The info command loads a snapshot file into a fresh allocator and
displays its version, size limit and per-arena block usage.

Example:
  heapctl info state.snap
  heapctl info state.snap --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(args)
		},
	}
	return cmd
}

func runInfo(args []string) error {
	path := args[0]

	printVerbose("Mapping snapshot: %s\n", path)

	data, unmap, err := snapfile.Map(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer unmap()

	a, err := heap.Deserialize(data, nil)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	stats := a.Stats()
	logger.Debug("snapshot loaded", "path", path, "bytes", len(data), "arenas", stats.Arenas)

	if jsonOut {
		return printJSON(struct {
			File string `json:"file"`
			Size int    `json:"size"`
			heap.Stats
		}{path, len(data), stats})
	}

	printInfo("\nSnapshot Information:\n")
	printInfo("  File: %s\n", path)
	printInfo("  Size: %s\n", formatBytes(len(data)))
	printInfo("  Version: %d\n", stats.Version)
	if stats.MaxSize > 0 {
		printInfo("  Max size: %s\n", formatBytes(int(stats.MaxSize)))
	} else {
		printInfo("  Max size: unlimited\n")
	}
	printInfo("  Arenas: %d live of %d slots\n", stats.Arenas, stats.Slots)
	printInfo("  Capacity: %s\n", formatBytes(stats.Capacity))
	printInfo("  Live blocks: %d (%s payload)\n", stats.LiveBlocks, formatBytes(stats.LivePayload))
	printInfo("  Free: %s, largest %s\n", formatBytes(stats.FreeBytes), formatBytes(stats.LargestFree))

	printInfo("\nArenas:\n")
	for i, as := range stats.PerArena {
		if as.Size == 0 {
			printVerbose("  [%d] empty\n", i)
			continue
		}
		printInfo("  [%d] %s: %d used / %d free blocks, %s largest free\n",
			i, formatBytes(as.Size), as.LiveBlocks, as.FreeBlocks, formatBytes(as.LargestFree))
	}
	return nil
}
