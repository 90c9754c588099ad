package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap/patch"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/internal/snapfile"
)

var diffOutput string

func init() {
	rootCmd.AddCommand(newDiffCmd())
}

func newDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <old-snapshot> <new-snapshot>",
		Short: "Compute a patch between two snapshots of equal length",
		Long: `The diff command compares two snapshots in 32-byte chunks and reports
the changed runs. With -o the encoded patch is written to a file that
heapctl apply can replay.

Example:
  heapctl diff before.snap after.snap
  heapctl diff before.snap after.snap -o step.hpat
  heapctl diff before.snap after.snap --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(args)
		},
	}

	cmd.Flags().StringVarP(&diffOutput, "output", "o", "", "Write the encoded patch to this file")
	return cmd
}

func runDiff(args []string) error {
	src, unmapSrc, err := snapfile.Map(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer unmapSrc()

	dst, unmapDst, err := snapfile.Map(args[1])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[1], err)
	}
	defer unmapDst()

	printVerbose("Comparing %s (%d bytes) with %s (%d bytes)\n", args[0], len(src), args[1], len(dst))

	p, err := patch.GetDiff(src, dst)
	if err != nil {
		return fmt.Errorf("failed to diff: %w", err)
	}

	logger.Debug("diff computed", "runs", p.Runs(), "tail", p.TailLength(), "changed", p.ChangedBytes())

	wire, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	if diffOutput != "" {
		if err := snapfile.Write(diffOutput, wire); err != nil {
			return fmt.Errorf("failed to write patch: %w", err)
		}
	}

	if jsonOut {
		return printJSON(map[string]any{
			"length":        p.NewLength(),
			"runs":          p.Runs(),
			"tail_length":   p.TailLength(),
			"changed_bytes": p.ChangedBytes(),
			"patch_bytes":   len(wire),
			"digest":        fmt.Sprintf("%016x", p.Digest()),
			"empty":         p.IsEmpty(),
		})
	}

	if p.IsEmpty() {
		printInfo("Snapshots are identical\n")
	} else {
		printInfo("Runs: %d\n", p.Runs())
		printInfo("Changed: %s of %s\n", formatBytes(p.ChangedBytes()), formatBytes(p.NewLength()))
	}
	if verbose {
		_ = p.Records(func(r patch.Record) bool {
			if r.Type == format.RecordTail {
				printVerbose("  tail  @0x%X %d bytes\n", r.Offset, len(r.Data))
			} else {
				printVerbose("  delta @0x%X %d chunks\n", r.Offset, r.Chunks())
			}
			return true
		})
	}
	if diffOutput != "" {
		printInfo("Patch written to %s (%s)\n", diffOutput, formatBytes(len(wire)))
	}
	return nil
}
