package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap/patch"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/internal/snapfile"
)

var applyOutput string

func init() {
	rootCmd.AddCommand(newApplyCmd())
}

func newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <snapshot> <patch>",
		Short: "Replay a patch onto a snapshot",
		Long: `The apply command decodes a patch written by heapctl diff, applies it to
a copy of the snapshot and checks the result digest. The snapshot is
rewritten in place unless -o names another file.

Example:
  heapctl apply before.snap step.hpat
  heapctl apply before.snap step.hpat -o after.snap`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(args)
		},
	}

	cmd.Flags().StringVarP(&applyOutput, "output", "o", "", "Write the patched snapshot here instead of in place")
	return cmd
}

func runApply(args []string) error {
	snapPath, patchPath := args[0], args[1]

	raw, unmapPatch, err := snapfile.Map(patchPath)
	if err != nil {
		return fmt.Errorf("failed to open patch: %w", err)
	}
	defer unmapPatch()

	var p patch.Patch
	if err := p.UnmarshalBinary(raw); err != nil {
		return fmt.Errorf("failed to decode patch: %w", err)
	}

	src, unmapSrc, err := snapfile.Map(snapPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	out, err := p.ApplyTo(src)
	// ApplyTo works on a copy, so the mapping can go before the write.
	unmapSrc()
	if err != nil {
		return fmt.Errorf("failed to apply patch: %w", err)
	}

	dest := applyOutput
	if dest == "" {
		dest = snapPath
	}
	printVerbose("Writing %s to %s\n", formatBytes(len(out)), dest)
	if err := snapfile.Write(dest, out); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	logger.Info("patch applied", "snapshot", snapPath, "patch", patchPath, "output", dest, "runs", p.Runs())

	if jsonOut {
		return printJSON(map[string]any{
			"output":        dest,
			"runs":          p.Runs(),
			"changed_bytes": p.ChangedBytes(),
			"digest":        fmt.Sprintf("%016x", p.Digest()),
		})
	}
	printInfo("✓ Applied %d runs to %s\n", p.Runs(), dest)
	return nil
}
