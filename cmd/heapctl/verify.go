package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap/verify"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/internal/snapfile"
)

func init() {
	rootCmd.AddCommand(newVerifyCmd())
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <snapshot>",
		Short: "Check snapshot framing and arena invariants",
		Long: `The verify command walks every arena in a snapshot and checks its
header, sentinels, block links, coalescing, rover and live counters.
It exits non-zero on the first violation.

Example:
  heapctl verify state.snap
  heapctl verify state.snap --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(args)
		},
	}
	return cmd
}

func runVerify(args []string) error {
	path := args[0]

	printVerbose("Mapping snapshot: %s\n", path)

	data, unmap, err := snapfile.Map(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer unmap()

	verr := verify.Snapshot(data)
	if verr != nil {
		logger.Warn("snapshot failed verification", "path", path, "err", verr)
	}

	if jsonOut {
		result := map[string]any{"file": path, "valid": verr == nil}
		var v *verify.ValidationError
		if errors.As(verr, &v) {
			result["error"] = v
		}
		if err := printJSON(result); err != nil {
			return err
		}
		if verr != nil {
			return fmt.Errorf("snapshot is invalid")
		}
		return nil
	}

	if verr != nil {
		printInfo("✗ %s\n", verr)
		return fmt.Errorf("snapshot is invalid")
	}
	printInfo("✓ %s is valid (%s)\n", path, formatBytes(len(data)))
	return nil
}
