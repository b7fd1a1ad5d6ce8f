package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/txnfuzz/txnfuzz/internal/config"
	"github.com/txnfuzz/txnfuzz/internal/depgraph"
	"github.com/txnfuzz/txnfuzz/internal/orchestrator"
	"github.com/txnfuzz/txnfuzz/internal/reproducer"
)

func newMinimizeCmd(cfgFile *string) *cobra.Command {
	var (
		dir       string
		outDir    string
		predicate string
	)

	cmd := &cobra.Command{
		Use:   "minimize",
		Short: "shrink a reproducer to the smallest sequence that still fails the same predicate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.ReplayDir
			}
			if dir == "" {
				return fmt.Errorf("txnfuzz: minimize requires --dir or config replay-dir")
			}
			if predicate == "" {
				return fmt.Errorf("txnfuzz: minimize requires --predicate (e.g. G1a, G1c, GSIb)")
			}
			if outDir == "" {
				outDir = dir + ".min"
			}
			return minimizeDir(cmd.Context(), cfg, dir, outDir, predicate)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "reproducer directory to minimize")
	cmd.Flags().StringVar(&outDir, "out", "", "directory to write the minimized triple to (default: <dir>.min)")
	cmd.Flags().StringVar(&predicate, "predicate", "", "target anomaly predicate to preserve (G1a, G1b, G1c, G2-item, GSIa, GSIb)")
	return cmd
}

func minimizeDir(ctx context.Context, cfg *config.Config, dir, outDir, predicate string) error {
	triple, err := reproducer.Load(dir)
	if err != nil {
		return fmt.Errorf("txnfuzz: load reproducer %s: %w", dir, err)
	}

	factory, err := newFactory(cfg)
	if err != nil {
		return err
	}

	g, violations, err := orchestrator.ReplayGraph(ctx, factory, triple.Stmts)
	if err != nil {
		return fmt.Errorf("txnfuzz: initial replay of %s: %w", dir, err)
	}
	if !hasPredicate(violations, predicate) {
		return fmt.Errorf("txnfuzz: %s does not reproduce predicate %q (got %v)", dir, predicate, violationNames(violations))
	}

	replay := orchestrator.NewReplay(factory)
	reduced, err := reproducer.Minimize(ctx, replay, g, triple, predicate)
	if err != nil {
		return fmt.Errorf("txnfuzz: minimize %s: %w", dir, err)
	}

	if err := reproducer.Save(outDir, reduced); err != nil {
		return fmt.Errorf("txnfuzz: save minimized reproducer: %w", err)
	}
	fmt.Printf("minimized %d statements to %d, saved to %s\n", len(triple.Stmts), len(reduced.Stmts), outDir)
	return nil
}

func hasPredicate(violations []depgraph.Violation, predicate string) bool {
	for _, v := range violations {
		if v.Predicate == predicate {
			return true
		}
	}
	return false
}

func violationNames(violations []depgraph.Violation) []string {
	out := make([]string, len(violations))
	for i, v := range violations {
		out[i] = v.Predicate
	}
	return out
}
