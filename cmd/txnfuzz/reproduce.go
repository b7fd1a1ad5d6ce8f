package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/txnfuzz/txnfuzz/internal/config"
	"github.com/txnfuzz/txnfuzz/internal/orchestrator"
	"github.com/txnfuzz/txnfuzz/internal/reproducer"
)

func newReproduceCmd(cfgFile *string) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "reproduce",
		Short: "replay a saved (stmts, tid, usage) triple and report any anomaly",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.ReplayDir
			}
			if dir == "" {
				return fmt.Errorf("txnfuzz: reproduce requires --dir or config replay-dir")
			}
			return reproduceDir(cmd.Context(), cfg, dir)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "reproducer directory containing stmts.sql, tid.txt, usage.txt")
	return cmd
}

func reproduceDir(ctx context.Context, cfg *config.Config, dir string) error {
	triple, err := reproducer.Load(dir)
	if err != nil {
		return fmt.Errorf("txnfuzz: load reproducer %s: %w", dir, err)
	}
	if m, err := reproducer.LoadManifest(dir); err == nil {
		fmt.Printf("replaying %d statements (seed %d, driver %s)\n", m.Statements, m.Seed, m.Driver)
	}

	factory, err := newFactory(cfg)
	if err != nil {
		return err
	}
	replay := orchestrator.NewReplay(factory)

	violations, err := replay(ctx, triple.Stmts)
	if err != nil {
		return fmt.Errorf("txnfuzz: replay %s: %w", dir, err)
	}
	if len(violations) == 0 {
		fmt.Println("ok: no anomaly reproduced")
		return nil
	}
	fmt.Printf("anomaly reproduced: %d violation(s)\n", len(violations))
	for _, v := range violations {
		fmt.Printf("  %s: txns=%v %s\n", v.Predicate, v.Txns, v.Detail)
	}
	return fmt.Errorf("txnfuzz: %d anomaly violation(s) reproduced", len(violations))
}
