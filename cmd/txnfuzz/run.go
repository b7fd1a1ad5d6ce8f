package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/txnfuzz/txnfuzz/internal/config"
	"github.com/txnfuzz/txnfuzz/internal/orchestrator"
	"github.com/txnfuzz/txnfuzz/internal/telemetry"
)

func newRunCmd(cfgFile *string) *cobra.Command {
	var (
		seed         int64
		numTxns      int
		stmtsPerTxn  int
		serializable bool
		replayFile   string
		driver       string
		dsn          string
		dbPath       string
		database     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "generate a random workload and check it for isolation anomalies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = uint64(seed)
			}
			if cmd.Flags().Changed("num-transactions") {
				cfg.NumTransactions = numTxns
			}
			if cmd.Flags().Changed("stmts-per-txn") {
				cfg.StmtsPerTxn = stmtsPerTxn
			}
			if cmd.Flags().Changed("serializable") {
				cfg.Serializable = serializable
			}
			if cmd.Flags().Changed("replay-file") {
				cfg.ReplayFile = replayFile
			}
			if cmd.Flags().Changed("driver") {
				cfg.DUT.Driver = driver
			}
			if cmd.Flags().Changed("dsn") {
				cfg.DUT.DSN = dsn
			}
			if cmd.Flags().Changed("path") {
				cfg.DUT.Path = dbPath
			}
			if cmd.Flags().Changed("database") {
				cfg.DUT.Database = database
			}

			return runTest(cmd.Context(), cfg)
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 0, "PRNG seed for the random source")
	cmd.Flags().IntVar(&numTxns, "num-transactions", 0, "number of concurrent transactions to generate")
	cmd.Flags().IntVar(&stmtsPerTxn, "stmts-per-txn", 0, "statements generated per transaction")
	cmd.Flags().BoolVar(&serializable, "serializable", false, "assume the target claims serializable isolation")
	cmd.Flags().StringVar(&replayFile, "replay-file", "", "byte file backing the generator's draws instead of the seeded PRNG")
	cmd.Flags().StringVar(&driver, "driver", "", "dut driver: mysql, dolt, postgres, sqlite")
	cmd.Flags().StringVar(&dsn, "dsn", "", "driver DSN / Dolt data directory")
	cmd.Flags().StringVar(&dbPath, "path", "", "sqlite database file path")
	cmd.Flags().StringVar(&database, "database", "", "schema name to introspect")
	return cmd
}

func runTest(ctx context.Context, cfg *config.Config) error {
	factory, err := newFactory(cfg)
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx)
	if err != nil {
		return fmt.Errorf("txnfuzz: telemetry: %w", err)
	}
	defer tel.Shutdown(ctx)

	report, err := orchestrator.RunTest(ctx, cfg, factory, tel)

	var fatal *orchestrator.FatalBugError
	switch {
	case errors.As(err, &fatal):
		fmt.Printf("anomaly found: %d violation(s), reproducer saved to %s\n", len(fatal.Violations), fatal.Dir)
		for _, v := range fatal.Violations {
			fmt.Printf("  %s: txns=%v %s\n", v.Predicate, v.Txns, v.Detail)
		}
		return fatal
	case err != nil:
		return err
	}

	fmt.Printf("ok: %d statements executed across %d transactions, no anomaly\n",
		report.StatementsExecuted, report.TransactionsRun)
	return nil
}
