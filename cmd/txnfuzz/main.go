// Command txnfuzz drives the fuzzer end to end: "run" generates and
// tests a random workload against a configured DUT, "reproduce" replays a
// saved three-file triple, and "minimize" reduces one to the smallest
// sequence that still trips the same anomaly predicate. The CLI is
// deliberately thin: it only wires flags to internal/config and calls into
// internal/orchestrator and internal/reproducer.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "txnfuzz",
		Short: "differential/isolation-level fuzzer for transactional SQL DBMSs",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a TOML or YAML config file")

	root.AddCommand(newRunCmd(&cfgFile))
	root.AddCommand(newReproduceCmd(&cfgFile))
	root.AddCommand(newMinimizeCmd(&cfgFile))
	return root
}
