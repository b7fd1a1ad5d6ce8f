package main

import (
	"fmt"

	"github.com/txnfuzz/txnfuzz/internal/config"
	"github.com/txnfuzz/txnfuzz/internal/dut"
	"github.com/txnfuzz/txnfuzz/internal/dut/doltdut"
	"github.com/txnfuzz/txnfuzz/internal/dut/mysqldut"
	"github.com/txnfuzz/txnfuzz/internal/dut/pqdut"
	"github.com/txnfuzz/txnfuzz/internal/dut/sqlitedut"
	"github.com/txnfuzz/txnfuzz/internal/orchestrator"
)

// newFactory returns an orchestrator.DUTFactory opening sessions against
// whichever driver cfg.DUT.Driver names. Each call the scheduler makes
// through the returned factory must open an independent session, which
// every Open below already guarantees by dialing a fresh connection.
func newFactory(cfg *config.Config) (orchestrator.DUTFactory, error) {
	switch cfg.DUT.Driver {
	case "mysql":
		return func() (dut.DUT, error) {
			return mysqldut.Open(mysqldut.Config{DSN: cfg.DUT.DSN, Database: cfg.DUT.Database})
		}, nil
	case "dolt":
		return func() (dut.DUT, error) {
			return doltdut.Open(doltdut.Config{DataDir: cfg.DUT.DSN, Database: cfg.DUT.Database})
		}, nil
	case "postgres":
		return func() (dut.DUT, error) {
			return pqdut.Open(pqdut.Config{DSN: cfg.DUT.DSN, Schema: cfg.DUT.Database})
		}, nil
	case "sqlite":
		return func() (dut.DUT, error) {
			return sqlitedut.Open(sqlitedut.Config{Path: cfg.DUT.Path})
		}, nil
	default:
		return nil, fmt.Errorf("txnfuzz: unknown dut driver %q", cfg.DUT.Driver)
	}
}
