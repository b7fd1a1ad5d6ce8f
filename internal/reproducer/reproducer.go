// Package reproducer reads and writes the three-file on-disk layout
// (stmts.sql, tid.txt, usage.txt), re-drives
// internal/scheduler and internal/depgraph from a saved triple exactly as
// if it had been produced by a live run, and minimizes a failing triple by
// repeatedly dropping a statement and checking the target predicate still
// fires.
package reproducer

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/txnfuzz/txnfuzz/internal/instrument"
)

const (
	stmtsFile = "stmts.sql"
	tidFile   = "tid.txt"
	usageFile = "usage.txt"
)

// Triple is one reproducer's in-memory content: one entry per instrumented
// statement. Save writes all three files from this one slice; Load rejects
// a directory whose three files have different record counts.
type Triple struct {
	Stmts []*instrument.Stmt
}

// NewDir mints a fresh reproducer directory name under root, identified by
// a random uuid so concurrent failing runs never collide.
func NewDir(root string) string {
	return filepath.Join(root, uuid.NewString())
}

// Save writes t's three files into dir, creating it if necessary.
func Save(dir string, t *Triple) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("reproducer: mkdir %s: %w", dir, err)
	}

	stmtsPath := filepath.Join(dir, stmtsFile)
	tidPath := filepath.Join(dir, tidFile)
	usagePath := filepath.Join(dir, usageFile)

	if err := writeLines(stmtsPath, func(w *bufio.Writer) error {
		for _, s := range t.Stmts {
			if _, err := fmt.Fprintf(w, "%s;\n\n", s.Text); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := writeLines(tidPath, func(w *bufio.Writer) error {
		for _, s := range t.Stmts {
			if _, err := fmt.Fprintf(w, "%d\n", s.Tid); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	return writeLines(usagePath, func(w *bufio.Writer) error {
		for _, s := range t.Stmts {
			if _, err := fmt.Fprintf(w, "%d\n", int(s.Role)); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeLines(path string, write func(*bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("reproducer: create %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		return fmt.Errorf("reproducer: write %s: %w", path, err)
	}
	return w.Flush()
}

// Load reads the three files under dir and reconstructs a Triple,
// validating that all three have equal record counts.
func Load(dir string) (*Triple, error) {
	stmts, err := readStmts(filepath.Join(dir, stmtsFile))
	if err != nil {
		return nil, err
	}
	tids, err := readInts(filepath.Join(dir, tidFile))
	if err != nil {
		return nil, err
	}
	usages, err := readInts(filepath.Join(dir, usageFile))
	if err != nil {
		return nil, err
	}

	if len(stmts) != len(tids) || len(tids) != len(usages) {
		return nil, fmt.Errorf("reproducer: record count mismatch: %d statements, %d tids, %d usages",
			len(stmts), len(tids), len(usages))
	}

	out := make([]*instrument.Stmt, len(stmts))
	for i := range stmts {
		role, ok := instrument.ParseRole(usages[i])
		if !ok {
			return nil, fmt.Errorf("reproducer: usage.txt line %d: %d is not a valid role", i+1, usages[i])
		}
		out[i] = &instrument.Stmt{Text: stmts[i], Tid: tids[i], Role: role}
	}
	return &Triple{Stmts: out}, nil
}

// readStmts splits stmts.sql on its ";\n\n" statement terminator.
func readStmts(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reproducer: read %s: %w", path, err)
	}
	var out []string
	for _, chunk := range strings.Split(string(raw), ";\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		out = append(out, chunk)
	}
	return out, nil
}

func readInts(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reproducer: read %s: %w", path, err)
	}
	defer f.Close()

	var out []int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		n, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("reproducer: %s: %q is not an integer: %w", path, line, err)
		}
		out = append(out, n)
	}
	return out, sc.Err()
}
