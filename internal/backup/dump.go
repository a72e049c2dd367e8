// Package backup implements the backup engine: pg_dump/pg_restore
// subprocess drivers, table CSV/JSON export, asynchronous execution with a
// status machine on the backups table, and retention sweeps.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// restoreWarningLines caps how many stderr lines are surfaced as warnings
// when pg_restore exits 1.
const restoreWarningLines = 10

// Dumper runs the PostgreSQL dump and restore binaries. It is an interface
// so the service and scheduler tests can substitute an in-memory fake.
type Dumper interface {
	// Dump produces a custom-format archive of the database behind dsn.
	Dump(ctx context.Context, dsn string) ([]byte, error)

	// Restore feeds an archive into the database behind dsn. Warnings are
	// non-fatal restore diagnostics (pg_restore exit code 1).
	Restore(ctx context.Context, dsn string, archive []byte) (warnings []string, err error)
}

// execDumper shells out to pg_dump and pg_restore.
type execDumper struct{}

// NewDumper returns the subprocess-backed Dumper.
func NewDumper() Dumper {
	return execDumper{}
}

func (execDumper) Dump(ctx context.Context, dsn string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "pg_dump", "-d", dsn, "--no-owner", "--no-acl", "-Fc")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("backup: pg_dump: %w: %s", err, firstLine(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (execDumper) Restore(ctx context.Context, dsn string, archive []byte) ([]string, error) {
	cmd := exec.CommandContext(ctx, "pg_restore",
		"-d", dsn, "--clean", "--if-exists", "--no-owner", "--no-acl")

	var stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(archive)
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil, nil
	}

	// Exit code 1 is success-with-warnings: objects that did not exist for
	// --clean, ownership mismatches and the like.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return stderrWarnings(stderr.String()), nil
	}
	return nil, fmt.Errorf("backup: pg_restore: %w: %s", err, firstLine(stderr.String()))
}

// stderrWarnings returns the first few non-empty stderr lines.
func stderrWarnings(stderr string) []string {
	var warnings []string
	for _, line := range strings.Split(stderr, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			warnings = append(warnings, trimmed)
			if len(warnings) == restoreWarningLines {
				break
			}
		}
	}
	return warnings
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
