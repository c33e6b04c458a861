// internal/agent/source.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/signalnine/rowdelta/internal/results"
)

// ErrCommandFailed is returned when a query command exits abnormally.
var ErrCommandFailed = errors.New("query command failed")

// Source produces the current result set of a query.
type Source interface {
	Snapshot(ctx context.Context) (results.Snapshot, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (results.Snapshot, error)

func (f SourceFunc) Snapshot(ctx context.Context) (results.Snapshot, error) {
	return f(ctx)
}

// CommandSource runs an external command and reads a snapshot document
// from its stdout.
type CommandSource struct {
	Args    []string
	Timeout time.Duration
}

// Snapshot runs the command. Uses LC_ALL=C so producers format
// consistently across locales.
func (c CommandSource) Snapshot(ctx context.Context) (results.Snapshot, error) {
	if len(c.Args) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrCommandFailed)
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%w: %s: %v: %s", ErrCommandFailed, c.Args[0], err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCommandFailed, c.Args[0], err)
	}

	snap, err := results.DecodeSnapshot(out)
	if err != nil {
		return nil, fmt.Errorf("decode %s output: %w", c.Args[0], err)
	}
	return snap, nil
}

// UniqueRows returns s without repeated rows, first occurrence kept.
func UniqueRows(s results.Snapshot) results.Snapshot {
	out := make(results.Snapshot, 0, len(s))
	for _, r := range s {
		results.AddUniqueRow(&out, r)
	}
	return out
}
