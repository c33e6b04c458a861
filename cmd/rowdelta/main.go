// cmd/rowdelta/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signalnine/rowdelta/internal/agent"
	"github.com/signalnine/rowdelta/internal/collector"
	"github.com/signalnine/rowdelta/internal/config"
	"github.com/signalnine/rowdelta/internal/logging"
	"github.com/signalnine/rowdelta/internal/results"
)

var rootCmd = &cobra.Command{
	Use:           "rowdelta",
	Short:         "Differential query results: agent, collector and tools",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the host agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadAgentConfig(path)
		if err != nil {
			return err
		}
		level, err := logging.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return agent.New(cfg, logging.NewStderr(level, "agent")).Run(ctx)
	},
}

var collectorCmd = &cobra.Command{
	Use:   "collector",
	Short: "Run the central collector",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadCollectorConfig(path)
		if err != nil {
			return err
		}
		level, err := logging.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}

		srv, err := collector.NewServer(cfg, logging.NewStderr(level, "collector"))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return srv.Run(ctx)
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff OLD NEW",
	Short: "Print the differential between two snapshot documents",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		columns, _ := cmd.Flags().GetStringSlice("columns")
		unique, _ := cmd.Flags().GetBool("unique")
		return runDiff(cmd.OutOrStdout(), args[0], args[1], columns, unique)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history HOST",
	Short: "List stored log items for a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("db")
		limit, _ := cmd.Flags().GetInt("limit")
		db, err := collector.NewDB(path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		return runHistory(cmd.OutOrStdout(), db, args[0], limit)
	},
}

func init() {
	agentCmd.Flags().String("config", "/etc/rowdelta/agent.yaml", "agent config file")
	collectorCmd.Flags().String("config", "/etc/rowdelta/collector.yaml", "collector config file")
	diffCmd.Flags().StringSlice("columns", nil, "column order for the output rows")
	diffCmd.Flags().Bool("unique", false, "drop duplicate rows before diffing")
	historyCmd.Flags().String("db", "/var/lib/rowdelta/collector.db", "collector database")
	historyCmd.Flags().Int("limit", 20, "maximum number of items")

	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(collectorCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(historyCmd)
}

func readSnapshot(path string) (results.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := results.DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func runDiff(w io.Writer, oldPath, newPath string, columns []string, unique bool) error {
	old, err := readSnapshot(oldPath)
	if err != nil {
		return err
	}
	current, err := readSnapshot(newPath)
	if err != nil {
		return err
	}
	if unique {
		old, current = agent.UniqueRows(old), agent.UniqueRows(current)
	}

	doc := results.EncodeDiffResults(results.Diff(old, current), results.Fixed(columns...))
	_, err = fmt.Fprintf(w, "%s\n", doc)
	return err
}

func runHistory(w io.Writer, db *collector.DB, host string, limit int) error {
	items, err := db.QueryByHost(host, limit)
	if err != nil {
		return err
	}
	for _, it := range items {
		fmt.Fprintf(w, "%s  %-20s epoch=%d counter=%d +%d -%d  %s\n",
			it.CalendarTime, it.Name, it.Epoch, it.Counter, it.Added, it.Removed, it.ID)
	}

	counts, err := db.ActionCounts()
	if err != nil {
		return err
	}
	actions := make([]string, 0, len(counts))
	for a := range counts {
		actions = append(actions, string(a))
	}
	sort.Strings(actions)
	for _, a := range actions {
		fmt.Fprintf(w, "total %s: %d\n", a, counts[results.Action(a)])
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
