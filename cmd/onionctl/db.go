package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/onionlab/onion/internal/config"
	"github.com/onionlab/onion/internal/store/sqlstore"
)

// Database commands read ONION_DB_DRIVER and friends like the services do.
func init() {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			// Open applies the schema
			_, _ = fmt.Fprintf(os.Stdout, "schema up to date (%s)\n", st.Driver())
			return nil
		},
	}

	outboxCmd := &cobra.Command{Use: "outbox", Short: "Aggregation outbox operations"}
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Count aggregation tasks by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			counts, err := st.Outbox().CountByStatus(cmd.Context())
			if err != nil {
				return err
			}
			return writeCounts(counts, os.Stdout)
		},
	}
	outboxCmd.AddCommand(statsCmd)

	rootCmd.AddCommand(migrateCmd, outboxCmd)
}

func openStore(ctx context.Context) (*sqlstore.SQLStore, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return sqlstore.Open(ctx, sqlstore.Options{
		Driver:      cfg.DBDriver,
		PostgresDSN: cfg.PostgresDSN,
		SQLitePath:  cfg.SQLitePath,
	})
}

type statusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

func writeCounts(counts map[string]int, out io.Writer) error {
	rows := make([]statusCount, 0, len(counts))
	for s, n := range counts {
		rows = append(rows, statusCount{Status: s, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Status < rows[j].Status })
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
