package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pitchpulse",
		Short:         "Curate NWSL news from community, editorial and video sources",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(ingestCmd())
	root.AddCommand(backfillCmd())
	root.AddCommand(digestCmd())
	root.AddCommand(itemsCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func ingestCmd() *cobra.Command {
	var (
		families []string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion batch per source family",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), families, limit)
		},
	}

	cmd.Flags().StringSliceVar(&families, "family", nil, "families to ingest (community,editorial,video; default: all)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max candidates per family after dedup (0: no cap)")
	return cmd
}

func backfillCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Generate summaries for stored items that lack one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd.Context(), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "max items to summarize (default: from config)")
	return cmd
}

func digestCmd() *cobra.Command {
	var preview bool

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Build and send the daily digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(cmd.Context(), preview)
		},
	}

	cmd.Flags().BoolVar(&preview, "preview", false, "print the digest without sending it")
	return cmd
}

func itemsCmd() *cobra.Command {
	var (
		page       int
		sortPolicy string
		topic      string
		buckets    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "items",
		Short: "Show the ranked feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runItems(cmd.Context(), page, sortPolicy, topic, buckets, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().StringVar(&sortPolicy, "sort", "index", "ranking policy: index, hot or pulse")
	cmd.Flags().StringVar(&topic, "topic", "", "only items tagged with this topic")
	cmd.Flags().BoolVar(&buckets, "buckets", false, "group by publish time instead of paging")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
