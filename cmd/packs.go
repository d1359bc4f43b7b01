package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/groundbot/groundbot/internal/app"
	"github.com/groundbot/groundbot/internal/config"
	"github.com/groundbot/groundbot/internal/log"
)

var packsCmd = &cobra.Command{
	Use:   "packs",
	Short: "List documentation packs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runPacksList(cmd.Context())
	},
}

var packsDeleteCmd = &cobra.Command{
	Use:   "delete [key]",
	Short: "Delete a documentation pack and its index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPacksDelete(cmd.Context(), args[0])
	},
}

func init() {
	packsCmd.AddCommand(packsDeleteCmd)
	rootCmd.AddCommand(packsCmd)
}

func setupForCLI(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return app.Setup(ctx, cfg, log.NewWithWriter(os.Stderr, log.Config{Level: slog.LevelWarn}))
}

func runPacksList(ctx context.Context) error {
	a, err := setupForCLI(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	summaries, err := a.Packs.Summaries(ctx)
	if err != nil {
		return fmt.Errorf("listing packs: %w", err)
	}

	if len(summaries) == 0 {
		fmt.Println("no packs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tTECH\tVERSION\tCOMPLETENESS\tCHUNKS")
	for _, s := range summaries {
		key := s.Key
		if len(key) > 12 {
			key = key[:12]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%d\n", key, s.Tech, s.Version, s.Completeness, s.Chunks)
	}
	return w.Flush()
}

func runPacksDelete(ctx context.Context, key string) error {
	a, err := setupForCLI(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.Packs.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting pack: %w", err)
	}
	fmt.Printf("deleted pack %s\n", key)
	return nil
}
