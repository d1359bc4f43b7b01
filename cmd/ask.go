package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/groundbot/groundbot/internal/answer"
	"github.com/groundbot/groundbot/internal/app"
	"github.com/groundbot/groundbot/internal/config"
	"github.com/groundbot/groundbot/internal/log"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question and print the grounded answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(ctx context.Context, question string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	// keep stdout clean for the answer text
	logger := log.NewWithWriter(os.Stderr, log.Config{})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()

	turn, _, err := a.Engine.Answer(ctx, question, func(_ context.Context, chunk string) error {
		fmt.Print(chunk)
		return nil
	})
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}
	fmt.Println()

	if turn.Mode == answer.ModeGrounded && len(turn.Citations) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, c := range turn.Citations {
			fmt.Printf("  - %s\n", c.URL)
		}
	}

	return nil
}
