package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Fairfood/Navigate-Server/bootstrap"
	"github.com/Fairfood/Navigate-Server/internal/application/analysis"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one analysis sync cycle and exit",
	Long: `Drain the analysis queue once. Exits 0 when another worker holds the
sync lock, so the command is safe to run from cron on every node.`,
	RunE: runSync,
}

func runSync(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	res, err := rt.Coordinator.RunSyncCycle(ctx)
	if errors.Is(err, analysis.ErrLockContention) {
		log.Info().Msg("Sync lock held elsewhere, nothing to do")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info().
		Int("processed", res.Processed).
		Int("completed", res.Completed).
		Int("failed", res.Failed).
		Msg("Sync finished")
	return nil
}
