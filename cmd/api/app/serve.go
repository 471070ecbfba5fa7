package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Fairfood/Navigate-Server/bootstrap"
	"github.com/Fairfood/Navigate-Server/internal/application/analysis"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultGracefulTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the HTTP API. With SCHEDULER_ENABLED=true the process also runs
the analysis sync on SYNC_INTERVAL; the Redis lock keeps one cycle running fleet-wide.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Bool("scheduler", false, "Run the analysis sync scheduler in this process")
	if err := viper.BindPFlag("SCHEDULER_ENABLED", serveCmd.Flags().Lookup("scheduler")); err != nil {
		log.Fatal().Err(err).Msg("Failed to bind scheduler flag")
	}
}

func runServe(_ *cobra.Command, _ []string) error {
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
	defer func() {
		if err := rt.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close connections")
		}
	}()

	var scheduler *analysis.Scheduler
	if cfg.SchedulerEnabled {
		scheduler = analysis.NewScheduler(rt.Coordinator, cfg.SyncInterval)
		go func() {
			if err := scheduler.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Analysis scheduler failed")
			}
		}()
	}

	app := rt.App()
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server running")
		errc <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	if scheduler != nil {
		scheduler.Stop()
	}
	if err := app.ShutdownWithTimeout(defaultGracefulTimeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
