// Package serve implements the serve command: the long-running HTTP server
// with the prediction refresh loop.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/api"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/catalog"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/conf"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/datastore"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/features"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/logging"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/observability"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/prediction"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/trainer"
)

const (
	retrainCheckInterval = time.Hour
	shutdownTimeout      = 10 * time.Second
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the prediction server and refresh loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(settings)
		},
	}
}

func runServe(settings *conf.Settings) error {
	logger := logging.ForService("serve")
	if settings.Main.Log.Enabled {
		fileLogger, closeLog, err := logging.NewFileLogger(settings.Main.Log.Path, "serve", slog.LevelInfo)
		if err != nil {
			return err
		}
		defer closeLog()
		logger = fileLogger
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := datastore.New(settings)
	if store == nil {
		return fmt.Errorf("no database output enabled in configuration")
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close()

	index := catalog.NewIndex()
	if settings.Catalog.Path != "" {
		if err := index.RebuildFromFile(ctx, settings.Catalog.Path, settings.Catalog.Dimension); err != nil {
			return fmt.Errorf("loading catalog snapshot: %w", err)
		}
	} else {
		logger.Warn("no catalog snapshot configured, predictions cannot refresh until one is loaded")
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	engineer := features.NewEngineer(store, index, settings.Training.WindowDays)
	svc := prediction.NewService(settings, store, engineer, trainer.New(settings.Training), metrics)
	if err := svc.LoadActiveModel(); err != nil {
		return err
	}
	go svc.RunLoop(ctx, retrainCheckInterval)

	controller := api.New(settings, store, svc, metrics)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- controller.Start()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return controller.Shutdown(shutdownCtx)
}
