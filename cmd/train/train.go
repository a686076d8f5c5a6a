// Package train implements the train command: one synchronous prediction
// refresh from the current detection history.
package train

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/catalog"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/conf"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/datastore"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/features"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/prediction"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/trainer"
)

// Command creates the train command.
func Command(settings *conf.Settings) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Retrain the reduction predictor and recompute probabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(cmd.Context(), settings, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Retrain even when the retrain policy is not met")
	return cmd
}

func runTrain(ctx context.Context, settings *conf.Settings, force bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	store := datastore.New(settings)
	if store == nil {
		return fmt.Errorf("no database output enabled in configuration")
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close()

	index := catalog.NewIndex()
	if err := index.RebuildFromFile(ctx, settings.Catalog.Path, settings.Catalog.Dimension); err != nil {
		return fmt.Errorf("loading catalog snapshot: %w", err)
	}

	engineer := features.NewEngineer(store, index, settings.Training.WindowDays)
	svc := prediction.NewService(settings, store, engineer, trainer.New(settings.Training), nil)
	if err := svc.LoadActiveModel(); err != nil {
		return err
	}

	if err := svc.RefreshNow(ctx, force); err != nil {
		return err
	}

	if active := svc.Active(); active != nil {
		fmt.Printf("model %s trained on %d samples, holdout AUC %.4f\n",
			active.Record.VersionID, active.Record.TrainingSampleCount, active.Record.AUC)
	} else {
		fmt.Println("retrain policy not met, nothing to do (use --force to override)")
	}
	return nil
}
