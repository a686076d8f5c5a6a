// Package analyze implements the analyze command: running a batch of
// detector output through the identification pipeline.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/catalog"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/conf"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/datastore"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/detection"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/errors"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/oracle"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/pipeline"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/retriever"
)

// manifest is the JSON handoff from the external detector and embedder stage:
// per video, the crops it found with their embeddings and image paths.
type manifest struct {
	Videos []manifestVideo `json:"videos"`
}

type manifestVideo struct {
	Video detection.Video `json:"video"`
	Crops []manifestCrop  `json:"crops"`
}

type manifestCrop struct {
	ImagePath          string    `json:"image_path"`
	FrameNumber        int       `json:"frame_number"`
	Timestamp          time.Time `json:"timestamp"`
	DetectorConfidence float64   `json:"detector_confidence"`
	Embedding          []float32 `json:"embedding"`
}

// Command creates the analyze command.
func Command(settings *conf.Settings) *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "analyze [manifest.json]",
		Short: "Identify products in a batch of detected sticker crops",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), settings, args[0], parallel)
		},
	}
	cmd.Flags().IntVar(&parallel, "parallel", 2, "Number of videos processed concurrently")
	return cmd
}

func runAnalyze(ctx context.Context, settings *conf.Settings, manifestPath string, parallel int) error {
	if ctx == nil {
		ctx = context.Background()
	}

	jobs, err := loadManifest(manifestPath)
	if err != nil {
		return err
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

	p := pipeline.New(settings,
		retriever.New(index),
		oracle.NewOpenAIClient(&settings.Oracle),
		store, nil)

	if err := p.ProcessVideos(ctx, jobs, parallel); err != nil {
		return err
	}

	crops := 0
	for i := range jobs {
		crops += len(jobs[i].Crops)
	}
	fmt.Printf("processed %d videos, %d crops\n", len(jobs), crops)
	return nil
}

// loadManifest reads the detector handoff file and resolves crop images.
func loadManifest(path string) ([]pipeline.VideoJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Newf("reading manifest %s: %w", path, err).
			Category(errors.CategoryFileIO).
			Build()
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Newf("parsing manifest %s: %w", path, err).
			Category(errors.CategoryValidation).
			Build()
	}

	jobs := make([]pipeline.VideoJob, 0, len(m.Videos))
	for _, v := range m.Videos {
		job := pipeline.VideoJob{Video: v.Video}
		job.Video.FrameCount = len(v.Crops)

		for _, c := range v.Crops {
			imageBytes, err := os.ReadFile(c.ImagePath)
			if err != nil {
				return nil, errors.Newf("reading crop image %s: %w", c.ImagePath, err).
					Category(errors.CategoryFileIO).
					Build()
			}
			job.Crops = append(job.Crops, detection.Crop{
				ImageBytes:         imageBytes,
				SourceVideoID:      v.Video.ID,
				FrameNumber:        c.FrameNumber,
				Timestamp:          c.Timestamp,
				BranchID:           v.Video.BranchID,
				DetectorConfidence: c.DetectorConfidence,
				Embedding:          c.Embedding,
			})
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
