package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/detection"
)

// VideoJob pairs a registered video with the crops extracted from it by the
// external detector stage.
type VideoJob struct {
	Video detection.Video
	Crops []detection.Crop
}

// ProcessVideo registers the video, runs every crop through the pipeline in
// frame order, and marks the video processed once the stream completes. Crops
// within one video stay sequential so their results land in frame order.
func (p *Pipeline) ProcessVideo(ctx context.Context, job *VideoJob) error {
	if err := p.store.SaveVideo(&job.Video); err != nil {
		return err
	}

	for i := range job.Crops {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := p.ProcessCrop(ctx, &job.Crops[i]); err != nil {
			return err
		}
	}

	if err := p.store.MarkVideoProcessed(job.Video.ID); err != nil {
		return err
	}

	p.logger.Info("video processed",
		"video", job.Video.ID, "branch", job.Video.BranchID, "crops", len(job.Crops))
	return nil
}

// ProcessVideos runs independent videos concurrently, bounded by maxParallel.
// The first failure cancels the remaining work.
func (p *Pipeline) ProcessVideos(ctx context.Context, jobs []VideoJob, maxParallel int) error {
	if maxParallel < 1 {
		maxParallel = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	for i := range jobs {
		job := &jobs[i]
		g.Go(func() error {
			return p.ProcessVideo(ctx, job)
		})
	}
	return g.Wait()
}
