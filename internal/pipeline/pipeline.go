// Package pipeline implements the two-stage identification flow: embedding
// retrieval against the catalog index, then vision-language confirmation for
// ambiguous shortlists. Exactly one identification result is appended to the
// store per crop, abstentions included.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/conf"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/detection"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/errors"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/logging"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/observability"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/oracle"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/retriever"
)

// Store is the slice of the detection store the pipeline writes to.
type Store interface {
	SaveDetection(result *detection.IdentificationResult) (uint, error)
	SaveVideo(video *detection.Video) error
	MarkVideoProcessed(videoID string) error
}

// Pipeline identifies products from sticker crops. One instance may process
// crops from many goroutines; all state it touches is either immutable or
// guarded by the components themselves.
type Pipeline struct {
	settings  *conf.Settings
	retriever *retriever.Retriever
	oracle    oracle.Oracle
	store     Store
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// New assembles a pipeline from its collaborators. metrics may be nil.
func New(settings *conf.Settings, r *retriever.Retriever, o oracle.Oracle, store Store, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		settings:  settings,
		retriever: r,
		oracle:    o,
		store:     store,
		metrics:   metrics,
		logger:    logging.ForService("pipeline"),
	}
}

// ProcessCrop runs the decision policy for one crop and appends the outcome.
// Every policy outcome, abstention included, is a successfully recorded
// result; an error means either a data-integrity violation (nothing was
// appended) or a failed append.
func (p *Pipeline) ProcessCrop(ctx context.Context, crop *detection.Crop) (*detection.IdentificationResult, error) {
	start := time.Now()

	result, err := p.decide(ctx, crop)
	if err != nil {
		return nil, err
	}

	if _, err := p.store.SaveDetection(result); err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.Pipeline.DecisionsTotal.WithLabelValues(string(result.ChosenBy)).Inc()
		p.metrics.Pipeline.CropDuration.Observe(time.Since(start).Seconds())
	}
	return result, nil
}

// decide runs the policy stages and produces the identification result. A
// non-nil error is a data-integrity violation; no result exists for the crop
// and nothing may be appended.
func (p *Pipeline) decide(ctx context.Context, crop *detection.Crop) (*detection.IdentificationResult, error) {
	id := p.settings.Identification

	// Stage 0: detector confidence floor. An expected rejection, not an alarm.
	if crop.DetectorConfidence < id.DetectorConfidenceFloor {
		rejection := errors.Newf("detector confidence %.2f below floor %.2f",
			crop.DetectorConfidence, id.DetectorConfidenceFloor).
			Category(errors.CategoryLowConfidenceCrop).
			Build()
		p.logger.Debug("crop rejected before retrieval",
			"video", crop.SourceVideoID, "frame", crop.FrameNumber, "error", rejection)
		p.countStage("rejected")
		return p.abstention(crop, nil, "", detection.ConfidenceRejected), nil
	}

	// Stage 1: embedding retrieval. A dimension mismatch means the embedder
	// and the catalog index disagree; persisting that as an abstention would
	// poison the feature data, so it surfaces as an error instead.
	candidates, err := p.retriever.Retrieve(crop.Embedding, id.TopK, id.MinSimilarity)
	if err != nil {
		if errors.IsDimensionMismatch(err) {
			p.countStage("dimension_mismatch")
			return nil, err
		}
		p.logger.Error("retrieval failed", "video", crop.SourceVideoID, "frame", crop.FrameNumber, "error", err)
		p.countStage("retrieval_error")
		return p.abstention(crop, nil, "", detection.ConfidenceLow), nil
	}
	if p.metrics != nil {
		p.metrics.Pipeline.ShortlistSize.Observe(float64(len(candidates)))
		if len(candidates) > 0 {
			p.metrics.Pipeline.TopSimilarity.Observe(candidates[0].Similarity)
		}
	}
	if len(candidates) == 0 {
		p.countStage("no_candidates")
		return p.abstention(crop, nil, "", detection.ConfidenceLow), nil
	}

	// Stage 2: short-circuit when retrieval alone is decisive. The top
	// candidate must clear the high confidence bar and be clearly separated
	// from the runner-up.
	top := candidates[0]
	separated := len(candidates) == 1 || top.Similarity-candidates[1].Similarity >= id.SeparationMargin
	if top.Similarity >= id.HighConfidence && separated {
		p.countStage("short_circuit")
		return &detection.IdentificationResult{
			ProductID:       top.ProductID,
			ProductName:     top.Name,
			ProductCategory: top.Category,
			Confidence:      detection.ConfidenceHigh,
			ChosenBy:        detection.ChosenByRetrieval,
			Candidates:      candidates,
			SourceVideoID:   crop.SourceVideoID,
			FrameNumber:     crop.FrameNumber,
			BranchID:        crop.BranchID,
			Timestamp:       crop.Timestamp,
		}, nil
	}

	// Stage 3: confirmation oracle.
	p.countStage("oracle")
	decision, err := p.confirmWithRetry(ctx, crop, candidates)
	if err != nil {
		p.logger.Warn("oracle unavailable, abstaining",
			"video", crop.SourceVideoID, "frame", crop.FrameNumber, "error", err)
		return p.abstention(crop, candidates, "", detection.ConfidenceLow), nil
	}

	if decision.ProductID == "" {
		return p.abstention(crop, candidates, decision.Rationale, detection.ConfidenceLow), nil
	}

	// The oracle must pick from the shortlist it was shown. A pick outside it
	// is a contract violation coerced to abstention.
	picked, ok := findCandidate(candidates, decision.ProductID)
	if !ok {
		p.logger.Warn("oracle picked a product outside the shortlist, abstaining",
			"video", crop.SourceVideoID, "frame", crop.FrameNumber, "picked", decision.ProductID)
		return p.abstention(crop, candidates, decision.Rationale, detection.ConfidenceLow), nil
	}

	return &detection.IdentificationResult{
		ProductID:       picked.ProductID,
		ProductName:     picked.Name,
		ProductCategory: picked.Category,
		Confidence:      detection.ConfidenceHigh,
		ChosenBy:        detection.ChosenByOracle,
		Candidates:      candidates,
		OracleRationale: decision.Rationale,
		SourceVideoID:   crop.SourceVideoID,
		FrameNumber:     crop.FrameNumber,
		BranchID:        crop.BranchID,
		Timestamp:       crop.Timestamp,
	}, nil
}

// confirmWithRetry calls the oracle with bounded retries. Only transport
// failures are retried; a contract violation is the model misbehaving and
// another attempt would get the same answer.
func (p *Pipeline) confirmWithRetry(ctx context.Context, crop *detection.Crop, candidates []detection.CandidateMatch) (oracle.Decision, error) {
	cfg := p.settings.Oracle
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := cfg.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		}

		callStart := time.Now()
		decision, err := p.oracle.Confirm(attemptCtx, crop, candidates)
		if cancel != nil {
			cancel()
		}
		if p.metrics != nil {
			p.metrics.Oracle.CallDuration.Observe(time.Since(callStart).Seconds())
		}

		switch {
		case err == nil:
			p.countOracle(decision)
			return decision, nil
		case errors.IsCategory(err, errors.CategoryOracleContract):
			p.countOracleResult("error")
			return oracle.Decision{}, err
		case errors.IsOracleUnavailable(err):
			lastErr = err
			p.countOracleResult("error")
			if attempt == attempts {
				break
			}
			p.logger.Debug("oracle attempt failed, backing off",
				"attempt", attempt, "backoff", backoff, "error", err)
			if p.metrics != nil {
				p.metrics.Oracle.RetriesTotal.Inc()
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return oracle.Decision{}, errors.New(ctx.Err()).
					Category(errors.CategoryCancellation).
					Build()
			}
			backoff *= 2
		default:
			p.countOracleResult("error")
			return oracle.Decision{}, err
		}
	}
	return oracle.Decision{}, lastErr
}

func (p *Pipeline) abstention(crop *detection.Crop, candidates []detection.CandidateMatch, rationale string, confidence detection.ConfidenceLabel) *detection.IdentificationResult {
	return &detection.IdentificationResult{
		Confidence:      confidence,
		ChosenBy:        detection.ChosenByAbstention,
		Candidates:      candidates,
		OracleRationale: rationale,
		SourceVideoID:   crop.SourceVideoID,
		FrameNumber:     crop.FrameNumber,
		BranchID:        crop.BranchID,
		Timestamp:       crop.Timestamp,
	}
}

func (p *Pipeline) countStage(stage string) {
	if p.metrics != nil {
		p.metrics.Pipeline.CropsTotal.WithLabelValues(stage).Inc()
	}
}

func (p *Pipeline) countOracle(decision oracle.Decision) {
	if decision.ProductID == "" {
		p.countOracleResult("no_match")
	} else {
		p.countOracleResult("picked")
	}
}

func (p *Pipeline) countOracleResult(result string) {
	if p.metrics != nil {
		p.metrics.Oracle.CallsTotal.WithLabelValues(result).Inc()
	}
}

func findCandidate(candidates []detection.CandidateMatch, productID string) (detection.CandidateMatch, bool) {
	for _, cand := range candidates {
		if cand.ProductID == productID {
			return cand, true
		}
	}
	return detection.CandidateMatch{}, false
}
