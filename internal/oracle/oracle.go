// Package oracle provides the vision-language confirmation step that
// disambiguates between close catalog candidates. The oracle is modeled as a
// capability with a single method so the underlying provider is swappable
// without touching the pipeline state machine.
package oracle

import (
	"context"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/detection"
)

// Decision is the oracle's answer for one crop. An empty ProductID means
// "none of these match", which is a valid, expected outcome. Rationale text
// is non-deterministic: two identical calls may word it differently, so
// callers must not assume idempotence of anything but the decision itself.
type Decision struct {
	ProductID string
	Rationale string
}

// Oracle is the confirmation capability. Confirm is stateless per call and
// may be invoked concurrently from independent pipeline instances.
type Oracle interface {
	Confirm(ctx context.Context, crop *detection.Crop, candidates []detection.CandidateMatch) (Decision, error)
}
