// Package detection defines the value types that flow through the
// identification pipeline: crops handed over by the sticker detector,
// candidate shortlists produced by retrieval, and the identification results
// appended to the detection store.
package detection

import (
	"time"
)

// ConfidenceLabel classifies how confident the pipeline was in its decision.
type ConfidenceLabel string

const (
	ConfidenceHigh     ConfidenceLabel = "high"
	ConfidenceLow      ConfidenceLabel = "low"
	ConfidenceRejected ConfidenceLabel = "rejected"
)

// ChosenBy records which stage of the pipeline produced the final decision.
type ChosenBy string

const (
	// ChosenByRetrieval means the retrieval short-circuit decided without the oracle.
	ChosenByRetrieval ChosenBy = "retrieval_only"
	// ChosenByOracle means the confirmation oracle picked the candidate.
	ChosenByOracle ChosenBy = "oracle_confirmed"
	// ChosenByAbstention means no confident match was produced.
	ChosenByAbstention ChosenBy = "abstained"
)

// Crop is one detected sticker region handed to the pipeline. Crops are
// transient: the pipeline consumes them and persists only the resulting
// IdentificationResult. The embedding is computed by the external embedder
// before the crop reaches the pipeline.
type Crop struct {
	ImageBytes         []byte
	SourceVideoID      string
	FrameNumber        int
	Timestamp          time.Time
	BranchID           string
	DetectorConfidence float64
	Embedding          []float32
}

// CandidateMatch is one catalog product proposed as a possible match for a
// crop. Shortlists are produced fresh per crop, ordered by descending
// similarity, and never mutated.
type CandidateMatch struct {
	ProductID  string  `json:"product_id"`
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Similarity float64 `json:"similarity"`
	Rank       int     `json:"rank"`
}

// IdentificationResult is the sole unit appended to the detection store, one
// per crop. A result with ChosenBy == ChosenByAbstention carries an empty
// ProductID; any other ChosenBy carries a ProductID drawn from Candidates.
type IdentificationResult struct {
	ProductID       string           `json:"product_id,omitempty"`
	ProductName     string           `json:"product_name,omitempty"`
	ProductCategory string           `json:"product_category,omitempty"`
	Confidence      ConfidenceLabel  `json:"confidence_label"`
	ChosenBy        ChosenBy         `json:"chosen_by"`
	Candidates      []CandidateMatch `json:"candidates_considered"`
	OracleRationale string           `json:"oracle_rationale,omitempty"`
	SourceVideoID   string           `json:"source_video_id"`
	FrameNumber     int              `json:"frame_number"`
	BranchID        string           `json:"branch_id"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Abstained reports whether the pipeline declined to identify the crop.
func (r *IdentificationResult) Abstained() bool {
	return r.ChosenBy == ChosenByAbstention
}

// HasCandidate reports whether productID appears in the considered shortlist.
func (r *IdentificationResult) HasCandidate(productID string) bool {
	for i := range r.Candidates {
		if r.Candidates[i].ProductID == productID {
			return true
		}
	}
	return false
}

// Video is the registry entry for one uploaded video; the pipeline marks it
// processed once its crop stream completes.
type Video struct {
	ID            string    `json:"id"`
	UploadDate    time.Time `json:"upload_date"`
	BranchID      string    `json:"branch_id"`
	ContributorID string    `json:"contributor_id"`
	Processed     bool      `json:"processed"`
	FrameCount    int       `json:"frame_count"`
}
