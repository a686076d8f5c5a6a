// mapper.go: conversions between store entities and pipeline value types
package datastore

import (
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/detection"
)

// detectionToRecord converts a pipeline result into its persisted form.
func detectionToRecord(result *detection.IdentificationResult) *Detection {
	record := &Detection{
		SourceVideoID:   result.SourceVideoID,
		FrameNumber:     result.FrameNumber,
		Timestamp:       result.Timestamp,
		BranchID:        result.BranchID,
		ProductID:       result.ProductID,
		ProductName:     result.ProductName,
		ProductCategory: result.ProductCategory,
		Confidence:      string(result.Confidence),
		ChosenBy:        string(result.ChosenBy),
		OracleRationale: result.OracleRationale,
	}

	record.Candidates = make([]Candidate, len(result.Candidates))
	for i, cand := range result.Candidates {
		record.Candidates[i] = Candidate{
			ProductID:  cand.ProductID,
			Name:       cand.Name,
			Category:   cand.Category,
			Similarity: cand.Similarity,
			Rank:       cand.Rank,
		}
	}
	return record
}

// recordToResult converts a persisted detection back to the pipeline form.
func recordToResult(record *Detection) detection.IdentificationResult {
	result := detection.IdentificationResult{
		ProductID:       record.ProductID,
		ProductName:     record.ProductName,
		ProductCategory: record.ProductCategory,
		Confidence:      detection.ConfidenceLabel(record.Confidence),
		ChosenBy:        detection.ChosenBy(record.ChosenBy),
		OracleRationale: record.OracleRationale,
		SourceVideoID:   record.SourceVideoID,
		FrameNumber:     record.FrameNumber,
		BranchID:        record.BranchID,
		Timestamp:       record.Timestamp,
	}

	if len(record.Candidates) > 0 {
		result.Candidates = make([]detection.CandidateMatch, len(record.Candidates))
		for i, cand := range record.Candidates {
			result.Candidates[i] = detection.CandidateMatch{
				ProductID:  cand.ProductID,
				Name:       cand.Name,
				Category:   cand.Category,
				Similarity: cand.Similarity,
				Rank:       cand.Rank,
			}
		}
	}
	return result
}
