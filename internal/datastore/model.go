// model.go this code defines the data model for the detection store
package datastore

import "time"

// Detection represents one identification outcome, the sole unit appended by
// the pipeline. An empty ProductID records an abstention.
type Detection struct {
	ID              uint        `gorm:"primaryKey"`
	SourceVideoID   string      `gorm:"index:idx_detections_video"`
	FrameNumber     int
	Timestamp       time.Time   `gorm:"index:idx_detections_timestamp"`
	BranchID        string      `gorm:"index:idx_detections_branch"`
	ProductID       string      `gorm:"index:idx_detections_product"`
	ProductName     string
	ProductCategory string      `gorm:"index:idx_detections_category"`
	Confidence      string      // confidence label: high, low, rejected
	ChosenBy        string      `gorm:"index:idx_detections_chosenby"` // retrieval_only, oracle_confirmed, abstained
	OracleRationale string
	Candidates      []Candidate `gorm:"foreignKey:DetectionID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time
}

// Candidate is one shortlist entry considered for a detection, kept for
// audit. Ordered by Rank within a detection.
type Candidate struct {
	ID          uint `gorm:"primaryKey"`
	DetectionID uint `gorm:"index;not null"`
	ProductID   string
	Name        string
	Category    string
	Similarity  float64
	Rank        int
}

// VideoRecord tracks uploaded videos and their processing state.
type VideoRecord struct {
	ID            string `gorm:"primaryKey"`
	UploadDate    time.Time
	BranchID      string
	ContributorID string
	Processed     bool
	FrameCount    int
}

// ModelRecord is one immutable, fully trained model version. Rows are
// append-only; versions referenced by predictions are never deleted.
type ModelRecord struct {
	ID                  uint      `gorm:"primaryKey"`
	VersionID           string    `gorm:"uniqueIndex;not null"`
	TrainedAt           time.Time `gorm:"index"`
	TrainingSampleCount int
	AUC                 float64
	FeatureImportance   string // JSON object, weight per feature name
	Parameters          []byte // serialized model parameters, JSON
	CreatedAt           time.Time
}

// PredictionRecord is one served probability for a product. Recomputed when
// the active model version changes; superseded rows are kept for audit.
type PredictionRecord struct {
	ID             uint      `gorm:"primaryKey"`
	ProductID      string    `gorm:"index:idx_predictions_product"`
	Probability    float64
	ModelVersionID string    `gorm:"index:idx_predictions_version"`
	ComputedAt     time.Time `gorm:"index"`
}
