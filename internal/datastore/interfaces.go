// interfaces.go: this code defines the interface for the detection store operations
package datastore

import (
	"time"

	"gorm.io/gorm"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/conf"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/detection"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/errors"
)

// DetectionFilter narrows detection queries. Zero values mean "no filter".
type DetectionFilter struct {
	Start    time.Time
	End      time.Time
	BranchID string
	Category string
	Limit    int
}

// Interface abstracts the underlying database implementation and defines the
// operations the pipeline, feature engineer, trainer and API consume.
type Interface interface {
	Open() error
	Close() error

	// Detections
	SaveDetection(result *detection.IdentificationResult) (uint, error)
	GetDetection(id uint) (*detection.IdentificationResult, error)
	SearchDetections(filter *DetectionFilter) ([]detection.IdentificationResult, error)
	GetDetectionsInRange(start, end time.Time, branchID string) ([]Detection, error)
	CountDetectionsSince(since time.Time) (int64, error)

	// Videos
	SaveVideo(video *detection.Video) error
	MarkVideoProcessed(videoID string) error
	GetVideo(videoID string) (*detection.Video, error)

	// Model versions
	SaveModel(record *ModelRecord) error
	GetLatestModel(minSampleCount int) (*ModelRecord, error)
	GetModel(versionID string) (*ModelRecord, error)

	// Predictions
	SavePredictions(records []PredictionRecord) error
	GetLatestPrediction(productID string) (*PredictionRecord, error)
	GetPredictionHistory(productID string, limit int) ([]PredictionRecord, error)

	// Analytics
	Stats() (*SystemStats, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new store instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}
	default:
		return nil
	}
}

// SaveDetection stores an identification result and its considered candidates
// as a single transaction. The append is durable once this returns. A result
// that names a product must have drawn it from its own shortlist; anything
// else is a caller bug the store refuses to record.
func (ds *DataStore) SaveDetection(result *detection.IdentificationResult) (uint, error) {
	if !result.Abstained() && !result.HasCandidate(result.ProductID) {
		return 0, errors.Newf("result product %q is not in the considered shortlist", result.ProductID).
			Category(errors.CategoryValidation).
			Build()
	}

	record := detectionToRecord(result)

	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(record).Error
	})
	if err != nil {
		return 0, errors.Newf("saving detection: %w", err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return record.ID, nil
}

// GetDetection retrieves one identification result by its record id.
func (ds *DataStore) GetDetection(id uint) (*detection.IdentificationResult, error) {
	var record Detection
	if err := ds.DB.Preload("Candidates").First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("detection %d not found", id).
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.Newf("getting detection %d: %w", id, err).
			Category(errors.CategoryDatabase).
			Build()
	}
	result := recordToResult(&record)
	return &result, nil
}

// SearchDetections returns identification results matching the filter,
// newest first.
func (ds *DataStore) SearchDetections(filter *DetectionFilter) ([]detection.IdentificationResult, error) {
	query := ds.DB.Preload("Candidates").Order("timestamp DESC")

	if !filter.Start.IsZero() {
		query = query.Where("timestamp >= ?", filter.Start)
	}
	if !filter.End.IsZero() {
		query = query.Where("timestamp < ?", filter.End)
	}
	if filter.BranchID != "" {
		query = query.Where("branch_id = ?", filter.BranchID)
	}
	if filter.Category != "" {
		query = query.Where("product_category = ?", filter.Category)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var records []Detection
	if err := query.Find(&records).Error; err != nil {
		return nil, errors.Newf("searching detections: %w", err).
			Category(errors.CategoryDatabase).
			Build()
	}

	results := make([]detection.IdentificationResult, len(records))
	for i := range records {
		results[i] = recordToResult(&records[i])
	}
	return results, nil
}

// GetDetectionsInRange returns raw detection rows for one feature engineering
// run: [start, end), oldest first, optionally narrowed to a branch. Candidate
// shortlists are loaded; the ambiguity features aggregate over them.
func (ds *DataStore) GetDetectionsInRange(start, end time.Time, branchID string) ([]Detection, error) {
	query := ds.DB.Preload("Candidates").
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Order("timestamp ASC")
	if branchID != "" {
		query = query.Where("branch_id = ?", branchID)
	}

	var records []Detection
	if err := query.Find(&records).Error; err != nil {
		return nil, errors.Newf("querying detections in range: %w", err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return records, nil
}

// CountDetectionsSince counts detections appended at or after since. The
// prediction service uses this for the sample-delta retrain condition.
func (ds *DataStore) CountDetectionsSince(since time.Time) (int64, error) {
	var count int64
	if err := ds.DB.Model(&Detection{}).Where("created_at >= ?", since).Count(&count).Error; err != nil {
		return 0, errors.Newf("counting detections: %w", err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return count, nil
}

// SaveVideo inserts or replaces a video registry entry.
func (ds *DataStore) SaveVideo(video *detection.Video) error {
	record := VideoRecord{
		ID:            video.ID,
		UploadDate:    video.UploadDate,
		BranchID:      video.BranchID,
		ContributorID: video.ContributorID,
		Processed:     video.Processed,
		FrameCount:    video.FrameCount,
	}
	if err := ds.DB.Save(&record).Error; err != nil {
		return errors.Newf("saving video %s: %w", video.ID, err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// MarkVideoProcessed flags a video as fully processed.
func (ds *DataStore) MarkVideoProcessed(videoID string) error {
	result := ds.DB.Model(&VideoRecord{}).Where("id = ?", videoID).Update("processed", true)
	if result.Error != nil {
		return errors.Newf("marking video %s processed: %w", videoID, result.Error).
			Category(errors.CategoryDatabase).
			Build()
	}
	if result.RowsAffected == 0 {
		return errors.Newf("video %s not found", videoID).
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

// GetVideo retrieves a video registry entry.
func (ds *DataStore) GetVideo(videoID string) (*detection.Video, error) {
	var record VideoRecord
	if err := ds.DB.First(&record, "id = ?", videoID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("video %s not found", videoID).
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.Newf("getting video %s: %w", videoID, err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return &detection.Video{
		ID:            record.ID,
		UploadDate:    record.UploadDate,
		BranchID:      record.BranchID,
		ContributorID: record.ContributorID,
		Processed:     record.Processed,
		FrameCount:    record.FrameCount,
	}, nil
}

// SaveModel appends a new model version. Versions are immutable; saving an
// existing version id is a conflict.
func (ds *DataStore) SaveModel(record *ModelRecord) error {
	if err := ds.DB.Create(record).Error; err != nil {
		return errors.Newf("saving model version %s: %w", record.VersionID, err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// GetLatestModel returns the newest model version whose training sample count
// meets the configured minimum, or a not-found error when none qualifies.
func (ds *DataStore) GetLatestModel(minSampleCount int) (*ModelRecord, error) {
	var record ModelRecord
	err := ds.DB.Where("training_sample_count >= ?", minSampleCount).
		Order("trained_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("no model version with at least %d samples", minSampleCount).
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.Newf("getting latest model: %w", err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return &record, nil
}

// GetModel retrieves one model version by its version id.
func (ds *DataStore) GetModel(versionID string) (*ModelRecord, error) {
	var record ModelRecord
	if err := ds.DB.First(&record, "version_id = ?", versionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("model version %s not found", versionID).
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.Newf("getting model version %s: %w", versionID, err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return &record, nil
}

// SavePredictions appends recomputed probabilities in one transaction.
// Superseded rows are kept for audit, not deleted.
func (ds *DataStore) SavePredictions(records []PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&records).Error
	})
	if err != nil {
		return errors.Newf("saving predictions: %w", err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// GetLatestPrediction returns the most recently computed probability for a
// product.
func (ds *DataStore) GetLatestPrediction(productID string) (*PredictionRecord, error) {
	var record PredictionRecord
	err := ds.DB.Where("product_id = ?", productID).
		Order("computed_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("no prediction for product %s", productID).
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.Newf("getting prediction for %s: %w", productID, err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return &record, nil
}

// GetPredictionHistory returns superseded and current predictions for a
// product, newest first.
func (ds *DataStore) GetPredictionHistory(productID string, limit int) ([]PredictionRecord, error) {
	query := ds.DB.Where("product_id = ?", productID).Order("computed_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []PredictionRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, errors.Newf("getting prediction history for %s: %w", productID, err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return records, nil
}

func dbError(action string, err error) error {
	return errors.Newf("%s: %w", action, err).
		Category(errors.CategoryDatabase).
		Build()
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&Detection{}, &Candidate{}, &VideoRecord{}, &ModelRecord{}, &PredictionRecord{}); err != nil {
		return errors.Newf("failed to auto-migrate %s database: %w", dbType, err).
			Category(errors.CategoryDatabase).
			Build()
	}

	if debug {
		logger.Debug("database connection initialized", "type", dbType, "connection", connectionInfo)
	}

	return nil
}
