// analytics.go: aggregate statistics over the detection store
package datastore

import (
	"time"
)

// SystemStats is the aggregate view served by the stats API endpoint.
type SystemStats struct {
	TotalDetections   int64            `json:"total_detections"`
	TotalAbstentions  int64            `json:"total_abstentions"`
	DistinctProducts  int64            `json:"distinct_products"`
	TotalVideos       int64            `json:"total_videos"`
	ProcessedVideos   int64            `json:"processed_videos"`
	ModelVersions     int64            `json:"model_versions"`
	LatestDetection   *time.Time       `json:"latest_detection,omitempty"`
	DecisionBreakdown map[string]int64 `json:"decision_breakdown"`
	TopCategories     []CategoryCount  `json:"top_categories"`
}

// CategoryCount is one product category and its detection count.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// Stats computes aggregate counters across detections, videos and models.
func (ds *DataStore) Stats() (*SystemStats, error) {
	stats := &SystemStats{
		DecisionBreakdown: make(map[string]int64),
	}

	if err := ds.DB.Model(&Detection{}).Count(&stats.TotalDetections).Error; err != nil {
		return nil, dbError("counting detections", err)
	}
	if err := ds.DB.Model(&Detection{}).
		Where("chosen_by = ?", "abstained").
		Count(&stats.TotalAbstentions).Error; err != nil {
		return nil, dbError("counting abstentions", err)
	}
	if err := ds.DB.Model(&Detection{}).
		Where("product_id != ''").
		Distinct("product_id").
		Count(&stats.DistinctProducts).Error; err != nil {
		return nil, dbError("counting distinct products", err)
	}
	if err := ds.DB.Model(&VideoRecord{}).Count(&stats.TotalVideos).Error; err != nil {
		return nil, dbError("counting videos", err)
	}
	if err := ds.DB.Model(&VideoRecord{}).
		Where("processed = ?", true).
		Count(&stats.ProcessedVideos).Error; err != nil {
		return nil, dbError("counting processed videos", err)
	}
	if err := ds.DB.Model(&ModelRecord{}).Count(&stats.ModelVersions).Error; err != nil {
		return nil, dbError("counting model versions", err)
	}

	var breakdown []struct {
		ChosenBy string
		Count    int64
	}
	if err := ds.DB.Model(&Detection{}).
		Select("chosen_by, COUNT(*) as count").
		Group("chosen_by").
		Scan(&breakdown).Error; err != nil {
		return nil, dbError("grouping decisions", err)
	}
	for _, row := range breakdown {
		stats.DecisionBreakdown[row.ChosenBy] = row.Count
	}

	var categories []CategoryCount
	if err := ds.DB.Model(&Detection{}).
		Select("product_category as category, COUNT(*) as count").
		Where("product_category != ''").
		Group("product_category").
		Order("count DESC").
		Limit(10).
		Scan(&categories).Error; err != nil {
		return nil, dbError("grouping categories", err)
	}
	stats.TopCategories = categories

	if stats.TotalDetections > 0 {
		var latest Detection
		if err := ds.DB.Order("timestamp DESC").First(&latest).Error; err != nil {
			return nil, dbError("finding latest detection", err)
		}
		stats.LatestDetection = &latest.Timestamp
	}

	return stats, nil
}
