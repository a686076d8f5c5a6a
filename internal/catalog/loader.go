package catalog

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/errors"
)

// snapshotFile is the wire format published by the offline catalog refresh
// job. Every refresh writes a complete file; partial updates are not
// supported.
type snapshotFile struct {
	GeneratedAt time.Time `json:"generated_at"`
	Products    []Entry   `json:"products"`
}

// LoadSnapshotFile reads a published catalog snapshot from disk.
func LoadSnapshotFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.Newf("parsing catalog snapshot %s: %w", path, err).
			Category(errors.CategoryCatalog).
			Build()
	}

	if len(file.Products) == 0 {
		return nil, errors.Newf("catalog snapshot %s contains no products", path).
			Category(errors.CategoryCatalog).
			Build()
	}

	return file.Products, nil
}
