package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no report has the requested id.
var ErrNotFound = errors.New("report not found")

// Report is the stored index entry for one generated report.
type Report struct {
	ID          string    `json:"report_id"`
	Label       string    `json:"prediction"`
	Confidence  float64   `json:"confidence"`
	ReportPath  string    `json:"-"`
	UploadPath  string    `json:"-"`
	ImageSHA256 string    `json:"image_sha256"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReportRepository defines the interface for report index operations.
type ReportRepository interface {
	// Create operations
	Insert(ctx context.Context, r *Report) error

	// Read operations
	GetByID(ctx context.Context, id string) (*Report, error)
	List(ctx context.Context, limit int) ([]Report, error)
}
