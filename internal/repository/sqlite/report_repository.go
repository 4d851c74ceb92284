package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Brownie44l1/xray-api/internal/repository"
)

// ReportRepository implements repository.ReportRepository for SQLite.
type ReportRepository struct {
	db *DB
}

// NewReportRepository creates a new SQLite report repository.
func NewReportRepository(db *DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Insert adds a report. Ids are unique; inserting an existing id fails.
func (r *ReportRepository) Insert(ctx context.Context, rep *repository.Report) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO reports (id, label, confidence, report_path, upload_path, image_sha256, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rep.ID, rep.Label, rep.Confidence, rep.ReportPath, rep.UploadPath, rep.ImageSHA256, rep.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// GetByID returns repository.ErrNotFound when id is unknown.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*repository.Report, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT id, label, confidence, report_path, upload_path, image_sha256, created_at
		FROM reports WHERE id = ?
	`, id)

	var rep repository.Report
	err := row.Scan(&rep.ID, &rep.Label, &rep.Confidence, &rep.ReportPath, &rep.UploadPath, &rep.ImageSHA256, &rep.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report: %w", err)
	}
	return &rep, nil
}

// List returns the newest reports first.
func (r *ReportRepository) List(ctx context.Context, limit int) ([]repository.Report, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, label, confidence, report_path, upload_path, image_sha256, created_at
		FROM reports ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := make([]repository.Report, 0)
	for rows.Next() {
		var rep repository.Report
		if err := rows.Scan(&rep.ID, &rep.Label, &rep.Confidence, &rep.ReportPath, &rep.UploadPath, &rep.ImageSHA256, &rep.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, rep)
	}

	return reports, rows.Err()
}
