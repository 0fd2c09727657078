// ABOUTME: Report mirror methods on SQLiteStore
// ABOUTME: Reports are created and deleted, never updated in place

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scpnet/scpnet-client/internal/clearance"
)

// CreateReport inserts a report into the local mirror.
func (s *SQLiteStore) CreateReport(ctx context.Context, report *Report) error {
	query := `
		INSERT OR IGNORE INTO reports (id, author_id, author_name, author_clearance,
			type, severity, title, content, target_id, image_url, created_at, archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		report.ID,
		report.AuthorID,
		report.AuthorName,
		int(report.AuthorClearance),
		report.Type,
		report.Severity,
		report.Title,
		report.Content,
		nullString(report.TargetID),
		nullString(report.ImageURL),
		report.CreatedAt.UTC().Format(time.RFC3339),
		boolInt(report.Archived),
	)
	if err != nil {
		return fmt.Errorf("inserting report: %w", err)
	}

	s.logger.Debug("created report", "id", report.ID, "type", report.Type)
	return nil
}

// GetReport retrieves a report by ID.
// Returns ErrNotFound if the report doesn't exist.
func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*Report, error) {
	row := s.db.QueryRowContext(ctx, reportSelect+` WHERE id = ?`, id)

	report, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying report: %w", err)
	}
	return report, nil
}

// ListReports returns all mirrored reports, newest first. Visibility
// filtering happens above the store, in the clearance model.
func (s *SQLiteStore) ListReports(ctx context.Context) ([]*Report, error) {
	rows, err := s.db.QueryContext(ctx, reportSelect+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report row: %w", err)
		}
		reports = append(reports, report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating report rows: %w", err)
	}
	return reports, nil
}

// DeleteReport removes a report from the local mirror.
// Returns ErrNotFound if the report doesn't exist.
func (s *SQLiteStore) DeleteReport(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting report: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted report", "id", id)
	return nil
}

// ReplaceReports replaces the mirror with the authoritative remote result set.
func (s *SQLiteStore) ReplaceReports(ctx context.Context, reports []*Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reports`); err != nil {
		return fmt.Errorf("clearing report mirror: %w", err)
	}

	insert := `
		INSERT INTO reports (id, author_id, author_name, author_clearance,
			type, severity, title, content, target_id, image_url, created_at, archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, report := range reports {
		_, err := tx.ExecContext(ctx, insert,
			report.ID,
			report.AuthorID,
			report.AuthorName,
			int(report.AuthorClearance),
			report.Type,
			report.Severity,
			report.Title,
			report.Content,
			nullString(report.TargetID),
			nullString(report.ImageURL),
			report.CreatedAt.UTC().Format(time.RFC3339),
			boolInt(report.Archived),
		)
		if err != nil {
			return fmt.Errorf("inserting mirrored report: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing report mirror: %w", err)
	}

	s.logger.Debug("replaced report mirror", "count", len(reports))
	return nil
}

const reportSelect = `
	SELECT id, author_id, author_name, author_clearance, type, severity,
		title, content, target_id, image_url, created_at, archived
	FROM reports
`

func scanReport(r rowScanner) (*Report, error) {
	var report Report
	var level, archived int
	var targetID, imageURL sql.NullString
	var createdAt string

	err := r.Scan(&report.ID, &report.AuthorID, &report.AuthorName, &level,
		&report.Type, &report.Severity, &report.Title, &report.Content,
		&targetID, &imageURL, &createdAt, &archived)
	if err != nil {
		return nil, err
	}

	report.AuthorClearance = clearance.Level(level)
	report.TargetID = targetID.String
	report.ImageURL = imageURL.String
	report.Archived = archived != 0
	report.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return &report, nil
}
