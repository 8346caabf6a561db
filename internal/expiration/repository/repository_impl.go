package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	expirationdomain "github.com/smallbiznis/provwatch/internal/expiration/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() expirationdomain.Repository {
	return &repo{}
}

func (r *repo) ReplaceAll(ctx context.Context, db *gorm.DB, runID snowflake.ID, findings []expirationdomain.ExpirationFinding) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM expiration_findings WHERE run_id <> ?`,
		runID,
	).Error; err != nil {
		return err
	}
	for _, finding := range findings {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO expiration_findings (
				id, run_id, account_id, account_name, record_id, record_name,
				category, product_code, product_name, package_name, end_date,
				days_until_expiry, disposition, extending_record_id,
				extending_end_date, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			finding.ID,
			finding.RunID,
			finding.AccountID,
			finding.AccountName,
			finding.RecordID,
			finding.RecordName,
			finding.Category,
			finding.ProductCode,
			finding.ProductName,
			finding.PackageName,
			finding.EndDate,
			finding.DaysUntilExpiry,
			finding.Disposition,
			finding.ExtendingRecordID,
			finding.ExtendingEndDate,
			finding.CreatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) ListReportable(ctx context.Context, db *gorm.DB, accountID string, limit int) ([]expirationdomain.ExpirationFinding, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, run_id, account_id, account_name, record_id, record_name,
			category, product_code, product_name, package_name, end_date,
			days_until_expiry, disposition, extending_record_id,
			extending_end_date, created_at
		FROM expiration_findings
		WHERE disposition = ?`
	args := []interface{}{expirationdomain.DispositionReportable}
	if accountID != "" {
		query += ` AND account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY end_date ASC LIMIT ?`
	args = append(args, limit)

	var findings []expirationdomain.ExpirationFinding
	err := db.WithContext(ctx).Raw(query, args...).Scan(&findings).Error
	if err != nil {
		return nil, err
	}
	return findings, nil
}
