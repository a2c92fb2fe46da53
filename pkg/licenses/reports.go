package licenses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/formulafinance/licensehub/pkg/apierrors"
	"github.com/formulafinance/licensehub/pkg/customers"
)

var reportColumns = []string{
	"r.id", "r.customer_id", "r.module_id", "r.license_id", "r.report_type", "r.status",
	"r.input_data", "r.api_response", "r.generated_html", "r.created_at", "r.updated_at", "r.completed_at",
	"c.owner_user_id", "m.name",
}

func selectReports() squirrel.SelectBuilder {
	return squirrel.Select(reportColumns...).
		From("reports r").
		Join("customers c ON c.id = r.customer_id").
		LeftJoin("modules m ON m.id = r.module_id").
		PlaceholderFormat(squirrel.Dollar)
}

// GetReport retrieves a report by ID
func (s *Store) GetReport(ctx context.Context, id int64) (*Report, error) {
	return getReport(ctx, s.conn.Primary(), id)
}

func getReport(ctx context.Context, q rowQuerier, id int64) (*Report, error) {
	query, args, err := selectReports().Where(squirrel.Eq{"r.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	r, err := scanReport(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierrors.Newf(apierrors.KindNotFound, "report %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return r, nil
}

// ListReports returns one page of reports, newest first
func (s *Store) ListReports(ctx context.Context, filter Filter, limit, offset uint64) ([]Report, int64, error) {
	if !filter.AllOwners && len(filter.Owners) == 0 {
		return []Report{}, 0, nil
	}

	where := squirrel.And{}
	if !filter.AllOwners {
		where = append(where, squirrel.Eq{"c.owner_user_id": filter.Owners})
	}
	if filter.CustomerID > 0 {
		where = append(where, squirrel.Eq{"r.customer_id": filter.CustomerID})
	}
	if filter.ModuleID > 0 {
		where = append(where, squirrel.Eq{"r.module_id": filter.ModuleID})
	}
	if filter.Status != "" {
		where = append(where, squirrel.Eq{"r.status": filter.Status})
	}

	db := s.conn.Replica()

	countQuery, countArgs, err := squirrel.Select("COUNT(*)").
		From("reports r").
		Join("customers c ON c.id = r.customer_id").
		Where(where).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var total int64
	if err := db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	query, args, err := selectReports().
		Where(where).
		OrderBy("r.created_at DESC", "r.id DESC").
		Limit(limit).
		Offset(offset).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	list := []Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan report: %w", err)
		}
		list = append(list, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return list, total, nil
}

func scanReport(row customers.RowScanner) (*Report, error) {
	var (
		r                 Report
		status, input     string
		licenseID         sql.NullInt64
		apiResponse, html sql.NullString
		completedAt       sql.NullTime
		owner, moduleName sql.NullString
	)
	err := row.Scan(&r.ID, &r.CustomerID, &r.ModuleID, &licenseID, &r.ReportType, &status,
		&input, &apiResponse, &html, &r.CreatedAt, &r.UpdatedAt, &completedAt,
		&owner, &moduleName)
	if err != nil {
		return nil, err
	}

	r.Status = ReportStatus(status)
	r.InputData = json.RawMessage(input)
	if licenseID.Valid {
		id := licenseID.Int64
		r.LicenseID = &id
	}
	if apiResponse.Valid {
		r.APIResponse = json.RawMessage(apiResponse.String)
	}
	r.GeneratedHTML = html.String
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	r.OwnerIdentity = owner.String
	r.ModuleName = moduleName.String
	return &r, nil
}
