package licenses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/formulafinance/licensehub/pkg/apierrors"
	"github.com/formulafinance/licensehub/pkg/observability"
	"github.com/formulafinance/licensehub/pkg/outbox"
	"github.com/formulafinance/licensehub/pkg/storage"
)

// Ledger gates report creation on license consumption
type Ledger struct {
	conn    *storage.ConnectionManager
	policy  SelectionPolicy
	metrics *observability.Metrics
	now     func() time.Time
}

// NewLedger creates a ledger. metrics may be nil.
func NewLedger(conn *storage.ConnectionManager, policy SelectionPolicy, metrics *observability.Metrics) *Ledger {
	if policy == "" {
		policy = LatestExpiring
	}
	return &Ledger{conn: conn, policy: policy, metrics: metrics, now: time.Now}
}

// Consumption is the result of a successful RequestReportCreation
type Consumption struct {
	Report  *Report  `json:"report"`
	License *License `json:"license"`
}

// ReportCreatedPayload is the body of the report.created outbox event
type ReportCreatedPayload struct {
	ReportID   int64  `json:"reportId"`
	CustomerID int64  `json:"customerId"`
	ModuleID   int64  `json:"moduleId"`
	LicenseID  int64  `json:"licenseId"`
	ReportType string `json:"reportType"`
}

// RequestReportCreation consumes one unit of the customer's active license
// for the module and creates the report. Denials are no_active_license,
// license_exhausted and license_expired; none of them change any row.
func (l *Ledger) RequestReportCreation(ctx context.Context, req ReportRequest) (result *Consumption, err error) {
	ctx, span := observability.StartSpan(ctx, "ledger.request_report_creation",
		attribute.Int64("ledger.customer_id", req.CustomerID),
		attribute.Int64("ledger.module_id", req.ModuleID),
	)
	start := time.Now()
	defer func() {
		observability.EndSpan(span, err)
		l.observe(req, start, err)
	}()

	if err := validateReportRequest(&req); err != nil {
		return nil, err
	}

	tx, err := l.conn.Primary().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	license, err := l.selectLicense(ctx, tx, req.CustomerID, req.ModuleID)
	if err != nil {
		return nil, err
	}

	now := l.now().UTC().Truncate(time.Second)
	if license.Remaining() <= 0 {
		return nil, exhausted(license)
	}
	if license.ExpirationDate.Before(now) {
		return nil, apierrors.Newf(apierrors.KindLicenseExpired, "license %d expired on %s", license.ID, license.ExpirationDate.Format("2006-01-02"))
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE licenses SET quantity_used = quantity_used + 1, updated_at = $1 WHERE id = $2 AND quantity_used < quantity_total`,
		now, license.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to consume license: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to consume license: %w", err)
	} else if n == 0 {
		return nil, exhausted(license)
	}

	reportQuery, reportArgs, err := squirrel.Insert("reports").
		Columns("customer_id", "module_id", "license_id", "report_type", "status", "input_data", "created_at", "updated_at").
		Values(req.CustomerID, req.ModuleID, license.ID, req.ReportType, string(req.Status), string(req.InputData), now, now).
		Suffix("RETURNING id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build report insert: %w", err)
	}

	var reportID int64
	if err := tx.QueryRowContext(ctx, reportQuery, reportArgs...).Scan(&reportID); err != nil {
		return nil, fmt.Errorf("failed to insert report: %w", err)
	}

	payload := ReportCreatedPayload{
		ReportID:   reportID,
		CustomerID: req.CustomerID,
		ModuleID:   req.ModuleID,
		LicenseID:  license.ID,
		ReportType: req.ReportType,
	}
	if _, err := outbox.Enqueue(ctx, tx, "report", reportID, outbox.EventReportCreated, payload); err != nil {
		return nil, err
	}

	report, err := getReport(ctx, tx, reportID)
	if err != nil {
		return nil, err
	}
	updated, err := getLicense(ctx, tx, license.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit report creation: %w", err)
	}

	return &Consumption{Report: report, License: updated}, nil
}

// selectLicense picks the active license for (customer, module) under the ledger's policy
func (l *Ledger) selectLicense(ctx context.Context, tx *sql.Tx, customerID, moduleID int64) (*License, error) {
	query, args, err := selectLicenses().
		Where(squirrel.Eq{
			"l.customer_id": customerID,
			"l.module_id":   moduleID,
			"l.status":      string(StatusActive),
		}).
		OrderBy(l.policy.orderBy()...).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build license query: %w", err)
	}

	license, err := scanLicense(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierrors.New(apierrors.KindNoActiveLicense, "no active license for this module")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select license: %w", err)
	}
	return license, nil
}

func exhausted(license *License) error {
	return apierrors.Newf(apierrors.KindLicenseExhausted, "license %d has no remaining units", license.ID)
}

func validateReportRequest(req *ReportRequest) error {
	req.ReportType = strings.TrimSpace(req.ReportType)
	switch {
	case req.CustomerID <= 0 || req.ModuleID <= 0:
		return apierrors.New(apierrors.KindInvalidInput, "customerId and moduleId are required")
	case req.ReportType == "":
		return apierrors.New(apierrors.KindInvalidInput, "reportType is required")
	case len(req.InputData) == 0 || !json.Valid(req.InputData):
		return apierrors.New(apierrors.KindInvalidInput, "inputData must be a JSON document")
	}

	if req.Status == "" {
		req.Status = ReportPending
	}
	if !req.Status.Valid() {
		return apierrors.Newf(apierrors.KindInvalidInput, "invalid report status: %s", req.Status)
	}
	return nil
}

func (l *Ledger) observe(req ReportRequest, start time.Time, err error) {
	if l.metrics == nil {
		return
	}
	l.metrics.LedgerTransactionDuration.Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		l.metrics.ReportsCreatedTotal.WithLabelValues(strconv.FormatInt(req.ModuleID, 10)).Inc()
	case apierrors.IsLicenseDenial(err):
		l.metrics.LicenseDenialsTotal.WithLabelValues(string(apierrors.KindOf(err))).Inc()
	}
}
