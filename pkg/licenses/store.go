package licenses

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/formulafinance/licensehub/pkg/apierrors"
	"github.com/formulafinance/licensehub/pkg/customers"
	"github.com/formulafinance/licensehub/pkg/outbox"
	"github.com/formulafinance/licensehub/pkg/storage"
)

var licenseColumns = []string{
	"l.id", "l.customer_id", "l.module_id", "l.quantity_total", "l.quantity_used",
	"l.activation_date", "l.expiration_date", "l.status", "l.created_at", "l.updated_at",
	"c.owner_user_id", "m.name", "m.display_name",
}

// Store handles license, module and report persistence
type Store struct {
	conn *storage.ConnectionManager
	now  func() time.Time
}

// NewStore creates a new license store
func NewStore(conn *storage.ConnectionManager) *Store {
	return &Store{conn: conn, now: time.Now}
}

func selectLicenses() squirrel.SelectBuilder {
	return squirrel.Select(licenseColumns...).
		From("licenses l").
		Join("customers c ON c.id = l.customer_id").
		LeftJoin("modules m ON m.id = l.module_id").
		PlaceholderFormat(squirrel.Dollar)
}

// Get retrieves a license by ID
func (s *Store) Get(ctx context.Context, id int64) (*License, error) {
	return getLicense(ctx, s.conn.Primary(), id)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getLicense(ctx context.Context, q rowQuerier, id int64) (*License, error) {
	query, args, err := selectLicenses().Where(squirrel.Eq{"l.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	l, err := scanLicense(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierrors.Newf(apierrors.KindNotFound, "license %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license: %w", err)
	}
	return l, nil
}

// List returns one page of licenses, newest first
func (s *Store) List(ctx context.Context, filter Filter, limit, offset uint64) ([]License, int64, error) {
	if !filter.AllOwners && len(filter.Owners) == 0 {
		return []License{}, 0, nil
	}

	where := squirrel.And{}
	if !filter.AllOwners {
		where = append(where, squirrel.Eq{"c.owner_user_id": filter.Owners})
	}
	if filter.CustomerID > 0 {
		where = append(where, squirrel.Eq{"l.customer_id": filter.CustomerID})
	}
	if filter.ModuleID > 0 {
		where = append(where, squirrel.Eq{"l.module_id": filter.ModuleID})
	}
	if filter.Status != "" {
		where = append(where, squirrel.Eq{"l.status": filter.Status})
	}

	db := s.conn.Replica()

	countQuery, countArgs, err := squirrel.Select("COUNT(*)").
		From("licenses l").
		Join("customers c ON c.id = l.customer_id").
		Where(where).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var total int64
	if err := db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count licenses: %w", err)
	}

	query, args, err := selectLicenses().
		Where(where).
		OrderBy("l.id DESC").
		Limit(limit).
		Offset(offset).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build query: %w", err)
	}

	list, err := queryLicenses(ctx, db, query, args)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListForOwner returns the licenses of every customer owned by identity,
// soonest expiry first
func (s *Store) ListForOwner(ctx context.Context, identity string) ([]License, error) {
	if identity == "" {
		return []License{}, nil
	}

	query, args, err := selectLicenses().
		Where(squirrel.Eq{"c.owner_user_id": identity}).
		OrderBy("l.expiration_date ASC", "l.id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return queryLicenses(ctx, s.conn.Replica(), query, args)
}

func queryLicenses(ctx context.Context, db *sql.DB, query string, args []interface{}) ([]License, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	defer rows.Close()

	list := []License{}
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		list = append(list, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate licenses: %w", err)
	}
	return list, nil
}

// Create inserts a license
func (s *Store) Create(ctx context.Context, in NewLicense) (*License, error) {
	if in.Status == "" {
		in.Status = StatusActive
	}
	if err := validateLicense(in.QuantityTotal, in.QuantityUsed, in.ActivationDate, in.ExpirationDate, in.Status); err != nil {
		return nil, err
	}

	db := s.conn.Primary()
	if err := ensureExists(ctx, db, "customers", "customer", in.CustomerID); err != nil {
		return nil, err
	}
	if err := ensureExists(ctx, db, "modules", "module", in.ModuleID); err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Second)
	query, args, err := squirrel.Insert("licenses").
		Columns("customer_id", "module_id", "quantity_total", "quantity_used", "activation_date", "expiration_date", "status", "created_at", "updated_at").
		Values(in.CustomerID, in.ModuleID, in.QuantityTotal, in.QuantityUsed,
			in.ActivationDate.UTC().Truncate(time.Second), in.ExpirationDate.UTC().Truncate(time.Second),
			string(in.Status), now, now).
		Suffix("RETURNING id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert: %w", err)
	}

	var id int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to create license: %w", err)
	}
	return s.Get(ctx, id)
}

// Update applies a partial update. Only the fields set in upd are written,
// so units consumed by the ledger after the read are never overwritten. A
// quantity change is conditional on the current row still satisfying
// 0 <= quantity_used <= quantity_total.
func (s *Store) Update(ctx context.Context, id int64, upd Update) (*License, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := *existing
	if upd.QuantityTotal != nil {
		merged.QuantityTotal = *upd.QuantityTotal
	}
	if upd.QuantityUsed != nil {
		merged.QuantityUsed = *upd.QuantityUsed
	}
	if upd.ActivationDate != nil {
		merged.ActivationDate = upd.ActivationDate.UTC().Truncate(time.Second)
	}
	if upd.ExpirationDate != nil {
		merged.ExpirationDate = upd.ExpirationDate.UTC().Truncate(time.Second)
	}
	if upd.Status != nil {
		merged.Status = *upd.Status
	}
	if err := validateLicense(merged.QuantityTotal, merged.QuantityUsed, merged.ActivationDate, merged.ExpirationDate, merged.Status); err != nil {
		return nil, err
	}

	builder := squirrel.Update("licenses").
		Set("updated_at", s.now().UTC().Truncate(time.Second)).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	switch {
	case upd.QuantityTotal != nil && upd.QuantityUsed != nil:
		builder = builder.Set("quantity_total", merged.QuantityTotal).Set("quantity_used", merged.QuantityUsed)
	case upd.QuantityTotal != nil:
		builder = builder.Set("quantity_total", merged.QuantityTotal).
			Where(squirrel.LtOrEq{"quantity_used": merged.QuantityTotal})
	case upd.QuantityUsed != nil:
		builder = builder.Set("quantity_used", merged.QuantityUsed).
			Where(squirrel.GtOrEq{"quantity_total": merged.QuantityUsed})
	}
	if upd.ActivationDate != nil {
		builder = builder.Set("activation_date", merged.ActivationDate)
	}
	if upd.ExpirationDate != nil {
		builder = builder.Set("expiration_date", merged.ExpirationDate)
	}
	if upd.Status != nil {
		builder = builder.Set("status", string(merged.Status))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update: %w", err)
	}

	res, err := s.conn.Primary().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update license: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the license is gone or units were consumed since the read
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, apierrors.New(apierrors.KindInvalidInput, "quantityUsed cannot exceed quantityTotal")
	}
	return s.Get(ctx, id)
}

// Delete removes a license; reports that consumed it keep a null license_id
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.conn.Primary().ExecContext(ctx, `DELETE FROM licenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete license: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierrors.Newf(apierrors.KindNotFound, "license %d not found", id)
	}
	return nil
}

// ExpireLapsed marks active licenses whose expiration date is before now as
// expired and enqueues a license.expired event for each. It returns the IDs
// it changed.
func (s *Store) ExpireLapsed(ctx context.Context, now time.Time) (ids []int64, err error) {
	now = now.UTC().Truncate(time.Second)

	tx, err := s.conn.Primary().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query, args, err := squirrel.Select("id", "customer_id", "module_id").
		From("licenses").
		Where(squirrel.Eq{"status": string(StatusActive)}).
		Where(squirrel.Lt{"expiration_date": now}).
		OrderBy("id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	found, err := queryLapsed(ctx, tx, query, args)
	if err != nil {
		return nil, err
	}

	ids = []int64{}
	for _, l := range found {
		res, err := tx.ExecContext(ctx,
			`UPDATE licenses SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
			string(StatusExpired), now, l.id, string(StatusActive))
		if err != nil {
			return nil, fmt.Errorf("failed to expire license %d: %w", l.id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}

		payload := map[string]interface{}{
			"licenseId":  l.id,
			"customerId": l.customerID,
			"moduleId":   l.moduleID,
			"expiredAt":  now,
		}
		if _, err := outbox.Enqueue(ctx, tx, "license", l.id, outbox.EventLicenseExpired, payload); err != nil {
			return nil, err
		}
		ids = append(ids, l.id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit expiry sweep: %w", err)
	}
	return ids, nil
}

type lapsedLicense struct{ id, customerID, moduleID int64 }

func queryLapsed(ctx context.Context, tx *sql.Tx, query string, args []interface{}) ([]lapsedLicense, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find lapsed licenses: %w", err)
	}
	defer rows.Close()

	var found []lapsedLicense
	for rows.Next() {
		var l lapsedLicense
		if err := rows.Scan(&l.id, &l.customerID, &l.moduleID); err != nil {
			return nil, fmt.Errorf("failed to scan lapsed license: %w", err)
		}
		found = append(found, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lapsed licenses: %w", err)
	}
	return found, nil
}

// ListModules returns the module catalogue ordered by display name
func (s *Store) ListModules(ctx context.Context, activeOnly bool) ([]Module, error) {
	b := squirrel.Select("id", "name", "display_name", "description", "is_active", "created_at").
		From("modules").
		OrderBy("display_name", "id").
		PlaceholderFormat(squirrel.Dollar)
	if activeOnly {
		b = b.Where(squirrel.Eq{"is_active": true})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.conn.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	defer rows.Close()

	modules := []Module{}
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.Name, &m.DisplayName, &m.Description, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		modules = append(modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate modules: %w", err)
	}
	return modules, nil
}

// CreateModule adds a module to the catalogue
func (s *Store) CreateModule(ctx context.Context, name, displayName, description string) (*Module, error) {
	if name == "" || displayName == "" {
		return nil, apierrors.New(apierrors.KindInvalidInput, "module name and display name are required")
	}

	m := &Module{Name: name, DisplayName: displayName, Description: description, IsActive: true, CreatedAt: s.now().UTC().Truncate(time.Second)}
	err := s.conn.Primary().QueryRowContext(ctx,
		`INSERT INTO modules (name, display_name, description, is_active, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		m.Name, m.DisplayName, m.Description, m.IsActive, m.CreatedAt).Scan(&m.ID)
	if storage.IsUniqueViolation(err) {
		return nil, apierrors.Newf(apierrors.KindDuplicate, "module %s already exists", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create module: %w", err)
	}
	return m, nil
}

func validateLicense(total, used int, activation, expiration time.Time, status Status) error {
	switch {
	case total < 0:
		return apierrors.New(apierrors.KindInvalidInput, "quantityTotal cannot be negative")
	case used < 0:
		return apierrors.New(apierrors.KindInvalidInput, "quantityUsed cannot be negative")
	case used > total:
		return apierrors.New(apierrors.KindInvalidInput, "quantityUsed cannot exceed quantityTotal")
	case activation.IsZero() || expiration.IsZero():
		return apierrors.New(apierrors.KindInvalidInput, "activationDate and expirationDate are required")
	case expiration.Before(activation):
		return apierrors.New(apierrors.KindInvalidInput, "expirationDate cannot precede activationDate")
	case !status.Valid():
		return apierrors.Newf(apierrors.KindInvalidInput, "invalid license status: %s", status)
	}
	return nil
}

func ensureExists(ctx context.Context, q rowQuerier, table, noun string, id int64) error {
	var found int64
	err := q.QueryRowContext(ctx, "SELECT id FROM "+table+" WHERE id = $1", id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return apierrors.Newf(apierrors.KindNotFound, "%s %d not found", noun, id)
	}
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", table, err)
	}
	return nil
}

func scanLicense(row customers.RowScanner) (*License, error) {
	var (
		l                       License
		status                  string
		owner, module, moduleDN sql.NullString
	)
	err := row.Scan(&l.ID, &l.CustomerID, &l.ModuleID, &l.QuantityTotal, &l.QuantityUsed,
		&l.ActivationDate, &l.ExpirationDate, &status, &l.CreatedAt, &l.UpdatedAt,
		&owner, &module, &moduleDN)
	if err != nil {
		return nil, err
	}
	l.Status = Status(status)
	l.OwnerIdentity = owner.String
	l.ModuleName = module.String
	l.ModuleDisplayName = moduleDN.String
	return &l, nil
}
