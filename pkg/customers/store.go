package customers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/formulafinance/licensehub/pkg/apierrors"
	"github.com/formulafinance/licensehub/pkg/storage"
)

var customerColumns = []string{
	"id", "name", "type", "status", "email", "city", "province", "vat_number",
	"owner_user_id", "created_at", "updated_at",
}

// Store handles customer persistence
type Store struct {
	conn *storage.ConnectionManager
	now  func() time.Time
}

// NewStore creates a new customer store
func NewStore(conn *storage.ConnectionManager) *Store {
	return &Store{conn: conn, now: time.Now}
}

// Get retrieves a customer by ID
func (s *Store) Get(ctx context.Context, id int64) (*Customer, error) {
	query, args, err := squirrel.Select(customerColumns...).
		From("customers").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	c, err := ScanCustomer(s.conn.Primary().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierrors.Newf(apierrors.KindNotFound, "customer %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// List returns one page of customers matching filter, ordered by name
func (s *Store) List(ctx context.Context, filter Filter, limit, offset uint64) ([]Customer, int64, error) {
	if !filter.AllOwners && len(filter.Owners) == 0 {
		return []Customer{}, 0, nil
	}

	where := squirrel.And{}
	if !filter.AllOwners {
		where = append(where, squirrel.Eq{"owner_user_id": filter.Owners})
	}
	if filter.Type != "" {
		where = append(where, squirrel.Eq{"type": string(filter.Type)})
	}
	if filter.Status != "" {
		where = append(where, squirrel.Eq{"status": string(filter.Status)})
	}
	if filter.Query != "" {
		where = append(where, NameMatches("name", filter.Query))
	}

	db := s.conn.Replica()

	countQuery, countArgs, err := squirrel.Select("COUNT(*)").
		From("customers").
		Where(where).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var total int64
	if err := db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count customers: %w", err)
	}

	query, args, err := squirrel.Select(customerColumns...).
		From("customers").
		Where(where).
		OrderBy("name", "id").
		Limit(limit).
		Offset(offset).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	result := []Customer{}
	for rows.Next() {
		c, err := ScanCustomer(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan customer: %w", err)
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate customers: %w", err)
	}

	return result, total, nil
}

// Create inserts a new customer
func (s *Store) Create(ctx context.Context, in NewCustomer) (*Customer, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apierrors.New(apierrors.KindInvalidInput, "name is required")
	}
	if !in.Type.Valid() {
		return nil, apierrors.Newf(apierrors.KindInvalidInput, "invalid customer type: %s", in.Type)
	}
	if in.Status == "" {
		in.Status = StatusActive
	}
	if !in.Status.Valid() {
		return nil, apierrors.Newf(apierrors.KindInvalidInput, "invalid status: %s", in.Status)
	}

	now := s.now().UTC().Truncate(time.Second)
	query, args, err := squirrel.Insert("customers").
		Columns("name", "type", "status", "email", "city", "province", "vat_number", "owner_user_id", "created_at", "updated_at").
		Values(in.Name, string(in.Type), string(in.Status), in.Email, in.City, in.Province, in.VATNumber, nullString(in.OwnerIdentity), now, now).
		Suffix("RETURNING id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert: %w", err)
	}

	c := &Customer{
		Name:          in.Name,
		Type:          in.Type,
		Status:        in.Status,
		Email:         in.Email,
		City:          in.City,
		Province:      in.Province,
		VATNumber:     in.VATNumber,
		OwnerIdentity: in.OwnerIdentity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.conn.Primary().QueryRowContext(ctx, query, args...).Scan(&c.ID); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return c, nil
}

// Update applies a partial update and returns the new record
func (s *Store) Update(ctx context.Context, id int64, upd Update) (*Customer, error) {
	b := squirrel.Update("customers").
		Where(squirrel.Eq{"id": id}).
		Set("updated_at", s.now().UTC().Truncate(time.Second)).
		PlaceholderFormat(squirrel.Dollar)

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, apierrors.New(apierrors.KindInvalidInput, "name cannot be empty")
		}
		b = b.Set("name", name)
	}
	if upd.Type != nil {
		if !upd.Type.Valid() {
			return nil, apierrors.Newf(apierrors.KindInvalidInput, "invalid customer type: %s", *upd.Type)
		}
		b = b.Set("type", string(*upd.Type))
	}
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return nil, apierrors.Newf(apierrors.KindInvalidInput, "invalid status: %s", *upd.Status)
		}
		b = b.Set("status", string(*upd.Status))
	}
	if upd.Email != nil {
		b = b.Set("email", *upd.Email)
	}
	if upd.City != nil {
		b = b.Set("city", *upd.City)
	}
	if upd.Province != nil {
		b = b.Set("province", *upd.Province)
	}
	if upd.VATNumber != nil {
		b = b.Set("vat_number", *upd.VATNumber)
	}
	if upd.OwnerIdentity != nil {
		b = b.Set("owner_user_id", nullString(*upd.OwnerIdentity))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update: %w", err)
	}

	res, err := s.conn.Primary().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apierrors.Newf(apierrors.KindNotFound, "customer %d not found", id)
	}

	return s.Get(ctx, id)
}

// Delete removes a customer. Its associations, licenses and reports go with it.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.conn.Primary().ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierrors.Newf(apierrors.KindNotFound, "customer %d not found", id)
	}
	return nil
}

// RowScanner is satisfied by *sql.Row and *sql.Rows
type RowScanner interface {
	Scan(dest ...interface{}) error
}

// ScanCustomer scans the customerColumns projection
func ScanCustomer(row RowScanner) (*Customer, error) {
	var (
		c                  Customer
		customerType, stat string
		owner              sql.NullString
	)
	err := row.Scan(&c.ID, &c.Name, &customerType, &stat, &c.Email, &c.City, &c.Province,
		&c.VATNumber, &owner, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Type = Type(customerType)
	c.Status = Status(stat)
	c.OwnerIdentity = owner.String
	return &c, nil
}

// Columns returns the column list read by ScanCustomer, optionally qualified with a table alias
func Columns(alias string) []string {
	if alias == "" {
		return append([]string{}, customerColumns...)
	}
	cols := make([]string, len(customerColumns))
	for i, c := range customerColumns {
		cols[i] = alias + "." + c
	}
	return cols
}

// NameMatches is a case-insensitive substring match on column
func NameMatches(column, query string) squirrel.Sqlizer {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(query))
	return squirrel.Expr("LOWER("+column+") LIKE ? ESCAPE '\\'", "%"+escaped+"%")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
