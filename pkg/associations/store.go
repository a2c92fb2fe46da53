package associations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/formulafinance/licensehub/pkg/apierrors"
	"github.com/formulafinance/licensehub/pkg/customers"
	"github.com/formulafinance/licensehub/pkg/observability"
	"github.com/formulafinance/licensehub/pkg/rbac"
	"github.com/formulafinance/licensehub/pkg/storage"
)

// SearchLimit caps SearchEligibleParents results
const SearchLimit = 20

var associationColumns = []string{
	"id", "parent_customer_id", "child_customer_id", "association_type", "notes", "created_by", "created_at",
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store handles association persistence
type Store struct {
	conn    *storage.ConnectionManager
	metrics *observability.Metrics
	now     func() time.Time
}

// NewStore creates a new association store
func NewStore(conn *storage.ConnectionManager) *Store {
	return &Store{conn: conn, now: time.Now}
}

// WithMetrics enables mutation counters
func (s *Store) WithMetrics(m *observability.Metrics) *Store {
	s.metrics = m
	return s
}

// edgeSQL selects the edge from parent to child. Both arguments are SQL
// expressions, either placeholders or column references.
func edgeSQL(parent, child string) string {
	return "SELECT id FROM customer_associations WHERE parent_customer_id = " + parent + " AND child_customer_id = " + child
}

// Create validates and inserts a new edge in one transaction
func (s *Store) Create(ctx context.Context, in NewAssociation, callerRole rbac.Role) (assoc *Association, err error) {
	ctx, span := observability.StartSpan(ctx, "associations.create",
		attribute.Int64("association.parent_id", in.ParentID),
		attribute.Int64("association.child_id", in.ChildID),
	)
	defer func() {
		observability.EndSpan(span, err)
		s.recordMutation("create", err)
	}()

	if !rbac.CanManageAssociations(callerRole) {
		return nil, apierrors.New(apierrors.KindForbidden, "only superadmins can manage associations")
	}

	tx, err := s.conn.Primary().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	assoc, err = s.createTx(ctx, tx, in, callerRole)
	if err != nil {
		_ = tx.Rollback()
		if storage.IsUniqueViolation(err) {
			return nil, s.classifyConflict(ctx, in)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, s.classifyConflict(ctx, in)
		}
		return nil, fmt.Errorf("failed to commit association: %w", err)
	}

	return assoc, nil
}

func (s *Store) createTx(ctx context.Context, tx *sql.Tx, in NewAssociation, callerRole rbac.Role) (*Association, error) {
	parent, err := loadCustomer(ctx, tx, in.ParentID)
	if err != nil {
		return nil, err
	}
	child, err := loadCustomer(ctx, tx, in.ChildID)
	if err != nil {
		return nil, err
	}

	if parent.ID == child.ID {
		return nil, apierrors.New(apierrors.KindInvalidPair, "a customer cannot be associated with itself")
	}

	v := ValidateAssociation(parent.Type, child.Type, callerRole)
	if !v.Valid {
		return nil, v.Err()
	}
	if parent.Status != customers.StatusActive {
		return nil, apierrors.Newf(apierrors.KindInvalidPair, "customer %d is %s and cannot become a parent", parent.ID, parent.Status)
	}

	exists, err := edgeExists(ctx, tx, parent.ID, child.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errDuplicate
	}

	exists, err = edgeExists(ctx, tx, child.ID, parent.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errCircular
	}

	assoc := &Association{
		ParentCustomerID: parent.ID,
		ChildCustomerID:  child.ID,
		Type:             v.AssociationType,
		Notes:            in.Notes,
		CreatedBy:        in.CreatedBy,
		CreatedAt:        s.now().UTC().Truncate(time.Second),
	}

	query, args, err := squirrel.Insert("customer_associations").
		Columns("parent_customer_id", "child_customer_id", "association_type", "notes", "created_by", "created_at").
		Values(assoc.ParentCustomerID, assoc.ChildCustomerID, string(assoc.Type), nullString(assoc.Notes), nullString(assoc.CreatedBy), assoc.CreatedAt).
		Suffix("RETURNING id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert: %w", err)
	}

	if err := tx.QueryRowContext(ctx, query, args...).Scan(&assoc.ID); err != nil {
		return nil, fmt.Errorf("failed to insert association: %w", err)
	}
	return assoc, nil
}

var (
	errDuplicate = apierrors.New(apierrors.KindDuplicate, "association already exists")
	errCircular  = apierrors.New(apierrors.KindCircular, "the reverse association exists; circular associations are not allowed")
)

// classifyConflict explains a unique violation raised by a concurrent writer
func (s *Store) classifyConflict(ctx context.Context, in NewAssociation) error {
	exists, err := edgeExists(ctx, s.conn.Primary(), in.ParentID, in.ChildID)
	if err != nil {
		return err
	}
	if exists {
		return errDuplicate
	}
	return errCircular
}

func edgeExists(ctx context.Context, q querier, parentID, childID int64) (bool, error) {
	var id int64
	err := q.QueryRowContext(ctx, edgeSQL("$1", "$2"), parentID, childID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check association: %w", err)
	}
	return true, nil
}

// Get retrieves an association by ID
func (s *Store) Get(ctx context.Context, id int64) (*Association, error) {
	query, args, err := squirrel.Select(associationColumns...).
		From("customer_associations").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var a Association
	if err := scanAssociation(s.conn.Primary().QueryRowContext(ctx, query, args...), &a); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierrors.Newf(apierrors.KindNotFound, "association %d not found", id)
		}
		return nil, fmt.Errorf("failed to get association: %w", err)
	}
	return &a, nil
}

// Delete removes an edge (superadmin only)
func (s *Store) Delete(ctx context.Context, id int64, callerRole rbac.Role) (err error) {
	ctx, span := observability.StartSpan(ctx, "associations.delete", attribute.Int64("association.id", id))
	defer func() {
		observability.EndSpan(span, err)
		s.recordMutation("delete", err)
	}()

	if !rbac.CanManageAssociations(callerRole) {
		return apierrors.New(apierrors.KindForbidden, "only superadmins can manage associations")
	}

	res, err := s.conn.Primary().ExecContext(ctx, `DELETE FROM customer_associations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete association: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierrors.Newf(apierrors.KindNotFound, "association %d not found", id)
	}
	return nil
}

// List returns the parent edge and child edges of a customer.
// When several parent edges exist the earliest one is reported.
func (s *Store) List(ctx context.Context, customerID int64) (*Listing, error) {
	db := s.conn.Replica()

	customer, err := loadCustomer(ctx, db, customerID)
	if err != nil {
		return nil, err
	}

	listing := &Listing{Customer: *customer, Children: []Edge{}}

	parentQuery, parentArgs, err := edgeSelect("c.id = ca.parent_customer_id").
		Where(squirrel.Eq{"ca.child_customer_id": customerID}).
		OrderBy("ca.created_at", "ca.id").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build parent query: %w", err)
	}

	parent, err := scanEdge(db.QueryRowContext(ctx, parentQuery, parentArgs...))
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to get parent association: %w", err)
	default:
		listing.Parent = parent
	}

	childQuery, childArgs, err := edgeSelect("c.id = ca.child_customer_id").
		Where(squirrel.Eq{"ca.parent_customer_id": customerID}).
		OrderBy("c.name", "c.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build children query: %w", err)
	}

	rows, err := db.QueryContext(ctx, childQuery, childArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to list child associations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan association: %w", err)
		}
		listing.Children = append(listing.Children, *edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate associations: %w", err)
	}

	return listing, nil
}

// SearchEligibleParents lists active customers that could become the parent
// of childID: a compatible type, not the child itself and not yet linked to
// it in either direction.
func (s *Store) SearchEligibleParents(ctx context.Context, childID int64, childType customers.Type, query string) ([]customers.Customer, error) {
	parentTypes, err := ValidParentTypes(childType)
	if err != nil {
		return nil, err
	}

	types := make([]string, len(parentTypes))
	for i, t := range parentTypes {
		types[i] = string(t)
	}

	where := squirrel.And{
		squirrel.Eq{"c.type": types},
		squirrel.Eq{"c.status": string(customers.StatusActive)},
		squirrel.NotEq{"c.id": childID},
		squirrel.Expr("NOT EXISTS ("+edgeSQL("c.id", "?")+")", childID),
		squirrel.Expr("NOT EXISTS ("+edgeSQL("?", "c.id")+")", childID),
	}
	if query != "" {
		where = append(where, customers.NameMatches("c.name", query))
	}

	sqlQuery, args, err := squirrel.Select(customers.Columns("c")...).
		From("customers c").
		Where(where).
		OrderBy("c.name", "c.id").
		Limit(SearchLimit).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build search query: %w", err)
	}

	rows, err := s.conn.Replica().QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search parents: %w", err)
	}
	defer rows.Close()

	result := []customers.Customer{}
	for rows.Next() {
		c, err := customers.ScanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate customers: %w", err)
	}
	return result, nil
}

// SearchEligibleParentsFor loads childID and searches parents for its stored
// type. A non-empty childType must match the stored type.
func (s *Store) SearchEligibleParentsFor(ctx context.Context, childID int64, childType customers.Type, query string) ([]customers.Customer, error) {
	child, err := loadCustomer(ctx, s.conn.Replica(), childID)
	if err != nil {
		return nil, err
	}
	if childType != "" && childType != child.Type {
		return nil, apierrors.Newf(apierrors.KindInvalidInput, "childType %s does not match customer %d of type %s", childType, child.ID, child.Type)
	}
	return s.SearchEligibleParents(ctx, child.ID, child.Type, query)
}

// ChildOwnerIdentities returns the owners of customers directly below any
// customer owned by ownerIdentity
func (s *Store) ChildOwnerIdentities(ctx context.Context, ownerIdentity string) ([]string, error) {
	query, args, err := squirrel.Select("DISTINCT child.owner_user_id").
		From("customer_associations ca").
		Join("customers parent ON parent.id = ca.parent_customer_id").
		Join("customers child ON child.id = ca.child_customer_id").
		Where(squirrel.Eq{"parent.owner_user_id": ownerIdentity}).
		Where(squirrel.NotEq{"child.owner_user_id": nil}).
		OrderBy("child.owner_user_id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.conn.Primary().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list child owners: %w", err)
	}
	defer rows.Close()

	owners := []string{}
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("failed to scan child owner: %w", err)
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate child owners: %w", err)
	}
	return owners, nil
}

// Stats aggregates the children of parentID and their active licenses
func (s *Store) Stats(ctx context.Context, parentID int64) (stats *Stats, err error) {
	ctx, span := observability.StartSpan(ctx, "associations.stats", attribute.Int64("association.parent_id", parentID))
	defer func() { observability.EndSpan(span, err) }()

	customerCols := customers.Columns("c")
	cols := append(append([]string{}, customerCols...),
		"ca.association_type",
		"COUNT(l.id)",
		"COALESCE(SUM(l.quantity_total), 0)",
		"COALESCE(SUM(l.quantity_used), 0)",
	)

	query, args, err := squirrel.Select(cols...).
		From("customer_associations ca").
		Join("customers c ON c.id = ca.child_customer_id").
		LeftJoin("licenses l ON l.customer_id = c.id AND l.status = 'active'").
		Where(squirrel.Eq{"ca.parent_customer_id": parentID}).
		GroupBy(append(customerCols, "ca.association_type")...).
		OrderBy("c.name", "c.id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build stats query: %w", err)
	}

	rows, err := s.conn.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query association stats: %w", err)
	}
	defer rows.Close()

	stats = &Stats{ParentCustomerID: parentID, Children: []ChildStat{}}
	for rows.Next() {
		var (
			assocType   string
			count       int
			total, used int64
		)
		c, err := customers.ScanCustomer(suffixScanner{row: rows, suffix: []interface{}{&assocType, &count, &total, &used}})
		if err != nil {
			return nil, fmt.Errorf("failed to scan association stats: %w", err)
		}

		stats.Children = append(stats.Children, ChildStat{
			ID:              c.ID,
			Name:            c.Name,
			Type:            c.Type,
			Status:          c.Status,
			Email:           c.Email,
			Location:        c.Location(),
			AssociationType: Type(assocType),
			LicenseCount:    count,
			LicensesTotal:   total,
			LicensesUsed:    used,
			LicenseUsage:    usagePercent(used, total),
		})

		switch c.Type {
		case customers.TypeIntermediary:
			stats.ByType.Intermediary++
		case customers.TypeClientBasic:
			stats.ByType.ClientBasic++
		case customers.TypeClientProspect:
			stats.ByType.ClientProspect++
		}
		stats.Licenses.Total += total
		stats.Licenses.Used += used
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate association stats: %w", err)
	}

	stats.TotalChildren = len(stats.Children)
	return stats, nil
}

// StatsFor returns Stats after checking that caller may view them.
// Only superadmins may look at a parent they do not own.
func (s *Store) StatsFor(ctx context.Context, caller rbac.Caller, parentID int64) (*Stats, error) {
	if !caller.HasRole || !rbac.CanViewAssociationStats(caller.Role) {
		return nil, apierrors.New(apierrors.KindForbidden, "association statistics are not available to this role")
	}

	parent, err := loadCustomer(ctx, s.conn.Replica(), parentID)
	if err != nil {
		return nil, err
	}
	if !caller.IsSuperadmin() && (parent.OwnerIdentity == "" || parent.OwnerIdentity != caller.Identity) {
		return nil, apierrors.New(apierrors.KindForbidden, "statistics are only available for your own customer")
	}

	return s.Stats(ctx, parentID)
}

func (s *Store) recordMutation(operation string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(apierrors.KindOf(err))
	}
	s.metrics.AssociationMutationsTotal.WithLabelValues(operation, outcome).Inc()
}

func usagePercent(used, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(used) / float64(total) * 100))
}

func loadCustomer(ctx context.Context, q querier, id int64) (*customers.Customer, error) {
	query, args, err := squirrel.Select(customers.Columns("")...).
		From("customers").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	c, err := customers.ScanCustomer(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierrors.Newf(apierrors.KindNotFound, "customer %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}
	return c, nil
}

// edgeSelect selects association columns joined with the customer on the given side
func edgeSelect(join string) squirrel.SelectBuilder {
	cols := make([]string, 0, len(associationColumns)+len(customers.Columns("")))
	for _, c := range associationColumns {
		cols = append(cols, "ca."+c)
	}
	cols = append(cols, customers.Columns("c")...)

	return squirrel.Select(cols...).
		From("customer_associations ca").
		Join("customers c ON " + join).
		PlaceholderFormat(squirrel.Dollar)
}

// associationScan holds the nullable columns of one association row
type associationScan struct {
	assocType        string
	notes, createdBy sql.NullString
}

func (a *associationScan) dest(out *Association) []interface{} {
	return []interface{}{&out.ID, &out.ParentCustomerID, &out.ChildCustomerID, &a.assocType, &a.notes, &a.createdBy, &out.CreatedAt}
}

func (a *associationScan) apply(out *Association) {
	out.Type = Type(a.assocType)
	out.Notes = a.notes.String
	out.CreatedBy = a.createdBy.String
}

func scanAssociation(row customers.RowScanner, out *Association) error {
	var scan associationScan
	if err := row.Scan(scan.dest(out)...); err != nil {
		return err
	}
	scan.apply(out)
	return nil
}

func scanEdge(row customers.RowScanner) (*Edge, error) {
	var (
		edge Edge
		scan associationScan
	)
	c, err := customers.ScanCustomer(prefixScanner{row: row, prefix: scan.dest(&edge.Association)})
	if err != nil {
		return nil, err
	}
	scan.apply(&edge.Association)
	edge.Customer = *c
	return &edge, nil
}

// prefixScanner scans leading columns into prefix before handing the rest to dest
type prefixScanner struct {
	row    customers.RowScanner
	prefix []interface{}
}

func (p prefixScanner) Scan(dest ...interface{}) error {
	return p.row.Scan(append(append([]interface{}{}, p.prefix...), dest...)...)
}

// suffixScanner scans trailing columns into suffix
type suffixScanner struct {
	row    customers.RowScanner
	suffix []interface{}
}

func (s suffixScanner) Scan(dest ...interface{}) error {
	return s.row.Scan(append(append([]interface{}{}, dest...), s.suffix...)...)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
