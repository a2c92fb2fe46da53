package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/formulafinance/licensehub/pkg/apierrors"
)

// RoleReader resolves the role of an identity.
// An unassigned identity yields ("", false, nil).
type RoleReader interface {
	GetRole(ctx context.Context, identity string) (Role, bool, error)
}

// RoleWriter assigns roles
type RoleWriter interface {
	SetRole(ctx context.Context, identity string, role Role, createdBy string) (*RoleAssignment, error)
}

// Store handles role persistence in user_roles
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new role store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// GetRole returns the role assigned to identity
func (s *Store) GetRole(ctx context.Context, identity string) (Role, bool, error) {
	if identity == "" {
		return "", false, nil
	}

	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, identity).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get role: %w", err)
	}

	return Role(role), true, nil
}

// GetAssignment returns the full role record for identity
func (s *Store) GetAssignment(ctx context.Context, identity string) (*RoleAssignment, error) {
	query := `
		SELECT id, user_id, role, created_by, created_at, updated_at
		FROM user_roles
		WHERE user_id = $1
	`

	a, err := scanAssignment(s.db.QueryRowContext(ctx, query, identity))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierrors.Newf(apierrors.KindNotFound, "no role assigned to %s", identity)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role assignment: %w", err)
	}
	return a, nil
}

// SetRole assigns role to identity, replacing any previous role
func (s *Store) SetRole(ctx context.Context, identity string, role Role, createdBy string) (*RoleAssignment, error) {
	if identity == "" {
		return nil, apierrors.New(apierrors.KindInvalidInput, "identity is required")
	}
	if !role.Valid() {
		return nil, apierrors.Newf(apierrors.KindInvalidInput, "invalid role: %s", role)
	}

	now := s.now().UTC().Truncate(time.Second)
	query := `
		INSERT INTO user_roles (user_id, role, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at
	`

	createdByArg := sql.NullString{String: createdBy, Valid: createdBy != ""}
	if _, err := s.db.ExecContext(ctx, query, identity, string(role), createdByArg, now); err != nil {
		return nil, fmt.Errorf("failed to set role: %w", err)
	}

	return s.GetAssignment(ctx, identity)
}

// ListRoles returns every role assignment, optionally filtered by role
func (s *Store) ListRoles(ctx context.Context, role Role) ([]RoleAssignment, error) {
	query := `
		SELECT id, user_id, role, created_by, created_at, updated_at
		FROM user_roles
	`
	var args []interface{}
	if role != "" {
		query += ` WHERE role = $1`
		args = append(args, string(role))
	}
	query += ` ORDER BY user_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	assignments := []RoleAssignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		assignments = append(assignments, *a)
	}

	return assignments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAssignment(row rowScanner) (*RoleAssignment, error) {
	var (
		a         RoleAssignment
		role      string
		createdBy sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Identity, &role, &createdBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Role = Role(role)
	a.CreatedBy = createdBy.String
	return &a, nil
}
