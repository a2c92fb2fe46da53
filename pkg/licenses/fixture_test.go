package licenses

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/formulafinance/licensehub/pkg/customers"
	"github.com/formulafinance/licensehub/pkg/storage"
	"github.com/formulafinance/licensehub/pkg/storage/storagetest"
)

type fixture struct {
	conn      *storage.ConnectionManager
	store     *Store
	ledger    *Ledger
	customers *customers.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, storagetest.NewSQLiteManager(t))
}

func newFixtureWith(t *testing.T, conn *storage.ConnectionManager) *fixture {
	t.Helper()
	return &fixture{
		conn:      conn,
		store:     NewStore(conn),
		ledger:    NewLedger(conn, LatestExpiring, nil),
		customers: customers.NewStore(conn),
	}
}

func (f *fixture) customer(t *testing.T, name, owner string) *customers.Customer {
	t.Helper()
	c, err := f.customers.Create(context.Background(), customers.NewCustomer{Name: name, Type: customers.TypeClientBasic, OwnerIdentity: owner})
	require.NoError(t, err)
	return c
}

func (f *fixture) module(t *testing.T, name string) *Module {
	t.Helper()
	m, err := f.store.CreateModule(context.Background(), name, name+" module", "")
	require.NoError(t, err)
	return m
}

func (f *fixture) license(t *testing.T, customerID, moduleID int64, total, used int, expires time.Time) *License {
	t.Helper()
	l, err := f.store.Create(context.Background(), NewLicense{
		CustomerID:     customerID,
		ModuleID:       moduleID,
		QuantityTotal:  total,
		QuantityUsed:   used,
		ActivationDate: expires.AddDate(-1, 0, 0),
		ExpirationDate: expires,
	})
	require.NoError(t, err)
	return l
}

func (f *fixture) countRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.conn.Primary().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func nextYear() time.Time {
	return time.Now().UTC().Truncate(time.Second).AddDate(1, 0, 0)
}
