//go:build integration

package licenses

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formulafinance/licensehub/pkg/apierrors"
	"github.com/formulafinance/licensehub/pkg/storage/storagetest"
)

func TestLedger_PostgresConcurrentConsumption(t *testing.T) {
	f := newFixtureWith(t, storagetest.NewPostgresManager(t))
	c := f.customer(t, "Acme", "acme")
	m := f.module(t, "balance")
	l := f.license(t, c.ID, m.ID, 7, 0, nextYear())

	const workers = 20
	var succeeded, exhausted int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.RequestReportCreation(context.Background(), request(c.ID, m.ID))
			switch {
			case err == nil:
				atomic.AddInt64(&succeeded, 1)
			case apierrors.Is(err, apierrors.KindLicenseExhausted):
				atomic.AddInt64(&exhausted, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 7, succeeded)
	assert.EqualValues(t, workers-7, exhausted)

	got, err := f.store.Get(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.QuantityUsed)
	assert.Equal(t, 7, f.countRows(t, "reports"))
}
