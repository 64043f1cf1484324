package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/internal/platform/db"
	"github.com/stockroom/stockroom/internal/rbac"
	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/migrations"
)

// pgOrg is an organisation seeded into a real database for one test run.
type pgOrg struct {
	id       int64
	userID   int64
	customer int64
	physical int64
	service  int64
}

func seedPostgres(ctx context.Context, t *testing.T, pool *pgxpool.Pool, stock int64) pgOrg {
	t.Helper()
	var org pgOrg
	suffix := time.Now().UnixNano()
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO organisations (name) VALUES ($1) RETURNING id`,
		fmt.Sprintf("concurrency-%d", suffix)).Scan(&org.id))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO users (email, name, password_hash) VALUES ($1, 'staff', 'x') RETURNING id`,
		fmt.Sprintf("staff-%d@example.com", suffix)).Scan(&org.userID))
	_, err := pool.Exec(ctx, `INSERT INTO organisation_members (organisation_id, user_id, role) VALUES ($1, $2, 'STAFF')`, org.id, org.userID)
	require.NoError(t, err)
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO customers (organisation_id, code, name, created_by) VALUES ($1, 'CUST-0001', 'C1', $2) RETURNING id`,
		org.id, org.userID).Scan(&org.customer))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO products (organisation_id, sku, name, type, selling_price) VALUES ($1, 'P1', 'P1', 'PHYSICAL', 10.00) RETURNING id`,
		org.id).Scan(&org.physical))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO products (organisation_id, sku, name, type, selling_price) VALUES ($1, 'S1', 'S1', 'SERVICE', 50.00) RETURNING id`,
		org.id).Scan(&org.service))
	_, err = pool.Exec(ctx, `INSERT INTO stock_batches (organisation_id, product_id, quantity) VALUES ($1, $2, $3)`, org.id, org.physical, stock)
	require.NoError(t, err)
	return org
}

// runParallel starts n Create calls at once and collects the outcomes.
func runParallel(ctx context.Context, svc *Service, org pgOrg, n int, item CreateOrderItem) ([]Order, []error) {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		start  = make(chan struct{})
		placed []Order
		failed []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			order, err := svc.Create(ctx, org.id, CreateOrderRequest{CustomerID: org.customer, Items: []CreateOrderItem{item}}, "")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, err)
				return
			}
			placed = append(placed, order)
		}()
	}
	close(start)
	wg.Wait()
	return placed, failed
}

func numbers(orders []Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.OrderNumber
	}
	sort.Strings(out)
	return out
}

func TestCreateOrderConcurrentNumberingAndStock(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	_, err = migrations.Apply(ctx, pool)
	require.NoError(t, err)

	org := seedPostgres(ctx, t, pool, 5)
	now := time.Date(2031, 7, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(NewRepository(pool), rbac.NewService(rbac.NewPGStore(pool)),
		slog.New(slog.NewTextHandler(io.Discard, nil)), ServiceConfig{TxTimeout: 20 * time.Second},
		WithClock(func() time.Time { return now }))
	ctx = shared.ContextWithUserID(ctx, org.userID)

	const services = 12
	placed, failed := runParallel(ctx, svc, org, services, CreateOrderItem{ProductID: org.service, Quantity: d("1")})
	require.Empty(t, failed)
	want := make([]string, services)
	for i := range want {
		want[i] = fmt.Sprintf("ORD-203107-%04d", i+1)
	}
	require.Equal(t, want, numbers(placed))
	for _, o := range placed {
		require.Equal(t, org.userID, o.CreatedBy)
	}

	// Eight buyers race for five units: exactly five win and stock stops at zero.
	placed, failed = runParallel(ctx, svc, org, 8, CreateOrderItem{ProductID: org.physical, Quantity: d("1")})
	require.Len(t, placed, 5)
	require.Len(t, failed, 3)
	for _, err := range failed {
		require.True(t, errors.Is(err, ErrInsufficientStock), "unexpected failure: %v", err)
	}
	require.Equal(t, []string{"ORD-203107-0013", "ORD-203107-0014", "ORD-203107-0015", "ORD-203107-0016", "ORD-203107-0017"}, numbers(placed))

	err = NewRepository(pool).WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		avail, err := tx.Available(ctx, org.id, []int64{org.physical})
		if err != nil {
			return err
		}
		require.True(t, avail[org.physical].IsZero(), "available stock is %s", avail[org.physical])
		return nil
	})
	require.NoError(t, err)

	var sold string
	require.NoError(t, pool.QueryRow(ctx, `SELECT COALESCE(SUM(-quantity_change), 0)::text FROM stock_transactions
WHERE organisation_id = $1 AND product_id = $2 AND type = 'SALE'`, org.id, org.physical).Scan(&sold))
	require.True(t, d(sold).Equal(d("5")), "sold %s", sold)
}
