package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/internal/inventory"
	jobmetrics "github.com/stockroom/stockroom/internal/jobs"
	"github.com/stockroom/stockroom/internal/platform/cache"
	"github.com/stockroom/stockroom/internal/sales/orders"
)

type queueSpy struct {
	tasks []*asynq.Task
	err   error
}

func (q *queueSpy) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

func newVersioned(t *testing.T) *cache.Versioned {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewVersioned(client, 0)
}

func TestNotifierEnqueuesAndBumpsCache(t *testing.T) {
	queue := &queueSpy{}
	versioned := newVersioned(t)
	n := NewNotifier(queue, versioned, nil)
	ctx := context.Background()

	before, err := versioned.Version(ctx, 7)
	require.NoError(t, err)

	order := orders.Order{ID: 3, OrganisationID: 7, OrderNumber: "ORD-202403-0001", Status: orders.StatusPending, FinalAmount: decimal.RequireFromString("20.00"), Items: make([]orders.OrderItem, 2)}
	require.NoError(t, n.OrderCreated(ctx, order))

	tracking := "JNE-1"
	order.Status = orders.StatusShipped
	order.Delivery = &orders.Delivery{TrackingNumber: &tracking}
	require.NoError(t, n.OrderStatusChanged(ctx, order, orders.StatusPaid))

	after, err := versioned.Version(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, before+2, after)

	require.Len(t, queue.tasks, 2)
	require.Equal(t, TaskOrderCreated, queue.tasks[0].Type())
	var created OrderCreatedPayload
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &created))
	require.Equal(t, 2, created.Items)
	require.True(t, created.FinalAmount.Equal(decimal.NewFromInt(20)))

	var changed OrderStatusChangedPayload
	require.NoError(t, json.Unmarshal(queue.tasks[1].Payload(), &changed))
	require.Equal(t, "PAID", changed.From)
	require.Equal(t, "SHIPPED", changed.To)
	require.Equal(t, tracking, *changed.TrackingNumber)
}

func TestNotifierReportsQueueFailure(t *testing.T) {
	n := NewNotifier(&queueSpy{err: errors.New("redis down")}, nil, nil)
	err := n.HandleStockMoved(context.Background(), inventory.StockMovedEvent{OrganisationID: 1, ProductID: 2, Type: inventory.TransactionTypeAdjustment})
	require.ErrorContains(t, err, "redis down")
}

func newEventsJob(t *testing.T, threshold string) (*EventsJob, *[]string) {
	t.Helper()
	job := NewEventsJob(slog.New(slog.NewTextHandler(io.Discard, nil)), jobmetrics.NewMetrics(prometheus.NewRegistry()), "en", decimal.RequireFromString(threshold))
	var delivered []string
	job.Sink = func(_ context.Context, _ int64, summary string) error {
		delivered = append(delivered, summary)
		return nil
	}
	return job, &delivered
}

func TestEventsJobOrderSummaries(t *testing.T) {
	job, delivered := newEventsJob(t, "0")

	task, err := NewOrderCreatedTask(OrderCreatedPayload{OrganisationID: 1, OrderNumber: "ORD-202403-0001", Items: 3, FinalAmount: decimal.RequireFromString("1234567.5")})
	require.NoError(t, err)
	require.NoError(t, job.HandleOrderCreated(context.Background(), task))

	task, err = NewOrderStatusChangedTask(OrderStatusChangedPayload{OrganisationID: 1, OrderNumber: "ORD-202403-0001", From: "PAID", To: "PAID"})
	require.NoError(t, err)
	require.NoError(t, job.HandleOrderStatusChanged(context.Background(), task))

	task, err = NewOrderStatusChangedTask(OrderStatusChangedPayload{OrganisationID: 1, OrderNumber: "ORD-202403-0001", From: "PAID", To: "SHIPPED"})
	require.NoError(t, err)
	require.NoError(t, job.HandleOrderStatusChanged(context.Background(), task))

	require.Equal(t, []string{
		"Order ORD-202403-0001 placed: 3 item(s), total 1,234,567.50",
		"Order ORD-202403-0001 moved from PAID to SHIPPED",
	}, *delivered)
}

func TestEventsJobLowStock(t *testing.T) {
	job, delivered := newEventsJob(t, "10")

	above, err := NewStockMovedTask(StockMovedPayload{OrganisationID: 1, ProductID: 4, Type: "PURCHASE", Available: decimal.NewFromInt(25)})
	require.NoError(t, err)
	require.NoError(t, job.HandleStockMoved(context.Background(), above))
	require.Empty(t, *delivered)

	below, err := NewStockMovedTask(StockMovedPayload{OrganisationID: 1, ProductID: 4, Type: "SPOILAGE", Available: decimal.RequireFromString("2.5")})
	require.NoError(t, err)
	require.NoError(t, job.HandleStockMoved(context.Background(), below))
	require.Equal(t, []string{"Product 4 is low on stock: 2.500 left"}, *delivered)
}

func TestEventsJobSkipsMalformedPayload(t *testing.T) {
	job, _ := newEventsJob(t, "0")
	err := job.HandleOrderCreated(context.Background(), asynq.NewTask(TaskOrderCreated, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type inspectorStub struct {
	info *asynq.QueueInfo
	err  error
}

func (s inspectorStub) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestHealthHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{"no inspector", nil, http.StatusOK, 0},
		{"queue info", inspectorStub{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, http.StatusOK, 4},
		{"redis down", inspectorStub{err: errors.New("dial tcp")}, http.StatusServiceUnavailable, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.inspector, logger).MountRoutes(r)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body queueHealth
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.pending, body.Pending)
		})
	}
}

type prunerSpy struct {
	retention time.Duration
	err       error
}

func (p *prunerSpy) Cleanup(_ context.Context, olderThan time.Duration) error {
	p.retention = olderThan
	return p.err
}

func TestIdempotencyCleanupJob(t *testing.T) {
	store := &prunerSpy{}
	job := NewIdempotencyCleanupJob(store, slog.New(slog.NewTextHandler(io.Discard, nil)), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, store.retention)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, []byte(`{}`))))
	require.Equal(t, 72*time.Hour, store.retention)

	store.err = errors.New("deadlock")
	require.Error(t, job.Handle(context.Background(), task))
}

func TestRedisOptFollowsCacheAddressForms(t *testing.T) {
	opt, err := RedisOpt("127.0.0.1:6379")
	require.NoError(t, err)
	require.Equal(t, asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}, opt)

	opt, err = RedisOpt("redis://worker:pw@queue.internal:6390/4")
	require.NoError(t, err)
	require.Equal(t, "queue.internal:6390", opt.Addr)
	require.Equal(t, "worker", opt.Username)
	require.Equal(t, "pw", opt.Password)
	require.Equal(t, 4, opt.DB)

	_, err = RedisOpt("")
	require.Error(t, err)
}
