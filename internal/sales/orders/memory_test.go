package orders

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/masterdata/products"
	"github.com/stockroom/stockroom/internal/rbac"
	"github.com/stockroom/stockroom/internal/sales/customers"
	"github.com/stockroom/stockroom/internal/shared"
)

// memoryRepo is an in-memory Repository whose WithTx discards every write made by a
// failing callback.
type memoryRepo struct {
	customers map[int64]customers.Customer
	products  map[int64]products.Product
	received  map[int64]decimal.Decimal
	orders    []Order
	ledger    []inventory.StockTransaction
	counters  map[string]int64
	nextID    int64

	failItemInsert error
	failCommits    []error
	txRuns         int
	locked         [][]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		customers: make(map[int64]customers.Customer),
		products:  make(map[int64]products.Product),
		received:  make(map[int64]decimal.Decimal),
		counters:  make(map[string]int64),
	}
}

func (m *memoryRepo) addCustomer(orgID, id int64) {
	m.customers[id] = customers.Customer{ID: id, OrganisationID: orgID, Code: customers.FormatCode(id), Name: "C"}
}

func (m *memoryRepo) addProduct(orgID, id int64, sku string, typ products.Type, price string, stock string) {
	p := products.Product{ID: id, OrganisationID: orgID, SKU: sku, Name: sku, Type: typ, IsActive: true}
	if price != "" {
		p.SellingPrice = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	m.products[id] = p
	if stock != "" {
		m.received[id] = decimal.RequireFromString(stock)
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	orders := make([]Order, len(m.orders))
	for i, o := range m.orders {
		o.Items = append([]OrderItem(nil), o.Items...)
		if o.Delivery != nil {
			d := *o.Delivery
			o.Delivery = &d
		}
		orders[i] = o
	}
	ledger := append([]inventory.StockTransaction(nil), m.ledger...)
	counters := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		counters[k] = v
	}
	nextID := m.nextID

	m.txRuns++
	err := fn(ctx, &memoryTx{repo: m})
	if err == nil && len(m.failCommits) > 0 {
		err, m.failCommits = m.failCommits[0], m.failCommits[1:]
	}
	if err != nil {
		m.orders, m.ledger, m.counters, m.nextID = orders, ledger, counters, nextID
		return err
	}
	return nil
}

func (m *memoryRepo) Get(_ context.Context, orgID, id int64) (Order, error) {
	for _, o := range m.orders {
		if o.ID == id && o.OrganisationID == orgID {
			return o, nil
		}
	}
	return Order{}, ErrOrderMissing
}

func (m *memoryRepo) List(_ context.Context, req ListOrdersRequest) ([]Order, int, error) {
	var out []Order
	for i := len(m.orders) - 1; i >= 0; i-- {
		o := m.orders[i]
		if o.OrganisationID != req.OrganisationID {
			continue
		}
		if req.Status != nil && o.Status != *req.Status {
			continue
		}
		if req.CustomerID != nil && o.CustomerID != *req.CustomerID {
			continue
		}
		o.Items = nil
		o.Delivery = nil
		out = append(out, o)
	}
	total := len(out)
	if req.Offset < len(out) {
		out = out[req.Offset:]
	} else {
		out = nil
	}
	if len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, total, nil
}

func (m *memoryRepo) salesFor(orderID int64) []inventory.StockTransaction {
	var out []inventory.StockTransaction
	for _, e := range m.ledger {
		if e.OrderID != nil && *e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetCustomer(_ context.Context, orgID, id int64) (customers.Customer, error) {
	c, ok := tx.repo.customers[id]
	if !ok || c.OrganisationID != orgID {
		return customers.Customer{}, customers.ErrNotFound
	}
	return c, nil
}

func (tx *memoryTx) LockProducts(_ context.Context, orgID int64, ids []int64) ([]products.Product, error) {
	tx.repo.locked = append(tx.repo.locked, append([]int64(nil), ids...))
	var out []products.Product
	for _, id := range ids {
		if p, ok := tx.repo.products[id]; ok && p.OrganisationID == orgID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memoryTx) Available(_ context.Context, orgID int64, ids []int64) (map[int64]decimal.Decimal, error) {
	out := make(map[int64]decimal.Decimal)
	for _, id := range ids {
		total := tx.repo.received[id]
		for _, e := range tx.repo.ledger {
			if e.OrganisationID == orgID && e.ProductID == id && e.Type != inventory.TransactionTypePurchase {
				total = total.Add(e.QuantityChange)
			}
		}
		out[id] = total
	}
	return out, nil
}

func (tx *memoryTx) NextSequence(_ context.Context, orgID int64, period string) (int64, error) {
	key := strconv.FormatInt(orgID, 10) + ":" + period
	tx.repo.counters[key]++
	return tx.repo.counters[key], nil
}

func (tx *memoryTx) InsertOrder(_ context.Context, order Order) (Order, error) {
	for _, o := range tx.repo.orders {
		if o.OrganisationID == order.OrganisationID && o.OrderNumber == order.OrderNumber {
			return Order{}, errors.New("duplicate key value violates unique constraint")
		}
	}
	tx.repo.nextID++
	order.ID = tx.repo.nextID
	order.UpdatedAt = order.CreatedAt
	tx.repo.orders = append(tx.repo.orders, order)
	return order, nil
}

func (tx *memoryTx) InsertItem(_ context.Context, item OrderItem) (OrderItem, error) {
	if tx.repo.failItemInsert != nil {
		return OrderItem{}, tx.repo.failItemInsert
	}
	tx.repo.nextID++
	item.ID = tx.repo.nextID
	for i := range tx.repo.orders {
		if tx.repo.orders[i].ID == item.OrderID {
			tx.repo.orders[i].Items = append(tx.repo.orders[i].Items, item)
		}
	}
	return item, nil
}

func (tx *memoryTx) UpsertDelivery(_ context.Context, d Delivery) error {
	for i := range tx.repo.orders {
		if tx.repo.orders[i].ID == d.OrderID {
			tx.repo.orders[i].Delivery = mergeDelivery(tx.repo.orders[i].Delivery, d)
		}
	}
	return nil
}

func (tx *memoryTx) InsertStockTransaction(_ context.Context, entry inventory.StockTransaction) (inventory.StockTransaction, error) {
	tx.repo.nextID++
	entry.ID = tx.repo.nextID
	tx.repo.ledger = append(tx.repo.ledger, entry)
	return entry, nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, orgID, id int64) (Order, error) {
	return tx.repo.Get(ctx, orgID, id)
}

func (tx *memoryTx) UpdateStatus(_ context.Context, orgID, id int64, status Status) (time.Time, error) {
	for i := range tx.repo.orders {
		if tx.repo.orders[i].ID == id && tx.repo.orders[i].OrganisationID == orgID {
			tx.repo.orders[i].Status = status
			tx.repo.orders[i].UpdatedAt = tx.repo.orders[i].CreatedAt.Add(time.Minute)
			return tx.repo.orders[i].UpdatedAt, nil
		}
	}
	return time.Time{}, ErrOrderMissing
}

// fakeAuth grants the configured role to every caller of organisation orgID.
type fakeAuth struct {
	orgID int64
	role  rbac.Role
	err   error
}

func (a fakeAuth) Authorize(_ context.Context, orgID int64, roles ...rbac.Role) (rbac.Actor, error) {
	if a.err != nil {
		return rbac.Actor{}, a.err
	}
	if orgID != a.orgID {
		return rbac.Actor{}, rbac.ErrUnauthorized
	}
	if len(roles) > 0 {
		allowed := false
		for _, r := range roles {
			allowed = allowed || r == a.role
		}
		if !allowed {
			return rbac.Actor{}, rbac.ErrUnauthorized
		}
	}
	return rbac.Actor{UserID: 5, MemberID: 50, OrganisationID: orgID, Role: a.role}, nil
}

type auditSpy struct{ logs []shared.AuditLog }

func (a *auditSpy) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type idempotencySpy struct {
	keys map[string]bool
}

func (s *idempotencySpy) CheckAndInsert(_ context.Context, key, module string) error {
	if s.keys == nil {
		s.keys = make(map[string]bool)
	}
	if s.keys[module+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[module+"/"+key] = true
	return nil
}

func (s *idempotencySpy) Delete(_ context.Context, key, module string) error {
	delete(s.keys, module+"/"+key)
	return nil
}

type notifierSpy struct {
	created []Order
	changed []Status
	err     error
}

func (n *notifierSpy) OrderCreated(_ context.Context, order Order) error {
	n.created = append(n.created, order)
	return n.err
}

func (n *notifierSpy) OrderStatusChanged(_ context.Context, order Order, previous Status) error {
	n.changed = append(n.changed, previous, order.Status)
	return n.err
}
