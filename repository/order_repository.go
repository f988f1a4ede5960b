package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/claudioc0/ecommerce0-sub001/pkg/kvstore"
	"github.com/google/uuid"
)

// ErrOrderNotFound is returned when no order has the requested id.
var ErrOrderNotFound = errors.New("order not found")

const ordersKey = "orders"

// OrderRepository persists orders. Implementations hand out copies, so
// callers can never mutate stored state in place.
type OrderRepository interface {
	Save(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindAll(ctx context.Context) ([]models.Order, error)
	FindByCustomer(ctx context.Context, customerID string) ([]models.Order, error)
}

// KVOrderRepository keeps the full order list as one JSON record in the
// key-value store, loaded once and rewritten on every save.
type KVOrderRepository struct {
	mu     sync.RWMutex
	store  kvstore.Store
	orders map[uuid.UUID]*models.Order
	loaded bool
}

func NewKVOrderRepository(store kvstore.Store) *KVOrderRepository {
	return &KVOrderRepository{
		store:  store,
		orders: make(map[uuid.UUID]*models.Order),
	}
}

func (r *KVOrderRepository) load(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	var list []models.Order
	if _, err := kvstore.GetJSON(ctx, r.store, ordersKey, &list); err != nil {
		return err
	}
	for i := range list {
		o := list[i]
		r.orders[o.ID] = &o
	}
	r.loaded = true
	return nil
}

func (r *KVOrderRepository) Save(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return err
	}
	r.orders[order.ID] = order.Clone()
	return kvstore.SetJSON(ctx, r.store, ordersKey, r.sortedLocked())
}

func (r *KVOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (r *KVOrderRepository) FindAll(ctx context.Context) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	return r.sortedLocked(), nil
}

func (r *KVOrderRepository) FindByCustomer(ctx context.Context, customerID string) ([]models.Order, error) {
	all, err := r.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Order, 0)
	for _, o := range all {
		if o.Customer.ID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

// sortedLocked returns copies of all orders, newest first.
func (r *KVOrderRepository) sortedLocked() []models.Order {
	out := make([]models.Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, *o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
